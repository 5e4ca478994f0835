package domain

import (
	"time"
)

// RuleOutcome is the result of a single rule evaluation.
// Risk and Reason are meaningful only when Triggered is true.
type RuleOutcome struct {
	Triggered bool   `json:"triggered"`
	Risk      int    `json:"risk"`
	Reason    string `json:"reason,omitempty"`
}

// Verdict is the final disposition of a transaction.
type Verdict string

const (
	VerdictAllow Verdict = "ALLOW"
	VerdictFlag  Verdict = "FLAG"
	VerdictBlock Verdict = "BLOCK"
)

// Score thresholds. Bands are inclusive at their lower bound and checked
// in descending order, so BLOCK wins over FLAG.
const (
	MaxRiskScore   = 100
	BlockThreshold = 90
	FlagThreshold  = 50
)

// ClampScore caps a summed risk score at MaxRiskScore. Risks are
// non-negative, so no floor is needed.
func ClampScore(score int) int {
	if score > MaxRiskScore {
		return MaxRiskScore
	}
	return score
}

// VerdictForScore maps a clamped risk score to a verdict.
func VerdictForScore(score int) Verdict {
	switch {
	case score >= BlockThreshold:
		return VerdictBlock
	case score >= FlagThreshold:
		return VerdictFlag
	default:
		return VerdictAllow
	}
}

// AnalysisResult is the engine's output for one transaction. It is built
// once per analysis, handed to the audit logger, and then owned by the
// caller; the engine retains nothing.
type AnalysisResult struct {
	ID            string  `json:"analysis_id"`
	TransactionID string  `json:"transaction_id"`
	RiskScore     int     `json:"risk_score"`
	Verdict       Verdict `json:"verdict"`

	// TriggeredRules holds the reasons of triggered rules in rule
	// evaluation order, not risk order.
	TriggeredRules []string `json:"triggered_rules"`

	Timestamp time.Time `json:"timestamp"`
}

// BatchSummary aggregates one batch run.
//
// TotalProcessed counts data lines (line count minus the header row),
// including malformed lines that were skipped rather than scored. That
// matches the batch contract callers already depend on.
type BatchSummary struct {
	TotalProcessed int     `json:"total_processed"`
	FraudDetected  int     `json:"fraud_detected"`
	TotalSaved     float64 `json:"total_saved"`
}
