// Package engine implements the scoring aggregator: it fans a
// transaction out to every rule, sums triggered risks, clamps the total,
// and maps it to a verdict.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/rules"
)

// ErrInvalidTransaction is returned when a transaction lacks the identity
// required to produce an attributable verdict. It is the only error
// AnalyzeTransaction surfaces; every other failure mode is absorbed.
var ErrInvalidTransaction = errors.New("invalid transaction")

const (
	defaultContextTimeout = 2 * time.Second
	defaultHistoryLimit   = 10
)

// Config holds engine tuning knobs.
type Config struct {
	// ContextTimeout bounds provider calls. A slow or failing provider
	// degrades to empty context rather than stalling the analysis.
	ContextTimeout time.Duration

	// HistoryLimit is how many sender records the rules see.
	HistoryLimit int
}

// Engine runs the ordered rule set against transactions. Analyses are
// stateless and read-only over their inputs, so any number may run
// concurrently; the mutex only guards custom-rule hot reloads.
type Engine struct {
	mu      sync.RWMutex
	builtin []rules.Rule
	custom  []rules.Rule

	provider domain.ContextProvider
	audit    domain.AuditLogger

	contextTimeout time.Duration
	historyLimit   int
}

// New creates an engine over the given ordered rule set. The provider
// supplies rule context; the audit logger records verdicts best-effort.
// Both may be nil in tests.
func New(cfg Config, ruleSet []rules.Rule, provider domain.ContextProvider, audit domain.AuditLogger) *Engine {
	if cfg.ContextTimeout <= 0 {
		cfg.ContextTimeout = defaultContextTimeout
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	return &Engine{
		builtin:        ruleSet,
		provider:       provider,
		audit:          audit,
		contextTimeout: cfg.ContextTimeout,
		historyLimit:   cfg.HistoryLimit,
	}
}

// AnalyzeTransaction scores one transaction and returns its verdict.
// Risk combines additively across triggered rules and is clamped to
// [0, 100] before the verdict mapping.
func (e *Engine) AnalyzeTransaction(ctx context.Context, tx *domain.Transaction) (*domain.AnalysisResult, error) {
	if tx == nil {
		return nil, fmt.Errorf("%w: transaction is required", ErrInvalidTransaction)
	}
	if tx.ID == "" {
		return nil, fmt.Errorf("%w: transaction id is required", ErrInvalidTransaction)
	}

	now := time.Now().UTC()
	tx.Normalize(now)

	rc := e.fetchContext(ctx, tx)

	score := 0
	var reasons []string

	e.mu.RLock()
	ruleSet := make([]rules.Rule, 0, len(e.builtin)+len(e.custom))
	ruleSet = append(ruleSet, e.builtin...)
	ruleSet = append(ruleSet, e.custom...)
	e.mu.RUnlock()

	for _, rule := range ruleSet {
		outcome := rule.Evaluate(tx, rc)
		if !outcome.Triggered {
			continue
		}
		score += outcome.Risk
		reasons = append(reasons, outcome.Reason)
	}

	score = domain.ClampScore(score)

	result := &domain.AnalysisResult{
		ID:             uuid.New().String(),
		TransactionID:  tx.ID,
		RiskScore:      score,
		Verdict:        domain.VerdictForScore(score),
		TriggeredRules: reasons,
		Timestamp:      now,
	}

	// Fire-and-forget: a verdict is returned even when it cannot be
	// recorded.
	if e.audit != nil {
		if err := e.audit.RecordAnalysis(ctx, result); err != nil {
			slog.Error("failed to record analysis",
				"tx_id", tx.ID,
				"analysis_id", result.ID,
				"error", err,
			)
		}
	}

	return result, nil
}

// fetchContext gathers sender history and the last incoming record under
// a bounded timeout. Any failure substitutes the empty result so rules
// take their no-history branch.
func (e *Engine) fetchContext(ctx context.Context, tx *domain.Transaction) *rules.Context {
	rc := &rules.Context{}
	if e.provider == nil {
		return rc
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.contextTimeout)
	defer cancel()

	history, err := e.provider.FetchSenderHistory(fetchCtx, tx.SenderID, e.historyLimit)
	if err != nil {
		slog.Warn("sender history unavailable",
			"sender_id", tx.SenderID,
			"error", err,
		)
		history = nil
	}
	rc.SenderHistory = history

	incoming, err := e.provider.FetchLastIncoming(fetchCtx, tx.SenderID, tx.ReceiverID)
	if err != nil {
		slog.Warn("incoming lookup unavailable",
			"sender_id", tx.SenderID,
			"receiver_id", tx.ReceiverID,
			"error", err,
		)
		incoming = nil
	}
	rc.LastIncoming = incoming

	return rc
}

// ValidateCustomRule compiles a custom rule config without loading it,
// so callers can reject bad expressions before persisting them.
func (e *Engine) ValidateCustomRule(cfg *domain.CustomRule) error {
	_, err := rules.NewCELRule(cfg)
	return err
}

// ReloadCustomRules swaps the custom rule tail of the set. Builtin rules
// always run first, so the documented evaluation order is preserved.
func (e *Engine) ReloadCustomRules(configs []*domain.CustomRule) error {
	compiled, err := rules.CompileCustomRules(configs)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.custom = compiled
	e.mu.Unlock()

	return nil
}

// RuleInfo describes one loaded rule for the management API.
type RuleInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Builtin bool   `json:"builtin"`
}

// Rules returns descriptors of the loaded rule set in evaluation order.
func (e *Engine) Rules() []RuleInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()

	infos := make([]RuleInfo, 0, len(e.builtin)+len(e.custom))
	for _, r := range e.builtin {
		infos = append(infos, RuleInfo{ID: r.ID(), Name: r.Name(), Builtin: true})
	}
	for _, r := range e.custom {
		infos = append(infos, RuleInfo{ID: r.ID(), Name: r.Name()})
	}
	return infos
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.builtin) + len(e.custom)
}
