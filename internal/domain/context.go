// Package domain defines the core interfaces and types for Sentinel.
package domain

import (
	"context"
	"time"
)

// HistoryRecord is a prior transaction fact used as rule context. Its
// scope (whose history, which direction) comes from the query that
// produced it.
type HistoryRecord struct {
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// ContextProvider supplies the historical facts rules need. The engine
// depends only on this contract; implementations may be a real store or a
// deterministic fixture.
type ContextProvider interface {
	// FetchSenderHistory returns the sender's most recent outgoing
	// records, most-recent-first. Unavailability yields an empty slice,
	// never a failed analysis.
	FetchSenderHistory(ctx context.Context, senderID string, limit int) ([]HistoryRecord, error)

	// FetchLastIncoming returns the most recent record where payeeID sent
	// money to payerID. A nil record with nil error means no such record
	// exists, which is itself meaningful to the ghost-credit rule.
	FetchLastIncoming(ctx context.Context, payerID, payeeID string) (*HistoryRecord, error)
}

// AuditLogger persists each verdict. Best-effort: a fraud verdict must be
// returned to the caller even when it cannot be recorded.
type AuditLogger interface {
	RecordAnalysis(ctx context.Context, result *AnalysisResult) error
}
