package provider

import (
	"context"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// Fixture is a deterministic in-memory context provider for tests and
// demos. Scenario data lives here, keyed by exact identifiers, so no
// test heuristics leak into rule logic.
type Fixture struct {
	// Histories maps sender ID to outgoing records, most-recent-first.
	Histories map[string][]domain.HistoryRecord

	// Incoming maps payer|payee to the last record of payee paying
	// payer. A missing key means no such record.
	Incoming map[string]*domain.HistoryRecord
}

// NewFixture creates an empty fixture provider.
func NewFixture() *Fixture {
	return &Fixture{
		Histories: make(map[string][]domain.HistoryRecord),
		Incoming:  make(map[string]*domain.HistoryRecord),
	}
}

// WithHistory registers a sender's outgoing history.
func (f *Fixture) WithHistory(senderID string, records ...domain.HistoryRecord) *Fixture {
	f.Histories[senderID] = records
	return f
}

// WithIncoming registers the last record of payee paying payer.
func (f *Fixture) WithIncoming(payerID, payeeID string, rec domain.HistoryRecord) *Fixture {
	f.Incoming[incomingKey(payerID, payeeID)] = &rec
	return f
}

func (f *Fixture) FetchSenderHistory(ctx context.Context, senderID string, limit int) ([]domain.HistoryRecord, error) {
	records := f.Histories[senderID]
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (f *Fixture) FetchLastIncoming(ctx context.Context, payerID, payeeID string) (*domain.HistoryRecord, error) {
	return f.Incoming[incomingKey(payerID, payeeID)], nil
}

func incomingKey(payerID, payeeID string) string {
	return payerID + "|" + payeeID
}
