// Package provider supplies rule context from the transaction ledger.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/sentinel/internal/domain"
)

const defaultHistoryTTL = 30 * time.Second

// SQLProvider implements domain.ContextProvider over the repository, with
// optional short-TTL cache memoization of sender-history lookups. It
// honours the provider contract: lookups degrade to empty results instead
// of failing the analysis.
type SQLProvider struct {
	repo       domain.Repository
	cache      domain.Cache
	historyTTL time.Duration
}

// NewSQL creates a provider over the given repository. The cache may be
// nil to disable memoization.
func NewSQL(repo domain.Repository, cache domain.Cache) *SQLProvider {
	return &SQLProvider{
		repo:       repo,
		cache:      cache,
		historyTTL: defaultHistoryTTL,
	}
}

// FetchSenderHistory returns the sender's recent records,
// most-recent-first. Store unavailability yields an empty slice.
func (p *SQLProvider) FetchSenderHistory(ctx context.Context, senderID string, limit int) ([]domain.HistoryRecord, error) {
	if senderID == "" {
		return nil, nil
	}

	key := historyKey(senderID, limit)

	if p.cache != nil {
		if data, err := p.cache.Get(ctx, key); err == nil && data != nil {
			var records []domain.HistoryRecord
			if err := json.Unmarshal(data, &records); err == nil {
				return records, nil
			}
		}
	}

	records, err := p.repo.GetHistoryBySender(ctx, senderID, limit)
	if err != nil {
		slog.Warn("sender history lookup failed",
			"sender_id", senderID,
			"error", err,
		)
		return nil, nil
	}

	if p.cache != nil {
		if data, err := json.Marshal(records); err == nil {
			_ = p.cache.Set(ctx, key, data, p.historyTTL)
		}
	}

	return records, nil
}

// FetchLastIncoming returns the most recent record of payeeID paying
// payerID, or nil when none exists. Store unavailability is reported as
// absence, which keeps the ghost-credit rule on its no-record branch.
func (p *SQLProvider) FetchLastIncoming(ctx context.Context, payerID, payeeID string) (*domain.HistoryRecord, error) {
	if payerID == "" || payeeID == "" {
		return nil, nil
	}

	rec, err := p.repo.GetLastIncoming(ctx, payerID, payeeID)
	if err != nil {
		slog.Warn("incoming history lookup failed",
			"payer_id", payerID,
			"payee_id", payeeID,
			"error", err,
		)
		return nil, nil
	}

	return rec, nil
}

func historyKey(senderID string, limit int) string {
	return fmt.Sprintf("history:%s:%d", senderID, limit)
}
