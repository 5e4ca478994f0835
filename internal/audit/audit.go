// Package audit persists verdicts and fans them out for operational
// visibility. Everything here is best-effort: an analysis is never failed
// because it could not be recorded.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opensource-finance/sentinel/internal/domain"
)

const counterWindow = 24 * time.Hour

// Logger implements domain.AuditLogger over the repository, event bus and
// cache. Any of the three may be nil.
type Logger struct {
	repo  domain.Repository
	bus   domain.EventBus
	cache domain.Cache
}

// NewLogger creates an audit logger.
func NewLogger(repo domain.Repository, bus domain.EventBus, cache domain.Cache) *Logger {
	return &Logger{repo: repo, bus: bus, cache: cache}
}

// RecordAnalysis persists the result, publishes it, and bumps the rolling
// per-verdict counter. Only the persistence error is returned; the caller
// treats even that as advisory.
func (l *Logger) RecordAnalysis(ctx context.Context, result *domain.AnalysisResult) error {
	var saveErr error

	if l.repo != nil {
		if err := l.repo.SaveAnalysis(ctx, result); err != nil {
			slog.Error("failed to persist analysis",
				"analysis_id", result.ID,
				"tx_id", result.TransactionID,
				"error", err,
			)
			saveErr = err
		}
	}

	if l.bus != nil {
		payload, err := json.Marshal(result)
		if err == nil {
			if err := l.bus.Publish(ctx, domain.TopicAnalysis, payload); err != nil {
				slog.Warn("failed to publish analysis",
					"analysis_id", result.ID,
					"error", err,
				)
			}
			if result.Verdict != domain.VerdictAllow {
				if err := l.bus.Publish(ctx, domain.TopicAlert, payload); err != nil {
					slog.Warn("failed to publish alert",
						"analysis_id", result.ID,
						"error", err,
					)
				}
			}
		}
	}

	if l.cache != nil {
		key := "verdict:" + string(result.Verdict)
		if _, err := l.cache.IncrementCounter(ctx, key, counterWindow); err != nil {
			slog.Debug("failed to bump verdict counter",
				"verdict", result.Verdict,
				"error", err,
			)
		}
	}

	return saveErr
}
