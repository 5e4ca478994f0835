package worker

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/sentinel/internal/audit"
	"github.com/opensource-finance/sentinel/internal/bus"
	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/engine"
	"github.com/opensource-finance/sentinel/internal/provider"
	"github.com/opensource-finance/sentinel/internal/rules"
)

func TestWorkerProcessesIngestedTransactions(t *testing.T) {
	b := bus.NewChannelBus(100)
	defer b.Close()
	ctx := context.Background()

	// The engine's audit path publishes verdicts to the analysis topic.
	auditLogger := audit.NewLogger(nil, b, nil)
	eng := engine.New(engine.Config{}, rules.Builtin(), provider.NewFixture(), auditLogger)

	var analysisCount atomic.Int64
	var lastVerdict atomic.Value
	b.Subscribe(ctx, domain.TopicAnalysis, func(ctx context.Context, msg *domain.Message) error {
		var result domain.AnalysisResult
		if err := json.Unmarshal(msg.Payload, &result); err != nil {
			return err
		}
		lastVerdict.Store(string(result.Verdict))
		analysisCount.Add(1)
		return nil
	})

	w := NewWorker(b, nil, eng)
	if err := w.Start(); err != nil {
		t.Fatalf("worker start failed: %v", err)
	}
	defer w.Stop()

	payload, _ := json.Marshal(&domain.Transaction{
		ID:          "tx-async",
		Amount:      500,
		Type:        domain.TypeCollect,
		Description: "claim your refund now",
		SenderID:    "victim",
		ReceiverID:  "scammer",
	})
	if err := b.Publish(ctx, domain.TopicTransactionIngested, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	waitFor(t, func() bool { return analysisCount.Load() == 1 })

	if v := lastVerdict.Load().(string); v != "BLOCK" {
		t.Errorf("expected BLOCK verdict on the analysis topic, got %s", v)
	}

	stats := w.GetStats()
	if stats.Processed != 1 {
		t.Errorf("expected 1 processed, got %d", stats.Processed)
	}
	if stats.SubscriptionCount != 1 {
		t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
	}
}

// stubRepo captures persisted transactions.
type stubRepo struct {
	domain.Repository

	mu    sync.Mutex
	saved []*domain.Transaction
}

func (s *stubRepo) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, tx)
	return nil
}

func (s *stubRepo) savedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func TestWorkerPersistsNormalizedTransaction(t *testing.T) {
	b := bus.NewChannelBus(100)
	defer b.Close()
	ctx := context.Background()

	repo := &stubRepo{}
	eng := engine.New(engine.Config{}, rules.Builtin(), provider.NewFixture(), nil)
	w := NewWorker(b, repo, eng)
	if err := w.Start(); err != nil {
		t.Fatalf("worker start failed: %v", err)
	}
	defer w.Stop()

	// Producers rarely set timestamps; the worker must fill them before
	// persisting or the row sorts out of the recent-history window.
	payload, _ := json.Marshal(&domain.Transaction{
		ID:         "tx-no-ts",
		Amount:     25,
		SenderID:   "alice",
		ReceiverID: "bob",
	})
	if err := b.Publish(ctx, domain.TopicTransactionIngested, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	waitFor(t, func() bool { return repo.savedCount() == 1 })

	repo.mu.Lock()
	saved := repo.saved[0]
	repo.mu.Unlock()
	if saved.Timestamp.IsZero() {
		t.Error("expected a non-zero timestamp on the persisted transaction")
	}
	if saved.Type != domain.TypeDebit {
		t.Errorf("expected defaulted type DEBIT, got %s", saved.Type)
	}
}

func TestWorkerCountsMalformedMessages(t *testing.T) {
	b := bus.NewChannelBus(100)
	defer b.Close()
	ctx := context.Background()

	eng := engine.New(engine.Config{}, rules.Builtin(), nil, nil)
	w := NewWorker(b, nil, eng)
	if err := w.Start(); err != nil {
		t.Fatalf("worker start failed: %v", err)
	}
	defer w.Stop()

	b.Publish(ctx, domain.TopicTransactionIngested, []byte("{not json"))

	waitFor(t, func() bool { return w.GetStats().Failed == 1 })

	if w.GetStats().Processed != 0 {
		t.Errorf("expected 0 processed, got %d", w.GetStats().Processed)
	}
}

func TestWorkerStopUnsubscribes(t *testing.T) {
	b := bus.NewChannelBus(100)
	defer b.Close()

	eng := engine.New(engine.Config{}, rules.Builtin(), nil, nil)
	w := NewWorker(b, nil, eng)
	if err := w.Start(); err != nil {
		t.Fatalf("worker start failed: %v", err)
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("worker stop failed: %v", err)
	}
	if w.GetStats().SubscriptionCount != 0 {
		t.Errorf("expected no subscriptions after stop, got %d", w.GetStats().SubscriptionCount)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
