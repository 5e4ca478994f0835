package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/provider"
	"github.com/opensource-finance/sentinel/internal/rules"
)

// failingProvider simulates an unavailable context store.
type failingProvider struct{}

func (failingProvider) FetchSenderHistory(ctx context.Context, senderID string, limit int) ([]domain.HistoryRecord, error) {
	return nil, errors.New("store down")
}

func (failingProvider) FetchLastIncoming(ctx context.Context, payerID, payeeID string) (*domain.HistoryRecord, error) {
	return nil, errors.New("store down")
}

// failingAudit simulates a broken persistence path.
type failingAudit struct{ calls int }

func (a *failingAudit) RecordAnalysis(ctx context.Context, result *domain.AnalysisResult) error {
	a.calls++
	return errors.New("disk full")
}

// riskRule is a fixed-outcome rule for aggregation tests.
type riskRule struct {
	id     string
	risk   int
	reason string
}

func (r riskRule) ID() string   { return r.id }
func (r riskRule) Name() string { return r.id }
func (r riskRule) Evaluate(tx *domain.Transaction, rc *rules.Context) domain.RuleOutcome {
	return domain.RuleOutcome{Triggered: true, Risk: r.risk, Reason: r.reason}
}

func newTestEngine(p domain.ContextProvider) *Engine {
	return New(Config{}, rules.Builtin(), p, nil)
}

func TestAnalyzeRejectsInvalidTransaction(t *testing.T) {
	eng := newTestEngine(nil)

	if _, err := eng.AnalyzeTransaction(context.Background(), nil); !errors.Is(err, ErrInvalidTransaction) {
		t.Errorf("expected ErrInvalidTransaction for nil tx, got %v", err)
	}

	if _, err := eng.AnalyzeTransaction(context.Background(), &domain.Transaction{}); !errors.Is(err, ErrInvalidTransaction) {
		t.Errorf("expected ErrInvalidTransaction for missing id, got %v", err)
	}
}

func TestAnalyzeCleanTransaction(t *testing.T) {
	eng := newTestEngine(provider.NewFixture())

	tx := &domain.Transaction{
		ID:          "tx-clean",
		Amount:      250,
		Type:        domain.TypeDebit,
		Description: "groceries",
		SenderID:    "alice",
		ReceiverID:  "bob",
	}

	result, err := eng.AnalyzeTransaction(context.Background(), tx)
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}

	if result.RiskScore != 0 {
		t.Errorf("expected risk 0, got %d", result.RiskScore)
	}
	if result.Verdict != domain.VerdictAllow {
		t.Errorf("expected ALLOW, got %s", result.Verdict)
	}
	if len(result.TriggeredRules) != 0 {
		t.Errorf("expected no triggered rules, got %v", result.TriggeredRules)
	}
	if result.ID == "" {
		t.Error("expected a generated analysis id")
	}
	if result.TransactionID != "tx-clean" {
		t.Errorf("unexpected transaction id %q", result.TransactionID)
	}
}

func TestAnalyzeGroomingScenario(t *testing.T) {
	fixture := provider.NewFixture().WithHistory("victim",
		domain.HistoryRecord{Amount: 10, Timestamp: time.Now()},
		domain.HistoryRecord{Amount: 20, Timestamp: time.Now()},
		domain.HistoryRecord{Amount: 5, Timestamp: time.Now()},
	)
	eng := newTestEngine(fixture)

	tx := &domain.Transaction{
		ID:          "tx-groom",
		Amount:      5000,
		Type:        domain.TypeDebit,
		Description: "urgent help",
		SenderID:    "victim",
		ReceiverID:  "scammer",
	}

	result, err := eng.AnalyzeTransaction(context.Background(), tx)
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}

	if result.RiskScore != 75 {
		t.Errorf("expected risk 75, got %d", result.RiskScore)
	}
	if result.Verdict != domain.VerdictFlag {
		t.Errorf("expected FLAG, got %s", result.Verdict)
	}
	if len(result.TriggeredRules) != 1 {
		t.Fatalf("expected 1 triggered rule, got %d", len(result.TriggeredRules))
	}
}

func TestAnalyzeGhostCreditScenario(t *testing.T) {
	eng := newTestEngine(provider.NewFixture())

	tx := &domain.Transaction{
		ID:              "tx-ghost",
		Amount:          2000,
		Type:            domain.TypeDebit,
		Description:     "returning money sent by mistake",
		SenderID:        "victim",
		ReceiverID:      "scammer",
		BeneficiaryType: domain.BeneficiaryIndividual,
	}

	result, err := eng.AnalyzeTransaction(context.Background(), tx)
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}

	if result.RiskScore != 95 {
		t.Errorf("expected risk 95, got %d", result.RiskScore)
	}
	if result.Verdict != domain.VerdictBlock {
		t.Errorf("expected BLOCK, got %s", result.Verdict)
	}
}

func TestAnalyzeGhostCreditWithRealIncoming(t *testing.T) {
	fixture := provider.NewFixture().WithIncoming("victim", "friend",
		domain.HistoryRecord{Amount: 2000, Timestamp: time.Now().Add(-time.Hour)},
	)
	eng := newTestEngine(fixture)

	tx := &domain.Transaction{
		ID:              "tx-real-refund",
		Amount:          2000,
		Type:            domain.TypeDebit,
		Description:     "returning money sent by mistake",
		SenderID:        "victim",
		ReceiverID:      "friend",
		BeneficiaryType: domain.BeneficiaryIndividual,
	}

	result, err := eng.AnalyzeTransaction(context.Background(), tx)
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}

	if result.Verdict != domain.VerdictAllow {
		t.Errorf("expected ALLOW when the credit is real, got %s", result.Verdict)
	}
}

func TestAnalyzeRefundScamScenario(t *testing.T) {
	eng := newTestEngine(provider.NewFixture())

	tx := &domain.Transaction{
		ID:          "tx-collect",
		Amount:      500,
		Type:        domain.TypeCollect,
		Description: "claim your lottery prize",
		SenderID:    "victim",
		ReceiverID:  "scammer",
	}

	result, err := eng.AnalyzeTransaction(context.Background(), tx)
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}

	if result.RiskScore != 100 {
		t.Errorf("expected risk 100, got %d", result.RiskScore)
	}
	if result.Verdict != domain.VerdictBlock {
		t.Errorf("expected BLOCK, got %s", result.Verdict)
	}
}

func TestAnalyzeClampsCombinedScore(t *testing.T) {
	ruleSet := []rules.Rule{
		riskRule{id: "a", risk: 75, reason: "a fired"},
		riskRule{id: "b", risk: 95, reason: "b fired"},
		riskRule{id: "c", risk: 100, reason: "c fired"},
	}
	eng := New(Config{}, ruleSet, nil, nil)

	result, err := eng.AnalyzeTransaction(context.Background(), &domain.Transaction{ID: "tx1"})
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}

	if result.RiskScore != 100 {
		t.Errorf("expected combined 270 to clamp to 100, got %d", result.RiskScore)
	}
	if result.Verdict != domain.VerdictBlock {
		t.Errorf("expected BLOCK, got %s", result.Verdict)
	}

	// Reasons stay in rule evaluation order.
	want := []string{"a fired", "b fired", "c fired"}
	if len(result.TriggeredRules) != len(want) {
		t.Fatalf("expected %d reasons, got %d", len(want), len(result.TriggeredRules))
	}
	for i, reason := range want {
		if result.TriggeredRules[i] != reason {
			t.Errorf("reason %d: expected %q, got %q", i, reason, result.TriggeredRules[i])
		}
	}
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	eng := newTestEngine(provider.NewFixture())

	tx := func() *domain.Transaction {
		return &domain.Transaction{
			ID:          "tx-repeat",
			Amount:      500,
			Type:        domain.TypeCollect,
			Description: "cashback waiting, claim now",
			SenderID:    "victim",
			ReceiverID:  "scammer",
		}
	}

	first, err := eng.AnalyzeTransaction(context.Background(), tx())
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		result, err := eng.AnalyzeTransaction(context.Background(), tx())
		if err != nil {
			t.Fatalf("analysis failed: %v", err)
		}
		if result.RiskScore != first.RiskScore || result.Verdict != first.Verdict {
			t.Fatalf("run %d diverged: score %d verdict %s", i, result.RiskScore, result.Verdict)
		}
	}
}

func TestAnalyzeDegradesWhenProviderFails(t *testing.T) {
	eng := newTestEngine(failingProvider{})

	// Grooming needs history; a failing provider means empty history, so
	// the transaction passes instead of erroring.
	tx := &domain.Transaction{
		ID:       "tx-degraded",
		Amount:   5000,
		SenderID: "victim",
	}

	result, err := eng.AnalyzeTransaction(context.Background(), tx)
	if err != nil {
		t.Fatalf("expected degraded analysis, got error: %v", err)
	}
	if result.Verdict != domain.VerdictAllow {
		t.Errorf("expected ALLOW with empty context, got %s", result.Verdict)
	}
}

func TestAnalyzeSwallowsAuditFailure(t *testing.T) {
	audit := &failingAudit{}
	eng := New(Config{}, rules.Builtin(), nil, audit)

	result, err := eng.AnalyzeTransaction(context.Background(), &domain.Transaction{ID: "tx1"})
	if err != nil {
		t.Fatalf("expected verdict despite audit failure, got %v", err)
	}
	if result == nil {
		t.Fatal("expected a result")
	}
	if audit.calls != 1 {
		t.Errorf("expected 1 audit call, got %d", audit.calls)
	}
}

func TestReloadCustomRules(t *testing.T) {
	eng := newTestEngine(nil)
	if eng.RulesCount() != 3 {
		t.Fatalf("expected 3 builtin rules, got %d", eng.RulesCount())
	}

	err := eng.ReloadCustomRules([]*domain.CustomRule{
		{ID: "big", Name: "Big Transfer", Expression: "amount > 50000.0", Risk: 30, Enabled: true},
	})
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if eng.RulesCount() != 4 {
		t.Errorf("expected 4 rules after reload, got %d", eng.RulesCount())
	}

	infos := eng.Rules()
	if !infos[0].Builtin || infos[3].Builtin {
		t.Error("expected builtins first and custom rules last")
	}
	if infos[3].ID != "big" {
		t.Errorf("expected custom rule last, got %s", infos[3].ID)
	}

	// Reload with empty set drops the custom tail.
	if err := eng.ReloadCustomRules(nil); err != nil {
		t.Fatalf("empty reload failed: %v", err)
	}
	if eng.RulesCount() != 3 {
		t.Errorf("expected 3 rules after empty reload, got %d", eng.RulesCount())
	}
}

func TestReloadCustomRulesRejectsBadExpression(t *testing.T) {
	eng := newTestEngine(nil)

	err := eng.ReloadCustomRules([]*domain.CustomRule{
		{ID: "broken", Name: "Broken", Expression: "!!! nope", Risk: 10, Enabled: true},
	})
	if err == nil {
		t.Fatal("expected compile error")
	}

	// The old set stays loaded after a failed reload.
	if eng.RulesCount() != 3 {
		t.Errorf("expected rule set unchanged, got %d", eng.RulesCount())
	}
}

func TestValidateCustomRule(t *testing.T) {
	eng := newTestEngine(nil)

	if err := eng.ValidateCustomRule(&domain.CustomRule{
		ID: "ok", Name: "OK", Expression: "amount > 1.0", Risk: 10, Enabled: true,
	}); err != nil {
		t.Errorf("expected valid rule to pass: %v", err)
	}

	if err := eng.ValidateCustomRule(&domain.CustomRule{
		ID: "bad", Name: "Bad", Expression: "not valid (", Risk: 10, Enabled: true,
	}); err == nil {
		t.Error("expected invalid rule to fail validation")
	}
}
