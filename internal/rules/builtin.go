package rules

import (
	"fmt"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// Grooming rule parameters. A big transfer preceded by several tiny
// trust-building payments is the classic grooming setup.
const (
	groomingMinAmount   = 1000.0
	groomingMicroAmount = 50.0
	groomingMicroCount  = 3
	groomingRisk        = 75
)

const ghostCreditRisk = 95

// refundScamRisk is the maximum: a COLLECT request dressed up as a refund
// is unconditionally fraudulent.
const refundScamRisk = 100

// ghostCreditKeywords are refund-ish phrases a scammer uses to make the
// victim "return" money that was never credited.
var ghostCreditKeywords = []string{"return", "mistake", "refund", "sent by mistake", "back"}

// refundScamKeywords dress a collect request up as money coming in.
var refundScamKeywords = []string{"refund", "cashback", "prize", "won", "lottery", "claim"}

// Builtin returns the fixed rule set in evaluation order. The order is
// part of the contract: triggered_rules reports reasons in this order.
func Builtin() []Rule {
	return []Rule{
		GroomingRule{},
		GhostCreditRule{},
		RefundScamRule{},
	}
}

// GroomingRule detects small trust-building payments preceding a large
// exploitative transfer.
type GroomingRule struct{}

func (GroomingRule) ID() string   { return "grooming" }
func (GroomingRule) Name() string { return "Grooming Detection" }

func (GroomingRule) Evaluate(tx *domain.Transaction, rc *Context) domain.RuleOutcome {
	// Amounts below the threshold never qualify as the big transfer
	// being set up.
	if tx.Amount < groomingMinAmount {
		return notTriggered
	}

	micro := 0
	for _, rec := range rc.SenderHistory {
		if rec.Amount <= groomingMicroAmount {
			micro++
		}
	}

	if micro < groomingMicroCount {
		return notTriggered
	}

	return domain.RuleOutcome{
		Triggered: true,
		Risk:      groomingRisk,
		Reason:    fmt.Sprintf("Grooming detected: %d micro-transactions found before high value transfer", micro),
	}
}

// GhostCreditRule detects a sender "returning" money the receiver never
// actually sent them, the fake-payment-screenshot scam.
type GhostCreditRule struct{}

func (GhostCreditRule) ID() string   { return "ghost-credit" }
func (GhostCreditRule) Name() string { return "Ghost Credit Detection" }

func (GhostCreditRule) Evaluate(tx *domain.Transaction, rc *Context) domain.RuleOutcome {
	// Merchants are exempt; refund semantics differ for them.
	if tx.BeneficiaryType != domain.BeneficiaryIndividual {
		return notTriggered
	}

	// A real prior credit from the receiver makes a refund plausible.
	if rc.LastIncoming != nil {
		return notTriggered
	}

	if !containsAny(tx.Description, ghostCreditKeywords) {
		return notTriggered
	}

	return domain.RuleOutcome{
		Triggered: true,
		Risk:      ghostCreditRisk,
		Reason:    "Fake payment alert: refunding money that was never received",
	}
}

// RefundScamRule detects a COLLECT request disguised as a refund or
// prize. Approving a collect sends money out; nothing legitimate pays you
// through your own PIN entry.
type RefundScamRule struct{}

func (RefundScamRule) ID() string   { return "refund-scam" }
func (RefundScamRule) Name() string { return "Refund Scam Detection" }

func (RefundScamRule) Evaluate(tx *domain.Transaction, rc *Context) domain.RuleOutcome {
	if tx.Type != domain.TypeCollect {
		return notTriggered
	}

	if !containsAny(tx.Description, refundScamKeywords) {
		return notTriggered
	}

	return domain.RuleOutcome{
		Triggered: true,
		Risk:      refundScamRisk,
		Reason:    "Refund scam: collect request disguised as a refund or prize",
	}
}
