package domain

import (
	"strings"
	"time"
)

// TransactionType is the direction/mechanism of a funds movement.
type TransactionType string

const (
	TypeDebit  TransactionType = "DEBIT"
	TypeCredit TransactionType = "CREDIT"

	// TypeCollect is a payee-initiated pull that the payer approves with
	// their PIN. Legitimate refunds never arrive this way.
	TypeCollect TransactionType = "COLLECT"
)

// BeneficiaryType classifies the receiving party.
type BeneficiaryType string

const (
	BeneficiaryIndividual BeneficiaryType = "INDIVIDUAL"
	BeneficiaryMerchant   BeneficiaryType = "MERCHANT"
)

// Transaction represents one attempted funds movement to be scored.
type Transaction struct {
	ID     string          `json:"id"`
	Amount float64         `json:"amount"`
	Type   TransactionType `json:"type"`

	// Description is free user-supplied text; rules match it
	// case-insensitively.
	Description string `json:"description"`

	SenderID        string          `json:"sender_id"`
	ReceiverID      string          `json:"receiver_id"`
	BeneficiaryType BeneficiaryType `json:"beneficiary_type"`

	// Timestamp defaults to evaluation time when absent.
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ParseTransactionType maps a raw string to a TransactionType.
// Unknown or empty values default to DEBIT (lenient ingestion).
func ParseTransactionType(s string) TransactionType {
	switch TransactionType(strings.ToUpper(strings.TrimSpace(s))) {
	case TypeCredit:
		return TypeCredit
	case TypeCollect:
		return TypeCollect
	default:
		return TypeDebit
	}
}

// ParseBeneficiaryType maps a raw string to a BeneficiaryType.
// Unknown or empty values default to INDIVIDUAL.
func ParseBeneficiaryType(s string) BeneficiaryType {
	switch BeneficiaryType(strings.ToUpper(strings.TrimSpace(s))) {
	case BeneficiaryMerchant:
		return BeneficiaryMerchant
	default:
		return BeneficiaryIndividual
	}
}

// Normalize fills defaulted fields in place. Malformed input never fails
// ingestion; only a missing ID is rejected, and that check belongs to the
// engine, not here.
func (t *Transaction) Normalize(now time.Time) {
	if t.Amount < 0 {
		t.Amount = 0
	}
	if t.Type == "" {
		t.Type = TypeDebit
	}
	if t.BeneficiaryType == "" {
		t.BeneficiaryType = BeneficiaryIndividual
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = now
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
}
