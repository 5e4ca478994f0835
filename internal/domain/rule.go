package domain

import "time"

// CustomRule is an operator-authored rule stored alongside the builtin
// set. Its CEL expression must evaluate to bool; a true result triggers
// the rule with the configured risk and reason.
type CustomRule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Expression is a CEL predicate over the transaction variables
	// (amount, tx_type, description, sender_id, receiver_id,
	// beneficiary_type, history_count, has_incoming).
	Expression string `json:"expression"`

	// Risk added to the score when the expression is true (0-100).
	Risk int `json:"risk"`

	// Reason reported in triggered_rules when the rule fires.
	Reason string `json:"reason"`

	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}
