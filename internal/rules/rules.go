// Package rules provides the deterministic fraud rule set.
package rules

import (
	"strings"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// Context carries the historical facts a rule may consult. It is
// assembled once per analysis by the engine and is read-only to rules.
type Context struct {
	// SenderHistory holds the sender's recent outgoing records,
	// most-recent-first.
	SenderHistory []domain.HistoryRecord

	// LastIncoming is the most recent record of the receiver sending
	// money to the sender. Nil means no such record exists.
	LastIncoming *domain.HistoryRecord
}

// Rule evaluates one fraud pattern against a transaction plus context.
// Rules are pure: they mutate no shared state and never call each other,
// so the set can grow or shrink without touching aggregation logic.
type Rule interface {
	ID() string
	Name() string
	Evaluate(tx *domain.Transaction, rc *Context) domain.RuleOutcome
}

// notTriggered is the zero outcome shared by every rule's quiet path.
var notTriggered = domain.RuleOutcome{}

// containsAny reports whether the lower-cased description contains any of
// the keywords. Keywords are stored lower-case, so only the description
// needs folding; the first hit short-circuits.
func containsAny(description string, keywords []string) bool {
	desc := strings.ToLower(description)
	for _, k := range keywords {
		if strings.Contains(desc, k) {
			return true
		}
	}
	return false
}
