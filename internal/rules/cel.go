package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// celEnv exposes the transaction and its context to custom expressions.
func celEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("tx_type", cel.StringType),
		cel.Variable("description", cel.StringType),
		cel.Variable("sender_id", cel.StringType),
		cel.Variable("receiver_id", cel.StringType),
		cel.Variable("beneficiary_type", cel.StringType),
		cel.Variable("history_count", cel.IntType),
		cel.Variable("has_incoming", cel.BoolType),
	)
}

// CELRule is an operator-authored rule compiled from a CEL predicate. It
// carries a fixed risk and reason, so it composes with the builtin set
// under the same additive scoring policy.
type CELRule struct {
	cfg     *domain.CustomRule
	program cel.Program
}

// NewCELRule compiles a custom rule. The expression must produce a bool.
func NewCELRule(cfg *domain.CustomRule) (*CELRule, error) {
	if cfg == nil || cfg.Expression == "" {
		return nil, fmt.Errorf("custom rule expression is required")
	}
	if cfg.Risk < 0 || cfg.Risk > domain.MaxRiskScore {
		return nil, fmt.Errorf("custom rule %s: risk must be in [0, %d]", cfg.ID, domain.MaxRiskScore)
	}

	env, err := celEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CELRule{cfg: cfg, program: program}, nil
}

func (r *CELRule) ID() string   { return r.cfg.ID }
func (r *CELRule) Name() string { return r.cfg.Name }

// Evaluate runs the compiled predicate. An evaluation error degrades to
// "not triggered": a broken extension rule must never fail a transaction.
func (r *CELRule) Evaluate(tx *domain.Transaction, rc *Context) domain.RuleOutcome {
	activation := map[string]any{
		"amount":           tx.Amount,
		"tx_type":          string(tx.Type),
		"description":      tx.Description,
		"sender_id":        tx.SenderID,
		"receiver_id":      tx.ReceiverID,
		"beneficiary_type": string(tx.BeneficiaryType),
		"history_count":    int64(len(rc.SenderHistory)),
		"has_incoming":     rc.LastIncoming != nil,
	}

	out, _, err := r.program.Eval(activation)
	if err != nil {
		return notTriggered
	}

	if out != types.True {
		return notTriggered
	}

	reason := r.cfg.Reason
	if reason == "" {
		reason = r.cfg.Name
	}

	return domain.RuleOutcome{
		Triggered: true,
		Risk:      r.cfg.Risk,
		Reason:    reason,
	}
}

// CompileCustomRules compiles every enabled config, preserving the given
// order so triggered_rules stays deterministic across reloads.
func CompileCustomRules(configs []*domain.CustomRule) ([]Rule, error) {
	compiled := make([]Rule, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		rule, err := NewCELRule(cfg)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, rule)
	}
	return compiled, nil
}
