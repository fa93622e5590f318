// Package guard evaluates local pre-flight deny rules against spend
// requests before they are signed and dispatched. Rules are CEL expressions
// over the spend facts; a matching rule denies locally and never reaches the
// authority. Rules can only deny - there is no local approve, so the
// fail-closed invariant is untouched.
package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
)

// evalTimeout bounds a single rule evaluation.
const evalTimeout = 2 * time.Second

// costBudget is the CEL runtime cost limit per evaluation.
const costBudget = 100_000

// Rule is one configured guard rule.
type Rule struct {
	// Name identifies the rule in logs and denial output.
	Name string
	// Condition is a CEL expression over vendor, amount_cents, currency,
	// reason. When it evaluates to true the spend is denied locally.
	Condition string
	// Message is shown to the agent when the rule denies. Optional.
	Message string
}

// Facts are the spend request fields visible to guard rules.
type Facts struct {
	Vendor      string
	AmountCents int64
	Currency    string
	Reason      string
}

type compiledRule struct {
	rule Rule
	prg  cel.Program
}

// Evaluator holds compiled guard rules. Compiled once at startup; a rule
// that fails to compile is a configuration error.
type Evaluator struct {
	rules []compiledRule
}

// NewEvaluator compiles the given rules.
func NewEvaluator(rules []Rule) (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("vendor", cel.StringType),
		cel.Variable("amount_cents", cel.IntType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("reason", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("guard environment: %w", err)
	}

	e := &Evaluator{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		ast, issues := env.Compile(r.Condition)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("guard rule %q: %w", r.Name, issues.Err())
		}
		prg, err := env.Program(ast,
			cel.EvalOptions(cel.OptOptimize),
			cel.CostLimit(costBudget),
		)
		if err != nil {
			return nil, fmt.Errorf("guard rule %q: %w", r.Name, err)
		}
		e.rules = append(e.rules, compiledRule{rule: r, prg: prg})
	}
	return e, nil
}

// Check evaluates the rules in order against the spend facts. It returns
// the first rule that matches, or nil when no rule denies. An evaluation
// error on any rule denies that rule too: uncertainty in a deny rule must
// not become permission.
func (e *Evaluator) Check(ctx context.Context, f Facts) (*Rule, error) {
	if e == nil {
		return nil, nil
	}

	activation := map[string]any{
		"vendor":       f.Vendor,
		"amount_cents": f.AmountCents,
		"currency":     f.Currency,
		"reason":       f.Reason,
	}

	for _, cr := range e.rules {
		evalCtx, cancel := context.WithTimeout(ctx, evalTimeout)
		result, _, err := cr.prg.ContextEval(evalCtx, activation)
		cancel()
		if err != nil {
			r := cr.rule
			return &r, fmt.Errorf("guard rule %q evaluation: %w", cr.rule.Name, err)
		}
		matched, ok := result.Value().(bool)
		if !ok {
			r := cr.rule
			return &r, fmt.Errorf("guard rule %q did not return a boolean, got %T", cr.rule.Name, result.Value())
		}
		if matched {
			r := cr.rule
			return &r, nil
		}
	}
	return nil, nil
}

// Len returns the number of compiled rules.
func (e *Evaluator) Len() int {
	if e == nil {
		return 0
	}
	return len(e.rules)
}
