package guard

import (
	"context"
	"testing"
)

func TestNewEvaluator_CompileError(t *testing.T) {
	t.Parallel()

	_, err := NewEvaluator([]Rule{
		{Name: "broken", Condition: "vendor =="},
	})
	if err == nil {
		t.Fatal("expected compile error for malformed condition")
	}
}

func TestCheck_RuleMatches(t *testing.T) {
	t.Parallel()

	ev, err := NewEvaluator([]Rule{
		{Name: "no-big-spends", Condition: "amount_cents > 10000", Message: "amounts over 100 need a human"},
		{Name: "no-crypto", Condition: `vendor == "coinbase.com"`, Message: "crypto vendors are blocked"},
	})
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}

	tests := []struct {
		name     string
		facts    Facts
		wantRule string
	}{
		{
			name:     "under limit passes",
			facts:    Facts{Vendor: "amazon.com", AmountCents: 1500, Currency: "EUR", Reason: "office supplies"},
			wantRule: "",
		},
		{
			name:     "over limit denied",
			facts:    Facts{Vendor: "amazon.com", AmountCents: 20000, Currency: "EUR", Reason: "new laptop"},
			wantRule: "no-big-spends",
		},
		{
			name:     "blocked vendor denied",
			facts:    Facts{Vendor: "coinbase.com", AmountCents: 100, Currency: "EUR", Reason: "test"},
			wantRule: "no-crypto",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rule, err := ev.Check(context.Background(), tt.facts)
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if tt.wantRule == "" {
				if rule != nil {
					t.Errorf("rule = %q, want no match", rule.Name)
				}
				return
			}
			if rule == nil || rule.Name != tt.wantRule {
				t.Errorf("rule = %v, want %q", rule, tt.wantRule)
			}
		})
	}
}

func TestCheck_NonBooleanDenies(t *testing.T) {
	t.Parallel()

	ev, err := NewEvaluator([]Rule{
		{Name: "not-a-bool", Condition: "amount_cents + 1"},
	})
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}

	rule, err := ev.Check(context.Background(), Facts{AmountCents: 1})
	if rule == nil {
		t.Fatal("a rule that cannot be evaluated must still deny")
	}
	if err == nil {
		t.Error("expected an error describing the non-boolean result")
	}
}

func TestCheck_NilEvaluator(t *testing.T) {
	t.Parallel()

	var ev *Evaluator
	rule, err := ev.Check(context.Background(), Facts{Vendor: "anything"})
	if rule != nil || err != nil {
		t.Errorf("nil evaluator should allow everything, got rule=%v err=%v", rule, err)
	}
	if ev.Len() != 0 {
		t.Errorf("Len = %d, want 0", ev.Len())
	}
}

func TestCheck_FirstMatchWins(t *testing.T) {
	t.Parallel()

	ev, err := NewEvaluator([]Rule{
		{Name: "first", Condition: "amount_cents > 0"},
		{Name: "second", Condition: "amount_cents > 0"},
	})
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}

	rule, err := ev.Check(context.Background(), Facts{AmountCents: 1})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if rule == nil || rule.Name != "first" {
		t.Errorf("rule = %v, want %q", rule, "first")
	}
}
