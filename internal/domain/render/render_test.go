package render

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/koraprotocol/kora-mcp/internal/domain/verdict"
)

func TestFormatAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		cents    int64
		currency string
		want     string
	}{
		{12000, "EUR", "€120.00"},
		{50, "USD", "$0.50"},
		{99, "GBP", "£0.99"},
		{1234, "JPY", "JPY 12.34"},
		{0, "EUR", "€0.00"},
	}

	for _, tt := range tests {
		if got := FormatAmount(tt.cents, tt.currency); got != tt.want {
			t.Errorf("FormatAmount(%d, %q) = %q, want %q", tt.cents, tt.currency, got, tt.want)
		}
	}
}

func TestComputeDailyPercent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		spent, limit int64
		want         int
	}{
		{0, 10000, 0},
		{5000, 10000, 50},
		{3333, 10000, 33},
		{6666, 10000, 67}, // rounds, not truncates
		{10000, 10000, 100},
		{5000, 0, 0}, // no limit means no percentage
	}

	for _, tt := range tests {
		if got := ComputeDailyPercent(tt.spent, tt.limit); got != tt.want {
			t.Errorf("ComputeDailyPercent(%d, %d) = %d, want %d", tt.spent, tt.limit, got, tt.want)
		}
	}
}

func TestFormatUptime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		seconds float64
		want    string
	}{
		{45, "45 seconds"},
		{120, "2 minutes"},
		{7200, "2 hours"},
		{172800, "2 days"},
	}

	for _, tt := range tests {
		if got := FormatUptime(tt.seconds); got != tt.want {
			t.Errorf("FormatUptime(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestFormatRelative(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC) // a Monday

	tests := []struct {
		name string
		iso  string
		want string
	}{
		{"today", "2026-03-09T23:59:00Z", "today at 23:59"},
		{"tomorrow", "2026-03-10T08:00:00Z", "tomorrow at 08:00"},
		{"weekday within a week", "2026-03-12T14:30:00Z", "Thursday at 14:30"},
		{"beyond a week", "2026-03-20T09:00:00Z", "on 2026-03-20 at 09:00"},
		{"unparseable passes through", "not-a-date", "not-a-date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := FormatRelative(tt.iso, now); got != tt.want {
				t.Errorf("FormatRelative(%q) = %q, want %q", tt.iso, got, tt.want)
			}
		})
	}
}

func TestSpendApproved_EchoesSealExactly(t *testing.T) {
	t.Parallel()

	const seal = "qQ3vN8sR1wZ5yC4mB6jExL9fA3kQ7T0v"
	v := verdict.Approved(seal, "d-42", json.RawMessage(`{"daily_remaining_cents":4200}`))

	got := SpendApproved(v, "amazon.com", 1500, "EUR", "office supplies")

	if !strings.Contains(got, "✅ APPROVED") {
		t.Errorf("missing approval marker in %q", got)
	}
	if !strings.Contains(got, "Seal: "+seal) {
		t.Errorf("seal must be echoed byte for byte, got %q", got)
	}
	if !strings.Contains(got, "Decision: d-42") {
		t.Errorf("missing decision id in %q", got)
	}
	if !strings.Contains(got, "Daily remaining: €42.00") {
		t.Errorf("missing daily remaining in %q", got)
	}
	if !strings.Contains(got, "€15.00") {
		t.Errorf("missing amount in %q", got)
	}
}

func TestSpendDenied(t *testing.T) {
	t.Parallel()

	available := int64(2500)
	v := verdict.Denied("daily limit exceeded", "wait until tomorrow")
	v.AvailableCents = &available

	got := SpendDenied(v, "aws.amazon.com", 120000, "USD")

	if !strings.Contains(got, "❌ DENIED") {
		t.Errorf("missing denial marker in %q", got)
	}
	if !strings.Contains(got, "Cannot spend $1200.00 on aws.amazon.com") {
		t.Errorf("missing amount/vendor line in %q", got)
	}
	if !strings.Contains(got, "Reason: daily limit exceeded") {
		t.Errorf("missing reason in %q", got)
	}
	if !strings.Contains(got, "Suggestion: wait until tomorrow") {
		t.Errorf("missing hint in %q", got)
	}
	if !strings.Contains(got, "retry with $25.00 or less") {
		t.Errorf("missing retry amount in %q", got)
	}
}

func TestSpendUnavailable_FailClosedText(t *testing.T) {
	t.Parallel()

	got := SpendUnavailable("timeout")

	if !strings.Contains(got, "AUTHORIZATION UNAVAILABLE") {
		t.Errorf("missing unavailable marker in %q", got)
	}
	if !strings.Contains(got, "timeout") {
		t.Errorf("missing cause in %q", got)
	}
	if !strings.Contains(got, "MUST NOT proceed") {
		t.Errorf("missing fail-closed instruction in %q", got)
	}
}

func TestBudget_Active(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	perTx := int64(5000)
	view := &BudgetView{
		Currency: "EUR",
		Status:   "active",
		Daily: BudgetWindow{
			LimitCents: 10000, SpentCents: 2500, RemainingCents: 7500,
			ResetsAt: "2026-03-10T00:00:00Z",
		},
		Monthly: BudgetWindow{
			LimitCents: 100000, SpentCents: 40000, RemainingCents: 60000,
			ResetsAt: "2026-04-01T00:00:00Z",
		},
		PerTransactionMaxCents: &perTx,
		AllowedVendors:         []string{"amazon.com", "openai.com"},
	}

	got := Budget(view, now)

	for _, want := range []string{
		"• Daily: €75.00 remaining of €100.00 (resets tomorrow at 00:00)",
		"• Daily usage: 25% (€25.00 of €100.00)",
		"• Monthly: €600.00 remaining of €1000.00",
		"• Per transaction max: €50.00",
		"• Allowed vendors: amazon.com, openai.com",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Budget output missing %q:\n%s", want, got)
		}
	}
}

func TestBudget_Suspended(t *testing.T) {
	t.Parallel()

	view := &BudgetView{
		Currency: "EUR",
		Status:   "suspended",
		Daily:    BudgetWindow{LimitCents: 10000, RemainingCents: 10000},
		Monthly:  BudgetWindow{LimitCents: 100000, RemainingCents: 100000},
	}

	got := Budget(view, time.Now())
	if !strings.Contains(got, "SUSPENDED") {
		t.Errorf("missing suspension marker in %q", got)
	}
	if !strings.Contains(got, "Contact your administrator") {
		t.Errorf("missing administrator line in %q", got)
	}
}

func TestBudget_UnrestrictedVendors(t *testing.T) {
	t.Parallel()

	view := &BudgetView{Currency: "EUR", Status: "active"}
	got := Budget(view, time.Now())
	if !strings.Contains(got, "• Vendors: unrestricted") {
		t.Errorf("nil vendor list should render unrestricted, got %q", got)
	}
}

func TestRecentActivity(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 9, 18, 0, 0, 0, time.UTC)
	items := []ActivityItem{
		{Decision: "APPROVED", AmountCents: 1500, Currency: "EUR", VendorID: "amazon.com",
			Purpose: "office supplies", EvaluatedAt: "2026-03-09T10:00:00Z"},
		{Decision: "DENIED", AmountCents: 99000, Currency: "EUR", VendorID: "apple.com",
			ReasonCode: "DAILY_LIMIT", EvaluatedAt: "2026-03-09T12:00:00Z"},
		{Decision: "APPROVED", AmountCents: 2000, Currency: "EUR", VendorID: "openai.com",
			EvaluatedAt: "2026-03-08T12:00:00Z"}, // yesterday, excluded from today's total
	}

	got := RecentActivity(items, now)

	if !strings.Contains(got, "Recent spending activity (last 3):") {
		t.Errorf("missing header in %q", got)
	}
	if !strings.Contains(got, "1. ✅ €15.00 → amazon.com (office supplies)") {
		t.Errorf("missing approved line in %q", got)
	}
	if !strings.Contains(got, "2. ❌ €990.00 → apple.com (DENIED: DAILY_LIMIT)") {
		t.Errorf("missing denied line in %q", got)
	}
	if !strings.Contains(got, "Today's total: €15.00 approved, 1 denied") {
		t.Errorf("today's total should only count today, got %q", got)
	}
}

func TestRecentActivity_Empty(t *testing.T) {
	t.Parallel()

	if got := RecentActivity(nil, time.Now()); got != "No recent spending activity found." {
		t.Errorf("empty activity = %q", got)
	}
}

func TestAuditLog(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 9, 18, 0, 0, 0, time.UTC)
	entries := []AuditEntry{
		{
			Action: "mandate.update", TargetType: "mandate", TargetID: "mandate_abc",
			PerformedAt: "2026-03-09T09:00:00Z", AdminKeyHash: "sha256:0123456789abcdef",
			Details: AuditDetails{ChangedFields: []string{"daily_limit_cents"}, Reason: "quarterly raise"},
		},
	}

	got := AuditLog(entries, now)

	if !strings.Contains(got, "Recent admin actions (1):") {
		t.Errorf("missing header in %q", got)
	}
	if !strings.Contains(got, "mandate.update on mandate/mandate_abc") {
		t.Errorf("missing action line in %q", got)
	}
	if !strings.Contains(got, "By: admin key ...89abcdef") {
		t.Errorf("admin key should show only the last 8 chars, got %q", got)
	}
	if !strings.Contains(got, "Changed: daily_limit_cents") {
		t.Errorf("missing changed fields in %q", got)
	}
	if !strings.Contains(got, "Reason: quarterly raise") {
		t.Errorf("missing reason in %q", got)
	}
}

func TestAuditLog_Empty(t *testing.T) {
	t.Parallel()

	if got := AuditLog(nil, time.Now()); got != AuditEmpty() {
		t.Errorf("empty audit = %q", got)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	up := HealthOK("1.4.2", "connected", 176400)
	for _, want := range []string{"✅ Kora is operational", "Version: 1.4.2", "Database: connected", "Uptime: 2 days"} {
		if !strings.Contains(up, want) {
			t.Errorf("HealthOK missing %q:\n%s", want, up)
		}
	}

	down := HealthUnavailable("HTTP 503")
	for _, want := range []string{"❌ Kora is unavailable", "Status: HTTP 503", "Do NOT attempt any payments"} {
		if !strings.Contains(down, want) {
			t.Errorf("HealthUnavailable missing %q:\n%s", want, down)
		}
	}
}

// All templates are pure functions of their inputs: rendering twice must
// produce identical bytes.
func TestTemplates_Deterministic(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 9, 18, 0, 0, 0, time.UTC)
	v := verdict.Approved("c2VhbA==", "d-1", nil)

	if SpendApproved(v, "a", 1, "EUR", "r") != SpendApproved(v, "a", 1, "EUR", "r") {
		t.Error("SpendApproved is not deterministic")
	}
	items := []ActivityItem{{Decision: "APPROVED", AmountCents: 1, Currency: "EUR", EvaluatedAt: "2026-03-09T10:00:00Z"}}
	if RecentActivity(items, now) != RecentActivity(items, now) {
		t.Error("RecentActivity is not deterministic")
	}
}
