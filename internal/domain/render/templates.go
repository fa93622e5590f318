package render

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/koraprotocol/kora-mcp/internal/domain/verdict"
)

// BudgetWindow is one budget window (daily or monthly) as reported by the
// authority.
type BudgetWindow struct {
	LimitCents     int64  `json:"limit_cents"`
	SpentCents     int64  `json:"spent_cents"`
	RemainingCents int64  `json:"remaining_cents"`
	ResetsAt       string `json:"resets_at"`
}

// TimeWindowView describes the mandate's allowed spending hours.
type TimeWindowView struct {
	CurrentlyOpen     bool `json:"currently_open"`
	AllowedHoursLocal struct {
		End string `json:"end"`
	} `json:"allowed_hours_local"`
	NextOpenAt string `json:"next_open_at"`
}

// BudgetView is the authority's budget response as consumed by the budget
// template. Nil slices mean unrestricted.
type BudgetView struct {
	Currency               string          `json:"currency"`
	Status                 string          `json:"status"`
	Daily                  BudgetWindow    `json:"daily"`
	Monthly                BudgetWindow    `json:"monthly"`
	PerTransactionMaxCents *int64          `json:"per_transaction_max_cents"`
	AllowedVendors         []string        `json:"allowed_vendors"`
	AllowedCategories      []string        `json:"allowed_categories"`
	TimeWindow             *TimeWindowView `json:"time_window"`
}

// ComputeDailyPercent returns daily usage as an integer percentage.
func ComputeDailyPercent(spentCents, limitCents int64) int {
	if limitCents <= 0 {
		return 0
	}
	return int(math.Round(float64(spentCents) / float64(limitCents) * 100))
}

// Budget renders the budget check result.
func Budget(b *BudgetView, now time.Time) string {
	amt := func(cents int64) string { return FormatAmount(cents, b.Currency) }

	if b.Status == "suspended" {
		return strings.Join([]string{
			"⚠️ This mandate is SUSPENDED. Spending is not currently allowed.",
			"",
			"Budget (if reactivated):",
			fmt.Sprintf("• Daily: %s remaining of %s", amt(b.Daily.RemainingCents), amt(b.Daily.LimitCents)),
			fmt.Sprintf("• Monthly: %s remaining of %s", amt(b.Monthly.RemainingCents), amt(b.Monthly.LimitCents)),
			"",
			"Contact your administrator to reactivate.",
		}, "\n")
	}

	lines := []string{"Your current spending budget:"}
	lines = append(lines, fmt.Sprintf("• Daily: %s remaining of %s (resets %s)",
		amt(b.Daily.RemainingCents), amt(b.Daily.LimitCents), FormatRelative(b.Daily.ResetsAt, now)))
	lines = append(lines, fmt.Sprintf("• Daily usage: %d%% (%s of %s)",
		ComputeDailyPercent(b.Daily.SpentCents, b.Daily.LimitCents), amt(b.Daily.SpentCents), amt(b.Daily.LimitCents)))
	lines = append(lines, fmt.Sprintf("• Monthly: %s remaining of %s (resets %s)",
		amt(b.Monthly.RemainingCents), amt(b.Monthly.LimitCents), FormatRelative(b.Monthly.ResetsAt, now)))

	if b.PerTransactionMaxCents != nil {
		lines = append(lines, fmt.Sprintf("• Per transaction max: %s", amt(*b.PerTransactionMaxCents)))
	}

	if b.AllowedVendors != nil {
		lines = append(lines, fmt.Sprintf("• Allowed vendors: %s", strings.Join(b.AllowedVendors, ", ")))
	} else {
		lines = append(lines, "• Vendors: unrestricted")
	}

	if b.AllowedCategories != nil {
		lines = append(lines, fmt.Sprintf("• Allowed categories: %s", strings.Join(b.AllowedCategories, ", ")))
	}

	if tw := b.TimeWindow; tw != nil {
		if tw.CurrentlyOpen {
			lines = append(lines, fmt.Sprintf("• Spending window: Open now. Closes at %s today.", tw.AllowedHoursLocal.End))
		} else if tw.NextOpenAt != "" {
			lines = append(lines, fmt.Sprintf("• Spending window: CLOSED. Opens %s.", FormatRelative(tw.NextOpenAt, now)))
		} else {
			lines = append(lines, "• Spending window: CLOSED.")
		}
	}

	return strings.Join(lines, "\n")
}

// BudgetError renders the budget not-found case (revoked or unknown mandate).
func BudgetError() string {
	return "❌ Budget information unavailable. This mandate may not exist or may have been revoked."
}

// SpendApproved renders an approved spend verdict. The seal is echoed
// exactly as received.
func SpendApproved(v verdict.Verdict, vendor string, amountCents int64, currency, reason string) string {
	lines := []string{
		fmt.Sprintf("✅ APPROVED — %s to %s", FormatAmount(amountCents, currency), vendor),
		fmt.Sprintf("Reason: %s", reason),
		fmt.Sprintf("Decision: %s", v.DecisionID),
		fmt.Sprintf("Seal: %s", v.Seal),
	}

	if remaining, ok := dailyRemaining(v); ok {
		lines = append(lines, fmt.Sprintf("Daily remaining: %s", FormatAmount(remaining, currency)))
	}

	return strings.Join(lines, "\n")
}

// SpendDenied renders a denied spend verdict.
func SpendDenied(v verdict.Verdict, vendor string, amountCents int64, currency string) string {
	lines := []string{
		fmt.Sprintf("❌ DENIED — Cannot spend %s on %s", FormatAmount(amountCents, currency), vendor),
		fmt.Sprintf("Reason: %s", v.Reason),
	}

	if v.Hint != "" {
		lines = append(lines, fmt.Sprintf("Suggestion: %s", v.Hint))
	}

	if v.AvailableCents != nil && *v.AvailableCents > 0 {
		lines = append(lines, fmt.Sprintf("You could retry with %s or less.", FormatAmount(*v.AvailableCents, currency)))
	}

	return strings.Join(lines, "\n")
}

// SpendUnavailable renders the fail-closed message for an unreachable or
// misbehaving authority.
func SpendUnavailable(cause string) string {
	return strings.Join([]string{
		fmt.Sprintf("❌ AUTHORIZATION UNAVAILABLE — Kora returned %s", cause),
		"⚠️ You MUST NOT proceed with this payment.",
		"No authorization = No payment. This is a safety requirement.",
		"Try again later or call kora_health to check service status.",
	}, "\n")
}

// ActivityItem is one past authorization decision.
type ActivityItem struct {
	Decision    string `json:"decision"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	VendorID    string `json:"vendor_id"`
	Purpose     string `json:"purpose"`
	ReasonCode  string `json:"reason_code"`
	EvaluatedAt string `json:"evaluated_at"`
}

// RecentActivity renders past authorization decisions with a today summary.
func RecentActivity(items []ActivityItem, now time.Time) string {
	if len(items) == 0 {
		return "No recent spending activity found."
	}

	lines := []string{fmt.Sprintf("Recent spending activity (last %d):", len(items))}

	var todayApprovedCents int64
	var todayDeniedCount int
	ny, nm, nd := now.Date()

	for i, item := range items {
		currency := item.Currency
		if currency == "" {
			currency = "EUR"
		}
		vendor := item.VendorID
		if vendor == "" {
			vendor = "unknown"
		}

		amount := FormatAmount(item.AmountCents, currency)
		relTime := ""
		if item.EvaluatedAt != "" {
			relTime = FormatRelative(item.EvaluatedAt, now)
		}

		if strings.EqualFold(item.Decision, "APPROVED") {
			purpose := ""
			if item.Purpose != "" {
				purpose = fmt.Sprintf("(%s)", item.Purpose)
			}
			lines = append(lines, fmt.Sprintf("%d. ✅ %s → %s %s — %s", i+1, amount, vendor, purpose, relTime))
		} else {
			lines = append(lines, fmt.Sprintf("%d. ❌ %s → %s (DENIED: %s) — %s", i+1, amount, vendor, item.ReasonCode, relTime))
		}

		if t, err := time.Parse(time.RFC3339, item.EvaluatedAt); err == nil {
			ty, tm, td := t.Date()
			if ty == ny && tm == nm && td == nd {
				if strings.EqualFold(item.Decision, "APPROVED") {
					todayApprovedCents += item.AmountCents
				} else {
					todayDeniedCount++
				}
			}
		}
	}

	summaryCurrency := items[0].Currency
	if summaryCurrency == "" {
		summaryCurrency = "EUR"
	}
	lines = append(lines, "", fmt.Sprintf("Today's total: %s approved, %d denied",
		FormatAmount(todayApprovedCents, summaryCurrency), todayDeniedCount))

	return strings.Join(lines, "\n")
}

// NoAdminKey renders the message for recent activity without an admin key.
func NoAdminKey() string {
	return "Recent activity is not available. An admin key is required for this feature."
}

// HealthOK renders a reachable authority.
func HealthOK(version, database string, uptimeSeconds float64) string {
	return strings.Join([]string{
		"✅ Kora is operational",
		fmt.Sprintf("Version: %s", version),
		fmt.Sprintf("Database: %s", database),
		fmt.Sprintf("Uptime: %s", FormatUptime(uptimeSeconds)),
	}, "\n")
}

// HealthUnavailable renders an unreachable or unhealthy authority.
func HealthUnavailable(cause string) string {
	return strings.Join([]string{
		"❌ Kora is unavailable",
		fmt.Sprintf("Status: %s", cause),
		"⚠️ All spending requests will fail. Do NOT attempt any payments until Kora is available.",
	}, "\n")
}

// AuditDetails carries optional change metadata on an audit entry.
type AuditDetails struct {
	ChangedFields []string `json:"changed_fields"`
	Reason        string   `json:"reason"`
}

// AuditEntry is one admin action on the mandate.
type AuditEntry struct {
	Action       string       `json:"action"`
	TargetType   string       `json:"target_type"`
	TargetID     string       `json:"target_id"`
	PerformedAt  string       `json:"performed_at"`
	AdminKeyHash string       `json:"admin_key_hash"`
	Details      AuditDetails `json:"details"`
}

// AuditLog renders admin audit entries.
func AuditLog(entries []AuditEntry, now time.Time) string {
	if len(entries) == 0 {
		return AuditEmpty()
	}

	lines := []string{fmt.Sprintf("Recent admin actions (%d):", len(entries))}

	for i, e := range entries {
		relTime := ""
		if e.PerformedAt != "" {
			relTime = FormatRelative(e.PerformedAt, now)
		}
		suffix := "unknown"
		if e.AdminKeyHash != "" {
			suffix = e.AdminKeyHash
			if len(suffix) > 8 {
				suffix = suffix[len(suffix)-8:]
			}
		}

		lines = append(lines, fmt.Sprintf("%d. %s on %s/%s — %s", i+1, orUnknown(e.Action), orUnknown(e.TargetType), orUnknown(e.TargetID), relTime))
		lines = append(lines, fmt.Sprintf("   By: admin key ...%s", suffix))

		if len(e.Details.ChangedFields) > 0 {
			lines = append(lines, fmt.Sprintf("   Changed: %s", strings.Join(e.Details.ChangedFields, ", ")))
		}
		if e.Details.Reason != "" {
			lines = append(lines, fmt.Sprintf("   Reason: %s", e.Details.Reason))
		}
	}

	return strings.Join(lines, "\n")
}

// AuditEmpty renders an empty audit log.
func AuditEmpty() string {
	return "No admin actions found for this mandate."
}

// AuditNoAdminKey renders the message for audit without an admin key.
func AuditNoAdminKey() string {
	return "Audit log is not available. An admin key is required for this feature.\n" +
		"Configure KORA_ADMIN_KEY in MCP server settings."
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// dailyRemaining extracts daily_remaining_cents from an approved verdict's
// post-approval limits, when present.
func dailyRemaining(v verdict.Verdict) (int64, bool) {
	if len(v.LimitsAfter) == 0 {
		return 0, false
	}
	var limits struct {
		DailyRemainingCents *int64 `json:"daily_remaining_cents"`
	}
	if err := json.Unmarshal(v.LimitsAfter, &limits); err != nil || limits.DailyRemainingCents == nil {
		return 0, false
	}
	return *limits.DailyRemainingCents, true
}
