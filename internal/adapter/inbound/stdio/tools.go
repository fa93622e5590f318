package stdio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/koraprotocol/kora-mcp/internal/adapter/outbound/authority"
	"github.com/koraprotocol/kora-mcp/internal/domain/render"
	"github.com/koraprotocol/kora-mcp/internal/domain/verdict"
	"github.com/koraprotocol/kora-mcp/internal/service"
	"github.com/koraprotocol/kora-mcp/pkg/mcp"
)

// toolCatalog lists the five Kora tools in the order tools/list reports
// them.
var toolCatalog = []mcp.Tool{
	{
		Name:        "kora_check_budget",
		Description: "Check how much money you are allowed to spend. Call this BEFORE attempting any purchase.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{},"additionalProperties":false}`),
	},
	{
		Name:        "kora_spend",
		Description: "Request authorization to spend money. You MUST call this before making any purchase.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"vendor": {"type": "string", "description": "Vendor identifier, e.g. amazon.com"},
				"amount_cents": {"type": "integer", "description": "Amount in cents", "minimum": 1},
				"currency": {"type": "string", "description": "ISO 4217 currency code, e.g. EUR"},
				"reason": {"type": "string", "description": "What the purchase is for"}
			},
			"required": ["vendor", "amount_cents", "currency", "reason"]
		}`),
	},
	{
		Name:        "kora_recent_activity",
		Description: "View your recent spending activity.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"limit": {"type": "integer", "description": "Number of entries to return", "minimum": 1, "maximum": 20, "default": 5}
			}
		}`),
	},
	{
		Name:        "kora_health",
		Description: "Check if Kora authorization service is available. Call this if you get errors from other Kora tools.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{},"additionalProperties":false}`),
	},
	{
		Name:        "kora_audit",
		Description: "View recent admin actions on this mandate. Requires admin key.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"limit": {"type": "integer", "description": "Number of entries to return", "minimum": 1, "maximum": 50, "default": 10},
				"action": {"type": "string", "description": "Filter by action type"}
			}
		}`),
	},
}

// toolHandler executes one tool call and always produces a result, even for
// failures: tool-level problems are reported through isError results, never
// as protocol errors.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) mcp.CallToolResult

var toolHandlers = map[string]toolHandler{
	"kora_check_budget":    handleCheckBudget,
	"kora_spend":           handleSpend,
	"kora_recent_activity": handleRecentActivity,
	"kora_health":          handleHealth,
	"kora_audit":           handleAudit,
}

func handleSpend(ctx context.Context, s *Server, args json.RawMessage) mcp.CallToolResult {
	var in struct {
		Vendor      string `json:"vendor"`
		AmountCents int64  `json:"amount_cents"`
		Currency    string `json:"currency"`
		Reason      string `json:"reason"`
	}
	if err := unmarshalArgs(args, &in); err != nil {
		return mcp.TextResult(fmt.Sprintf("❌ Error: invalid arguments: %v", err), true)
	}
	if in.Vendor == "" || in.Currency == "" || in.Reason == "" {
		return mcp.TextResult("❌ Error: vendor, amount_cents, currency and reason are all required.", true)
	}
	if in.AmountCents <= 0 {
		return mcp.TextResult("❌ Error: amount_cents must be a positive integer.", true)
	}

	v, err := s.relay.Spend(ctx, service.SpendInput{
		Vendor:      in.Vendor,
		AmountCents: in.AmountCents,
		Currency:    in.Currency,
		Reason:      in.Reason,
	})
	if err != nil {
		return credentialResult(err)
	}

	switch {
	case v.IsApproved():
		s.metrics.recordVerdict("approved")
		return mcp.TextResult(render.SpendApproved(v, in.Vendor, in.AmountCents, in.Currency, in.Reason), false)
	case v.Reason == verdict.UnavailableReason:
		s.metrics.recordVerdict("unavailable")
		return mcp.TextResult(render.SpendUnavailable(v.Cause), false)
	default:
		s.metrics.recordVerdict("denied")
		return mcp.TextResult(render.SpendDenied(v, in.Vendor, in.AmountCents, in.Currency), false)
	}
}

func handleCheckBudget(ctx context.Context, s *Server, _ json.RawMessage) mcp.CallToolResult {
	view, err := s.relay.CheckBudget(ctx)
	if err != nil {
		var te *authority.TransportError
		switch {
		case errors.As(err, &te):
			if te.Kind == authority.KindHTTPError && te.Status < 500 {
				// Unknown or revoked mandate.
				return mcp.TextResult(render.BudgetError(), false)
			}
			return mcp.TextResult(render.HealthUnavailable(te.Cause()), false)
		default:
			return credentialResult(err)
		}
	}
	return mcp.TextResult(render.Budget(view, s.now()), false)
}

func handleRecentActivity(ctx context.Context, s *Server, args json.RawMessage) mcp.CallToolResult {
	var in struct {
		Limit int `json:"limit"`
	}
	if err := unmarshalArgs(args, &in); err != nil {
		return mcp.TextResult(fmt.Sprintf("❌ Error: invalid arguments: %v", err), true)
	}

	items, err := s.relay.RecentActivity(ctx, in.Limit)
	if err != nil {
		if errors.Is(err, service.ErrAuthorizationTier) {
			return mcp.TextResult(render.NoAdminKey(), false)
		}
		var te *authority.TransportError
		if errors.As(err, &te) {
			if te.Kind == authority.KindHTTPError {
				return mcp.TextResult(fmt.Sprintf("Error fetching recent activity: HTTP %d", te.Status), true)
			}
			return mcp.TextResult(render.HealthUnavailable(te.Cause()), false)
		}
		return credentialResult(err)
	}
	return mcp.TextResult(render.RecentActivity(items, s.now()), false)
}

func handleHealth(ctx context.Context, s *Server, _ json.RawMessage) mcp.CallToolResult {
	st, err := s.relay.Health(ctx)
	if err != nil {
		// Only caller cancellation reaches here; the response is dropped.
		return mcp.TextResult(render.HealthUnavailable("cancelled"), false)
	}
	if !st.Up {
		return mcp.TextResult(render.HealthUnavailable(st.Cause), false)
	}
	return mcp.TextResult(render.HealthOK(st.Version, st.Database, st.UptimeSeconds), false)
}

func handleAudit(ctx context.Context, s *Server, args json.RawMessage) mcp.CallToolResult {
	var in struct {
		Limit  int    `json:"limit"`
		Action string `json:"action"`
	}
	if err := unmarshalArgs(args, &in); err != nil {
		return mcp.TextResult(fmt.Sprintf("❌ Error: invalid arguments: %v", err), true)
	}

	entries, err := s.relay.AuditTrail(ctx, in.Limit, in.Action)
	if err != nil {
		if errors.Is(err, service.ErrAuthorizationTier) {
			return mcp.TextResult(render.AuditNoAdminKey(), false)
		}
		var te *authority.TransportError
		if errors.As(err, &te) {
			if te.Kind == authority.KindHTTPError {
				return mcp.TextResult(fmt.Sprintf("Error fetching audit log: HTTP %d", te.Status), true)
			}
			return mcp.TextResult(render.HealthUnavailable(te.Cause()), false)
		}
		return credentialResult(err)
	}
	return mcp.TextResult(render.AuditLog(entries, s.now()), false)
}

// credentialResult renders configuration problems as tool errors the agent
// can surface to its operator.
func credentialResult(err error) mcp.CallToolResult {
	if errors.Is(err, service.ErrConfiguration) {
		return mcp.TextResult(
			"❌ Error: agent credentials are not configured. Set KORA_AGENT_SECRET and KORA_MANDATE in the MCP server settings.",
			true)
	}
	return mcp.TextResult(fmt.Sprintf("❌ Error: %v", err), true)
}

// unmarshalArgs tolerates absent arguments.
func unmarshalArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	return json.Unmarshal(args, v)
}
