// Package service implements the relay pipeline between tool calls and the
// Kora authority: tier checks, local guard rules, request signing, dispatch,
// and fail-closed verdict finalization.
package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/koraprotocol/kora-mcp/internal/adapter/outbound/authority"
	"github.com/koraprotocol/kora-mcp/internal/domain/capability"
	"github.com/koraprotocol/kora-mcp/internal/domain/guard"
	"github.com/koraprotocol/kora-mcp/internal/domain/identity"
	"github.com/koraprotocol/kora-mcp/internal/domain/render"
	"github.com/koraprotocol/kora-mcp/internal/domain/verdict"
)

// spendTTLSeconds is the authorization intent lifetime the agent commits to
// in the signed fields.
const spendTTLSeconds = 300

// Limit bounds for the read capabilities.
const (
	activityLimitDefault = 5
	activityLimitMax     = 20
	auditLimitDefault    = 10
	auditLimitMax        = 50
)

// Relay coordinates the tool-call pipeline. The identity is nil when no
// agent key is configured; capabilities that need it fail before any
// network traffic.
type Relay struct {
	id        *identity.Identity
	mandateID string
	adminKey  string
	authority *authority.Client
	guard     *guard.Evaluator
	logger    *slog.Logger
}

// RelayOption configures optional Relay collaborators.
type RelayOption func(*Relay)

// WithGuard installs compiled local guard rules.
func WithGuard(e *guard.Evaluator) RelayOption {
	return func(r *Relay) { r.guard = e }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) RelayOption {
	return func(r *Relay) { r.logger = l }
}

// WithAdminKey sets the admin bearer key for admin-tier capabilities.
func WithAdminKey(key string) RelayOption {
	return func(r *Relay) { r.adminKey = key }
}

// NewRelay builds a Relay. id may be nil when the agent key is absent.
func NewRelay(id *identity.Identity, mandateID string, client *authority.Client, opts ...RelayOption) *Relay {
	r := &Relay{
		id:        id,
		mandateID: mandateID,
		authority: client,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// requireTier checks the caller holds the credential tier the capability
// needs. It never touches the network.
func (r *Relay) requireTier(c capability.Capability) error {
	switch capability.Required(c) {
	case capability.TierAgent:
		if r.id == nil {
			return &ConfigurationError{Setting: "agent secret"}
		}
	case capability.TierAdmin:
		if r.adminKey == "" {
			return &TierError{Capability: c, Required: capability.TierAdmin}
		}
	}
	return nil
}

// SpendInput is a spend authorization request as received from the agent.
type SpendInput struct {
	Vendor      string
	AmountCents int64
	Currency    string
	Reason      string
}

// Spend runs the full authorization pipeline for one spend request and
// always returns a final verdict: Approved or Denied, never Indeterminate.
// The returned error is reserved for pre-flight failures (missing
// credentials) and caller cancellation.
func (r *Relay) Spend(ctx context.Context, in SpendInput) (verdict.Verdict, error) {
	if err := r.requireTier(capability.Spend); err != nil {
		return verdict.Verdict{}, err
	}

	if rule, err := r.guard.Check(ctx, guard.Facts{
		Vendor:      in.Vendor,
		AmountCents: in.AmountCents,
		Currency:    in.Currency,
		Reason:      in.Reason,
	}); rule != nil {
		if err != nil {
			r.logger.Warn("guard rule evaluation failed, denying",
				slog.String("rule", rule.Name), slog.Any("error", err))
		}
		msg := rule.Message
		if msg == "" {
			msg = fmt.Sprintf("blocked by local guard rule %q", rule.Name)
		}
		v := verdict.Denied(msg, "adjust the request or update the local guard rules")
		v.Cause = "guard:" + rule.Name
		r.logger.Info("spend denied locally",
			slog.String("rule", rule.Name),
			slog.String("vendor", in.Vendor),
			slog.Int64("amount_cents", in.AmountCents))
		return v, nil
	} else if err != nil {
		// Rule-less evaluator errors only on caller cancellation.
		return verdict.Verdict{}, err
	}

	intentID := uuid.NewString()
	nonce, err := newNonce()
	if err != nil {
		return verdict.Verdict{}, fmt.Errorf("generating nonce: %w", err)
	}

	signedFields := map[string]any{
		"intent_id":    intentID,
		"agent_id":     r.id.AgentID,
		"mandate_id":   r.mandateID,
		"amount_cents": in.AmountCents,
		"currency":     in.Currency,
		"vendor_id":    in.Vendor,
		"nonce":        nonce,
		"ttl_seconds":  spendTTLSeconds,
	}
	body := map[string]any{
		"intent_id":    intentID,
		"agent_id":     r.id.AgentID,
		"mandate_id":   r.mandateID,
		"amount_cents": in.AmountCents,
		"currency":     in.Currency,
		"vendor_id":    in.Vendor,
		"nonce":        nonce,
		"ttl_seconds":  spendTTLSeconds,
		"purpose":      in.Reason,
	}

	env, err := r.id.Sign(signedFields, body)
	if err != nil {
		return verdict.Verdict{}, fmt.Errorf("signing spend request: %w", err)
	}

	raw, err := r.authority.Authorize(ctx, env)
	if err != nil {
		if v, handled := r.transportVerdict(ctx, err, intentID); handled {
			return v, nil
		}
		return verdict.Verdict{}, err
	}

	v := verdict.Finalize(verdict.Interpret(raw))
	r.logger.Info("spend verdict",
		slog.String("intent_id", intentID),
		slog.String("status", string(v.Status)),
		slog.String("key", r.id.Fingerprint()))
	return v, nil
}

// transportVerdict converts a dispatch failure into a final denial. Caller
// cancellation is not a verdict and passes through.
func (r *Relay) transportVerdict(ctx context.Context, err error, intentID string) (verdict.Verdict, bool) {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return verdict.Verdict{}, false
	}

	cause := "connection error"
	var te *authority.TransportError
	if errors.As(err, &te) {
		cause = te.Cause()
	}

	v := verdict.Finalize(verdict.Indeterminate(cause))
	r.logger.Warn("authority unavailable, spend denied",
		slog.String("intent_id", intentID),
		slog.String("cause", cause))
	return v, true
}

// CheckBudget fetches the mandate's budget state. Transport failures are
// returned as *authority.TransportError for the caller to render.
func (r *Relay) CheckBudget(ctx context.Context) (*render.BudgetView, error) {
	if err := r.requireTier(capability.CheckBudget); err != nil {
		return nil, err
	}

	body := map[string]any{"mandate_id": r.mandateID}
	env, err := r.id.Sign(body, body)
	if err != nil {
		return nil, fmt.Errorf("signing budget request: %w", err)
	}

	raw, err := r.authority.Budget(ctx, env, r.mandateID)
	if err != nil {
		return nil, err
	}

	var view render.BudgetView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, &authority.TransportError{Kind: authority.KindMalformed, Err: err}
	}
	return &view, nil
}

// RecentActivity fetches past authorization decisions. limit is clamped to
// [1, 20]; zero means the default of 5.
func (r *Relay) RecentActivity(ctx context.Context, limit int) ([]render.ActivityItem, error) {
	if err := r.requireTier(capability.RecentActivity); err != nil {
		return nil, err
	}
	limit = clampLimit(limit, activityLimitDefault, activityLimitMax)

	agentID := ""
	if r.id != nil {
		agentID = r.id.AgentID
	}

	raw, err := r.authority.Activity(ctx, r.adminKey, agentID, r.mandateID, limit)
	if err != nil {
		return nil, err
	}

	var page struct {
		Data []render.ActivityItem `json:"data"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, &authority.TransportError{Kind: authority.KindMalformed, Err: err}
	}
	return page.Data, nil
}

// AuditTrail fetches admin actions on the mandate. limit is clamped to
// [1, 50]; zero means the default of 10. action optionally filters.
func (r *Relay) AuditTrail(ctx context.Context, limit int, action string) ([]render.AuditEntry, error) {
	if err := r.requireTier(capability.Audit); err != nil {
		return nil, err
	}
	limit = clampLimit(limit, auditLimitDefault, auditLimitMax)

	raw, err := r.authority.Audit(ctx, r.adminKey, r.mandateID, limit, action)
	if err != nil {
		return nil, err
	}

	var page struct {
		Data []render.AuditEntry `json:"data"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, &authority.TransportError{Kind: authority.KindMalformed, Err: err}
	}
	return page.Data, nil
}

// HealthStatus is the outcome of a health probe.
type HealthStatus struct {
	Up            bool
	Version       string
	Database      string
	UptimeSeconds float64
	Cause         string
}

// Health probes the authority. It never fails: an unreachable authority is
// reported as down, not as an error. Only caller cancellation is returned.
func (r *Relay) Health(ctx context.Context) (*HealthStatus, error) {
	raw, err := r.authority.Health(ctx)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return nil, err
		}
		cause := "connection error"
		var te *authority.TransportError
		if errors.As(err, &te) {
			cause = te.Cause()
		}
		return &HealthStatus{Up: false, Cause: cause}, nil
	}

	var body struct {
		Version       string  `json:"version"`
		Database      string  `json:"database"`
		UptimeSeconds float64 `json:"uptime_seconds"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return &HealthStatus{Up: false, Cause: "malformed response"}, nil
	}

	st := &HealthStatus{
		Up:            true,
		Version:       body.Version,
		Database:      body.Database,
		UptimeSeconds: body.UptimeSeconds,
	}
	if st.Version == "" {
		st.Version = "unknown"
	}
	if st.Database == "" {
		st.Database = "unknown"
	}
	return st, nil
}

func newNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func clampLimit(limit, def, max int) int {
	if limit == 0 {
		return def
	}
	if limit < 1 {
		return 1
	}
	if limit > max {
		return max
	}
	return limit
}
