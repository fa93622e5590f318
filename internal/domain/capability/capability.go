// Package capability defines the relay's capability surface and the
// credential tier each capability requires. The tier model is a lookup
// table, checked before any request object is built.
package capability

// Capability names one invocable operation on the tool surface.
type Capability string

const (
	// Spend requests authorization to spend money.
	Spend Capability = "spend"
	// CheckBudget queries remaining limits for the mandate.
	CheckBudget Capability = "check_budget"
	// RecentActivity lists past authorization decisions.
	RecentActivity Capability = "recent_activity"
	// Audit lists admin actions on the mandate.
	Audit Capability = "audit"
	// Health checks authority reachability.
	Health Capability = "health"
)

// Tier is the credential kind a capability requires.
type Tier int

const (
	// TierNone requires no credential.
	TierNone Tier = iota
	// TierAgent requires the agent signing key and mandate.
	TierAgent
	// TierAdmin requires the admin bearer key.
	TierAdmin
)

// String returns the tier name.
func (t Tier) String() string {
	switch t {
	case TierAgent:
		return "agent"
	case TierAdmin:
		return "admin"
	default:
		return "none"
	}
}

var requiredTier = map[Capability]Tier{
	Spend:          TierAgent,
	CheckBudget:    TierAgent,
	RecentActivity: TierAdmin,
	Audit:          TierAdmin,
	Health:         TierNone,
}

// Required returns the credential tier the capability demands. Unknown
// capabilities require the admin tier so nothing unexpected slips through.
func Required(c Capability) Tier {
	if t, ok := requiredTier[c]; ok {
		return t
	}
	return TierAdmin
}

// Retryable reports whether transport attempts for the capability may be
// repeated. Read-style capabilities are safe to retry; spend is not, since
// the relay cannot assume the authority deduplicates nonces server-side and
// a replayed authorize must never double-authorize.
func Retryable(c Capability) bool {
	return c != Spend
}
