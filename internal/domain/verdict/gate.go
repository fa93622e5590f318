package verdict

// UnavailableReason is the fixed reason attached when an indeterminate
// outcome is downgraded to a denial.
const UnavailableReason = "authorization_unavailable"

// UnavailableHint is the fixed caller-actionable hint for downgraded
// verdicts. The agent must treat it as a hard stop.
const UnavailableHint = "authority unreachable - do not proceed; try again later or call kora_health"

// Finalize is the fail-closed gate. It is the single chokepoint every code
// path passes through before a verdict leaves the relay: Approved and Denied
// pass through unchanged, Indeterminate becomes an explicit Denied. The
// function is idempotent and total; no input can produce an implicit allow.
func Finalize(v Verdict) Verdict {
	switch v.Status {
	case StatusApproved, StatusDenied:
		return v
	default:
		out := Denied(UnavailableReason, UnavailableHint)
		out.Cause = v.Cause
		return out
	}
}
