// Package verdict defines the relay's decision model: the Verdict tagged
// union, the interpreter that parses authority responses into it, and the
// fail-closed gate that guarantees only Approved or Denied ever leaves the
// relay.
package verdict

import "encoding/json"

// Status is the tag of the Verdict union.
type Status string

const (
	// StatusApproved means the authority granted the request and supplied a seal.
	StatusApproved Status = "approved"
	// StatusDenied means the authority refused the request, or the gate
	// downgraded an indeterminate outcome.
	StatusDenied Status = "denied"
	// StatusIndeterminate means the outcome could not be established
	// (transport failure, malformed response). Never visible outside the
	// gate.
	StatusIndeterminate Status = "indeterminate"
)

// Verdict is the relay's decision. Exactly one of the three variants is
// populated, selected by Status. Callers only ever observe Approved or
// Denied; Finalize downgrades Indeterminate before a verdict is returned.
type Verdict struct {
	Status Status

	// Approved fields. Seal is the authority's opaque proof, propagated
	// byte-identical; the relay never fabricates or mutates it.
	Seal        string
	DecisionID  string
	LimitsAfter json.RawMessage

	// Denied fields.
	Reason         string
	Hint           string
	AvailableCents *int64

	// Indeterminate field.
	Cause string
}

// Approved constructs an approved verdict carrying the authority's seal.
func Approved(seal, decisionID string, limitsAfter json.RawMessage) Verdict {
	return Verdict{
		Status:      StatusApproved,
		Seal:        seal,
		DecisionID:  decisionID,
		LimitsAfter: limitsAfter,
	}
}

// Denied constructs a denied verdict.
func Denied(reason, hint string) Verdict {
	return Verdict{Status: StatusDenied, Reason: reason, Hint: hint}
}

// Indeterminate constructs an indeterminate verdict with a short cause token
// such as "timeout" or "malformed-approval".
func Indeterminate(cause string) Verdict {
	return Verdict{Status: StatusIndeterminate, Cause: cause}
}

// IsApproved reports whether the verdict grants authorization.
func (v Verdict) IsApproved() bool { return v.Status == StatusApproved }
