package verdict

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Indeterminate cause tokens produced by the interpreter.
const (
	CauseMalformedResponse    = "malformed-response"
	CauseMissingDecision      = "missing-decision"
	CauseUnrecognizedDecision = "unrecognized-decision"
	CauseMalformedApproval    = "malformed-approval"
	CauseMalformedDenial      = "malformed-denial"
)

// decisionPayload is the authority's authorize response wire shape. The
// denial block and reason_code fields come from the original API; the flat
// reason/hint pair is the documented contract. Both are accepted.
type decisionPayload struct {
	Decision            string          `json:"decision"`
	Seal                string          `json:"seal"`
	DecisionID          string          `json:"decision_id"`
	LimitsAfterApproval json.RawMessage `json:"limits_after_approval"`
	Reason              string          `json:"reason"`
	ReasonCode          string          `json:"reason_code"`
	Hint                string          `json:"hint"`
	Denial              *denialDetail   `json:"denial"`
}

type denialDetail struct {
	Message    string `json:"message"`
	Hint       string `json:"hint"`
	Actionable struct {
		AvailableCents *int64 `json:"available_cents"`
	} `json:"actionable"`
}

// Interpret parses an authority response body into a Verdict. The response
// must declare an explicit decision field; an approval must carry a
// non-empty, base64-valid seal or it is not an approval at all. Denials
// degrade gracefully: a missing hint is fine, but a denial with no reason is
// treated as malformed. Every malformed shape maps to Indeterminate, which
// the gate later downgrades to Denied.
func Interpret(body []byte) Verdict {
	var p decisionPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Indeterminate(CauseMalformedResponse)
	}

	switch {
	case p.Decision == "":
		return Indeterminate(CauseMissingDecision)

	case strings.EqualFold(p.Decision, "approved"):
		if !validSeal(p.Seal) {
			return Indeterminate(CauseMalformedApproval)
		}
		return Approved(p.Seal, p.DecisionID, p.LimitsAfterApproval)

	case strings.EqualFold(p.Decision, "denied"):
		reason := firstNonEmpty(p.Reason, denialMessage(p.Denial), p.ReasonCode)
		if reason == "" {
			return Indeterminate(CauseMalformedDenial)
		}
		v := Denied(reason, firstNonEmpty(p.Hint, denialHint(p.Denial)))
		if p.Denial != nil {
			v.AvailableCents = p.Denial.Actionable.AvailableCents
		}
		return v

	default:
		return Indeterminate(CauseUnrecognizedDecision)
	}
}

// validSeal checks that a seal is present and syntactically valid. The seal
// itself stays opaque; only its encoding is verified.
func validSeal(seal string) bool {
	if seal == "" {
		return false
	}
	_, err := base64.StdEncoding.DecodeString(seal)
	return err == nil
}

func denialMessage(d *denialDetail) string {
	if d == nil {
		return ""
	}
	return d.Message
}

func denialHint(d *denialDetail) string {
	if d == nil {
		return ""
	}
	return d.Hint
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
