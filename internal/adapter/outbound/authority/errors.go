package authority

import (
	"errors"
	"fmt"
)

// FailureKind classifies transport failures. Every kind maps to an
// indeterminate verdict downstream; none is ever treated as success.
type FailureKind string

const (
	// KindUnreachable is a connection-level failure (refused, DNS, reset).
	KindUnreachable FailureKind = "unreachable"
	// KindTimeout is a per-attempt deadline expiry.
	KindTimeout FailureKind = "timeout"
	// KindHTTPError is a non-2xx status from the authority.
	KindHTTPError FailureKind = "http-error"
	// KindMalformed is an unreadable response body.
	KindMalformed FailureKind = "malformed-response"
)

// ErrTransport matches any TransportError via errors.Is.
var ErrTransport = errors.New("authority transport failure")

// TransportError is a classified failure to complete a round trip with the
// authority.
type TransportError struct {
	Kind   FailureKind
	Status int // set for KindHTTPError
	Err    error
}

// Error returns a human-readable description.
func (e *TransportError) Error() string {
	if e.Kind == KindHTTPError {
		return fmt.Sprintf("authority returned HTTP %d", e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("authority %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("authority %s", e.Kind)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error { return e.Err }

// Is supports errors.Is(err, ErrTransport).
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Cause returns a short token for verdict causes and rendered output, e.g.
// "timeout", "connection error", "HTTP 503".
func (e *TransportError) Cause() string {
	switch e.Kind {
	case KindTimeout:
		return "timeout"
	case KindHTTPError:
		return fmt.Sprintf("HTTP %d", e.Status)
	case KindMalformed:
		return "malformed response"
	default:
		return "connection error"
	}
}
