package service

import (
	"errors"
	"fmt"

	"github.com/koraprotocol/kora-mcp/internal/domain/capability"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrConfiguration is returned for bad or missing credentials. Fatal,
	// surfaced before any verdict is produced, never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrAuthorizationTier is returned when a capability is invoked without
	// its required credential tier. Fatal for that call; the network is
	// never reached.
	ErrAuthorizationTier = errors.New("authorization tier error")
)

// ConfigurationError reports an unusable credential or setting.
type ConfigurationError struct {
	Setting string
	Err     error
}

// Error returns a human-readable description.
func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration: %s: %v", e.Setting, e.Err)
	}
	return fmt.Sprintf("configuration: %s is missing", e.Setting)
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error { return e.Err }

// Is supports errors.Is(err, ErrConfiguration).
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// TierError reports a capability invoked without its required tier.
type TierError struct {
	Capability capability.Capability
	Required   capability.Tier
}

// Error returns a human-readable description.
func (e *TierError) Error() string {
	return fmt.Sprintf("%s requires the %s credential tier", e.Capability, e.Required)
}

// Is supports errors.Is(err, ErrAuthorizationTier).
func (e *TierError) Is(target error) bool { return target == ErrAuthorizationTier }
