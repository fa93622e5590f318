package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/koraprotocol/kora-mcp/internal/domain/identity"
)

// RegisterCustomValidators registers kora-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("agent_key", validateAgentKey); err != nil {
		return fmt.Errorf("failed to register agent_key validator: %w", err)
	}
	return nil
}

// validateAgentKey checks the agent secret has the expected key format.
// Only the shape is checked here; full parsing happens at startup.
func validateAgentKey(fl validator.FieldLevel) bool {
	return strings.HasPrefix(fl.Field().String(), identity.AgentKeyPrefix)
}

// Validate validates the Config using struct tags and cross-field rules.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	// Cross-field: a signing key is useless without a mandate to spend under.
	if c.Agent.Secret != "" && c.Agent.Mandate == "" {
		return errors.New("agent.mandate is required when agent.secret is set (set KORA_MANDATE)")
	}

	return nil
}

// formatValidationErrors converts validator.ValidationErrors to actionable
// messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "agent_key":
		return fmt.Sprintf("%s must start with %q", field, identity.AgentKeyPrefix)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
