// Package config provides configuration types and loading for the kora-mcp
// server.
//
// Configuration comes from a kora-mcp.yaml file and environment variables.
// The environment names match what MCP host applications put in their
// server settings:
//
//   - KORA_AGENT_SECRET: the agent signing key (kora_agent_sk_...)
//   - KORA_MANDATE: the mandate this agent spends under
//   - KORA_ADMIN_KEY: optional admin bearer key for activity and audit
//   - KORA_API_URL: authority base URL (defaults to the hosted service)
package config

import (
	"time"

	"github.com/spf13/viper"
)

// DefaultBaseURL is the hosted authority endpoint.
const DefaultBaseURL = "https://api.koraprotocol.com"

// Config is the top-level configuration for kora-mcp.
type Config struct {
	// Agent holds the credentials this server acts with.
	Agent AgentConfig `yaml:"agent" mapstructure:"agent"`

	// Authority configures the connection to the Kora decision service.
	Authority AuthorityConfig `yaml:"authority" mapstructure:"authority"`

	// Server configures logging and the optional metrics listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Guard defines local pre-flight deny rules evaluated before any spend
	// request is signed. Rules can only deny, never approve.
	Guard []GuardRuleConfig `yaml:"guard" mapstructure:"guard" validate:"omitempty,dive"`
}

// AgentConfig holds the agent and admin credentials.
type AgentConfig struct {
	// Secret is the agent signing key. When empty, spend and budget tools
	// report a configuration error instead of calling the authority.
	Secret string `yaml:"secret" mapstructure:"secret" validate:"omitempty,agent_key"`

	// Mandate is the mandate identifier this agent spends under.
	// Required whenever Secret is set.
	Mandate string `yaml:"mandate" mapstructure:"mandate"`

	// AdminKey unlocks the activity and audit tools. Optional.
	AdminKey string `yaml:"admin_key" mapstructure:"admin_key"`
}

// AuthorityConfig configures the outbound HTTP client.
type AuthorityConfig struct {
	// BaseURL is the authority endpoint. Defaults to DefaultBaseURL.
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`

	// Timeout is the per-attempt timeout for signed requests (e.g. "30s").
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty"`

	// HealthTimeout is the per-attempt timeout for health probes (e.g. "10s").
	HealthTimeout string `yaml:"health_timeout" mapstructure:"health_timeout" validate:"omitempty"`

	// Retries is how many extra attempts read requests get. Spend requests
	// are never retried regardless of this setting.
	Retries int `yaml:"retries" mapstructure:"retries" validate:"min=0,max=5"`
}

// ServerConfig configures process-level behavior.
type ServerConfig struct {
	// LogLevel sets the minimum log level: "debug", "info", "warn", "error".
	// Defaults to "info". Logs go to stderr; stdout carries the protocol.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// MetricsAddr enables a Prometheus /metrics listener when set
	// (e.g. "127.0.0.1:9090"). Empty disables it.
	MetricsAddr string `yaml:"metrics_addr" mapstructure:"metrics_addr" validate:"omitempty,hostname_port"`
}

// GuardRuleConfig is one local deny rule.
type GuardRuleConfig struct {
	// Name identifies the rule in logs and denial output.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// Condition is a CEL expression over vendor, amount_cents, currency,
	// reason. True denies the spend locally.
	Condition string `yaml:"condition" mapstructure:"condition" validate:"required"`

	// Message is shown to the agent when the rule denies. Optional.
	Message string `yaml:"message" mapstructure:"message"`
}

// SetDefaults applies default values for optional fields.
func (c *Config) SetDefaults() {
	if c.Authority.BaseURL == "" {
		c.Authority.BaseURL = DefaultBaseURL
	}
	if c.Authority.Timeout == "" {
		c.Authority.Timeout = "30s"
	}
	if c.Authority.HealthTimeout == "" {
		c.Authority.HealthTimeout = "10s"
	}
	if !viper.IsSet("authority.retries") && c.Authority.Retries == 0 {
		c.Authority.Retries = 2
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
}

// RequestTimeout parses the signed-request timeout, falling back to 30s on
// a bad value (validation reports it separately).
func (c *AuthorityConfig) RequestTimeout() time.Duration {
	return parseDurationOr(c.Timeout, 30*time.Second)
}

// ProbeTimeout parses the health-probe timeout, falling back to 10s.
func (c *AuthorityConfig) ProbeTimeout() time.Duration {
	return parseDurationOr(c.HealthTimeout, 10*time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
