// Package cmd provides the CLI commands for kora-mcp.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/koraprotocol/kora-mcp/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "kora-mcp",
	Short: "Kora MCP server - spend authorization tools for AI agents",
	Long: `kora-mcp exposes the Kora authorization engine to AI agents over MCP.

It provides five tools: kora_check_budget, kora_spend, kora_recent_activity,
kora_health and kora_audit. Every spend request is signed with the agent's
Ed25519 key and decided by the remote Kora authority. When the authority
cannot be reached, spending is denied. No authorization means no payment.

Quick start:
  1. Set KORA_AGENT_SECRET and KORA_MANDATE in the MCP server settings.
  2. Run: kora-mcp

Configuration:
  Config is loaded from kora-mcp.yaml in the current directory,
  $HOME/.kora-mcp/, or /etc/kora-mcp/. Environment variables override
  config values: KORA_AGENT_SECRET, KORA_MANDATE, KORA_ADMIN_KEY,
  KORA_API_URL.

Commands:
  serve       Run the MCP server on stdio (default)
  keygen      Generate a new agent signing key
  version     Print version information`,
	RunE: runServe,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./kora-mcp.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
