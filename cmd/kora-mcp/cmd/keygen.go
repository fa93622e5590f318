package cmd

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/koraprotocol/kora-mcp/internal/domain/identity"
)

var keygenAgentID string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new agent signing key",
	Long: `Generate a new Ed25519 agent signing key.

The secret key goes into KORA_AGENT_SECRET in the MCP server settings.
The public key is what you register with the Kora authority for this agent.`,
	RunE: runKeygen,
}

func init() {
	keygenCmd.Flags().StringVar(&keygenAgentID, "agent-id", "", "agent identifier to embed in the key (required)")
	_ = keygenCmd.MarkFlagRequired("agent-id")
	rootCmd.AddCommand(keygenCmd)
}

func runKeygen(cmd *cobra.Command, args []string) error {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return fmt.Errorf("generating seed: %w", err)
	}

	key, err := identity.FormatAgentKey(keygenAgentID, seed)
	if err != nil {
		return err
	}

	// Round-trip through the parser so what we print is known-good.
	id, err := identity.ParseAgentKey(key, "")
	if err != nil {
		return fmt.Errorf("generated key failed to parse: %w", err)
	}

	fmt.Printf("Agent ID:    %s\n", id.AgentID)
	fmt.Printf("Secret key:  %s\n", key)
	fmt.Printf("Public key:  %s\n", hex.EncodeToString(id.PublicKey()))
	fmt.Printf("Fingerprint: %s\n", id.Fingerprint())
	fmt.Println()
	fmt.Println("Set KORA_AGENT_SECRET to the secret key. Register the public key with Kora.")
	return nil
}
