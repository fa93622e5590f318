// Package identity holds the agent's signing identity and produces
// signatures over canonical request encodings.
package identity

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// AgentKeyPrefix is the required prefix of a Kora agent secret key string.
const AgentKeyPrefix = "kora_agent_sk_"

// ErrInvalidAgentKey is returned when an agent secret key string cannot be parsed.
var ErrInvalidAgentKey = errors.New("invalid agent key")

// Identity is the agent's signing identity, loaded once at startup and
// never mutated afterwards. The private key must never be logged; use
// Fingerprint for log output.
type Identity struct {
	AgentID    string
	MandateID  string
	privateKey ed25519.PrivateKey
}

// ParseAgentKey parses a Kora agent secret key string of the form
//
//	kora_agent_sk_<base64(agent_id:seed_hex)>
//
// where seed_hex encodes a 32-byte Ed25519 seed. All parse failures wrap
// ErrInvalidAgentKey and occur before any network activity.
func ParseAgentKey(keyString, mandateID string) (*Identity, error) {
	if !strings.HasPrefix(keyString, AgentKeyPrefix) {
		return nil, fmt.Errorf("%w: must start with %q", ErrInvalidAgentKey, AgentKeyPrefix)
	}

	encoded := strings.TrimPrefix(keyString, AgentKeyPrefix)
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64 payload: %v", ErrInvalidAgentKey, err)
	}

	agentID, seedHex, found := strings.Cut(string(decoded), ":")
	if !found {
		return nil, fmt.Errorf("%w: payload missing ':' separator", ErrInvalidAgentKey)
	}
	if agentID == "" {
		return nil, fmt.Errorf("%w: empty agent id", ErrInvalidAgentKey)
	}

	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("%w: bad hex in private key: %v", ErrInvalidAgentKey, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: private key must be %d bytes, got %d", ErrInvalidAgentKey, ed25519.SeedSize, len(seed))
	}

	return &Identity{
		AgentID:    agentID,
		MandateID:  mandateID,
		privateKey: ed25519.NewKeyFromSeed(seed),
	}, nil
}

// FormatAgentKey encodes an agent id and a 32-byte Ed25519 seed into the
// key string format ParseAgentKey accepts.
func FormatAgentKey(agentID string, seed []byte) (string, error) {
	if agentID == "" || strings.Contains(agentID, ":") {
		return "", fmt.Errorf("%w: agent id must be non-empty and contain no ':'", ErrInvalidAgentKey)
	}
	if len(seed) != ed25519.SeedSize {
		return "", fmt.Errorf("%w: seed must be %d bytes, got %d", ErrInvalidAgentKey, ed25519.SeedSize, len(seed))
	}
	payload := agentID + ":" + hex.EncodeToString(seed)
	return AgentKeyPrefix + base64.StdEncoding.EncodeToString([]byte(payload)), nil
}

// PublicKey returns the Ed25519 public key matching the signing key.
func (id *Identity) PublicKey() ed25519.PublicKey {
	return id.privateKey.Public().(ed25519.PublicKey)
}

// Fingerprint returns a stable non-reversible fingerprint of the signing
// key, safe for logs.
func (id *Identity) Fingerprint() string {
	return fmt.Sprintf("%016x", xxhash.Sum64(id.privateKey.Seed()))
}
