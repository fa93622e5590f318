package identity

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Envelope is a signed outbound request, built per call and discarded after
// the round trip. Body is the JSON payload to send; Signature covers the
// canonical encoding of the signed fields (which may be a subset of Body).
type Envelope struct {
	Body      []byte
	Signature string
	AgentID   string
}

// Sign produces a signed envelope for the given request fields. The
// signature is Ed25519 over the canonical JSON of signedFields; body is the
// full payload sent on the wire. Signing is deterministic: identical
// (fields, key) inputs always yield an identical signature, so retries with
// the same nonce re-sign to the same bytes.
func (id *Identity) Sign(signedFields, body map[string]any) (*Envelope, error) {
	canonical, err := Canonicalize(signedFields)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}

	sig := ed25519.Sign(id.privateKey, canonical)
	return &Envelope{
		Body:      payload,
		Signature: base64.StdEncoding.EncodeToString(sig),
		AgentID:   id.AgentID,
	}, nil
}
