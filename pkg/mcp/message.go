// Package mcp provides MCP message types and JSON-RPC codec utilities for
// the kora-mcp tool server.
package mcp

import (
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Message wraps a decoded inbound JSON-RPC message. It keeps both the raw
// bytes (for ID extraction) and the decoded form (for dispatch).
type Message struct {
	// Raw contains the original bytes of the message.
	Raw []byte

	// Decoded contains the parsed JSON-RPC message. The concrete type is
	// either *jsonrpc.Request or *jsonrpc.Response.
	Decoded jsonrpc.Message
}

// Decode parses raw JSON-RPC bytes into a Message.
func Decode(raw []byte) (*Message, error) {
	decoded, err := jsonrpc.DecodeMessage(raw)
	if err != nil {
		return nil, err
	}
	return &Message{Raw: raw, Decoded: decoded}, nil
}

// Request returns the underlying request, or nil if this is not a request.
func (m *Message) Request() *jsonrpc.Request {
	req, _ := m.Decoded.(*jsonrpc.Request)
	return req
}

// Method returns the request method, or empty string for responses.
func (m *Message) Method() string {
	if req := m.Request(); req != nil {
		return req.Method
	}
	return ""
}

// IsNotification reports whether the message is a request without an id.
// Notifications never receive a response.
func (m *Message) IsNotification() bool {
	return m.Request() != nil && m.RawID() == nil
}

// RawID extracts the request id from the raw bytes as json.RawMessage,
// preserving its original form (number, string, or null). The SDK's
// jsonrpc.ID type does not marshal correctly through interface{}, so
// responses are built from the raw id instead.
func (m *Message) RawID() json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(m.Raw, &fields); err != nil {
		return nil
	}
	return fields["id"]
}

// CallToolParams is the params shape of a tools/call request.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolCallParams parses the params of a tools/call request. Returns nil if
// the message is not a request or the params do not parse.
func (m *Message) ToolCallParams() *CallToolParams {
	req := m.Request()
	if req == nil || req.Params == nil {
		return nil
	}
	var p CallToolParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return nil
	}
	return &p
}
