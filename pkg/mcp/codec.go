package mcp

import (
	"encoding/json"
	"fmt"
)

// JSON-RPC error codes used by the server.
const (
	// ErrCodeParse is returned when a message cannot be parsed.
	ErrCodeParse int64 = -32700
	// ErrCodeMethodNotFound is returned for unknown methods and tools.
	ErrCodeMethodNotFound int64 = -32601
	// ErrCodeInvalidParams is returned for malformed tool arguments.
	ErrCodeInvalidParams int64 = -32602
	// ErrCodeInternal is returned for internal failures.
	ErrCodeInternal int64 = -32603
)

// TextContent is a text block inside a tool result.
type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallToolResult is the result payload of a tools/call response. IsError
// marks tool-level failures the agent should read and react to, as opposed
// to protocol errors.
type CallToolResult struct {
	Content []TextContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// TextResult builds a single-text tool result.
func TextResult(text string, isError bool) CallToolResult {
	return CallToolResult{
		Content: []TextContent{{Type: "text", Text: text}},
		IsError: isError,
	}
}

// Tool describes one tool in a tools/list response.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ListToolsResult is the result payload of a tools/list response.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

type rpcResult struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result"`
}

type rpcError struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Error   rpcErrorDetail  `json:"error"`
}

type rpcErrorDetail struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

// NewResultResponse builds a JSON-RPC success response preserving the
// original raw id.
func NewResultResponse(rawID json.RawMessage, result any) ([]byte, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return json.Marshal(rpcResult{
		JSONRPC: "2.0",
		ID:      rawID,
		Result:  resultJSON,
	})
}

// NewErrorResponse builds a JSON-RPC error response preserving the original
// raw id.
func NewErrorResponse(rawID json.RawMessage, code int64, message string) []byte {
	raw, err := json.Marshal(rpcError{
		JSONRPC: "2.0",
		ID:      rawID,
		Error:   rpcErrorDetail{Code: code, Message: message},
	})
	if err != nil {
		// Static shape; marshal cannot fail with string inputs.
		return []byte(`{"jsonrpc":"2.0","error":{"code":-32603,"message":"internal error"}}`)
	}
	return raw
}
