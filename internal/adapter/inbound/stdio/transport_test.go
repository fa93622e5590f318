package stdio

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/goleak"

	"github.com/koraprotocol/kora-mcp/internal/adapter/outbound/authority"
	"github.com/koraprotocol/kora-mcp/internal/domain/identity"
	"github.com/koraprotocol/kora-mcp/internal/service"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int64  `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func testRelay(t *testing.T, authorityURL string) *service.Relay {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	key, err := identity.FormatAgentKey("agent_7", seed)
	if err != nil {
		t.Fatalf("FormatAgentKey: %v", err)
	}
	id, err := identity.ParseAgentKey(key, "mandate_abc")
	if err != nil {
		t.Fatalf("ParseAgentKey: %v", err)
	}
	client := authority.NewClient(authorityURL, authority.WithRetries(0))
	return service.NewRelay(id, "mandate_abc", client, service.WithAdminKey("admin-1"))
}

// runSession feeds newline-delimited requests through a server and returns
// the decoded responses in order.
func runSession(t *testing.T, relay *service.Relay, lines ...string) []rpcEnvelope {
	t.Helper()

	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	var out bytes.Buffer

	srv := NewServer(relay, in, &out, WithVersion("test"))
	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var responses []rpcEnvelope
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var env rpcEnvelope
		if err := json.Unmarshal([]byte(line), &env); err != nil {
			t.Fatalf("response line is not JSON: %q: %v", line, err)
		}
		responses = append(responses, env)
	}
	return responses
}

func TestRun_InitializeHandshake(t *testing.T) {
	t.Parallel()

	responses := runSession(t, testRelay(t, "http://127.0.0.1:0"),
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18"}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
	)

	if len(responses) != 1 {
		t.Fatalf("got %d responses, want 1 (notifications get none)", len(responses))
	}

	var result struct {
		ProtocolVersion string `json:"protocolVersion"`
		ServerInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
	}
	if err := json.Unmarshal(responses[0].Result, &result); err != nil {
		t.Fatalf("initialize result: %v", err)
	}
	if result.ProtocolVersion != "2025-06-18" {
		t.Errorf("protocolVersion = %q", result.ProtocolVersion)
	}
	if result.ServerInfo.Name != "kora-mcp" || result.ServerInfo.Version != "test" {
		t.Errorf("serverInfo = %+v", result.ServerInfo)
	}
}

func TestRun_ToolsListHasFiveTools(t *testing.T) {
	t.Parallel()

	responses := runSession(t, testRelay(t, "http://127.0.0.1:0"),
		`{"jsonrpc":"2.0","id":"list-1","method":"tools/list"}`,
	)
	if len(responses) != 1 {
		t.Fatalf("got %d responses, want 1", len(responses))
	}

	var result struct {
		Tools []struct {
			Name        string          `json:"name"`
			InputSchema json.RawMessage `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(responses[0].Result, &result); err != nil {
		t.Fatalf("tools/list result: %v", err)
	}

	want := []string{"kora_check_budget", "kora_spend", "kora_recent_activity", "kora_health", "kora_audit"}
	if len(result.Tools) != len(want) {
		t.Fatalf("got %d tools, want %d", len(result.Tools), len(want))
	}
	for i, name := range want {
		if result.Tools[i].Name != name {
			t.Errorf("tools[%d] = %q, want %q", i, result.Tools[i].Name, name)
		}
		if len(result.Tools[i].InputSchema) == 0 {
			t.Errorf("tool %q has no input schema", name)
		}
	}

	if string(responses[0].ID) != `"list-1"` {
		t.Errorf("id = %s, want original string id echoed", responses[0].ID)
	}
}

func TestRun_HealthToolDownAuthority(t *testing.T) {
	t.Parallel()

	// Authority is unreachable: the tool must still answer with text, not a
	// protocol error.
	responses := runSession(t, testRelay(t, "http://127.0.0.1:0"),
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"kora_health","arguments":{}}}`,
	)
	if len(responses) != 1 {
		t.Fatalf("got %d responses, want 1", len(responses))
	}
	if responses[0].Error != nil {
		t.Fatalf("got protocol error %+v, want tool result", responses[0].Error)
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(responses[0].Result, &result); err != nil {
		t.Fatalf("result: %v", err)
	}
	if len(result.Content) != 1 || !strings.Contains(result.Content[0].Text, "Kora is unavailable") {
		t.Errorf("content = %+v", result.Content)
	}
}

func TestRun_SpendDownAuthorityFailsClosed(t *testing.T) {
	t.Parallel()

	responses := runSession(t, testRelay(t, "http://127.0.0.1:0"),
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"kora_spend","arguments":{"vendor":"amazon.com","amount_cents":1500,"currency":"EUR","reason":"test"}}}`,
	)
	if len(responses) != 1 {
		t.Fatalf("got %d responses, want 1", len(responses))
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(responses[0].Result, &result); err != nil {
		t.Fatalf("result: %v", err)
	}
	text := result.Content[0].Text
	if !strings.Contains(text, "AUTHORIZATION UNAVAILABLE") || !strings.Contains(text, "MUST NOT proceed") {
		t.Errorf("spend against a dead authority must fail closed, got %q", text)
	}
}

func TestRun_SpendApprovedEndToEnd(t *testing.T) {
	t.Parallel()

	const seal = "qQ3vN8sR1wZ5yC4mB6jExL9fA3kQ7T0v"
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"decision": "APPROVED", "seal": seal, "decision_id": "d-1",
		})
	}))
	defer upstream.Close()

	responses := runSession(t, testRelay(t, upstream.URL),
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"kora_spend","arguments":{"vendor":"amazon.com","amount_cents":1500,"currency":"EUR","reason":"supplies"}}}`,
	)

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(responses[0].Result, &result); err != nil {
		t.Fatalf("result: %v", err)
	}
	if result.IsError {
		t.Error("approved spend should not be an error result")
	}
	if !strings.Contains(result.Content[0].Text, "Seal: "+seal) {
		t.Errorf("approval must echo the seal, got %q", result.Content[0].Text)
	}
}

func TestRun_UnknownMethodAndTool(t *testing.T) {
	t.Parallel()

	responses := runSession(t, testRelay(t, "http://127.0.0.1:0"),
		`{"jsonrpc":"2.0","id":5,"method":"resources/list"}`,
		`{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"kora_teleport","arguments":{}}}`,
	)
	if len(responses) != 2 {
		t.Fatalf("got %d responses, want 2", len(responses))
	}
	for i, resp := range responses {
		if resp.Error == nil || resp.Error.Code != -32601 {
			t.Errorf("responses[%d].Error = %+v, want method-not-found", i, resp.Error)
		}
	}
}

func TestRun_MissingSpendArguments(t *testing.T) {
	t.Parallel()

	responses := runSession(t, testRelay(t, "http://127.0.0.1:0"),
		`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"kora_spend","arguments":{"vendor":"amazon.com"}}}`,
	)

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(responses[0].Result, &result); err != nil {
		t.Fatalf("result: %v", err)
	}
	if !result.IsError {
		t.Error("missing arguments should produce an isError result")
	}
}

func TestRun_PingAndCancelledContext(t *testing.T) {
	t.Parallel()

	responses := runSession(t, testRelay(t, "http://127.0.0.1:0"),
		`{"jsonrpc":"2.0","id":8,"method":"ping"}`,
	)
	if len(responses) != 1 || responses[0].Error != nil {
		t.Fatalf("ping responses = %+v", responses)
	}

	// A cancelled context stops the loop without emitting anything.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	srv := NewServer(testRelay(t, "http://127.0.0.1:0"),
		strings.NewReader(`{"jsonrpc":"2.0","id":9,"method":"ping"}`+"\n"), &out)
	if err := srv.Run(ctx); err != context.Canceled {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
	if out.Len() != 0 {
		t.Errorf("cancelled run wrote %q", out.String())
	}
}
