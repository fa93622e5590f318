// Package stdio provides the stdio MCP transport: it reads newline-delimited
// JSON-RPC messages from stdin, dispatches tool calls to the relay, and
// writes responses to stdout.
package stdio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/koraprotocol/kora-mcp/internal/service"
	"github.com/koraprotocol/kora-mcp/pkg/mcp"
)

// protocolVersion is the MCP protocol revision this server speaks.
const protocolVersion = "2025-06-18"

// serverName identifies the server in the initialize handshake.
const serverName = "kora-mcp"

// Server is the inbound stdio adapter. One instance serves one agent
// session over stdin/stdout.
type Server struct {
	relay   *service.Relay
	in      io.Reader
	out     io.Writer
	logger  *slog.Logger
	metrics *Metrics
	version string
	now     func() time.Time

	writeMu sync.Mutex
}

// ServerOption configures optional Server collaborators.
type ServerOption func(*Server)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithMetrics installs Prometheus metrics recording.
func WithMetrics(m *Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithVersion sets the version reported in the initialize handshake.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// WithClock overrides the wall clock used for relative timestamps in
// rendered output.
func WithClock(now func() time.Time) ServerOption {
	return func(s *Server) { s.now = now }
}

// NewServer builds a stdio server reading from in and writing to out.
func NewServer(relay *service.Relay, in io.Reader, out io.Writer, opts ...ServerOption) *Server {
	s := &Server{
		relay:   relay,
		in:      in,
		out:     out,
		logger:  slog.Default(),
		version: "dev",
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run processes messages until the input closes or the context is
// cancelled. A cancelled context drops any in-flight response.
func (s *Server) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		msg, err := mcp.Decode(raw)
		if err != nil {
			s.logger.Debug("unparseable message", slog.Any("error", err))
			s.write(ctx, mcp.NewErrorResponse(nil, mcp.ErrCodeParse, "parse error"))
			continue
		}

		resp := s.dispatch(ctx, msg)
		if resp != nil {
			s.write(ctx, resp)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	return ctx.Err()
}

// dispatch routes one message. It returns nil when no response is owed
// (notifications, responses, cancellation).
func (s *Server) dispatch(ctx context.Context, msg *mcp.Message) []byte {
	req := msg.Request()
	if req == nil {
		// A response from the client; nothing to route it to.
		return nil
	}

	if msg.IsNotification() {
		// notifications/initialized and friends need no reply.
		s.logger.Debug("notification", slog.String("method", req.Method))
		return nil
	}

	rawID := msg.RawID()

	switch req.Method {
	case "initialize":
		return s.resultOrInternal(rawID, map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": serverName, "version": s.version},
		})
	case "ping":
		return s.resultOrInternal(rawID, map[string]any{})
	case "tools/list":
		return s.resultOrInternal(rawID, mcp.ListToolsResult{Tools: toolCatalog})
	case "tools/call":
		return s.handleToolCall(ctx, msg, rawID)
	default:
		return mcp.NewErrorResponse(rawID, mcp.ErrCodeMethodNotFound,
			fmt.Sprintf("method %q not found", req.Method))
	}
}

func (s *Server) handleToolCall(ctx context.Context, msg *mcp.Message, rawID []byte) []byte {
	params := msg.ToolCallParams()
	if params == nil || params.Name == "" {
		return mcp.NewErrorResponse(rawID, mcp.ErrCodeInvalidParams, "invalid tools/call params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return mcp.NewErrorResponse(rawID, mcp.ErrCodeMethodNotFound,
			fmt.Sprintf("unknown tool %q", params.Name))
	}

	start := s.now()
	result := handler(ctx, s, params.Arguments)
	if ctx.Err() != nil {
		// The session is shutting down; the client is no longer listening.
		return nil
	}
	s.metrics.recordCall(params.Name, result.IsError, s.now().Sub(start).Seconds())

	s.logger.Info("tool call",
		slog.String("tool", params.Name),
		slog.Bool("is_error", result.IsError),
		slog.Duration("duration", s.now().Sub(start)))

	return s.resultOrInternal(rawID, result)
}

func (s *Server) resultOrInternal(rawID []byte, result any) []byte {
	resp, err := mcp.NewResultResponse(rawID, result)
	if err != nil {
		s.logger.Error("building response", slog.Any("error", err))
		return mcp.NewErrorResponse(rawID, mcp.ErrCodeInternal, "internal error")
	}
	return resp
}

// write emits one newline-terminated response. Writes are serialized so
// concurrent handlers cannot interleave output.
func (s *Server) write(ctx context.Context, resp []byte) {
	if ctx.Err() != nil {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.out.Write(resp); err != nil {
		s.logger.Error("writing response", slog.Any("error", err))
		return
	}
	_, _ = s.out.Write([]byte("\n"))
}
