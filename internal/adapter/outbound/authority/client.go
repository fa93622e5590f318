// Package authority is the outbound HTTP adapter for the remote Kora
// decision service. It performs one bounded round trip per call, classifies
// every failure, and never infers success from transport status alone.
package authority

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/koraprotocol/kora-mcp/internal/domain/capability"
	"github.com/koraprotocol/kora-mcp/internal/domain/identity"
)

const (
	// maxResponseBodySize caps response reads so a misbehaving authority
	// cannot exhaust memory.
	maxResponseBodySize = 4 * 1024 * 1024

	// retryBackoff is the pause between retryable attempts.
	retryBackoff = 200 * time.Millisecond
)

// Client talks to the authority's HTTP API.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	requestTimeout time.Duration
	healthTimeout  time.Duration
	retries        int
	logger         *slog.Logger
	metrics        *Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (used by tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRequestTimeout sets the per-attempt timeout for signed capabilities.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

// WithHealthTimeout sets the per-attempt timeout for health checks.
func WithHealthTimeout(d time.Duration) Option {
	return func(c *Client) { c.healthTimeout = d }
}

// WithRetries sets how many extra attempts retryable capabilities get.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics installs Prometheus metrics recording.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a client for the authority at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		requestTimeout: 30 * time.Second,
		healthTimeout:  10 * time.Second,
		retries:        2,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return c
}

// Authorize submits a signed spend request. Never retried: without a
// server-side idempotence guarantee a replay could double-authorize.
func (c *Client) Authorize(ctx context.Context, env *identity.Envelope) ([]byte, error) {
	return c.do(ctx, capability.Spend, http.MethodPost, "/v1/authorize", env.Body, signedHeaders(env))
}

// Budget submits a signed budget query for the mandate.
func (c *Client) Budget(ctx context.Context, env *identity.Envelope, mandateID string) ([]byte, error) {
	path := "/v1/mandates/" + url.PathEscape(mandateID) + "/budget"
	return c.do(ctx, capability.CheckBudget, http.MethodPost, path, env.Body, signedHeaders(env))
}

// Activity fetches recent authorization decisions. Admin bearer auth.
func (c *Client) Activity(ctx context.Context, adminKey, agentID, mandateID string, limit int) ([]byte, error) {
	q := url.Values{}
	q.Set("agent_id", agentID)
	q.Set("mandate_id", mandateID)
	q.Set("limit", strconv.Itoa(limit))
	return c.do(ctx, capability.RecentActivity, http.MethodGet, "/v1/authorizations?"+q.Encode(), nil, bearerHeaders(adminKey))
}

// Audit fetches recent admin actions on the mandate. Admin bearer auth.
func (c *Client) Audit(ctx context.Context, adminKey, mandateID string, limit int, action string) ([]byte, error) {
	q := url.Values{}
	q.Set("target_id", mandateID)
	q.Set("limit", strconv.Itoa(limit))
	if action != "" {
		q.Set("action", action)
	}
	return c.do(ctx, capability.Audit, http.MethodGet, "/v1/admin/audit?"+q.Encode(), nil, bearerHeaders(adminKey))
}

// Health checks authority reachability. Unauthenticated, short timeout.
func (c *Client) Health(ctx context.Context) ([]byte, error) {
	return c.do(ctx, capability.Health, http.MethodGet, "/health", nil, nil)
}

// do runs the attempt loop for one capability. Retryable capabilities get
// c.retries extra attempts with a short backoff; spend gets exactly one.
// Caller cancellation aborts immediately and surfaces ctx.Err() unwrapped so
// no verdict is synthesized from an abandoned call.
func (c *Client) do(ctx context.Context, op capability.Capability, method, path string, body []byte, headers map[string]string) ([]byte, error) {
	attempts := 1
	if capability.Retryable(op) {
		attempts += c.retries
	}

	timeout := c.requestTimeout
	if op == capability.Health {
		timeout = c.healthTimeout
	}

	start := time.Now()
	defer func() {
		c.metrics.observe(string(op), time.Since(start).Seconds())
	}()

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryBackoff):
			}
			c.logger.Debug("retrying authority request",
				"capability", op,
				"attempt", attempt+1,
				"error", lastErr,
			)
		}

		resp, err := c.attempt(ctx, method, path, body, headers, timeout)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}

	var te *TransportError
	if errors.As(lastErr, &te) {
		c.metrics.failure(string(te.Kind))
	}
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, method, path string, body []byte, headers map[string]string, timeout time.Duration) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &TransportError{Kind: KindUnreachable, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, classify(ctx, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{Kind: KindHTTPError, Status: resp.StatusCode}
	}

	return payload, nil
}

// classify maps a request error onto the failure taxonomy. Caller
// cancellation is passed through untouched.
func classify(ctx context.Context, err error) error {
	if ctx.Err() == context.Canceled {
		return context.Canceled
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{Kind: KindTimeout, Err: err}
	}

	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return &TransportError{Kind: KindTimeout, Err: err}
	}

	return &TransportError{Kind: KindUnreachable, Err: err}
}

func signedHeaders(env *identity.Envelope) map[string]string {
	return map[string]string{
		"X-Agent-Id":        env.AgentID,
		"X-Agent-Signature": env.Signature,
	}
}

func bearerHeaders(adminKey string) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + adminKey,
	}
}
