package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/koraprotocol/kora-mcp/internal/adapter/inbound/stdio"
	"github.com/koraprotocol/kora-mcp/internal/adapter/outbound/authority"
	"github.com/koraprotocol/kora-mcp/internal/config"
	"github.com/koraprotocol/kora-mcp/internal/domain/guard"
	"github.com/koraprotocol/kora-mcp/internal/domain/identity"
	"github.com/koraprotocol/kora-mcp/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	Long: `Run the MCP server. Reads JSON-RPC messages from stdin and writes
responses to stdout. Logs go to stderr.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Signal context for graceful shutdown. stop() restores default signal
	// handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()

	// Logger goes to stderr: stdout carries the protocol stream.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	// Parse the agent key eagerly so a bad key fails at startup, not on the
	// first spend. An absent key is allowed: admin and health tools still work.
	var id *identity.Identity
	if cfg.Agent.Secret != "" {
		id, err = identity.ParseAgentKey(cfg.Agent.Secret, cfg.Agent.Mandate)
		if err != nil {
			return fmt.Errorf("invalid KORA_AGENT_SECRET: %w", err)
		}
		logger.Info("agent identity loaded",
			"agent_id", id.AgentID,
			"mandate", cfg.Agent.Mandate,
			"key", id.Fingerprint())
	} else {
		logger.Warn("no agent secret configured; spend and budget tools will report a configuration error")
	}

	var guardEval *guard.Evaluator
	if len(cfg.Guard) > 0 {
		rules := make([]guard.Rule, 0, len(cfg.Guard))
		for _, rc := range cfg.Guard {
			rules = append(rules, guard.Rule{Name: rc.Name, Condition: rc.Condition, Message: rc.Message})
		}
		guardEval, err = guard.NewEvaluator(rules)
		if err != nil {
			return fmt.Errorf("invalid guard rules: %w", err)
		}
		logger.Info("guard rules compiled", "count", guardEval.Len())
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	client := authority.NewClient(cfg.Authority.BaseURL,
		authority.WithRequestTimeout(cfg.Authority.RequestTimeout()),
		authority.WithHealthTimeout(cfg.Authority.ProbeTimeout()),
		authority.WithRetries(cfg.Authority.Retries),
		authority.WithLogger(logger),
		authority.WithMetrics(authority.NewMetrics(registry)),
	)

	relay := service.NewRelay(id, cfg.Agent.Mandate, client,
		service.WithAdminKey(cfg.Agent.AdminKey),
		service.WithGuard(guardEval),
		service.WithLogger(logger),
	)

	if cfg.Server.MetricsAddr != "" {
		startMetricsListener(ctx, cfg.Server.MetricsAddr, registry, logger)
	}

	server := stdio.NewServer(relay, os.Stdin, os.Stdout,
		stdio.WithLogger(logger),
		stdio.WithMetrics(stdio.NewMetrics(registry)),
		stdio.WithVersion(Version),
	)

	logger.Info("kora-mcp serving", "authority", cfg.Authority.BaseURL, "version", Version)

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("kora-mcp stopped")
	return nil
}

// startMetricsListener serves Prometheus metrics on addr until ctx is done.
func startMetricsListener(ctx context.Context, addr string, registry *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics listener started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener failed", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// parseLogLevel converts a string log level to slog.Level. Unrecognized
// values get info.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
