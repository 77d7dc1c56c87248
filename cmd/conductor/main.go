// Command conductor runs the operations console service: it wires the
// command pipeline (planner, verifier, risk, approval gate, tool mapper,
// coordinator) to its stores, tool registry and HTTP surface.
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/stratus-ops/conductor/pkg/api"
	"github.com/stratus-ops/conductor/pkg/approval"
	"github.com/stratus-ops/conductor/pkg/audit"
	"github.com/stratus-ops/conductor/pkg/config"
	"github.com/stratus-ops/conductor/pkg/console"
	"github.com/stratus-ops/conductor/pkg/executor"
	"github.com/stratus-ops/conductor/pkg/llm"
	"github.com/stratus-ops/conductor/pkg/observability"
	"github.com/stratus-ops/conductor/pkg/planner"
	"github.com/stratus-ops/conductor/pkg/policy"
	"github.com/stratus-ops/conductor/pkg/store"
	"github.com/stratus-ops/conductor/pkg/tools"
)

func main() {
	if err := run(); err != nil {
		slog.Error("conductor exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "conductor",
		ServiceVersion: "1.0.0",
		Environment:    envOr("ENVIRONMENT", "development"),
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        cfg.OTLPEndpoint != "",
		Insecure:       cfg.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	auditLog := audit.NewLogger()

	records, err := openExecutionStore(cfg, logger)
	if err != nil {
		return err
	}

	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry, logger)

	rules, err := loadRules(cfg)
	if err != nil {
		return err
	}
	verifier, err := policy.NewVerifier(rules)
	if err != nil {
		return fmt.Errorf("build verifier: %w", err)
	}

	tokenManager := approval.NewTokenManager(approvalKey(cfg, logger)).WithTTL(cfg.ApprovalTTL)

	var client llm.Client
	if cfg.LLMBaseURL != "" {
		client = llm.NewOpenAIClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
		logger.Info("reasoning backend configured", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModel)
	} else {
		logger.Info("no reasoning backend configured, using the deterministic planner")
	}

	coordinator := executor.NewCoordinator(registry).
		WithValidator(tokenManager).
		WithStore(records).
		WithAuditLogger(auditLog).
		WithConcurrency(cfg.MaxConcurrency).
		WithRateLimit(cfg.ToolRateLimit, cfg.MaxConcurrency)

	c := console.New(planner.NewSynthesizer(client), verifier, approval.NewGate(tokenManager), coordinator).
		WithAuditLogger(auditLog).
		WithIdempotencyStore(newIdempotencyStore(cfg, logger))

	service := api.NewService(c, records, logger)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           service.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("conductor listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func openExecutionStore(cfg *config.Config, logger *slog.Logger) (store.ExecutionStore, error) {
	if cfg.DatabaseURL != "" {
		s, err := store.OpenPostgresExecutionStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		logger.Info("execution store backed by postgres")
		return s, nil
	}
	if cfg.SQLitePath != "" {
		s, err := store.OpenSQLiteExecutionStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		logger.Info("execution store backed by sqlite", "path", cfg.SQLitePath)
		return s, nil
	}
	logger.Warn("no database configured, execution history is in-memory only")
	return store.NewMemoryExecutionStore(), nil
}

func loadRules(cfg *config.Config) ([]policy.Rule, error) {
	if cfg.RulesPath == "" {
		return policy.DefaultRules(), nil
	}
	f, err := os.Open(cfg.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("open rules file: %w", err)
	}
	defer func() { _ = f.Close() }()

	loaded, err := policy.LoadRules(f)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return append(policy.DefaultRules(), loaded...), nil
}

func newIdempotencyStore(cfg *config.Config, logger *slog.Logger) console.IdempotencyStore {
	if cfg.RedisAddr != "" {
		logger.Info("idempotency store backed by redis", "addr", cfg.RedisAddr)
		return console.NewRedisIdempotencyStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, console.DefaultIdempotencyTTL)
	}
	return console.NewMemoryIdempotencyStore(console.DefaultIdempotencyTTL)
}

// approvalKey returns the configured signing key, or an ephemeral one for
// development. Ephemeral keys invalidate all approvals on restart.
func approvalKey(cfg *config.Config, logger *slog.Logger) []byte {
	if cfg.ApprovalKey != "" {
		return []byte(cfg.ApprovalKey)
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(fmt.Sprintf("generate approval key: %v", err))
	}
	logger.Warn("APPROVAL_SIGNING_KEY not set, using an ephemeral key")
	return key
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
