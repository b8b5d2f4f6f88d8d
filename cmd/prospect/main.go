package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/use-agent/prospect/api"
	"github.com/use-agent/prospect/billing"
	"github.com/use-agent/prospect/blocklist"
	"github.com/use-agent/prospect/cache"
	"github.com/use-agent/prospect/config"
	"github.com/use-agent/prospect/pipeline"
	"github.com/use-agent/prospect/provider"
	"github.com/use-agent/prospect/queue"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("prospect starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
	)

	// ── 3. Build the provider chain ─────────────────────────────────
	resolver, err := provider.NewResolver(provider.Config{
		SerperKeys:   cfg.Provider.SerperKeys,
		SearchAPIKey: cfg.Provider.SearchAPIKey,
		GoogleCSEKey: cfg.Provider.GoogleCSEKey,
		GoogleCSEID:  cfg.Provider.GoogleCSEID,
		Timeout:      cfg.Provider.Timeout,
	})
	if err != nil {
		slog.Error("failed to build provider chain", "error", err)
		os.Exit(1)
	}
	slog.Info("search provider selected", "provider", resolver.ProviderName())

	// ── 4. Connect the scrape job queue ─────────────────────────────
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Queue.RedisAddr,
		Password: cfg.Queue.RedisPassword,
		DB:       cfg.Queue.RedisDB,
	})
	q := queue.NewRedis(rdb)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := q.Ping(pingCtx); err != nil {
		// Startup continues: SERP-only requests work without the queue
		// and the health endpoint reports the degradation.
		slog.Warn("scrape queue unreachable at startup", "addr", cfg.Queue.RedisAddr, "error", err)
	}
	cancelPing()

	// ── 5. Billing collaborators ────────────────────────────────────
	charger := billing.NewCharger(cfg.Billing.ChargeEndpoint, cfg.Billing.Secret)

	var credits billing.CreditChecker = billing.AllowAll{}
	if cfg.Billing.CreditCheckEndpoint != "" {
		credits = billing.NewHTTPCreditChecker(cfg.Billing.CreditCheckEndpoint)
	}

	// ── 6. Assemble the pipeline ────────────────────────────────────
	block := blocklist.New(cfg.Blocklist.ExtraDomains)
	p := pipeline.New(resolver, q, block, charger, cfg.Tenants.ResultLimits)

	// ── 7. Setup router ─────────────────────────────────────────────
	cc := cache.New(cfg.Cache.MaxEntries)
	startTime := time.Now()
	router := api.NewRouter(p, credits, q, cfg, cc, startTime)

	// ── 8. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 9. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight requests 5 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	if err := rdb.Close(); err != nil {
		slog.Warn("redis close failed", "error", err)
	}
	slog.Info("prospect stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	slog.SetDefault(slog.New(handler))
}
