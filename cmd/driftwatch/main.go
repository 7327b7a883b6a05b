package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/driftdb/driftdb-go/connection"
	"github.com/driftdb/driftdb-go/internal/config"
	"github.com/driftdb/driftdb-go/internal/database"
	"github.com/driftdb/driftdb-go/internal/router"
	"github.com/driftdb/driftdb-go/internal/version"
	"github.com/driftdb/driftdb-go/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/driftwatch.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting driftwatch",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"server_url", cfg.Server.URL,
		"topics", len(cfg.Topics),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("database connected")

	// Intake queue between subscription handlers and the writer
	intake := router.NewIntake(cfg.Writer.BufferSize, logger)

	// Batch writer
	dpWriter := writer.NewDatapointWriter(
		writer.WriterConfig{
			BatchSize:     cfg.Writer.BatchSize,
			FlushInterval: cfg.Writer.FlushInterval,
		},
		intake.Records(),
		pool,
		logger,
	)
	if err := dpWriter.Start(ctx); err != nil {
		logger.Error("failed to start writer", "error", err)
		os.Exit(1)
	}

	// Managed server connection
	manager := connection.NewManager(connection.Config{
		URL:               cfg.Server.URL,
		HeartbeatTimeout:  cfg.Server.HeartbeatTimeout,
		ReconnectBaseWait: cfg.Server.ReconnectBaseWait,
		ReconnectMaxWait:  cfg.Server.ReconnectMaxWait,
		StableResetWindow: cfg.Server.StableResetWindow,
	}, logger)
	manager.SetCredentials(connection.Credentials{
		User:     cfg.Server.User,
		Password: cfg.Server.Password,
		APIKey:   cfg.Server.APIKey,
	})

	// Subscribe to configured topics (connects on first subscribe)
	for _, tc := range cfg.Topics {
		if err := manager.Subscribe(ctx, tc.Path, tc.Transform, intake.Handler(tc.AutoAck)); err != nil {
			logger.Error("failed to subscribe", "topic", tc.Path, "error", err)
			os.Exit(1)
		}
		logger.Info("subscribed",
			"topic", tc.Path,
			"transform", tc.Transform,
			"auto_ack", tc.AutoAck,
		)
	}

	// Health server
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: createHealthHandler(cfg, pool, manager, intake, dpWriter),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return healthServer.Shutdown(shutdownCtx)
	})

	logger.Info("driftwatch running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d%s", cfg.Health.Port, cfg.Health.Path),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	manager.Close()
	intake.Close()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := dpWriter.Stop(stopCtx); err != nil {
		logger.Error("writer stop failed", "error", err)
	}

	if err := g.Wait(); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("driftwatch stopped")
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(
	cfg *config.WatchConfig,
	pool *pgxpool.Pool,
	manager *connection.Manager,
	intake *router.Intake,
	dpWriter *writer.DatapointWriter,
) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(cfg.Health.Path, func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		// Check database
		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["database"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["database"] = "connected"
		}

		// Check server connection
		connStats := manager.Stats()
		health.Components["connection"] = map[string]any{
			"state":         connStats.State.String(),
			"subscriptions": connStats.Subscriptions,
		}
		if connStats.State != connection.Connected {
			health.Status = "degraded"
		}

		// Queue and writer
		ringStats := intake.Records().Stats()
		health.Components["queue"] = map[string]any{
			"len":    ringStats.Len,
			"cap":    ringStats.Cap,
			"pushed": ringStats.Pushed,
			"popped": ringStats.Popped,
		}

		writerStats := dpWriter.Stats()
		health.Components["writer"] = map[string]any{
			"inserts":   writerStats.Inserts,
			"conflicts": writerStats.Conflicts,
			"errors":    writerStats.Errors,
			"flushes":   writerStats.Flushes,
		}

		// Set response
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
