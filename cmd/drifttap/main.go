// drifttap subscribes to DriftDB topics and prints delivered datapoints to
// the console.
// Usage: go run ./cmd/drifttap --url https://drift.example.com/api/v1/ home/thermostat/temp
//
// Credentials come from flags or environment variables:
//
//	DRIFT_USER     - basic auth user
//	DRIFT_PASSWORD - basic auth password
//	DRIFT_API_KEY  - API key (overrides user/password)
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/driftdb/driftdb-go/connection"
)

func main() {
	url := flag.String("url", "http://localhost:8000/api/v1/", "server API base URL")
	user := flag.String("user", os.Getenv("DRIFT_USER"), "basic auth user")
	password := flag.String("password", os.Getenv("DRIFT_PASSWORD"), "basic auth password")
	apiKey := flag.String("apikey", os.Getenv("DRIFT_API_KEY"), "API key (overrides user/password)")
	transform := flag.String("transform", "", "server-side transform applied to each subscription")
	ack := flag.Bool("ack", false, "acknowledge downlink payloads back into the live stream")
	verbose := flag.Bool("verbose", false, "print full datapoint JSON")
	flag.Parse()

	topics := flag.Args()
	if len(topics) == 0 {
		fmt.Fprintln(os.Stderr, "usage: drifttap [flags] topic [topic...]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	cfg := connection.DefaultConfig()
	cfg.URL = *url

	mgr := connection.NewManager(cfg, logger)
	mgr.SetCredentials(connection.Credentials{
		User:     *user,
		Password: *password,
		APIKey:   *apiKey,
	})

	handler := func(topic string, data []connection.Datapoint) connection.AckResult {
		for _, dp := range data {
			if *verbose {
				out, _ := json.MarshalIndent(dp, "", "  ")
				fmt.Printf("[%s] %s\n", topic, out)
			} else {
				fmt.Printf("[%s] t=%.3f d=%v\n", topic, dp.Timestamp, dp.Data)
			}
		}
		if *ack {
			return connection.Acknowledge(nil)
		}
		return connection.PassThrough()
	}

	for _, topic := range topics {
		if err := mgr.Subscribe(ctx, topic, *transform, handler); err != nil {
			logger.Error("failed to subscribe", "topic", topic, "error", err)
			os.Exit(1)
		}
		logger.Info("subscribed", "topic", topic, "transform", *transform)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := mgr.Stats()
				logger.Info("stats",
					"state", stats.State.String(),
					"subscriptions", stats.Subscriptions,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
	mgr.Close()
	logger.Info("shutdown complete")
}
