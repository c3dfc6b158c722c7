// Package main provides the entry point for the HearMe relay service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/hearme/internal/config"
	"github.com/thebtf/hearme/internal/logging"
	"github.com/thebtf/hearme/internal/relay"
)

var Version = "dev"

func main() {
	if err := config.EnsureAll(); err != nil {
		log.Warn().Err(err).Msg("Failed to create data directory")
	}
	cfg := config.Get()

	// Setup logging
	logCloser := logging.Setup(logging.Options{File: cfg.LogFile, Level: cfg.LogLevel})
	defer logCloser.Close()

	log.Info().
		Str("version", Version).
		Int("port", cfg.RelayPort).
		Msg("Starting HearMe relay")

	var limits *relay.Limits
	if cfg.RedisAddr != "" {
		pool := relay.NewRedisPool(cfg.RedisAddr)
		defer pool.Close()
		limits = relay.NewLimits(relay.DefaultRateLimits(), pool)
		log.Info().Str("addr", cfg.RedisAddr).Msg("Using Redis for rate limits")
	}

	// Routes are live immediately; components attach in the background
	svc := relay.NewService(Version, cfg, limits)
	svc.InitializeAsync()

	if err := svc.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start service")
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Received shutdown signal")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := svc.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}

	log.Info().Msg("Relay shutdown complete")
}
