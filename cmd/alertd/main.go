package main

import (
	"context"
	"os/signal"
	"syscall"

	"fleetalert/internal/config"
	"fleetalert/internal/daemon"
	"fleetalert/internal/logger"
)

func main() {
	cfg := config.FromEnv()
	logger.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run blocks until the context is cancelled and handles its own
	// graceful shutdown, so there is nothing left to wait for here.
	log := logger.WithComponent("main")
	if err := daemon.New(cfg).Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("daemon exited")
	}
	log.Info().Msg("exited")
}
