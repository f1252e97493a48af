package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/abhi007singh/legendary-sniffle/app"
	"github.com/abhi007singh/legendary-sniffle/app/config"
	"github.com/abhi007singh/legendary-sniffle/app/logging"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(cfg.Logs)

	if cfg.QueueURL == "" {
		logger.Fatal().Msg("QUEUE_URL environment variable is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize service")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("shutdown signal received, finishing current batch")
		cancel()
	}()

	err = svc.Worker.Run(ctx)
	svc.Close()
	if err != nil {
		logger.Error().Err(err).Msg("worker stopped")
		os.Exit(1)
	}
}
