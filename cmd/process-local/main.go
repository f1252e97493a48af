package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/abhi007singh/legendary-sniffle/app"
	"github.com/abhi007singh/legendary-sniffle/app/config"
	"github.com/abhi007singh/legendary-sniffle/app/logging"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	batchID := flag.String("batch", "", "batch id to process")
	flag.Parse()

	start := time.Now()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(cfg.Logs)
	if *batchID == "" {
		logger.Fatal().Msg("-batch is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.BatchTimeout)
	defer cancel()

	report, err := run(ctx, cfg, logger, *batchID)
	if err != nil {
		logger.Error().Err(err).Str("batch_id", *batchID).Msg("batch failed")
		cancel()
		os.Exit(1)
	}

	published, failed := report.Totals()
	logger.Info().
		Str("batch_id", *batchID).
		Int("rows", len(report.Rows)).
		Int("published", published).
		Int("failed", failed).
		Dur("took", time.Since(start)).
		Msg("done")
}

// run processes one batch and closes the service before returning.
func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger, batchID string) (app.BatchReport, error) {
	svc, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return app.BatchReport{}, fmt.Errorf("initialize service: %w", err)
	}
	defer svc.Close()

	report, err := svc.Orchestrator.ProcessBatch(ctx, batchID)
	svc.Orchestrator.Wait()
	return report, err
}
