package main

import (
	"context"

	"github.com/abhi007singh/legendary-sniffle/app"
	"github.com/abhi007singh/legendary-sniffle/app/config"
	"github.com/abhi007singh/legendary-sniffle/app/logging"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(cfg.Logs)

	svc, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize service")
	}

	// messages arrive through the event, the worker never polls here
	w := svc.Worker
	if w == nil {
		w = app.NewWorker(nil, "", svc.Orchestrator, cfg.Pipeline.BatchTimeout, logger)
	}
	lambda.Start(w.HandleSQSEvent)
}
