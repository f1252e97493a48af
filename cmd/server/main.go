package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

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

	svc, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize service")
	}

	api := &http.Server{Addr: "0.0.0.0:" + cfg.HTTP.Port, Handler: svc.APIRouter()}
	hook := &http.Server{Addr: "0.0.0.0:" + cfg.HTTP.WebhookPort, Handler: svc.WebhookRouter()}

	errCh := make(chan error, 2)
	for _, srv := range []*http.Server{api, hook} {
		go func(srv *http.Server) {
			logger.Info().Str("addr", srv.Addr).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("%s: %w", srv.Addr, err)
			}
		}(srv)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	exitCode := 0
	select {
	case <-sigCh:
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		exitCode = 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	// stop taking uploads first
	if err := api.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("api shutdown")
	}

	// running batches still notify through the webhook listener
	logger.Info().Msg("waiting for running batches")
	svc.Wait()

	hookCtx, hookCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer hookCancel()
	if err := hook.Shutdown(hookCtx); err != nil {
		logger.Error().Err(err).Msg("webhook shutdown")
	}
	svc.Close()
	logger.Info().Msg("bye")
	os.Exit(exitCode)
}
