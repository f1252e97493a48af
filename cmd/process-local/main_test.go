package main

import (
	"context"
	"errors"
	"testing"

	"github.com/abhi007singh/legendary-sniffle/app"
	"github.com/abhi007singh/legendary-sniffle/app/config"

	"github.com/rs/zerolog"
)

func TestRunUnknownBatchReturnsError(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("IMAGE_SERVER_URL", "http://storage.test")
	t.Setenv("IMAGE_URL", "https://cdn.test/images/input")
	cfg, err := config.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error = %v", err)
	}

	_, err = run(context.Background(), cfg, zerolog.Nop(), "missing")
	if !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("run error = %v, want ErrNotFound", err)
	}
}

func TestRunBuildFailure(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Driver: "mongo"}}
	if _, err := run(context.Background(), cfg, zerolog.Nop(), "b1"); err == nil {
		t.Fatalf("run should fail for an unknown store driver")
	}
}
