package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("IMAGE_SERVER_URL", "http://storage.local/")
	t.Setenv("IMAGE_URL", "http://cdn.local/images/input/")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error = %v", err)
	}
	if cfg.Pipeline.QualityFactor != 50 {
		t.Fatalf("QualityFactor = %d, want 50", cfg.Pipeline.QualityFactor)
	}
	if cfg.Pipeline.FetchTimeout != 20*time.Second || cfg.Pipeline.PublishTimeout != 30*time.Second {
		t.Fatalf("timeouts = %s/%s", cfg.Pipeline.FetchTimeout, cfg.Pipeline.PublishTimeout)
	}
	if cfg.HTTP.Port != "3000" || cfg.HTTP.WebhookPort != "3100" {
		t.Fatalf("ports = %s/%s", cfg.HTTP.Port, cfg.HTTP.WebhookPort)
	}
	if cfg.Storage.Endpoint != "http://storage.local" || cfg.Storage.PublicBaseURL != "http://cdn.local/images/input" {
		t.Fatalf("storage urls not trimmed: %+v", cfg.Storage)
	}
	if cfg.Notify.Endpoint != "http://localhost:3100/webhook" || cfg.Notify.MaxAttempts != 3 {
		t.Fatalf("notify defaults = %+v", cfg.Notify)
	}
	if cfg.UsesAWS() {
		t.Fatalf("default config should not need AWS")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("QUALITY_FACTOR", "80")
	t.Setenv("FETCH_TIMEOUT", "5s")
	t.Setenv("STORE_DRIVER", "DynamoDB")
	t.Setenv("QUEUE_URL", "https://sqs.local/queue")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error = %v", err)
	}
	if cfg.Pipeline.QualityFactor != 80 || cfg.Pipeline.FetchTimeout != 5*time.Second {
		t.Fatalf("overrides not applied: %+v", cfg.Pipeline)
	}
	if cfg.Store.Driver != StoreDynamo {
		t.Fatalf("Store.Driver = %q, want %q", cfg.Store.Driver, StoreDynamo)
	}
	if !cfg.UsesAWS() {
		t.Fatalf("queue + dynamodb config should need AWS")
	}
}

func TestLoadConfigErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad int", map[string]string{"QUALITY_FACTOR": "high"}, "QUALITY_FACTOR"},
		{"quality range", map[string]string{"QUALITY_FACTOR": "0"}, "1..100"},
		{"bad duration", map[string]string{"FETCH_TIMEOUT": "soon"}, "FETCH_TIMEOUT"},
		{"unknown store", map[string]string{"STORE_DRIVER": "mongo"}, "STORE_DRIVER"},
		{"s3 without bucket", map[string]string{"STORAGE_DRIVER": "s3"}, "S3_BUCKET"},
		{"missing public url", map[string]string{"IMAGE_URL": ""}, "IMAGE_URL"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			if err == nil {
				t.Fatalf("LoadConfig should fail")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q should mention %q", err, tc.want)
			}
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	c := PostgresConfig{Username: "u", Password: "p", URL: "db", Port: "5432", Database: "rows", SSLMode: "disable"}
	if got, want := c.DSN(), "postgres://u:p@db:5432/rows?sslmode=disable"; got != want {
		t.Fatalf("DSN = %q, want %q", got, want)
	}
}
