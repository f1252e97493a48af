package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreDynamo   = "dynamodb"

	StorageHTTP = "http"
	StorageS3   = "s3"
)

type Config struct {
	Logs     LogConfig
	DB       PostgresConfig
	Store    StoreConfig
	HTTP     HTTPConfig
	Pipeline PipelineConfig
	Storage  StorageConfig
	Notify   NotifyConfig
	QueueURL string
}

type LogConfig struct {
	Style string // "json" or "pretty"
	Level string
}

type PostgresConfig struct {
	Username string
	Password string
	URL      string
	Port     string
	Database string
	SSLMode  string
}

// DSN renders the connection string handed to lib/pq.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.Username,
		c.Password,
		c.URL,
		c.Port,
		c.Database,
		c.SSLMode,
	)
}

type StoreConfig struct {
	Driver      string
	DynamoTable string
}

type HTTPConfig struct {
	Port          string
	WebhookPort   string
	MaxFileSizeMB int
}

type PipelineConfig struct {
	QualityFactor  int // JPEG quality of the reduced copy, 1..100
	FetchTimeout   time.Duration
	PublishTimeout time.Duration
	MaxImageBytes  int64
	BatchTimeout   time.Duration
}

type StorageConfig struct {
	Driver        string
	Endpoint      string // storage endpoint accepting multipart uploads
	PublicBaseURL string // public URLs are PublicBaseURL + "/" + name
	Bucket        string
	Prefix        string
}

type NotifyConfig struct {
	Endpoint    string
	MaxAttempts int
	Backoff     time.Duration
	Timeout     time.Duration
}

// LoadConfig reads the process environment once. Unset values fall back to
// defaults; malformed values are reported instead of silently replaced.
func LoadConfig() (*Config, error) {
	var errs []error

	maxFileSize := intEnv("MAX_FILE_SIZE_MB", 10, &errs)
	quality := intEnv("QUALITY_FACTOR", 50, &errs)
	maxImageBytes := intEnv("MAX_IMAGE_BYTES", 20<<20, &errs)
	notifyAttempts := intEnv("NOTIFY_MAX_ATTEMPTS", 3, &errs)

	cfg := &Config{
		QueueURL: os.Getenv("QUEUE_URL"),
		Logs: LogConfig{
			Style: stringEnv("LOG_STYLE", "json"),
			Level: stringEnv("LOG_LEVEL", "info"),
		},
		DB: PostgresConfig{
			Username: os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PWD"),
			URL:      stringEnv("POSTGRES_URL", "127.0.0.1"),
			Port:     stringEnv("POSTGRES_PORT", "5432"),
			Database: stringEnv("POSTGRES_DB", "postgres"),
			SSLMode:  stringEnv("POSTGRES_SSLMODE", "disable"),
		},
		Store: StoreConfig{
			Driver:      strings.ToLower(stringEnv("STORE_DRIVER", StorePostgres)),
			DynamoTable: stringEnv("DYNAMO_TABLE", "ProductRows"),
		},
		HTTP: HTTPConfig{
			Port:          stringEnv("PORT", "3000"),
			WebhookPort:   stringEnv("WEBHOOK_PORT", "3100"),
			MaxFileSizeMB: maxFileSize,
		},
		Pipeline: PipelineConfig{
			QualityFactor:  quality,
			FetchTimeout:   durationEnv("FETCH_TIMEOUT", 20*time.Second, &errs),
			PublishTimeout: durationEnv("PUBLISH_TIMEOUT", 30*time.Second, &errs),
			MaxImageBytes:  int64(maxImageBytes),
			BatchTimeout:   durationEnv("BATCH_TIMEOUT", 30*time.Minute, &errs),
		},
		Storage: StorageConfig{
			Driver:        strings.ToLower(stringEnv("STORAGE_DRIVER", StorageHTTP)),
			Endpoint:      strings.TrimRight(os.Getenv("IMAGE_SERVER_URL"), "/"),
			PublicBaseURL: strings.TrimRight(os.Getenv("IMAGE_URL"), "/"),
			Bucket:        os.Getenv("S3_BUCKET"),
			Prefix:        strings.Trim(os.Getenv("S3_PREFIX"), "/"),
		},
		Notify: NotifyConfig{
			Endpoint:    stringEnv("WEBHOOK_URL", "http://localhost:3100/webhook"),
			MaxAttempts: notifyAttempts,
			Backoff:     durationEnv("NOTIFY_BACKOFF", 500*time.Millisecond, &errs),
			Timeout:     durationEnv("NOTIFY_TIMEOUT", 10*time.Second, &errs),
		},
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that the loader cannot.
func (c *Config) Validate() error {
	var errs []error
	if c.Pipeline.QualityFactor < 1 || c.Pipeline.QualityFactor > 100 {
		errs = append(errs, fmt.Errorf("QUALITY_FACTOR must be within 1..100, got %d", c.Pipeline.QualityFactor))
	}
	if c.Pipeline.FetchTimeout <= 0 || c.Pipeline.PublishTimeout <= 0 {
		errs = append(errs, errors.New("FETCH_TIMEOUT and PUBLISH_TIMEOUT must be positive"))
	}
	if c.Pipeline.MaxImageBytes <= 0 {
		errs = append(errs, errors.New("MAX_IMAGE_BYTES must be positive"))
	}
	if c.HTTP.MaxFileSizeMB <= 0 {
		errs = append(errs, errors.New("MAX_FILE_SIZE_MB must be positive"))
	}
	if c.Notify.MaxAttempts < 1 {
		errs = append(errs, errors.New("NOTIFY_MAX_ATTEMPTS must be at least 1"))
	}

	switch c.Store.Driver {
	case StoreMemory, StorePostgres:
	case StoreDynamo:
		if c.Store.DynamoTable == "" {
			errs = append(errs, errors.New("DYNAMO_TABLE is required for the dynamodb store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}

	switch c.Storage.Driver {
	case StorageHTTP:
		if c.Storage.Endpoint == "" {
			errs = append(errs, errors.New("IMAGE_SERVER_URL is required for the http storage driver"))
		}
	case StorageS3:
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for the s3 storage driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver))
	}
	if c.Storage.PublicBaseURL == "" {
		errs = append(errs, errors.New("IMAGE_URL is required"))
	}

	return errors.Join(errs...)
}

// UsesAWS reports whether any configured component talks to AWS.
func (c *Config) UsesAWS() bool {
	return c.QueueURL != "" || c.Store.Driver == StoreDynamo || c.Storage.Driver == StorageS3
}

func stringEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int, errs *[]error) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("error converting string to int: %s: %w", key, err))
		return def
	}
	return n
}

func durationEnv(key string, def time.Duration, errs *[]error) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("error parsing duration: %s: %w", key, err))
		return def
	}
	return d
}
