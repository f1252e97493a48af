package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abhi007singh/legendary-sniffle/app/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Service is the fully wired pipeline shared by every binary.
type Service struct {
	Config       *config.Config
	Store        RowStore
	Orchestrator *Orchestrator
	Reconciler   *Reconciler
	Dispatcher   Dispatcher
	Ingestor     *Ingestor
	Server       *Server
	Webhook      *WebhookHandler
	// Worker is nil unless QUEUE_URL is set.
	Worker *Worker

	log     zerolog.Logger
	closers []func() error
}

// Build wires every component from cfg. Call Close when done.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Service, error) {
	svc := &Service{Config: cfg, log: logger}

	var awsCfg aws.Config
	if cfg.UsesAWS() {
		c, err := NewAWSConfig(ctx)
		if err != nil {
			return nil, err
		}
		awsCfg = c
	}

	store, err := svc.buildStore(ctx, awsCfg)
	if err != nil {
		return nil, err
	}
	svc.Store = store

	var publisher Publisher
	switch cfg.Storage.Driver {
	case config.StorageS3:
		publisher = NewS3Publisher(s3.NewFromConfig(awsCfg), cfg.Storage.Bucket, cfg.Storage.Prefix, cfg.Storage.PublicBaseURL, cfg.Pipeline.PublishTimeout)
	default:
		publisher = NewMultipartPublisher(cfg.Storage.Endpoint, cfg.Storage.PublicBaseURL, cfg.Pipeline.PublishTimeout)
	}

	transcoder, err := NewJPEGTranscoder(cfg.Pipeline.QualityFactor)
	if err != nil {
		return nil, err
	}

	svc.Orchestrator = &Orchestrator{
		Store: store,
		Processor: &Processor{
			Store:      store,
			Fetcher:    NewHTTPFetcher(cfg.Pipeline.FetchTimeout, cfg.Pipeline.MaxImageBytes),
			Transcoder: transcoder,
			Publisher:  publisher,
			Log:        logger.With().Str("component", "processor").Logger(),
		},
		Notifier: NewWebhookNotifier(
			cfg.Notify.Endpoint,
			cfg.Notify.MaxAttempts,
			cfg.Notify.Backoff,
			cfg.Notify.Timeout,
			logger.With().Str("component", "notifier").Logger(),
		),
		NotifyTimeout: notifyBudget(cfg.Notify),
		Log:           logger.With().Str("component", "orchestrator").Logger(),
	}
	svc.Reconciler = &Reconciler{Store: store}

	if cfg.QueueURL != "" {
		client := sqs.NewFromConfig(awsCfg)
		svc.Dispatcher = &SQSDispatcher{Client: client, QueueURL: cfg.QueueURL}
		svc.Worker = NewWorker(client, cfg.QueueURL, svc.Orchestrator, cfg.Pipeline.BatchTimeout, logger.With().Str("component", "worker").Logger())
	} else {
		svc.Dispatcher = NewLocalDispatcher(svc.Orchestrator, cfg.Pipeline.BatchTimeout, logger.With().Str("component", "dispatcher").Logger())
	}

	svc.Ingestor = NewIngestor(store, svc.Dispatcher, logger.With().Str("component", "ingest").Logger())
	svc.Server = &Server{
		Ingestor:       svc.Ingestor,
		Reconciler:     svc.Reconciler,
		MaxUploadBytes: int64(cfg.HTTP.MaxFileSizeMB) << 20,
		Log:            logger.With().Str("component", "api").Logger(),
	}
	svc.Webhook = &WebhookHandler{Store: store, Log: logger.With().Str("component", "webhook").Logger()}

	return svc, nil
}

// notifyBudget bounds one delivery including every retry and backoff.
func notifyBudget(n config.NotifyConfig) time.Duration {
	attempts := time.Duration(max(n.MaxAttempts, 1))
	return attempts*n.Timeout + attempts*attempts*n.Backoff
}

func (s *Service) buildStore(ctx context.Context, awsCfg aws.Config) (RowStore, error) {
	cfg := s.Config
	switch cfg.Store.Driver {
	case config.StoreMemory:
		return NewMemoryStore(), nil
	case config.StoreDynamo:
		return NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.Store.DynamoTable, s.log.With().Str("component", "store").Logger()), nil
	case config.StorePostgres:
		pg, err := OpenPostgres(ctx, cfg.DB.DSN(), s.log.With().Str("component", "store").Logger())
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		s.closers = append(s.closers, pg.Close)
		return pg, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// APIRouter returns the public API router.
func (s *Service) APIRouter() *gin.Engine { return NewRouter(s.Server) }

// WebhookRouter returns the completion notification router.
func (s *Service) WebhookRouter() *gin.Engine { return NewWebhookRouter(s.Webhook) }

// Wait blocks until locally dispatched batches and their notifications finish.
func (s *Service) Wait() {
	if d, ok := s.Dispatcher.(*LocalDispatcher); ok {
		d.Wait()
		return
	}
	s.Orchestrator.Wait()
}

func (s *Service) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
