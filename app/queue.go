package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abhi007singh/legendary-sniffle/app/models"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog"
)

// Dispatcher schedules a stored batch for processing without waiting for it.
type Dispatcher interface {
	Dispatch(ctx context.Context, batchID string) error
}

// BatchProcessor is implemented by *Orchestrator.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, batchID string) (BatchReport, error)
	Wait()
}

// LocalDispatcher runs batches on goroutines owned by the process. A batch
// that is already running is not started twice.
type LocalDispatcher struct {
	Processor BatchProcessor
	Timeout   time.Duration
	Log       zerolog.Logger

	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

func NewLocalDispatcher(p BatchProcessor, timeout time.Duration, logger zerolog.Logger) *LocalDispatcher {
	return &LocalDispatcher{Processor: p, Timeout: timeout, Log: logger, running: make(map[string]struct{})}
}

// Dispatch ignores ctx for the run itself; the batch outlives the request.
func (d *LocalDispatcher) Dispatch(_ context.Context, batchID string) error {
	d.mu.Lock()
	if _, ok := d.running[batchID]; ok {
		d.mu.Unlock()
		d.Log.Info().Str("batch_id", batchID).Msg("batch already running")
		return nil
	}
	d.running[batchID] = struct{}{}
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			d.mu.Lock()
			delete(d.running, batchID)
			d.mu.Unlock()
		}()

		ctx := context.Background()
		if d.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.Timeout)
			defer cancel()
		}
		if _, err := d.Processor.ProcessBatch(ctx, batchID); err != nil {
			d.Log.Error().Err(err).Str("batch_id", batchID).Msg("batch processing failed")
		}
	}()
	return nil
}

// Wait blocks until every dispatched batch and its notification are done.
func (d *LocalDispatcher) Wait() {
	d.wg.Wait()
	d.Processor.Wait()
}

// SQSAPI is the subset of *sqs.Client used here.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSDispatcher enqueues a BatchMessage for a Worker.
type SQSDispatcher struct {
	Client   SQSAPI
	QueueURL string
}

func (d *SQSDispatcher) Dispatch(ctx context.Context, batchID string) error {
	body, err := json.Marshal(models.BatchMessage{BatchID: batchID})
	if err != nil {
		return err
	}
	_, err = d.Client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(d.QueueURL),
		MessageBody: aws.String(string(body)),
	})
	return err
}

// Worker long-polls SQS and processes one batch per message.
type Worker struct {
	Client       SQSAPI
	QueueURL     string
	Processor    BatchProcessor
	BatchTimeout time.Duration
	Log          zerolog.Logger

	MaxMessages       int32
	WaitTimeSeconds   int32
	VisibilityTimeout int32
	IdleSleep         time.Duration
	ErrorSleep        time.Duration
}

func NewWorker(client SQSAPI, queueURL string, p BatchProcessor, batchTimeout time.Duration, logger zerolog.Logger) *Worker {
	return &Worker{
		Client:       client,
		QueueURL:     queueURL,
		Processor:    p,
		BatchTimeout: batchTimeout,
		Log:          logger,
		// one at a time so the visibility timeout covers the whole batch
		MaxMessages: 1,
		// long polling
		WaitTimeSeconds: 20,
		// must be longer than the slowest batch
		VisibilityTimeout: int32(max(batchTimeout, 3*time.Minute)/time.Second) + 60,
		IdleSleep:         2 * time.Second,
		ErrorSleep:        5 * time.Second,
	}
}

// Run polls until ctx is cancelled. Messages are deleted on success and on
// permanent failures; anything else is left for redelivery.
func (w *Worker) Run(ctx context.Context) error {
	w.Log.Info().Str("queue_url", w.QueueURL).Msg("worker started")

	for {
		if ctx.Err() != nil {
			w.Processor.Wait()
			return nil
		}

		recvCtx, cancel := context.WithTimeout(ctx, time.Duration(w.WaitTimeSeconds+10)*time.Second)
		resp, err := w.Client.ReceiveMessage(recvCtx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(w.QueueURL),
			MaxNumberOfMessages: w.MaxMessages,
			WaitTimeSeconds:     w.WaitTimeSeconds,
			VisibilityTimeout:   w.VisibilityTimeout,
		})
		cancel()

		if err != nil {
			if ctx.Err() == nil {
				w.Log.Error().Err(err).Msg("ReceiveMessage error")
			}
			sleep(ctx, w.ErrorSleep)
			continue
		}
		if len(resp.Messages) == 0 {
			sleep(ctx, w.IdleSleep)
			continue
		}

		for _, m := range resp.Messages {
			if del := w.handle(ctx, aws.ToString(m.Body)); del {
				w.deleteMessage(m)
			}
		}
	}
}

// handle reports whether the message should be deleted.
func (w *Worker) handle(ctx context.Context, body string) bool {
	err := w.processBody(ctx, body)
	var perm *permanentError
	switch {
	case err == nil:
		return true
	case errors.As(err, &perm):
		w.Log.Error().Err(err).Str("body", body).Msg("dropping message")
		return true
	default:
		w.Log.Error().Err(err).Msg("batch failed, leaving message for retry")
		return false
	}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func (w *Worker) processBody(ctx context.Context, body string) error {
	var msg models.BatchMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return &permanentError{fmt.Errorf("unmarshal batch message: %w", err)}
	}
	if msg.BatchID == "" {
		return &permanentError{errors.New("batch message without batchId")}
	}

	jobCtx := ctx
	if w.BatchTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.BatchTimeout)
		defer cancel()
	}
	_, err := w.Processor.ProcessBatch(jobCtx, msg.BatchID)
	if errors.Is(err, ErrNotFound) {
		return &permanentError{fmt.Errorf("batch %s: %w", msg.BatchID, err)}
	}
	return err
}

func (w *Worker) deleteMessage(m sqstypes.Message) {
	if m.ReceiptHandle == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := w.Client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(w.QueueURL),
		ReceiptHandle: m.ReceiptHandle,
	})
	if err != nil {
		w.Log.Error().Err(err).Msg("failed to delete SQS message")
	}
}

// HandleSQSEvent is the Lambda SQS trigger. Transient failures are reported
// as batch item failures so only those messages are redelivered.
func (w *Worker) HandleSQSEvent(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if !w.handle(ctx, rec.Body) {
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	// notifications must finish before the runtime freezes
	w.Processor.Wait()
	return resp, nil
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
