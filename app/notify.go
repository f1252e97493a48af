package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/abhi007singh/legendary-sniffle/app/models"

	"github.com/rs/zerolog"
)

// Notifier delivers the completion signal of a batch.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// WebhookNotifier POSTs the notification as JSON and retries transport
// errors, 429 and 5xx with linear backoff.
type WebhookNotifier struct {
	Client      *http.Client
	Endpoint    string
	MaxAttempts int
	Backoff     time.Duration
	Log         zerolog.Logger
}

func NewWebhookNotifier(endpoint string, maxAttempts int, backoff, timeout time.Duration, logger zerolog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		Client:      &http.Client{Timeout: timeout},
		Endpoint:    endpoint,
		MaxAttempts: maxAttempts,
		Backoff:     backoff,
		Log:         logger,
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, msg models.Notification) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	attempts := max(n.MaxAttempts, 1)
	var last error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("notify %s: %w (last error: %v)", msg.BatchID, ctx.Err(), last)
			case <-time.After(time.Duration(attempt) * n.Backoff):
			}
		}

		retry, err := n.post(ctx, payload)
		if err == nil {
			return nil
		}
		last = err
		n.Log.Warn().Err(err).Str("batch_id", msg.BatchID).Int("attempt", attempt+1).Msg("webhook delivery failed")
		if !retry {
			break
		}
	}
	return fmt.Errorf("notify %s: %w", msg.BatchID, last)
}

// post reports whether a failure is worth retrying.
func (n *WebhookNotifier) post(ctx context.Context, payload []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := n.Client.Do(req)
	if err != nil {
		return true, err
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(res.Body, 512))

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return false, nil
	}
	retry := res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500
	return retry, fmt.Errorf("webhook http %d: %s", res.StatusCode, bytes.TrimSpace(body))
}
