package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Fetcher downloads one source image.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher is a Fetcher with a per-call deadline and a body size cap.
type HTTPFetcher struct {
	Client   *http.Client
	Timeout  time.Duration
	MaxBytes int64
}

func NewHTTPFetcher(timeout time.Duration, maxBytes int64) *HTTPFetcher {
	return &HTTPFetcher{
		Client:   &http.Client{},
		Timeout:  timeout,
		MaxBytes: maxBytes,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("Accept", "image/*")

	res, err := f.Client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		// drain a little so the connection can be reused
		_, _ = io.CopyN(io.Discard, res.Body, 4<<10)
		return nil, &FetchError{URL: url, StatusCode: res.StatusCode, Err: fmt.Errorf("bad status: %s", res.Status)}
	}

	body := io.Reader(res.Body)
	if f.MaxBytes > 0 {
		body = io.LimitReader(res.Body, f.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	if f.MaxBytes > 0 && int64(len(data)) > f.MaxBytes {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("body exceeds %d bytes", f.MaxBytes)}
	}
	return data, nil
}
