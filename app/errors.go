package app

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no rows exist for a batch id.
var ErrNotFound = errors.New("batch not found")

// FetchError reports a failed source download. StatusCode is zero when the
// request never produced a response.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: http %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DecodeError reports bytes that are not a decodable image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode image: %v", e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }

// PublishError reports a failed upload to the storage endpoint.
type PublishError struct {
	Name       string
	StatusCode int
	Err        error
}

func (e *PublishError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("publish %s: http %d", e.Name, e.StatusCode)
	}
	return fmt.Sprintf("publish %s: %v", e.Name, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// ValidationError reports a malformed ingestion row. Line is 1-based and
// counts the header line.
type ValidationError struct {
	Line    int
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("line %d: %s: %s", e.Line, e.Field, e.Message)
}
