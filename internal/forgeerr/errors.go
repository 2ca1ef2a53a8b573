// Package forgeerr defines the typed error kinds shared across the
// generation pipeline, so callers can branch on failure class with
// errors.Is instead of string matching.
package forgeerr

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrProviderError      = errors.New("provider error")
	ErrEmptyResponse      = errors.New("empty response")
	ErrMalformedOutput    = errors.New("malformed output")
	ErrStreamError        = errors.New("stream error")
	ErrTimeout            = errors.New("timeout")
	ErrCancelled          = errors.New("cancelled")
	ErrPersistenceError   = errors.New("persistence error")
	ErrNotConfigured      = errors.New("not configured")
	ErrNotFound           = errors.New("not found")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrAllProvidersFailed = errors.New("all providers failed")
)

// StageError wraps err with the pipeline stage name it originated from, so the
// CLI and HTTP surfaces can report "[stage] message" without re-deriving it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	if e.Stage == "" {
		return e.Err.Error()
	}
	return "[" + e.Stage + "] " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func WithStage(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// RateLimitedError carries the retry-after hint required by spec for 429s.
type RateLimitedError struct {
	RetryAfterMs int64
}

func (e *RateLimitedError) Error() string { return "rate limited" }
func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }
