// Package errs defines the error taxonomy shared across Trace's
// subsystems (spec §7) and the retry helper used by every blocking
// call site (LLM, embedding, platform probe, database write).
package errs

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Kind classifies an error for propagation-policy purposes.
type Kind string

const (
	NotFound            Kind = "not_found"
	Validation          Kind = "validation"
	Conflict            Kind = "conflict" // duplicate note / idempotency
	Transient           Kind = "transient" // rate-limit, timeout, connection
	Permission          Kind = "permission"
	PlatformUnavailable Kind = "platform_unavailable"
	SchemaInvalid       Kind = "schema_invalid"
	StorageError        Kind = "storage_error"
	Fatal               Kind = "fatal"
)

// TraceError wraps an underlying error with a Kind and the operation
// that produced it, so callers can branch on Kind via errors.As while
// keeping %w-compatible chains.
type TraceError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *TraceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *TraceError) Unwrap() error { return e.Err }

// New builds a TraceError.
func New(kind Kind, op string, err error) *TraceError {
	return &TraceError{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var te *TraceError
	if errors.As(err, &te) {
		return te.Kind == kind
	}
	return false
}

// IsRetryable reports whether err should be retried locally per §5:
// Transient errors are retryable; everything else surfaces immediately.
func IsRetryable(err error) bool {
	return Is(err, Transient)
}

// RetryConfig parameterizes the exponential backoff described in §5:
// base 1s, factor 2, jitter ±10%, cap 30-60s, bounded attempts.
type RetryConfig struct {
	MaxAttempts int
	Base        time.Duration
	Factor      float64
	JitterFrac  float64
	Cap         time.Duration
}

// DefaultLLMRetry is the retry budget for LLM calls (3 attempts, §5).
var DefaultLLMRetry = RetryConfig{MaxAttempts: 3, Base: time.Second, Factor: 2, JitterFrac: 0.1, Cap: 30 * time.Second}

// DefaultAPIRetry is the retry budget for generic external API calls
// (embedding providers, platform integrations — 5 attempts, §5).
var DefaultAPIRetry = RetryConfig{MaxAttempts: 5, Base: time.Second, Factor: 2, JitterFrac: 0.1, Cap: 60 * time.Second}

// DefaultStorageRetry is the retry budget for database OperationalError
// equivalents (3 attempts, §5).
var DefaultStorageRetry = RetryConfig{MaxAttempts: 3, Base: time.Second, Factor: 2, JitterFrac: 0.1, Cap: 30 * time.Second}

// Retry runs fn up to cfg.MaxAttempts times, sleeping with exponential
// backoff and jitter between attempts whenever fn's error IsRetryable.
// A non-retryable error, or the final attempt's error, is returned
// immediately. Honors ctx cancellation between attempts.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	delay := cfg.Base
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		jitter := 1.0 + (rand.Float64()*2-1)*cfg.JitterFrac
		sleep := time.Duration(float64(delay) * jitter)
		if sleep > cfg.Cap {
			sleep = cfg.Cap
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		delay = time.Duration(float64(delay) * cfg.Factor)
		if delay > cfg.Cap {
			delay = cfg.Cap
		}
	}
	return lastErr
}
