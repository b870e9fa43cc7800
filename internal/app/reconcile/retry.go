package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryConfig bounds the save-retry loop. The delay is fixed, not
// exponential: three quick attempts against a local store either succeed or
// the store is down, and the caller's rollback path takes over.
type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		Delay:       200 * time.Millisecond,
	}
}

// SaveError is the terminal failure after retry exhaustion. Err preserves
// the last underlying error.
type SaveError struct {
	Attempts int
	Err      error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// Retry runs fn up to cfg.MaxAttempts times, waiting cfg.Delay between
// attempts. fn is expected to re-validate its references and re-apply its
// changes on every call; a *StaleError aborts immediately since retrying a
// dead reference cannot succeed.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	var last error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		last = fn(ctx)
		if last == nil {
			return nil
		}
		var se *StaleError
		if errors.As(last, &se) {
			return last
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Delay):
		}
	}
	return &SaveError{Attempts: cfg.MaxAttempts, Err: last}
}
