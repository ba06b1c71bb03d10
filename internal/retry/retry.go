// Package retry wraps fallible external calls with bounded exponential
// backoff. The policy is a plain value so tests can exercise it with fake
// operations and zero waits.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Operation is one attempt of an external call. The context carries the
// per-call timeout.
type Operation func(ctx context.Context) error

// ExhaustedError reports that every attempt in the budget failed with a
// transient error. It is distinct from a first-attempt permanent failure so
// callers can tell "never worked" from "stopped working after N tries".
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Policy retries transient failures with exponential backoff and jitter.
// The zero value is not usable; use DefaultPolicy as a starting point.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	CallTimeout     time.Duration

	// IsTransient classifies an error as worth retrying. When nil, every
	// error except a context cancellation is considered transient.
	IsTransient func(error) bool

	Logger *slog.Logger
}

// DefaultPolicy mirrors the backoff parameters of the LLM retry decorator:
// up to 5 attempts, 2s initial wait doubling to a 60s cap.
func DefaultPolicy(logger *slog.Logger) Policy {
	return Policy{
		MaxAttempts:     5,
		InitialInterval: 2 * time.Second,
		MaxInterval:     60 * time.Second,
		CallTimeout:     5 * time.Minute,
		Logger:          logger,
	}
}

// Execute runs op, retrying transient failures until the attempt budget is
// spent. A non-transient error propagates immediately. When the budget is
// exhausted the last error is returned wrapped in ExhaustedError.
func (p Policy) Execute(ctx context.Context, op Operation) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	attempts := 0
	lastTransient := false

	attempt := func() error {
		attempts++
		callCtx := ctx
		if p.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.CallTimeout)
			defer cancel()
		}

		err := op(callCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			// The caller is gone; don't reclassify its cancellation.
			return backoff.Permanent(ctx.Err())
		}
		if !p.isTransient(err) {
			lastTransient = false
			return backoff.Permanent(err)
		}

		lastTransient = true
		if p.Logger != nil && attempts < p.MaxAttempts {
			p.Logger.Warn("transient failure, will retry",
				"attempt", attempts, "max_attempts", p.MaxAttempts, "error", err)
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.MaxInterval = p.MaxInterval
	bo.MaxElapsedTime = 0 // bounded by attempts, not wall time

	err := backoff.Retry(attempt,
		backoff.WithContext(backoff.WithMaxRetries(bo, uint64(p.MaxAttempts-1)), ctx))
	if err == nil {
		return nil
	}
	if lastTransient && attempts >= p.MaxAttempts {
		return &ExhaustedError{Attempts: attempts, Err: err}
	}
	return err
}

func (p Policy) isTransient(err error) bool {
	if p.IsTransient != nil {
		return p.IsTransient(err)
	}
	return !errors.Is(err, context.Canceled)
}
