// Package retry executes fallible operations with bounded, deterministic
// exponential backoff, filtering retries by classified error kind.
package retry

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/aidwise/aidwise/internal/fault"
)

// Options controls the backoff schedule and retry filtering.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64

	// Predicate, when non-nil, can veto a retry the classifier would allow.
	// It can never force a retry of a non-retryable kind.
	Predicate func(*fault.Error) bool
}

// DefaultOptions matches the pipeline's standard schedule: up to 3 attempts,
// 500ms doubling to a 5s ceiling.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2,
	}
}

// Outcome is the result of a Do call.
type Outcome[T any] struct {
	OK       bool
	Value    T
	Err      *fault.Error
	Attempts int
}

// sleep is swapped in tests to observe the schedule without waiting.
var sleep = func(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Do runs op with exponential backoff. On failure the error is classified
// with fctx; classification decides retryability. Validation and
// authentication failures are never retried, regardless of Predicate —
// retrying a malformed or unauthorized request cannot succeed.
//
// The delay before attempt n+1 is min(base * multiplier^(n-1), max), with
// no jitter.
func Do[T any](ctx context.Context, op func(context.Context) (T, error), fctx fault.Context, opts Options) Outcome[T] {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = 2
	}

	var classified *fault.Error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		value, err := op(ctx)
		if err == nil {
			return Outcome[T]{OK: true, Value: value, Attempts: attempt}
		}

		classified = fault.Classify(err, fctx)
		if !retryAllowed(classified, opts) || attempt == opts.MaxAttempts {
			return Outcome[T]{Err: classified, Attempts: attempt}
		}

		delay := backoff(attempt, opts)
		slog.Debug("retrying after failure",
			"action", fctx.Action,
			"kind", string(classified.Kind),
			"attempt", attempt,
			"delay", delay,
		)
		if err := sleep(ctx, delay); err != nil {
			return Outcome[T]{
				Err:      fault.Classify(err, fctx),
				Attempts: attempt,
			}
		}
	}

	// Unreachable: the loop always returns.
	return Outcome[T]{Err: classified, Attempts: opts.MaxAttempts}
}

func retryAllowed(e *fault.Error, opts Options) bool {
	// Hard rule, not overridable by Predicate.
	if e.Kind == fault.KindValidation || e.Kind == fault.KindAuthentication {
		return false
	}
	if !e.Retryable {
		return false
	}
	if opts.Predicate != nil && !opts.Predicate(e) {
		return false
	}
	return true
}

func backoff(attempt int, opts Options) time.Duration {
	d := time.Duration(float64(opts.BaseDelay) * math.Pow(opts.Multiplier, float64(attempt-1)))
	if opts.MaxDelay > 0 && d > opts.MaxDelay {
		d = opts.MaxDelay
	}
	return d
}
