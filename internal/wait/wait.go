// File: internal/wait/wait.go
// Package wait provides the bounded polling primitive every conditional wait
// in the harness is built on. A condition is re-evaluated until it holds or a
// deadline passes, and a deadline always produces an error that names what
// was being waited for.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ErrTimeout is matched by every *TimeoutError via errors.Is.
var ErrTimeout = errors.New("condition not met before timeout")

// Condition reports whether the awaited state has been reached. A returned
// error counts as "not yet" unless it is wrapped with Permanent.
type Condition func(ctx context.Context) (bool, error)

// ValueCondition is a Condition that also yields the value observed when it
// succeeded.
type ValueCondition[T any] func(ctx context.Context) (T, bool, error)

// TimeoutError describes a wait that ran out of time.
type TimeoutError struct {
	Condition string
	Timeout   time.Duration
	// LastErr is the most recent error returned by the condition, if any.
	LastErr error
}

func (e *TimeoutError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("timed out after %s waiting for %s: last error: %v", e.Timeout, e.Condition, e.LastErr)
	}
	return fmt.Sprintf("timed out after %s waiting for %s", e.Timeout, e.Condition)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

func (e *TimeoutError) Unwrap() error { return e.LastErr }

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks a condition error as fatal: Until returns it immediately
// instead of polling again.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Until polls cond until it returns true, the timeout elapses, or ctx is
// canceled. cond is evaluated once immediately, then at most once per
// interval, and once more at the deadline if the last interval was cut short.
func Until(ctx context.Context, description string, timeout, interval time.Duration, cond Condition) error {
	_, err := UntilValue(ctx, description, timeout, interval, func(ctx context.Context) (struct{}, bool, error) {
		ok, err := cond(ctx)
		return struct{}{}, ok, err
	})
	return err
}

// UntilValue is Until for conditions that produce a value, returning the
// value from the evaluation that succeeded.
func UntilValue[T any](ctx context.Context, description string, timeout, interval time.Duration, cond ValueCondition[T]) (T, error) {
	var zero T
	if timeout <= 0 {
		return zero, fmt.Errorf("wait for %s: timeout must be positive, got %s", description, timeout)
	}
	if interval <= 0 {
		return zero, fmt.Errorf("wait for %s: interval must be positive, got %s", description, interval)
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Burst of one: the first evaluation is free, later ones are paced.
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	var lastErr error

	evaluate := func(ctx context.Context) (T, bool, error) {
		value, ok, err := cond(ctx)
		if err != nil {
			var perm *permanentError
			if errors.As(err, &perm) {
				return zero, false, fmt.Errorf("wait for %s: %w", description, perm.err)
			}
			lastErr = err
		}
		return value, ok, nil
	}

	for {
		if err := limiter.Wait(waitCtx); err != nil {
			// The limiter refuses as soon as the next slot lands past the
			// deadline. Hold until the deadline and look one last time.
			<-waitCtx.Done()
			if err := ctx.Err(); err != nil {
				return zero, err
			}
			value, ok, err := evaluate(ctx)
			if err != nil {
				return zero, err
			}
			if ok {
				return value, nil
			}
			return zero, expired(ctx, description, timeout, lastErr)
		}

		value, ok, err := evaluate(waitCtx)
		if err != nil {
			return zero, err
		}
		if ok {
			return value, nil
		}

		if waitCtx.Err() != nil {
			return zero, expired(ctx, description, timeout, lastErr)
		}
	}
}

// expired distinguishes parent cancellation from the wait's own deadline.
func expired(parent context.Context, description string, timeout time.Duration, lastErr error) error {
	if err := parent.Err(); err != nil {
		return err
	}
	return &TimeoutError{Condition: description, Timeout: timeout, LastErr: lastErr}
}
