// Package retry wraps store calls with bounded backoff. Transient failures
// (transport errors, unavailable store) are retried; permanent store errors
// are returned on the first attempt.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/marcus/hearth/internal/remote"
)

const (
	// DefaultMaxAttempts is the total number of tries, including the first.
	DefaultMaxAttempts = 4
	// DefaultAttemptTimeout bounds a single try when the transport has none.
	DefaultAttemptTimeout = 10 * time.Second
)

// schedule is the wait before attempt i+1; the last entry holds.
var schedule = []time.Duration{
	800 * time.Millisecond,
	1600 * time.Millisecond,
	3200 * time.Millisecond,
}

// Delay returns the wait after the given failed attempt (1-based).
func Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(schedule) {
		return schedule[len(schedule)-1]
	}
	return schedule[attempt-1]
}

// Options configures Do. The zero value uses the defaults.
type Options struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	// Permanent classifies errors that must not be retried.
	Permanent func(error) bool
	// Sleep waits between attempts; it returns early with ctx.Err().
	Sleep func(ctx context.Context, d time.Duration) error
	// Label tags log lines.
	Label string
}

// Option mutates Options.
type Option func(*Options)

// WithMaxAttempts overrides the attempt ceiling.
func WithMaxAttempts(n int) Option {
	return func(o *Options) { o.MaxAttempts = n }
}

// WithAttemptTimeout overrides the per-attempt timeout. Zero disables it.
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *Options) { o.AttemptTimeout = d }
}

// WithSleep replaces the sleep function (tests).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Options) { o.Sleep = fn }
}

// WithLabel tags log lines with an operation name.
func WithLabel(label string) Option {
	return func(o *Options) { o.Label = label }
}

func defaults(opts []Option) Options {
	o := Options{
		MaxAttempts:    DefaultMaxAttempts,
		AttemptTimeout: DefaultAttemptTimeout,
		Permanent:      remote.IsPermanent,
		Sleep:          sleepContext,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 1
	}
	return o
}

// Do runs op until it succeeds, fails permanently, or MaxAttempts is reached,
// and returns the last result. It never panics on op failure; callers check
// the error.
func Do[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	o := defaults(opts)

	var (
		result T
		err    error
	)
	for attempt := 1; attempt <= o.MaxAttempts; attempt++ {
		result, err = runAttempt(ctx, op, o.AttemptTimeout)
		if err == nil {
			return result, nil
		}
		if o.Permanent(err) {
			slog.Debug("retry: permanent failure", "op", o.Label, "attempt", attempt, "err", err)
			return result, err
		}
		if attempt == o.MaxAttempts {
			break
		}
		wait := Delay(attempt)
		slog.Debug("retry: transient failure", "op", o.Label, "attempt", attempt, "wait", wait.String(), "err", err)
		if serr := o.Sleep(ctx, wait); serr != nil {
			return result, fmt.Errorf("%w (gave up after attempt %d: %v)", serr, attempt, err)
		}
	}
	slog.Warn("retry: attempts exhausted", "op", o.Label, "attempts", o.MaxAttempts, "err", err)
	return result, err
}

// DoErr is Do for operations without a result.
func DoErr(ctx context.Context, op func(ctx context.Context) error, opts ...Option) error {
	_, err := Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, opts...)
	return err
}

func runAttempt[T any](ctx context.Context, op func(ctx context.Context) (T, error), timeout time.Duration) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(actx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
