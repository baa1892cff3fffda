// Package retry runs an operation until it succeeds, escalating persistent failures.
package retry

import (
	"context"
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
)

// DefaultAlertEvery is how many consecutive failures trigger one escalation.
const DefaultAlertEvery = 10

// Options tune Forever.
type Options struct {
	// AlertEvery escalates on every Nth consecutive failure.
	AlertEvery int
	// OnAlert receives the escalation message. Optional.
	OnAlert func(ctx context.Context, message string)
	// OnFailure is called after every failed attempt. Optional.
	OnFailure func(err error)
	Logger    zerolog.Logger
}

// Forever invokes op until it returns without error.
//
// There is no backoff; the goroutine yields between attempts. The failure
// counter spans the whole call, so an escalation is sent on failure N, 2N, 3N
// and so on. The only early exit is ctx cancellation, which returns ctx.Err().
func Forever[T any](ctx context.Context, opts Options, op func(ctx context.Context) (T, error)) (T, error) {
	every := opts.AlertEvery
	if every <= 0 {
		every = DefaultAlertEvery
	}

	var zero T
	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		value, err := op(ctx)
		if err == nil {
			if failures > 0 {
				opts.Logger.Info().Int("failures", failures).Msg("task recovered")
			}
			return value, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		failures++
		opts.Logger.Warn().Err(err).Int("failures", failures).Msg("task failed, retrying")
		if opts.OnFailure != nil {
			opts.OnFailure(err)
		}
		if failures%every == 0 && opts.OnAlert != nil {
			opts.OnAlert(ctx, Message(err))
		}

		runtime.Gosched()
	}
}

// Message renders the escalation text for err.
func Message(err error) string {
	return fmt.Sprintf("Failed task with %v, retrying", err)
}
