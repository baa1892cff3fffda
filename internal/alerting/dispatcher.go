package alerting

import (
	"context"

	"github.com/rs/zerolog"
)

// FailureRecorder counts failed deliveries per channel.
type FailureRecorder interface {
	NotifyFailed(channel string)
}

// Dispatcher fans a message out to every configured channel.
type Dispatcher struct {
	notifiers []Notifier
	failures  FailureRecorder
	logger    zerolog.Logger
}

// NewDispatcher 构造告警分发器。failures may be nil.
func NewDispatcher(notifiers []Notifier, failures FailureRecorder, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		notifiers: notifiers,
		failures:  failures,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Channels returns the configured channel names.
func (d *Dispatcher) Channels() []string {
	names := make([]string, len(d.notifiers))
	for i, n := range d.notifiers {
		names[i] = n.Name()
	}
	return names
}

// Dispatch makes exactly one attempt per channel.
// Failures are logged and counted; one channel failing does not stop the others.
func (d *Dispatcher) Dispatch(ctx context.Context, text string) {
	for _, n := range d.notifiers {
		if err := n.Notify(ctx, text); err != nil {
			d.logger.Error().Err(err).Str("channel", n.Name()).Msg("告警发送失败")
			if d.failures != nil {
				d.failures.NotifyFailed(n.Name())
			}
		}
	}
}

// DispatchAll is like Dispatch but returns per-channel errors.
func (d *Dispatcher) DispatchAll(ctx context.Context, text string) map[string]error {
	results := make(map[string]error, len(d.notifiers))
	for _, n := range d.notifiers {
		err := n.Notify(ctx, text)
		if err != nil && d.failures != nil {
			d.failures.NotifyFailed(n.Name())
		}
		results[n.Name()] = err
	}
	return results
}
