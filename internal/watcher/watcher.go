// Package watcher drives one poll-evaluate-alert-persist cycle per tick.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"vault-watcher/internal/chain"
	"vault-watcher/internal/metrics"
	"vault-watcher/internal/monitor"
	"vault-watcher/internal/retry"
	"vault-watcher/internal/scheduler"
	"vault-watcher/internal/storage"
)

// ErrLockHeld is returned by Run when another watcher owns the advisory lock.
var ErrLockHeld = errors.New("watcher: advisory lock held by another instance")

// Dispatcher delivers alert text to the configured channels.
type Dispatcher interface {
	Dispatch(ctx context.Context, text string)
}

// Options tune the watcher.
type Options struct {
	// RetryAlertEvery escalates every Nth consecutive read failure.
	RetryAlertEvery int
	// Locker and LockKey guard against two watchers writing the same store.
	Locker  storage.AdvisoryLocker
	LockKey int64
	// Now stamps persisted samples. Defaults to time.Now.
	Now func() time.Time
}

// Watcher owns the account cache for the lifetime of a run.
// Tick must not be called concurrently.
type Watcher struct {
	cache      []*monitor.MonitoredAccount
	addresses  []solana.PublicKey
	reader     chain.AccountReader
	evaluator  *monitor.Evaluator
	dispatcher Dispatcher
	sink       storage.Sink
	metrics    *metrics.Metrics
	opts       Options
	logger     zerolog.Logger
}

// New constructs a Watcher. sink and m may be nil.
func New(cache []*monitor.MonitoredAccount, reader chain.AccountReader, evaluator *monitor.Evaluator, dispatcher Dispatcher, sink storage.Sink, m *metrics.Metrics, opts Options, logger zerolog.Logger) *Watcher {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Watcher{
		cache:      cache,
		addresses:  monitor.Addresses(cache),
		reader:     reader,
		evaluator:  evaluator,
		dispatcher: dispatcher,
		sink:       sink,
		metrics:    m,
		opts:       opts,
		logger:     logger.With().Str("component", "watcher").Logger(),
	}
}

// Cache exposes the account cache for inspection.
func (w *Watcher) Cache() []*monitor.MonitoredAccount {
	return w.cache
}

// Run holds the advisory lock, if any, and ticks on sched until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, sched *scheduler.Scheduler) error {
	if sched == nil {
		return fmt.Errorf("scheduler not configured")
	}
	if w.opts.Locker != nil {
		unlock, acquired, err := w.opts.Locker.TryAdvisoryLock(ctx, w.opts.LockKey)
		if err != nil {
			return err
		}
		if !acquired {
			return ErrLockHeld
		}
		defer unlock()
	}
	return sched.Run(ctx, w.Tick)
}

// Tick reads every cached account once and processes them in cache order.
//
// Read failures are retried until they succeed; Tick only returns an error
// when ctx is cancelled while waiting. Per-account failures are logged and
// never abort the tick.
func (w *Watcher) Tick(ctx context.Context, at time.Time) error {
	started := time.Now()

	infos, err := retry.Forever(ctx, retry.Options{
		AlertEvery: w.opts.RetryAlertEvery,
		OnAlert:    w.dispatcher.Dispatch,
		OnFailure:  func(error) { w.metrics.RPCFailed() },
		Logger:     w.logger,
	}, w.fetch)
	if err != nil {
		return fmt.Errorf("fetch accounts: %w", err)
	}

	alerts := 0
	for i, acc := range w.cache {
		alerts += w.process(ctx, acc, infos[i])
	}

	elapsed := time.Since(started)
	w.metrics.TickCompleted(elapsed)
	w.logger.Debug().
		Time("tick", at).
		Int("accounts", len(w.cache)).
		Int("alerts", alerts).
		Dur("elapsed", elapsed).
		Msg("tick complete")
	return nil
}

func (w *Watcher) fetch(ctx context.Context) ([]*chain.AccountInfo, error) {
	infos, err := w.reader.GetMultipleAccounts(ctx, w.addresses)
	if err != nil {
		return nil, err
	}
	if len(infos) != len(w.addresses) {
		return nil, fmt.Errorf("requested %d accounts, got %d", len(w.addresses), len(infos))
	}
	return infos, nil
}

func (w *Watcher) process(ctx context.Context, acc *monitor.MonitoredAccount, info *chain.AccountInfo) int {
	log := w.logger.With().Str("name", acc.Name).Str("address", acc.Address.String()).Logger()

	out, err := w.evaluator.Evaluate(acc, info)
	if err != nil {
		log.Warn().Err(err).Msg("skipping account this tick")
		return 0
	}

	for _, alert := range out.Alerts {
		log.Info().Str("kind", string(alert.Kind)).Msg(alert.Message)
		w.metrics.AlertEmitted(string(alert.Kind))
		w.dispatcher.Dispatch(ctx, alert.Message)
	}

	w.metrics.SetAccountValue(acc.Name, acc.Address.String(), out.Value)

	if w.sink != nil {
		sample := storage.Sample{
			Timestamp: w.opts.Now().UTC(),
			Address:   acc.Address.String(),
			Name:      acc.Name,
			Value:     out.Value,
		}
		if err := w.sink.Commit(ctx, sample); err != nil {
			w.metrics.PersistFailed()
			log.Error().Err(err).Msg("failed to persist sample")
		}
	}
	return len(out.Alerts)
}
