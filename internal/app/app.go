package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"vault-watcher/internal/alerting"
	"vault-watcher/internal/chain"
	"vault-watcher/internal/config"
	"vault-watcher/internal/metrics"
	"vault-watcher/internal/monitor"
	"vault-watcher/internal/scheduler"
	"vault-watcher/internal/storage"
	"vault-watcher/internal/watcher"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives command output. Defaults to os.Stdout.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) newReader() *chain.RPCReader {
	cfg := a.Config.Solana
	return chain.NewRPCReader(chain.RPCOptions{
		Endpoint:   cfg.Endpoint,
		Commitment: cfg.Commitment,
		Timeout:    cfg.RequestTimeout,
		RateLimit:  cfg.RateLimit,
		RateBurst:  cfg.RateBurst,
		BatchSize:  cfg.BatchSize,
	}, a.Logger)
}

func (a *App) newDispatcher(m *metrics.Metrics) *alerting.Dispatcher {
	cfg := a.Config.Alerting
	var notifiers []alerting.Notifier
	if cfg.Slack.URL != "" {
		notifiers = append(notifiers, alerting.NewSlackNotifier(cfg.Slack.URL, cfg.Timeout, a.Logger))
	}
	if cfg.Mattermost.URL != "" {
		notifiers = append(notifiers, alerting.NewMattermostNotifier(cfg.Mattermost.URL, cfg.Timeout, a.Logger))
	}
	if cfg.Telegram.Enabled {
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIBase, cfg.Timeout, a.Logger))
	}

	var failures alerting.FailureRecorder
	if m != nil {
		failures = m
	}
	return alerting.NewDispatcher(notifiers, failures, a.Logger)
}

var openStorage = storage.Open

// openStore opens the store for the watcher, bootstrapping its schema.
// It returns a nil store when persistence is disabled.
func (a *App) openStore(ctx context.Context, accounts int) (storage.Store, error) {
	return a.open(ctx, storage.OpenOptions{
		RefreshPeriod: a.Config.Solana.RefreshPeriod,
		Accounts:      accounts,
		Logger:        a.Logger,
	})
}

// openReadStore opens the store for show and export, leaving the schema alone.
func (a *App) openReadStore(ctx context.Context) (storage.Store, error) {
	return a.open(ctx, storage.OpenOptions{ReadOnly: true, Logger: a.Logger})
}

func (a *App) open(ctx context.Context, opts storage.OpenOptions) (storage.Store, error) {
	store, err := openStorage(ctx, a.Config.Database, opts)
	if errors.Is(err, storage.ErrNotConfigured) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (a *App) initialize(ctx context.Context, reader chain.AccountReader) ([]*monitor.MonitoredAccount, error) {
	inputs, err := a.Config.Inputs()
	if err != nil {
		return nil, err
	}
	initializer := monitor.NewInitializer(reader, a.Config.Solana.RefreshPeriod, a.Logger)
	return initializer.Initialize(ctx, inputs)
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reader := a.newReader()
	cache, err := a.initialize(ctx, reader)
	if err != nil {
		return err
	}
	a.Logger.Info().Int("accounts", len(cache)).Msg("account cache initialized")

	store, err := a.openStore(ctx, len(cache))
	if err != nil {
		return err
	}
	var sink storage.Sink
	checker := metrics.Checker{RPCPing: reader.Ping}
	opts := watcher.Options{
		RetryAlertEvery: a.Config.Monitor.RetryAlertEvery,
		LockKey:         a.Config.Database.AdvisoryLockKey,
	}
	if store == nil {
		a.Logger.Warn().Msg("database.driver not configured; persistence disabled")
	} else {
		defer store.Close()
		sink = store
		checker.DBPing = store.Ping
		if locker, ok := store.(storage.AdvisoryLocker); ok {
			opts.Locker = locker
		}
	}

	m := metrics.New()
	if addr := a.Config.Metrics.Listen; addr != "" {
		srv, err := metrics.Serve(addr, m, checker, a.Logger)
		if err != nil {
			return err
		}
		a.Logger.Info().Str("listen", srv.Addr).Msg("metrics endpoint started")
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.Logger.Warn().Err(err).Msg("metrics endpoint shutdown")
			}
		}()
	}

	dispatcher := a.newDispatcher(m)
	if len(dispatcher.Channels()) == 0 {
		a.Logger.Warn().Msg("no alert channels configured; alerts are only logged")
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Solana.RefreshPeriod,
		StartupDelay: a.Config.Solana.StartupDelay,
	}, a.Logger)

	evaluator := monitor.NewEvaluator(a.Config.Monitor.LowBalanceCooldown)
	w := watcher.New(cache, reader, evaluator, dispatcher, sink, m, opts, a.Logger)

	a.Logger.Info().Dur("refresh_period", a.Config.Solana.RefreshPeriod).Msg("starting vault watcher")
	err = w.Run(ctx, sched)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("watcher terminated with error")
		return err
	}

	a.Logger.Info().Msg("vault watcher stopped")
	return nil
}

// ExportOptions hold parameters for exporting historical samples.
type ExportOptions struct {
	Name      string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
