package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"vault-watcher/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App          AppConfig       `mapstructure:"app"`
	Logging      logging.Config  `mapstructure:"logging"`
	Solana       SolanaConfig    `mapstructure:"solana"`
	AccountsFile string          `mapstructure:"accounts_file"`
	Accounts     []AccountConfig `mapstructure:"accounts"`
	Monitor      MonitorConfig   `mapstructure:"monitor"`
	Database     DatabaseConfig  `mapstructure:"database"`
	Alerting     AlertingConfig  `mapstructure:"alerting"`
	Metrics      MetricsConfig   `mapstructure:"metrics"`
	Export       ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// SolanaConfig covers on-chain data access.
type SolanaConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	RefreshPeriod  time.Duration `mapstructure:"refresh_period"`
	StartupDelay   time.Duration `mapstructure:"startup_delay"`
	Commitment     string        `mapstructure:"commitment"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"`
	BatchSize      int           `mapstructure:"batch_size"`
}

// MonitorConfig tunes alert policy.
type MonitorConfig struct {
	LowBalanceCooldown time.Duration `mapstructure:"low_balance_cooldown"`
	RetryAlertEvery    int           `mapstructure:"retry_alert_every"`
}

// DatabaseConfig encapsulates time-series store connectivity.
type DatabaseConfig struct {
	// Driver is postgres, sqlite, or empty to disable persistence.
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectAttempts uint64        `mapstructure:"connect_attempts"`
	ConnectInterval time.Duration `mapstructure:"connect_interval"`
	Timescale       bool          `mapstructure:"timescale"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Slack      WebhookConfig  `mapstructure:"slack"`
	Mattermost WebhookConfig  `mapstructure:"mattermost"`
	Telegram   TelegramConfig `mapstructure:"telegram"`
	Timeout    time.Duration  `mapstructure:"timeout"`
}

// WebhookConfig 描述 incoming webhook 告警参数。
type WebhookConfig struct {
	URL string `mapstructure:"url"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// MetricsConfig controls the /metrics and /healthz listener.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VAULTWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "vaultwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("solana.endpoint", "https://api.mainnet-beta.solana.com")
	v.SetDefault("solana.refresh_period", "60s")
	v.SetDefault("solana.startup_delay", "0s")
	v.SetDefault("solana.commitment", "confirmed")
	v.SetDefault("solana.request_timeout", "10s")
	v.SetDefault("solana.rate_limit", 10.0)
	v.SetDefault("solana.rate_burst", 5)
	v.SetDefault("solana.batch_size", 100)

	v.SetDefault("monitor.low_balance_cooldown", "300s")
	v.SetDefault("monitor.retry_alert_every", 10)

	v.SetDefault("database.driver", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.connect_attempts", 0)
	v.SetDefault("database.connect_interval", "500ms")
	v.SetDefault("database.timescale", true)
	v.SetDefault("database.advisory_lock_key", int64(0x7661756c))

	v.SetDefault("alerting.timeout", "10s")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)
}

// bindLegacyEnv lets the unprefixed webhook variables of older deployments
// fill the channel URLs. The prefixed name wins when both are set.
func bindLegacyEnv(v *viper.Viper) error {
	legacy := map[string]string{
		"alerting.slack.url":      "SLACK_URL",
		"alerting.mattermost.url": "MATTERMOST_URL",
	}
	for key, env := range legacy {
		prefixed := "VAULTWATCHER_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Solana.RefreshPeriod <= 0 {
		return fmt.Errorf("solana.refresh_period must be greater than zero")
	}
	if c.Solana.BatchSize < 0 || c.Solana.BatchSize > 100 {
		return fmt.Errorf("solana.batch_size must be between 1 and 100")
	}
	if c.Solana.RateLimit < 0 {
		return fmt.Errorf("solana.rate_limit cannot be negative")
	}
	if c.Monitor.RetryAlertEvery <= 0 {
		return fmt.Errorf("monitor.retry_alert_every must be greater than zero")
	}
	switch strings.ToLower(c.Database.Driver) {
	case "", "none":
	case "postgres", "sqlite":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	for i, acc := range c.Accounts {
		if err := acc.Validate(); err != nil {
			return fmt.Errorf("accounts[%d]: %w", i, err)
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
