package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"metal-rates-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Source     SourceConfig     `mapstructure:"source"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Detector   DetectorConfig   `mapstructure:"detector"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	WriteQueueDepth int           `mapstructure:"write_queue_depth"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
}

// SourceConfig covers the central bank rates endpoint.
type SourceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	Cookie         string        `mapstructure:"cookie"`
	StartDate      time.Time     `mapstructure:"start_date"`
}

// IngestConfig tunes the windowed ingestion loop.
type IngestConfig struct {
	IdleInterval     time.Duration `mapstructure:"idle_interval"`
	TransientBackoff time.Duration `mapstructure:"transient_backoff"`
	ErrorBackoff     time.Duration `mapstructure:"error_backoff"`
	WindowPause      time.Duration `mapstructure:"window_pause"`
	EmptyBackoff     time.Duration `mapstructure:"empty_backoff"`
	EmptyRetries     int           `mapstructure:"empty_retries"`
}

// DetectorConfig tunes the change detector loop.
type DetectorConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// DispatcherConfig tunes the notification dispatcher loop.
type DispatcherConfig struct {
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	SendDelay         time.Duration `mapstructure:"send_delay"`
	NotifyOnSubscribe bool          `mapstructure:"notify_on_subscribe"`
}

// TelegramConfig describes the delivery channel.
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	APIBase        string        `mapstructure:"api_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("METALWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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
	v.SetDefault("app.name", "metalwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.write_queue_depth", 16)
	v.SetDefault("database.write_timeout", "5s")

	v.SetDefault("source.base_url", "https://www.cbr.ru")
	v.SetDefault("source.request_timeout", "30s")
	v.SetDefault("source.user_agent", "metalwatcher/1.0")
	v.SetDefault("source.start_date", "2000-01-01")

	v.SetDefault("ingest.idle_interval", "8h")
	v.SetDefault("ingest.transient_backoff", "4h")
	v.SetDefault("ingest.error_backoff", "5m")
	v.SetDefault("ingest.window_pause", "1m")
	v.SetDefault("ingest.empty_backoff", "1m")
	v.SetDefault("ingest.empty_retries", 3)

	v.SetDefault("detector.poll_interval", "1m")

	v.SetDefault("dispatcher.poll_interval", "5s")
	v.SetDefault("dispatcher.send_delay", "400ms")
	v.SetDefault("dispatcher.notify_on_subscribe", false)

	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.request_timeout", "10s")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.DateOnly),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Source.StartDate.IsZero() {
		return fmt.Errorf("source.start_date must be set")
	}
	if c.Database.WriteQueueDepth <= 0 {
		return fmt.Errorf("database.write_queue_depth must be greater than zero")
	}
	if c.Database.WriteTimeout <= 0 {
		return fmt.Errorf("database.write_timeout must be greater than zero")
	}
	if c.Ingest.IdleInterval <= 0 {
		return fmt.Errorf("ingest.idle_interval must be greater than zero")
	}
	if c.Ingest.TransientBackoff <= 0 {
		return fmt.Errorf("ingest.transient_backoff must be greater than zero")
	}
	if c.Ingest.EmptyRetries < 0 {
		return fmt.Errorf("ingest.empty_retries cannot be negative")
	}
	if c.Detector.PollInterval <= 0 {
		return fmt.Errorf("detector.poll_interval must be greater than zero")
	}
	if c.Dispatcher.PollInterval <= 0 {
		return fmt.Errorf("dispatcher.poll_interval must be greater than zero")
	}
	if c.Dispatcher.SendDelay < 0 {
		return fmt.Errorf("dispatcher.send_delay cannot be negative")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
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
