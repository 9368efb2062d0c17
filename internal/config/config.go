package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"broadcast-board/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Price     PriceConfig     `mapstructure:"price"`
	Streams   StreamsConfig   `mapstructure:"streams"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	UserAgent   string `mapstructure:"user_agent"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs the --loop cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	RunTimeout      time.Duration `mapstructure:"run_timeout"`
}

// ScheduleConfig points at the broadcast schedule source.
type ScheduleConfig struct {
	SourceURL         string        `mapstructure:"source_url"`
	BaseURL           string        `mapstructure:"base_url"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	MinDelay          time.Duration `mapstructure:"min_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	VendorConcurrency int           `mapstructure:"vendor_concurrency"`
}

// PriceConfig controls product price resolution.
type PriceConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	MaxFetch       int           `mapstructure:"max_fetch"`
	Concurrency    int           `mapstructure:"concurrency"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	MinDelay       time.Duration `mapstructure:"min_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	Browser        BrowserConfig `mapstructure:"browser"`
}

// BrowserConfig controls the headless browser fallback.
type BrowserConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Max              int           `mapstructure:"max"`
	Concurrency      int           `mapstructure:"concurrency"`
	Timeout          time.Duration `mapstructure:"timeout"`
	StorageStatePath string        `mapstructure:"storage_state_path"`
	Headful          bool          `mapstructure:"headful"`
	BinPath          string        `mapstructure:"bin_path"`
}

// StreamsConfig configures the live stream locator.
type StreamsConfig struct {
	ListingURL        string        `mapstructure:"listing_url"`
	ReportPath        string        `mapstructure:"report_path"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	Settle            time.Duration `mapstructure:"settle"`
}

// AlertingConfig defines alert delivery.
type AlertingConfig struct {
	SlackTimeout time.Duration `mapstructure:"slack_timeout"`
	DedupeTTL    time.Duration `mapstructure:"dedupe_ttl"`
	SMTP         SMTPConfig    `mapstructure:"smtp"`
	Redis        RedisConfig   `mapstructure:"redis"`
}

// SMTPConfig describes the mail relay.
type SMTPConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	User      string `mapstructure:"user"`
	Password  string `mapstructure:"password"`
	FromEmail string `mapstructure:"from_email"`
	FromName  string `mapstructure:"from_name"`
	UseTLS    bool   `mapstructure:"use_tls"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// RedisConfig enables cross-run alert de-duplication when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MetricsConfig exposes Prometheus metrics while looping.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	ShowLimit int `mapstructure:"show_limit"`
}

// Load builds configuration from an optional .env file, a config file,
// environment variables and defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("BOARD")
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
	v.SetDefault("app.name", "boardbatch")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.user_agent", "BroadcastBoardBatch/1.0 (+https://local)")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.time_format", "")
	v.SetDefault("logging.caller", false)
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.pretty", false)

	v.SetDefault("scheduler.interval", "30m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x62726462))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.run_timeout", "20m")

	v.SetDefault("schedule.source_url", "https://mobile.gmarket.co.kr/HomeShopping/BroadcastSchedule")
	v.SetDefault("schedule.base_url", "https://mobile.gmarket.co.kr")
	v.SetDefault("schedule.request_timeout", "10s")
	v.SetDefault("schedule.max_retries", 3)
	v.SetDefault("schedule.initial_backoff", "1s")
	v.SetDefault("schedule.min_delay", "300ms")
	v.SetDefault("schedule.max_delay", "1s")
	v.SetDefault("schedule.vendor_concurrency", 4)

	v.SetDefault("price.enabled", true)
	v.SetDefault("price.max_fetch", 200)
	v.SetDefault("price.concurrency", 8)
	v.SetDefault("price.request_timeout", "6s")
	v.SetDefault("price.rate_per_second", 0.0)
	v.SetDefault("price.min_delay", "200ms")
	v.SetDefault("price.max_delay", "500ms")
	v.SetDefault("price.browser.enabled", true)
	v.SetDefault("price.browser.max", 30)
	v.SetDefault("price.browser.concurrency", 3)
	v.SetDefault("price.browser.timeout", "60s")
	v.SetDefault("price.browser.storage_state_path", "")
	v.SetDefault("price.browser.headful", false)
	v.SetDefault("price.browser.bin_path", "")

	v.SetDefault("streams.listing_url", "https://m.livehs.co.kr/schedule")
	v.SetDefault("streams.report_path", "reports/live_streams_report.json")
	v.SetDefault("streams.navigation_timeout", "60s")
	v.SetDefault("streams.settle", "3s")

	v.SetDefault("alerting.slack_timeout", "10s")
	v.SetDefault("alerting.dedupe_ttl", "24h")
	v.SetDefault("alerting.smtp.host", "")
	v.SetDefault("alerting.smtp.port", 587)
	v.SetDefault("alerting.smtp.user", "")
	v.SetDefault("alerting.smtp.password", "")
	v.SetDefault("alerting.smtp.from_email", "")
	v.SetDefault("alerting.smtp.from_name", "BroadcastBoard")
	v.SetDefault("alerting.smtp.use_tls", true)
	v.SetDefault("alerting.smtp.use_ssl", false)
	v.SetDefault("alerting.redis.addr", "")
	v.SetDefault("alerting.redis.password", "")
	v.SetDefault("alerting.redis.db", 0)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("export.show_limit", 20)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
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
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Schedule.SourceURL == "" {
		return fmt.Errorf("schedule.source_url must be set")
	}
	if c.Schedule.MaxRetries < 0 {
		return fmt.Errorf("schedule.max_retries cannot be negative")
	}
	if c.Schedule.VendorConcurrency <= 0 {
		return fmt.Errorf("schedule.vendor_concurrency must be greater than zero")
	}
	if c.Price.Concurrency <= 0 {
		return fmt.Errorf("price.concurrency must be greater than zero")
	}
	if c.Price.MaxFetch < 0 {
		return fmt.Errorf("price.max_fetch cannot be negative")
	}
	if c.Price.RatePerSecond < 0 {
		return fmt.Errorf("price.rate_per_second cannot be negative")
	}
	if c.Price.Browser.Concurrency <= 0 {
		return fmt.Errorf("price.browser.concurrency must be greater than zero")
	}
	if c.Price.Browser.Timeout <= 0 {
		return fmt.Errorf("price.browser.timeout must be greater than zero")
	}
	if c.Alerting.SMTP.Port <= 0 {
		return fmt.Errorf("alerting.smtp.port must be greater than zero")
	}
	if c.Export.ShowLimit <= 0 {
		return fmt.Errorf("export.show_limit must be greater than zero")
	}
	return nil
}

// ResolveShowLimit returns either the CLI override or config default.
func (c *Config) ResolveShowLimit(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.ShowLimit
}
