// Package config loads runtime settings from file, environment and .env.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/lhildreth66/Routecast2-sub001/internal/logging"
	"github.com/lhildreth66/Routecast2-sub001/internal/risk"
)

// EnvPrefix prefixes every environment override, e.g. ROUTECAST_DATABASE_DSN.
const EnvPrefix = "ROUTECAST"

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Advisory    AdvisoryConfig    `mapstructure:"advisory"`
	Risk        risk.Thresholds   `mapstructure:"risk"`
	Forecast    ForecastConfig    `mapstructure:"forecast"`
	Push        PushConfig        `mapstructure:"push"`
	Entitlement EntitlementConfig `mapstructure:"entitlement"`
	API         APIConfig         `mapstructure:"api"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Events      EventsConfig      `mapstructure:"events"`
	Export      ExportConfig      `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN runs the
// advisor on the in-memory registry.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig enables the forecast and entitlement caches.
type RedisConfig struct {
	Addr           string        `mapstructure:"addr"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	ForecastTTL    time.Duration `mapstructure:"forecast_ttl"`
	EntitlementTTL time.Duration `mapstructure:"entitlement_ttl"`
}

// SchedulerConfig governs tick cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	Lookahead       time.Duration `mapstructure:"lookahead"`
	Parallelism     int           `mapstructure:"parallelism"`
	RetryInterval   time.Duration `mapstructure:"retry_interval"`
}

// AdvisoryConfig tunes the delay search and alert pacing.
type AdvisoryConfig struct {
	MaxDelayHours     int           `mapstructure:"max_delay_hours"`
	MinImprovementPct float64       `mapstructure:"min_improvement_pct"`
	Cooldown          time.Duration `mapstructure:"cooldown"`
	Retention         time.Duration `mapstructure:"retention"`
}

// ForecastConfig covers the weather upstreams.
type ForecastConfig struct {
	OpenMeteoURL   string        `mapstructure:"open_meteo_url"`
	NWSURL         string        `mapstructure:"nws_url"`
	NWSEnabled     bool          `mapstructure:"nws_enabled"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// PushConfig holds the dispatch providers.
type PushConfig struct {
	Timeout  time.Duration  `mapstructure:"timeout"`
	Expo     ExpoConfig     `mapstructure:"expo"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// ExpoConfig describes the Expo push provider.
type ExpoConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	URL         string `mapstructure:"url"`
	AccessToken string `mapstructure:"access_token"`
}

// TelegramConfig describes the Telegram push provider.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	APIBase  string `mapstructure:"api_base"`
}

// EntitlementConfig selects how premium status is resolved.
type EntitlementConfig struct {
	Provider string       `mapstructure:"provider"`
	Static   []string     `mapstructure:"static_users"`
	Stripe   StripeConfig `mapstructure:"stripe"`
}

// StripeConfig covers the Stripe subscription lookup.
type StripeConfig struct {
	SecretKey string        `mapstructure:"secret_key"`
	BaseURL   string        `mapstructure:"base_url"`
	PriceIDs  []string      `mapstructure:"price_ids"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// APIConfig configures the registration HTTP API.
type APIConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Addr      string        `mapstructure:"addr"`
	RateLimit float64       `mapstructure:"rate_limit"`
	Burst     int           `mapstructure:"burst"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// MetricsConfig configures the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// EventsConfig configures AMQP notification events.
type EventsConfig struct {
	AMQPURL  string `mapstructure:"amqp_url"`
	Exchange string `mapstructure:"exchange"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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

// loadDotEnv reads .env when present. Existing variables win.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
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
	v.SetDefault("app.name", "routecast-advisor")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.service", "routecast-advisor")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.forecast_ttl", "15m")
	v.SetDefault("redis.entitlement_ttl", "10m")

	v.SetDefault("scheduler.interval", "30m")
	v.SetDefault("scheduler.align_to_bucket", false)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x52435354))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.lookahead", "6h")
	v.SetDefault("scheduler.parallelism", 4)
	v.SetDefault("scheduler.retry_interval", "30m")

	v.SetDefault("advisory.max_delay_hours", 6)
	v.SetDefault("advisory.min_improvement_pct", 15.0)
	v.SetDefault("advisory.cooldown", "3h")
	v.SetDefault("advisory.retention", "720h")

	def := risk.DefaultThresholds()
	v.SetDefault("risk.high_wind", def.HighWind)
	v.SetDefault("risk.heavy_precip", def.HeavyPrecip)
	v.SetDefault("risk.freezing_point", def.FreezingPoint)
	v.SetDefault("risk.cold_delta", def.ColdDelta)
	v.SetDefault("risk.severe_saturation", def.SevereSaturation)

	v.SetDefault("forecast.open_meteo_url", "https://api.open-meteo.com/v1")
	v.SetDefault("forecast.nws_url", "https://api.weather.gov")
	v.SetDefault("forecast.nws_enabled", true)
	v.SetDefault("forecast.request_timeout", "5s")
	v.SetDefault("forecast.user_agent", "routecast-advisor/1.0")

	v.SetDefault("push.timeout", "5s")
	v.SetDefault("push.expo.enabled", true)
	v.SetDefault("push.expo.url", "https://exp.host/--/api/v2/push/send")
	v.SetDefault("push.expo.access_token", "")
	v.SetDefault("push.telegram.enabled", false)
	v.SetDefault("push.telegram.bot_token", "")
	v.SetDefault("push.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("entitlement.provider", "static")
	v.SetDefault("entitlement.static_users", []string{})
	v.SetDefault("entitlement.stripe.secret_key", "")
	v.SetDefault("entitlement.stripe.base_url", "https://api.stripe.com")
	v.SetDefault("entitlement.stripe.price_ids", []string{})
	v.SetDefault("entitlement.stripe.timeout", "5s")

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.addr", ":8080")
	v.SetDefault("api.rate_limit", 5.0)
	v.SetDefault("api.burst", 10)
	v.SetDefault("api.timeout", "15s")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("events.amqp_url", "")
	v.SetDefault("events.exchange", "routecast.notifications")

	v.SetDefault("export.max_data_points", 10000)
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
	if c.Scheduler.Lookahead <= 0 {
		return fmt.Errorf("scheduler.lookahead must be greater than zero")
	}
	if c.Scheduler.Parallelism <= 0 {
		return fmt.Errorf("scheduler.parallelism must be greater than zero")
	}
	if c.Scheduler.RetryInterval <= 0 {
		return fmt.Errorf("scheduler.retry_interval must be greater than zero")
	}
	if c.Advisory.MaxDelayHours < 0 {
		return fmt.Errorf("advisory.max_delay_hours cannot be negative")
	}
	if c.Advisory.MinImprovementPct < 0 || c.Advisory.MinImprovementPct > 100 {
		return fmt.Errorf("advisory.min_improvement_pct must be within [0, 100]")
	}
	if c.Advisory.Cooldown < 0 {
		return fmt.Errorf("advisory.cooldown cannot be negative")
	}
	if c.Forecast.RequestTimeout <= 0 {
		return fmt.Errorf("forecast.request_timeout must be greater than zero")
	}
	if c.Push.Timeout <= 0 {
		return fmt.Errorf("push.timeout must be greater than zero")
	}
	if c.Push.Telegram.Enabled && c.Push.Telegram.BotToken == "" {
		return fmt.Errorf("push.telegram.bot_token is required when telegram is enabled")
	}
	switch strings.ToLower(c.Entitlement.Provider) {
	case "static":
	case "stripe":
		if c.Entitlement.Stripe.SecretKey == "" {
			return fmt.Errorf("entitlement.stripe.secret_key is required for the stripe provider")
		}
		if c.Database.DSN == "" {
			return fmt.Errorf("entitlement.provider stripe needs database.dsn for customer lookup")
		}
	default:
		return fmt.Errorf("entitlement.provider %q is not supported", c.Entitlement.Provider)
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
