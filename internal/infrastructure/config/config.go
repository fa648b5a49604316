package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Log         LogConfig
	HTTP        HTTPConfig
	Telemetry   TelemetryConfig
	Marketplace MarketplaceConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	TrustedProxies []string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	ServiceName       string  // Service name for metrics
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	ExportInterval    time.Duration
}

// ProviderConfig holds per-marketplace connection and pacing settings.
// Credentials come from config.toml or BRICKSYNC_MARKETPLACE_* env overrides.
type ProviderConfig struct {
	BaseURL             string
	QuotaCapacity       int
	QuotaWindow         time.Duration
	QuotaAlertThreshold float64
	ChunkSize           int

	// OAuth1.0a credentials (bricklink)
	ConsumerKey    string
	ConsumerSecret string
	TokenValue     string
	TokenSecret    string
	// Plain API key (brickowl, rebrickable)
	APIKey string
}

// RetryConfig holds the backoff settings shared by all providers.
type RetryConfig struct {
	Attempts    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	JitterRatio float64
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	Threshold int
	Cooldown  time.Duration
}

// PollerConfig holds the background order-poll settings. Accounts are
// "provider:account-uuid" pairs to poll.
type PollerConfig struct {
	Enabled  bool
	Interval time.Duration
	Lookback time.Duration
	Accounts []string
}

// MarketplaceConfig holds the request engine settings.
type MarketplaceConfig struct {
	AttemptTimeout      time.Duration
	DelayBetweenBatches time.Duration
	CacheTTL            time.Duration
	Retry               RetryConfig
	Breaker             BreakerConfig
	Poller              PollerConfig
	BrickLink           ProviderConfig
	BrickOwl            ProviderConfig
	Rebrickable         ProviderConfig
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with BRICKSYNC_ prefix (e.g., BRICKSYNC_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	// Set config file settings
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	// Enable environment variable override
	v.SetEnvPrefix("BRICKSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			ExportInterval:    v.GetDuration("telemetry.export_interval"),
		},
		Marketplace: MarketplaceConfig{
			AttemptTimeout:      v.GetDuration("marketplace.attempt_timeout"),
			DelayBetweenBatches: v.GetDuration("marketplace.delay_between_batches"),
			CacheTTL:            v.GetDuration("marketplace.cache_ttl"),
			Retry: RetryConfig{
				Attempts:    v.GetInt("marketplace.retry.attempts"),
				BaseDelay:   v.GetDuration("marketplace.retry.base_delay"),
				MaxDelay:    v.GetDuration("marketplace.retry.max_delay"),
				Multiplier:  v.GetFloat64("marketplace.retry.multiplier"),
				JitterRatio: v.GetFloat64("marketplace.retry.jitter_ratio"),
			},
			Breaker: BreakerConfig{
				Threshold: v.GetInt("marketplace.breaker.threshold"),
				Cooldown:  v.GetDuration("marketplace.breaker.cooldown"),
			},
			Poller: PollerConfig{
				Enabled:  v.GetBool("marketplace.poller.enabled"),
				Interval: v.GetDuration("marketplace.poller.interval"),
				Lookback: v.GetDuration("marketplace.poller.lookback"),
				Accounts: v.GetStringSlice("marketplace.poller.accounts"),
			},
			BrickLink:   providerConfig(v, "marketplace.bricklink"),
			BrickOwl:    providerConfig(v, "marketplace.brickowl"),
			Rebrickable: providerConfig(v, "marketplace.rebrickable"),
		},
	}

	// Apply defaults for empty values
	applyDefaults(cfg)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func providerConfig(v *viper.Viper, prefix string) ProviderConfig {
	return ProviderConfig{
		BaseURL:             v.GetString(prefix + ".base_url"),
		QuotaCapacity:       v.GetInt(prefix + ".quota_capacity"),
		QuotaWindow:         v.GetDuration(prefix + ".quota_window"),
		QuotaAlertThreshold: v.GetFloat64(prefix + ".quota_alert_threshold"),
		ChunkSize:           v.GetInt(prefix + ".chunk_size"),
		ConsumerKey:         v.GetString(prefix + ".consumer_key"),
		ConsumerSecret:      v.GetString(prefix + ".consumer_secret"),
		TokenValue:          v.GetString(prefix + ".token_value"),
		TokenSecret:         v.GetString(prefix + ".token_secret"),
		APIKey:              v.GetString(prefix + ".api_key"),
	}
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "bricksync-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "bricksync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "bricksync-backend"
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = 30 * time.Second
	}

	// Engine defaults
	if cfg.Marketplace.AttemptTimeout == 0 {
		cfg.Marketplace.AttemptTimeout = 30 * time.Second
	}
	if cfg.Marketplace.DelayBetweenBatches == 0 {
		cfg.Marketplace.DelayBetweenBatches = time.Second
	}
	if cfg.Marketplace.CacheTTL == 0 {
		cfg.Marketplace.CacheTTL = 10 * time.Minute
	}
	if cfg.Marketplace.Retry.Attempts == 0 {
		cfg.Marketplace.Retry.Attempts = 3
	}
	if cfg.Marketplace.Retry.BaseDelay == 0 {
		cfg.Marketplace.Retry.BaseDelay = time.Second
	}
	if cfg.Marketplace.Retry.MaxDelay == 0 {
		cfg.Marketplace.Retry.MaxDelay = 30 * time.Second
	}
	if cfg.Marketplace.Retry.Multiplier == 0 {
		cfg.Marketplace.Retry.Multiplier = 2
	}
	if cfg.Marketplace.Retry.JitterRatio == 0 {
		cfg.Marketplace.Retry.JitterRatio = 0.2
	}
	if cfg.Marketplace.Breaker.Threshold == 0 {
		cfg.Marketplace.Breaker.Threshold = 5
	}
	if cfg.Marketplace.Breaker.Cooldown == 0 {
		cfg.Marketplace.Breaker.Cooldown = 5 * time.Minute
	}
	if cfg.Marketplace.Poller.Interval == 0 {
		cfg.Marketplace.Poller.Interval = 15 * time.Minute
	}
	if cfg.Marketplace.Poller.Lookback == 0 {
		cfg.Marketplace.Poller.Lookback = 24 * time.Hour
	}

	// BrickLink allows 5000 requests/day on the store API.
	applyProviderDefaults(&cfg.Marketplace.BrickLink, 5000, 24*time.Hour, 100)
	applyProviderDefaults(&cfg.Marketplace.BrickOwl, 600, time.Hour, 50)
	applyProviderDefaults(&cfg.Marketplace.Rebrickable, 1000, 24*time.Hour, 50)
}

func applyProviderDefaults(p *ProviderConfig, capacity int, window time.Duration, chunkSize int) {
	if p.QuotaCapacity == 0 {
		p.QuotaCapacity = capacity
	}
	if p.QuotaWindow == 0 {
		p.QuotaWindow = window
	}
	if p.QuotaAlertThreshold == 0 {
		p.QuotaAlertThreshold = 0.8
	}
	if p.ChunkSize == 0 {
		p.ChunkSize = chunkSize
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	// Validate connection pool settings
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
	}

	if c.Marketplace.Retry.Attempts < 1 {
		return fmt.Errorf("marketplace.retry.attempts must be at least 1")
	}
	if c.Marketplace.Poller.Enabled && len(c.Marketplace.Poller.Accounts) == 0 {
		return fmt.Errorf("marketplace.poller.accounts is required when the poller is enabled")
	}
	for name, p := range map[string]ProviderConfig{
		"bricklink":   c.Marketplace.BrickLink,
		"brickowl":    c.Marketplace.BrickOwl,
		"rebrickable": c.Marketplace.Rebrickable,
	} {
		if p.QuotaAlertThreshold <= 0 || p.QuotaAlertThreshold > 1 {
			return fmt.Errorf("marketplace.%s.quota_alert_threshold must be in (0, 1], got %f", name, p.QuotaAlertThreshold)
		}
		if p.ChunkSize <= 0 {
			return fmt.Errorf("marketplace.%s.chunk_size must be positive", name)
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// RedisAddr returns the host:port address for the Redis client.
func (r *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
