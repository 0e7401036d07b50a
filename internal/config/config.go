// Package config provides configuration loading, defaults, and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Lock backend selection for cross-process report-run coordination.
const (
	LockBackendPostgres = "postgres"
	LockBackendRedis    = "redis"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Poller   PollerConfig   `mapstructure:"poller"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Alert    AlertConfig    `mapstructure:"alert"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Registry RegistryConfig `mapstructure:"registry"`
	Timezone string         `mapstructure:"timezone"` // e.g. "America/Chicago", "UTC"
}

type LogConfig struct {
	Level           string            `mapstructure:"level"`
	Format          string            `mapstructure:"format"`
	ServiceName     string            `mapstructure:"service_name"`
	Environment     string            `mapstructure:"env"`
	Caller          bool              `mapstructure:"caller"`
	StacktraceLevel string            `mapstructure:"stacktrace_level"`
	Output          LogOutputConfig   `mapstructure:"output"`
	Rotation        LogRotationConfig `mapstructure:"rotation"`
	Sampling        LogSamplingConfig `mapstructure:"sampling"`
}

type LogOutputConfig struct {
	ToStdout bool   `mapstructure:"to_stdout"`
	ToFile   bool   `mapstructure:"to_file"`
	FilePath string `mapstructure:"file_path"`
}

type LogRotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
	LocalTime  bool `mapstructure:"local_time"`
}

type LogSamplingConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	Initial    int  `mapstructure:"initial"`
	Thereafter int  `mapstructure:"thereafter"`
}

// ServerConfig is the health/readiness endpoint listener; this system has no
// public CRUD API surface, only operator-facing health and status routes.
type ServerConfig struct {
	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port"`
	Mode              string `mapstructure:"mode"` // debug/release
	ReadHeaderTimeout int    `mapstructure:"read_header_timeout"`
	IdleTimeout       int    `mapstructure:"idle_timeout"`
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig is the durable store connection (report runs, versions, alert state).
type DatabaseConfig struct {
	Host                   string `mapstructure:"host"`
	Port                   int    `mapstructure:"port"`
	User                   string `mapstructure:"user"`
	Password               string `mapstructure:"password"`
	DBName                 string `mapstructure:"dbname"`
	SSLMode                string `mapstructure:"sslmode"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes"`
	ConnMaxIdleTimeMinutes int    `mapstructure:"conn_max_idle_time_minutes"`
}

func (d *DatabaseConfig) DSN() string {
	if d.Password == "" {
		return fmt.Sprintf(
			"host=%s port=%d user=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.DBName, d.SSLMode,
		)
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// DSNWithTimezone returns the DSN with an explicit server-side TimeZone setting,
// so report_date comparisons in SQL agree with the poller's configured timezone.
func (d *DatabaseConfig) DSNWithTimezone(tz string) string {
	if tz == "" {
		tz = "UTC"
	}
	return d.DSN() + fmt.Sprintf(" TimeZone=%s", tz)
}

// RedisConfig backs the optional Redis advisory-lock implementation and is
// otherwise unused; the durable store and local cache do not depend on it.
type RedisConfig struct {
	Host                string `mapstructure:"host"`
	Port                int    `mapstructure:"port"`
	Password            string `mapstructure:"password"`
	DB                  int    `mapstructure:"db"`
	DialTimeoutSeconds  int    `mapstructure:"dial_timeout_seconds"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
	PoolSize            int    `mapstructure:"pool_size"`
	MinIdleConns        int    `mapstructure:"min_idle_conns"`
}

func (r *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// PollerConfig drives the scheduler tick loop and per-report backoff/cadence defaults.
type PollerConfig struct {
	TickIntervalSeconds          int    `mapstructure:"tick_interval_seconds"`
	MaxConcurrency               int    `mapstructure:"max_concurrency"`
	LockBackend                  string `mapstructure:"lock_backend"` // postgres/redis
	ConsecutiveFailuresThreshold int    `mapstructure:"consecutive_failures_threshold"`
	DefaultInsideCadenceSeconds  int    `mapstructure:"default_inside_cadence_seconds"`
	DefaultOutsideCadenceSeconds int    `mapstructure:"default_outside_cadence_seconds"`
	DefaultErrorBackoffBaseSec   int    `mapstructure:"default_error_backoff_base_seconds"`
	DefaultErrorBackoffMaxSec    int    `mapstructure:"default_error_backoff_max_seconds"`
	DefaultJitterSeconds         int    `mapstructure:"default_jitter_seconds"`
	DateSearchLookbackDays       int    `mapstructure:"date_search_lookback_days"`
}

// FetchConfig is the HTTP client timeout/pool profile used for all upstream
// bulletin requests. fetch.New applies the connect, read (whole-request) and
// pool (idle-connection) timeouts separately, so a slow-responding endpoint
// doesn't stall the whole worker pool waiting on a TCP handshake;
// WriteTimeoutSeconds is loaded but not applied.
type FetchConfig struct {
	ConnectTimeoutSeconds int `mapstructure:"connect_timeout_seconds"`
	ReadTimeoutSeconds    int `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds   int `mapstructure:"write_timeout_seconds"`
	PoolTimeoutSeconds    int `mapstructure:"pool_timeout_seconds"`
	MaxKeepaliveConns     int `mapstructure:"max_keepalive_conns"`
	MaxConns              int `mapstructure:"max_conns"`
}

type AlertConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	MasterAlertEmail string `mapstructure:"master_alert_email"`
	SenderAddress    string `mapstructure:"sender_address"`
}

// CacheConfig configures the in-process read-through cache (ristretto) in
// front of the active-recipient lookup the worker makes when it notifies
// subscribers of a new edition.
type CacheConfig struct {
	NumCounters int   `mapstructure:"num_counters"`
	MaxCostMB   int64 `mapstructure:"max_cost_mb"`
	BufferItems int64 `mapstructure:"buffer_items"`
}

// RegistryConfig carries the overrides_path setting. Load trims it; nothing
// reads the file it names, and bootstrap takes registry overrides from the
// store only.
type RegistryConfig struct {
	OverridesPath string `mapstructure:"overrides_path"`
}

// Load reads and validates the complete configuration.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		viper.AddConfigPath(dataDir)
	}
	viper.AddConfigPath("/app/data")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/pollengine")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config error: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config error: %w", err)
	}

	cfg.Server.Mode = strings.ToLower(strings.TrimSpace(cfg.Server.Mode))
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	cfg.Timezone = strings.TrimSpace(cfg.Timezone)
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	cfg.Log.ServiceName = strings.TrimSpace(cfg.Log.ServiceName)
	cfg.Log.Environment = strings.TrimSpace(cfg.Log.Environment)
	cfg.Log.StacktraceLevel = strings.ToLower(strings.TrimSpace(cfg.Log.StacktraceLevel))
	cfg.Log.Output.FilePath = strings.TrimSpace(cfg.Log.Output.FilePath)
	cfg.Poller.LockBackend = strings.ToLower(strings.TrimSpace(cfg.Poller.LockBackend))
	cfg.Alert.MasterAlertEmail = strings.TrimSpace(cfg.Alert.MasterAlertEmail)
	cfg.Alert.SenderAddress = strings.TrimSpace(cfg.Alert.SenderAddress)
	cfg.Registry.OverridesPath = strings.TrimSpace(cfg.Registry.OverridesPath)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config error: %w", err)
	}

	if cfg.Poller.LockBackend == LockBackendRedis && cfg.Redis.Host == "" {
		slog.Warn("poller.lock_backend=redis but redis.host is empty; locking will fail at startup")
	}
	if cfg.Alert.Enabled && cfg.Alert.MasterAlertEmail == "" {
		slog.Warn("alert.enabled=true but alert.master_alert_email is empty")
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	case "":
		return fmt.Errorf("log.level is required")
	default:
		return fmt.Errorf("log.level must be one of: debug/info/warn/error")
	}
	switch c.Log.Format {
	case "json", "console":
	case "":
		return fmt.Errorf("log.format is required")
	default:
		return fmt.Errorf("log.format must be one of: json/console")
	}
	switch c.Log.StacktraceLevel {
	case "none", "error", "fatal":
	case "":
		return fmt.Errorf("log.stacktrace_level is required")
	default:
		return fmt.Errorf("log.stacktrace_level must be one of: none/error/fatal")
	}
	if !c.Log.Output.ToStdout && !c.Log.Output.ToFile {
		return fmt.Errorf("log.output.to_stdout and log.output.to_file cannot both be false")
	}
	if c.Log.Rotation.MaxSizeMB <= 0 {
		return fmt.Errorf("log.rotation.max_size_mb must be positive")
	}
	if c.Log.Sampling.Enabled {
		if c.Log.Sampling.Initial <= 0 {
			return fmt.Errorf("log.sampling.initial must be positive when sampling is enabled")
		}
		if c.Log.Sampling.Thereafter <= 0 {
			return fmt.Errorf("log.sampling.thereafter must be positive when sampling is enabled")
		}
	}

	switch c.Poller.LockBackend {
	case LockBackendPostgres, LockBackendRedis:
	case "":
		return fmt.Errorf("poller.lock_backend is required")
	default:
		return fmt.Errorf("poller.lock_backend must be one of: postgres/redis")
	}
	if c.Poller.TickIntervalSeconds <= 0 {
		return fmt.Errorf("poller.tick_interval_seconds must be positive")
	}
	if c.Poller.MaxConcurrency <= 0 {
		return fmt.Errorf("poller.max_concurrency must be positive")
	}
	if c.Poller.ConsecutiveFailuresThreshold <= 0 {
		return fmt.Errorf("poller.consecutive_failures_threshold must be positive")
	}
	if c.Poller.DefaultInsideCadenceSeconds <= 0 {
		return fmt.Errorf("poller.default_inside_cadence_seconds must be positive")
	}
	if c.Poller.DefaultOutsideCadenceSeconds <= 0 {
		return fmt.Errorf("poller.default_outside_cadence_seconds must be positive")
	}
	if c.Poller.DefaultErrorBackoffMaxSec < c.Poller.DefaultErrorBackoffBaseSec {
		return fmt.Errorf("poller.default_error_backoff_max_seconds must be >= default_error_backoff_base_seconds")
	}
	if c.Poller.DateSearchLookbackDays < 0 {
		return fmt.Errorf("poller.date_search_lookback_days must be non-negative")
	}

	if c.Fetch.ConnectTimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.connect_timeout_seconds must be positive")
	}
	if c.Fetch.ReadTimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.read_timeout_seconds must be positive")
	}
	if c.Fetch.MaxConns <= 0 {
		return fmt.Errorf("fetch.max_conns must be positive")
	}
	if c.Fetch.MaxKeepaliveConns > c.Fetch.MaxConns {
		return fmt.Errorf("fetch.max_keepalive_conns must be <= fetch.max_conns")
	}

	if c.Cache.NumCounters <= 0 {
		return fmt.Errorf("cache.num_counters must be positive")
	}
	if c.Cache.MaxCostMB <= 0 {
		return fmt.Errorf("cache.max_cost_mb must be positive")
	}

	if strings.TrimSpace(c.Timezone) == "" {
		return fmt.Errorf("timezone is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone invalid: %w", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("timezone", "America/Chicago")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8081)
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("server.read_header_timeout", 10)
	viper.SetDefault("server.idle_timeout", 120)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.service_name", "pollengine")
	viper.SetDefault("log.env", "production")
	viper.SetDefault("log.caller", true)
	viper.SetDefault("log.stacktrace_level", "error")
	viper.SetDefault("log.output.to_stdout", true)
	viper.SetDefault("log.output.to_file", false)
	viper.SetDefault("log.rotation.max_size_mb", 100)
	viper.SetDefault("log.rotation.max_backups", 10)
	viper.SetDefault("log.rotation.max_age_days", 7)
	viper.SetDefault("log.rotation.compress", true)
	viper.SetDefault("log.rotation.local_time", true)
	viper.SetDefault("log.sampling.enabled", false)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "pollengine")
	viper.SetDefault("database.dbname", "pollengine")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.max_open_conns", 20)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime_minutes", 30)
	viper.SetDefault("database.conn_max_idle_time_minutes", 10)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.dial_timeout_seconds", 5)
	viper.SetDefault("redis.read_timeout_seconds", 3)
	viper.SetDefault("redis.write_timeout_seconds", 3)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.min_idle_conns", 2)

	viper.SetDefault("poller.tick_interval_seconds", 30)
	viper.SetDefault("poller.max_concurrency", 8)
	viper.SetDefault("poller.lock_backend", LockBackendPostgres)
	viper.SetDefault("poller.consecutive_failures_threshold", 3)
	viper.SetDefault("poller.default_inside_cadence_seconds", 300)
	viper.SetDefault("poller.default_outside_cadence_seconds", 1800)
	viper.SetDefault("poller.default_error_backoff_base_seconds", 60)
	viper.SetDefault("poller.default_error_backoff_max_seconds", 3600)
	viper.SetDefault("poller.default_jitter_seconds", 15)
	viper.SetDefault("poller.date_search_lookback_days", 5)

	viper.SetDefault("fetch.connect_timeout_seconds", 5)
	viper.SetDefault("fetch.read_timeout_seconds", 20)
	viper.SetDefault("fetch.write_timeout_seconds", 5)
	viper.SetDefault("fetch.pool_timeout_seconds", 5)
	viper.SetDefault("fetch.max_keepalive_conns", 5)
	viper.SetDefault("fetch.max_conns", 10)

	viper.SetDefault("alert.enabled", true)

	viper.SetDefault("cache.num_counters", 10000)
	viper.SetDefault("cache.max_cost_mb", 16)
	viper.SetDefault("cache.buffer_items", 64)
}
