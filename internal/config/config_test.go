package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadDefaultPollerConfig(t *testing.T) {
	viper.Reset()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Poller.LockBackend != LockBackendPostgres {
		t.Fatalf("Poller.LockBackend = %q, want %q", cfg.Poller.LockBackend, LockBackendPostgres)
	}
	if cfg.Poller.TickIntervalSeconds != 30 {
		t.Fatalf("Poller.TickIntervalSeconds = %d, want 30", cfg.Poller.TickIntervalSeconds)
	}
	if cfg.Poller.MaxConcurrency != 8 {
		t.Fatalf("Poller.MaxConcurrency = %d, want 8", cfg.Poller.MaxConcurrency)
	}
	if cfg.Poller.ConsecutiveFailuresThreshold != 3 {
		t.Fatalf("Poller.ConsecutiveFailuresThreshold = %d, want 3", cfg.Poller.ConsecutiveFailuresThreshold)
	}
	if cfg.Timezone != "America/Chicago" {
		t.Fatalf("Timezone = %q, want America/Chicago", cfg.Timezone)
	}
}

func TestLoadPollerConfigFromEnv(t *testing.T) {
	viper.Reset()
	t.Setenv("POLLER_MAX_CONCURRENCY", "16")
	t.Setenv("POLLER_LOCK_BACKEND", "redis")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Poller.MaxConcurrency != 16 {
		t.Fatalf("Poller.MaxConcurrency = %d, want 16", cfg.Poller.MaxConcurrency)
	}
	if cfg.Poller.LockBackend != LockBackendRedis {
		t.Fatalf("Poller.LockBackend = %q, want redis", cfg.Poller.LockBackend)
	}
}

func TestLoadDefaultFetchConfig(t *testing.T) {
	viper.Reset()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Fetch.ConnectTimeoutSeconds != 5 {
		t.Fatalf("Fetch.ConnectTimeoutSeconds = %d, want 5", cfg.Fetch.ConnectTimeoutSeconds)
	}
	if cfg.Fetch.ReadTimeoutSeconds != 20 {
		t.Fatalf("Fetch.ReadTimeoutSeconds = %d, want 20", cfg.Fetch.ReadTimeoutSeconds)
	}
	if cfg.Fetch.MaxKeepaliveConns != 5 {
		t.Fatalf("Fetch.MaxKeepaliveConns = %d, want 5", cfg.Fetch.MaxKeepaliveConns)
	}
	if cfg.Fetch.MaxConns != 10 {
		t.Fatalf("Fetch.MaxConns = %d, want 10", cfg.Fetch.MaxConns)
	}
}

func TestConfigAddressHelpers(t *testing.T) {
	server := ServerConfig{Host: "127.0.0.1", Port: 9000}
	if server.Address() != "127.0.0.1:9000" {
		t.Fatalf("ServerConfig.Address() = %q", server.Address())
	}

	dbCfg := DatabaseConfig{
		Host:    "localhost",
		Port:    5432,
		User:    "postgres",
		DBName:  "pollengine",
		SSLMode: "disable",
	}
	if strings.Contains(dbCfg.DSN(), "password=") {
		t.Fatalf("DatabaseConfig.DSN() should not include password when empty")
	}

	dbCfg.Password = "secret"
	if !strings.Contains(dbCfg.DSN(), "password=secret") {
		t.Fatalf("DatabaseConfig.DSN() missing password")
	}

	dbCfg.Password = ""
	if !strings.Contains(dbCfg.DSNWithTimezone(""), "TimeZone=UTC") {
		t.Fatalf("DatabaseConfig.DSNWithTimezone() should default to UTC")
	}
	if !strings.Contains(dbCfg.DSNWithTimezone("America/Chicago"), "TimeZone=America/Chicago") {
		t.Fatalf("DatabaseConfig.DSNWithTimezone() should use provided timezone")
	}

	redis := RedisConfig{Host: "redis", Port: 6379}
	if redis.Address() != "redis:6379" {
		t.Fatalf("RedisConfig.Address() = %q", redis.Address())
	}
}

func TestValidateConfigErrors(t *testing.T) {
	buildValid := func(t *testing.T) *Config {
		t.Helper()
		viper.Reset()
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error: %v", err)
		}
		return cfg
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "log level required",
			mutate:  func(c *Config) { c.Log.Level = "" },
			wantErr: "log.level is required",
		},
		{
			name:    "log level invalid",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: "log.level must be one of",
		},
		{
			name:    "log output both disabled",
			mutate:  func(c *Config) { c.Log.Output.ToStdout = false; c.Log.Output.ToFile = false },
			wantErr: "to_stdout and log.output.to_file cannot both be false",
		},
		{
			name:    "lock backend required",
			mutate:  func(c *Config) { c.Poller.LockBackend = "" },
			wantErr: "poller.lock_backend is required",
		},
		{
			name:    "lock backend invalid",
			mutate:  func(c *Config) { c.Poller.LockBackend = "mysql" },
			wantErr: "poller.lock_backend must be one of",
		},
		{
			name:    "tick interval positive",
			mutate:  func(c *Config) { c.Poller.TickIntervalSeconds = 0 },
			wantErr: "poller.tick_interval_seconds must be positive",
		},
		{
			name:    "max concurrency positive",
			mutate:  func(c *Config) { c.Poller.MaxConcurrency = 0 },
			wantErr: "poller.max_concurrency must be positive",
		},
		{
			name:    "consecutive failures threshold positive",
			mutate:  func(c *Config) { c.Poller.ConsecutiveFailuresThreshold = 0 },
			wantErr: "poller.consecutive_failures_threshold must be positive",
		},
		{
			name:    "backoff max below base",
			mutate:  func(c *Config) { c.Poller.DefaultErrorBackoffBaseSec = 100; c.Poller.DefaultErrorBackoffMaxSec = 50 },
			wantErr: "default_error_backoff_max_seconds must be >=",
		},
		{
			name:    "fetch connect timeout positive",
			mutate:  func(c *Config) { c.Fetch.ConnectTimeoutSeconds = 0 },
			wantErr: "fetch.connect_timeout_seconds must be positive",
		},
		{
			name:    "fetch keepalive exceeds max conns",
			mutate:  func(c *Config) { c.Fetch.MaxKeepaliveConns = c.Fetch.MaxConns + 1 },
			wantErr: "fetch.max_keepalive_conns must be <=",
		},
		{
			name:    "cache num counters positive",
			mutate:  func(c *Config) { c.Cache.NumCounters = 0 },
			wantErr: "cache.num_counters must be positive",
		},
		{
			name:    "timezone required",
			mutate:  func(c *Config) { c.Timezone = "" },
			wantErr: "timezone is required",
		},
		{
			name:    "timezone invalid",
			mutate:  func(c *Config) { c.Timezone = "Mars/Olympus_Mons" },
			wantErr: "timezone invalid",
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			cfg := buildValid(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}
