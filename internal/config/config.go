package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Oracle    OracleConfig    `mapstructure:"oracle"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Audit     AuditConfig     `mapstructure:"audit"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	ReadOnly bool   `mapstructure:"read_only"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"` // empty = stdout only
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type AuthConfig struct {
	// CallerHeader carries the already-verified caller address.
	CallerHeader string `mapstructure:"caller_header"`
}

type DatabaseConfig struct {
	Driver             string `mapstructure:"driver"` // memory | sqlite | postgres
	DSN                string `mapstructure:"dsn"`
	MaxOpenConns       int    `mapstructure:"max_open_conns"`
	MaxIdleConns       int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMin int    `mapstructure:"conn_max_lifetime_minutes"`
}

type RedisConfig struct {
	Addr                  string `mapstructure:"addr"`
	Password              string `mapstructure:"password"`
	DB                    int    `mapstructure:"db"`
	PriceKeyPrefix        string `mapstructure:"price_key_prefix"`
	IdempotencyTTLSeconds int    `mapstructure:"idempotency_ttl_seconds"`
}

type OracleConfig struct {
	Source               string   `mapstructure:"source"` // manual | redis | stream
	StreamURL            string   `mapstructure:"stream_url"`
	Feeds                []string `mapstructure:"feeds"`
	PriceDecimals        int32    `mapstructure:"price_decimals"`
	HealthMaxAgeSeconds  int      `mapstructure:"health_max_age_seconds"`
	RefreshMaxAgeSeconds int      `mapstructure:"refresh_max_age_seconds"`
	TimeoutMs            int      `mapstructure:"timeout_ms"`
}

func (o OracleConfig) HealthMaxAge() time.Duration {
	return time.Duration(o.HealthMaxAgeSeconds) * time.Second
}

func (o OracleConfig) RefreshMaxAge() time.Duration {
	return time.Duration(o.RefreshMaxAgeSeconds) * time.Second
}

func (o OracleConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutMs) * time.Millisecond
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type AuditConfig struct {
	Dir                    string `mapstructure:"dir"` // empty disables the JSONL sink
	BufferSize             int    `mapstructure:"buffer_size"`
	RetentionDays          int    `mapstructure:"retention_days"`
	CleanupIntervalMinutes int    `mapstructure:"cleanup_interval_minutes"`
}

type RateLimitConfig struct {
	QPS   float64 `mapstructure:"qps"` // 0 = unlimited
	Burst int     `mapstructure:"burst"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support
	// e.g. POLYLEND_DATABASE_DSN
	viper.SetEnvPrefix("polylend")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_only", false)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", "")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 5)
	viper.SetDefault("log.max_age_days", 30)
	viper.SetDefault("auth.caller_header", "X-Caller-Address")
	viper.SetDefault("database.driver", "memory")
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 50)
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.conn_max_lifetime_minutes", 60)
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.price_key_prefix", "oracle:feed:")
	viper.SetDefault("redis.idempotency_ttl_seconds", 86400)
	viper.SetDefault("oracle.source", "manual")
	viper.SetDefault("oracle.stream_url", "")
	viper.SetDefault("oracle.feeds", []string{})
	viper.SetDefault("oracle.price_decimals", 2)
	// 健康检查 60 秒，刷新价格 300 秒
	viper.SetDefault("oracle.health_max_age_seconds", 60)
	viper.SetDefault("oracle.refresh_max_age_seconds", 300)
	viper.SetDefault("oracle.timeout_ms", 2000)
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("audit.dir", "./logs")
	viper.SetDefault("audit.buffer_size", 1000)
	viper.SetDefault("audit.retention_days", 30)
	viper.SetDefault("audit.cleanup_interval_minutes", 60)
	viper.SetDefault("rate_limit.qps", 20)
	viper.SetDefault("rate_limit.burst", 40)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
