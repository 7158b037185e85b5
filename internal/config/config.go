// Package config loads runtime settings from the environment, an optional
// config file and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application's configuration.
type Config struct {
	HTTPAddr string

	DBDriver           string // "postgres" or "sqlite"
	DBDSN              string
	LogLevel           string // "silent", "error", "warn", "info"
	SlowQueryThreshold time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret string
	JWTTTL    time.Duration

	PresenceTTL           time.Duration
	ArchiveSchedule       string
	PresenceSweepSchedule string
}

// Load reads .env (if present), then config.yaml (if present), then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("WARN: [Config] .env file not loaded, relying on environment")
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("db_driver", "postgres")
	v.SetDefault("db_dsn", "host=localhost user=user password=password dbname=chatcore port=5432 sslmode=disable")
	v.SetDefault("log_level", "warn")
	v.SetDefault("slow_query_threshold", "200ms")
	v.SetDefault("redis_addr", "localhost:6380")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_ttl", "72h")
	v.SetDefault("presence_ttl", "60s")
	v.SetDefault("archive_schedule", "*/15 * * * *")
	v.SetDefault("presence_sweep_schedule", "* * * * *")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		HTTPAddr:              v.GetString("http_addr"),
		DBDriver:              v.GetString("db_driver"),
		DBDSN:                 v.GetString("db_dsn"),
		LogLevel:              v.GetString("log_level"),
		SlowQueryThreshold:    v.GetDuration("slow_query_threshold"),
		RedisAddr:             v.GetString("redis_addr"),
		RedisPassword:         v.GetString("redis_password"),
		RedisDB:               v.GetInt("redis_db"),
		JWTSecret:             v.GetString("jwt_secret"),
		JWTTTL:                v.GetDuration("jwt_ttl"),
		PresenceTTL:           v.GetDuration("presence_ttl"),
		ArchiveSchedule:       v.GetString("archive_schedule"),
		PresenceSweepSchedule: v.GetString("presence_sweep_schedule"),
	}
	return cfg, cfg.Validate()
}

// Validate checks values that have no safe fallback.
func (c Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return errors.New("DB_DSN is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.JWTTTL <= 0 || c.PresenceTTL <= 0 {
		return errors.New("JWT_TTL and PRESENCE_TTL must be positive")
	}
	return nil
}
