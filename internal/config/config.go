package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	CORS     CORSConfig
	Redis    RedisConfig
	Resolver ResolverConfig
	Envelope EnvelopeConfig
	Sync     SyncConfig
	Cache    CacheConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string

	// SlowRequest is the duration above which a request logs at warn level.
	SlowRequest time.Duration
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	PoolMin  int
	PoolMax  int
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	Origins []string
}

// RedisConfig configures the shared cache tier. An empty Addr disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// ResolverConfig holds spatial resolution tuning.
type ResolverConfig struct {
	MajorityThreshold float64
	Epsilon           float64
}

// EnvelopeConfig holds envelope calculation tuning.
type EnvelopeConfig struct {
	PrecisionPenalty  float64
	UnknownConfidence float64
}

// SyncConfig holds ingestion settings.
type SyncConfig struct {
	AnomalyThreshold float64
	Workers          int
	Interval         time.Duration
	Regions          []string
	SourceURL        string
	PageSize         int
	RefreshInterval  time.Duration
}

// CacheConfig holds read-through cache settings.
type CacheConfig struct {
	LocalSize int
	TTL       time.Duration
}

// Load reads configuration from an optional .env file and environment
// variables, applies defaults and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("SLOW_REQUEST", "2s")
	v.SetDefault("DB_HOST", "host.docker.internal")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "siteplan")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_POOL_MIN", 2)
	v.SetDefault("DB_POOL_MAX", 10)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000,http://localhost:3001")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("RESOLVER_MAJORITY_THRESHOLD", 0.5)
	v.SetDefault("GEOM_EPSILON", 1e-9)
	v.SetDefault("ENVELOPE_PRECISION_PENALTY", 0.2)
	v.SetDefault("ENVELOPE_UNKNOWN_CONFIDENCE", 0.5)
	v.SetDefault("SYNC_ANOMALY_THRESHOLD", 0.10)
	v.SetDefault("SYNC_WORKERS", 4)
	v.SetDefault("SYNC_INTERVAL", "24h")
	v.SetDefault("SYNC_REGIONS", "")
	v.SetDefault("SYNC_SOURCE_URL", "")
	v.SetDefault("SYNC_PAGE_SIZE", 2000)
	v.SetDefault("STORE_REFRESH_INTERVAL", "1m")
	v.SetDefault("CACHE_LOCAL_SIZE", 10000)
	v.SetDefault("CACHE_TTL", "6h")

	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Port:        v.GetString("PORT"),
			Env:         v.GetString("ENV"),
			LogLevel:    v.GetString("LOG_LEVEL"),
			SlowRequest: v.GetDuration("SLOW_REQUEST"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			Name:     v.GetString("DB_NAME"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			PoolMin:  v.GetInt("DB_POOL_MIN"),
			PoolMax:  v.GetInt("DB_POOL_MAX"),
		},
		CORS: CORSConfig{
			Origins: splitList(v.GetString("CORS_ORIGINS")),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Resolver: ResolverConfig{
			MajorityThreshold: v.GetFloat64("RESOLVER_MAJORITY_THRESHOLD"),
			Epsilon:           v.GetFloat64("GEOM_EPSILON"),
		},
		Envelope: EnvelopeConfig{
			PrecisionPenalty:  v.GetFloat64("ENVELOPE_PRECISION_PENALTY"),
			UnknownConfidence: v.GetFloat64("ENVELOPE_UNKNOWN_CONFIDENCE"),
		},
		Sync: SyncConfig{
			AnomalyThreshold: v.GetFloat64("SYNC_ANOMALY_THRESHOLD"),
			Workers:          v.GetInt("SYNC_WORKERS"),
			Interval:         v.GetDuration("SYNC_INTERVAL"),
			Regions:          splitList(v.GetString("SYNC_REGIONS")),
			SourceURL:        v.GetString("SYNC_SOURCE_URL"),
			PageSize:         v.GetInt("SYNC_PAGE_SIZE"),
			RefreshInterval:  v.GetDuration("STORE_REFRESH_INTERVAL"),
		},
		Cache: CacheConfig{
			LocalSize: v.GetInt("CACHE_LOCAL_SIZE"),
			TTL:       v.GetDuration("CACHE_TTL"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.Port == "" {
		return fmt.Errorf("DB_PORT is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Database.PoolMin < 0 {
		return fmt.Errorf("DB_POOL_MIN must be non-negative")
	}
	if c.Database.PoolMax < 1 {
		return fmt.Errorf("DB_POOL_MAX must be at least 1")
	}
	if c.Database.PoolMin > c.Database.PoolMax {
		return fmt.Errorf("DB_POOL_MIN must be less than or equal to DB_POOL_MAX")
	}

	if len(c.CORS.Origins) == 0 {
		return fmt.Errorf("CORS_ORIGINS is required")
	}

	if t := c.Resolver.MajorityThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("RESOLVER_MAJORITY_THRESHOLD must be in (0, 1]")
	}
	if c.Resolver.Epsilon <= 0 || c.Resolver.Epsilon >= 0.01 {
		return fmt.Errorf("GEOM_EPSILON must be in (0, 0.01)")
	}

	if p := c.Envelope.PrecisionPenalty; p < 0 || p > 1 {
		return fmt.Errorf("ENVELOPE_PRECISION_PENALTY must be in [0, 1]")
	}
	if u := c.Envelope.UnknownConfidence; u < 0 || u > 1 {
		return fmt.Errorf("ENVELOPE_UNKNOWN_CONFIDENCE must be in [0, 1]")
	}

	if c.Sync.AnomalyThreshold <= 0 {
		return fmt.Errorf("SYNC_ANOMALY_THRESHOLD must be positive")
	}
	if c.Sync.Workers < 1 {
		return fmt.Errorf("SYNC_WORKERS must be at least 1")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("SYNC_INTERVAL must be positive")
	}
	if c.Sync.PageSize < 1 {
		return fmt.Errorf("SYNC_PAGE_SIZE must be at least 1")
	}
	if c.Sync.RefreshInterval <= 0 {
		return fmt.Errorf("STORE_REFRESH_INTERVAL must be positive")
	}

	if c.Cache.LocalSize < 0 {
		return fmt.Errorf("CACHE_LOCAL_SIZE must be non-negative")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive")
	}

	return nil
}

// splitList splits a comma-separated string into trimmed, non-empty parts.
func splitList(s string) []string {
	if s == "" {
		return []string{}
	}

	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
