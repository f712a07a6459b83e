package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Search      SearchConfig      `yaml:"search"`
	Ads         AdsConfig         `yaml:"ads"`
	Cache       CacheConfig       `yaml:"cache"`
	Idempotency IdempotencyConfig `yaml:"idempotency"`
	Outbox      OutboxConfig      `yaml:"outbox"`
	Geo         GeoConfig         `yaml:"geo"`
	Inventory   InventoryConfig   `yaml:"inventory"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Cleanup     CleanupConfig     `yaml:"cleanup"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port                  string   `yaml:"port"`
	AllowOrigins          []string `yaml:"allow_origins"`
	RequestTimeoutSeconds int      `yaml:"request_timeout_seconds"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Type     string         `yaml:"type"` // mysql, postgres, sqlite
	MySQL    MySQLConfig    `yaml:"mysql"`
	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	LogSQL   bool           `yaml:"log_sql"`
}

// MySQLConfig contains MySQL connection settings
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// PostgresConfig contains PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// SQLiteConfig contains the SQLite file location (local development)
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig contains Redis connection settings for the cache layer
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SearchConfig contains search engine settings
type SearchConfig struct {
	Meilisearch MeilisearchConfig `yaml:"meilisearch"`
}

// MeilisearchConfig contains Meilisearch connection settings
type MeilisearchConfig struct {
	Host   string `yaml:"host"`
	APIKey string `yaml:"api_key"`
	Index  string `yaml:"index"`
}

// AdsConfig contains ad lifecycle defaults
type AdsConfig struct {
	AutoApprove  bool `yaml:"auto_approve"`
	DefaultLimit int  `yaml:"default_limit"`
	MaxLimit     int  `yaml:"max_limit"`
}

// CacheConfig contains cache TTLs and the per-call timeout
type CacheConfig struct {
	ListTTLSeconds   int `yaml:"list_ttl_seconds"`
	DetailTTLSeconds int `yaml:"detail_ttl_seconds"`
	TimeoutMillis    int `yaml:"timeout_millis"`
}

// IdempotencyConfig contains idempotency key settings
type IdempotencyConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
}

// OutboxConfig contains outbox relay and retention settings
type OutboxConfig struct {
	RetentionDays       int  `yaml:"retention_days"`
	RelayEnabled        bool `yaml:"relay_enabled"`
	PollIntervalSeconds int  `yaml:"poll_interval_seconds"`
	BatchSize           int  `yaml:"batch_size"`
	MaxRetries          int  `yaml:"max_retries"`
}

// GeoConfig contains geocoding and radius fallback settings
type GeoConfig struct {
	GeocoderURL   string    `yaml:"geocoder_url"`
	UserAgent     string    `yaml:"user_agent"`
	TimeoutMillis int       `yaml:"timeout_millis"`
	RadiiKm       []float64 `yaml:"radii_km"`
}

// InventoryConfig contains inventory lookup settings
type InventoryConfig struct {
	TimeoutMillis int `yaml:"timeout_millis"`
}

// RateLimitConfig contains rate limiting settings for ad creation
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	RequestsPerHour   int  `yaml:"requests_per_hour"`
}

// CleanupConfig contains the maintenance sweep schedule
type CleanupConfig struct {
	Enabled  bool   `yaml:"enabled"`
	DailyRun string `yaml:"daily_run_time"` // HH:MM
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level       string `yaml:"level"`
	LogRequests bool   `yaml:"log_requests"`
	Pretty      bool   `yaml:"pretty"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                  "8084",
			AllowOrigins:          []string{"http://localhost:5176"},
			RequestTimeoutSeconds: 15,
		},
		Database: DatabaseConfig{
			Type: "mysql",
			SQLite: SQLiteConfig{
				Path: "data/classifieds.db",
			},
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Search: SearchConfig{
			Meilisearch: MeilisearchConfig{
				Index: "ads",
			},
		},
		Ads: AdsConfig{
			AutoApprove:  true,
			DefaultLimit: 20,
			MaxLimit:     100,
		},
		Cache: CacheConfig{
			ListTTLSeconds:   300,
			DetailTTLSeconds: 900,
			TimeoutMillis:    500,
		},
		Idempotency: IdempotencyConfig{
			TTLSeconds: 900,
		},
		Outbox: OutboxConfig{
			RetentionDays:       7,
			RelayEnabled:        false,
			PollIntervalSeconds: 10,
			BatchSize:           20,
			MaxRetries:          5,
		},
		Geo: GeoConfig{
			GeocoderURL:   "https://nominatim.openstreetmap.org",
			UserAgent:     "classifieds-marketplace/1.0",
			TimeoutMillis: 2000,
			RadiiKm:       []float64{50, 100, 200, 500, 1000},
		},
		Inventory: InventoryConfig{
			TimeoutMillis: 2000,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 10,
			RequestsPerHour:   120,
		},
		Cleanup: CleanupConfig{
			Enabled:  true,
			DailyRun: "03:00",
		},
		Logging: LoggingConfig{
			Level:       "info",
			LogRequests: true,
		},
	}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filepath string) (*Config, error) {
	// Start with default config
	config := DefaultConfig()

	// If file doesn't exist, return default config
	if _, err := os.Stat(filepath); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database type %q", c.Database.Type)
	}
	if len(c.Geo.RadiiKm) == 0 {
		return fmt.Errorf("geo.radii_km must list at least one radius")
	}
	for i := 1; i < len(c.Geo.RadiiKm); i++ {
		if c.Geo.RadiiKm[i] <= c.Geo.RadiiKm[i-1] {
			return fmt.Errorf("geo.radii_km must be strictly increasing")
		}
	}
	if c.Ads.DefaultLimit <= 0 || c.Ads.MaxLimit < c.Ads.DefaultLimit {
		return fmt.Errorf("ads.default_limit must be positive and not exceed ads.max_limit")
	}
	return nil
}

// ApplyEnv overrides connection settings from environment variables.
// Config file values win over the environment, which wins over defaults.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("DB_TYPE"); v != "" && c.Database.Type == "" {
		c.Database.Type = v
	}

	my := &c.Database.MySQL
	my.Host = GetEnvOrConfig(my.Host, "DB_HOST", "mysql")
	my.Port = getEnvIntOrConfig(my.Port, "DB_PORT", 3306)
	my.User = GetEnvOrConfig(my.User, "DB_USER", "classifieds_user")
	my.Password = GetEnvOrConfig(my.Password, "DB_PASSWORD", "classifieds_pass")
	my.Database = GetEnvOrConfig(my.Database, "DB_NAME", "classifieds_db")

	pg := &c.Database.Postgres
	pg.Host = GetEnvOrConfig(pg.Host, "DB_HOST", "db")
	pg.Port = getEnvIntOrConfig(pg.Port, "DB_PORT", 5432)
	pg.User = GetEnvOrConfig(pg.User, "DB_USER", "classifieds_user")
	pg.Password = GetEnvOrConfig(pg.Password, "DB_PASSWORD", "classifieds_pass")
	pg.Database = GetEnvOrConfig(pg.Database, "DB_NAME", "classifieds_db")
	pg.SSLMode = GetEnvOrConfig(pg.SSLMode, "DB_SSLMODE", "disable")

	c.Redis.Addr = GetEnvOrConfig(os.Getenv("REDIS_URL"), "REDIS_ADDR", c.Redis.Addr)
	c.Search.Meilisearch.Host = GetEnvOrConfig(c.Search.Meilisearch.Host, "MEILISEARCH_HOST", "")
	c.Search.Meilisearch.APIKey = GetEnvOrConfig(c.Search.Meilisearch.APIKey, "MEILISEARCH_KEY", "")
	c.Server.Port = GetEnv("PORT", c.Server.Port)
}

// GetEnv returns the environment value for key or defaultValue
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvOrConfig returns config value if set, otherwise falls back to environment variable, then default
func GetEnvOrConfig(configValue, envKey, defaultValue string) string {
	if configValue != "" {
		return configValue
	}
	return GetEnv(envKey, defaultValue)
}

func getEnvIntOrConfig(configValue int, envKey string, defaultValue int) int {
	if configValue > 0 {
		return configValue
	}
	if v := os.Getenv(envKey); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

// RequestTimeout returns the per-request deadline
func (c *ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// ListTTL returns the list cache TTL as a duration
func (c *CacheConfig) ListTTL() time.Duration {
	return time.Duration(c.ListTTLSeconds) * time.Second
}

// DetailTTL returns the detail cache TTL as a duration
func (c *CacheConfig) DetailTTL() time.Duration {
	return time.Duration(c.DetailTTLSeconds) * time.Second
}

// Timeout returns the cache call timeout as a duration
func (c *CacheConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

// TTL returns the idempotency record lifetime
func (c *IdempotencyConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Retention returns how long terminal events are kept
func (c *OutboxConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// PollInterval returns the relay polling interval
func (c *OutboxConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Timeout returns the geocoder call timeout
func (c *GeoConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

// Timeout returns the inventory call timeout
func (c *InventoryConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}
