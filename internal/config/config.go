package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Store     StoreConfig     `json:"store"`
	Upstream  UpstreamConfig  `json:"upstream"`
	Backfill  BackfillConfig  `json:"backfill"`
	Refresh   RefreshConfig   `json:"refresh"`
	Cache     CacheConfig     `json:"cache"`
	Tracing   TracingConfig   `json:"tracing"`
	Security  SecurityConfig  `json:"security"`
	RateLimit RateLimitConfig `json:"rate_limit"`
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port string `json:"port"`
	Host string `json:"host"`
}

// StoreConfig holds the job-handle store configuration.
type StoreConfig struct {
	Path string `json:"path"`
	// SweepIntervalMinutes controls how often completed handles are swept.
	SweepIntervalMinutes int `json:"sweep_interval_minutes"`
}

// UpstreamConfig describes the consumed services.
type UpstreamConfig struct {
	BaseURL        string `json:"base_url"`
	TenantID       string `json:"tenant_id"`
	Provider       string `json:"provider"`
	RedirectURL    string `json:"redirect_url"`
	ScanWindowDays int    `json:"scan_window_days"`
	BatchSize      int    `json:"batch_size"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// BackfillConfig holds the completion-polling policy.
type BackfillConfig struct {
	PollIntervalSeconds int `json:"poll_interval_seconds"`
	MaxAttempts         int `json:"max_attempts"`
}

// RefreshConfig holds the live refresh loop configuration.
type RefreshConfig struct {
	IntervalSeconds int `json:"interval_seconds"`
}

// CacheConfig holds the promotions cache configuration.
type CacheConfig struct {
	Enabled       bool   `json:"enabled"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
	TTLSeconds    int    `json:"ttl_seconds"`
}

// TracingConfig holds tracing configuration.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	Endpoint    string `json:"endpoint"`
	Environment string `json:"environment"`
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	// Max request body size in bytes (default: 1MB)
	MaxRequestBodySize int64 `json:"max_request_body_size"`
	// Allowed CORS origins (comma-separated)
	AllowedOrigins string `json:"allowed_origins"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool `json:"enabled"`
	Rate    int  `json:"rate"`
	Window  int  `json:"window"` // in seconds
}

// LoadConfig loads configuration from environment variables and/or config
// file. Environment variables take precedence over config file values.
func LoadConfig(configFile string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", ""),
		},
		Store: StoreConfig{
			Path:                 getEnv("STORE_PATH", "./inbox_deals.db"),
			SweepIntervalMinutes: getEnvInt("STORE_SWEEP_INTERVAL_MINUTES", 60),
		},
		Upstream: UpstreamConfig{
			BaseURL:        getEnv("UPSTREAM_BASE_URL", "http://localhost:9090"),
			TenantID:       getEnv("UPSTREAM_TENANT_ID", "00000000-0000-0000-0000-000000000000"),
			Provider:       getEnv("UPSTREAM_PROVIDER", "google"),
			RedirectURL:    getEnv("UPSTREAM_REDIRECT_URL", "http://localhost:8080/connected.html"),
			ScanWindowDays: getEnvInt("UPSTREAM_SCAN_WINDOW_DAYS", 90),
			BatchSize:      getEnvInt("UPSTREAM_BATCH_SIZE", 50),
			TimeoutSeconds: getEnvInt("UPSTREAM_TIMEOUT_SECONDS", 15),
		},
		Backfill: BackfillConfig{
			PollIntervalSeconds: getEnvInt("BACKFILL_POLL_INTERVAL_SECONDS", 3),
			MaxAttempts:         getEnvInt("BACKFILL_MAX_ATTEMPTS", 120),
		},
		Refresh: RefreshConfig{
			IntervalSeconds: getEnvInt("REFRESH_INTERVAL_SECONDS", 20),
		},
		Cache: CacheConfig{
			Enabled:       getEnvBool("CACHE_ENABLED", true),
			RedisAddr:     getEnv("CACHE_REDIS_ADDR", ""),
			RedisPassword: getEnv("CACHE_REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("CACHE_REDIS_DB", 0),
			TTLSeconds:    getEnvInt("CACHE_TTL_SECONDS", 10),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvBool("TRACING_ENABLED", false),
			Endpoint:    getEnv("TRACING_ENDPOINT", "http://localhost:14268/api/traces"),
			Environment: getEnv("TRACING_ENVIRONMENT", "development"),
		},
		Security: SecurityConfig{
			MaxRequestBodySize: getEnvInt64("MAX_REQUEST_BODY_SIZE", 1<<20),
			AllowedOrigins:     getEnv("ALLOWED_ORIGINS", "*"),
		},
		RateLimit: RateLimitConfig{
			Enabled: getEnvBool("RATE_LIMIT_ENABLED", true),
			Rate:    getEnvInt("RATE_LIMIT_RATE", 100),
			Window:  getEnvInt("RATE_LIMIT_WINDOW", 60),
		},
	}

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		// Environment variables take precedence over the file.
		overrideFromEnv(cfg)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a JSON file.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, cfg)
}

// overrideFromEnv overrides configuration with environment variables.
func overrideFromEnv(cfg *Config) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Server.Port = port
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if path := os.Getenv("STORE_PATH"); path != "" {
		cfg.Store.Path = path
	}
	if base := os.Getenv("UPSTREAM_BASE_URL"); base != "" {
		cfg.Upstream.BaseURL = base
	}
	if tenant := os.Getenv("UPSTREAM_TENANT_ID"); tenant != "" {
		cfg.Upstream.TenantID = tenant
	}
	if provider := os.Getenv("UPSTREAM_PROVIDER"); provider != "" {
		cfg.Upstream.Provider = provider
	}
	if redirect := os.Getenv("UPSTREAM_REDIRECT_URL"); redirect != "" {
		cfg.Upstream.RedirectURL = redirect
	}
	if window := os.Getenv("UPSTREAM_SCAN_WINDOW_DAYS"); window != "" {
		if w, err := strconv.Atoi(window); err == nil {
			cfg.Upstream.ScanWindowDays = w
		}
	}
	if batch := os.Getenv("UPSTREAM_BATCH_SIZE"); batch != "" {
		if b, err := strconv.Atoi(batch); err == nil {
			cfg.Upstream.BatchSize = b
		}
	}
	if interval := os.Getenv("BACKFILL_POLL_INTERVAL_SECONDS"); interval != "" {
		if i, err := strconv.Atoi(interval); err == nil {
			cfg.Backfill.PollIntervalSeconds = i
		}
	}
	if attempts := os.Getenv("BACKFILL_MAX_ATTEMPTS"); attempts != "" {
		if a, err := strconv.Atoi(attempts); err == nil {
			cfg.Backfill.MaxAttempts = a
		}
	}
	if interval := os.Getenv("REFRESH_INTERVAL_SECONDS"); interval != "" {
		if i, err := strconv.Atoi(interval); err == nil {
			cfg.Refresh.IntervalSeconds = i
		}
	}
	if enabled := os.Getenv("CACHE_ENABLED"); enabled != "" {
		cfg.Cache.Enabled = enabled == "true" || enabled == "1"
	}
	if addr := os.Getenv("CACHE_REDIS_ADDR"); addr != "" {
		cfg.Cache.RedisAddr = addr
	}
	if enabled := os.Getenv("TRACING_ENABLED"); enabled != "" {
		cfg.Tracing.Enabled = enabled == "true" || enabled == "1"
	}
	if endpoint := os.Getenv("TRACING_ENDPOINT"); endpoint != "" {
		cfg.Tracing.Endpoint = endpoint
	}
	if maxBodySize := os.Getenv("MAX_REQUEST_BODY_SIZE"); maxBodySize != "" {
		if size, err := strconv.ParseInt(maxBodySize, 10, 64); err == nil {
			cfg.Security.MaxRequestBodySize = size
		}
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.Security.AllowedOrigins = origins
	}
	if enabled := os.Getenv("RATE_LIMIT_ENABLED"); enabled != "" {
		cfg.RateLimit.Enabled = enabled == "true" || enabled == "1"
	}
	if rate := os.Getenv("RATE_LIMIT_RATE"); rate != "" {
		if r, err := strconv.Atoi(rate); err == nil {
			cfg.RateLimit.Rate = r
		}
	}
	if window := os.Getenv("RATE_LIMIT_WINDOW"); window != "" {
		if w, err := strconv.Atoi(window); err == nil {
			cfg.RateLimit.Window = w
		}
	}
}

// getEnv gets an environment variable or returns the default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable or returns the default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvInt64 gets an int64 environment variable or returns the default value.
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store path is required")
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream base URL is required")
	}
	if c.Upstream.ScanWindowDays <= 0 {
		return fmt.Errorf("scan window must be positive")
	}
	if c.Upstream.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.Backfill.PollIntervalSeconds <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Backfill.MaxAttempts <= 0 {
		return fmt.Errorf("max poll attempts must be positive")
	}
	if c.Refresh.IntervalSeconds <= 0 {
		return fmt.Errorf("refresh interval must be positive")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Rate <= 0 {
			return fmt.Errorf("rate limit rate must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
	}
	return nil
}
