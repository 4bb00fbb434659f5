package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"creature-catalog-api/internal/logging"
)

// Pipeline defaults
const (
	DefaultCacheTTL           = 24 * time.Hour
	DefaultRefreshAfter       = 12 * time.Hour
	DefaultRetryAttempts      = 3
	DefaultRetryInitialDelay  = time.Second
	DefaultMaxConcurrentFetch = 5
	DefaultDetailTimeout      = 30 * time.Second
	DefaultPageSize           = 20
)

// Session defaults
const (
	DefaultSessionIdleTimeout     = 30 * time.Minute
	DefaultSessionCleanupInterval = time.Minute
)

// Config holds all configuration for the application
type Config struct {
	Port            string
	LogLevel        string
	Environment     string
	BaseURL         string
	Collection      string
	StorageDriver   string
	SQLitePath      string
	MetricsExporter string
	MetricsAddr     string

	APIKeys      []string
	AdminAPIKeys []string

	RateLimitEnabled                bool
	RateLimitRequestsPerMinute      int
	RateLimitAdminRequestsPerMinute int

	SessionIdleTimeout     time.Duration
	SessionCleanupInterval time.Duration

	Pipeline Pipeline
}

// Pipeline holds the tunables of the fetch/cache/enrich pipeline
type Pipeline struct {
	CacheTTL           time.Duration
	RefreshAfter       time.Duration
	RetryAttempts      int
	RetryInitialDelay  time.Duration
	MaxConcurrentFetch int
	DetailTimeout      time.Duration
	PageSize           int
}

// DefaultPipeline returns the pipeline defaults
func DefaultPipeline() Pipeline {
	return Pipeline{
		CacheTTL:           DefaultCacheTTL,
		RefreshAfter:       DefaultRefreshAfter,
		RetryAttempts:      DefaultRetryAttempts,
		RetryInitialDelay:  DefaultRetryInitialDelay,
		MaxConcurrentFetch: DefaultMaxConcurrentFetch,
		DetailTimeout:      DefaultDetailTimeout,
		PageSize:           DefaultPageSize,
	}
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() *Config {
	// Load .env file if it exists
	// This will not override existing environment variables
	err := godotenv.Load()
	if err != nil {
		slog.Debug("Could not load .env file, continuing with system environment variables only", "error", err)
	} else {
		slog.Info("Successfully loaded .env file")
	}

	config := &Config{
		Port:            getEnvWithDefault("PORT", "8080"),
		LogLevel:        getEnvWithDefault("LOG_LEVEL", "info"),
		Environment:     getEnvWithDefault("ENVIRONMENT", "development"),
		BaseURL:         getEnvWithDefault("CATALOG_BASE_URL", "https://pokeapi.co/api/v2"),
		Collection:      getEnvWithDefault("CATALOG_COLLECTION", "pokemon"),
		StorageDriver:   getEnvWithDefault("STORAGE_DRIVER", "sqlite"),
		SQLitePath:      getEnvWithDefault("SQLITE_PATH", "data/catalog.db"),
		MetricsExporter: getEnvWithDefault("METRICS_EXPORTER", ""),
		MetricsAddr:     getEnvWithDefault("METRICS_ADDR", ":9080"),

		APIKeys:      getListWithDefault("API_KEYS", []string{"demo"}),
		AdminAPIKeys: getListWithDefault("ADMIN_API_KEYS", nil),

		RateLimitEnabled:                getBoolWithDefault("RATE_LIMIT_ENABLED", true),
		RateLimitRequestsPerMinute:      getIntWithDefault("RATE_LIMIT_REQUESTS_PER_MINUTE", 600),
		RateLimitAdminRequestsPerMinute: getIntWithDefault("RATE_LIMIT_ADMIN_REQUESTS_PER_MINUTE", 60),

		SessionIdleTimeout:     getDurationWithDefault("SESSION_IDLE_TIMEOUT", DefaultSessionIdleTimeout),
		SessionCleanupInterval: getDurationWithDefault("SESSION_CLEANUP_INTERVAL", DefaultSessionCleanupInterval),

		Pipeline: Pipeline{
			CacheTTL:           getDurationWithDefault("CACHE_TTL", DefaultCacheTTL),
			RefreshAfter:       getDurationWithDefault("CACHE_REFRESH_AFTER", DefaultRefreshAfter),
			RetryAttempts:      getIntWithDefault("DETAIL_RETRY_ATTEMPTS", DefaultRetryAttempts),
			RetryInitialDelay:  getDurationWithDefault("DETAIL_RETRY_INITIAL_DELAY", DefaultRetryInitialDelay),
			MaxConcurrentFetch: getIntWithDefault("MAX_CONCURRENT_FETCHES", DefaultMaxConcurrentFetch),
			DetailTimeout:      getDurationWithDefault("DETAIL_TIMEOUT", DefaultDetailTimeout),
			PageSize:           getIntWithDefault("PAGE_SIZE", DefaultPageSize),
		},
	}

	if path := os.Getenv("CATALOG_CONFIG_FILE"); path != "" {
		if err := config.Pipeline.Overlay(path); err != nil {
			slog.Warn("Could not apply pipeline config file, keeping environment values", "path", path, "error", err)
		} else {
			slog.Info("Applied pipeline config file", "path", path)
		}
	}
	config.Pipeline.normalize()
	config.normalizeSessions()

	// Configure slog based on log level
	logging.SetupLogging(config.LogLevel)

	slog.Info("Configuration loaded",
		"port", config.Port,
		"environment", config.Environment,
		"logLevel", config.LogLevel,
		"baseURL", config.BaseURL,
		"collection", config.Collection,
		"storageDriver", config.StorageDriver,
		"metricsExporter", config.MetricsExporter,
		"rateLimitEnabled", config.RateLimitEnabled,
		"sqlitePath", config.SQLitePath,
		"cacheTTL", config.Pipeline.CacheTTL.String(),
		"refreshAfter", config.Pipeline.RefreshAfter.String(),
		"maxConcurrentFetch", config.Pipeline.MaxConcurrentFetch,
		"detailTimeout", config.Pipeline.DetailTimeout.String())

	return config
}

// Overlay reads a YAML file and replaces every tunable it sets.
// Durations are written as Go duration strings ("12h", "500ms").
func (p *Pipeline) Overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read pipeline config: %w", err)
	}

	var raw struct {
		CacheTTL           string `yaml:"cache_ttl"`
		RefreshAfter       string `yaml:"refresh_after"`
		RetryAttempts      *int   `yaml:"retry_attempts"`
		RetryInitialDelay  string `yaml:"retry_initial_delay"`
		MaxConcurrentFetch *int   `yaml:"max_concurrent_fetch"`
		DetailTimeout      string `yaml:"detail_timeout"`
		PageSize           *int   `yaml:"page_size"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse pipeline config: %w", err)
	}

	durations := []struct {
		field string
		value string
		dst   *time.Duration
	}{
		{"cache_ttl", raw.CacheTTL, &p.CacheTTL},
		{"refresh_after", raw.RefreshAfter, &p.RefreshAfter},
		{"retry_initial_delay", raw.RetryInitialDelay, &p.RetryInitialDelay},
		{"detail_timeout", raw.DetailTimeout, &p.DetailTimeout},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.field, err)
		}
		*d.dst = parsed
	}

	if raw.RetryAttempts != nil {
		p.RetryAttempts = *raw.RetryAttempts
	}
	if raw.MaxConcurrentFetch != nil {
		p.MaxConcurrentFetch = *raw.MaxConcurrentFetch
	}
	if raw.PageSize != nil {
		p.PageSize = *raw.PageSize
	}
	return nil
}

// normalizeSessions replaces non-positive session timings with their defaults
func (c *Config) normalizeSessions() {
	if c.SessionIdleTimeout <= 0 {
		slog.Warn("Invalid session idle timeout, using default",
			"value", c.SessionIdleTimeout.String(), "default", DefaultSessionIdleTimeout.String())
		c.SessionIdleTimeout = DefaultSessionIdleTimeout
	}
	if c.SessionCleanupInterval <= 0 {
		slog.Warn("Invalid session cleanup interval, using default",
			"value", c.SessionCleanupInterval.String(), "default", DefaultSessionCleanupInterval.String())
		c.SessionCleanupInterval = DefaultSessionCleanupInterval
	}
}

// normalize replaces out-of-range tunables with their defaults
func (p *Pipeline) normalize() {
	def := DefaultPipeline()
	if p.CacheTTL <= 0 {
		p.CacheTTL = def.CacheTTL
	}
	if p.RefreshAfter <= 0 || p.RefreshAfter > p.CacheTTL {
		p.RefreshAfter = p.CacheTTL / 2
	}
	if p.RetryAttempts < 1 {
		p.RetryAttempts = def.RetryAttempts
	}
	if p.RetryInitialDelay <= 0 {
		p.RetryInitialDelay = def.RetryInitialDelay
	}
	if p.MaxConcurrentFetch < 1 {
		p.MaxConcurrentFetch = def.MaxConcurrentFetch
	}
	if p.DetailTimeout <= 0 {
		p.DetailTimeout = def.DetailTimeout
	}
	if p.PageSize < 1 {
		p.PageSize = def.PageSize
	}
}

// getEnvWithDefault gets an environment variable with a default fallback
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("Invalid duration, using default", "key", key, "provided", value, "error", err)
		return defaultValue
	}
	return parsed
}

func getIntWithDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("Invalid integer, using default", "key", key, "provided", value, "error", err)
		return defaultValue
	}
	return parsed
}

func getBoolWithDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on", "enabled":
		return true
	case "false", "0", "no", "off", "disabled":
		return false
	default:
		slog.Warn("Invalid boolean, using default", "key", key, "provided", value)
		return defaultValue
	}
}

// getListWithDefault reads a comma separated list, dropping blank items
func getListWithDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
