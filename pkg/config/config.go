package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pkgvault/registry/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Storage configuration (database, redis, object store)
	Storage StorageConfig `yaml:"storage"`

	// Downloads configuration (counter shards, flush cadence)
	Downloads DownloadsConfig `yaml:"downloads"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`

	// Rate limiting for the download endpoints (requires Redis)
	RateLimitEnabled   bool `yaml:"rate_limit_enabled"`
	RateLimitPerMinute int  `yaml:"rate_limit_per_minute"`
}

// StorageConfig holds database, Redis, and object storage configuration
type StorageConfig struct {
	// Driver selects the SQL backend: "postgres" or "sqlite"
	Driver string `yaml:"driver"`

	// PostgreSQL
	PostgresURL      string        `yaml:"postgres_url"`
	PostgresMaxConns int           `yaml:"postgres_max_conns"`
	PostgresMinConns int           `yaml:"postgres_min_conns"`
	PostgresTimeout  time.Duration `yaml:"postgres_timeout"`

	// SQLite (single-node deployments and tests)
	SQLitePath string `yaml:"sqlite_path"`

	// Redis (catalog cache L2 and rate limiting; optional)
	RedisURL      string `yaml:"redis_url"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPoolSize int    `yaml:"redis_pool_size"`

	// Object storage for package archives
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3Region       string `yaml:"s3_region"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	S3UsePathStyle bool   `yaml:"s3_use_path_style"`

	// CDNBaseURL, when set, builds download URLs directly instead of presigning
	CDNBaseURL string `yaml:"cdn_base_url"`

	// DownloadURLTTL bounds presigned URL validity
	DownloadURLTTL time.Duration `yaml:"download_url_ttl"`

	// Catalog cache
	CacheEnabled bool          `yaml:"cache_enabled"`
	CacheSize    int           `yaml:"cache_size"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
}

// DownloadsConfig holds download counting configuration
type DownloadsConfig struct {
	// Shards is the number of counter shards; more shards means less
	// contention under concurrent download traffic
	Shards int `yaml:"shards"`

	// FlushInterval is how often pending counts are persisted
	FlushInterval time.Duration `yaml:"flush_interval"`

	// FlushParallelism bounds concurrent per-shard flush transactions
	FlushParallelism int `yaml:"flush_parallelism"`

	// QueryWindowDays is the size of the per-day history window
	QueryWindowDays int `yaml:"query_window_days"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel `yaml:"log_level"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"`
}

// LoadConfig loads configuration from environment variables, applying an
// optional YAML overlay when REGISTRY_CONFIG_FILE is set. Environment
// variables win over file values.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        defaultServerConfig(),
		Storage:       defaultStorageConfig(),
		Downloads:     defaultDownloadsConfig(),
		Observability: defaultObservabilityConfig(),
	}

	if path := getEnv("REGISTRY_CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:               "0.0.0.0",
		Port:               "8080",
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		IdleTimeout:        60 * time.Second,
		ShutdownTimeout:    30 * time.Second,
		HealthPort:         "9090",
		RateLimitEnabled:   false,
		RateLimitPerMinute: 600,
	}
}

func defaultStorageConfig() StorageConfig {
	return StorageConfig{
		Driver:           "postgres",
		PostgresURL:      "postgres://localhost:5432/registry?sslmode=disable",
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		SQLitePath:       "registry.db",
		RedisDB:          0,
		RedisPoolSize:    10,
		S3Region:         "us-east-1",
		DownloadURLTTL:   15 * time.Minute,
		CacheEnabled:     true,
		CacheSize:        10000,
		CacheTTL:         5 * time.Minute,
	}
}

func defaultDownloadsConfig() DownloadsConfig {
	return DownloadsConfig{
		Shards:           16,
		FlushInterval:    time.Minute,
		FlushParallelism: 4,
		QueryWindowDays:  90,
	}
}

func defaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.InfoLevel,
		MetricsEnabled:     true,
		OTelEnabled:        false,
		OTelEndpoint:       "localhost:4317",
		OTelServiceName:    "pkgvault-registry",
		OTelServiceVersion: "1.0.0",
		OTelInsecure:       true,
	}
}

// applyFile overlays values from a YAML config file
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// applyEnv overlays values from REGISTRY_* environment variables
func (c *Config) applyEnv() {
	// Server
	c.Server.Host = getEnv("REGISTRY_HOST", c.Server.Host)
	c.Server.Port = getEnv("REGISTRY_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("REGISTRY_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("REGISTRY_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("REGISTRY_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("REGISTRY_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.HealthPort = getEnv("REGISTRY_HEALTH_PORT", c.Server.HealthPort)
	c.Server.RateLimitEnabled = getEnvBool("REGISTRY_RATE_LIMIT_ENABLED", c.Server.RateLimitEnabled)
	c.Server.RateLimitPerMinute = getEnvInt("REGISTRY_RATE_LIMIT_PER_MINUTE", c.Server.RateLimitPerMinute)

	// Storage
	c.Storage.Driver = getEnv("REGISTRY_DB_DRIVER", c.Storage.Driver)
	c.Storage.PostgresURL = getEnv("REGISTRY_POSTGRES_URL", c.Storage.PostgresURL)
	c.Storage.PostgresMaxConns = getEnvInt("REGISTRY_POSTGRES_MAX_CONNS", c.Storage.PostgresMaxConns)
	c.Storage.PostgresMinConns = getEnvInt("REGISTRY_POSTGRES_MIN_CONNS", c.Storage.PostgresMinConns)
	c.Storage.PostgresTimeout = getEnvDuration("REGISTRY_POSTGRES_TIMEOUT", c.Storage.PostgresTimeout)
	c.Storage.SQLitePath = getEnv("REGISTRY_SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.RedisURL = getEnv("REGISTRY_REDIS_URL", c.Storage.RedisURL)
	c.Storage.RedisPassword = getEnv("REGISTRY_REDIS_PASSWORD", c.Storage.RedisPassword)
	c.Storage.RedisDB = getEnvInt("REGISTRY_REDIS_DB", c.Storage.RedisDB)
	c.Storage.RedisPoolSize = getEnvInt("REGISTRY_REDIS_POOL_SIZE", c.Storage.RedisPoolSize)
	c.Storage.S3Endpoint = getEnv("REGISTRY_S3_ENDPOINT", c.Storage.S3Endpoint)
	c.Storage.S3Region = getEnv("REGISTRY_S3_REGION", c.Storage.S3Region)
	c.Storage.S3Bucket = getEnv("REGISTRY_S3_BUCKET", c.Storage.S3Bucket)
	c.Storage.S3AccessKey = getEnv("REGISTRY_S3_ACCESS_KEY", c.Storage.S3AccessKey)
	c.Storage.S3SecretKey = getEnv("REGISTRY_S3_SECRET_KEY", c.Storage.S3SecretKey)
	c.Storage.S3UsePathStyle = getEnvBool("REGISTRY_S3_USE_PATH_STYLE", c.Storage.S3UsePathStyle)
	c.Storage.CDNBaseURL = getEnv("REGISTRY_CDN_BASE_URL", c.Storage.CDNBaseURL)
	c.Storage.DownloadURLTTL = getEnvDuration("REGISTRY_DOWNLOAD_URL_TTL", c.Storage.DownloadURLTTL)
	c.Storage.CacheEnabled = getEnvBool("REGISTRY_CACHE_ENABLED", c.Storage.CacheEnabled)
	c.Storage.CacheSize = getEnvInt("REGISTRY_CACHE_SIZE", c.Storage.CacheSize)
	c.Storage.CacheTTL = getEnvDuration("REGISTRY_CACHE_TTL", c.Storage.CacheTTL)

	// Downloads
	c.Downloads.Shards = getEnvInt("REGISTRY_DOWNLOAD_SHARDS", c.Downloads.Shards)
	c.Downloads.FlushInterval = getEnvDuration("REGISTRY_FLUSH_INTERVAL", c.Downloads.FlushInterval)
	c.Downloads.FlushParallelism = getEnvInt("REGISTRY_FLUSH_PARALLELISM", c.Downloads.FlushParallelism)
	c.Downloads.QueryWindowDays = getEnvInt("REGISTRY_QUERY_WINDOW_DAYS", c.Downloads.QueryWindowDays)

	// Observability
	if level := os.Getenv("REGISTRY_LOG_LEVEL"); level != "" {
		c.Observability.LogLevel = observability.ParseLevel(level)
	}
	c.Observability.MetricsEnabled = getEnvBool("REGISTRY_METRICS_ENABLED", c.Observability.MetricsEnabled)
	c.Observability.OTelEnabled = getEnvBool("REGISTRY_OTEL_ENABLED", c.Observability.OTelEnabled)
	c.Observability.OTelEndpoint = getEnv("REGISTRY_OTEL_ENDPOINT", c.Observability.OTelEndpoint)
	c.Observability.OTelServiceName = getEnv("REGISTRY_OTEL_SERVICE_NAME", c.Observability.OTelServiceName)
	c.Observability.OTelServiceVersion = getEnv("REGISTRY_OTEL_SERVICE_VERSION", c.Observability.OTelServiceVersion)
	c.Observability.OTelInsecure = getEnvBool("REGISTRY_OTEL_INSECURE", c.Observability.OTelInsecure)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.RateLimitEnabled {
		if c.Server.RateLimitPerMinute <= 0 {
			return fmt.Errorf("rate limit per minute must be positive when rate limiting is enabled")
		}
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("redis URL is required when rate limiting is enabled")
		}
	}

	switch c.Storage.Driver {
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres driver")
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite driver")
		}
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite)", c.Storage.Driver)
	}

	if c.Storage.CDNBaseURL == "" && c.Storage.S3Bucket == "" {
		return fmt.Errorf("either a CDN base URL or an S3 bucket is required for download URLs")
	}

	if c.Downloads.Shards <= 0 {
		return fmt.Errorf("download shards must be positive")
	}
	if c.Downloads.FlushInterval <= 0 {
		return fmt.Errorf("flush interval must be positive")
	}
	if c.Downloads.FlushParallelism <= 0 {
		return fmt.Errorf("flush parallelism must be positive")
	}
	if c.Downloads.QueryWindowDays <= 0 {
		return fmt.Errorf("query window days must be positive")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
