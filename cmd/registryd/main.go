// Command registryd runs the package registry API server: catalog
// endpoints, download redirects with in-memory counting, and the
// periodic flush that persists counts to the database.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pkgvault/registry/pkg/api"
	"github.com/pkgvault/registry/pkg/config"
	"github.com/pkgvault/registry/pkg/downloads"
	"github.com/pkgvault/registry/pkg/middleware"
	"github.com/pkgvault/registry/pkg/observability"
	"github.com/pkgvault/registry/pkg/registry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "registryd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	configureLogrus(cfg.Observability.LogLevel)
	logger.Info("Starting pkgvault registry")

	ctx := context.Background()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	db, err := openDatabase(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	logger.WithField("driver", cfg.Storage.Driver).Info("Database connected")

	redisClient, err := openRedis(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}

	catalog := registry.NewCatalog(db)
	if err := catalog.EnsureSchema(ctx); err != nil {
		return err
	}

	store := downloads.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	var finder api.VersionFinder = catalog
	if cfg.Storage.CacheEnabled {
		finder = registry.NewCachedCatalog(catalog, redisClient, registry.CacheConfig{
			Size: cfg.Storage.CacheSize,
			TTL:  cfg.Storage.CacheTTL,
		}, metrics)
	}

	resolver, err := buildResolver(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	counter := downloads.NewCounter(cfg.Downloads.Shards)
	coordinator := downloads.NewCoordinator(counter, store, cfg.Downloads.FlushParallelism, metrics, logger)
	service := downloads.NewService(counter, store, cfg.Downloads.QueryWindowDays, metrics)

	scheduler, err := downloads.NewScheduler(coordinator, cfg.Downloads.FlushInterval, logger)
	if err != nil {
		return fmt.Errorf("failed to create flush scheduler: %w", err)
	}
	scheduler.Start()
	logger.WithField("interval", cfg.Downloads.FlushInterval.String()).Info("Flush scheduler started")

	server := api.NewServer(catalog, finder, service, coordinator, resolver, metrics, logger)

	var extra []func(http.Handler) http.Handler
	if cfg.Server.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(redisClient, &middleware.RateLimitConfig{
			RequestsPerWindow: cfg.Server.RateLimitPerMinute,
			WindowDuration:    time.Minute,
		}, logger)
		extra = append(extra, limiter.Handler)
		logger.WithField("per_minute", cfg.Server.RateLimitPerMinute).Info("Rate limiting enabled")
	}

	handler := server.Handler(extra...)
	if otelProviders != nil {
		handler = otelhttp.NewHandler(handler, "registry-api")
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthServer := startHealthServer(cfg.Server, db, redisClient, metrics, logger)

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	// Shutdown order matters: the scheduler stop runs the final flush, so
	// it must complete before the database handle closes.
	shutdown.RegisterShutdownFunc(scheduler.Stop)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc(otelProviders.Shutdown)
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			return redisClient.Close()
		})
	}
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return db.Close()
	})

	go func() {
		logger.Infof("API server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("API server failed")
			os.Exit(1)
		}
	}()

	return shutdown.WaitForShutdown()
}

// openDatabase opens the SQL backend named by the storage config
func openDatabase(ctx context.Context, cfg config.StorageConfig) (*sql.DB, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "postgres":
		db, err = sql.Open("postgres", cfg.PostgresURL)
		if err == nil {
			db.SetMaxOpenConns(cfg.PostgresMaxConns)
			db.SetMaxIdleConns(cfg.PostgresMinConns)
			db.SetConnMaxIdleTime(5 * time.Minute)
		}
	case "sqlite":
		db, err = sql.Open("sqlite3", cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PostgresTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// openRedis connects to Redis when configured. Redis is optional; the
// registry runs without the L2 cache and rate limiting when unset.
func openRedis(ctx context.Context, cfg config.StorageConfig, logger *observability.Logger) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB != 0 {
		opts.DB = cfg.RedisDB
	}
	if cfg.RedisPoolSize > 0 {
		opts.PoolSize = cfg.RedisPoolSize
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info("Redis connected")
	return client, nil
}

// buildResolver picks the download URL strategy: CDN when a base URL is
// configured, presigned object storage URLs otherwise
func buildResolver(ctx context.Context, cfg config.StorageConfig) (registry.LocationResolver, error) {
	if cfg.CDNBaseURL != "" {
		return registry.NewCDNResolver(cfg.CDNBaseURL), nil
	}

	resolver, err := registry.NewS3Resolver(ctx, registry.S3ResolverConfig{
		Endpoint:     cfg.S3Endpoint,
		Region:       cfg.S3Region,
		Bucket:       cfg.S3Bucket,
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
		UsePathStyle: cfg.S3UsePathStyle,
		URLTTL:       cfg.DownloadURLTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 resolver: %w", err)
	}
	return resolver, nil
}

// startHealthServer serves liveness, readiness, and metrics on a separate
// port so probes and scrapes stay off the API listener
func startHealthServer(cfg config.ServerConfig, db *sql.DB, redisClient *redis.Client, metrics *observability.Metrics, logger *observability.Logger) *http.Server {
	checker := observability.NewHealthChecker(db, redisClient)

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", checker.Liveness)
	healthMux.HandleFunc("/readyz", checker.Readiness)
	if metrics != nil {
		healthMux.Handle("/metrics", metrics.Handler())
	}

	healthServer := &http.Server{
		Addr:    cfg.Host + ":" + cfg.HealthPort,
		Handler: healthMux,
	}

	go func() {
		logger.Infof("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	return healthServer
}

// configureLogrus aligns the logrus-based components (catalog, health)
// with the configured level and JSON output
func configureLogrus(level observability.LogLevel) {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	switch level {
	case observability.DebugLevel:
		logrus.SetLevel(logrus.DebugLevel)
	case observability.WarnLevel:
		logrus.SetLevel(logrus.WarnLevel)
	case observability.ErrorLevel:
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}
