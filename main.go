package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"challenge-media/internal/codec"
	"challenge-media/internal/database"
	"challenge-media/internal/events"
	"challenge-media/internal/handlers"
	"challenge-media/internal/ingest"
	"challenge-media/internal/logging"
	"challenge-media/internal/memory"
	"challenge-media/internal/metrics"
	"challenge-media/internal/middleware"
	"challenge-media/internal/resolver"
	"challenge-media/internal/startup"
	"challenge-media/internal/storage"
	"challenge-media/internal/tracing"
	"challenge-media/internal/upload"
	"challenge-media/internal/variants"
	"challenge-media/internal/workers"
)

// app holds every long-lived component so they can be stopped in order.
type app struct {
	db        *database.Database
	governor  *memory.Governor
	publisher events.Publisher
	uploads   *upload.Manager
	collector *metrics.Collector
	handler   http.Handler
}

func main() {
	startTime := time.Now()

	// Before any large allocation
	memory.ConfigureFromEnv()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	buildInfo := startup.GetBuildInfo()
	metrics.SetAppInfo(buildInfo.Version, buildInfo.Commit, buildInfo.GoVersion)
	metrics.InitializeMetrics()

	ctx := context.Background()
	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Enabled:     config.TracingEnabled,
		ServiceName: "challenge-media",
		Version:     buildInfo.Version,
	})
	if err != nil {
		startup.LogFatal("Failed to initialize tracing: %v", err)
	}

	codec.InitVips(codec.VipsConfig{
		Concurrency:  runtime.NumCPU(),
		MaxCacheMem:  int(config.CodecCacheMemory / 4),
		MaxCacheSize: 100,
	})

	a, err := newApp(ctx, config)
	if err != nil {
		startup.LogFatal("%v", err)
	}

	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      a.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsSrv = newMetricsServer(config.MetricsPort)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	a.uploads.Start()
	a.governor.Start()
	a.collector.Start()

	done := make(chan struct{})
	go handleShutdown(srv, metricsSrv, a, shutdownTracing, done)

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}

	<-done
}

// newApp builds and wires every component. Nothing is started.
func newApp(ctx context.Context, config *startup.Config) (*app, error) {
	concurrency := config.CodecConcurrency
	if concurrency <= 0 {
		concurrency = workers.ForCodec(2)
	}
	adapter := codec.NewAdapter(codec.Config{
		MaxConcurrency: concurrency,
		MaxQueued:      codec.DefaultConfig().MaxQueued,
		CacheBytes:     config.CodecCacheMemory,
	}, nil)
	startup.LogCodecInit(codec.IsVipsAvailable(), concurrency, config.CodecCacheMemory)

	memConfig := memory.DefaultConfig()
	memConfig.CheckInterval = config.MemoryCheckInterval
	governor := memory.NewGovernor(memConfig, adapter)
	adapter.SetLoadSignal(governor)

	dbStart := time.Now()
	db, err := database.New(ctx, config.DatabaseDriver, config.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	startup.LogDatabaseInit(config.DatabaseDriver, time.Since(dbStart))

	retry := storage.RetryConfig{
		MaxRetries:     config.RetryAttempts,
		InitialBackoff: config.RetryDelay,
		MaxBackoff:     storage.DefaultRetryConfig().MaxBackoff * 10,
	}
	store, err := newStore(ctx, config, retry)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	publisher, err := newPublisher(config)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize events: %w", err)
	}

	generator := variants.NewGenerator(adapter, store, generatorConfig(config))
	svc := ingest.NewService(adapter, generator, store, db, publisher, ingest.Config{
		MaxFileSize:     config.MaxFileSize,
		BulkDeleteDelay: config.BulkDeleteDelay,
	})

	staging, err := newStaging(config)
	if err != nil {
		publisher.Close()
		db.Close()
		return nil, fmt.Errorf("failed to initialize staging: %w", err)
	}
	uploads := upload.NewManager(upload.Config{
		MaxFileSize:          config.MaxFileSize,
		ChunkSize:            config.ChunkSize,
		MaxChunks:            config.MaxChunks,
		ChunkTimeout:         config.UploadTimeout,
		RetryAttempts:        config.RetryAttempts,
		RetryDelay:           config.RetryDelay,
		ProgressiveThreshold: config.ProgressiveThreshold,
		SessionTimeout:       config.SessionTimeout,
		Retriable:            ingest.IsRetriable,
	}, staging, svc)

	res := resolver.New(db, store, resolver.DefaultConfig())
	h := handlers.New(db, svc, uploads, res, governor, handlers.DefaultConfig())

	router := mux.NewRouter()
	router.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	h.RegisterRoutes(router, mux.MiddlewareFunc(middleware.AdminAuth(middleware.AdminAuthConfig{
		Username:     config.AdminUsername,
		PasswordHash: config.AdminPasswordHash,
		Realm:        "challenge-media admin",
	})))
	startup.LogHTTPRoutes(router, config.LogHealthChecks, config.LogImageHits)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	loggingConfig.LogImageHits = config.LogImageHits

	return &app{
		db:        db,
		governor:  governor,
		publisher: publisher,
		uploads:   uploads,
		collector: metrics.NewCollector(db, time.Minute),
		handler:   middleware.Logger(loggingConfig)(router),
	}, nil
}

// generatorConfig applies the configured upload ceilings to the variant
// generator, so nothing accepted by the upload path is refused at completion.
func generatorConfig(config *startup.Config) variants.Config {
	genConfig := variants.DefaultConfig()
	genConfig.MaxBytes = config.MaxFileSize
	genConfig.MaxDimension = config.MaxImageDimension
	genConfig.MaxPixels = config.MaxImagePixels
	return genConfig
}

func newStore(ctx context.Context, config *startup.Config, retry storage.RetryConfig) (storage.Store, error) {
	switch config.StorageBackend {
	case startup.StorageS3:
		s3 := config.S3
		return storage.NewS3Store(ctx, storage.S3Config{
			Bucket:          s3.Bucket,
			Prefix:          s3.Prefix,
			Region:          s3.Region,
			Endpoint:        s3.Endpoint,
			AccessKeyID:     s3.AccessKeyID,
			SecretAccessKey: s3.SecretAccessKey,
			UsePathStyle:    s3.UsePathStyle,
		}, retry)
	case startup.StorageMemory:
		logging.Warn("Using in-memory storage: images are lost on restart")
		return storage.NewMemoryStore(), nil
	case startup.StorageLocal, "":
		return storage.NewLocalStore(config.StorageDir, retry)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", config.StorageBackend)
	}
}

// newStaging returns the chunk staging store. Staging writes are retried by
// the upload manager, so the store itself does not retry.
func newStaging(config *startup.Config) (storage.Store, error) {
	if !config.StagingOnDisk {
		return storage.NewMemoryStore(), nil
	}
	return storage.NewLocalStore(config.StagingDir, storage.RetryConfig{MaxRetries: 0})
}

func newPublisher(config *startup.Config) (events.Publisher, error) {
	if len(config.KafkaBrokers) == 0 {
		return events.NopPublisher{}, nil
	}
	return events.NewKafkaPublisher(events.KafkaConfig{
		Brokers:      config.KafkaBrokers,
		Topic:        config.KafkaTopic,
		WriteTimeout: 10 * time.Second,
	})
}

func newMetricsServer(port string) *http.Server {
	serveMux := http.NewServeMux()
	serveMux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:         ":" + port,
		Handler:      serveMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

func handleShutdown(srv, metricsSrv *http.Server, a *app, shutdownTracing func(context.Context) error, done chan<- struct{}) {
	defer close(done)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownStep("Stopping background workers")
	a.uploads.Stop()
	a.governor.Stop()
	a.collector.Stop()
	startup.LogShutdownStepComplete("Background workers stopped")

	a.close(ctx, shutdownTracing)

	startup.LogShutdownComplete()
	_ = logging.Sync()
}

// close releases the publisher, tracing, database and libvips.
func (a *app) close(ctx context.Context, shutdownTracing func(context.Context) error) {
	startup.LogShutdownStep("Closing event publisher")
	if err := a.publisher.Close(); err != nil {
		logging.Warn("Event publisher close error: %v", err)
	}

	if shutdownTracing != nil {
		if err := shutdownTracing(ctx); err != nil {
			logging.Warn("Tracing shutdown error: %v", err)
		}
	}

	startup.LogShutdownStep("Closing database")
	if err := a.db.Close(); err != nil {
		logging.Warn("Database close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Database closed")
	}

	codec.ShutdownVips()
}
