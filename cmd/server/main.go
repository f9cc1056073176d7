package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	accountingapp "github.com/finplat/backend/internal/application/accounting"
	"github.com/finplat/backend/internal/infrastructure/config"
	"github.com/finplat/backend/internal/infrastructure/connectors"
	"github.com/finplat/backend/internal/infrastructure/event"
	"github.com/finplat/backend/internal/infrastructure/logger"
	"github.com/finplat/backend/internal/infrastructure/persistence"
	"github.com/finplat/backend/internal/infrastructure/queue"
	"github.com/finplat/backend/internal/infrastructure/resilience"
	"github.com/finplat/backend/internal/infrastructure/scheduler"
	"github.com/finplat/backend/internal/infrastructure/secrets"
	"github.com/finplat/backend/internal/infrastructure/storage"
	"github.com/finplat/backend/internal/infrastructure/telemetry"
	"github.com/finplat/backend/internal/interfaces/http/handler"
	"github.com/finplat/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting accounting hub",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Database with the zap-backed GORM logger
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Telemetry
	meterProvider, err := telemetry.NewMeterProvider(cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	tracerProvider, err := telemetry.NewTracerProvider(cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	syncMetrics, err := telemetry.NewSyncMetrics()
	if err != nil {
		log.Fatal("Failed to register sync metrics", zap.Error(err))
	}

	// Repositories
	configRepo := persistence.NewGormAccountingConfigRepository(db.DB)
	syncLogRepo := persistence.NewGormSyncLogRepository(db.DB)
	syncErrorRepo := persistence.NewGormSyncErrorRepository(db.DB)

	// Credential encryption. config.Load guarantees the master key is set.
	credentials, err := secrets.NewCredentialManager(cfg.Accounting.MasterKey)
	if err != nil {
		log.Fatal("Failed to initialize credential manager", zap.Error(err))
	}

	// Job queue
	var jobQueue queue.JobQueue
	switch cfg.Queue.Backend {
	case "redis":
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		jobQueue = queue.NewRedisJobQueue(redisClient, cfg.Queue.KeyPrefix, log)
		log.Info("Redis job queue initialized", zap.String("addr", cfg.Redis.Addr()))
	default:
		jobQueue = queue.NewMemoryJobQueue()
		log.Warn("Using in-memory job queue, jobs will not survive restarts")
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			log.Error("Error closing job queue", zap.Error(err))
		}
	}()

	// Connector pool over the default registry
	registry := connectors.NewDefaultRegistry()
	pool := connectors.NewPool(registry, connectors.PoolOptions{
		MaxSize:        cfg.Accounting.PoolMaxSize,
		MinSize:        cfg.Accounting.PoolMinSize,
		AcquireTimeout: cfg.Accounting.PoolAcquireTimeout,
		IdleTimeout:    cfg.Accounting.PoolIdleTimeout,
		HealthInterval: cfg.Accounting.PoolHealthInterval,
	}, log)

	// Domain events
	eventBus := event.NewInMemoryEventBus(log)

	// Audit archive target
	var archiveStore accountingapp.ArchiveStore
	if cfg.Retention.ArchiveToS3 {
		s3Store, err := storage.NewS3ArchiveStore(&cfg.Storage)
		if err != nil {
			log.Fatal("Failed to initialize archive storage", zap.Error(err))
		}
		if err := s3Store.EnsureBucket(context.Background()); err != nil {
			log.Fatal("Failed to ensure archive bucket", zap.Error(err))
		}
		archiveStore = s3Store
		log.Info("Audit archive storage initialized", zap.String("bucket", s3Store.GetBucket()))
	}

	// Application services
	auditService := accountingapp.NewAuditService(syncLogRepo, archiveStore, log)
	errorService := accountingapp.NewErrorService(syncErrorRepo, eventBus, log)
	configService := accountingapp.NewConfigService(configRepo, credentials, auditService, eventBus, log)
	orchestrator := accountingapp.NewOrchestrator(accountingapp.OrchestratorDeps{
		ConfigRepo:  configRepo,
		LogRepo:     syncLogRepo,
		Errors:      errorService,
		Audit:       auditService,
		Credentials: credentials,
		Registry:    registry,
		Pool:        pool,
		Executor:    resilience.NewExecutor(log),
		RetryOpts: resilience.Options{
			MaxAttempts:  cfg.Accounting.RetryMaxAttempts,
			InitialDelay: cfg.Accounting.RetryInitialDelay,
			MaxDelay:     cfg.Accounting.RetryMaxDelay,
			Multiplier:   cfg.Accounting.RetryMultiplier,
			JitterFactor: cfg.Accounting.RetryJitterFactor,
		},
		EventBus: eventBus,
		Jobs:     jobQueue,
		Metrics:  syncMetrics,
		Logger:   log,
	})
	retentionService := accountingapp.NewRetentionService(cfg.Retention, auditService, syncErrorRepo, jobQueue, log)

	// Background workers
	rootCtx := context.Background()

	jobHandler := accountingapp.NewSyncJobHandler(orchestrator, retentionService, log)
	workerPool := queue.NewWorkerPool(queue.WorkerPoolConfig{
		Workers:        cfg.Queue.Workers,
		PollInterval:   cfg.Queue.PollInterval,
		JobTimeout:     cfg.Queue.JobTimeout,
		RetryBaseDelay: cfg.Queue.RetryBaseDelay,
		RetryMaxDelay:  cfg.Queue.RetryMaxDelay,
	}, jobQueue, jobHandler, log)
	if err := workerPool.Start(rootCtx); err != nil {
		log.Fatal("Failed to start worker pool", zap.Error(err))
	}

	syncScheduler := scheduler.NewSyncScheduler(scheduler.DefaultConfig(), configRepo, configRepo, orchestrator, log)
	if err := syncScheduler.Start(rootCtx); err != nil {
		log.Fatal("Failed to start sync scheduler", zap.Error(err))
	}

	retentionService.Start(rootCtx)

	// HTTP surface
	engine := router.NewEngine(log)
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Failed to set trusted proxies", zap.Error(err))
		}
	}
	engine.GET("/readyz", healthHandler(db))

	accountingHandler := handler.NewAccountingHandler(
		configService, orchestrator, errorService, auditService, pool, jobQueue, log)
	router.NewRouter(engine).
		Register(accountingHandler).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	if err := syncScheduler.Stop(ctx); err != nil {
		log.Error("Sync scheduler shutdown error", zap.Error(err))
	}
	retentionService.Stop()
	if err := workerPool.Stop(ctx); err != nil {
		log.Error("Worker pool shutdown error", zap.Error(err))
	}
	pool.Shutdown()

	if err := meterProvider.Shutdown(ctx); err != nil {
		log.Error("Meter provider shutdown error", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(ctx); err != nil {
		log.Error("Tracer provider shutdown error", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler reports readiness, including database connectivity.
func healthHandler(db *persistence.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
