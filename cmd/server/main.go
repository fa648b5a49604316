package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appmarketplace "github.com/bricksync/backend/internal/application/marketplace"
	"github.com/bricksync/backend/internal/domain/marketplace"
	"github.com/bricksync/backend/internal/infrastructure/config"
	"github.com/bricksync/backend/internal/infrastructure/logger"
	"github.com/bricksync/backend/internal/infrastructure/marketapi"
	"github.com/bricksync/backend/internal/infrastructure/persistence"
	"github.com/bricksync/backend/internal/infrastructure/persistence/models"
	"github.com/bricksync/backend/internal/infrastructure/scheduler"
	"github.com/bricksync/backend/internal/infrastructure/telemetry"
	"github.com/bricksync/backend/internal/interfaces/http/handler"
	"github.com/bricksync/backend/internal/interfaces/http/middleware"
	"github.com/bricksync/backend/internal/interfaces/http/router"
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

	log.Info("Starting BrickSync Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := db.DB.AutoMigrate(&models.SyncJournalEntryModel{}); err != nil {
		log.Fatal("Failed to migrate database schema", zap.Error(err))
	}
	log.Info("Database connected successfully")

	// Shared engine state: quota windows, breaker state and processed-item
	// marks go to Redis when it is reachable, otherwise to in-process stores.
	var stateStore marketplace.StateStore
	var idempotencyStore marketplace.IdempotencyStore

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	redisErr := redisClient.Ping(pingCtx).Err()
	cancelPing()
	if redisErr != nil {
		log.Warn("Redis unavailable, falling back to in-memory engine state; "+
			"quota and breaker state will not be shared across instances",
			zap.Error(redisErr))
		_ = redisClient.Close()
		stateStore = marketapi.NewMemoryStateStore()
		idempotencyStore = marketapi.NewMemoryIdempotencyStore()
	} else {
		stateStore = marketapi.NewRedisStateStore(redisClient, "bricksync")
		idempotencyStore = marketapi.NewRedisIdempotencyStore(redisClient, "bricksync")
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("Error closing redis client", zap.Error(err))
			}
		}()
		log.Info("Redis connected", zap.String("addr", cfg.Redis.RedisAddr()))
	}
	defer func() {
		if err := idempotencyStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	// Metrics
	meterProvider, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.ExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	marketMetrics, err := telemetry.NewMarketplaceMetrics(meterProvider.Meter("marketplace"))
	if err != nil {
		log.Fatal("Failed to create marketplace metrics", zap.Error(err))
	}

	// Request engine
	quotaDefaults := map[string]marketplace.QuotaDefaults{
		marketplace.ProviderBrickLink:   providerQuota(cfg.Marketplace.BrickLink),
		marketplace.ProviderBrickOwl:    providerQuota(cfg.Marketplace.BrickOwl),
		marketplace.ProviderRebrickable: providerQuota(cfg.Marketplace.Rebrickable),
	}
	quota := marketapi.NewQuotaTracker(stateStore, quotaDefaults, marketMetrics, log)
	breaker := marketapi.NewCircuitBreaker(stateStore,
		cfg.Marketplace.Breaker.Threshold, cfg.Marketplace.Breaker.Cooldown, marketMetrics, log)

	credentials := marketapi.NewStaticCredentialProvider(map[string]marketplace.Credentials{
		marketplace.ProviderBrickLink: {
			ConsumerKey:    cfg.Marketplace.BrickLink.ConsumerKey,
			ConsumerSecret: cfg.Marketplace.BrickLink.ConsumerSecret,
			TokenValue:     cfg.Marketplace.BrickLink.TokenValue,
			TokenSecret:    cfg.Marketplace.BrickLink.TokenSecret,
		},
		marketplace.ProviderBrickOwl:    {APIKey: cfg.Marketplace.BrickOwl.APIKey},
		marketplace.ProviderRebrickable: {APIKey: cfg.Marketplace.Rebrickable.APIKey},
	})

	executor := marketapi.NewRequestExecutor(marketapi.ExecutorConfig{
		Quota:       quota,
		Breaker:     breaker,
		Credentials: credentials,
		Metrics:     marketMetrics,
		Logger:      log,
		Retry: marketapi.RetryPolicy{
			Attempts:    cfg.Marketplace.Retry.Attempts,
			BaseDelay:   cfg.Marketplace.Retry.BaseDelay,
			MaxDelay:    cfg.Marketplace.Retry.MaxDelay,
			Multiplier:  cfg.Marketplace.Retry.Multiplier,
			JitterRatio: cfg.Marketplace.Retry.JitterRatio,
		},
		AttemptTimeout: cfg.Marketplace.AttemptTimeout,
		CacheTTL:       cfg.Marketplace.CacheTTL,
	})

	bricklink := marketapi.NewBrickLinkAdapter(executor, cfg.Marketplace.BrickLink.BaseURL)
	brickowl := marketapi.NewBrickOwlAdapter(executor, cfg.Marketplace.BrickOwl.BaseURL)
	rebrickable := marketapi.NewRebrickableAdapter(executor, cfg.Marketplace.Rebrickable.BaseURL)
	coordinator := marketapi.NewBulkBatchCoordinator(idempotencyStore, log)

	journal := persistence.NewGormSyncJournal(db.DB)
	syncService := appmarketplace.NewSyncService(bricklink, brickowl, rebrickable, coordinator, journal, log,
		appmarketplace.SyncConfig{
			BrickLinkChunkSize:  cfg.Marketplace.BrickLink.ChunkSize,
			BrickOwlChunkSize:   cfg.Marketplace.BrickOwl.ChunkSize,
			DelayBetweenBatches: cfg.Marketplace.DelayBetweenBatches,
		})

	// Background order polling
	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	if cfg.Marketplace.Poller.Enabled {
		subs, err := parseSubscriptions(cfg.Marketplace.Poller.Accounts)
		if err != nil {
			log.Fatal("Invalid poller accounts", zap.Error(err))
		}

		pollScheduler := scheduler.NewScheduler(scheduler.DefaultSchedulerConfig(),
			scheduler.NewOrderPollExecutor(syncService, scheduler.LoggingOrderHandler(log), log), log)
		if err := pollScheduler.Start(rootCtx); err != nil {
			log.Fatal("Failed to start order poll scheduler", zap.Error(err))
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := pollScheduler.Stop(stopCtx); err != nil {
				log.Error("Error stopping order poll scheduler", zap.Error(err))
			}
		}()

		poller := scheduler.NewOrderPoller(pollScheduler, subs, scheduler.PollerConfig{
			Interval: cfg.Marketplace.Poller.Interval,
			Lookback: cfg.Marketplace.Poller.Lookback,
		}, log)
		go func() {
			if err := poller.Run(rootCtx); err != nil && err != context.Canceled {
				log.Error("Order poller stopped", zap.Error(err))
			}
		}()
		log.Info("Order poller started",
			zap.Int("subscriptions", len(subs)),
			zap.Duration("interval", cfg.Marketplace.Poller.Interval),
		)
	}

	// HTTP surface
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORS())
	engine.Use(middleware.BodyLimit(4 << 20)) // bulk pushes carry up to 100 lots per batch
	engine.Use(middleware.RateLimit(middleware.NewRateLimiter(300, time.Minute)))
	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: meterProvider,
		ServiceName:   cfg.Telemetry.ServiceName,
		Enabled:       cfg.Telemetry.Enabled,
	}))

	systemHandler := handler.NewSystemHandler(db)

	// Root-level health check for load balancers, outside API versioning
	engine.GET("/health", systemHandler.Health)

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(systemHandler).
		Register(handler.NewSyncHandler(syncService)).
		Register(handler.NewJournalHandler(journal))
	r.Setup()

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
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

	cancelRoot()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

func providerQuota(p config.ProviderConfig) marketplace.QuotaDefaults {
	return marketplace.QuotaDefaults{
		Capacity:       p.QuotaCapacity,
		Window:         p.QuotaWindow,
		AlertThreshold: p.QuotaAlertThreshold,
	}
}

// parseSubscriptions parses "provider:account-uuid" pairs.
func parseSubscriptions(accounts []string) ([]scheduler.Subscription, error) {
	subs := make([]scheduler.Subscription, 0, len(accounts))
	for _, raw := range accounts {
		provider, id, ok := strings.Cut(raw, ":")
		if !ok {
			return nil, fmt.Errorf("poller account %q must be provider:account-uuid", raw)
		}
		accountID, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("poller account %q has an invalid account id: %w", raw, err)
		}
		subs = append(subs, scheduler.Subscription{AccountID: accountID, Provider: provider})
	}
	return subs, nil
}
