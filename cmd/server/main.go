package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appevent "github.com/erp/returns/internal/application/event"
	appreturns "github.com/erp/returns/internal/application/returns"
	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/domain/shared"
	"github.com/erp/returns/internal/infrastructure/auth"
	"github.com/erp/returns/internal/infrastructure/cache"
	"github.com/erp/returns/internal/infrastructure/config"
	"github.com/erp/returns/internal/infrastructure/courier"
	"github.com/erp/returns/internal/infrastructure/event"
	"github.com/erp/returns/internal/infrastructure/logger"
	"github.com/erp/returns/internal/infrastructure/persistence"
	"github.com/erp/returns/internal/infrastructure/persistence/models"
	"github.com/erp/returns/internal/infrastructure/scheduler"
	"github.com/erp/returns/internal/infrastructure/settlement"
	"github.com/erp/returns/internal/infrastructure/storage"
	"github.com/erp/returns/internal/infrastructure/telemetry"
	"github.com/erp/returns/internal/interfaces/http/handler"
	"github.com/erp/returns/internal/interfaces/http/middleware"
	"github.com/erp/returns/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// version is stamped at build time with -ldflags "-X main.version=..."
var version = "dev"

const trackingPollJob = "courier_tracking_poll"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	baseLog, syncLog, err := logger.New(cfg.Log)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer syncLog()

	// Telemetry comes first so every later component logs through the bridge
	ctx := context.Background()
	providers, err := telemetry.Setup(ctx, cfg.Telemetry, baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	log := providers.BridgeLogger(baseLog)

	log.Info("Starting returns service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	clock := shared.SystemClock{}
	metrics := telemetry.NewMetrics()

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Database.LogLevel),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
		logger.WithExpectedErrors(persistence.IsUniqueViolation))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := telemetry.RegisterGormTracing(db.DB, cfg.Telemetry, cfg.Database.DBName, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	// Postgres schemas are owned by cmd/migrate; the embedded sqlite store is
	// created in place for local runs.
	if cfg.Database.Driver == "sqlite" {
		if err := db.DB.AutoMigrate(&models.ReturnRequestModel{}, &models.OutboxEntryModel{}); err != nil {
			log.Fatal("Failed to create sqlite schema", zap.Error(err))
		}
	}
	metrics.WatchDatabase(db.SQL(), cfg.Database.DBName)
	log.Info("Database connected successfully")

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer closeQuietly(log, "redis client", redisClient)
	}

	// Idempotency store shared by the outbox handlers and the settlement notifier
	idempotencyStore, err := cache.NewIdempotencyStoreFactory(cfg.Redis,
		cache.WithRedisClient(redisClient),
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	).CreateStore()
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	defer closeQuietly(log, "idempotency store", idempotencyStore)

	notifier, notifierCloser, err := settlement.NewDedupedNotifier(cfg.Settlement, idempotencyStore, log)
	if err != nil {
		log.Fatal("Failed to create settlement notifier", zap.Error(err))
	}
	defer closeQuietly(log, "settlement notifier", notifierCloser)

	// Outbox: events are written with the return request row and relayed to
	// the Settlement Notifier by the processor
	serializer := event.NewEventSerializer()
	event.RegisterAllEvents(serializer)
	outboxRepo := event.NewGormOutboxRepository(db.DB, clock)

	bus := event.NewInMemoryEventBus(log)
	relay := event.NewIdempotentHandler(appreturns.NewSettlementRelay(notifier, log), idempotencyStore, log,
		event.WithHandlerName("settlement_relay"),
		event.WithDedupeObserver(metrics))
	bus.Subscribe(relay, relay.EventTypes()...)
	log.Info("Outbox subscriptions ready", zap.Strings("event_types", bus.Subscriptions()))

	processorCfg := event.DefaultOutboxProcessorConfig()
	if cfg.Event.BatchSize > 0 {
		processorCfg.BatchSize = cfg.Event.BatchSize
	}
	if cfg.Event.PollInterval > 0 {
		processorCfg.PollInterval = cfg.Event.PollInterval
	}
	processorCfg.CleanupEnabled = cfg.Event.CleanupEnabled
	if cfg.Event.CleanupRetention > 0 {
		processorCfg.CleanupRetention = cfg.Event.CleanupRetention
	}
	processorCfg.ClaimTimeout = cfg.Event.ClaimTimeout
	processorCfg.Retry = shared.RetryPolicy{Base: cfg.Event.RetryBaseBackoff, Max: cfg.Event.RetryMaxBackoff}
	processor := event.NewOutboxProcessor(outboxRepo, bus, serializer, processorCfg, clock, log)
	processor.SetObserver(metrics)

	publisher := event.NewOutboxPublisher(serializer, clock,
		event.WithMaxRetries(cfg.Event.MaxRetries),
		event.WithSavedHook(processor.Notify),
	)
	returnRepo := persistence.NewGormReturnRequestRepository(db.DB, publisher)

	// Courier
	gateway, err := courier.NewGHNGateway(courier.NewGHNConfig(cfg.Courier), clock, log)
	if err != nil {
		log.Fatal("Failed to create courier gateway", zap.Error(err))
	}
	gateway.SetObserver(metrics)

	// Orchestrator
	orchestrator := appreturns.NewOrchestrator(returnRepo, gateway, nil, clock, orchestratorConfig(cfg.Returns), log)
	orchestrator.SetMetrics(metrics)
	if cfg.Storage.Enabled {
		evidence, err := storage.New(&cfg.Storage, storage.WithLogger(log), storage.WithClock(clock))
		if err != nil {
			log.Fatal("Failed to create evidence storage", zap.Error(err))
		}
		orchestrator.SetEvidenceStorage(evidence)
	}

	var deadlines *scheduler.DeadlineScheduler
	if cfg.Scheduler.Enabled {
		deadlines = scheduler.NewDeadlineScheduler(scheduler.DeadlineSchedulerConfig{
			Workers:        cfg.Scheduler.Workers,
			QueueSize:      cfg.Scheduler.QueueSize,
			SweepInterval:  cfg.Scheduler.SweepInterval,
			SweepBatchSize: cfg.Scheduler.SweepBatchSize,
			HandlerTimeout: cfg.Scheduler.FiringTimeout,
		}, orchestrator, returnRepo, clock, log)
		orchestrator.SetDeadlineScheduler(deadlines)
	}

	jobs := scheduler.NewJobRunner(clock, log)
	if cfg.Courier.PollEnabled {
		poller := appreturns.NewTrackingPoller(returnRepo, gateway, orchestrator, appreturns.TrackingPollerConfig{
			BatchSize:   cfg.Courier.PollBatchSize,
			Concurrency: cfg.Courier.PollConcurrency,
		}, log)
		if err := jobs.Register(scheduler.PeriodicJob{
			Name:     trackingPollJob,
			Interval: cfg.Courier.PollInterval,
			Run: func(ctx context.Context) error {
				err := poller.Run(ctx)
				metrics.JobRun(trackingPollJob, err)
				return err
			},
		}); err != nil {
			log.Fatal("Failed to register tracking poll", zap.Error(err))
		}
	}

	// Background workers
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	if cfg.Event.ProcessorEnabled {
		if err := processor.Start(runCtx); err != nil {
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
	}
	if deadlines != nil {
		if err := deadlines.Start(runCtx); err != nil {
			log.Fatal("Failed to start deadline scheduler", zap.Error(err))
		}
	}
	if err := jobs.Start(runCtx); err != nil {
		log.Fatal("Failed to start periodic jobs", zap.Error(err))
	}

	// HTTP
	if err := middleware.SetupValidator(); err != nil {
		log.Fatal("Failed to set up request validation", zap.Error(err))
	}
	security, err := newSecurity(cfg, redisClient, log)
	if err != nil {
		log.Fatal("Failed to set up rate limiting", zap.Error(err))
	}

	engine, err := router.NewEngine(router.EngineConfig{
		HTTP:           cfg.HTTP,
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: providers.Enabled(),
		Logger:         log,
		Observer:       metricsObserver(cfg.Metrics, metrics),
		MetricsHandler: metricsHandler(cfg.Metrics, metrics),
		MetricsPath:    cfg.Metrics.Path,
	})
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	checks := map[string]handler.HealthCheck{
		"database": db.Ping,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	routes := router.Register(engine, router.Handlers{
		Returns: handler.NewReturnRequestHandler(orchestrator),
		Courier: handler.NewCourierHandler(orchestrator, cfg.Courier.WebhookToken),
		Outbox:  handler.NewOutboxHandler(appevent.NewOutboxService(outboxRepo, clock, processor.Notify, log)),
		System:  handler.NewSystemHandler(cfg.App.Name, version, checks),
	}, security)
	for _, r := range routes {
		log.Debug("route registered", zap.String("method", r.Method), zap.String("path", r.Path), zap.String("group", r.Group))
	}
	log.Info("HTTP routes registered", zap.Int("count", len(routes)))

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := jobs.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping periodic jobs", zap.Error(err))
	}
	if deadlines != nil {
		if err := deadlines.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping deadline scheduler", zap.Error(err))
		}
	}
	if cfg.Event.ProcessorEnabled {
		if err := processor.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping outbox processor", zap.Error(err))
		}
	}
	cancelRun()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Error("Error flushing telemetry", zap.Error(err))
	}

	log.Info("Server exited")
}

func orchestratorConfig(cfg config.ReturnsConfig) appreturns.Config {
	c := appreturns.DefaultConfig()
	if cfg.SLA > 0 {
		c.Timeouts = returns.UniformTimeouts(cfg.SLA)
	}
	if cfg.ShopDecisionTimeout > 0 {
		c.Timeouts.ShopDecision = cfg.ShopDecisionTimeout
	}
	if cfg.PackagingTimeout > 0 {
		c.Timeouts.Packaging = cfg.PackagingTimeout
	}
	if cfg.PickupTimeout > 0 {
		c.Timeouts.Pickup = cfg.PickupTimeout
	}
	if cfg.TransitTimeout > 0 {
		c.Timeouts.Transit = cfg.TransitTimeout
	}
	if cfg.DispositionTimeout > 0 {
		c.Timeouts.Disposition = cfg.DispositionTimeout
	}
	if cfg.CASMaxRetries > 0 {
		c.CASMaxRetries = cfg.CASMaxRetries
	}
	c.AutoApproveShopFault = cfg.AutoApproveShopFault
	return c
}

func newSecurity(cfg *config.Config, redisClient *redis.Client, log *zap.Logger) (router.Security, error) {
	sec := router.Security{
		Validator: auth.NewJWTService(cfg.JWT),
		Logger:    log,
	}
	if !cfg.HTTP.RateLimitEnabled {
		return sec, nil
	}

	limitCfg := middleware.RateLimitConfig{
		Requests: cfg.HTTP.RateLimitRequests,
		Period:   cfg.HTTP.RateLimitPeriod,
		Logger:   log,
	}
	if cfg.HTTP.RateLimitStore == "redis" {
		if redisClient == nil {
			return sec, errors.New("redis rate limit store requires redis to be enabled")
		}
		limitCfg.Redis = redisClient
	}
	store, err := middleware.NewRateLimitStore(limitCfg)
	if err != nil {
		return sec, err
	}

	sec.WebhookLimit = middleware.RateLimit(limitCfg, store)
	apiCfg := limitCfg
	apiCfg.KeyFunc = middleware.ActorRateKey
	sec.APILimit = middleware.RateLimit(apiCfg, store)
	return sec, nil
}

func metricsObserver(cfg config.MetricsConfig, m *telemetry.Metrics) middleware.HTTPObserver {
	if !cfg.Enabled {
		return nil
	}
	return m
}

func metricsHandler(cfg config.MetricsConfig, m *telemetry.Metrics) http.Handler {
	if !cfg.Enabled {
		return nil
	}
	return m.Handler()
}

func closeQuietly(log *zap.Logger, name string, c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		log.Warn("Error closing "+name, zap.Error(err))
	}
}
