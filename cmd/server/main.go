package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	appbilling "github.com/meterpay/backend/internal/application/billing"
	"github.com/meterpay/backend/internal/infrastructure/auth"
	infrabilling "github.com/meterpay/backend/internal/infrastructure/billing"
	"github.com/meterpay/backend/internal/infrastructure/cache"
	"github.com/meterpay/backend/internal/infrastructure/config"
	"github.com/meterpay/backend/internal/infrastructure/event"
	"github.com/meterpay/backend/internal/infrastructure/logger"
	"github.com/meterpay/backend/internal/infrastructure/migration"
	"github.com/meterpay/backend/internal/infrastructure/persistence"
	"github.com/meterpay/backend/internal/infrastructure/telemetry"
	"github.com/meterpay/backend/internal/interfaces/http/handler"
	"github.com/meterpay/backend/internal/interfaces/http/middleware"
	"github.com/meterpay/backend/internal/interfaces/http/router"
	"github.com/meterpay/backend/migrations"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

const rateLimitKeyPrefix = "billing:ratelimit:"

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	migrate := flag.Bool("migrate", false, "Apply pending database migrations before serving")
	flag.Parse()

	if err := run(*migrate); err != nil {
		fmt.Fprintf(os.Stderr, "meterpay: %v\n", err)
		os.Exit(1)
	}
}

func run(migrate bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}

	// Logs first so every later component logs through the bridge.
	logCfg := telCfg
	logCfg.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled
	logProvider, err := telemetry.NewLoggerProvider(ctx, logCfg, log)
	if err != nil {
		return fmt.Errorf("initialize log exporter: %w", err)
	}
	log = logProvider.Bridge(log, cfg.Telemetry.ServiceName, zapcore.InfoLevel)

	log.Info("Starting meterpay billing service",
		zap.String("env", cfg.App.Env),
		zap.String("version", version),
		zap.String("port", cfg.App.Port),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telCfg, log)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telCfg, cfg.Telemetry.MetricsInterval, log)
	if err != nil {
		return fmt.Errorf("initialize meter: %w", err)
	}
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.ProfilingServer,
		ApplicationName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		return fmt.Errorf("initialize profiler: %w", err)
	}
	if cfg.Telemetry.ProfilingEnabled {
		tracerProvider.EnableSpanProfiles()
	}

	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithLogger(
		logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
			logger.WithSlowThreshold(cfg.Database.SlowQueryThreshold),
			logger.WithParams(cfg.Database.LogSQLParams),
		),
	))
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close database", zap.Error(err))
		}
	}()
	if err := telemetry.RegisterGormTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:    cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL: cfg.Telemetry.DBLogFullSQL,
	}, log); err != nil {
		return fmt.Errorf("register database tracing: %w", err)
	}
	log.Info("Database connected", zap.String("host", cfg.Database.Host), zap.String("database", cfg.Database.DBName))

	if migrate {
		if err := applyMigrations(db, log); err != nil {
			return err
		}
	}

	tiers, err := cfg.Billing.TierTable()
	if err != nil {
		return fmt.Errorf("build tier table: %w", err)
	}

	gateway, err := infrabilling.NewStripeGateway(&infrabilling.StripeConfig{
		SecretKey:                cfg.Stripe.SecretKey,
		PublishableKey:           cfg.Stripe.PublishableKey,
		WebhookSecret:            cfg.Stripe.WebhookSecret,
		WebhookTolerance:         cfg.Stripe.WebhookTolerance,
		IgnoreAPIVersionMismatch: cfg.Stripe.IgnoreAPIVersionMismatch,
		RequireLive:              cfg.App.IsProduction(),
		AppVersion:               version,
	}, log)
	if err != nil {
		return fmt.Errorf("initialize stripe gateway: %w", err)
	}

	deliveries, err := cache.NewDeliveryStore(ctx, cfg.Redis, log)
	if err != nil {
		return err
	}
	defer func() { _ = deliveries.Close() }()

	checks := map[string]handler.HealthCheck{
		"database": db.Ping,
	}

	var limiter middleware.Limiter
	if rs, ok := deliveries.(*cache.RedisDeliveryStore); ok {
		client := rs.Client()
		limiter = middleware.NewRedisLimiter(client, rateLimitKeyPrefix, cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	} else {
		mem := middleware.NewMemoryLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		defer mem.Stop()
		limiter = mem
	}

	payments := persistence.NewGormPaymentRepository(db.DB)
	usage := persistence.NewUsageRecordRepository(db.DB)
	credits := persistence.NewCreditBalanceRepository(db.DB)

	bus := event.NewInMemoryEventBus(log)
	bus.Subscribe(appbilling.NewCreditGrantHandler(credits, log))
	bus.Subscribe(event.NewLoggingHandler(log))
	if err := bus.Start(ctx); err != nil {
		return fmt.Errorf("start event bus: %w", err)
	}

	recorder, err := telemetry.NewBillingMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("register billing metrics: %w", err)
	}
	if err := db.RegisterPoolMetrics(meterProvider.Meter(telemetry.TracerName)); err != nil {
		return fmt.Errorf("register pool metrics: %w", err)
	}

	checkout := appbilling.NewCheckoutService(appbilling.CheckoutServiceConfig{
		Tiers:              tiers,
		Usage:              usage,
		Ledger:             payments,
		Gateway:            gateway,
		SuccessURL:         cfg.Billing.SuccessURL,
		CancelURL:          cfg.Billing.CancelURL,
		LedgerWriteTimeout: cfg.Billing.LedgerWriteTimeout,
		Recorder:           recorder,
		Logger:             log,
	})
	reconciler := appbilling.NewWebhookReconciler(appbilling.WebhookReconcilerConfig{
		Gateway:     gateway,
		Ledger:      payments,
		Notifier:    appbilling.NewEventBusEntitlementNotifier(bus),
		Publisher:   bus,
		Deliveries:  deliveries,
		DeliveryTTL: cfg.Webhook.DeliveryTTL,
		Recorder:    recorder,
		Logger:      log,
	})
	queries := appbilling.NewQueryService(appbilling.QueryServiceConfig{
		Tiers:      tiers,
		Usage:      usage,
		Ledger:     payments,
		Credits:    credits,
		StaleAfter: cfg.Billing.StalePendingAfter,
		Logger:     log,
	})

	httpMetrics, err := middleware.HTTPMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}
	var rateLimit gin.HandlerFunc
	if cfg.HTTP.RateLimitEnabled {
		rateLimit = middleware.RateLimit(limiter, log)
	}

	corsCfg := middleware.DefaultCORSConfig()
	if len(cfg.HTTP.CORSAllowOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	}

	engine, err := router.New(router.Config{
		Logger:         log,
		ServiceName:    cfg.Telemetry.ServiceName,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		CORS:           corsCfg,
		HSTS:           cfg.App.IsProduction(),
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		WebhookMaxBody: cfg.HTTP.WebhookMaxBody,
		Auth:           middleware.JWTAuth(auth.NewJWTService(cfg.JWT), log),
		Metrics:        httpMetrics,
		RateLimit:      rateLimit,
		Tracing:        cfg.Telemetry.Enabled,
		Profiling:      cfg.Telemetry.ProfilingEnabled,
		Billing:        handler.NewBillingHandler(checkout, queries),
		Webhook:        handler.NewStripeWebhookHandler(reconciler, cfg.HTTP.WebhookMaxBody),
		Health:         handler.NewHealthHandler(checks),
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	serveErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	shutdownErr := shutdownAll(shutdownCtx, log,
		namedShutdown{"event bus", bus.Stop},
		namedShutdown{"profiler", func(context.Context) error { return profiler.Stop() }},
		namedShutdown{"meter provider", meterProvider.Shutdown},
		namedShutdown{"tracer provider", tracerProvider.Shutdown},
		namedShutdown{"log provider", logProvider.Shutdown},
	)

	if serveErr != nil {
		return serveErr
	}
	log.Info("Server exited")
	return shutdownErr
}

func applyMigrations(db *persistence.Database, log *zap.Logger) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("get database handle: %w", err)
	}
	m, err := migration.New(sqlDB, migrations.FS, log)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	// Closing the migrator would close the shared *sql.DB.
	if err := m.Up(); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

type namedShutdown struct {
	name string
	fn   func(context.Context) error
}

// shutdownAll runs every step in order. Providers flush last so the steps
// before them still export their telemetry.
func shutdownAll(ctx context.Context, log *zap.Logger, steps ...namedShutdown) error {
	var errs []error
	for _, s := range steps {
		start := time.Now()
		if err := s.fn(ctx); err != nil {
			log.Error("Shutdown step failed", zap.String("component", s.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		log.Debug("Shutdown step done", zap.String("component", s.name), zap.Duration("elapsed", time.Since(start)))
	}
	return errors.Join(errs...)
}
