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

	appfinance "github.com/erp/settlement/internal/application/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/auth"
	"github.com/erp/settlement/internal/infrastructure/cache"
	"github.com/erp/settlement/internal/infrastructure/config"
	"github.com/erp/settlement/internal/infrastructure/event"
	"github.com/erp/settlement/internal/infrastructure/lock"
	"github.com/erp/settlement/internal/infrastructure/logger"
	"github.com/erp/settlement/internal/infrastructure/persistence"
	"github.com/erp/settlement/internal/infrastructure/telemetry"
	"github.com/erp/settlement/internal/interfaces/http/handler"
	"github.com/erp/settlement/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

//	@title			Settlement API
//	@version		1.0
//	@description	Payable document lifecycle and payment allocation engine

//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	configFile := flag.String("config", "", "config file (default: ./config.toml)")
	flag.Parse()

	cfg, err := config.LoadFile(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration: "+err.Error())
		os.Exit(1)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync(log)

	ctx := context.Background()
	providers, err := telemetry.NewProviders(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		Insecure:          cfg.Telemetry.Insecure,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		MetricsEnabled:    cfg.Telemetry.MetricsEnabled,
		LogsEnabled:       cfg.Telemetry.LogsEnabled,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Warn("Telemetry shutdown failed", zap.Error(err))
		}
	}()
	if lp := providers.LoggerProvider(); lp != nil {
		log = logger.Tee(log, telemetry.NewZapCore(cfg.Telemetry.ServiceName, lp, logger.ParseLevel(cfg.Log.Level)))
	}

	log.Info("Starting settlement service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	db, err := persistence.NewDatabase(&cfg.Database, persistence.Options{
		Logger: log,
		Tracing: telemetry.DBTracingConfig{
			Enabled:        cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
			WithVariables:  cfg.Telemetry.DBLogFullSQL,
			SlowQueryThres: cfg.Telemetry.DBSlowQueryThresh,
		},
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected", zap.String("driver", db.Driver()))

	idemCache, redisClient, err := cache.NewIdempotencyCacheFactory(cfg.Redis, cache.WithLogger(log)).CreateCache()
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	bus := event.NewInMemoryEventBus(log)
	bus.Subscribe(event.NewLoggingHandler(log))

	metrics, err := telemetry.NewAllocationMetrics(providers.Meter("settlement"))
	if err != nil {
		return fmt.Errorf("failed to create allocation metrics: %w", err)
	}

	services := wireServices(cfg, db, idemCache, bus, metrics, redisClient, log)

	checks := map[string]handler.Pinger{"database": handler.PingFunc(db.Ping)}
	if redisClient != nil {
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := router.NewEngine(router.EngineConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		MaxBodyBytes:   cfg.HTTP.MaxBodySize,
		TracingEnabled: providers.IsEnabled(),
		TrustedProxies: cfg.HTTP.TrustedProxies,
		Meter:          providers.Meter("settlement.http"),
		Logger:         log,
		Tokens:         auth.NewTokenService(cfg.JWT),
	}, router.Handlers{
		Documents:   handler.NewDocumentHandler(services.documents),
		Payments:    handler.NewPaymentHandler(services.payments, services.allocations),
		CreditNotes: handler.NewCreditNoteHandler(services.creditNotes),
		Allocations: handler.NewAllocationHandler(services.allocations),
		System:      handler.NewSystemHandler(cfg.App.Name, version, checks),
	})

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		log.Info("Shutting down server", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := bus.Stop(shutdownCtx); err != nil {
		log.Warn("Event bus did not drain", zap.Error(err))
	}
	published, failed := bus.Stats()
	log.Info("Server exited", zap.Int64("events_published", published), zap.Int64("events_failed", failed))
	return nil
}

type serviceSet struct {
	documents   *appfinance.DocumentService
	payments    *appfinance.PaymentService
	creditNotes *appfinance.CreditNoteService
	allocations *appfinance.AllocationService
}

// wireServices builds the application services on one repository set and
// transaction scope and attaches the shared cache, event bus and metrics
func wireServices(
	cfg *config.Config,
	db *persistence.Database,
	idemCache shared.IdempotencyCache,
	bus *event.InMemoryEventBus,
	metrics *telemetry.AllocationMetrics,
	redisClient *redis.Client,
	log *zap.Logger,
) serviceSet {
	repos := persistence.NewRepositorySet(db.DB)
	scope := persistence.NewGormTransactionScope(db.DB)
	idemCfg := shared.IdempotencyConfig{CacheTTL: cfg.Allocation.IdempotencyTTL}

	allocations := appfinance.NewAllocationService(repos, scope, log)
	allocations.SetEventPublisher(bus)
	allocations.SetMetrics(metrics)
	allocations.SetIdempotencyCache(idemCache, idemCfg)
	if cfg.Allocation.DistributedLockEnabled && redisClient != nil {
		opts := lock.DefaultOptions()
		if cfg.Allocation.LockTTL > 0 {
			opts.TTL = cfg.Allocation.LockTTL
		}
		if cfg.Allocation.LockRetries > 0 {
			opts.WaitTimeout = time.Duration(cfg.Allocation.LockRetries) * opts.RetryInterval
		}
		allocations.SetSourceLocker(lock.NewRedisSourceLocker(redisClient, opts, log))
		log.Info("Distributed source locking enabled", zap.Duration("ttl", opts.TTL))
	}

	documents := appfinance.NewDocumentService(repos, scope, log)
	documents.SetEventPublisher(bus)
	documents.SetMetrics(metrics)
	documents.SetIdempotencyCache(idemCache, idemCfg)
	documents.SetDefaultCurrency(cfg.Allocation.DefaultCurrency)

	payments := appfinance.NewPaymentService(repos, scope, log)
	payments.SetEventPublisher(bus)
	payments.SetMetrics(metrics)
	payments.SetIdempotencyCache(idemCache, idemCfg)
	payments.SetDefaultCurrency(cfg.Allocation.DefaultCurrency)

	creditNotes := appfinance.NewCreditNoteService(repos, scope, allocations, log)
	creditNotes.SetEventPublisher(bus)
	creditNotes.SetMetrics(metrics)
	creditNotes.SetIdempotencyCache(idemCache, idemCfg)

	return serviceSet{
		documents:   documents,
		payments:    payments,
		creditNotes: creditNotes,
		allocations: allocations,
	}
}
