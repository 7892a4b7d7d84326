package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	migrations "github.com/richxcame/ride-dispatch/db/migrations"
	"github.com/richxcame/ride-dispatch/internal/drivers"
	"github.com/richxcame/ride-dispatch/internal/rides"
	"github.com/richxcame/ride-dispatch/pkg/common"
	"github.com/richxcame/ride-dispatch/pkg/config"
	"github.com/richxcame/ride-dispatch/pkg/database"
	"github.com/richxcame/ride-dispatch/pkg/errors"
	"github.com/richxcame/ride-dispatch/pkg/eventbus"
	"github.com/richxcame/ride-dispatch/pkg/logger"
	"github.com/richxcame/ride-dispatch/pkg/middleware"
	"github.com/richxcame/ride-dispatch/pkg/ratelimit"
	redisclient "github.com/richxcame/ride-dispatch/pkg/redis"
	"github.com/richxcame/ride-dispatch/pkg/resilience"
	"github.com/richxcame/ride-dispatch/pkg/tracing"
	"go.uber.org/zap"
)

const serviceName = "rides-service"

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if err := logger.Init(cfg.Server.Environment, cfg.Server.LogLevel); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	logger.Info("Starting rides service",
		zap.String("service", serviceName),
		zap.String("version", cfg.Server.Version),
		zap.String("environment", cfg.Server.Environment),
	)

	sentryEnabled, err := errors.InitSentry(cfg.Sentry, cfg.Server.Environment, cfg.Server.Version, serviceName)
	if err != nil {
		logger.Warn("Failed to initialize Sentry, continuing without error tracking", zap.Error(err))
	} else if sentryEnabled {
		defer errors.Flush(2 * time.Second)
		logger.Info("Sentry error tracking initialized")
	}

	err = tracing.InitTracer(rootCtx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: cfg.Server.Version,
		Environment:    cfg.Server.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
	}, logger.Get())
	if err != nil {
		logger.Warn("Failed to initialize tracer, continuing without tracing", zap.Error(err))
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracing.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Failed to shutdown tracer", zap.Error(err))
			}
		}()
	}

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(migrations.FS, cfg.Database.URL()); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	db, err := database.NewPostgresPool(rootCtx, &cfg.Database, serviceName)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)
	logger.Info("Connected to database")

	redisClient, err := redisclient.NewRedisClient(rootCtx, &cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}()

	var events rides.EventPublisher
	if cfg.NATS.Enabled {
		bus, err := eventbus.New(rootCtx, eventbus.Config{URL: cfg.NATS.URL, Name: serviceName})
		if err != nil {
			logger.Fatal("Failed to connect to event bus", zap.Error(err))
		}
		defer bus.Close()
		events = bus
	} else {
		logger.Info("Event publishing disabled")
	}

	profileDB, err := sql.Open("postgres", cfg.Database.DriverProfileDSN())
	if err != nil {
		logger.Fatal("Failed to open driver profile database", zap.Error(err))
	}
	defer profileDB.Close()
	profileDB.SetMaxOpenConns(cfg.Database.MaxConns)
	profileDB.SetConnMaxIdleTime(5 * time.Minute)

	var profileBreaker *resilience.CircuitBreaker
	if cfg.Resilience.CircuitBreaker.Enabled {
		settings := resilience.SettingsFromConfig(cfg.Resilience.CircuitBreaker, "driver-profiles")
		profileBreaker = resilience.NewCircuitBreaker(drivers.BreakerSettings(settings))
		logger.Info("Circuit breaker configured for driver profiles",
			zap.Uint32("failure_threshold", settings.FailureThreshold),
			zap.Duration("timeout", settings.Timeout),
		)
	}
	profiles := drivers.NewProfileStore(profileDB, profileBreaker)

	repo := rides.NewRepository(db)
	service := rides.NewService(repo, profiles, events)
	dispatcher := rides.NewDispatcher(repo, cfg.Dispatch)
	rater := rides.NewRatingRecorder(service)
	handler := rides.NewHandler(service, dispatcher, rater)

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewLimiter(redisClient.Client, cfg.RateLimit)
		logger.Info("Rate limiting enabled",
			zap.Int("default_limit", cfg.RateLimit.DefaultLimit),
			zap.Int("default_burst", cfg.RateLimit.DefaultBurst),
			zap.Duration("window", cfg.RateLimit.Window()),
		)
	}

	common.ExposeInternalErrors(cfg.IsDevelopment())
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RecoveryWithSentry())
	router.Use(middleware.SentryMiddleware())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestTimeout(time.Duration(cfg.Server.RequestTimeout) * time.Second))
	router.Use(middleware.RequestLogger(serviceName))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins(),
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key", middleware.CorrelationIDHeader},
		ExposeHeaders:    []string{middleware.CorrelationIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.Metrics(serviceName))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware(serviceName))
	}
	router.Use(middleware.ErrorHandler())

	router.GET("/healthz", common.HealthCheck(serviceName, cfg.Server.Version))
	router.GET("/health/live", common.LivenessProbe(serviceName, cfg.Server.Version))
	router.GET("/health/ready", common.ReadinessProbe(serviceName, cfg.Server.Version, 2*time.Second, map[string]common.HealthChecker{
		"database":        repo.Ping,
		"redis":           redisClient.HealthCheck,
		"driver_profiles": profiles.Ping,
	}))
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": serviceName,
			"version": cfg.Server.Version,
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler.RegisterRoutes(router, cfg.JWT,
		middleware.RateLimit(limiter),
		middleware.Idempotency(redisClient),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}
