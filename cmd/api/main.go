package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/attachtrack/attachtrack-api/config"
	"github.com/attachtrack/attachtrack-api/internal/cache"
	"github.com/attachtrack/attachtrack-api/internal/database/memory"
	"github.com/attachtrack/attachtrack-api/internal/database/postgres"
	"github.com/attachtrack/attachtrack-api/internal/handlers"
	"github.com/attachtrack/attachtrack-api/internal/middleware"
	"github.com/attachtrack/attachtrack-api/internal/models"
	"github.com/attachtrack/attachtrack-api/internal/repository"
	"github.com/attachtrack/attachtrack-api/internal/services"
	"github.com/attachtrack/attachtrack-api/pkg/db"
	"github.com/attachtrack/attachtrack-api/pkg/hasher"
	"github.com/attachtrack/attachtrack-api/pkg/jwt"
	"github.com/attachtrack/attachtrack-api/pkg/logger"
	"github.com/attachtrack/attachtrack-api/pkg/metrics"
	"github.com/attachtrack/attachtrack-api/pkg/profiling"
	"github.com/attachtrack/attachtrack-api/pkg/tracing"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	err = logger.Initialize(logger.Config{
		Level:       cfg.Logging.Level,
		LogDir:      cfg.Logging.Dir,
		Environment: cfg.Server.AppEnv,
		ServiceName: cfg.Observability.ServiceName,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting AttachTrack API",
		zap.String("version", cfg.Observability.ServiceVersion),
		zap.String("environment", cfg.Server.AppEnv),
		zap.String("email_scope", cfg.Auth.EmailScope),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerShutdown, err := tracing.InitTracer(tracing.Config{
		ServiceName:       cfg.Observability.ServiceName,
		ServiceNamespace:  cfg.Observability.ServiceNamespace,
		ServiceVersion:    cfg.Observability.ServiceVersion,
		ServiceInstanceID: cfg.Observability.ServiceInstanceID,
		Environment:       cfg.Server.AppEnv,
		Endpoint:          cfg.Observability.AlloyEndpoint,
	})
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tracerShutdown(ctx); shutdownErr != nil {
			logger.Error("Failed to shutdown tracer", zap.Error(shutdownErr))
		}
	}()

	stopProfiler, err := profiling.InitProfiler(cfg.Profiling, profiling.Tags{
		Namespace:   cfg.Observability.ServiceNamespace,
		Environment: cfg.Server.AppEnv,
		Version:     cfg.Observability.ServiceVersion,
		InstanceID:  cfg.Observability.ServiceInstanceID,
	})
	if err != nil {
		logger.Fatal("Failed to initialize profiler", zap.Error(err))
	}
	defer stopProfiler()

	metrics.RecordInfrastructureMetrics()

	readiness := map[string]handlers.ReadinessCheck{}

	// Stores: Postgres, or in-memory when working offline
	var stores repository.Stores
	if cfg.Database.WorkOffline {
		logger.Warn("DB_WORK_OFFLINE is set: using in-memory stores, data is lost on restart")
		stores = memory.NewStores()
	} else {
		pool, poolErr := db.NewPool(rootCtx, cfg.Database.Pool())
		if poolErr != nil {
			logger.Fatal("Failed to initialize database connection pool", zap.Error(poolErr))
		}
		client := postgres.NewClient(pool, cfg.Database.StoreTimeout)
		defer client.Close()

		stores = client.Stores()
		readiness["postgres"] = client.Ping
	}

	var principalCache *cache.PrincipalCache
	if cfg.Cache.PrincipalTTL > 0 {
		principalCache = cache.NewPrincipalCache(stores.Principals, cfg.Cache.PrincipalTTL)
		stores.Principals = principalCache
	}

	// Revocation list and login limiter are shared through Redis when configured
	var (
		revocations  cache.RevocationList = cache.NewMemoryRevocationList()
		loginLimiter gin.HandlerFunc
	)
	if cfg.Redis.URL != "" {
		opts, parseErr := redis.ParseURL(cfg.Redis.URL)
		if parseErr != nil {
			logger.Fatal("Invalid REDIS_URL", zap.Error(parseErr))
		}
		redisClient := redis.NewClient(opts)
		defer func() {
			if closeErr := redisClient.Close(); closeErr != nil {
				logger.Error("Failed to close redis client", zap.Error(closeErr))
			}
		}()

		revocations = cache.NewRedisRevocationList(redisClient, cfg.Redis.KeyPrefix+"revoked")
		loginLimiter = middleware.NewRedisRateLimiter(redisClient, cfg.Redis.KeyPrefix+"login:",
			cfg.RateLimit.LoginLimit, cfg.RateLimit.LoginWindow).Middleware()
		readiness["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}

		// Deactivations and secret changes evict cached principals on every instance
		if principalCache != nil {
			bus := cache.NewRedisInvalidationBus(redisClient, cfg.Redis.KeyPrefix+"principal-invalidations")
			principalCache.SetPublisher(bus)
			bus.Listen(rootCtx, principalCache)
		}
	} else {
		perSecond := rate.Limit(float64(cfg.RateLimit.LoginLimit) / cfg.RateLimit.LoginWindow.Seconds())
		loginLimiter = middleware.NewRateLimiter(rootCtx, perSecond, cfg.RateLimit.LoginLimit).Middleware()
	}

	tokens := jwt.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	secretHasher := hasher.NewArgon2Hasher(hasher.Params{
		Memory:      cfg.Hasher.MemoryKiB,
		Iterations:  cfg.Hasher.Iterations,
		Parallelism: cfg.Hasher.Parallelism,
	})

	// Initialize services
	credentialService := services.NewCredentialService(stores.Principals, secretHasher, models.EmailScope(cfg.Auth.EmailScope))
	authService := services.NewAuthService(credentialService, tokens, revocations, cfg.Auth.RefreshTokenRotation)
	guard := services.NewGuard(authService, tokens)
	ledgerService := services.NewLedgerService(stores.Positions)
	attachmentService := services.NewAttachmentService(stores.Attachments, ledgerService)
	applicationService := services.NewApplicationService(stores.Applications, credentialService, ledgerService, attachmentService)

	if err := credentialService.EnsureBootstrapAdmin(rootCtx, cfg.Auth.BootstrapAdminEmail, cfg.Auth.BootstrapAdminSecret); err != nil {
		logger.Fatal("Failed to bootstrap administrator", zap.Error(err))
	}

	// Set up Gin router
	gin.SetMode(cfg.Server.GinMode)
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Observability.ServiceName))
	router.Use(middleware.ObservabilityMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware(cfg.Server.EnableHSTS))
	router.Use(middleware.BodySizeLimitMiddleware(cfg.Server.MaxBodyBytes))

	allowedOrigins := cfg.Server.AllowedOrigins
	if cfg.IsDevelopment() {
		allowedOrigins = append(allowedOrigins, "http://127.0.0.1:3000")
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:  allowedOrigins,
		AllowMethods:  []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "traceparent", "tracestate"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	generalRateLimiter := middleware.NewRateLimiter(rootCtx, rate.Limit(cfg.RateLimit.GeneralRPS), cfg.RateLimit.GeneralBurst)

	api := router.Group("/api")
	api.GET("/healthcheck", handlers.NewHealthHandler(readiness).Healthcheck)
	api.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := api.Group("/v1", generalRateLimiter.Middleware())
	registerAPIRoutes(v1, guard, loginLimiter, routeHandlers{
		auth:         handlers.NewAuthHandler(credentialService, authService),
		admin:        handlers.NewAdminHandler(credentialService),
		positions:    handlers.NewPositionHandler(ledgerService),
		applications: handlers.NewApplicationHandler(applicationService),
		attachments:  handlers.NewAttachmentHandler(attachmentService),
	})

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info("Server started", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
