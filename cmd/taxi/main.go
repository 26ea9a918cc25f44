package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eugene-kirzhanov/vkcup21/internal/geo"
	"github.com/eugene-kirzhanov/vkcup21/internal/maps"
	"github.com/eugene-kirzhanov/vkcup21/internal/ordering"
	"github.com/eugene-kirzhanov/vkcup21/internal/pricing"
	"github.com/eugene-kirzhanov/vkcup21/internal/render"
	"github.com/eugene-kirzhanov/vkcup21/internal/taxi"
	"github.com/eugene-kirzhanov/vkcup21/pkg/cache"
	"github.com/eugene-kirzhanov/vkcup21/pkg/common"
	"github.com/eugene-kirzhanov/vkcup21/pkg/config"
	"github.com/eugene-kirzhanov/vkcup21/pkg/errors"
	"github.com/eugene-kirzhanov/vkcup21/pkg/eventbus"
	"github.com/eugene-kirzhanov/vkcup21/pkg/health"
	"github.com/eugene-kirzhanov/vkcup21/pkg/httpclient"
	"github.com/eugene-kirzhanov/vkcup21/pkg/logger"
	"github.com/eugene-kirzhanov/vkcup21/pkg/middleware"
	"github.com/eugene-kirzhanov/vkcup21/pkg/ratelimit"
	redisClient "github.com/eugene-kirzhanov/vkcup21/pkg/redis"
	"github.com/eugene-kirzhanov/vkcup21/pkg/tracing"
	"github.com/eugene-kirzhanov/vkcup21/pkg/websocket"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	serviceName = "taxi-service"
	version     = "1.0.0"
)

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting taxi service",
		zap.String("service", serviceName),
		zap.String("version", version),
	)

	// Sentry error tracking
	sentryEnabled, err := errors.InitSentry(errors.SentryConfig{
		DSN:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
		Release:     releaseName(cfg.Sentry.Release),
		ServerName:  serviceName,
	})
	switch {
	case err != nil:
		logger.Warn("Failed to initialize Sentry, continuing without error tracking", zap.Error(err))
	case sentryEnabled:
		defer errors.Flush(2 * time.Second)
		logger.Info("Sentry error tracking initialized")
	}

	// OpenTelemetry tracer
	tp, err := tracing.InitTracer(tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    cfg.Server.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
	}, logger.Get())
	if err != nil {
		logger.Warn("Failed to initialize tracer, continuing without tracing", zap.Error(err))
	} else if tp != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Failed to shutdown tracer", zap.Error(err))
			}
		}()
	}

	checker := health.NewDeepChecker(health.DeepCheckerConfig{
		Version:  version,
		Timeout:  2 * time.Second,
		CacheTTL: 10 * time.Second,
	})

	// Redis backs the geocode and nearby places caches
	var cacheManager *cache.Manager
	var limiter *ratelimit.Limiter
	if cfg.Redis.Enabled {
		redis, err := redisClient.NewRedisClient(&cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redis.Close()
		cacheManager = cache.NewManager(redis)
		if cfg.RateLimit.Enabled {
			limiter = ratelimit.NewLimiter(redis.Client, cfg.RateLimit)
		}
		checker.AddDependency("redis", true, func(ctx context.Context) error {
			return redis.Ping(ctx).Err()
		})
		logger.Info("Connected to Redis")
	} else {
		logger.Warn("Redis disabled, maps responses will not be cached and requests will not be rate limited")
	}

	// NATS carries session and trip estimate events
	var publisher eventbus.Publisher
	if cfg.NATS.Enabled {
		busCfg := eventbus.DefaultConfig()
		busCfg.URL = cfg.NATS.URL
		busCfg.Name = serviceName
		bus, err := eventbus.New(busCfg)
		if err != nil {
			logger.Warn("Failed to connect to NATS, trip estimates will not be published", zap.Error(err))
		} else {
			defer bus.Close()
			publisher = bus
			checker.AddDependency("nats", false, func(context.Context) error {
				if !bus.Connected() {
					return fmt.Errorf("nats disconnected")
				}
				return nil
			})
		}
	}

	if cfg.Maps.APIKey == "" {
		logger.Warn("GOOGLE_MAPS_API_KEY not set, maps requests will be rejected")
	}
	mapsClient := maps.NewClient(cfg.Maps, httpclient.WithDefaultRetry())

	breakers := cfg.Resilience.CircuitBreaker
	directionsBreaker := maps.NewBreaker(breakers, maps.BreakerDirections)
	geocodeBreaker := maps.NewBreaker(breakers, maps.BreakerGeocode)
	placesBreaker := maps.NewBreaker(breakers, maps.BreakerPlaces)
	checker.AddCircuitBreaker(maps.BreakerDirections, directionsBreaker)
	checker.AddCircuitBreaker(maps.BreakerGeocode, geocodeBreaker)
	checker.AddCircuitBreaker(maps.BreakerPlaces, placesBreaker)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	service := ordering.NewService(rootCtx, ordering.Dependencies{
		GeoCoder: maps.NewGeocoder(mapsClient, cacheManager, cfg.Maps.GeocodeCacheTTL(), geocodeBreaker),
		Routes:   maps.NewRouteBuilder(mapsClient, directionsBreaker),
		Orders:   pricing.NewCalculator(pricing.DefaultTariffs()),
		Places: func(fixes *geo.Feed) taxi.NearbyPlacesProvider {
			return maps.NewPlacesProvider(mapsClient, fixes, cacheManager, cfg.Maps.PlacesCacheTTL(), cfg.Maps.PlacesRadiusMeters, placesBreaker)
		},
		Renderer:  render.NewRenderer(render.DefaultStyle()),
		Publisher: publisher,
	}, cfg.Session, cfg.Pricing.CurrencySymbol)

	hub := websocket.NewHub(logger.Get().Named("websocket"))
	handler := ordering.NewHandler(service, hub)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(middleware.Recovery())
	router.Use(middleware.SentryMiddleware())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger(serviceName))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware(serviceName))
	}
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.RateLimit(limiter))

	router.GET("/health/live", common.LivenessProbe(serviceName, version))
	router.GET("/health/ready", common.ReadinessProbe(serviceName, version, checker.ReadinessChecks()))
	router.GET("/health/deep", checker.GinHandler())
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": serviceName, "version": version})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler.RegisterRoutes(router)

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
	service.CloseAll()

	logger.Info("Server stopped")
}

func releaseName(release string) string {
	if release == "" {
		return serviceName + "@" + version
	}
	return release
}
