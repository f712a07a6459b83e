package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classifieds-marketplace/internal/ads"
	"classifieds-marketplace/internal/cache"
	"classifieds-marketplace/internal/cleanup"
	"classifieds-marketplace/internal/config"
	"classifieds-marketplace/internal/database"
	"classifieds-marketplace/internal/geo"
	"classifieds-marketplace/internal/handlers"
	"classifieds-marketplace/internal/idempotency"
	"classifieds-marketplace/internal/inventory"
	"classifieds-marketplace/internal/models"
	"classifieds-marketplace/internal/outbox"
	"classifieds-marketplace/internal/ratelimit"
	"classifieds-marketplace/internal/scheduler"
	"classifieds-marketplace/internal/search"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file, using process environment")
	}

	// Load configuration
	configPath := config.GetEnv("CONFIG_PATH", "config/classifieds.yaml")
	appConfig, err := config.LoadConfig(configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", configPath).Msg("failed to load config, using defaults")
		appConfig = config.DefaultConfig()
	}
	appConfig.ApplyEnv()
	setupLogging(appConfig.Logging)
	log.Info().Str("path", configPath).Str("db_type", appConfig.Database.Type).Msg("configuration loaded")

	gormDB, err := database.NewGormDB(appConfig.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer gormDB.Close()

	if err := gormDB.InitSchema(); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize schema")
	}
	db := gormDB.DB()

	adCache := newCache(appConfig)

	events := outbox.NewGormStore(db)
	idem := idempotency.NewGormStore(db)
	geocoder := geo.NewCircuitBreaker(
		geo.NewNominatimClient(appConfig.Geo.GeocoderURL, appConfig.Geo.UserAgent, appConfig.Geo.Timeout()),
		5*time.Minute,
	)

	svc := ads.NewService(ads.Deps{
		DB:          db,
		Idempotency: idem,
		Outbox:      events,
		Cache:       adCache,
		Inventory:   inventory.NewGormGateway(db, appConfig.Inventory.Timeout()),
		Geo:         geo.NewResolver(geocoder, appConfig.Geo.Timeout()),
	}, ads.Options{
		AutoApprove:       appConfig.Ads.AutoApprove,
		ListTTL:           appConfig.Cache.ListTTL(),
		DetailTTL:         appConfig.Cache.DetailTTL(),
		IdempotencyTTL:    appConfig.Idempotency.TTL(),
		ClaimLease:        time.Minute,
		PostCommitTimeout: 5 * time.Second,
		DefaultLimit:      appConfig.Ads.DefaultLimit,
		MaxLimit:          appConfig.Ads.MaxLimit,
		RadiiKm:           appConfig.Geo.RadiiKm,
	})

	// Outbox relay feeds the search index
	relay := scheduler.NewOutboxRelay(events, appConfig.Outbox)
	if host := appConfig.Search.Meilisearch.Host; host != "" {
		index := search.NewAdIndex(host, appConfig.Search.Meilisearch.APIKey, appConfig.Search.Meilisearch.Index)
		if err := index.InitIndex(); err != nil {
			log.Warn().Err(err).Msg("failed to initialize search index")
		}
		relay.Register(models.EventAdCreated, search.AdCreatedHandler(ads.NewRepository(db), index, ads.ErrNotFound))
	}
	if appConfig.Outbox.RelayEnabled {
		relay.Start()
	}

	cleanupService := cleanup.NewService(events, idem)
	appScheduler := scheduler.NewScheduler(cleanupService, appConfig)
	if err := appScheduler.Start(); err != nil {
		log.Error().Err(err).Msg("failed to start scheduler")
	}

	limiter := ratelimit.NewKeyedLimiter(
		appConfig.RateLimit.RequestsPerMinute,
		appConfig.RateLimit.RequestsPerHour,
		appConfig.RateLimit.Enabled,
	)
	log.Info().
		Int("per_minute", appConfig.RateLimit.RequestsPerMinute).
		Int("per_hour", appConfig.RateLimit.RequestsPerHour).
		Bool("enabled", appConfig.RateLimit.Enabled).
		Msg("create rate limiter initialized")

	if appConfig.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := handlers.NewRouter(handlers.RouterConfig{
		Ads:            handlers.NewAdsHandler(svc),
		Admin:          handlers.NewAdminHandler(relay, cleanupService, svc, limiter, appConfig.Outbox.RetentionDays),
		CreateLimiter:  handlers.RateLimitByOwner(limiter),
		AllowOrigins:   appConfig.Server.AllowOrigins,
		RequestTimeout: appConfig.Server.RequestTimeout(),
		LogRequests:    appConfig.Logging.LogRequests,
		Ping:           gormDB.Ping,
	})

	srv := &http.Server{
		Addr:              ":" + appConfig.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", appConfig.Server.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	svc.Wait()
	relay.Stop()
	appScheduler.Stop()
	log.Info().Msg("server stopped")
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// newCache connects to Redis; the service runs uncached when Redis is unreachable
func newCache(cfg *config.Config) cache.Cache {
	if cfg.Redis.Addr == "" {
		log.Warn().Msg("redis not configured, caching disabled")
		return cache.Noop{}
	}

	client := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	tagCache := cache.NewTagCache(client, cfg.Cache.Timeout())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tagCache.Ping(ctx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, caching disabled")
		client.Close()
		return cache.Noop{}
	}
	log.Info().Str("addr", cfg.Redis.Addr).Msg("redis cache connected")
	return tagCache
}
