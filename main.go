package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sjsage522/listingwatcher/config"
	"sjsage522/listingwatcher/helpers"
	"sjsage522/listingwatcher/internal/crawler"
	"sjsage522/listingwatcher/logger"
	"sjsage522/listingwatcher/services/cache"
	"sjsage522/listingwatcher/services/notifier"
	"sjsage522/listingwatcher/services/store"
	"sjsage522/listingwatcher/services/worker"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Dur("crawl_interval", cfg.CrawlInterval).
		Strs("scrapers", cfg.EnabledScrapers).
		Msg("Starting application")

	if !cfg.IsProduction() {
		log.Debug().
			Str("database_path", cfg.DatabasePath).
			Str("sites_file", cfg.SitesFile).
			Int("max_pages", cfg.MaxPages).
			Dur("page_delay", cfg.PageDelay).
			Bool("webhook", cfg.WebhookURL != "").
			Str("memcache_addr", cfg.MemcacheAddr).
			Str("redis_addr", cfg.RedisAddr).
			Msg("Resolved configuration")
	}

	// Cancelled on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize services
	services, err := initializeServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Cleanup()

	// Create crawlers
	client := helpers.NewClient(cfg.HTTPTimeout)
	crawlers, err := crawler.CreateCrawlers(cfg, client, services.Cache)
	if err != nil {
		services.Cleanup()
		log.Fatal().Err(err).Msg("Failed to create crawlers")
	}

	log.Info().
		Int("crawler_count", len(crawlers)).
		Msg("Created crawlers")

	w := worker.NewWorker(crawlers, services.Store, services.Notifier, cfg.CrawlInterval)

	log.Info().Msg("Starting listing worker")
	if err := w.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Worker exited with error")
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down gracefully...")
}

// Services holds all the initialized services
type Services struct {
	Store    *store.SQLiteStore
	Cache    cache.CacheService
	Notifier notifier.Notifier
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Notifier != nil {
		if err := s.Notifier.Close(); err != nil {
			logger.Error("Failed to close notifier: %v", err)
		}
		s.Notifier = nil
	}
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			logger.Error("Failed to close store: %v", err)
		}
		s.Store = nil
	}
}

// initializeServices initializes all required services
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{}

	// Dedup store
	st, err := store.NewSQLiteStore(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	services.Store = st

	// Rate limit cache, in-process unless memcache answers
	services.Cache = cache.NewMemoryCache()
	if cfg.MemcacheAddr == "" {
		logger.Debug("MEMCACHE_ADDR is not set, using in-memory rate limit cache")
	} else if memcacheService := cache.NewMemcacheService(cfg.MemcacheAddr); memcacheService.Ping() == nil {
		services.Cache = memcacheService
	} else {
		logger.Warn("Falling back to in-memory rate limit cache")
	}

	// Notification sinks
	var sinks []notifier.Notifier
	if cfg.WebhookURL != "" {
		sinks = append(sinks, notifier.NewDiscordNotifier(helpers.NewClient(cfg.HTTPTimeout), cfg.WebhookURL))
	} else {
		logger.Warn("DISCORD_WEBHOOK_URL is not set, new listings are only logged")
		sinks = append(sinks, notifier.NewLogNotifier())
	}

	if cfg.RedisAddr != "" {
		redisNotifier := notifier.NewRedisNotifier(
			cfg.RedisAddr,
			cfg.RedisDB,
			cfg.RedisStream,
			cfg.RedisStreamCount,
			cfg.RedisStreamMaxLength,
		)
		if err := redisNotifier.Ping(ctx); err != nil {
			redisNotifier.Close()
			services.Cleanup()
			return nil, fmt.Errorf("connect redis at %s: %w", cfg.RedisAddr, err)
		}
		sinks = append(sinks, redisNotifier)
		logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
			cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
	}

	services.Notifier = notifier.NewMultiNotifier(sinks...)
	return services, nil
}
