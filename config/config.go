package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "sjsage522/listingwatcher/pkg/errors"
)

// Config represents the application configuration
type Config struct {
	// Notification configuration
	WebhookURL string

	// Scheduler configuration
	CrawlInterval time.Duration

	// Scraper configuration
	EnabledScrapers []string
	SitesFile       string
	MaxPages        int
	PageDelay       time.Duration
	HTTPTimeout     time.Duration

	// Dedup store configuration
	DatabasePath string

	// Memcache configuration, empty address disables rate-limit blocking
	MemcacheAddr string

	// Redis configuration, empty address disables the stream sink
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamCount     int
	RedisStreamMaxLength int

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	return &Config{
		WebhookURL:           getEnv("DISCORD_WEBHOOK_URL", ""),
		CrawlInterval:        time.Duration(getEnvInt("CRAWL_INTERVAL_SECONDS", 300)) * time.Second,
		EnabledScrapers:      splitList(getEnv("ENABLED_SCRAPERS", "marrkt")),
		SitesFile:            getEnv("SITES_FILE", ""),
		MaxPages:             getEnvInt("MAX_PAGES", 50),
		PageDelay:            time.Duration(getEnvInt("PAGE_DELAY_MS", 500)) * time.Millisecond,
		HTTPTimeout:          time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 10)) * time.Second,
		DatabasePath:         getEnv("DATABASE_PATH", "database/listings.db"),
		MemcacheAddr:         getEnv("MEMCACHE_ADDR", ""),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		RedisStream:          getEnv("REDIS_STREAM", "listings"),
		RedisStreamCount:     getEnvInt("REDIS_STREAM_COUNT", 1),
		RedisStreamMaxLength: getEnvInt("REDIS_STREAM_MAX_LENGTH", 1000),
		Environment:          getEnv("LISTING_ENVIRONMENT", "development"),
	}
}

// Validate checks the configuration for values the application cannot run with
func (c *Config) Validate() error {
	if c.CrawlInterval <= 0 {
		return apperrors.NewConfiguration("CRAWL_INTERVAL_SECONDS must be positive", nil)
	}
	if c.MaxPages <= 0 {
		return apperrors.NewConfiguration("MAX_PAGES must be positive", nil)
	}
	if c.PageDelay < 0 {
		return apperrors.NewConfiguration("PAGE_DELAY_MS must not be negative", nil)
	}
	if c.HTTPTimeout <= 0 {
		return apperrors.NewConfiguration("HTTP_TIMEOUT_SECONDS must be positive", nil)
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return apperrors.NewConfiguration("DATABASE_PATH must be set", nil)
	}
	if len(c.EnabledScrapers) == 0 {
		return apperrors.NewConfiguration("ENABLED_SCRAPERS must name at least one scraper", nil)
	}
	if c.WebhookURL != "" {
		u, err := url.Parse(c.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return apperrors.NewConfiguration(fmt.Sprintf("invalid DISCORD_WEBHOOK_URL %q", c.WebhookURL), err)
		}
	}
	if c.RedisAddr != "" && c.RedisStreamCount <= 0 {
		return apperrors.NewConfiguration("REDIS_STREAM_COUNT must be positive", nil)
	}
	return nil
}

// IsProduction reports whether the application runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt retrieves an integer environment variable, falling back on parse errors
func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return value
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}
