package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	// Test with default values
	config := LoadConfig()
	assert.Equal(t, "", config.WebhookURL)
	assert.Equal(t, 300*time.Second, config.CrawlInterval)
	assert.Equal(t, []string{"marrkt"}, config.EnabledScrapers)
	assert.Equal(t, "database/listings.db", config.DatabasePath)
	assert.Equal(t, 50, config.MaxPages)
	assert.Equal(t, 500*time.Millisecond, config.PageDelay)
	assert.Equal(t, 1, config.RedisStreamCount)
	assert.NoError(t, config.Validate())

	// Test with environment variables
	t.Setenv("DISCORD_WEBHOOK_URL", "https://discord.com/api/webhooks/1/abc")
	t.Setenv("CRAWL_INTERVAL_SECONDS", "30")
	t.Setenv("ENABLED_SCRAPERS", " Marrkt, , vintagestore ")
	t.Setenv("DATABASE_PATH", "/tmp/listings.db")
	t.Setenv("MAX_PAGES", "5")
	t.Setenv("REDIS_ADDR", "redis.example.com:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("MEMCACHE_ADDR", "memcache.example.com:11211")

	config = LoadConfig()
	assert.Equal(t, "https://discord.com/api/webhooks/1/abc", config.WebhookURL)
	assert.Equal(t, 30*time.Second, config.CrawlInterval)
	assert.Equal(t, []string{"marrkt", "vintagestore"}, config.EnabledScrapers)
	assert.Equal(t, "/tmp/listings.db", config.DatabasePath)
	assert.Equal(t, 5, config.MaxPages)
	assert.Equal(t, "redis.example.com:6379", config.RedisAddr)
	assert.Equal(t, 2, config.RedisDB)
	assert.Equal(t, "memcache.example.com:11211", config.MemcacheAddr)
	assert.NoError(t, config.Validate())
}

func TestLoadConfigInvalidNumberFallsBack(t *testing.T) {
	t.Setenv("CRAWL_INTERVAL_SECONDS", "often")

	config := LoadConfig()
	assert.Equal(t, 300*time.Second, config.CrawlInterval)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero interval", func(c *Config) { c.CrawlInterval = 0 }},
		{"zero max pages", func(c *Config) { c.MaxPages = 0 }},
		{"empty database path", func(c *Config) { c.DatabasePath = " " }},
		{"no scrapers", func(c *Config) { c.EnabledScrapers = nil }},
		{"bad webhook", func(c *Config) { c.WebhookURL = "discord" }},
		{"redis without streams", func(c *Config) { c.RedisAddr = "localhost:6379"; c.RedisStreamCount = 0 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config := LoadConfig()
			tc.modify(config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestLoadSites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.yaml")
	content := `
sites:
  - name: VintageStore
    base_url: https://vintage.example.com
    search_url: https://vintage.example.com/find?q={query}
    search_terms: ["a-2 jacket"]
    title_keywords: ["a-2"]
    block_seconds: 120
    selectors:
      container: li.product
      title: .name
      price: .price
      link: a
      image: img
      pagination_next: a[rel=next]
      sold_out: .badge
      sold_out_text: Sold
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	sites, err := LoadSites(path)
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "VintageStore", sites[0].Name)
	assert.Equal(t, []string{"a-2 jacket"}, sites[0].SearchTerms)
	assert.Equal(t, 120, sites[0].BlockSeconds)
	assert.Equal(t, "li.product", sites[0].Selectors.Container)
	assert.Equal(t, "Sold", sites[0].Selectors.SoldOutText)
}

func TestLoadSitesRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.yaml")
	content := `
sites:
  - name: Broken
    base_url: https://broken.example.com
    search_url: https://broken.example.com/search
    search_terms: ["x"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadSites(path)
	assert.ErrorContains(t, err, "{query}")

	_, err = LoadSites(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestIsProduction(t *testing.T) {
	assert.False(t, LoadConfig().IsProduction())

	t.Setenv("LISTING_ENVIRONMENT", "production")
	assert.True(t, LoadConfig().IsProduction())
}
