package crawler

import (
	"fmt"
	"net/http"
	"strings"

	"sjsage522/listingwatcher/config"
	"sjsage522/listingwatcher/logger"
	"sjsage522/listingwatcher/services/cache"
)

const defaultBlockTime = 300

// CreateCrawlers builds the ordered crawler registry and keeps the enabled entries
func CreateCrawlers(cfg *config.Config, client *http.Client, cacheSvc cache.CacheService) ([]Crawler, error) {
	configurations := builtinConfigurations()

	if cfg.SitesFile != "" {
		sites, err := config.LoadSites(cfg.SitesFile)
		if err != nil {
			return nil, err
		}
		for _, site := range sites {
			configurations = register(configurations, FromSite(site))
		}
	}

	byName := make(map[string]CrawlerConfig, len(configurations))
	for _, c := range configurations {
		byName[strings.ToLower(c.Name)] = c
	}
	enabled := make(map[string]bool, len(cfg.EnabledScrapers))
	for _, name := range cfg.EnabledScrapers {
		if _, ok := byName[strings.ToLower(name)]; !ok {
			return nil, fmt.Errorf("unknown scraper %q", name)
		}
		enabled[strings.ToLower(name)] = true
	}

	var crawlers []Crawler
	for _, c := range configurations {
		if !enabled[strings.ToLower(c.Name)] {
			continue
		}
		if c.MaxPages == 0 {
			c.MaxPages = cfg.MaxPages
		}
		if c.PageDelay == 0 {
			c.PageDelay = cfg.PageDelay
		}
		crawler := NewConfigurableCrawler(c, client, cacheSvc)
		logger.ForCrawler(crawler.GetName()).Info().
			Strs("terms", crawler.SearchTerms()).
			Int("max_pages", crawler.MaxPages).
			Msg("Registered crawler")
		crawlers = append(crawlers, crawler)
	}

	return crawlers, nil
}

// register replaces a configuration with the same name or appends a new one
func register(configurations []CrawlerConfig, c CrawlerConfig) []CrawlerConfig {
	for i, existing := range configurations {
		if strings.EqualFold(existing.Name, c.Name) {
			configurations[i] = c
			return configurations
		}
	}
	return append(configurations, c)
}

// FromSite converts a YAML site definition into a crawler configuration
func FromSite(site config.Site) CrawlerConfig {
	blockTime := site.BlockSeconds
	if blockTime <= 0 {
		blockTime = defaultBlockTime
	}
	return CrawlerConfig{
		Name:      site.Name,
		BaseURL:   site.BaseURL,
		SearchURL: site.SearchURL,
		Selectors: Selectors{
			Container:           site.Selectors.Container,
			Title:               site.Selectors.Title,
			Price:               site.Selectors.Price,
			Brand:               site.Selectors.Brand,
			Link:                site.Selectors.Link,
			Image:               site.Selectors.Image,
			PaginationContainer: site.Selectors.PaginationContainer,
			PaginationNext:      site.Selectors.PaginationNext,
			SoldOut:             site.Selectors.SoldOut,
			SoldOutText:         site.Selectors.SoldOutText,
		},
		SearchTerms:   site.SearchTerms,
		TitleKeywords: site.TitleKeywords,
		CacheKey:      rateLimitKey(site.Name),
		BlockTime:     blockTime,
	}
}

// rateLimitKey derives a memcache-safe block key from a site name
func rateLimitKey(name string) string {
	key := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, strings.ToLower(name))
	return key + "_rate_limited"
}

// builtinConfigurations returns the sites supported without a sites file
func builtinConfigurations() []CrawlerConfig {
	marrktTerms := []string{"n-1 deck jacket", "deck jacket"}

	return []CrawlerConfig{
		{
			// Marrkt crawler configuration
			Name:      "Marrkt",
			BaseURL:   "https://www.marrkt.com",
			SearchURL: "https://www.marrkt.com/search?q={query}",
			Selectors: Selectors{
				Container:           ".product-card-wrapper",
				Title:               ".product-title a, .card-title a",
				Price:               ".product-price-exc-vat",
				Brand:               ".card-subtitle",
				Link:                ".product-card a, .card-image a",
				Image:               ".responsive-image__image",
				PaginationContainer: "ul.pagination",
				PaginationNext:      "a.pagination-next",
				SoldOut:             ".card-body p",
				SoldOutText:         "Sold Out",
			},
			SearchTerms:   marrktTerms,
			TitleKeywords: marrktTerms,
			CacheKey:      "marrkt_rate_limited",
			BlockTime:     defaultBlockTime,
		},
	}
}
