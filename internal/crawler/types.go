package crawler

import (
	"context"
	"iter"
	"time"
)

// Listing represents a scraped product posting
type Listing struct {
	Id       string `json:"id"`
	Title    string `json:"title"`
	Price    string `json:"price"`
	URL      string `json:"url"`
	ImageURL string `json:"image_url,omitempty"`
	Source   string `json:"source"`
}

// Crawler interface defines the contract for all site adapters
type Crawler interface {
	// GetName returns the crawler's name for logging and identification
	GetName() string

	// SearchTerms returns the terms the crawler queries on every pass
	SearchTerms() []string

	// Search yields the listings for one term across all result pages.
	// Ranging the sequence again starts over from the first page.
	Search(ctx context.Context, term string) iter.Seq2[Listing, error]
}

// Selectors contains CSS selectors for various elements in the page
type Selectors struct {
	Container           string
	Title               string
	Price               string
	Brand               string
	Link                string
	Image               string
	PaginationContainer string
	PaginationNext      string
	SoldOut             string
	// SoldOutText, when set, must match the SoldOut element's text
	SoldOutText string
}

// CrawlerConfig contains configuration for a crawler
type CrawlerConfig struct {
	Name      string
	BaseURL   string
	SearchURL string // contains a {query} placeholder
	Selectors Selectors

	SearchTerms []string
	// TitleKeywords filters listings by title; empty accepts everything
	TitleKeywords []string

	MaxPages  int
	PageDelay time.Duration

	CacheKey  string
	BlockTime int // seconds
}
