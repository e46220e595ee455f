package crawler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"sjsage522/listingwatcher/helpers"
	"sjsage522/listingwatcher/logger"
	apperrors "sjsage522/listingwatcher/pkg/errors"
	"sjsage522/listingwatcher/services/cache"
)

// imageWidth replaces the {width} placeholder of responsive image URLs
const imageWidth = "800"

// BaseCrawler provides common functionality for all crawlers
type BaseCrawler struct {
	Name      string
	BaseURL   string
	Client    *http.Client
	CacheKey  string
	CacheSvc  cache.CacheService
	BlockTime time.Duration
	log       *logger.Logger
}

// ListingID derives the stable identity of a listing from its canonical URL
func ListingID(canonicalURL string) string {
	sum := sha256.Sum256([]byte(canonicalURL))
	return hex.EncodeToString(sum[:])
}

// fetchWithCache fetches a URL unless the site is blocked, and blocks it when rate limited
func (c *BaseCrawler) fetchWithCache(ctx context.Context, url string) (io.Reader, error) {
	if c.CacheSvc != nil && c.CacheKey != "" {
		_, err := c.CacheSvc.Get(c.CacheKey)
		switch {
		case err == nil:
			return nil, apperrors.NewRateLimit(c.Name, c.BlockTime)
		case !errors.Is(err, cache.ErrMiss):
			c.logger().Warn().Err(err).Msg("Rate limit cache unavailable")
		}
	}

	body, err := helpers.FetchWithRandomHeaders(ctx, c.Client, url)
	if err != nil {
		if errors.Is(err, helpers.ErrRateLimited) {
			if c.CacheSvc != nil && c.CacheKey != "" && c.BlockTime > 0 {
				value := []byte(fmt.Sprintf("%d", c.BlockTime/time.Second))
				if cacheErr := c.CacheSvc.Set(c.CacheKey, value, c.BlockTime); cacheErr != nil {
					c.logger().Warn().Err(cacheErr).Msg("Failed to store rate limit block")
				}
			}
			return nil, apperrors.New(apperrors.ErrorTypeRateLimit, c.Name, "fetch "+url, err)
		}
		return nil, apperrors.NewNetwork(c.Name, "fetch "+url, err)
	}

	return body, nil
}

// createDocument creates a goquery document from a reader
func (c *BaseCrawler) createDocument(reader io.Reader) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, apperrors.NewParsing(c.Name, "parse HTML", err)
	}
	return doc, nil
}

// ResolveURL resolves a link found on the page against the site base URL
func (c *BaseCrawler) ResolveURL(href string) string {
	return helpers.ResolveURL(c.BaseURL, href)
}

// ProcessImage turns a raw image attribute into an absolute, displayable URL
func (c *BaseCrawler) ProcessImage(src string) string {
	src = strings.TrimSpace(src)
	if src == "" {
		return ""
	}
	// Substitute first, resolving would escape the braces
	src = strings.ReplaceAll(src, "{width}", imageWidth)
	return c.ResolveURL(src)
}

// GetName returns the crawler's name for logging
func (c *BaseCrawler) GetName() string {
	return c.Name
}

func (c *BaseCrawler) logger() *logger.Logger {
	if c.log == nil {
		c.log = logger.ForCrawler(c.Name)
	}
	return c.log
}
