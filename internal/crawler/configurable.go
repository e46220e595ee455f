package crawler

import (
	"context"
	"iter"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"sjsage522/listingwatcher/helpers"
	"sjsage522/listingwatcher/logger"
	apperrors "sjsage522/listingwatcher/pkg/errors"
	"sjsage522/listingwatcher/services/cache"

	"github.com/PuerkitoBio/goquery"
)

const defaultMaxPages = 50

// ConfigurableCrawler is a crawler driven entirely by a CrawlerConfig
type ConfigurableCrawler struct {
	BaseCrawler
	SearchURL     string
	Selectors     Selectors
	Terms         []string
	TitleKeywords []string
	MaxPages      int
	PageDelay     time.Duration
}

// NewConfigurableCrawler creates a new configurable crawler
func NewConfigurableCrawler(config CrawlerConfig, client *http.Client, cacheSvc cache.CacheService) *ConfigurableCrawler {
	if client == nil {
		client = helpers.NewClient(10 * time.Second)
	}
	maxPages := config.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	keywords := make([]string, 0, len(config.TitleKeywords))
	for _, k := range config.TitleKeywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}

	return &ConfigurableCrawler{
		BaseCrawler: BaseCrawler{
			Name:      config.Name,
			BaseURL:   config.BaseURL,
			Client:    client,
			CacheKey:  config.CacheKey,
			CacheSvc:  cacheSvc,
			BlockTime: time.Duration(config.BlockTime) * time.Second,
			log:       logger.ForCrawler(config.Name),
		},
		SearchURL:     config.SearchURL,
		Selectors:     config.Selectors,
		Terms:         slices.Clone(config.SearchTerms),
		TitleKeywords: keywords,
		MaxPages:      maxPages,
		PageDelay:     config.PageDelay,
	}
}

// SearchTerms returns the configured search terms
func (c *ConfigurableCrawler) SearchTerms() []string {
	return slices.Clone(c.Terms)
}

// BuildSearchURL substitutes the escaped term into the search URL template
func (c *ConfigurableCrawler) BuildSearchURL(term string) string {
	return strings.ReplaceAll(c.SearchURL, "{query}", url.QueryEscape(term))
}

// Search follows the result pages of one term and yields every accepted listing.
// Pagination stops at the last page, on a link back to a visited page, or after MaxPages.
func (c *ConfigurableCrawler) Search(ctx context.Context, term string) iter.Seq2[Listing, error] {
	return func(yield func(Listing, error) bool) {
		log := c.logger().WithField("term", term)
		current := c.BuildSearchURL(term)
		visited := make(map[string]bool)

		for page := 1; ; page++ {
			visited[current] = true
			log.Debug().Int("page", page).Str("url", current).Msg("Fetching result page")

			body, err := c.fetchWithCache(ctx, current)
			if err != nil {
				yield(Listing{}, err)
				return
			}
			doc, err := c.createDocument(body)
			if err != nil {
				yield(Listing{}, err)
				return
			}

			next := c.nextPageURL(doc, current)

			for _, listing := range c.parsePage(doc, page) {
				if !yield(listing, nil) {
					return
				}
			}

			switch {
			case next == "":
				log.Debug().Int("pages", page).Msg("No more result pages")
				return
			case visited[next]:
				log.Info().Int("page", page).Str("next", next).Msg("Pagination points to a visited page, stopping")
				return
			case page >= c.MaxPages:
				log.Info().Int("max_pages", c.MaxPages).Msg("Reached maximum page limit")
				return
			}
			current = next

			if c.PageDelay > 0 {
				select {
				case <-ctx.Done():
					yield(Listing{}, apperrors.NewNetwork(c.Name, "pagination interrupted", ctx.Err()))
					return
				case <-time.After(c.PageDelay):
				}
			}
		}
	}
}

// parsePage extracts the listings of one page in document order
func (c *ConfigurableCrawler) parsePage(doc *goquery.Document, page int) []Listing {
	var listings []Listing
	doc.Find(c.Selectors.Container).Each(func(i int, s *goquery.Selection) {
		listing, err := c.processListing(s)
		if err != nil {
			c.logger().Debug().Err(err).Int("page", page).Int("item", i).Msg("Skipping unparseable listing")
			return
		}
		if listing != nil {
			listings = append(listings, *listing)
		}
	})
	return listings
}

// processListing converts one container into a Listing.
// A nil listing without error means the item was filtered out.
func (c *ConfigurableCrawler) processListing(s *goquery.Selection) (*Listing, error) {
	if c.isSoldOut(s) {
		return nil, nil
	}

	title := c.text(s, c.Selectors.Title)
	if title == "" {
		if attr, ok := s.Find(c.Selectors.Title).First().Attr("title"); ok {
			title = strings.TrimSpace(attr)
		}
	}
	if title == "" {
		return nil, apperrors.NewParsing(c.Name, "title not found", nil)
	}
	if c.Selectors.Brand != "" {
		if brand := c.text(s, c.Selectors.Brand); brand != "" {
			title = brand + " - " + title
		}
	}

	if !c.matchesKeywords(title) {
		return nil, nil
	}

	price := c.text(s, c.Selectors.Price)
	if price == "" {
		return nil, apperrors.NewParsing(c.Name, "price not found for "+title, nil)
	}

	href, _ := s.Find(c.Selectors.Link).First().Attr("href")
	link := c.ResolveURL(href)
	if link == "" {
		return nil, apperrors.NewParsing(c.Name, "link not found for "+title, nil)
	}
	link = helpers.CanonicalURL(link)

	var imageURL string
	if c.Selectors.Image != "" {
		img := s.Find(c.Selectors.Image).First()
		src, ok := img.Attr("data-src")
		if !ok || strings.TrimSpace(src) == "" {
			src, _ = img.Attr("src")
		}
		imageURL = c.ProcessImage(src)
	}

	return &Listing{
		Id:       ListingID(link),
		Title:    title,
		Price:    price,
		URL:      link,
		ImageURL: imageURL,
		Source:   c.Name,
	}, nil
}

func (c *ConfigurableCrawler) isSoldOut(s *goquery.Selection) bool {
	if c.Selectors.SoldOut == "" {
		return false
	}
	markers := s.Find(c.Selectors.SoldOut)
	if c.Selectors.SoldOutText == "" {
		return markers.Length() > 0
	}
	soldOut := false
	markers.EachWithBreak(func(_ int, m *goquery.Selection) bool {
		soldOut = strings.EqualFold(strings.TrimSpace(m.Text()), c.Selectors.SoldOutText)
		return !soldOut
	})
	return soldOut
}

func (c *ConfigurableCrawler) matchesKeywords(title string) bool {
	if len(c.TitleKeywords) == 0 {
		return true
	}
	lower := strings.ToLower(title)
	for _, keyword := range c.TitleKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// nextPageURL resolves the pagination "next" link relative to the current page
func (c *ConfigurableCrawler) nextPageURL(doc *goquery.Document, current string) string {
	if c.Selectors.PaginationNext == "" {
		return ""
	}
	scope := doc.Selection
	if c.Selectors.PaginationContainer != "" {
		scope = doc.Find(c.Selectors.PaginationContainer).First()
		if scope.Length() == 0 {
			return ""
		}
	}
	href, ok := scope.Find(c.Selectors.PaginationNext).First().Attr("href")
	if !ok {
		return ""
	}
	next := helpers.ResolveURL(current, href)
	if u, err := url.Parse(next); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		c.logger().Debug().Str("href", href).Msg("Ignoring unfetchable next page link")
		return ""
	}
	return next
}

// text returns the whitespace-collapsed text of the first match
func (c *ConfigurableCrawler) text(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.Join(strings.Fields(s.Find(selector).First().Text()), " ")
}
