package crawler

import (
	"context"
	"fmt"
)

// Collect runs every search term of c and returns the listings deduplicated by id.
// The first failing term aborts the collection.
func Collect(ctx context.Context, c Crawler) ([]Listing, error) {
	seen := make(map[string]bool)
	var listings []Listing

	for _, term := range c.SearchTerms() {
		for listing, err := range c.Search(ctx, term) {
			if err != nil {
				return nil, fmt.Errorf("search %q: %w", term, err)
			}
			if seen[listing.Id] {
				continue
			}
			seen[listing.Id] = true
			listings = append(listings, listing)
		}
	}

	return listings, nil
}
