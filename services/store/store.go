package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get for unknown ids
var ErrNotFound = errors.New("store: record not found")

// Record is the persisted discovery of a listing
type Record struct {
	Id           string    `db:"id" json:"id"`
	Title        string    `db:"title" json:"title"`
	Price        string    `db:"price" json:"price"`
	URL          string    `db:"url" json:"url"`
	ImageURL     string    `db:"image_url" json:"image_url,omitempty"`
	Source       string    `db:"source" json:"source"`
	DiscoveredAt time.Time `db:"discovered_at" json:"discovered_at"`
}

// Store is a write-once deduplication store keyed by listing id
type Store interface {
	// InsertIfAbsent records the listing and reports whether it was new
	InsertIfAbsent(ctx context.Context, record Record) (bool, error)

	// Close releases the underlying storage
	Close() error
}
