package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"sjsage522/listingwatcher/logger"
	apperrors "sjsage522/listingwatcher/pkg/errors"
)

const driverName = "sqlite"

func init() {
	sqlx.BindDriver(driverName, sqlx.QUESTION)
}

// SQLiteStore implements Store on a single SQLite file
type SQLiteStore struct {
	db   *sqlx.DB
	path string
	log  *logger.Logger
}

// NewSQLiteStore opens (creating if needed) the database at path and applies migrations
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, apperrors.NewStore(path, "create database directory", err)
			}
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, apperrors.NewStore(path, "open database", err)
	}
	// One writer connection serializes inserts across scraper goroutines
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperrors.NewStore(path, "ping database", err)
	}

	s := &SQLiteStore{db: db, path: path, log: logger.ForStore()}

	applied, err := migrate(ctx, db)
	if err != nil {
		db.Close()
		return nil, apperrors.NewStore(path, "migrate", err)
	}
	s.log.Info().Str("path", path).Int("applied_migrations", applied).Msg("Store ready")

	return s, nil
}

// InsertIfAbsent inserts the record unless its id exists; existing rows are never updated
func (s *SQLiteStore) InsertIfAbsent(ctx context.Context, record Record) (bool, error) {
	var imageURL sql.NullString
	if record.ImageURL != "" {
		imageURL = sql.NullString{String: record.ImageURL, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO listings (id, title, price, url, image_url, source, discovered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		record.Id, record.Title, record.Price, record.URL, imageURL, record.Source, record.DiscoveredAt.UTC(),
	)
	if err != nil {
		return false, apperrors.NewStore(s.path, "insert "+record.Id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.NewStore(s.path, "rows affected", err)
	}
	return rows == 1, nil
}

// Get returns the record stored for id
func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	var record Record
	err := s.db.GetContext(ctx, &record, `
		SELECT id, title, price, url, COALESCE(image_url, '') AS image_url, source, discovered_at
		FROM listings WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, apperrors.NewStore(s.path, "get "+id, err)
	}
	return record, nil
}

// Count returns the number of recorded listings
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM listings`); err != nil {
		return 0, apperrors.NewStore(s.path, "count", err)
	}
	return n, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.path, err)
	}
	return nil
}
