package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type migration struct {
	version int
	name    string
	stmts   []string
}

// migrations are applied in order, each exactly once per database file
var migrations = []migration{
	{
		version: 1,
		name:    "create listings",
		stmts: []string{`
			CREATE TABLE IF NOT EXISTS listings (
				id            TEXT PRIMARY KEY,
				title         TEXT NOT NULL,
				price         TEXT NOT NULL,
				url           TEXT NOT NULL,
				image_url     TEXT,
				discovered_at DATETIME NOT NULL
			)`,
		},
	},
	{
		version: 2,
		name:    "index discovered_at",
		stmts: []string{
			`CREATE INDEX IF NOT EXISTS idx_listings_discovered_at ON listings(discovered_at)`,
		},
	},
	{
		version: 3,
		name:    "add listing source",
		stmts: []string{
			`ALTER TABLE listings ADD COLUMN source TEXT NOT NULL DEFAULT ''`,
		},
	},
}

// migrate provisions the tracking table and applies pending migrations
func migrate(ctx context.Context, db *sqlx.DB) (int, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)`); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	var applied []int
	if err := db.SelectContext(ctx, &applied, `SELECT version FROM schema_migrations`); err != nil {
		return 0, fmt.Errorf("read schema_migrations: %w", err)
	}
	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	count := 0
	for _, m := range migrations {
		if done[m.version] {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return count, fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		count++
	}
	return count, nil
}

func apply(ctx context.Context, db *sqlx.DB, m migration) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range m.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
		m.version, m.name, time.Now().UTC(),
	); err != nil {
		return err
	}
	return tx.Commit()
}
