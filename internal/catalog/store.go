// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

// Package catalog is the persistence collaborator for the pipeline. It
// exposes find-by-filter, find-by-id, count-by-filter, cursor-paged listing,
// bulk patch application, and continue-on-error inserts over a DuckDB file.
//
// Nested lists (images, reviews, variants, feature vector, compatible ids)
// are stored as JSON columns, mirroring the document layout the catalog was
// migrated from.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/garmentry/loom/internal/logging"
)

// Config holds store connection settings.
type Config struct {
	// Path is the DuckDB database file. ":memory:" or empty opens an
	// in-memory database (tests).
	Path string

	// MaxMemory caps DuckDB memory usage, e.g. "1GB".
	MaxMemory string

	// Threads is the DuckDB thread count; 0 uses runtime.NumCPU().
	Threads int
}

// Store wraps the DuckDB connection and provides catalog data access.
type Store struct {
	conn *sql.DB
}

// Open connects to the catalog database and bootstraps the schema.
// A connection failure here is fatal to the run: the caller logs it, closes,
// and exits non-zero.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "1GB"
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	connStr := path
	if path != ":memory:" {
		connStr = fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s", path, threads, maxMemory)
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open catalog database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("connect catalog database: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.initSchema(ctx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// Close performs a best-effort clean disconnect.
func (s *Store) Close() error {
	return s.conn.Close()
}

// initSchema creates the catalog tables when absent.
func (s *Store) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS catalog_items (
			id               VARCHAR PRIMARY KEY,
			name             VARCHAR NOT NULL,
			category         VARCHAR DEFAULT '',
			brand            VARCHAR DEFAULT '',
			description      VARCHAR DEFAULT '',
			images           VARCHAR DEFAULT '[]',
			price            DOUBLE  DEFAULT 0,
			rating           DOUBLE  DEFAULT 0,
			num_reviews      INTEGER DEFAULT 0,
			reviews          VARCHAR DEFAULT '[]',
			variants         VARCHAR DEFAULT '[]',
			external_key     VARCHAR DEFAULT '',
			feature_vector   VARCHAR DEFAULT '[]',
			compatible_items VARCHAR DEFAULT '[]',
			created_at       TIMESTAMP DEFAULT current_timestamp,
			updated_at       TIMESTAMP DEFAULT current_timestamp
		)`,
		`CREATE TABLE IF NOT EXISTS reviewer_identities (
			id           VARCHAR PRIMARY KEY,
			external_key VARCHAR UNIQUE NOT NULL,
			name         VARCHAR NOT NULL,
			email        VARCHAR NOT NULL,
			created_at   TIMESTAMP DEFAULT current_timestamp
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// builder returns the squirrel statement builder for DuckDB placeholders.
func builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// closeQuietly closes a resource and explicitly ignores any error.
// Used in error paths where Close() errors are not actionable.
func closeQuietly(conn *sql.DB) {
	if conn != nil {
		_ = conn.Close()
	}
}

// logRowsClose logs a failed rows close without failing the read.
func logRowsClose(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		logging.Warn().Err(err).Msg("Error closing result rows")
	}
}
