// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/goccy/go-json"

	"github.com/garmentry/loom/internal/logging"
	"github.com/garmentry/loom/internal/models"
)

// ErrNotFound indicates a lookup by id matched no item.
var ErrNotFound = errors.New("catalog item not found")

// itemColumns is the fixed select order matched by scanItem.
var itemColumns = []string{
	"id", "name", "category", "brand", "description", "images",
	"price", "rating", "num_reviews", "reviews", "variants",
	"external_key", "feature_vector", "compatible_items",
	"created_at", "updated_at",
}

// Patch is one pending field update for an item.
type Patch struct {
	ID     string
	Fields map[string]any
}

// WriteStats counts the per-record outcomes of a bulk write.
type WriteStats struct {
	Applied  int64 `json:"applied"`
	NotFound int64 `json:"notFound"`
	Failed   int64 `json:"failed"`
}

// NextItems returns up to limit items with id strictly greater than cursor,
// ordered by id. Resuming by cursor rather than offset means a mutated
// backing set can never cause reprocessing or skipping.
func (s *Store) NextItems(ctx context.Context, cursor string, limit int, f Filter) ([]models.CatalogItem, error) {
	b := builder().
		Select(itemColumns...).
		From("catalog_items").
		Where(sq.Gt{"id": cursor}).
		OrderBy("id").
		Limit(uint64(limit))
	b = f.apply(b)

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer logRowsClose(rows)

	var items []models.CatalogItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// FindItemByID fetches a single item.
func (s *Store) FindItemByID(ctx context.Context, id string) (models.CatalogItem, error) {
	query, args, err := builder().
		Select(itemColumns...).
		From("catalog_items").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return models.CatalogItem{}, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return models.CatalogItem{}, fmt.Errorf("query item: %w", err)
	}
	defer logRowsClose(rows)

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return models.CatalogItem{}, err
		}
		return models.CatalogItem{}, ErrNotFound
	}
	return scanItem(rows)
}

// CountItems counts items matching the filter.
func (s *Store) CountItems(ctx context.Context, f Filter) (int64, error) {
	b := f.apply(builder().Select("count(*)").From("catalog_items"))
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	var n int64
	if err := s.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

// ApplyPatches applies each patch with continue-on-error semantics: a
// single failing record is logged and counted, never aborting the batch.
func (s *Store) ApplyPatches(ctx context.Context, patches []Patch) WriteStats {
	var stats WriteStats
	for _, p := range patches {
		if len(p.Fields) == 0 {
			continue
		}
		res, err := s.applyPatch(ctx, p)
		if err != nil {
			stats.Failed++
			logging.Error().Err(err).Str("item_id", p.ID).Msg("Failed to apply patch")
			continue
		}
		affected, err := res.RowsAffected()
		if err == nil && affected == 0 {
			stats.NotFound++
			continue
		}
		stats.Applied++
	}
	return stats
}

func (s *Store) applyPatch(ctx context.Context, p Patch) (sql.Result, error) {
	fields := make(map[string]any, len(p.Fields)+1)
	for col, val := range p.Fields {
		encoded, err := encodeValue(val)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", col, err)
		}
		fields[col] = encoded
	}
	fields["updated_at"] = time.Now().UTC()

	query, args, err := builder().
		Update("catalog_items").
		SetMap(fields).
		Where(sq.Eq{"id": p.ID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update: %w", err)
	}
	return s.conn.ExecContext(ctx, query, args...)
}

// InsertItems inserts items with continue-on-error semantics. Duplicate-id
// conflicts are per-record skips, not batch failures.
func (s *Store) InsertItems(ctx context.Context, items []models.CatalogItem) WriteStats {
	var stats WriteStats
	for _, item := range items {
		if err := s.insertItem(ctx, item); err != nil {
			stats.Failed++
			logging.Warn().Err(err).Str("item_id", item.ID).Msg("Failed to insert item")
			continue
		}
		stats.Applied++
	}
	return stats
}

func (s *Store) insertItem(ctx context.Context, item models.CatalogItem) error {
	images, err := jsonString(item.Images)
	if err != nil {
		return err
	}
	reviews, err := jsonString(item.Reviews)
	if err != nil {
		return err
	}
	variants, err := jsonString(item.Variants)
	if err != nil {
		return err
	}
	vector, err := jsonString(item.FeatureVector)
	if err != nil {
		return err
	}
	compatible, err := jsonString(item.CompatibleItems)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query, args, err := builder().
		Insert("catalog_items").
		Columns(itemColumns...).
		Values(
			item.ID, item.Name, item.Category, item.Brand, item.Description, images,
			item.Price, item.Rating, item.NumReviews, reviews, variants,
			item.ExternalKey, vector, compatible,
			createdAt, now,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// encodeValue converts patch values to SQL-storable forms. Scalars pass
// through; everything else is stored as its JSON encoding.
func encodeValue(val any) (any, error) {
	switch v := val.(type) {
	case nil, string, bool, int, int32, int64, float32, float64, time.Time:
		return v, nil
	default:
		return jsonString(v)
	}
}

// jsonString marshals v, normalizing nil slices to empty JSON arrays.
func jsonString(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	s := string(data)
	if s == "null" {
		s = "[]"
	}
	return s, nil
}

// scanItem reads one row in itemColumns order.
func scanItem(rows *sql.Rows) (models.CatalogItem, error) {
	var (
		item                                        models.CatalogItem
		images, reviews, variants, vector, compatSt string
	)
	err := rows.Scan(
		&item.ID, &item.Name, &item.Category, &item.Brand, &item.Description, &images,
		&item.Price, &item.Rating, &item.NumReviews, &reviews, &variants,
		&item.ExternalKey, &vector, &compatSt,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return models.CatalogItem{}, fmt.Errorf("scan item: %w", err)
	}

	for _, dec := range []struct {
		raw string
		out any
	}{
		{images, &item.Images},
		{reviews, &item.Reviews},
		{variants, &item.Variants},
		{vector, &item.FeatureVector},
		{compatSt, &item.CompatibleItems},
	} {
		if dec.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(dec.raw), dec.out); err != nil {
			return models.CatalogItem{}, fmt.Errorf("decode item %s: %w", item.ID, err)
		}
	}
	return item, nil
}
