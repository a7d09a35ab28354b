// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

package pipeline

import (
	"context"
	"fmt"

	"github.com/garmentry/loom/internal/dataset"
	"github.com/garmentry/loom/internal/index"
	"github.com/garmentry/loom/internal/logging"
	"github.com/garmentry/loom/internal/models"
)

// ensureMeta builds the metadata index on first use: one streaming pass over
// the metadata dataset into a group-by-parentKey map, an inverted keyword
// index over normalized titles, and an exact-title map.
func (p *Pipeline) ensureMeta(ctx context.Context) error {
	if p.meta != nil {
		return nil
	}
	if p.cfg.MetadataPath == "" {
		return fmt.Errorf("metadata dataset path not configured")
	}

	reader := dataset.NewReader[models.ExternalMeta](p.cfg.MetadataPath).
		WithProgress(p.cfg.ProgressEvery, func(read int64) {
			logging.Info().Int64("records", read).Str("dataset", "metadata").Msg("Dataset scan progress")
		})

	b := index.NewBuilder[models.ExternalMeta](index.DefaultOptions())
	stats, err := reader.Each(ctx, func(m models.ExternalMeta) error {
		b.Add(m.ParentKey, m.Title, m)
		return nil
	})
	if err != nil {
		return fmt.Errorf("read metadata dataset: %w", err)
	}

	p.meta = b.Build()
	logging.Info().
		Int64("records", stats.Read).
		Int64("malformed", stats.Malformed).
		Int("keys", p.meta.Len()).
		Msg("Metadata index built")
	return nil
}

// ensureReviews builds the review group index on first use. Review rows
// carry no title, so only the group-by-parentKey map is populated.
func (p *Pipeline) ensureReviews(ctx context.Context) error {
	if p.reviews != nil {
		return nil
	}
	if p.cfg.ReviewsPath == "" {
		return fmt.Errorf("reviews dataset path not configured")
	}

	reader := dataset.NewReader[models.ExternalReview](p.cfg.ReviewsPath).
		WithProgress(p.cfg.ProgressEvery, func(read int64) {
			logging.Info().Int64("records", read).Str("dataset", "reviews").Msg("Dataset scan progress")
		})

	b := index.NewBuilder[models.ExternalReview](index.DefaultOptions())
	stats, err := reader.Each(ctx, func(r models.ExternalReview) error {
		b.Add(r.ParentKey, "", r)
		return nil
	})
	if err != nil {
		return fmt.Errorf("read reviews dataset: %w", err)
	}

	p.reviews = b.Build()
	logging.Info().
		Int64("records", stats.Read).
		Int64("malformed", stats.Malformed).
		Int("keys", p.reviews.Len()).
		Msg("Review index built")
	return nil
}
