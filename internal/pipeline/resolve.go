// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

package pipeline

import (
	"context"

	"github.com/garmentry/loom/internal/catalog"
	"github.com/garmentry/loom/internal/logging"
	"github.com/garmentry/loom/internal/models"
	"github.com/garmentry/loom/internal/resolve"
)

// RunResolve fuzzy-matches unresolved catalog items against the metadata
// index and assigns each match its external key. Items that already carry a
// key are never visited: the stage filter excludes them, so a key, once
// set, is never reassigned.
func (p *Pipeline) RunResolve(ctx context.Context, opts RunOptions) (*StageStats, error) {
	if err := p.ensureMeta(ctx); err != nil {
		return nil, err
	}

	h := &resolveHandler{resolver: resolve.New(p.meta)}
	stats, err := p.runStage(ctx, StageResolve, opts, h)

	rs := h.resolver.Stats()
	stats.Matched = rs.Matched
	stats.MatchRate = rs.MatchRate()
	logging.Info().
		Int64("evaluated", rs.Evaluated).
		Int64("matched", rs.Matched).
		Int64("exact", rs.Exact).
		Int64("unmatched", rs.Unmatched).
		Float64("match_rate", rs.MatchRate()).
		Msg("Resolution statistics")

	return stats, err
}

type resolveHandler struct {
	resolver *resolve.Resolver
}

func (h *resolveHandler) Filter() catalog.Filter {
	return catalog.Filter{Resolved: catalog.Bool(false)}
}

func (h *resolveHandler) Process(_ context.Context, items []models.CatalogItem, stats *StageStats) ([]catalog.Patch, error) {
	patches := make([]catalog.Patch, 0, len(items))
	for i := range items {
		item := &items[i]
		match, ok := h.resolver.Resolve(item.Name)
		if !ok {
			stats.Skipped++
			continue
		}
		logging.Debug().
			Str("item_id", item.ID).
			Str("name", item.Name).
			Str("external_key", match.Key).
			Float64("score", match.Score).
			Msg("Item resolved")
		patches = append(patches, catalog.Patch{
			ID:     item.ID,
			Fields: map[string]any{"external_key": match.Key},
		})
	}
	return patches, nil
}
