// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

package pipeline

import (
	"context"
	"strings"

	"github.com/garmentry/loom/internal/catalog"
	"github.com/garmentry/loom/internal/models"
	"github.com/garmentry/loom/internal/variant"
)

// RunVariants regenerates each item's size×color variant list. Per-size
// stock totals are recovered from the existing variants, the color list is
// padded from the default palette, and the regenerated list fully replaces
// the prior one. Items without variant stock are skipped; there is nothing
// to distribute.
func (p *Pipeline) RunVariants(ctx context.Context, opts RunOptions) (*StageStats, error) {
	gen := variant.NewGenerator(p.rng)
	return p.runStage(ctx, StageVariants, opts, &variantsHandler{gen: gen})
}

type variantsHandler struct {
	gen *variant.Generator
}

func (h *variantsHandler) Filter() catalog.Filter {
	return catalog.Filter{}
}

func (h *variantsHandler) Process(_ context.Context, items []models.CatalogItem, stats *StageStats) ([]catalog.Patch, error) {
	patches := make([]catalog.Patch, 0, len(items))
	for i := range items {
		item := &items[i]
		sizes := variant.SizesFromVariants(item.Variants)
		if len(sizes) == 0 {
			stats.Skipped++
			continue
		}
		colors := variant.PadColors(existingColors(item.Variants))
		variants := h.gen.Generate(item.Price, sizes, colors)
		patches = append(patches, catalog.Patch{
			ID:     item.ID,
			Fields: map[string]any{"variants": variants},
		})
	}
	return patches, nil
}

// existingColors returns the distinct colors already on the item, in
// first-seen order.
func existingColors(variants []models.Variant) []string {
	seen := make(map[string]struct{})
	colors := make([]string, 0, len(variants))
	for _, v := range variants {
		key := strings.ToLower(v.Color)
		if _, ok := seen[key]; ok || v.Color == "" {
			continue
		}
		seen[key] = struct{}{}
		colors = append(colors, v.Color)
	}
	return colors
}
