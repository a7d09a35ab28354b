// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

package pipeline

import (
	"context"

	"github.com/garmentry/loom/internal/catalog"
	"github.com/garmentry/loom/internal/enrich"
	"github.com/garmentry/loom/internal/index"
	"github.com/garmentry/loom/internal/models"
)

// RunEnrich fills empty fields on resolved items from their matched
// external metadata. Patches are computed per fill-rule; an empty patch is
// a skip, so rerunning the stage is a no-op.
func (p *Pipeline) RunEnrich(ctx context.Context, opts RunOptions) (*StageStats, error) {
	if err := p.ensureMeta(ctx); err != nil {
		return nil, err
	}
	return p.runStage(ctx, StageEnrich, opts, &enrichHandler{meta: p.meta})
}

type enrichHandler struct {
	meta *index.Index[models.ExternalMeta]
}

func (h *enrichHandler) Filter() catalog.Filter {
	return catalog.Filter{Resolved: catalog.Bool(true)}
}

func (h *enrichHandler) Process(_ context.Context, items []models.CatalogItem, stats *StageStats) ([]catalog.Patch, error) {
	patches := make([]catalog.Patch, 0, len(items))
	for i := range items {
		item := &items[i]
		group := h.meta.Group(item.ExternalKey)
		if len(group) == 0 {
			stats.Skipped++
			continue
		}
		patch := enrich.BuildPatch(item, &group[0])
		if len(patch) == 0 {
			stats.Skipped++
			continue
		}
		patches = append(patches, catalog.Patch{ID: item.ID, Fields: patch})
	}
	return patches, nil
}
