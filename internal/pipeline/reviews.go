// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garmentry/loom/internal/catalog"
	"github.com/garmentry/loom/internal/identity"
	"github.com/garmentry/loom/internal/index"
	"github.com/garmentry/loom/internal/logging"
	"github.com/garmentry/loom/internal/models"
)

// RunReviews tops up resolved items with deduplicated external reviews,
// synthesizing quota-bounded reviewer identities as needed. The quota
// counter is initialized from the persisted identity count, never assumed
// zero. Rating and numReviews are fully recomputed from the merged list
// after every item.
func (p *Pipeline) RunReviews(ctx context.Context, opts RunOptions) (*StageStats, error) {
	if err := p.ensureReviews(ctx); err != nil {
		return nil, err
	}

	existing, err := p.store.Identities(ctx)
	if err != nil {
		return nil, fmt.Errorf("load identities: %w", err)
	}
	persisted, err := p.store.CountIdentities(ctx)
	if err != nil {
		return nil, fmt.Errorf("count identities: %w", err)
	}
	logging.Info().
		Int64("persisted_identities", persisted).
		Int64("quota", p.cfg.IdentityQuota).
		Msg("Identity quota initialized")

	h := &reviewsHandler{
		pipeline:   p,
		reviews:    p.reviews,
		reconciler: identity.NewReconciler(p.cfg.IdentityQuota, existing, persisted),
		target:     p.cfg.ReviewTarget,
	}
	stats, err := p.runStage(ctx, StageReviews, opts, h)

	stats.IdentitiesCreated = h.reconciler.Created()
	stats.Dropped = h.reconciler.Dropped()
	if stats.Dropped > 0 {
		logging.Warn().
			Int64("dropped_reviewers", stats.Dropped).
			Int64("identity_total", h.reconciler.Total()).
			Msg("Reviewer identities dropped at quota")
	}

	return stats, err
}

type reviewsHandler struct {
	pipeline   *Pipeline
	reviews    *index.Index[models.ExternalReview]
	reconciler *identity.Reconciler
	target     int
}

func (h *reviewsHandler) Filter() catalog.Filter {
	return catalog.Filter{Resolved: catalog.Bool(true)}
}

func (h *reviewsHandler) Process(ctx context.Context, items []models.CatalogItem, stats *StageStats) ([]catalog.Patch, error) {
	patches := make([]catalog.Patch, 0, len(items))
	for i := range items {
		item := &items[i]
		if h.target > 0 && len(item.Reviews) >= h.target {
			stats.Skipped++
			continue
		}
		group := h.reviews.Group(item.ExternalKey)
		if len(group) == 0 {
			stats.Skipped++
			continue
		}

		incoming := h.buildIncoming(group)
		merged, res := identity.MergeReviews(item.Reviews, incoming, h.target)
		stats.Duplicates += int64(res.Duplicates)
		stats.Invalid += int64(res.Invalid)
		if res.Added == 0 {
			stats.Skipped++
			continue
		}
		stats.ReviewsAdded += int64(res.Added)

		rating, numReviews := models.RecomputeAggregates(merged)
		patches = append(patches, catalog.Patch{
			ID: item.ID,
			Fields: map[string]any{
				"reviews":     merged,
				"rating":      rating,
				"num_reviews": numReviews,
			},
		})
	}

	// Persist newly minted identities before the reviews that reference
	// them. A unique-key conflict means another writer won the race; it is
	// a per-record skip, not a failure.
	if pending := h.reconciler.Pending(); len(pending) > 0 {
		if !h.pipeline.cfg.DryRun {
			ws := h.pipeline.store.InsertIdentities(ctx, pending)
			if ws.NotFound > 0 || ws.Failed > 0 {
				logging.Warn().
					Int64("conflicts", ws.NotFound).
					Int64("failed", ws.Failed).
					Msg("Identity inserts skipped")
			}
		}
		h.reconciler.Flush()
	}

	return patches, nil
}

// buildIncoming converts grouped dataset rows into internal reviews,
// resolving each reviewer key to an identity. Rows whose reviewer cannot be
// minted under quota are dropped.
func (h *reviewsHandler) buildIncoming(group []models.ExternalReview) []models.Review {
	incoming := make([]models.Review, 0, len(group))
	for i := range group {
		ext := &group[i]
		id, err := h.reconciler.Identity(ext.ReviewerKey)
		if errors.Is(err, identity.ErrQuotaExceeded) {
			// The reconciler counts the drop; the run summary reports it.
			continue
		}
		incoming = append(incoming, models.Review{
			ReviewerID: id.ID,
			Rating:     ext.Rating,
			Comment:    ext.Comment(),
			CreatedAt:  time.UnixMilli(ext.Timestamp).UTC(),
		})
	}
	return incoming
}
