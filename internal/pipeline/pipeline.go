// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

// Package pipeline drives the catalog reconciliation stages in bounded
// batches over a strictly increasing item-id cursor. Each batch asks the
// store for "next N items after cursor", never "skip N", so a resumed run
// neither reprocesses nor skips items even if the backing set mutates
// between runs.
//
// The pipeline is single-threaded by design: one logical worker processes
// batches sequentially, and a single active instance is assumed. Writes are
// issued per batch with continue-on-error semantics; a failing record is
// counted, never fatal. Cancellation is run-granular: aborting mid-run
// leaves prior batches committed.
package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/garmentry/loom/internal/catalog"
	"github.com/garmentry/loom/internal/checkpoint"
	"github.com/garmentry/loom/internal/index"
	"github.com/garmentry/loom/internal/logging"
	"github.com/garmentry/loom/internal/models"
)

// Stage names, in execution order.
const (
	StageResolve  = "resolve"
	StageEnrich   = "enrich"
	StageReviews  = "reviews"
	StageFeatures = "features"
	StageVariants = "variants"
)

// Stages returns the stage names in the order RunAll executes them.
func Stages() []string {
	return []string{StageResolve, StageEnrich, StageReviews, StageFeatures, StageVariants}
}

// Store is the catalog persistence collaborator the pipeline writes to.
// *catalog.Store satisfies it; tests substitute an in-memory fake.
type Store interface {
	NextItems(ctx context.Context, cursor string, limit int, f catalog.Filter) ([]models.CatalogItem, error)
	CountItems(ctx context.Context, f catalog.Filter) (int64, error)
	ApplyPatches(ctx context.Context, patches []catalog.Patch) catalog.WriteStats
	CountIdentities(ctx context.Context) (int64, error)
	Identities(ctx context.Context) ([]models.ReviewerIdentity, error)
	InsertIdentities(ctx context.Context, ids []models.ReviewerIdentity) catalog.WriteStats
}

// Config bounds one pipeline instance.
type Config struct {
	ReviewsPath   string
	MetadataPath  string
	ProgressEvery int64

	BatchSize     int
	IdentityQuota int64
	ReviewTarget  int

	SampleSize      int
	CompatibleCount int
	PoolSize        int

	// Seed fixes the random source for stock splits and compatible-item
	// sampling; 0 seeds from the clock.
	Seed int64

	// DryRun runs every stage without issuing writes.
	DryRun bool
}

// RunOptions adjusts a single invocation.
type RunOptions struct {
	// Cursor overrides the resume point; empty means "use the saved
	// checkpoint, or start from the beginning".
	Cursor string

	// Fresh clears any saved checkpoint before starting.
	Fresh bool
}

// Pipeline orchestrates the reconciliation stages against one store.
type Pipeline struct {
	cfg     Config
	store   Store
	tracker checkpoint.Tracker
	rng     *rand.Rand

	// Dataset indexes, built lazily on first use and immutable afterwards.
	meta    *index.Index[models.ExternalMeta]
	reviews *index.Index[models.ExternalReview]
}

// New creates a pipeline. tracker may be nil to disable checkpointing.
func New(cfg Config, store Store, tracker checkpoint.Tracker) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Pipeline{
		cfg:     cfg,
		store:   store,
		tracker: tracker,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Run executes a single stage by name.
func (p *Pipeline) Run(ctx context.Context, stage string, opts RunOptions) (*StageStats, error) {
	switch stage {
	case StageResolve:
		return p.RunResolve(ctx, opts)
	case StageEnrich:
		return p.RunEnrich(ctx, opts)
	case StageReviews:
		return p.RunReviews(ctx, opts)
	case StageFeatures:
		return p.RunFeatures(ctx, opts)
	case StageVariants:
		return p.RunVariants(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
}

// RunAll executes every stage in order, stopping on the first stage error.
// The resume cursor option applies per stage via saved checkpoints, not via
// opts.Cursor, which is ignored here.
func (p *Pipeline) RunAll(ctx context.Context, opts RunOptions) ([]*StageStats, error) {
	all := make([]*StageStats, 0, len(Stages()))
	for _, stage := range Stages() {
		stats, err := p.Run(ctx, stage, RunOptions{Fresh: opts.Fresh})
		if stats != nil {
			all = append(all, stats)
		}
		if err != nil {
			return all, fmt.Errorf("stage %s: %w", stage, err)
		}
	}
	return all, nil
}

// stageHandler is one stage's per-batch logic. Process inspects a batch and
// returns the patches to commit; it updates the handler-owned counters
// (skipped, dropped, duplicates) on stats directly.
type stageHandler interface {
	Filter() catalog.Filter
	Process(ctx context.Context, items []models.CatalogItem, stats *StageStats) ([]catalog.Patch, error)
}

// runStage is the shared batch driver: count, resume, iterate by cursor,
// commit per batch, checkpoint, report.
func (p *Pipeline) runStage(ctx context.Context, stage string, opts RunOptions, h stageHandler) (*StageStats, error) {
	stats := &StageStats{
		Stage:     stage,
		StartTime: time.Now(),
		DryRun:    p.cfg.DryRun,
	}

	total, err := p.store.CountItems(ctx, h.Filter())
	if err != nil {
		return stats, fmt.Errorf("count items: %w", err)
	}
	stats.Total = total

	cursor, err := p.resumeCursor(ctx, stage, opts)
	if err != nil {
		return stats, err
	}

	logging.Info().
		Str("stage", stage).
		Int64("total", total).
		Str("cursor", cursor).
		Bool("dry_run", p.cfg.DryRun).
		Msg("Starting pipeline stage")

	tp := newThroughput(throughputWindow)

	for {
		select {
		case <-ctx.Done():
			stats.EndTime = time.Now()
			return stats, ctx.Err()
		default:
		}

		items, err := p.store.NextItems(ctx, cursor, p.cfg.BatchSize, h.Filter())
		if err != nil {
			stats.EndTime = time.Now()
			return stats, fmt.Errorf("read batch after %q: %w", cursor, err)
		}
		if len(items) == 0 {
			break
		}

		patches, err := h.Process(ctx, items, stats)
		if err != nil {
			stats.EndTime = time.Now()
			return stats, fmt.Errorf("process batch: %w", err)
		}

		stats.Processed += int64(len(items))
		p.commit(ctx, patches, stats)

		cursor = items[len(items)-1].ID
		stats.Cursor = cursor
		p.saveCheckpoint(ctx, stage, cursor, stats)

		tp.observe(int64(len(items)), time.Now())
		logging.Info().
			Str("stage", stage).
			Float64("progress_percent", stats.Progress()).
			Int64("processed", stats.Processed).
			Int64("total", stats.Total).
			Int64("updated", stats.Updated).
			Int64("skipped", stats.Skipped).
			Int64("errors", stats.Errors).
			Float64("items_per_second", tp.rate()).
			Dur("eta", tp.eta(stats.Total-stats.Processed)).
			Msg("Stage progress")
	}

	stats.EndTime = time.Now()
	p.clearCheckpoint(ctx, stage)

	logging.Info().
		Str("stage", stage).
		Int64("processed", stats.Processed).
		Int64("updated", stats.Updated).
		Int64("skipped", stats.Skipped).
		Int64("not_found", stats.NotFound).
		Int64("errors", stats.Errors).
		Dur("duration", stats.Duration()).
		Float64("items_per_second", stats.ItemsPerSecond()).
		Msg("Stage completed")

	return stats, nil
}

// commit applies a batch's patches unless this is a dry run.
func (p *Pipeline) commit(ctx context.Context, patches []catalog.Patch, stats *StageStats) {
	if len(patches) == 0 {
		return
	}
	if p.cfg.DryRun {
		stats.Updated += int64(len(patches))
		return
	}
	ws := p.store.ApplyPatches(ctx, patches)
	stats.Updated += ws.Applied
	stats.NotFound += ws.NotFound
	stats.Errors += ws.Failed
}

// resumeCursor picks the starting cursor: explicit option, then saved
// checkpoint, then the beginning.
func (p *Pipeline) resumeCursor(ctx context.Context, stage string, opts RunOptions) (string, error) {
	if opts.Fresh && p.tracker != nil {
		if err := p.tracker.Clear(ctx, stage); err != nil {
			return "", fmt.Errorf("clear checkpoint: %w", err)
		}
	}
	if opts.Cursor != "" {
		return opts.Cursor, nil
	}
	if opts.Fresh || p.tracker == nil {
		return "", nil
	}
	state, err := p.tracker.Load(ctx, stage)
	if err != nil {
		logging.Warn().Err(err).Str("stage", stage).Msg("Failed to load checkpoint, starting from beginning")
		return "", nil
	}
	if state == nil {
		return "", nil
	}
	logging.Info().
		Str("stage", stage).
		Str("cursor", state.Cursor).
		Int64("processed", state.Processed).
		Msg("Resuming from checkpoint")
	return state.Cursor, nil
}

// saveCheckpoint persists the batch boundary; failures are logged, not fatal.
func (p *Pipeline) saveCheckpoint(ctx context.Context, stage, cursor string, stats *StageStats) {
	if p.tracker == nil || p.cfg.DryRun {
		return
	}
	state := &checkpoint.State{
		Stage:     stage,
		Cursor:    cursor,
		Processed: stats.Processed,
		StartTime: stats.StartTime,
		UpdatedAt: time.Now(),
	}
	if err := p.tracker.Save(ctx, state); err != nil {
		logging.Warn().Err(err).Str("stage", stage).Msg("Failed to save checkpoint")
	}
}

// clearCheckpoint removes the stage checkpoint after a complete pass so the
// next run starts from the beginning.
func (p *Pipeline) clearCheckpoint(ctx context.Context, stage string) {
	if p.tracker == nil || p.cfg.DryRun {
		return
	}
	if err := p.tracker.Clear(ctx, stage); err != nil {
		logging.Warn().Err(err).Str("stage", stage).Msg("Failed to clear checkpoint")
	}
}
