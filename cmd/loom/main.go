// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

// Package main is the entry point for the Loom batch pipeline.
//
// Loom reconciles an existing product catalog against large external
// review/metadata datasets: it fuzzy-resolves catalog items to external
// keys, fills empty fields from matched metadata, tops items up with
// deduplicated reviews under a global reviewer-identity quota, and derives
// recommendation inputs (TF-IDF content vectors, category labels,
// compatible-item samples, size×color stock variants).
//
// # Usage
//
//	loom [flags] [stage]
//
// Stages: resolve, enrich, reviews, features, variants, or all (default).
//
// Flags:
//
//	-config string   config file path (overrides CONFIG_PATH)
//	-cursor string   resume after this item id, ignoring any checkpoint
//	-fresh           discard saved checkpoints and start from the beginning
//	-dry-run         run all stages without issuing writes
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, config file (config.yaml),
// built-in defaults. Dataset paths and the DuckDB catalog path come from
// LOOM_REVIEWS_PATH, LOOM_METADATA_PATH, and DUCKDB_PATH.
//
// # Exit behavior
//
// A failure to open the catalog store is fatal: the process exits non-zero
// after a best-effort close. Per-record errors inside a run never abort a
// batch; they are counted and reported in the run summary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/garmentry/loom/internal/catalog"
	"github.com/garmentry/loom/internal/checkpoint"
	"github.com/garmentry/loom/internal/config"
	"github.com/garmentry/loom/internal/logging"
	"github.com/garmentry/loom/internal/pipeline"
)

func main() {
	var (
		configPath = flag.String("config", "", "config file path (overrides CONFIG_PATH)")
		cursor     = flag.String("cursor", "", "resume after this item id, ignoring any checkpoint")
		fresh      = flag.Bool("fresh", false, "discard saved checkpoints and start from the beginning")
		dryRun     = flag.Bool("dry-run", false, "run without issuing writes")
	)
	flag.Parse()

	stage := "all"
	if flag.NArg() > 0 {
		stage = flag.Arg(0)
	}
	if flag.NArg() > 1 {
		fmt.Fprintf(os.Stderr, "unexpected arguments: %v\n", flag.Args()[1:])
		os.Exit(2)
	}

	if *configPath != "" {
		if err := os.Setenv(config.ConfigPathEnvVar, *configPath); err != nil {
			fmt.Fprintf(os.Stderr, "set config path: %v\n", err)
			os.Exit(2)
		}
	}

	cfg, err := config.LoadWithKoanf()
	if err != nil {
		// Default logger; configured logging is not available yet.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	if err := run(cfg, stage, pipeline.RunOptions{Cursor: *cursor, Fresh: *fresh}, *dryRun); err != nil {
		logging.Error().Err(err).Msg("Pipeline run failed")
		os.Exit(1)
	}
}

func run(cfg *config.Config, stage string, opts pipeline.RunOptions, dryRun bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Str("stage", stage).
		Str("db_path", cfg.Database.Path).
		Str("reviews_path", cfg.Datasets.ReviewsPath).
		Str("metadata_path", cfg.Datasets.MetadataPath).
		Bool("dry_run", dryRun || cfg.Pipeline.DryRun).
		Msg("Starting Loom")

	store, err := catalog.Open(ctx, catalog.Config{
		Path:      cfg.Database.Path,
		MaxMemory: cfg.Database.MaxMemory,
		Threads:   cfg.Database.Threads,
	})
	if err != nil {
		return fmt.Errorf("open catalog store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logging.Error().Err(closeErr).Msg("Error closing catalog store")
		}
	}()

	var tracker checkpoint.Tracker
	if cfg.Pipeline.CheckpointDir != "" {
		db, err := checkpoint.OpenBadger(cfg.Pipeline.CheckpointDir)
		if err != nil {
			return fmt.Errorf("open checkpoint store: %w", err)
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				logging.Error().Err(closeErr).Msg("Error closing checkpoint store")
			}
		}()
		tracker = checkpoint.NewBadgerTracker(db)
	}

	p := pipeline.New(pipeline.Config{
		ReviewsPath:     cfg.Datasets.ReviewsPath,
		MetadataPath:    cfg.Datasets.MetadataPath,
		ProgressEvery:   cfg.Datasets.ProgressEvery,
		BatchSize:       cfg.Pipeline.BatchSize,
		IdentityQuota:   cfg.Pipeline.IdentityQuota,
		ReviewTarget:    cfg.Pipeline.ReviewTarget,
		SampleSize:      cfg.Feature.SampleSize,
		CompatibleCount: cfg.Feature.CompatibleCount,
		PoolSize:        cfg.Feature.PoolSize,
		Seed:            cfg.Variant.Seed,
		DryRun:          dryRun || cfg.Pipeline.DryRun,
	}, store, tracker)

	var all []*pipeline.StageStats
	if stage == "all" {
		all, err = p.RunAll(ctx, opts)
	} else {
		var stats *pipeline.StageStats
		stats, err = p.Run(ctx, stage, opts)
		if stats != nil {
			all = append(all, stats)
		}
	}

	summarize(all)

	if errors.Is(err, context.Canceled) {
		logging.Warn().Msg("Run canceled; committed batches are kept, later batches are unprocessed")
	}
	return err
}

// summarize logs the end-of-run counters for each completed stage.
func summarize(all []*pipeline.StageStats) {
	for _, s := range all {
		ev := logging.Info().
			Str("stage", s.Stage).
			Int64("processed", s.Processed).
			Int64("updated", s.Updated).
			Int64("skipped", s.Skipped).
			Int64("not_found", s.NotFound).
			Int64("errors", s.Errors).
			Dur("duration", s.Duration()).
			Float64("items_per_second", s.ItemsPerSecond()).
			Bool("dry_run", s.DryRun)
		if s.Stage == pipeline.StageResolve {
			ev = ev.Int64("matched", s.Matched).Float64("match_rate", s.MatchRate)
		}
		if s.Stage == pipeline.StageReviews {
			ev = ev.
				Int64("reviews_added", s.ReviewsAdded).
				Int64("duplicates", s.Duplicates).
				Int64("invalid_comments", s.Invalid).
				Int64("identities_created", s.IdentitiesCreated).
				Int64("dropped_reviewers", s.Dropped)
		}
		ev.Msg("Run summary")
	}
}
