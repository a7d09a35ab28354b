// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

// Package config loads pipeline configuration via koanf with layered
// sources: built-in defaults, an optional YAML config file, then
// environment variables (highest priority).
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Config is the root pipeline configuration.
type Config struct {
	Logging  LoggingConfig  `koanf:"logging"`
	Database DatabaseConfig `koanf:"database"`
	Datasets DatasetsConfig `koanf:"datasets"`
	Pipeline PipelineConfig `koanf:"pipeline"`
	Feature  FeatureConfig  `koanf:"feature"`
	Variant  VariantConfig  `koanf:"variant"`
}

// LoggingConfig configures the global zerolog logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// DatabaseConfig configures the DuckDB catalog store.
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads" validate:"min=0"`
}

// DatasetsConfig points at the external NDJSON dataset files.
type DatasetsConfig struct {
	ReviewsPath   string `koanf:"reviews_path"`
	MetadataPath  string `koanf:"metadata_path"`
	ProgressEvery int64  `koanf:"progress_every" validate:"min=1"`
}

// PipelineConfig bounds the batch orchestrator.
type PipelineConfig struct {
	// BatchSize is the cursor page size per persistence round trip.
	BatchSize int `koanf:"batch_size" validate:"min=1"`

	// IdentityQuota is the hard cap Q on synthesized reviewer identities.
	IdentityQuota int64 `koanf:"identity_quota" validate:"min=0"`

	// ReviewTarget is the per-item review fill target; 0 disables topping
	// up and merges everything available.
	ReviewTarget int `koanf:"review_target" validate:"min=0"`

	// CheckpointDir holds the Badger resume-cursor store. Empty disables
	// persistent checkpoints (in-memory only).
	CheckpointDir string `koanf:"checkpoint_dir"`

	// DryRun runs all stages without issuing writes.
	DryRun bool `koanf:"dry_run"`
}

// FeatureConfig bounds the feature engine.
type FeatureConfig struct {
	// SampleSize bounds the catalog sample the vocabulary is fitted on.
	SampleSize int `koanf:"sample_size" validate:"min=1"`

	// CompatibleCount is the number of compatible items sampled per item.
	CompatibleCount int `koanf:"compatible_count" validate:"min=0"`

	// PoolSize bounds the per-category peer pool held in memory.
	PoolSize int `koanf:"pool_size" validate:"min=1"`
}

// VariantConfig configures variant generation.
type VariantConfig struct {
	// Seed fixes the stock-split random source; 0 seeds from the clock.
	Seed int64 `koanf:"seed"`
}

// defaultConfig returns a Config with all default values; the config file
// and environment override these.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Database: DatabaseConfig{
			Path:      "/data/loom.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		Datasets: DatasetsConfig{
			ReviewsPath:   "",
			MetadataPath:  "",
			ProgressEvery: 50000,
		},
		Pipeline: PipelineConfig{
			BatchSize:     200,
			IdentityQuota: 2512,
			ReviewTarget:  8,
			CheckpointDir: "",
			DryRun:        false,
		},
		Feature: FeatureConfig{
			SampleSize:      500,
			CompatibleCount: 4,
			PoolSize:        500,
		},
		Variant: VariantConfig{
			Seed: 0,
		},
	}
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
