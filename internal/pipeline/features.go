// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

package pipeline

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/garmentry/loom/internal/catalog"
	"github.com/garmentry/loom/internal/feature"
	"github.com/garmentry/loom/internal/logging"
	"github.com/garmentry/loom/internal/models"
)

// RunFeatures recomputes recommendation inputs for every item: a TF-IDF
// content vector over a vocabulary fitted on a bounded catalog sample, a
// rule-classified category, and a compatible-item sample drawn from
// same-category peers.
func (p *Pipeline) RunFeatures(ctx context.Context, opts RunOptions) (*StageStats, error) {
	h, err := p.prepareFeatures(ctx)
	if err != nil {
		return nil, err
	}
	return p.runStage(ctx, StageFeatures, opts, h)
}

// prepareFeatures makes one bounded prepass over the catalog: the first
// SampleSize items fit the vocabulary, and per-category peer pools (capped
// at PoolSize ids each) feed the compatible-item sampler.
func (p *Pipeline) prepareFeatures(ctx context.Context) (*featuresHandler, error) {
	vectorizer := feature.NewVectorizer()
	pools := make(map[string][]string)
	docs := make([]string, 0, p.cfg.SampleSize)

	cursor := ""
	for {
		items, err := p.store.NextItems(ctx, cursor, p.cfg.BatchSize, catalog.Filter{})
		if err != nil {
			return nil, fmt.Errorf("sample catalog: %w", err)
		}
		if len(items) == 0 {
			break
		}
		for i := range items {
			item := &items[i]
			category := feature.Classify(item.Name)
			if len(docs) < p.cfg.SampleSize {
				docs = append(docs, feature.Document(item.Name, item.Description, item.Brand, category))
			}
			if len(pools[category]) < p.cfg.PoolSize {
				pools[category] = append(pools[category], item.ID)
			}
		}
		cursor = items[len(items)-1].ID
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("no catalog documents to fit vocabulary on")
	}
	vectorizer.Fit(docs)
	logging.Info().
		Int("documents", len(docs)).
		Int("vocabulary", vectorizer.VocabSize()).
		Int("categories", len(pools)).
		Msg("Feature vocabulary fitted")

	return &featuresHandler{
		vectorizer: vectorizer,
		pools:      pools,
		count:      p.cfg.CompatibleCount,
		rng:        p.rng,
	}, nil
}

type featuresHandler struct {
	vectorizer *feature.Vectorizer
	pools      map[string][]string
	count      int
	rng        *rand.Rand
}

func (h *featuresHandler) Filter() catalog.Filter {
	return catalog.Filter{}
}

func (h *featuresHandler) Process(_ context.Context, items []models.CatalogItem, stats *StageStats) ([]catalog.Patch, error) {
	patches := make([]catalog.Patch, 0, len(items))
	for i := range items {
		item := &items[i]
		category := feature.Classify(item.Name)
		doc := feature.Document(item.Name, item.Description, item.Brand, category)
		vector, err := h.vectorizer.Transform(doc)
		if err != nil {
			return nil, fmt.Errorf("transform %s: %w", item.ID, err)
		}
		compatible := feature.SampleCompatible(h.pools[category], item.ID, h.count, h.rng)
		patches = append(patches, catalog.Patch{
			ID: item.ID,
			Fields: map[string]any{
				"category":         category,
				"feature_vector":   vector,
				"compatible_items": compatible,
			},
		})
	}
	return patches, nil
}
