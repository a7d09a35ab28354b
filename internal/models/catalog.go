// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

// Package models defines the core data types shared across the pipeline:
// catalog items, their reviews and variants, synthesized reviewer identities,
// and the external dataset row shapes.
package models

import (
	"math"
	"time"
)

// CatalogItem is a sellable product record in the internal store.
//
// Items are created outside the pipeline's scope. The pipeline assigns
// ExternalKey once (never reassigned), fills enrichment fields idempotently,
// grows Reviews incrementally, and wholly regenerates Variants on each run.
type CatalogItem struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Brand       string    `json:"brand"`
	Description string    `json:"description"`
	Images      []string  `json:"images"`
	Price       float64   `json:"price"`
	Rating      float64   `json:"rating"`
	NumReviews  int       `json:"numReviews"`
	Reviews     []Review  `json:"reviews"`
	Variants    []Variant `json:"variants"`

	// ExternalKey links the item to an external dataset product key.
	// Empty means unresolved. Once set it is never reassigned.
	ExternalKey string `json:"externalKey"`

	FeatureVector   []float64 `json:"featureVector"`
	CompatibleItems []string  `json:"compatibleItems"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Resolved reports whether the item has been linked to an external key.
func (c *CatalogItem) Resolved() bool {
	return c.ExternalKey != ""
}

// Review is a single customer review attached to a catalog item.
type Review struct {
	ReviewerID string    `json:"reviewerId"`
	Rating     float64   `json:"rating"`
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Variant is a purchasable size/color combination of an item.
// Variants are unique by (Size, Color) and are fully regenerated as a set.
type Variant struct {
	Size  string  `json:"size"`
	Color string  `json:"color"`
	Stock int     `json:"stock"`
	Price float64 `json:"price"`
}

// ReviewerIdentity is a synthesized internal identity for an external
// reviewer key. The global count of these identities is bounded by a quota.
type ReviewerIdentity struct {
	ID          string    `json:"id"`
	ExternalKey string    `json:"externalKey"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"createdAt"`
}

// RecomputeAggregates derives the rating summary from the full review list.
// It is a full recomputation (sum over len), never incremental, so repeated
// merges cannot drift. Rating is rounded to one decimal place.
func RecomputeAggregates(reviews []Review) (rating float64, numReviews int) {
	numReviews = len(reviews)
	if numReviews == 0 {
		return 0, 0
	}
	var sum float64
	for _, r := range reviews {
		sum += r.Rating
	}
	rating = math.Round(sum/float64(numReviews)*10) / 10
	return rating, numReviews
}
