// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

// Package enrich computes per-field patches that fill empty catalog fields
// from matched external metadata. Merging is modeled as an explicit ordered
// list of (field, fill-rule) pairs evaluated against a typed snapshot, never
// implicit property probing.
//
// Fill rules only write fields that are currently empty. Authoritative
// fields (rating, numReviews, price) are overwritten whenever the external
// value is present and differs, which keeps reruns idempotent: a second pass
// over an already-enriched item yields an empty patch. Nothing is ever
// deleted.
package enrich

import (
	"strings"

	"github.com/garmentry/loom/internal/models"
)

// Patch is the set of field writes for one item. Keys are store column
// names. An empty Patch is a no-op and is counted as skipped by the caller.
type Patch map[string]any

// Snapshot pairs a catalog item with its matched external metadata.
type Snapshot struct {
	Item *models.CatalogItem
	Meta *models.ExternalMeta
}

// rule computes at most one field write from a snapshot.
type rule struct {
	field string
	apply func(s Snapshot) (any, bool)
}

// rules is the ordered merge plan. Order matters only for readability and
// stable patch logging; rules are independent.
var rules = []rule{
	{field: "description", apply: fillDescription},
	{field: "brand", apply: fillBrand},
	{field: "images", apply: unionImages},
	{field: "price", apply: overwritePrice},
	{field: "rating", apply: overwriteRating},
	{field: "num_reviews", apply: overwriteNumReviews},
}

// BuildPatch evaluates the merge plan for one resolved item.
func BuildPatch(item *models.CatalogItem, meta *models.ExternalMeta) Patch {
	s := Snapshot{Item: item, Meta: meta}
	patch := make(Patch)
	for _, r := range rules {
		if val, ok := r.apply(s); ok {
			patch[r.field] = val
		}
	}
	return patch
}

// fillDescription joins the external description paragraphs into the empty
// description field.
func fillDescription(s Snapshot) (any, bool) {
	if strings.TrimSpace(s.Item.Description) != "" {
		return nil, false
	}
	joined := strings.TrimSpace(strings.Join(s.Meta.Description, "\n\n"))
	if joined == "" {
		return nil, false
	}
	return joined, true
}

// fillBrand uses the external store name as the brand when none is curated.
func fillBrand(s Snapshot) (any, bool) {
	if strings.TrimSpace(s.Item.Brand) != "" {
		return nil, false
	}
	store := strings.TrimSpace(s.Meta.Store)
	if store == "" {
		return nil, false
	}
	return store, true
}

// unionImages merges external images into the existing list, deduplicated,
// preserving the curated order first. Emits a patch only when the union
// actually grows the list.
func unionImages(s Snapshot) (any, bool) {
	if len(s.Meta.Images) == 0 {
		return nil, false
	}
	seen := make(map[string]struct{}, len(s.Item.Images))
	union := make([]string, 0, len(s.Item.Images)+len(s.Meta.Images))
	for _, img := range s.Item.Images {
		if img == "" {
			continue
		}
		if _, dup := seen[img]; dup {
			continue
		}
		seen[img] = struct{}{}
		union = append(union, img)
	}
	added := false
	for _, img := range s.Meta.Images {
		if img == "" {
			continue
		}
		if _, dup := seen[img]; dup {
			continue
		}
		seen[img] = struct{}{}
		union = append(union, img)
		added = true
	}
	if !added {
		return nil, false
	}
	return union, true
}

// overwritePrice: price is externally authoritative when present.
func overwritePrice(s Snapshot) (any, bool) {
	if s.Meta.Price <= 0 || s.Meta.Price == s.Item.Price {
		return nil, false
	}
	return s.Meta.Price, true
}

// overwriteRating: rating is externally authoritative when present.
func overwriteRating(s Snapshot) (any, bool) {
	if s.Meta.AverageRating <= 0 || s.Meta.AverageRating == s.Item.Rating {
		return nil, false
	}
	return s.Meta.AverageRating, true
}

// overwriteNumReviews: the external review count is authoritative when present.
func overwriteNumReviews(s Snapshot) (any, bool) {
	if s.Meta.RatingNumber <= 0 || s.Meta.RatingNumber == s.Item.NumReviews {
		return nil, false
	}
	return s.Meta.RatingNumber, true
}
