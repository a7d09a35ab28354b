// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

// Package variant expands a catalog item into size-by-color variants with
// proportional stock distribution. Regeneration fully replaces the prior
// variant list; it never merges incrementally.
package variant

import (
	"math"
	"math/rand"
	"strings"

	"github.com/garmentry/loom/internal/models"
)

// Color list bounds. Fewer than MinColors is padded from the default
// palette; more than MaxColors is truncated to bound combinatorial growth.
const (
	MinColors = 3
	MaxColors = 6
)

// DefaultPalette pads short color lists.
var DefaultPalette = []string{"Black", "White", "Navy", "Gray", "Beige", "Olive"}

// SizeStock is a size with its declared total stock, either from legacy
// per-size stock fields or summed from existing variants.
type SizeStock struct {
	Size  string
	Total int
}

// Generator builds variant sets. The random source is injected so stock
// splits are reproducible in tests.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator creates a Generator using the given random source.
func NewGenerator(rng *rand.Rand) *Generator {
	return &Generator{rng: rng}
}

// Generate produces the full size-by-color cross product. Each size's total
// stock is split across its colors so the per-size sum exactly equals the
// declared total. Variant price applies per-size and per-color adjustments
// to the base price, rounded to cents.
func (g *Generator) Generate(basePrice float64, sizes []SizeStock, colors []string) []models.Variant {
	colors = PadColors(colors)

	variants := make([]models.Variant, 0, len(sizes)*len(colors))
	for _, ss := range sizes {
		stocks := DistributeStock(ss.Total, len(colors), g.rng)
		for ci, color := range colors {
			variants = append(variants, models.Variant{
				Size:  ss.Size,
				Color: color,
				Stock: stocks[ci],
				Price: variantPrice(basePrice, ss.Size, ci),
			})
		}
	}
	return variants
}

// PadColors deduplicates the color list, pads it to MinColors from the
// default palette, and caps it at MaxColors.
func PadColors(colors []string) []string {
	seen := make(map[string]struct{}, len(colors))
	out := make([]string, 0, MaxColors)
	for _, c := range colors {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		lower := strings.ToLower(c)
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, c)
	}
	for _, c := range DefaultPalette {
		if len(out) >= MinColors {
			break
		}
		lower := strings.ToLower(c)
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, c)
	}
	if len(out) > MaxColors {
		out = out[:MaxColors]
	}
	return out
}

// DistributeStock splits total across n buckets using randomized weights
// normalized to the total, rounded, then corrected by nudging randomly
// chosen buckets until the sum exactly equals total. The result is always
// n non-negative integers summing to total, for any random source.
func DistributeStock(total, n int, rng *rand.Rand) []int {
	if n <= 0 {
		return nil
	}
	shares := make([]int, n)
	if total <= 0 {
		return shares
	}

	weights := make([]float64, n)
	var sum float64
	for i := range weights {
		weights[i] = rng.Float64() + 0.01
		sum += weights[i]
	}

	allocated := 0
	for i, w := range weights {
		shares[i] = int(math.Round(float64(total) * w / sum))
		allocated += shares[i]
	}

	// Correct rounding drift; no tolerance is accepted.
	for diff := total - allocated; diff != 0; {
		i := rng.Intn(n)
		switch {
		case diff > 0:
			shares[i]++
			diff--
		case shares[i] > 0:
			shares[i]--
			diff++
		}
	}
	return shares
}

// sizeAdjustments shift the base price per size.
var sizeAdjustments = map[string]float64{
	"xs":  -0.05,
	"s":   -0.02,
	"m":   0,
	"l":   0.02,
	"xl":  0.05,
	"xxl": 0.08,
}

// colorStep is the per-color-index price increment.
const colorStep = 0.01

// variantPrice computes base * (1 + sizeAdj + colorAdj), rounded to cents.
func variantPrice(base float64, size string, colorIndex int) float64 {
	adj := sizeAdjustments[strings.ToLower(size)]
	price := base * (1 + adj + colorStep*float64(colorIndex))
	return math.Round(price*100) / 100
}

// SizesFromVariants recovers per-size totals from an existing variant list,
// preserving first-seen size order. Used when an item already carries
// variants and their stock is the declared source of truth.
func SizesFromVariants(variants []models.Variant) []SizeStock {
	totals := make(map[string]int)
	var order []string
	for _, v := range variants {
		if _, ok := totals[v.Size]; !ok {
			order = append(order, v.Size)
		}
		totals[v.Size] += v.Stock
	}
	out := make([]SizeStock, 0, len(order))
	for _, size := range order {
		out = append(out, SizeStock{Size: size, Total: totals[size]})
	}
	return out
}
