// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

package feature

import "math/rand"

// DefaultCompatibleCount is the standard number of compatible items sampled
// per catalog item.
const DefaultCompatibleCount = 4

// SampleCompatible selects up to k peer item ids via uniform
// shuffle-then-slice, excluding self. Returns nil when no peers exist.
// The random source is injected for reproducible tests.
func SampleCompatible(peers []string, self string, k int, rng *rand.Rand) []string {
	if k <= 0 {
		return nil
	}

	pool := make([]string, 0, len(peers))
	for _, id := range peers {
		if id != self && id != "" {
			pool = append(pool, id)
		}
	}
	if len(pool) == 0 {
		return nil
	}

	rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	if len(pool) > k {
		pool = pool[:k]
	}
	return pool
}
