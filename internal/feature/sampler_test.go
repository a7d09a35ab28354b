// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

package feature

import (
	"math/rand"
	"testing"
)

func TestSampleCompatible(t *testing.T) {
	peers := []string{"a", "b", "c", "d", "e"}

	t.Run("returns at most k peers excluding self", func(t *testing.T) {
		rng := rand.New(rand.NewSource(1))
		got := SampleCompatible(peers, "c", 3, rng)
		if len(got) != 3 {
			t.Fatalf("len = %d, want 3", len(got))
		}
		for _, id := range got {
			if id == "c" {
				t.Error("sample contains self")
			}
		}
	})

	t.Run("no peers yields nil", func(t *testing.T) {
		rng := rand.New(rand.NewSource(1))
		if got := SampleCompatible([]string{"only"}, "only", 3, rng); got != nil {
			t.Errorf("got %v, want nil", got)
		}
	})

	t.Run("fewer peers than k returns them all", func(t *testing.T) {
		rng := rand.New(rand.NewSource(1))
		got := SampleCompatible([]string{"a", "b"}, "z", 10, rng)
		if len(got) != 2 {
			t.Errorf("len = %d, want 2", len(got))
		}
	})

	t.Run("sample has no duplicates", func(t *testing.T) {
		rng := rand.New(rand.NewSource(7))
		got := SampleCompatible(peers, "", 5, rng)
		seen := make(map[string]struct{})
		for _, id := range got {
			if _, dup := seen[id]; dup {
				t.Errorf("duplicate id %q in sample %v", id, got)
			}
			seen[id] = struct{}{}
		}
	})

	t.Run("deterministic for a fixed seed", func(t *testing.T) {
		a := SampleCompatible(peers, "", 3, rand.New(rand.NewSource(42)))
		b := SampleCompatible(peers, "", 3, rand.New(rand.NewSource(42)))
		for i := range a {
			if a[i] != b[i] {
				t.Errorf("samples diverge at %d: %v vs %v", i, a, b)
			}
		}
	})
}
