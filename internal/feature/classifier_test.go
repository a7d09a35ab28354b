// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

package feature

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Men's Classic Cotton T-Shirt", CategoryTops},
		{"Fleece Hoodie", CategoryTops},
		{"Slim Fit Jeans", CategoryBottoms},
		{"Pleated Skirt", CategoryBottoms},
		{"Running Shorts", CategoryBottoms},
		{"Summer Maxi Dress", CategoryDresses},
		{"Evening Gown", CategoryDresses},
		{"Shirt Dress", CategoryDresses}, // dress rule wins over shirt
		{"Leather Ankle Boots", CategoryShoes},
		{"White Sneakers", CategoryShoes},
		{"Wool Scarf", CategoryAccessories},
		{"Baseball Cap", CategoryAccessories},
		{"Short Sleeve Shirt", CategoryTops}, // "short" must not trip Bottoms
		{"Ceramic Mug", CategoryOther},
		{"", CategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.name); got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}
