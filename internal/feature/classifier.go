// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

package feature

import "strings"

// Fixed category taxonomy.
const (
	CategoryTops        = "Tops"
	CategoryBottoms     = "Bottoms"
	CategoryDresses     = "Dresses"
	CategoryShoes       = "Shoes"
	CategoryAccessories = "Accessories"
	CategoryOther       = "Other"
)

// classifierRule maps keyword containment over the item name to a category.
type classifierRule struct {
	category string
	keywords []string
}

// classifierRules is evaluated in order; the first matching rule wins.
// Dresses precede Tops so "shirt dress" classifies as a dress, and Bottoms
// use plural forms ("shorts") to avoid matching "short sleeve".
var classifierRules = []classifierRule{
	{CategoryDresses, []string{"dress", "gown"}},
	{CategoryShoes, []string{"shoe", "sneaker", "boot", "sandal", "heel", "loafer", "slipper"}},
	{CategoryBottoms, []string{"jeans", "pants", "trousers", "shorts", "skirt", "leggings", "joggers", "chinos"}},
	{CategoryTops, []string{"shirt", "tee", "blouse", "sweater", "hoodie", "jacket", "coat", "cardigan", "tank", "polo", "top"}},
	{CategoryAccessories, []string{"hat", "cap", "belt", "scarf", "bag", "sock", "glove", "watch", "sunglasses", "wallet", "tie"}},
}

// Classify assigns an item name to the fixed taxonomy. Names matching no
// rule fall through to Other.
func Classify(name string) string {
	lower := strings.ToLower(name)
	for _, rule := range classifierRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.category
			}
		}
	}
	return CategoryOther
}
