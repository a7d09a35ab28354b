// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

package catalog

import (
	sq "github.com/Masterminds/squirrel"
)

// Filter selects catalog items. Zero-value fields are ignored.
type Filter struct {
	// Resolved, when set, selects items with (true) or without (false) an
	// external key.
	Resolved *bool

	// Category selects items with the given category.
	Category string

	// MaxReviews, when set, selects items with at most this many reviews.
	MaxReviews *int
}

// apply adds the filter's conditions to a select builder.
func (f Filter) apply(b sq.SelectBuilder) sq.SelectBuilder {
	if f.Resolved != nil {
		if *f.Resolved {
			b = b.Where(sq.NotEq{"external_key": ""})
		} else {
			b = b.Where(sq.Eq{"external_key": ""})
		}
	}
	if f.Category != "" {
		b = b.Where(sq.Eq{"category": f.Category})
	}
	if f.MaxReviews != nil {
		b = b.Where(sq.LtOrEq{"num_reviews": *f.MaxReviews})
	}
	return b
}

// Bool returns a pointer to b, for Filter literals.
func Bool(b bool) *bool { return &b }

// Int returns a pointer to n, for Filter literals.
func Int(n int) *int { return &n }
