// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

package identity

import (
	"strings"

	"github.com/garmentry/loom/internal/models"
)

// dedupSep joins the reviewer id and comment into a collision-safe key.
const dedupSep = "\x1f"

// Dedup tracks (reviewerID, comment) keys across previously-persisted
// reviews and reviews staged earlier in the same run.
type Dedup struct {
	seen map[string]struct{}
}

// NewDedup creates an empty dedup set.
func NewDedup() *Dedup {
	return &Dedup{seen: make(map[string]struct{})}
}

// Seed registers previously-persisted reviews so reruns cannot re-add them.
func (d *Dedup) Seed(reviews []models.Review) {
	for _, rev := range reviews {
		d.seen[dedupKey(rev.ReviewerID, rev.Comment)] = struct{}{}
	}
}

// Admit registers the (reviewerID, comment) key, returning false if it was
// already present or the comment is blank.
func (d *Dedup) Admit(reviewerID, comment string) bool {
	if strings.TrimSpace(comment) == "" {
		return false
	}
	key := dedupKey(reviewerID, comment)
	if _, dup := d.seen[key]; dup {
		return false
	}
	d.seen[key] = struct{}{}
	return true
}

func dedupKey(reviewerID, comment string) string {
	return reviewerID + dedupSep + comment
}

// MergeResult reports one item's review merge. Duplicates counts reviews
// whose (reviewerID, comment) key was already present; Invalid counts
// reviews rejected for a blank comment.
type MergeResult struct {
	Added      int
	Duplicates int
	Invalid    int
}

// MergeReviews appends deduplicated incoming reviews to the existing list,
// stopping once target is reached (target <= 0 means no cap). The existing
// list seeds the dedup set, so merging is rerun-safe: it converges and stops
// once the target count is met.
func MergeReviews(existing, incoming []models.Review, target int) ([]models.Review, MergeResult) {
	d := NewDedup()
	d.Seed(existing)

	merged := existing
	var res MergeResult
	for _, rev := range incoming {
		if target > 0 && len(merged) >= target {
			break
		}
		if strings.TrimSpace(rev.Comment) == "" {
			res.Invalid++
			continue
		}
		if !d.Admit(rev.ReviewerID, rev.Comment) {
			res.Duplicates++
			continue
		}
		merged = append(merged, rev)
		res.Added++
	}
	return merged, res
}
