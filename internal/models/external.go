// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

package models

import "strings"

// ExternalReview is one row of the newline-delimited review dataset.
type ExternalReview struct {
	ReviewerKey string  `json:"reviewerKey"`
	ParentKey   string  `json:"parentKey"`
	Rating      float64 `json:"rating"`
	Title       string  `json:"title"`
	Text        string  `json:"text"`
	Timestamp   int64   `json:"timestamp"`
}

// Comment returns the review body, falling back to the title when the
// dataset row carries no text.
func (r *ExternalReview) Comment() string {
	if s := strings.TrimSpace(r.Text); s != "" {
		return s
	}
	return strings.TrimSpace(r.Title)
}

// ExternalMeta is one row of the newline-delimited product metadata dataset.
type ExternalMeta struct {
	ParentKey     string   `json:"parentKey"`
	Title         string   `json:"title"`
	Description   []string `json:"description"`
	Price         float64  `json:"price"`
	Images        []string `json:"images"`
	Store         string   `json:"store"`
	Category      []string `json:"category"`
	AverageRating float64  `json:"average_rating"`
	RatingNumber  int      `json:"rating_number"`
}
