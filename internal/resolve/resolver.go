// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

// Package resolve fuzzy-matches unresolved catalog items against external
// metadata keys using the keyword index for candidate generation and a
// token-overlap scoring heuristic.
package resolve

import (
	"strings"

	"github.com/garmentry/loom/internal/index"
	"github.com/garmentry/loom/internal/models"
)

// Scoring thresholds and candidate bounds.
//
// The acceptance and early-exit thresholds are untuned heuristics carried
// over from the original reconciliation runs; they have not been validated
// against labeled ground truth. Changing them shifts match recall/precision,
// so they are kept as-is and exposed as named constants.
const (
	// AcceptThreshold is the minimum score for a candidate to be accepted.
	AcceptThreshold = 0.4

	// EarlyExitThreshold short-circuits candidate scanning once exceeded.
	EarlyExitThreshold = 0.8

	// containmentScore is assigned when one normalized string fully
	// contains the other.
	containmentScore = 0.8

	// MaxKeywordCandidates caps the candidate set gathered from the
	// keyword index.
	MaxKeywordCandidates = 100

	// MaxFallbackSample bounds the brute-force sample scanned when the
	// keyword index yields no candidates, avoiding full quadratic scans.
	MaxFallbackSample = 1000

	// keywordTokenMinLen: tokens strictly longer than this query the
	// keyword index.
	keywordTokenMinLen = 4

	// sharedTokenMinLen: tokens strictly longer than this participate in
	// the Jaccard overlap score.
	sharedTokenMinLen = 2
)

// Stats tracks resolution outcomes across one run.
type Stats struct {
	Evaluated int64 `json:"evaluated"`
	Matched   int64 `json:"matched"`
	Exact     int64 `json:"exact"`
	Unmatched int64 `json:"unmatched"`
}

// MatchRate returns the fraction of evaluated items that were matched.
func (s *Stats) MatchRate() float64 {
	if s.Evaluated == 0 {
		return 0
	}
	return float64(s.Matched) / float64(s.Evaluated)
}

// Resolver maps catalog item names to external keys. It never re-evaluates
// an already-resolved item; unmatched items are counted, never fatal.
type Resolver struct {
	idx   *index.Index[models.ExternalMeta]
	stats Stats
}

// New creates a Resolver over a built metadata index.
func New(idx *index.Index[models.ExternalMeta]) *Resolver {
	return &Resolver{idx: idx}
}

// Match is an accepted resolution result.
type Match struct {
	Key   string
	Score float64
}

// Resolve finds the best external key for a catalog item name.
// It returns false when no candidate clears the acceptance threshold.
func (r *Resolver) Resolve(name string) (Match, bool) {
	r.stats.Evaluated++

	norm := index.Normalize(name)
	if norm == "" {
		r.stats.Unmatched++
		return Match{}, false
	}

	// Exact-normalized-title hit is authoritative.
	if key, ok := r.idx.ExactTitle(norm); ok {
		r.stats.Matched++
		r.stats.Exact++
		return Match{Key: key, Score: 1.0}, true
	}

	tokens := index.Tokenize(norm, keywordTokenMinLen)
	candidates := r.idx.KeywordCandidates(tokens, MaxKeywordCandidates)
	if len(candidates) == 0 {
		candidates = r.idx.SampleKeys(MaxFallbackSample)
	}

	var best Match
	for _, key := range candidates {
		title := r.titleOf(key)
		if title == "" {
			continue
		}
		score := Score(norm, title)
		if score > best.Score {
			best = Match{Key: key, Score: score}
			if score > EarlyExitThreshold {
				break
			}
		}
	}

	if best.Score > AcceptThreshold {
		r.stats.Matched++
		return best, true
	}
	r.stats.Unmatched++
	return Match{}, false
}

// Stats returns a snapshot of the run's resolution statistics.
func (r *Resolver) Stats() Stats {
	return r.stats
}

// titleOf returns the dataset title recorded for a key.
func (r *Resolver) titleOf(key string) string {
	group := r.idx.Group(key)
	if len(group) == 0 {
		return ""
	}
	return group[0].Title
}

// Score computes the similarity between a normalized item name and an
// external title. Containment of one string in the other scores 0.8;
// otherwise the score is the Jaccard-style ratio of shared tokens
// (length > 2) over the token union.
func Score(normName, title string) float64 {
	normTitle := index.Normalize(title)
	if normName == "" || normTitle == "" {
		return 0
	}
	if normName == normTitle {
		return 1.0
	}
	if strings.Contains(normName, normTitle) || strings.Contains(normTitle, normName) {
		return containmentScore
	}

	a := tokenSet(index.Tokenize(normName, sharedTokenMinLen))
	b := tokenSet(index.Tokenize(normTitle, sharedTokenMinLen))
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	shared := 0
	union := len(a)
	for t := range b {
		if _, ok := a[t]; ok {
			shared++
		} else {
			union++
		}
	}

	return float64(shared) / float64(union)
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}
