// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

// Package index builds in-memory lookup structures over one pass of an
// external dataset: a group-by-key map, an inverted keyword index for fuzzy
// candidate generation, and an exact-normalized-title map.
//
// All structures are memory-bounded (capped fan-out per token, capped group
// size) because input file size is unbounded relative to process memory.
// An Index is immutable once built and never mutates source records.
package index

import "strings"

const (
	// DefaultKeywordMinLen: only tokens strictly longer than this feed the
	// keyword index.
	DefaultKeywordMinLen = 4

	// DefaultMaxKeysPerToken caps the fan-out of a single keyword index
	// entry. Very common tokens ("shirt") would otherwise accumulate
	// unbounded candidate lists.
	DefaultMaxKeysPerToken = 100

	// DefaultMaxPerGroup caps the number of records retained per group key.
	DefaultMaxPerGroup = 100
)

// Options bound the index structures.
type Options struct {
	KeywordMinLen   int
	MaxKeysPerToken int
	MaxPerGroup     int
}

// DefaultOptions returns the standard index bounds.
func DefaultOptions() Options {
	return Options{
		KeywordMinLen:   DefaultKeywordMinLen,
		MaxKeysPerToken: DefaultMaxKeysPerToken,
		MaxPerGroup:     DefaultMaxPerGroup,
	}
}

// Normalize lowercases and trims a title or item name for matching.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Tokenize splits a normalized string on whitespace and keeps tokens
// strictly longer than minLen.
func Tokenize(s string, minLen int) []string {
	fields := strings.Fields(Normalize(s))
	out := fields[:0]
	for _, f := range fields {
		if len(f) > minLen {
			out = append(out, f)
		}
	}
	return out
}

// Builder accumulates records for one dataset pass.
type Builder[T any] struct {
	opts Options
	idx  *Index[T]
}

// Index holds the built lookup structures for one pipeline run.
type Index[T any] struct {
	opts    Options
	groups  map[string][]T
	keys    []string            // group keys in insertion order
	keyword map[string][]string // normalized token -> bounded key set
	exact   map[string]string   // normalized title -> key
}

// NewBuilder creates a Builder with the given bounds. Zero option values
// fall back to defaults.
func NewBuilder[T any](opts Options) *Builder[T] {
	if opts.KeywordMinLen <= 0 {
		opts.KeywordMinLen = DefaultKeywordMinLen
	}
	if opts.MaxKeysPerToken <= 0 {
		opts.MaxKeysPerToken = DefaultMaxKeysPerToken
	}
	if opts.MaxPerGroup <= 0 {
		opts.MaxPerGroup = DefaultMaxPerGroup
	}
	return &Builder[T]{
		opts: opts,
		idx: &Index[T]{
			opts:    opts,
			groups:  make(map[string][]T),
			keyword: make(map[string][]string),
			exact:   make(map[string]string),
		},
	}
}

// Add inserts one record under the given group key. An empty title skips the
// keyword and exact-title structures (review rows carry no product title).
func (b *Builder[T]) Add(key, title string, rec T) {
	if key == "" {
		return
	}
	idx := b.idx

	group, seen := idx.groups[key]
	if !seen {
		idx.keys = append(idx.keys, key)
	}
	if len(group) < b.opts.MaxPerGroup {
		idx.groups[key] = append(group, rec)
	} else if !seen {
		idx.groups[key] = group
	}

	if title == "" {
		return
	}

	norm := Normalize(title)
	if norm == "" {
		return
	}
	// First title wins; later duplicates never reassign the exact map.
	if _, ok := idx.exact[norm]; !ok {
		idx.exact[norm] = key
	}

	for _, tok := range Tokenize(norm, b.opts.KeywordMinLen) {
		keys := idx.keyword[tok]
		if len(keys) >= b.opts.MaxKeysPerToken {
			continue
		}
		if containsKey(keys, key) {
			continue
		}
		idx.keyword[tok] = append(keys, key)
	}
}

// Build finalizes the index. The Builder must not be used afterwards.
func (b *Builder[T]) Build() *Index[T] {
	idx := b.idx
	b.idx = nil
	return idx
}

// Group returns the records stored under key, in insertion order.
func (x *Index[T]) Group(key string) []T {
	return x.groups[key]
}

// Keys returns all group keys in insertion order.
func (x *Index[T]) Keys() []string {
	return x.keys
}

// Len returns the number of distinct group keys.
func (x *Index[T]) Len() int {
	return len(x.keys)
}

// ExactTitle looks up a key by normalized title.
func (x *Index[T]) ExactTitle(norm string) (string, bool) {
	key, ok := x.exact[norm]
	return key, ok
}

// KeywordCandidates returns the union of keys indexed under the given
// tokens, deduplicated in first-seen order and capped at max.
func (x *Index[T]) KeywordCandidates(tokens []string, max int) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, tok := range tokens {
		for _, key := range x.keyword[tok] {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, key)
			if max > 0 && len(out) >= max {
				return out
			}
		}
	}
	return out
}

// SampleKeys returns up to n group keys. The sample is a bounded prefix of
// the insertion order, used as a fallback when keyword candidates are empty.
func (x *Index[T]) SampleKeys(n int) []string {
	if n <= 0 || n >= len(x.keys) {
		return x.keys
	}
	return x.keys[:n]
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
