// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

// Package feature derives recommendation inputs from catalog items: TF-IDF
// content vectors, rule-based category labels, and compatible-item samples.
package feature

import (
	"errors"
	"math"
	"sort"
	"strings"
	"unicode"
)

// minTokenLen: tokens of this length or shorter are dropped.
const minTokenLen = 2

// stopWords are excluded from the vocabulary and from document tokens.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "this": {}, "that": {},
	"are": {}, "was": {}, "from": {}, "your": {}, "you": {}, "our": {},
	"has": {}, "have": {}, "its": {}, "all": {}, "can": {}, "will": {},
	"not": {}, "but": {}, "one": {}, "more": {}, "made": {}, "make": {},
}

// ErrNotFitted is returned when Transform is called before Fit.
var ErrNotFitted = errors.New("vectorizer has not been fitted")

// Vectorizer computes TF-IDF content vectors over a vocabulary fitted from
// a bounded sample of catalog documents. The vocabulary ordering is fixed
// after Fit; every transformed vector has length VocabSize, including
// all-zero vectors for documents with no in-vocabulary tokens.
type Vectorizer struct {
	vocab      []string
	vocabIndex map[string]int
	idf        []float64
	fitted     bool
}

// NewVectorizer creates an unfitted vectorizer.
func NewVectorizer() *Vectorizer {
	return &Vectorizer{}
}

// Fit builds the vocabulary and per-term IDF from the given documents.
// Callers pass a bounded sample; Fit itself does not subsample. Refitting
// replaces the previous vocabulary entirely.
func (v *Vectorizer) Fit(docs []string) {
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, tok := range tokenize(doc) {
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	vocab := make([]string, 0, len(df))
	for tok := range df {
		vocab = append(vocab, tok)
	}
	// Sorted vocabulary gives a stable vector ordering across runs.
	sort.Strings(vocab)

	total := float64(len(docs))
	idf := make([]float64, len(vocab))
	vocabIndex := make(map[string]int, len(vocab))
	for i, tok := range vocab {
		vocabIndex[tok] = i
		idf[i] = math.Log(total / float64(df[tok]))
	}

	v.vocab = vocab
	v.vocabIndex = vocabIndex
	v.idf = idf
	v.fitted = true
}

// Transform computes the TF-IDF vector for a document against the fitted
// vocabulary. Out-of-vocabulary tokens are ignored; a document with no
// in-vocabulary tokens yields an all-zero vector of full length.
func (v *Vectorizer) Transform(text string) ([]float64, error) {
	if !v.fitted {
		return nil, ErrNotFitted
	}

	vec := make([]float64, len(v.vocab))
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return vec, nil
	}

	counts := make(map[int]int)
	for _, tok := range tokens {
		if i, ok := v.vocabIndex[tok]; ok {
			counts[i]++
		}
	}

	docLen := float64(len(tokens))
	for i, n := range counts {
		tf := float64(n) / docLen
		vec[i] = tf * v.idf[i]
	}
	return vec, nil
}

// VocabSize returns the fitted vocabulary size.
func (v *Vectorizer) VocabSize() int {
	return len(v.vocab)
}

// Fitted reports whether Fit has been called.
func (v *Vectorizer) Fitted() bool {
	return v.fitted
}

// Document concatenates the item text fields vectorized together.
func Document(name, description, brand, category string) string {
	return strings.Join([]string{name, description, brand, category}, " ")
}

// tokenize lowercases text, splits on non-alphabetic runes, and drops short
// tokens and stop-words.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) <= minTokenLen {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}
