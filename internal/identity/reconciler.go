// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

// Package identity synthesizes quota-bounded reviewer identities for
// external reviewer keys and deduplicates merged reviews.
//
// The synthesized-identity counter is initialized at run start from the
// persisted identity set, never assumed zero: two consecutive runs with the
// same quota can never mint an identity past the cap. Already-existing
// identities are always reusable regardless of quota.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garmentry/loom/internal/models"
)

// ErrQuotaExceeded indicates the identity cap has been reached. A reviewer
// hitting it has their reviews dropped for the run; it is never fatal.
var ErrQuotaExceeded = errors.New("reviewer identity quota exceeded")

// emailDomain hosts the synthesized reviewer addresses.
const emailDomain = "reviews.garmentry.dev"

// Reconciler maps external reviewer keys to internal identities, minting new
// ones while quota remains. It is run-scoped and not safe for concurrent use;
// the pipeline assumes a single active instance.
type Reconciler struct {
	quota     int64
	persisted int64 // identity count at run start
	created   int64 // identities minted this run

	byKey   map[string]models.ReviewerIdentity
	refused map[string]struct{} // distinct reviewer keys refused due to quota
	pending []models.ReviewerIdentity

	now func() time.Time
}

// NewReconciler builds a run-scoped reconciler. existing is the full
// persisted identity set (bounded by the quota, so safe to hold in memory);
// persistedCount is the authoritative store count and may exceed
// len(existing) if identities were created outside this pipeline.
func NewReconciler(quota int64, existing []models.ReviewerIdentity, persistedCount int64) *Reconciler {
	byKey := make(map[string]models.ReviewerIdentity, len(existing))
	for _, id := range existing {
		byKey[id.ExternalKey] = id
	}
	if persistedCount < int64(len(existing)) {
		persistedCount = int64(len(existing))
	}
	return &Reconciler{
		quota:     quota,
		persisted: persistedCount,
		byKey:     byKey,
		refused:   make(map[string]struct{}),
		now:       time.Now,
	}
}

// Identity returns the internal identity for an external reviewer key,
// minting one if quota remains. It returns ErrQuotaExceeded when the cap
// would be crossed; existing identities are returned regardless of quota.
func (r *Reconciler) Identity(key string) (models.ReviewerIdentity, error) {
	if id, ok := r.byKey[key]; ok {
		return id, nil
	}
	if r.persisted+r.created >= r.quota {
		r.refused[key] = struct{}{}
		return models.ReviewerIdentity{}, ErrQuotaExceeded
	}

	id := Synthesize(key, r.now())
	r.created++
	r.byKey[key] = id
	r.pending = append(r.pending, id)
	return id, nil
}

// Pending returns identities minted since the last Flush, in creation order.
// The caller persists them with continue-on-error semantics; a duplicate-key
// conflict there means another writer won the race and is a per-record skip.
func (r *Reconciler) Pending() []models.ReviewerIdentity {
	return r.pending
}

// Flush clears the pending list after the caller has persisted it.
func (r *Reconciler) Flush() {
	r.pending = r.pending[:0]
}

// Created returns the number of identities minted this run.
func (r *Reconciler) Created() int64 { return r.created }

// Dropped returns the number of distinct reviewer keys refused due to
// quota. A reviewer with many review rows counts once.
func (r *Reconciler) Dropped() int64 { return int64(len(r.refused)) }

// Total returns the persisted-plus-minted identity count.
func (r *Reconciler) Total() int64 { return r.persisted + r.created }

// Synthesize derives a deterministic identity from an external reviewer key.
// The same key always produces the same id, name, and email, so re-imports
// reconcile to the same identity.
func Synthesize(key string, createdAt time.Time) models.ReviewerIdentity {
	sum := sha256.Sum256([]byte(key))
	suffix := hex.EncodeToString(sum[:])[:10]
	name := "reviewer-" + suffix
	return models.ReviewerIdentity{
		ID:          deterministicID(key).String(),
		ExternalKey: key,
		Name:        name,
		Email:       fmt.Sprintf("%s@%s", name, emailDomain),
		CreatedAt:   createdAt,
	}
}

// deterministicID creates a stable UUID from the reviewer key.
func deterministicID(key string) uuid.UUID {
	hash := sha256.Sum256([]byte("reviewer-identity:" + key))

	id, err := uuid.FromBytes(hash[:16])
	if err != nil {
		// Cannot happen with 16 bytes of input.
		return uuid.New()
	}

	// Set version 5 (hash based) and variant bits.
	id[6] = (id[6] & 0x0f) | 0x50
	id[8] = (id[8] & 0x3f) | 0x80

	return id
}
