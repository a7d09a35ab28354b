// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

// Package checkpoint persists per-stage resume cursors so an interrupted run
// can continue from the last committed batch instead of starting over.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// keyPrefix namespaces checkpoint keys in the Badger store.
const keyPrefix = "loom:checkpoint:"

// State is the persisted resume point for one pipeline stage.
type State struct {
	Stage     string    `json:"stage"`
	Cursor    string    `json:"cursor"`
	Processed int64     `json:"processed"`
	StartTime time.Time `json:"startTime"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Tracker persists and recalls stage checkpoints.
type Tracker interface {
	// Save persists the state for its stage.
	Save(ctx context.Context, state *State) error

	// Load retrieves the last saved state for a stage.
	// Returns nil, nil when no checkpoint exists.
	Load(ctx context.Context, stage string) (*State, error)

	// Clear removes a stage's checkpoint (for fresh runs).
	Clear(ctx context.Context, stage string) error
}

// OpenBadger opens the checkpoint database at dir.
func OpenBadger(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	return db, nil
}

// BadgerTracker implements Tracker on BadgerDB, surviving process restarts.
type BadgerTracker struct {
	db *badger.DB
}

// NewBadgerTracker creates a tracker over an open Badger instance.
func NewBadgerTracker(db *badger.DB) *BadgerTracker {
	return &BadgerTracker{db: db}
}

// Save persists the state under its stage key.
func (t *BadgerTracker) Save(_ context.Context, state *State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	return t.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+state.Stage), data)
	})
}

// Load retrieves the saved state for a stage, or nil when none exists.
func (t *BadgerTracker) Load(_ context.Context, stage string) (*State, error) {
	var state State
	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + stage))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &state)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if state.Stage == "" {
		return nil, nil
	}
	return &state, nil
}

// Clear removes a stage's checkpoint.
func (t *BadgerTracker) Clear(_ context.Context, stage string) error {
	return t.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(keyPrefix + stage))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// InMemoryTracker implements Tracker in memory, for tests and dry runs.
type InMemoryTracker struct {
	states map[string]State
}

// NewInMemoryTracker creates an empty in-memory tracker.
func NewInMemoryTracker() *InMemoryTracker {
	return &InMemoryTracker{states: make(map[string]State)}
}

// Save stores a copy of the state.
func (t *InMemoryTracker) Save(_ context.Context, state *State) error {
	t.states[state.Stage] = *state
	return nil
}

// Load returns a copy of the stored state, or nil when none exists.
func (t *InMemoryTracker) Load(_ context.Context, stage string) (*State, error) {
	state, ok := t.states[stage]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

// Clear removes the stored state.
func (t *InMemoryTracker) Clear(_ context.Context, stage string) error {
	delete(t.states, stage)
	return nil
}
