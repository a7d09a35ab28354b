// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

package checkpoint

import (
	"context"
	"testing"
	"time"
)

func testTrackers(t *testing.T) map[string]Tracker {
	t.Helper()
	db, err := OpenBadger(t.TempDir())
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close badger: %v", err)
		}
	})
	return map[string]Tracker{
		"badger":   NewBadgerTracker(db),
		"inmemory": NewInMemoryTracker(),
	}
}

func TestTracker_SaveLoadClear(t *testing.T) {
	for name, tracker := range testTrackers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("load without save returns nil", func(t *testing.T) {
				state, err := tracker.Load(ctx, "resolve")
				if err != nil {
					t.Fatalf("Load: %v", err)
				}
				if state != nil {
					t.Errorf("state = %+v, want nil", state)
				}
			})

			t.Run("round trips a checkpoint", func(t *testing.T) {
				saved := &State{
					Stage:     "resolve",
					Cursor:    "item-0420",
					Processed: 420,
					StartTime: time.Unix(1700000000, 0).UTC(),
					UpdatedAt: time.Unix(1700000100, 0).UTC(),
				}
				if err := tracker.Save(ctx, saved); err != nil {
					t.Fatalf("Save: %v", err)
				}

				got, err := tracker.Load(ctx, "resolve")
				if err != nil {
					t.Fatalf("Load: %v", err)
				}
				if got == nil {
					t.Fatal("Load returned nil after Save")
				}
				if got.Cursor != "item-0420" || got.Processed != 420 {
					t.Errorf("state = %+v", got)
				}
			})

			t.Run("stages are independent", func(t *testing.T) {
				state, err := tracker.Load(ctx, "variants")
				if err != nil {
					t.Fatalf("Load: %v", err)
				}
				if state != nil {
					t.Errorf("unrelated stage state = %+v, want nil", state)
				}
			})

			t.Run("clear removes the checkpoint", func(t *testing.T) {
				if err := tracker.Clear(ctx, "resolve"); err != nil {
					t.Fatalf("Clear: %v", err)
				}
				state, err := tracker.Load(ctx, "resolve")
				if err != nil {
					t.Fatalf("Load: %v", err)
				}
				if state != nil {
					t.Errorf("state after Clear = %+v, want nil", state)
				}

				// Clearing twice is fine.
				if err := tracker.Clear(ctx, "resolve"); err != nil {
					t.Errorf("second Clear: %v", err)
				}
			})
		})
	}
}
