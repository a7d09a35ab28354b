// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

package pipeline

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/garmentry/loom/internal/catalog"
	"github.com/garmentry/loom/internal/checkpoint"
	"github.com/garmentry/loom/internal/models"
)

// fakeStore is an in-memory Store for driving the orchestrator in tests.
type fakeStore struct {
	items      []models.CatalogItem
	identities []models.ReviewerIdentity
	writes     int
}

func (s *fakeStore) sortItems() {
	sort.Slice(s.items, func(i, j int) bool { return s.items[i].ID < s.items[j].ID })
}

func (s *fakeStore) matches(item *models.CatalogItem, f catalog.Filter) bool {
	if f.Resolved != nil && item.Resolved() != *f.Resolved {
		return false
	}
	if f.Category != "" && item.Category != f.Category {
		return false
	}
	if f.MaxReviews != nil && item.NumReviews > *f.MaxReviews {
		return false
	}
	return true
}

func (s *fakeStore) NextItems(_ context.Context, cursor string, limit int, f catalog.Filter) ([]models.CatalogItem, error) {
	s.sortItems()
	var out []models.CatalogItem
	for i := range s.items {
		if s.items[i].ID <= cursor || !s.matches(&s.items[i], f) {
			continue
		}
		out = append(out, s.items[i])
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) CountItems(_ context.Context, f catalog.Filter) (int64, error) {
	var n int64
	for i := range s.items {
		if s.matches(&s.items[i], f) {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) ApplyPatches(_ context.Context, patches []catalog.Patch) catalog.WriteStats {
	var ws catalog.WriteStats
	for _, p := range patches {
		idx := -1
		for i := range s.items {
			if s.items[i].ID == p.ID {
				idx = i
				break
			}
		}
		if idx < 0 {
			ws.NotFound++
			continue
		}
		item := &s.items[idx]
		for field, val := range p.Fields {
			switch field {
			case "external_key":
				item.ExternalKey = val.(string)
			case "description":
				item.Description = val.(string)
			case "brand":
				item.Brand = val.(string)
			case "images":
				item.Images = val.([]string)
			case "price":
				item.Price = val.(float64)
			case "rating":
				item.Rating = val.(float64)
			case "num_reviews":
				item.NumReviews = val.(int)
			case "reviews":
				item.Reviews = val.([]models.Review)
			case "variants":
				item.Variants = val.([]models.Variant)
			case "category":
				item.Category = val.(string)
			case "feature_vector":
				item.FeatureVector = val.([]float64)
			case "compatible_items":
				item.CompatibleItems = val.([]string)
			}
		}
		ws.Applied++
		s.writes++
	}
	return ws
}

func (s *fakeStore) CountIdentities(_ context.Context) (int64, error) {
	return int64(len(s.identities)), nil
}

func (s *fakeStore) Identities(_ context.Context) ([]models.ReviewerIdentity, error) {
	out := make([]models.ReviewerIdentity, len(s.identities))
	copy(out, s.identities)
	return out, nil
}

func (s *fakeStore) InsertIdentities(_ context.Context, ids []models.ReviewerIdentity) catalog.WriteStats {
	var ws catalog.WriteStats
	for _, id := range ids {
		dup := false
		for i := range s.identities {
			if s.identities[i].ExternalKey == id.ExternalKey {
				dup = true
				break
			}
		}
		if dup {
			ws.NotFound++
			continue
		}
		s.identities = append(s.identities, id)
		ws.Applied++
	}
	return ws
}

func (s *fakeStore) item(t *testing.T, id string) *models.CatalogItem {
	t.Helper()
	for i := range s.items {
		if s.items[i].ID == id {
			return &s.items[i]
		}
	}
	t.Fatalf("item %s not in store", id)
	return nil
}

func writeNDJSON(t *testing.T, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func testConfig(t *testing.T) Config {
	t.Helper()
	meta := writeNDJSON(t, "meta.ndjson",
		`{"parentKey":"B001","title":"Men's Cotton Classic Tee","description":["Soft cotton.","Pre-shrunk."],"price":24.99,"images":["https://img.test/tee-1.jpg"],"store":"Garmentry Basics","average_rating":4.4,"rating_number":128}`,
		`{"parentKey":"B002","title":"slim fit denim jeans","description":["Stretch denim."],"price":59.0,"images":[],"store":"Denim Co","average_rating":4.1,"rating_number":64}`,
	)
	reviews := writeNDJSON(t, "reviews.ndjson",
		`{"reviewerKey":"R1","parentKey":"B001","rating":5,"text":"Great shirt","timestamp":1700000000000}`,
		`{"reviewerKey":"R2","parentKey":"B001","rating":4,"text":"Fits well","timestamp":1700000100000}`,
		`{"reviewerKey":"R3","parentKey":"B001","rating":3,"text":"Shrank in wash","timestamp":1700000200000}`,
	)
	return Config{
		MetadataPath:    meta,
		ReviewsPath:     reviews,
		BatchSize:       2,
		IdentityQuota:   10,
		ReviewTarget:    8,
		SampleSize:      50,
		CompatibleCount: 2,
		PoolSize:        50,
		Seed:            1,
	}
}

func seedItems() []models.CatalogItem {
	return []models.CatalogItem{
		{ID: "it-1", Name: "Men's Classic Cotton T-Shirt", Price: 19.99},
		{ID: "it-2", Name: "Slim Fit Denim Jeans", Price: 49.99},
		{ID: "it-3", Name: "Leather Belt", ExternalKey: "B999", Price: 15.0},
		{ID: "it-4", Name: "Quantum Flux Capacitor", Price: 99.0},
	}
}

func TestRunResolve(t *testing.T) {
	store := &fakeStore{items: seedItems()}
	p := New(testConfig(t), store, nil)

	stats, err := p.RunResolve(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("RunResolve() error = %v", err)
	}

	if got := store.item(t, "it-1").ExternalKey; got != "B001" {
		t.Errorf("it-1 external key = %q, want %q", got, "B001")
	}
	if got := store.item(t, "it-2").ExternalKey; got != "B002" {
		t.Errorf("it-2 external key = %q, want %q", got, "B002")
	}
	if got := store.item(t, "it-3").ExternalKey; got != "B999" {
		t.Errorf("it-3 external key = %q, want %q (must never be reassigned)", got, "B999")
	}
	if got := store.item(t, "it-4").ExternalKey; got != "" {
		t.Errorf("it-4 external key = %q, want unresolved", got)
	}
	if stats.Matched != 2 {
		t.Errorf("Matched = %d, want 2", stats.Matched)
	}
	if stats.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", stats.Skipped)
	}

	// A second pass visits nothing new: resolved items leave the filter and
	// it-4 stays unmatched.
	stats2, err := p.RunResolve(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("second RunResolve() error = %v", err)
	}
	if stats2.Updated != 0 {
		t.Errorf("second run Updated = %d, want 0", stats2.Updated)
	}
	if got := store.item(t, "it-1").ExternalKey; got != "B001" {
		t.Errorf("it-1 external key changed on rerun: %q", got)
	}
}

func TestRunEnrich(t *testing.T) {
	store := &fakeStore{items: []models.CatalogItem{
		{ID: "it-1", Name: "Men's Classic Cotton T-Shirt", ExternalKey: "B001", Price: 19.99},
		{ID: "it-2", Name: "Unmatched", ExternalKey: "B777"},
	}}
	p := New(testConfig(t), store, nil)

	stats, err := p.RunEnrich(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("RunEnrich() error = %v", err)
	}
	if stats.Updated != 1 {
		t.Errorf("Updated = %d, want 1", stats.Updated)
	}
	if stats.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", stats.Skipped)
	}

	item := store.item(t, "it-1")
	if item.Description == "" {
		t.Error("description not filled")
	}
	if item.Brand != "Garmentry Basics" {
		t.Errorf("brand = %q, want %q", item.Brand, "Garmentry Basics")
	}
	if item.Price != 24.99 {
		t.Errorf("price = %v, want authoritative 24.99", item.Price)
	}
	if len(item.Images) != 1 {
		t.Errorf("images = %v, want 1 entry", item.Images)
	}

	// Rerunning yields empty patches only.
	stats2, err := p.RunEnrich(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("second RunEnrich() error = %v", err)
	}
	if stats2.Updated != 0 {
		t.Errorf("second run Updated = %d, want 0 (idempotent)", stats2.Updated)
	}
}

func TestRunReviews(t *testing.T) {
	store := &fakeStore{items: []models.CatalogItem{
		{ID: "it-1", Name: "Men's Classic Cotton T-Shirt", ExternalKey: "B001"},
	}}
	cfg := testConfig(t)
	cfg.IdentityQuota = 2
	p := New(cfg, store, nil)

	stats, err := p.RunReviews(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("RunReviews() error = %v", err)
	}

	if stats.IdentitiesCreated != 2 {
		t.Errorf("IdentitiesCreated = %d, want 2", stats.IdentitiesCreated)
	}
	if stats.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1 (third reviewer over quota)", stats.Dropped)
	}
	if len(store.identities) != 2 {
		t.Fatalf("persisted identities = %d, want 2", len(store.identities))
	}

	item := store.item(t, "it-1")
	if len(item.Reviews) != 2 {
		t.Fatalf("reviews = %d, want 2", len(item.Reviews))
	}
	if item.NumReviews != len(item.Reviews) {
		t.Errorf("numReviews = %d, want %d", item.NumReviews, len(item.Reviews))
	}
	wantRating := math.Round((5.0+4.0)/2*10) / 10
	if item.Rating != wantRating {
		t.Errorf("rating = %v, want %v", item.Rating, wantRating)
	}

	// Second run: identities are reused, duplicates rejected, quota holds.
	stats2, err := p.RunReviews(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("second RunReviews() error = %v", err)
	}
	if stats2.IdentitiesCreated != 0 {
		t.Errorf("second run IdentitiesCreated = %d, want 0", stats2.IdentitiesCreated)
	}
	if len(store.identities) != 2 {
		t.Errorf("persisted identities after rerun = %d, want 2", len(store.identities))
	}
	if got := len(store.item(t, "it-1").Reviews); got != 2 {
		t.Errorf("reviews after rerun = %d, want 2 (dedup)", got)
	}
}

func TestRunFeatures(t *testing.T) {
	store := &fakeStore{items: seedItems()}
	p := New(testConfig(t), store, nil)

	if _, err := p.RunFeatures(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("RunFeatures() error = %v", err)
	}

	var vecLen int
	for i := range store.items {
		item := &store.items[i]
		if item.Category == "" {
			t.Errorf("%s: category not assigned", item.ID)
		}
		if len(item.FeatureVector) == 0 {
			t.Errorf("%s: feature vector empty", item.ID)
			continue
		}
		if vecLen == 0 {
			vecLen = len(item.FeatureVector)
		} else if len(item.FeatureVector) != vecLen {
			t.Errorf("%s: vector length %d, want %d (fixed vocabulary)", item.ID, len(item.FeatureVector), vecLen)
		}
		for _, other := range item.CompatibleItems {
			if other == item.ID {
				t.Errorf("%s: compatible list contains self", item.ID)
			}
		}
		if len(item.CompatibleItems) > 2 {
			t.Errorf("%s: compatible list = %d entries, want <= 2", item.ID, len(item.CompatibleItems))
		}
	}
}

func TestRunVariants(t *testing.T) {
	store := &fakeStore{items: []models.CatalogItem{
		{ID: "it-1", Name: "Tee", Price: 20.0, Variants: []models.Variant{
			{Size: "S", Color: "Red", Stock: 10},
			{Size: "L", Color: "Red", Stock: 5},
		}},
		{ID: "it-2", Name: "No stock data"},
	}}
	p := New(testConfig(t), store, nil)

	stats, err := p.RunVariants(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("RunVariants() error = %v", err)
	}
	if stats.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", stats.Skipped)
	}

	item := store.item(t, "it-1")
	totals := make(map[string]int)
	seen := make(map[string]bool)
	colors := make(map[string]bool)
	for _, v := range item.Variants {
		totals[v.Size] += v.Stock
		key := v.Size + "/" + v.Color
		if seen[key] {
			t.Errorf("duplicate variant %s", key)
		}
		seen[key] = true
		colors[v.Color] = true
		if v.Stock < 0 {
			t.Errorf("variant %s has negative stock %d", key, v.Stock)
		}
	}
	if totals["S"] != 10 {
		t.Errorf("size S stock total = %d, want 10", totals["S"])
	}
	if totals["L"] != 5 {
		t.Errorf("size L stock total = %d, want 5", totals["L"])
	}
	if len(colors) < 3 {
		t.Errorf("colors = %d, want >= 3 after padding", len(colors))
	}
}

func TestDryRunWritesNothing(t *testing.T) {
	store := &fakeStore{items: seedItems()}
	cfg := testConfig(t)
	cfg.DryRun = true
	p := New(cfg, store, nil)

	stats, err := p.RunResolve(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("RunResolve() error = %v", err)
	}
	if stats.Updated == 0 {
		t.Error("dry run Updated = 0, want simulated updates counted")
	}
	if store.writes != 0 {
		t.Errorf("store writes = %d, want 0 in dry run", store.writes)
	}
	if got := store.item(t, "it-1").ExternalKey; got != "" {
		t.Errorf("it-1 external key = %q, want untouched", got)
	}
}

func TestCursorOptionSkipsEarlierItems(t *testing.T) {
	store := &fakeStore{items: seedItems()}
	p := New(testConfig(t), store, nil)

	if _, err := p.RunResolve(context.Background(), RunOptions{Cursor: "it-1"}); err != nil {
		t.Fatalf("RunResolve() error = %v", err)
	}
	if got := store.item(t, "it-1").ExternalKey; got != "" {
		t.Errorf("it-1 external key = %q, want skipped by cursor", got)
	}
	if got := store.item(t, "it-2").ExternalKey; got != "B002" {
		t.Errorf("it-2 external key = %q, want %q", got, "B002")
	}
}

func TestCheckpointClearedAfterCompleteRun(t *testing.T) {
	store := &fakeStore{items: seedItems()}
	tracker := checkpoint.NewInMemoryTracker()
	p := New(testConfig(t), store, tracker)

	if _, err := p.RunResolve(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("RunResolve() error = %v", err)
	}
	state, err := tracker.Load(context.Background(), StageResolve)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if state != nil {
		t.Errorf("checkpoint = %+v, want cleared after complete run", state)
	}
}

func TestRunAll(t *testing.T) {
	store := &fakeStore{items: seedItems()}
	p := New(testConfig(t), store, checkpoint.NewInMemoryTracker())

	all, err := p.RunAll(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}
	if len(all) != len(Stages()) {
		t.Fatalf("stage stats = %d, want %d", len(all), len(Stages()))
	}
	for i, stage := range Stages() {
		if all[i].Stage != stage {
			t.Errorf("stage[%d] = %q, want %q", i, all[i].Stage, stage)
		}
	}

	item := store.item(t, "it-1")
	if item.ExternalKey != "B001" {
		t.Errorf("it-1 external key = %q, want %q", item.ExternalKey, "B001")
	}
	if item.NumReviews != len(item.Reviews) {
		t.Errorf("numReviews = %d, want %d", item.NumReviews, len(item.Reviews))
	}
	if len(item.FeatureVector) == 0 {
		t.Error("feature vector not computed")
	}
}

func TestRunUnknownStage(t *testing.T) {
	p := New(testConfig(t), &fakeStore{}, nil)
	if _, err := p.Run(context.Background(), "transmogrify", RunOptions{}); err == nil {
		t.Error("Run(unknown stage) = nil error, want error")
	}
}
