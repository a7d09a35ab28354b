// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

package dataset

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/garmentry/loom/internal/models"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.jsonl")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestReader_Each(t *testing.T) {
	t.Run("parses well-formed lines in order", func(t *testing.T) {
		path := writeTempFile(t,
			`{"reviewerKey":"u1","parentKey":"p1","rating":5,"text":"great"}`+"\n"+
				`{"reviewerKey":"u2","parentKey":"p1","rating":3,"text":"ok"}`+"\n")

		var got []models.ExternalReview
		stats, err := NewReader[models.ExternalReview](path).Each(context.Background(), func(r models.ExternalReview) error {
			got = append(got, r)
			return nil
		})
		if err != nil {
			t.Fatalf("Each returned error: %v", err)
		}
		if stats.Read != 2 || stats.Malformed != 0 {
			t.Errorf("stats = %+v, want Read=2 Malformed=0", stats)
		}
		if len(got) != 2 || got[0].ReviewerKey != "u1" || got[1].Rating != 3 {
			t.Errorf("unexpected records: %+v", got)
		}
	})

	t.Run("skips malformed lines without aborting", func(t *testing.T) {
		path := writeTempFile(t,
			`{"reviewerKey":"u1","parentKey":"p1","rating":5}`+"\n"+
				`{not json at all`+"\n"+
				"\n"+
				`{"reviewerKey":"u2","parentKey":"p2","rating":4}`+"\n")

		var count int
		stats, err := NewReader[models.ExternalReview](path).Each(context.Background(), func(models.ExternalReview) error {
			count++
			return nil
		})
		if err != nil {
			t.Fatalf("Each returned error: %v", err)
		}
		if count != 2 {
			t.Errorf("callback count = %d, want 2", count)
		}
		if stats.Malformed != 1 {
			t.Errorf("Malformed = %d, want 1", stats.Malformed)
		}
	})

	t.Run("discards over-long lines and keeps streaming", func(t *testing.T) {
		long := `{"reviewerKey":"huge","text":"` + strings.Repeat("x", maxLineSize) + `"}`
		path := writeTempFile(t,
			`{"reviewerKey":"u1","parentKey":"p1","rating":5}`+"\n"+
				long+"\n"+
				`{"reviewerKey":"u2","parentKey":"p2","rating":4}`+"\n")

		var got []string
		stats, err := NewReader[models.ExternalReview](path).Each(context.Background(), func(r models.ExternalReview) error {
			got = append(got, r.ReviewerKey)
			return nil
		})
		if err != nil {
			t.Fatalf("Each returned error: %v", err)
		}
		if stats.Read != 2 || stats.Malformed != 1 {
			t.Errorf("stats = %+v, want Read=2 Malformed=1", stats)
		}
		if len(got) != 2 || got[0] != "u1" || got[1] != "u2" {
			t.Errorf("records after over-long line = %v, want [u1 u2]", got)
		}
	})

	t.Run("counts a trailing over-long line without a newline", func(t *testing.T) {
		path := writeTempFile(t,
			`{"reviewerKey":"u1","parentKey":"p1","rating":5}`+"\n"+
				`{"text":"`+strings.Repeat("y", maxLineSize)+`"}`)

		stats, err := NewReader[models.ExternalReview](path).Each(context.Background(), func(models.ExternalReview) error { return nil })
		if err != nil {
			t.Fatalf("Each returned error: %v", err)
		}
		if stats.Read != 1 || stats.Malformed != 1 {
			t.Errorf("stats = %+v, want Read=1 Malformed=1", stats)
		}
	})

	t.Run("reports progress at the configured interval", func(t *testing.T) {
		content := ""
		for range 10 {
			content += `{"parentKey":"p"}` + "\n"
		}
		path := writeTempFile(t, content)

		var notifications []int64
		_, err := NewReader[models.ExternalReview](path).
			WithProgress(3, func(read int64) { notifications = append(notifications, read) }).
			Each(context.Background(), func(models.ExternalReview) error { return nil })
		if err != nil {
			t.Fatalf("Each returned error: %v", err)
		}
		want := []int64{3, 6, 9}
		if len(notifications) != len(want) {
			t.Fatalf("notifications = %v, want %v", notifications, want)
		}
		for i, n := range want {
			if notifications[i] != n {
				t.Errorf("notification[%d] = %d, want %d", i, notifications[i], n)
			}
		}
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		path := writeTempFile(t, `{"parentKey":"p"}`+"\n"+`{"parentKey":"q"}`+"\n")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := NewReader[models.ExternalReview](path).Each(ctx, func(models.ExternalReview) error { return nil })
		if err == nil {
			t.Fatal("expected context error, got nil")
		}
	})

	t.Run("missing file returns error", func(t *testing.T) {
		_, err := NewReader[models.ExternalReview]("/does/not/exist.jsonl").Each(context.Background(), func(models.ExternalReview) error { return nil })
		if err == nil {
			t.Fatal("expected open error, got nil")
		}
	})
}
