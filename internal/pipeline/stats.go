// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

package pipeline

import "time"

// StageStats reports one stage run. Counters not meaningful for a stage
// stay zero.
type StageStats struct {
	Stage  string `json:"stage"`
	Cursor string `json:"cursor"`

	Total     int64 `json:"total"`
	Processed int64 `json:"processed"`
	Updated   int64 `json:"updated"`
	Skipped   int64 `json:"skipped"`
	NotFound  int64 `json:"notFound"`
	Errors    int64 `json:"errors"`

	// Resolver counters.
	Matched   int64   `json:"matched"`
	MatchRate float64 `json:"matchRate"`

	// Identity/review counters.
	IdentitiesCreated int64 `json:"identitiesCreated"`
	ReviewsAdded      int64 `json:"reviewsAdded"`
	Duplicates        int64 `json:"duplicates"`
	Invalid           int64 `json:"invalid"`
	Dropped           int64 `json:"dropped"`

	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	DryRun    bool      `json:"dryRun"`
}

// Duration returns the elapsed run time, live while the stage is running.
func (s *StageStats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Progress returns the percentage of items processed, 0-100.
func (s *StageStats) Progress() float64 {
	if s.Total <= 0 {
		return 100.0
	}
	return float64(s.Processed) / float64(s.Total) * 100.0
}

// ItemsPerSecond returns the average processing rate over the whole run.
func (s *StageStats) ItemsPerSecond() float64 {
	secs := s.Duration().Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.Processed) / secs
}

// throughputWindow is how many recent batches feed the rolling ETA.
const throughputWindow = 20

// throughput estimates the processing rate from a rolling window of recent
// batches, so the ETA tracks current speed rather than the whole-run mean.
type throughput struct {
	max     int
	samples []tpSample
}

type tpSample struct {
	n  int64
	at time.Time
}

func newThroughput(window int) *throughput {
	return &throughput{max: window}
}

// observe records a completed batch of n items.
func (t *throughput) observe(n int64, at time.Time) {
	t.samples = append(t.samples, tpSample{n: n, at: at})
	if len(t.samples) > t.max {
		t.samples = t.samples[1:]
	}
}

// rate returns items/sec across the window; 0 until two samples exist.
func (t *throughput) rate() float64 {
	if len(t.samples) < 2 {
		return 0
	}
	first := t.samples[0]
	last := t.samples[len(t.samples)-1]
	elapsed := last.at.Sub(first.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	var n int64
	for _, s := range t.samples[1:] {
		n += s.n
	}
	return float64(n) / elapsed
}

// eta estimates time to process remaining items at the current rate.
func (t *throughput) eta(remaining int64) time.Duration {
	if remaining <= 0 {
		return 0
	}
	r := t.rate()
	if r <= 0 {
		return 0
	}
	return time.Duration(float64(remaining)/r) * time.Second
}
