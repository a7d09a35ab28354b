// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

// Package dataset streams newline-delimited JSON records from arbitrarily
// large files in constant memory. Malformed lines are skipped and counted;
// the stream never aborts on a parse error.
package dataset

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/garmentry/loom/internal/logging"
)

const (
	// maxLineSize bounds a single NDJSON line. Dataset rows with very long
	// description arrays stay well under this; anything larger is
	// discarded to the next newline and counted as malformed.
	maxLineSize = 4 << 20 // 4MB

	// readChunkSize is the buffered reader's chunk size.
	readChunkSize = 64 * 1024

	// DefaultProgressEvery is the default record interval between progress
	// notifications.
	DefaultProgressEvery = 50000
)

// Stats summarizes one pass over a dataset file.
type Stats struct {
	Read      int64 `json:"read"`
	Malformed int64 `json:"malformed"`
}

// ProgressFunc receives periodic progress notifications during a pass.
type ProgressFunc func(read int64)

// Reader streams records of type T from a newline-delimited JSON file.
// A Reader is restartable per run: every call to Each re-opens the file and
// scans from the beginning. It is not mid-file resumable.
type Reader[T any] struct {
	path          string
	progressEvery int64
	onProgress    ProgressFunc
}

// NewReader creates a streaming reader for the given NDJSON file path.
func NewReader[T any](path string) *Reader[T] {
	return &Reader[T]{
		path:          path,
		progressEvery: DefaultProgressEvery,
	}
}

// WithProgress installs a progress callback invoked every `every` parsed
// records. A non-positive interval falls back to the default.
func (r *Reader[T]) WithProgress(every int64, fn ProgressFunc) *Reader[T] {
	if every > 0 {
		r.progressEvery = every
	}
	r.onProgress = fn
	return r
}

// Each streams the file, invoking fn for every well-formed record.
// A fn error aborts the pass; parse errors never do. The returned Stats
// is valid even when an error is returned.
func (r *Reader[T]) Each(ctx context.Context, fn func(T) error) (Stats, error) {
	var stats Stats

	f, err := os.Open(r.path)
	if err != nil {
		return stats, fmt.Errorf("open dataset: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			logging.Warn().Err(closeErr).Str("path", r.path).Msg("Error closing dataset file")
		}
	}()

	br := bufio.NewReaderSize(f, readChunkSize)
	buf := make([]byte, 0, readChunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		// Accumulate one newline-terminated line in bounded memory. Once a
		// line crosses maxLineSize its remaining chunks are drained without
		// buffering, so a single oversized row can never abort the pass or
		// grow the buffer past the cap.
		buf = buf[:0]
		tooLong := false
		var readErr error
		for {
			chunk, err := br.ReadSlice('\n')
			if !tooLong {
				buf = append(buf, chunk...)
				if len(buf) > maxLineSize {
					tooLong = true
				}
			}
			if err == bufio.ErrBufferFull {
				continue
			}
			readErr = err
			break
		}

		if tooLong {
			stats.Malformed++
		} else if line := bytes.TrimSpace(buf); len(line) > 0 {
			var rec T
			if err := json.Unmarshal(line, &rec); err != nil {
				stats.Malformed++
			} else {
				stats.Read++
				if err := fn(rec); err != nil {
					return stats, err
				}
				if r.onProgress != nil && stats.Read%r.progressEvery == 0 {
					r.onProgress(stats.Read)
				}
			}
		}

		if readErr == io.EOF {
			return stats, nil
		}
		if readErr != nil {
			return stats, fmt.Errorf("read dataset: %w", readErr)
		}
	}
}
