// Loom - Offline Catalog Reconciliation and Feature Pipeline
// Copyright 2026 Garmentry
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/garmentry/loom

package catalog

import (
	"context"
	"fmt"

	"github.com/garmentry/loom/internal/logging"
	"github.com/garmentry/loom/internal/models"
)

// CountIdentities returns the persisted reviewer identity count. The
// reconciler seeds its quota counter from this, never assuming zero.
func (s *Store) CountIdentities(ctx context.Context) (int64, error) {
	var n int64
	err := s.conn.QueryRowContext(ctx, `SELECT count(*) FROM reviewer_identities`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return n, nil
}

// Identities returns the full persisted identity set. The set is bounded by
// the deployment quota, so loading it as a run-scoped cache is safe.
func (s *Store) Identities(ctx context.Context) ([]models.ReviewerIdentity, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, external_key, name, email, created_at
		 FROM reviewer_identities ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer logRowsClose(rows)

	var out []models.ReviewerIdentity
	for rows.Next() {
		var id models.ReviewerIdentity
		if err := rows.Scan(&id.ID, &id.ExternalKey, &id.Name, &id.Email, &id.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// InsertIdentities persists newly minted identities with continue-on-error
// semantics. A unique-key conflict means another writer created the identity
// first; that is a per-record skip guarded by the conflict clause, never a
// pipeline failure.
func (s *Store) InsertIdentities(ctx context.Context, ids []models.ReviewerIdentity) WriteStats {
	var stats WriteStats
	for _, id := range ids {
		res, err := s.conn.ExecContext(ctx,
			`INSERT INTO reviewer_identities (id, external_key, name, email, created_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT DO NOTHING`,
			id.ID, id.ExternalKey, id.Name, id.Email, id.CreatedAt)
		if err != nil {
			stats.Failed++
			logging.Warn().Err(err).Str("external_key", id.ExternalKey).Msg("Failed to insert identity")
			continue
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 0 {
			stats.NotFound++ // conflict skip
			continue
		}
		stats.Applied++
	}
	return stats
}
