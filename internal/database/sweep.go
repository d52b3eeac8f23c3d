// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DeleteFlaresBefore deletes flares whose occurrence time is strictly before
// cutoff. Rows with an unknown occurrence time are never deleted.
func (db *DB) DeleteFlaresBefore(ctx context.Context, cutoff time.Time) (n int64, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("DELETE", "flare_events", start, err) }()

	err = db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM flare_events WHERE occurred_at IS NOT NULL AND occurred_at < ?`, cutoff.UTC())
		if err != nil {
			return fmt.Errorf("failed to delete flares: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// CountUndatedFlares counts flares with no occurrence time, which the sweep
// cannot age out.
func (db *DB) CountUndatedFlares(ctx context.Context) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	var n int64
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM flare_events WHERE occurred_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count undated flares: %w", err)
	}
	return n, nil
}

// DeleteCMEsBefore deletes CME aggregates whose start is strictly before
// cutoff, children first, in one transaction. It returns the number of
// aggregates removed.
func (db *DB) DeleteCMEsBefore(ctx context.Context, cutoff time.Time) (n int64, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("DELETE", "cme_events", start, err) }()

	cutoff = cutoff.UTC()
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cme_model_runs WHERE cme_id IN
			(SELECT id FROM cme_events WHERE start_time < ?)`, cutoff); err != nil {
			return fmt.Errorf("failed to delete expired model runs: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM cme_analyses WHERE cme_id IN
			(SELECT id FROM cme_events WHERE start_time < ?)`, cutoff); err != nil {
			return fmt.Errorf("failed to delete expired analyses: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM cme_events WHERE start_time < ?`, cutoff)
		if err != nil {
			return fmt.Errorf("failed to delete expired cmes: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// DeleteAuditBefore deletes audit entries recorded strictly before cutoff.
func (db *DB) DeleteAuditBefore(ctx context.Context, cutoff time.Time) (n int64, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("DELETE", "reconcile_audit_log", start, err) }()

	res, err := db.conn.ExecContext(ctx, `DELETE FROM reconcile_audit_log WHERE recorded_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit entries: %w", err)
	}
	return res.RowsAffected()
}
