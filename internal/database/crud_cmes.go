// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/heliotrack/internal/models"
)

// UpsertOutcome is the effect of UpsertCME.
type UpsertOutcome string

const (
	CMEInserted  UpsertOutcome = "inserted"
	CMEReplaced  UpsertOutcome = "replaced"
	CMEUnchanged UpsertOutcome = "unchanged"
)

// UpsertCME stores cme keyed on ActivityID. A new activity is inserted with
// its whole tree. A known activity whose content hash differs has its
// analyses and model runs deleted and reinserted and its parent row updated
// in the same transaction, keeping id, seq and ingested_at. An identical
// aggregate is left untouched. cme is normalized and its identity fields are
// filled from the stored row.
func (db *DB) UpsertCME(ctx context.Context, cme *models.CmeEvent, now time.Time) (outcome UpsertOutcome, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("UPSERT", "cme_events", start, err) }()

	cme.Normalize()
	hash := cme.ContentHash()
	now = now.UTC()

	err = db.withTx(ctx, func(tx *sql.Tx) error {
		var (
			id         uuid.UUID
			seq        int64
			storedHash string
			ingestedAt time.Time
		)
		scanErr := tx.QueryRowContext(ctx,
			`SELECT id, seq, content_hash, ingested_at FROM cme_events WHERE activity_id = ?`,
			cme.ActivityID).Scan(&id, &seq, &storedHash, &ingestedAt)

		switch {
		case errors.Is(scanErr, sql.ErrNoRows):
			cme.ID = uuid.New()
			cme.IngestedAt = now
			cme.UpdatedAt = now
			if err := tx.QueryRowContext(ctx, `INSERT INTO cme_events (
				id, activity_id, start_time, source_location, source_region,
				associated_flare, note, link, content_hash, ingested_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING seq`,
				cme.ID, cme.ActivityID, cme.StartTime.UTC(), cme.SourceLocation, cme.SourceRegion,
				cme.AssociatedFlareRef, cme.NoteText, cme.Link, hash, now, now).Scan(&cme.Seq); err != nil {
				return fmt.Errorf("failed to insert cme %s: %w", cme.ActivityID, err)
			}
			outcome = CMEInserted

		case scanErr != nil:
			return fmt.Errorf("failed to look up cme %s: %w", cme.ActivityID, scanErr)

		case storedHash == hash:
			cme.ID, cme.Seq, cme.IngestedAt = id, seq, ingestedAt
			outcome = CMEUnchanged
			return nil

		default:
			cme.ID, cme.Seq, cme.IngestedAt, cme.UpdatedAt = id, seq, ingestedAt, now
			if _, err := tx.ExecContext(ctx, `DELETE FROM cme_model_runs WHERE cme_id = ?`, id); err != nil {
				return fmt.Errorf("failed to delete model runs of %s: %w", cme.ActivityID, err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM cme_analyses WHERE cme_id = ?`, id); err != nil {
				return fmt.Errorf("failed to delete analyses of %s: %w", cme.ActivityID, err)
			}
			if _, err := tx.ExecContext(ctx, `UPDATE cme_events SET
				start_time = ?, source_location = ?, source_region = ?, associated_flare = ?,
				note = ?, link = ?, content_hash = ?, updated_at = ?
			WHERE id = ?`,
				cme.StartTime.UTC(), cme.SourceLocation, cme.SourceRegion, cme.AssociatedFlareRef,
				cme.NoteText, cme.Link, hash, now, id); err != nil {
				return fmt.Errorf("failed to update cme %s: %w", cme.ActivityID, err)
			}
			outcome = CMEReplaced
		}
		return insertChildren(ctx, tx, cme)
	})
	return outcome, err
}

func insertChildren(ctx context.Context, tx *sql.Tx, cme *models.CmeEvent) error {
	for i := range cme.Analyses {
		a := &cme.Analyses[i]
		a.ID = uuid.New()
		a.CmeID = cme.ID
		if _, err := tx.ExecContext(ctx, `INSERT INTO cme_analyses (
			id, cme_id, analysis_type, speed, direction_longitude, direction_latitude, half_angle
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.CmeID, string(a.Type), a.Speed, a.DirectionLongitude, a.DirectionLatitude, a.HalfAngle); err != nil {
			return fmt.Errorf("failed to insert %s analysis of %s: %w", a.Type, cme.ActivityID, err)
		}
		for j := range a.Runs {
			r := &a.Runs[j]
			r.ID = uuid.New()
			r.AnalysisID = a.ID
			if _, err := tx.ExecContext(ctx, `INSERT INTO cme_model_runs (
				id, analysis_id, cme_id, run_number, target_body,
				predicted_arrival, kp_low, kp_high, closest_approach
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				r.ID, r.AnalysisID, cme.ID, r.RunNumber, r.TargetBody,
				utcPtr(r.PredictedArrival), r.KpLow, r.KpHigh, r.ClosestApproach); err != nil {
				return fmt.Errorf("failed to insert run %d/%s of %s: %w", r.RunNumber, r.TargetBody, cme.ActivityID, err)
			}
		}
	}
	return nil
}

// GetCMEByActivityID returns the aggregate stored under activityID with its
// analyses and model runs.
func (db *DB) GetCMEByActivityID(ctx context.Context, activityID string) (*models.CmeEvent, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var out *models.CmeEvent
	err := db.withReadTx(ctx, func(tx *sql.Tx) error {
		cme, err := scanCME(tx.QueryRowContext(ctx,
			`SELECT `+cmeColumns+` FROM cme_events WHERE activity_id = ?`, activityID))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("cme %s: %w", activityID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to get cme %s: %w", activityID, err)
		}
		list := []models.CmeEvent{cme}
		if err := loadChildren(ctx, tx, list,
			`c.activity_id = ?`, activityID); err != nil {
			return err
		}
		out = &list[0]
		return nil
	})
	return out, err
}

// CountCMEs returns the number of stored CME aggregates.
func (db *DB) CountCMEs(ctx context.Context) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	var n int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM cme_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cmes: %w", err)
	}
	return n, nil
}

const cmeColumns = `id, seq, activity_id, start_time, source_location, source_region,
	associated_flare, note, link, ingested_at, updated_at`

func scanCME(row rowScanner) (models.CmeEvent, error) {
	var (
		c              models.CmeEvent
		location, note sql.NullString
		link           sql.NullString
	)
	err := row.Scan(&c.ID, &c.Seq, &c.ActivityID, &c.StartTime, &location, &c.SourceRegion,
		&c.AssociatedFlareRef, &note, &link, &c.IngestedAt, &c.UpdatedAt)
	c.SourceLocation, c.NoteText, c.Link = location.String, note.String, link.String
	return c, err
}

// loadChildren attaches analyses and runs to cmes, selecting children whose
// parent satisfies where (written against alias c of cme_events).
func loadChildren(ctx context.Context, tx *sql.Tx, cmes []models.CmeEvent, where string, args ...any) error {
	if len(cmes) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]int, len(cmes))
	for i := range cmes {
		byID[cmes[i].ID] = i
		cmes[i].Analyses = nil
	}

	rows, err := tx.QueryContext(ctx, `SELECT a.id, a.cme_id, a.analysis_type, a.speed,
			a.direction_longitude, a.direction_latitude, a.half_angle
		FROM cme_analyses a JOIN cme_events c ON c.id = a.cme_id
		WHERE `+where+`
		ORDER BY a.analysis_type`, args...)
	if err != nil {
		return fmt.Errorf("failed to query analyses: %w", err)
	}
	type loc struct{ cme, analysis int }
	analyses := make(map[uuid.UUID]loc)
	for rows.Next() {
		var (
			a     models.Analysis
			atype string
		)
		if err := rows.Scan(&a.ID, &a.CmeID, &atype, &a.Speed,
			&a.DirectionLongitude, &a.DirectionLatitude, &a.HalfAngle); err != nil {
			closeQuietly(rows)
			return fmt.Errorf("failed to scan analysis: %w", err)
		}
		a.Type = models.AnalysisType(atype)
		ci, ok := byID[a.CmeID]
		if !ok {
			continue
		}
		cmes[ci].Analyses = append(cmes[ci].Analyses, a)
		analyses[a.ID] = loc{ci, len(cmes[ci].Analyses) - 1}
	}
	if err := rows.Err(); err != nil {
		closeQuietly(rows)
		return fmt.Errorf("failed to iterate analyses: %w", err)
	}
	closeWithLog(rows, "analysis rows")

	runs, err := tx.QueryContext(ctx, `SELECT r.id, r.analysis_id, r.run_number, r.target_body,
			r.predicted_arrival, r.kp_low, r.kp_high, r.closest_approach
		FROM cme_model_runs r JOIN cme_events c ON c.id = r.cme_id
		WHERE `+where+`
		ORDER BY r.run_number, r.target_body`, args...)
	if err != nil {
		return fmt.Errorf("failed to query model runs: %w", err)
	}
	defer closeWithLog(runs, "model run rows")
	for runs.Next() {
		var r models.ModelRun
		if err := runs.Scan(&r.ID, &r.AnalysisID, &r.RunNumber, &r.TargetBody,
			&r.PredictedArrival, &r.KpLow, &r.KpHigh, &r.ClosestApproach); err != nil {
			return fmt.Errorf("failed to scan model run: %w", err)
		}
		l, ok := analyses[r.AnalysisID]
		if !ok {
			continue
		}
		a := &cmes[l.cme].Analyses[l.analysis]
		a.Runs = append(a.Runs, r)
	}
	return runs.Err()
}

// withReadTx runs fn in a transaction that is always rolled back, giving the
// reads inside it one consistent snapshot.
func (db *DB) withReadTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(tx)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
