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

	"github.com/tomtom215/heliotrack/internal/models"
)

// ErrInvalidWindow is returned for a window whose end precedes its start or
// for a negative uncertainty.
var ErrInvalidWindow = errors.New("invalid query window")

// QueryOccurredFlares returns flares whose occurrence time lies in [t0, t1),
// newest first, ties in insertion order.
func (db *DB) QueryOccurredFlares(ctx context.Context, t0, t1 time.Time) (out []models.FlareEvent, err error) {
	if t1.Before(t0) {
		return nil, fmt.Errorf("%w: %s is before %s", ErrInvalidWindow, t1, t0)
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("SELECT", "flare_events", start, err) }()

	rows, err := db.conn.QueryContext(ctx, `SELECT `+flareColumns+` FROM flare_events
		WHERE occurred_at >= ? AND occurred_at < ?
		ORDER BY occurred_at DESC, seq ASC`, t0.UTC(), t1.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query flares: %w", err)
	}
	defer closeWithLog(rows, "flare rows")

	out = []models.FlareEvent{}
	for rows.Next() {
		ev, err := scanFlare(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flare: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// QueryOccurredCMEs returns CME aggregates whose start lies in [t0, t1),
// newest first, ties in insertion order, with analyses and model runs.
func (db *DB) QueryOccurredCMEs(ctx context.Context, t0, t1 time.Time) (out []models.CmeEvent, err error) {
	if t1.Before(t0) {
		return nil, fmt.Errorf("%w: %s is before %s", ErrInvalidWindow, t1, t0)
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("SELECT", "cme_events", start, err) }()

	from, to := t0.UTC(), t1.UTC()
	out = []models.CmeEvent{}
	err = db.withReadTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT `+cmeColumns+` FROM cme_events
			WHERE start_time >= ? AND start_time < ?
			ORDER BY start_time DESC, seq ASC`, from, to)
		if err != nil {
			return fmt.Errorf("failed to query cmes: %w", err)
		}
		for rows.Next() {
			c, err := scanCME(rows)
			if err != nil {
				closeQuietly(rows)
				return fmt.Errorf("failed to scan cme: %w", err)
			}
			out = append(out, c)
		}
		if err := rows.Err(); err != nil {
			closeQuietly(rows)
			return err
		}
		closeWithLog(rows, "cme rows")
		return loadChildren(ctx, tx, out, `c.start_time >= ? AND c.start_time < ?`, from, to)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// QueryArrivals returns one row per model run with a predicted arrival T
// whose uncertainty interval [T-u, T+u] intersects [t0, t1), that is
// T >= t0-u and T < t1+u. Rows are ordered by T, then CME insertion order,
// analysis type, run number and target body.
func (db *DB) QueryArrivals(ctx context.Context, t0, t1 time.Time, uncertainty time.Duration) (out []models.ArrivalRow, err error) {
	if t1.Before(t0) || uncertainty < 0 {
		return nil, fmt.Errorf("%w: [%s, %s) ±%s", ErrInvalidWindow, t0, t1, uncertainty)
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("SELECT", "cme_model_runs", start, err) }()

	rows, err := db.conn.QueryContext(ctx, `SELECT
			c.id, c.seq, c.activity_id, c.start_time, c.source_location, c.source_region,
			c.associated_flare, c.note, c.link, c.ingested_at, c.updated_at,
			a.id, a.cme_id, a.analysis_type, a.speed, a.direction_longitude, a.direction_latitude, a.half_angle,
			r.id, r.analysis_id, r.run_number, r.target_body, r.predicted_arrival,
			r.kp_low, r.kp_high, r.closest_approach
		FROM cme_model_runs r
		JOIN cme_analyses a ON a.id = r.analysis_id
		JOIN cme_events c ON c.id = a.cme_id
		WHERE r.predicted_arrival IS NOT NULL
			AND r.predicted_arrival >= ? AND r.predicted_arrival < ?
		ORDER BY r.predicted_arrival ASC, c.seq ASC, a.analysis_type ASC, r.run_number ASC, r.target_body ASC`,
		t0.Add(-uncertainty).UTC(), t1.Add(uncertainty).UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query arrivals: %w", err)
	}
	defer closeWithLog(rows, "arrival rows")

	out = []models.ArrivalRow{}
	for rows.Next() {
		var (
			row                  models.ArrivalRow
			location, note, link sql.NullString
			atype                string
		)
		c, a, r := &row.CME, &row.Analysis, &row.Run
		if err := rows.Scan(
			&c.ID, &c.Seq, &c.ActivityID, &c.StartTime, &location, &c.SourceRegion,
			&c.AssociatedFlareRef, &note, &link, &c.IngestedAt, &c.UpdatedAt,
			&a.ID, &a.CmeID, &atype, &a.Speed, &a.DirectionLongitude, &a.DirectionLatitude, &a.HalfAngle,
			&r.ID, &r.AnalysisID, &r.RunNumber, &r.TargetBody, &r.PredictedArrival,
			&r.KpLow, &r.KpHigh, &r.ClosestApproach,
		); err != nil {
			return nil, fmt.Errorf("failed to scan arrival: %w", err)
		}
		c.SourceLocation, c.NoteText, c.Link = location.String, note.String, link.String
		a.Type = models.AnalysisType(atype)
		out = append(out, row)
	}
	return out, rows.Err()
}
