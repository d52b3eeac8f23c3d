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

const flareColumns = `id, seq, fingerprint, source, class_label, occurrence_date,
	start_time, peak_time, end_time, occurred_at, region, location,
	degraded, raw_text, ingested_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlare(row rowScanner) (models.FlareEvent, error) {
	var (
		ev      models.FlareEvent
		source  string
		rawText sql.NullString
	)
	err := row.Scan(&ev.ID, &ev.Seq, &ev.Fingerprint, &source, &ev.ClassLabel, &ev.OccurrenceDate,
		&ev.StartTime, &ev.PeakTime, &ev.EndTime, &ev.OccurredAt, &ev.Region, &ev.Location,
		&ev.Degraded, &rawText, &ev.IngestedAt)
	if err != nil {
		return ev, err
	}
	ev.Source = models.Source(source)
	ev.RawText = rawText.String
	return ev, nil
}

// InsertFlare inserts ev unless a row with the same fingerprint exists.
// On insert it fills ev.Seq and returns true. On a fingerprint conflict it
// fills the existing row's region when that is NULL and ev carries one, and
// returns false.
func (db *DB) InsertFlare(ctx context.Context, ev *models.FlareEvent) (inserted bool, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("INSERT", "flare_events", start, err) }()

	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.IngestedAt.IsZero() {
		ev.IngestedAt = time.Now().UTC()
	}

	err = db.withTx(ctx, func(tx *sql.Tx) error {
		inserted = false
		row := tx.QueryRowContext(ctx, `INSERT INTO flare_events (
			id, fingerprint, source, class_label, occurrence_date,
			start_time, peak_time, end_time, occurred_at, region, location,
			degraded, raw_text, ingested_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO NOTHING
		RETURNING seq`,
			ev.ID, ev.Fingerprint, string(ev.Source), ev.ClassLabel, ev.OccurrenceDate,
			ev.StartTime, ev.PeakTime, ev.EndTime, ev.OccurredAt, ev.Region, ev.Location,
			ev.Degraded, ev.RawText, ev.IngestedAt, ev.IngestedAt)
		switch scanErr := row.Scan(&ev.Seq); {
		case scanErr == nil:
			inserted = true
			return nil
		case errors.Is(scanErr, sql.ErrNoRows):
		default:
			return fmt.Errorf("failed to insert flare: %w", scanErr)
		}
		if ev.Region == nil {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE flare_events SET region = ?, updated_at = ? WHERE fingerprint = ? AND region IS NULL`,
			*ev.Region, time.Now().UTC(), ev.Fingerprint); err != nil {
			return fmt.Errorf("failed to fill region on existing fingerprint: %w", err)
		}
		return nil
	})
	return inserted, err
}

// EnrichFlareRegion sets the region of flare id when it is still NULL.
// It reports whether a row changed.
func (db *DB) EnrichFlareRegion(ctx context.Context, id uuid.UUID, region string) (changed bool, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("UPDATE", "flare_events", start, err) }()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE flare_events SET region = ?, updated_at = ? WHERE id = ? AND region IS NULL`,
		region, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("failed to enrich flare %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// SupersedeFlare replaces the DISCUSSION_TEXT row target with the
// PRIMARY_TABLE report ev, keeping the row's id and seq. The stored region
// and location are kept when ev has none. It reports false without writing
// when target is not a DISCUSSION_TEXT row or ev's fingerprint is already
// stored.
func (db *DB) SupersedeFlare(ctx context.Context, target uuid.UUID, ev *models.FlareEvent) (changed bool, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("SUPERSEDE", "flare_events", start, err) }()

	if ev.Source != models.SourcePrimaryTable {
		return false, fmt.Errorf("supersede requires a %s report, got %s", models.SourcePrimaryTable, ev.Source)
	}

	err = db.withTx(ctx, func(tx *sql.Tx) error {
		changed = false
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM flare_events WHERE fingerprint = ?)`, ev.Fingerprint).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check fingerprint: %w", err)
		}
		if exists {
			return nil
		}
		res, err := tx.ExecContext(ctx, `UPDATE flare_events SET
			fingerprint = ?, source = ?, class_label = ?, occurrence_date = ?,
			start_time = ?, peak_time = ?, end_time = ?, occurred_at = ?,
			region = COALESCE(?, region), location = COALESCE(?, location),
			degraded = ?, raw_text = ?, updated_at = ?
		WHERE id = ? AND source = ?`,
			ev.Fingerprint, string(ev.Source), ev.ClassLabel, ev.OccurrenceDate,
			ev.StartTime, ev.PeakTime, ev.EndTime, ev.OccurredAt,
			ev.Region, ev.Location,
			ev.Degraded, ev.RawText, time.Now().UTC(),
			target, string(models.SourceDiscussion))
		if err != nil {
			return fmt.Errorf("failed to supersede flare %s: %w", target, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		changed = n > 0
		return nil
	})
	return changed, err
}

// GetFlare returns the flare with the given id.
func (db *DB) GetFlare(ctx context.Context, id uuid.UUID) (*models.FlareEvent, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	ev, err := scanFlare(db.conn.QueryRowContext(ctx,
		`SELECT `+flareColumns+` FROM flare_events WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("flare %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get flare %s: %w", id, err)
	}
	return &ev, nil
}

// FlareWindow returns the stored flares whose comparison time lies in
// [from, to], the bounded view the matcher decides against. Rows without a
// comparison time can never match and are excluded.
func (db *DB) FlareWindow(ctx context.Context, from, to time.Time) (out []models.FlareEvent, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("SELECT", "flare_events", start, err) }()

	rows, err := db.conn.QueryContext(ctx, `SELECT `+flareColumns+` FROM flare_events
		WHERE peak_time IS NOT NULL AND peak_time >= ? AND peak_time <= ?
		ORDER BY seq`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query flare window: %w", err)
	}
	defer closeWithLog(rows, "flare window rows")

	for rows.Next() {
		ev, err := scanFlare(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flare: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// CountFlares returns the number of stored flares.
func (db *DB) CountFlares(ctx context.Context) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	var n int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM flare_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count flares: %w", err)
	}
	return n, nil
}
