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

	"github.com/google/uuid"

	"github.com/tomtom215/heliotrack/internal/models"
)

// InsertAuditEntry records a reconcile decision.
func (db *DB) InsertAuditEntry(ctx context.Context, entry *models.AuditEntry) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("INSERT", "reconcile_audit_log", start, err) }()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}

	_, err = db.conn.ExecContext(ctx, `INSERT INTO reconcile_audit_log (
		id, recorded_at, kind, decision, rule, candidate_source, candidate_class,
		candidate_time, candidate_fingerprint, matched_id, candidate_count, degraded, detail
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.RecordedAt.UTC(), entry.Kind, entry.Decision, entry.Rule,
		entry.CandidateSource, entry.CandidateClass, utcPtr(entry.CandidateTime),
		entry.CandidateFingerprint, entry.MatchedID, entry.CandidateCount, entry.Degraded, entry.Detail)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// ListAuditEntries returns entries recorded at or after since, newest first.
// A kind of "" matches every kind; limit <= 0 means 100.
func (db *DB) ListAuditEntries(ctx context.Context, kind string, since time.Time, limit int) ([]models.AuditEntry, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.conn.QueryContext(ctx, `SELECT
			id, recorded_at, kind, decision, rule, candidate_source, candidate_class,
			candidate_time, candidate_fingerprint, matched_id, candidate_count, degraded, detail
		FROM reconcile_audit_log
		WHERE recorded_at >= ? AND (? = '' OR kind = ?)
		ORDER BY recorded_at DESC, id
		LIMIT ?`, since.UTC(), kind, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer closeWithLog(rows, "audit rows")

	out := []models.AuditEntry{}
	for rows.Next() {
		var (
			e                       models.AuditEntry
			rule, class, fp, detail sql.NullString
			matched                 uuid.NullUUID
		)
		if err := rows.Scan(&e.ID, &e.RecordedAt, &e.Kind, &e.Decision, &rule, &e.CandidateSource, &class,
			&e.CandidateTime, &fp, &matched, &e.CandidateCount, &e.Degraded, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Rule, e.CandidateClass, e.CandidateFingerprint, e.Detail = rule.String, class.String, fp.String, detail.String
		if matched.Valid {
			id := matched.UUID
			e.MatchedID = &id
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
