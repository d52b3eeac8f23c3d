// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package database

import "fmt"

// Timestamps are stored as TIMESTAMP holding UTC wall-clock time.

func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range db.getTableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) getTableCreationQueries() []string {
	return []string{
		`CREATE SEQUENCE IF NOT EXISTS flare_events_seq START 1`,
		`CREATE SEQUENCE IF NOT EXISTS cme_events_seq START 1`,

		// A superseded DISCUSSION_TEXT row keeps id and seq; every other
		// column may be rewritten by the PRIMARY_TABLE report.
		`CREATE TABLE IF NOT EXISTS flare_events (
			id UUID PRIMARY KEY,
			seq BIGINT NOT NULL DEFAULT nextval('flare_events_seq'),
			fingerprint TEXT NOT NULL UNIQUE,
			source TEXT NOT NULL,
			class_label TEXT NOT NULL,
			occurrence_date DATE,
			start_time TIMESTAMP,
			peak_time TIMESTAMP,
			end_time TIMESTAMP,
			occurred_at TIMESTAMP,
			region TEXT,
			location TEXT,
			degraded BOOLEAN NOT NULL DEFAULT false,
			raw_text TEXT,
			ingested_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS cme_events (
			id UUID PRIMARY KEY,
			seq BIGINT NOT NULL DEFAULT nextval('cme_events_seq'),
			activity_id TEXT NOT NULL UNIQUE,
			start_time TIMESTAMP NOT NULL,
			source_location TEXT,
			source_region TEXT,
			associated_flare TEXT,
			note TEXT,
			link TEXT,
			content_hash TEXT NOT NULL,
			ingested_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		// Children reference their parents by id without FOREIGN KEY
		// constraints; the store deletes children before parents.
		`CREATE TABLE IF NOT EXISTS cme_analyses (
			id UUID PRIMARY KEY,
			cme_id UUID NOT NULL,
			analysis_type TEXT NOT NULL,
			speed DOUBLE,
			direction_longitude DOUBLE,
			direction_latitude DOUBLE,
			half_angle DOUBLE,
			UNIQUE (cme_id, analysis_type)
		)`,

		`CREATE TABLE IF NOT EXISTS cme_model_runs (
			id UUID PRIMARY KEY,
			analysis_id UUID NOT NULL,
			cme_id UUID NOT NULL,
			run_number INTEGER NOT NULL,
			target_body TEXT NOT NULL,
			predicted_arrival TIMESTAMP,
			kp_low INTEGER,
			kp_high INTEGER,
			closest_approach DOUBLE,
			UNIQUE (analysis_id, run_number, target_body)
		)`,
	}
}

// createIndexes creates secondary indexes unless the config skips them.
func (db *DB) createIndexes() error {
	if db.cfg != nil && db.cfg.SkipIndexes {
		return nil
	}
	return db.CreateIndexes()
}

// CreateIndexes creates all secondary indexes.
func (db *DB) CreateIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range getIndexQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute index query: %s: %w", query, err)
		}
	}
	return nil
}

func getIndexQueries() []string {
	return []string{
		`CREATE INDEX IF NOT EXISTS idx_flare_events_peak ON flare_events(peak_time)`,
		`CREATE INDEX IF NOT EXISTS idx_flare_events_occurred ON flare_events(occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_cme_events_start ON cme_events(start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_cme_analyses_cme ON cme_analyses(cme_id)`,
		`CREATE INDEX IF NOT EXISTS idx_cme_model_runs_cme ON cme_model_runs(cme_id)`,
		`CREATE INDEX IF NOT EXISTS idx_cme_model_runs_arrival ON cme_model_runs(predicted_arrival)`,
	}
}
