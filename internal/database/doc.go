// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

/*
Package database is the DuckDB-backed reconciled store.

Tables:

	flare_events         reconciled flares, unique by fingerprint
	cme_events           CME aggregates, unique by activity_id
	cme_analyses         unique by (cme_id, analysis_type)
	cme_model_runs       unique by (analysis_id, run_number, target_body)
	reconcile_audit_log  non-trivial reconcile decisions
	schema_migrations    applied migration versions

Insertion order is carried by the seq column of flare_events and cme_events,
filled from a sequence on insert and never rewritten.

Write operations are single statements or explicit transactions with the
deferred-rollback pattern, so a cycle abandoned mid-way leaves either the old
or the new state of each row or aggregate. Read operations never modify
state. All methods take a context; a context without a deadline is given a
30 second timeout.
*/
package database
