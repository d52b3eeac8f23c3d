// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

// Package wal journals fetched feed batches in BadgerDB before they are
// reconciled into DuckDB.
//
// A batch is written once per ingest cycle and deleted after every record in
// it has been reconciled. Batches left behind by a crash or a database fault
// are replayed at the start of the next cycle. Reconciliation is idempotent,
// so replaying a batch that was partly applied is safe.
//
// Each failed replay increments the entry's attempt counter. Entries that
// reach MaxAttempts are dropped and counted in heliotrack_journal_dropped_total.
//
// Keys are UUIDv7 strings under the "pending:" prefix, so iteration order is
// write order.
package wal
