// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

/*
Package models defines the data structures shared by the Heliotrack packages.

Flare records come in two shapes. A ProvisionalFlare is what a parser emits:
a source-tagged variant that carries exactly one timing payload (TableTiming
for the primary event table, DiscussionTiming for the forecast discussion)
with its timestamps still in raw text. A FlareEvent is the reconciled,
stored form with parsed timestamps, an insertion sequence and a fingerprint.

CME records are aggregates:

	CmeEvent
	  └── Analysis (at most one LEADING_EDGE, at most one SHOCK_FRONT)
	        └── ModelRun (unique by run number and target body)

Parsers return CmeEvent values with zero IDs; the store assigns identity on
insert and replaces the whole child tree on re-ingest.
*/
package models
