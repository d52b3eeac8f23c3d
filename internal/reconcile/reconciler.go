// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

// Package reconcile applies parsed batches to the store.
//
// Flares go through the temporal matcher against a window read from the
// store; CMEs are upserted by activity ID. Each kind has its own lock around
// read-window, decide and write, so flares and CMEs reconcile concurrently
// while two flare batches never interleave.
package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/heliotrack/internal/database"
	"github.com/tomtom215/heliotrack/internal/logging"
	"github.com/tomtom215/heliotrack/internal/matcher"
	"github.com/tomtom215/heliotrack/internal/models"
)

// Store is the persistence used by the reconciler. *database.DB satisfies it.
type Store interface {
	FlareWindow(ctx context.Context, from, to time.Time) ([]models.FlareEvent, error)
	InsertFlare(ctx context.Context, ev *models.FlareEvent) (bool, error)
	EnrichFlareRegion(ctx context.Context, id uuid.UUID, region string) (bool, error)
	SupersedeFlare(ctx context.Context, target uuid.UUID, ev *models.FlareEvent) (bool, error)
	UpsertCME(ctx context.Context, cme *models.CmeEvent, now time.Time) (database.UpsertOutcome, error)
	InsertAuditEntry(ctx context.Context, entry *models.AuditEntry) error
}

// Reconciler serializes reconciliation per record kind.
type Reconciler struct {
	store   Store
	matcher *matcher.Matcher

	flareMu sync.Mutex
	cmeMu   sync.Mutex
}

// New returns a reconciler writing to store.
func New(store Store, m *matcher.Matcher) *Reconciler {
	if m == nil {
		m = matcher.New(matcher.DefaultConfig())
	}
	return &Reconciler{store: store, matcher: m}
}

// audit records entry. Failures are logged; the decision itself has already
// been applied.
func (r *Reconciler) audit(ctx context.Context, entry *models.AuditEntry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if err := r.store.InsertAuditEntry(ctx, entry); err != nil {
		logging.Ctx(ctx).Warn().Err(err).
			Str("kind", entry.Kind).
			Str("decision", entry.Decision).
			Msg("Failed to write reconcile audit entry")
	}
}
