// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

// Package retention ages records out of the rolling windows.
package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/heliotrack/internal/logging"
	"github.com/tomtom215/heliotrack/internal/metrics"
)

// Store is the subset of the database used by the sweeper.
type Store interface {
	DeleteFlaresBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountUndatedFlares(ctx context.Context) (int64, error)
	DeleteCMEsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteAuditBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config holds the retention horizons.
type Config struct {
	FlareHorizon time.Duration
	CMEHorizon   time.Duration
	AuditHorizon time.Duration
	Interval     time.Duration
}

// DefaultConfig returns the standard horizons: 24h for flares, 30 days for
// CMEs, 7 days for the audit log, swept hourly.
func DefaultConfig() Config {
	return Config{
		FlareHorizon: 24 * time.Hour,
		CMEHorizon:   720 * time.Hour,
		AuditHorizon: 7 * 24 * time.Hour,
		Interval:     time.Hour,
	}
}

// Sweeper deletes flares and CMEs older than their horizon.
type Sweeper struct {
	store Store
	cfg   Config
	clock func() time.Time
}

// New returns a sweeper using cfg as given. Horizons and Interval must be
// positive; config validation enforces that.
func New(store Store, cfg Config) *Sweeper {
	return &Sweeper{store: store, cfg: cfg, clock: time.Now}
}

// Sweep deletes flares occurring strictly before now-FlareHorizon and CMEs
// starting strictly before now-CMEHorizon, together with their analyses and
// model runs, and trims the audit log. Flares with no known occurrence time
// are counted and left in place.
//
// Each delete runs independently: a failure is logged and the remaining
// deletes still run. The returned count is the number of flares and CME
// aggregates removed; the error joins every failure.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int64, error) {
	log := logging.Ctx(ctx).With().Str("component", "retention").Logger()
	now = now.UTC()
	var (
		total int64
		errs  []error
	)

	flareCutoff := now.Add(-s.cfg.FlareHorizon)
	if n, err := s.store.DeleteFlaresBefore(ctx, flareCutoff); err != nil {
		log.Error().Err(err).Time("cutoff", flareCutoff).Msg("Flare sweep failed")
		errs = append(errs, fmt.Errorf("sweep flares: %w", err))
	} else {
		total += n
		metrics.SweepDeleted.WithLabelValues("flare_events").Add(float64(n))
	}

	if n, err := s.store.CountUndatedFlares(ctx); err != nil {
		log.Warn().Err(err).Msg("Could not count undated flares")
	} else {
		metrics.SweepSkippedNullTime.Set(float64(n))
		if n > 0 {
			log.Warn().Int64("rows", n).Msg("Flares without occurrence time are retained by the sweep")
		}
	}

	cmeCutoff := now.Add(-s.cfg.CMEHorizon)
	if n, err := s.store.DeleteCMEsBefore(ctx, cmeCutoff); err != nil {
		log.Error().Err(err).Time("cutoff", cmeCutoff).Msg("CME sweep failed")
		errs = append(errs, fmt.Errorf("sweep cmes: %w", err))
	} else {
		total += n
		metrics.SweepDeleted.WithLabelValues("cme_events").Add(float64(n))
	}

	auditCutoff := now.Add(-s.cfg.AuditHorizon)
	if n, err := s.store.DeleteAuditBefore(ctx, auditCutoff); err != nil {
		log.Error().Err(err).Time("cutoff", auditCutoff).Msg("Audit sweep failed")
		errs = append(errs, fmt.Errorf("sweep audit log: %w", err))
	} else {
		metrics.SweepDeleted.WithLabelValues("reconcile_audit_log").Add(float64(n))
	}

	log.Debug().Int64("deleted", total).Msg("Retention sweep complete")
	return total, errors.Join(errs...)
}

// Serve runs Sweep every Interval until ctx is canceled. Sweep failures are
// logged and do not stop the loop.
func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx, s.clock()); err != nil {
			logging.Warn().Err(err).Msg("Retention sweep finished with errors")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// String names the service in supervisor logs.
func (s *Sweeper) String() string {
	return "retention-sweeper"
}
