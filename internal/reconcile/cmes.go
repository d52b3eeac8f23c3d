// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/heliotrack/internal/database"
	"github.com/tomtom215/heliotrack/internal/logging"
	"github.com/tomtom215/heliotrack/internal/metrics"
	"github.com/tomtom215/heliotrack/internal/models"
	"github.com/tomtom215/heliotrack/internal/validation"
)

// DecisionRejectedRun is the audit decision for a model run dropped because
// its predicted arrival precedes the CME start.
const DecisionRejectedRun = "REJECTED_RUN"

// CMESummary counts the outcomes of one CME batch.
type CMESummary struct {
	Inserted     int `json:"inserted"`
	Replaced     int `json:"replaced"`
	Unchanged    int `json:"unchanged"`
	Invalid      int `json:"invalid"`
	RejectedRuns int `json:"rejected_runs"`
}

// ReconcileCMEs upserts every CME aggregate in batch. Model runs whose
// predicted arrival is before the CME start are removed from their analysis
// first; the analysis itself is kept.
func (r *Reconciler) ReconcileCMEs(ctx context.Context, batch []models.CmeEvent, now time.Time) (CMESummary, error) {
	r.cmeMu.Lock()
	defer r.cmeMu.Unlock()

	log := logging.Ctx(ctx).With().Str("component", "reconcile").Str("kind", "cme").Logger()
	var sum CMESummary

	for i := range batch {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		cme := batch[i]
		if err := validation.ValidateStruct(cme); err != nil {
			sum.Invalid++
			metrics.RecordsReconciled.WithLabelValues(models.AuditKindCME, "invalid").Inc()
			log.Warn().Err(err).Str("activity_id", cme.ActivityID).Msg("Dropping invalid CME")
			continue
		}

		sum.RejectedRuns += r.rejectEarlyArrivals(ctx, &cme)

		outcome, err := r.store.UpsertCME(ctx, &cme, now)
		if err != nil {
			return sum, fmt.Errorf("upsert cme %s: %w", cme.ActivityID, err)
		}
		switch outcome {
		case database.CMEInserted:
			sum.Inserted++
		case database.CMEReplaced:
			sum.Replaced++
		case database.CMEUnchanged:
			sum.Unchanged++
		}
		metrics.RecordsReconciled.WithLabelValues(models.AuditKindCME, string(outcome)).Inc()
	}

	log.Info().
		Int("inserted", sum.Inserted).
		Int("replaced", sum.Replaced).
		Int("unchanged", sum.Unchanged).
		Int("invalid", sum.Invalid).
		Int("rejected_runs", sum.RejectedRuns).
		Msg("CME batch reconciled")
	return sum, nil
}

// rejectEarlyArrivals drops model runs predicting arrival before the CME
// start and returns how many were dropped. The analyses slice is copied so
// the caller's batch is not modified.
func (r *Reconciler) rejectEarlyArrivals(ctx context.Context, cme *models.CmeEvent) int {
	rejected := 0
	analyses := make([]models.Analysis, len(cme.Analyses))
	for ai, a := range cme.Analyses {
		kept := make([]models.ModelRun, 0, len(a.Runs))
		for _, run := range a.Runs {
			if run.PredictedArrival != nil && run.PredictedArrival.Before(cme.StartTime) {
				rejected++
				metrics.RejectedModelRuns.Inc()
				arrival := *run.PredictedArrival
				logging.Ctx(ctx).Warn().
					Str("activity_id", cme.ActivityID).
					Str("analysis_type", string(a.Type)).
					Int("run_number", run.RunNumber).
					Str("target", run.TargetBody).
					Time("arrival", arrival).
					Time("start", cme.StartTime).
					Msg("Rejecting model run with arrival before CME start")
				r.audit(ctx, &models.AuditEntry{
					RecordedAt:      time.Now().UTC(),
					Kind:            models.AuditKindCME,
					Decision:        DecisionRejectedRun,
					CandidateSource: cme.ActivityID,
					CandidateTime:   &arrival,
					Detail: fmt.Sprintf("%s run %d target %s arrives before start %s",
						a.Type, run.RunNumber, run.TargetBody, cme.StartTime.UTC().Format(time.RFC3339)),
				})
				continue
			}
			kept = append(kept, run)
		}
		a.Runs = kept
		analyses[ai] = a
	}
	cme.Analyses = analyses
	return rejected
}
