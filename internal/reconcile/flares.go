// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/heliotrack/internal/logging"
	"github.com/tomtom215/heliotrack/internal/matcher"
	"github.com/tomtom215/heliotrack/internal/metrics"
	"github.com/tomtom215/heliotrack/internal/models"
	"github.com/tomtom215/heliotrack/internal/validation"
)

// FlareSummary counts the outcomes of one flare batch.
type FlareSummary struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	Enriched   int `json:"enriched"`
	Superseded int `json:"superseded"`
	Ambiguous  int `json:"ambiguous"`
	Degraded   int `json:"degraded"`
	Invalid    int `json:"invalid"`
}

// ReconcileFlares matches every candidate against the stored window and
// applies the decision. Candidates are processed in order, and the window is
// updated in memory after each write so later candidates in the same batch
// see earlier ones.
//
// A store write failure aborts the batch and is returned; records already
// applied stay applied, and a replay of the batch is a no-op for them.
func (r *Reconciler) ReconcileFlares(ctx context.Context, batch []models.ProvisionalFlare, now time.Time) (FlareSummary, error) {
	r.flareMu.Lock()
	defer r.flareMu.Unlock()

	log := logging.Ctx(ctx).With().Str("component", "reconcile").Str("kind", "flare").Logger()
	var sum FlareSummary

	valid := make([]models.ProvisionalFlare, 0, len(batch))
	for i, c := range batch {
		if err := checkFlare(c); err != nil {
			sum.Invalid++
			metrics.RecordsReconciled.WithLabelValues(models.AuditKindFlare, "invalid").Inc()
			log.Warn().Err(err).Int("index", i).Str("class", c.ClassLabel).Msg("Dropping invalid flare report")
			continue
		}
		valid = append(valid, c)
	}
	if len(valid) == 0 {
		return sum, nil
	}

	window, err := r.readWindow(ctx, valid)
	if err != nil {
		return sum, err
	}

	for _, c := range valid {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		res := r.matcher.Match(c, window)
		metrics.RecordMatch(string(res.Decision), string(res.Rule), res.Degraded)

		switch res.Decision {
		case matcher.DecisionNew:
			ev := models.NewFlareEvent(c, now)
			inserted, err := r.store.InsertFlare(ctx, &ev)
			if err != nil {
				return sum, fmt.Errorf("insert flare: %w", err)
			}
			if !inserted {
				// Same fingerprint already stored: a redelivered report whose
				// time could not be matched.
				sum.Duplicates++
				r.auditFlare(ctx, c, res, matcher.DecisionDuplicate, "fingerprint already stored")
				continue
			}
			sum.Inserted++
			if res.Degraded {
				sum.Degraded++
				log.Warn().
					Str("class", ev.ClassLabel).
					Str("source", string(ev.Source)).
					Str("flare_id", ev.ID.String()).
					Msg("Stored flare without a usable comparison time")
				r.auditFlare(ctx, c, res, res.Decision, "comparison time unparseable")
			}
			if ev.PeakTime != nil {
				window = append(window, ev)
			}

		case matcher.DecisionDuplicate:
			sum.Duplicates++
			r.auditFlare(ctx, c, res, res.Decision, "")

		case matcher.DecisionEnrich:
			changed, err := r.store.EnrichFlareRegion(ctx, res.Target.ID, *c.Region)
			if err != nil {
				return sum, fmt.Errorf("enrich flare %s: %w", res.Target.ID, err)
			}
			if changed {
				sum.Enriched++
				if i := indexOf(window, res.Target.ID); i >= 0 {
					region := *c.Region
					window[i].Region = &region
				}
				r.auditFlare(ctx, c, res, res.Decision, "")
			} else {
				sum.Duplicates++
				r.auditFlare(ctx, c, res, matcher.DecisionDuplicate, "region already set")
			}

		case matcher.DecisionSupersede:
			ev := models.NewFlareEvent(c, now)
			changed, err := r.store.SupersedeFlare(ctx, res.Target.ID, &ev)
			if err != nil {
				return sum, fmt.Errorf("supersede flare %s: %w", res.Target.ID, err)
			}
			if !changed {
				sum.Duplicates++
				r.auditFlare(ctx, c, res, matcher.DecisionDuplicate, "supersede not applied")
				continue
			}
			sum.Superseded++
			if i := indexOf(window, res.Target.ID); i >= 0 {
				ev.ID = window[i].ID
				ev.Seq = window[i].Seq
				ev.IngestedAt = window[i].IngestedAt
				if ev.Region == nil {
					ev.Region = window[i].Region
				}
				if ev.Location == nil {
					ev.Location = window[i].Location
				}
				window[i] = ev
			}
			r.auditFlare(ctx, c, res, res.Decision, "")

		case matcher.DecisionAmbiguous:
			sum.Ambiguous++
			log.Warn().
				Str("class", c.ClassLabel).
				Str("rule", string(res.Rule)).
				Int("candidates", len(res.Candidates)).
				Msg("Ambiguous flare match, skipping report")
			r.auditFlare(ctx, c, res, res.Decision, joinIDs(res.Candidates))
		}
	}

	metrics.RecordsReconciled.WithLabelValues(models.AuditKindFlare, "inserted").Add(float64(sum.Inserted))
	metrics.RecordsReconciled.WithLabelValues(models.AuditKindFlare, "enriched").Add(float64(sum.Enriched))
	metrics.RecordsReconciled.WithLabelValues(models.AuditKindFlare, "superseded").Add(float64(sum.Superseded))
	metrics.RecordsReconciled.WithLabelValues(models.AuditKindFlare, "duplicate").Add(float64(sum.Duplicates))
	metrics.RecordsReconciled.WithLabelValues(models.AuditKindFlare, "ambiguous").Add(float64(sum.Ambiguous))

	log.Info().
		Int("inserted", sum.Inserted).
		Int("duplicates", sum.Duplicates).
		Int("enriched", sum.Enriched).
		Int("superseded", sum.Superseded).
		Int("ambiguous", sum.Ambiguous).
		Int("degraded", sum.Degraded).
		Int("invalid", sum.Invalid).
		Msg("Flare batch reconciled")
	return sum, nil
}

// readWindow loads every stored flare that could match a candidate: the span
// of candidate comparison times widened by the larger tolerance.
func (r *Reconciler) readWindow(ctx context.Context, batch []models.ProvisionalFlare) ([]models.FlareEvent, error) {
	var lo, hi time.Time
	for _, c := range batch {
		at, err := c.ComparisonTime()
		if err != nil {
			continue
		}
		if lo.IsZero() || at.Before(lo) {
			lo = at
		}
		if hi.IsZero() || at.After(hi) {
			hi = at
		}
	}
	if lo.IsZero() {
		return nil, nil
	}

	cfg := r.matcher.Config()
	slack := max(cfg.SameSourceTolerance, cfg.CrossSourceTolerance)
	window, err := r.store.FlareWindow(ctx, lo.Add(-slack), hi.Add(slack))
	if err != nil {
		return nil, fmt.Errorf("read flare window: %w", err)
	}
	return window, nil
}

func (r *Reconciler) auditFlare(ctx context.Context, c models.ProvisionalFlare, res matcher.Result, decision matcher.Decision, detail string) {
	entry := &models.AuditEntry{
		RecordedAt:           time.Now().UTC(),
		Kind:                 models.AuditKindFlare,
		Decision:             string(decision),
		Rule:                 string(res.Rule),
		CandidateSource:      string(c.Source),
		CandidateClass:       c.ClassLabel,
		CandidateFingerprint: c.Fingerprint(),
		CandidateCount:       len(res.Candidates),
		Degraded:             res.Degraded,
		Detail:               detail,
	}
	if at, err := c.ComparisonTime(); err == nil {
		entry.CandidateTime = &at
	}
	if res.Target != nil {
		id := res.Target.ID
		entry.MatchedID = &id
		if entry.CandidateCount == 0 {
			entry.CandidateCount = 1
		}
	}
	r.audit(ctx, entry)
}

func checkFlare(c models.ProvisionalFlare) error {
	if err := c.CheckVariant(); err != nil {
		return err
	}
	return validation.ValidateStruct(c)
}

func indexOf(window []models.FlareEvent, id uuid.UUID) int {
	for i := range window {
		if window[i].ID == id {
			return i
		}
	}
	return -1
}

func joinIDs(ids []uuid.UUID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}
