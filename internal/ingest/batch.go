// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package ingest

import (
	"sort"
	"time"

	"github.com/tomtom215/heliotrack/internal/models"
	"github.com/tomtom215/heliotrack/internal/parser"
)

// JournalKind labels journaled ingest batches.
const JournalKind = "ingest_batch"

// Batch is the parsed output of one cycle. It is the unit the journal stores
// and replays.
type Batch struct {
	FetchedAt time.Time                 `json:"fetched_at"`
	Flares    []models.ProvisionalFlare `json:"flares"`
	CMEs      []models.CmeEvent         `json:"cmes"`
}

// Empty reports whether the batch carries no records.
func (b *Batch) Empty() bool {
	return len(b.Flares) == 0 && len(b.CMEs) == 0
}

// mergeCMEs appends extra to primary, dropping any CME whose activity ID is
// already present. The catalog is listed first so its structured form wins
// over a bulletin describing the same activity.
func mergeCMEs(primary, extra []models.CmeEvent) []models.CmeEvent {
	seen := make(map[string]struct{}, len(primary))
	out := make([]models.CmeEvent, 0, len(primary)+len(extra))
	for _, c := range primary {
		if _, ok := seen[c.ActivityID]; ok {
			continue
		}
		seen[c.ActivityID] = struct{}{}
		out = append(out, c)
	}
	for _, c := range extra {
		if _, ok := seen[c.ActivityID]; ok {
			continue
		}
		seen[c.ActivityID] = struct{}{}
		out = append(out, c)
	}
	return out
}

// bulletinCMEs parses bulletins newest-issued first. A later bulletin about
// the same activity carries the refined prediction, and mergeCMEs keeps the
// first occurrence of each ID. Bulletins without an issue time sort last.
func bulletinCMEs(bulletins []parser.Bulletin) ([]models.CmeEvent, []error) {
	ordered := make([]parser.Bulletin, len(bulletins))
	copy(ordered, bulletins)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].IssuedAt.After(ordered[j].IssuedAt)
	})

	var (
		out  []models.CmeEvent
		errs []error
	)
	for _, b := range ordered {
		cmes, bad := parser.ParseCMEBulletin(b)
		out = append(out, cmes...)
		errs = append(errs, bad...)
	}
	return out, errs
}
