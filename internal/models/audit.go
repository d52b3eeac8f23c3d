// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditEntry records one reconcile decision that did not simply insert a
// fresh record: DUPLICATE, ENRICH, SUPERSEDE, AMBIGUOUS, a degraded NEW, or
// a rejected CME model run.
type AuditEntry struct {
	ID                   uuid.UUID  `json:"id"`
	RecordedAt           time.Time  `json:"recorded_at"`
	Kind                 string     `json:"kind"` // flare, cme
	Decision             string     `json:"decision"`
	Rule                 string     `json:"rule,omitempty"`
	CandidateSource      string     `json:"candidate_source"`
	CandidateClass       string     `json:"candidate_class,omitempty"`
	CandidateTime        *time.Time `json:"candidate_time,omitempty"`
	CandidateFingerprint string     `json:"candidate_fingerprint,omitempty"`
	MatchedID            *uuid.UUID `json:"matched_id,omitempty"`
	CandidateCount       int        `json:"candidate_count"`
	Degraded             bool       `json:"degraded"`
	Detail               string     `json:"detail,omitempty"`
}

// Audit kinds.
const (
	AuditKindFlare = "flare"
	AuditKindCME   = "cme"
)
