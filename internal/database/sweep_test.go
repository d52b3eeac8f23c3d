// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/heliotrack/internal/models"
)

func TestDeleteFlaresBefore(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	cutoff := base.Add(-24 * time.Hour) // 2025-11-02 09:00
	exact := primaryFlare(t, "C1.0", "2025-11-02", "08:50:00", "09:00:00", "09:10:00", nil)
	older := primaryFlare(t, "C2.0", "2025-11-02", "08:40:00", "08:59:59", "09:10:00", nil)
	undated := &models.FlareEvent{
		Source: models.SourceDiscussion, ClassLabel: "M1.0", Fingerprint: "undated", Degraded: true,
	}
	for _, ev := range []*models.FlareEvent{exact, older, undated} {
		mustInsert(t, db, ev)
	}

	n, err := db.DeleteFlaresBefore(ctx, cutoff)
	if err != nil {
		t.Fatalf("DeleteFlaresBefore() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteFlaresBefore() = %d, want 1", n)
	}
	if _, err := db.GetFlare(ctx, exact.ID); err != nil {
		t.Errorf("flare exactly at cutoff was deleted: %v", err)
	}
	if _, err := db.GetFlare(ctx, undated.ID); err != nil {
		t.Errorf("undated flare was deleted: %v", err)
	}
	undatedCount, err := db.CountUndatedFlares(ctx)
	if err != nil || undatedCount != 1 {
		t.Errorf("CountUndatedFlares() = %d, %v; want 1", undatedCount, err)
	}
}

func TestDeleteCMEsBefore(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	cutoff := base.Add(-720 * time.Hour)

	expired := sampleCME("CME-EXPIRED", cutoff.Add(-time.Second), cutoff.Add(48*time.Hour))
	kept := sampleCME("CME-KEPT", cutoff, cutoff.Add(48*time.Hour))
	for _, c := range []*models.CmeEvent{expired, kept} {
		if _, err := db.UpsertCME(ctx, c, base); err != nil {
			t.Fatal(err)
		}
	}

	n, err := db.DeleteCMEsBefore(ctx, cutoff)
	if err != nil {
		t.Fatalf("DeleteCMEsBefore() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteCMEsBefore() = %d, want 1", n)
	}

	var analyses, runs int
	if err := db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM cme_analyses WHERE cme_id = ?`, expired.ID).Scan(&analyses); err != nil {
		t.Fatal(err)
	}
	if err := db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM cme_model_runs WHERE cme_id = ?`, expired.ID).Scan(&runs); err != nil {
		t.Fatal(err)
	}
	if analyses != 0 || runs != 0 {
		t.Errorf("orphans after sweep: analyses=%d runs=%d", analyses, runs)
	}
	if _, err := db.GetCMEByActivityID(ctx, "CME-KEPT"); err != nil {
		t.Errorf("CME at cutoff was deleted: %v", err)
	}
}

func TestAuditEntries(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	matched := uuid.New()
	entries := []*models.AuditEntry{
		{RecordedAt: base.Add(-8 * 24 * time.Hour), Kind: models.AuditKindFlare, Decision: "DUPLICATE", CandidateSource: "PRIMARY_TABLE"},
		{RecordedAt: base.Add(-time.Hour), Kind: models.AuditKindFlare, Decision: "ENRICH", Rule: "discussion_vs_primary",
			CandidateSource: "DISCUSSION_TEXT", CandidateClass: "M1.0", CandidateTime: timePtr(base), MatchedID: &matched},
		{RecordedAt: base, Kind: models.AuditKindCME, Decision: "REJECTED_RUN", CandidateSource: "cme_catalog", Detail: "arrival before start"},
	}
	for _, e := range entries {
		if err := db.InsertAuditEntry(ctx, e); err != nil {
			t.Fatalf("InsertAuditEntry() error = %v", err)
		}
	}

	flares, err := db.ListAuditEntries(ctx, models.AuditKindFlare, base.Add(-24*time.Hour), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(flares) != 1 || flares[0].Decision != "ENRICH" {
		t.Fatalf("ListAuditEntries(flare) = %+v, want one ENRICH", flares)
	}
	if flares[0].MatchedID == nil || *flares[0].MatchedID != matched {
		t.Errorf("MatchedID = %v, want %s", flares[0].MatchedID, matched)
	}

	all, err := db.ListAuditEntries(ctx, "", time.Time{}, 10)
	if err != nil || len(all) != 3 {
		t.Fatalf("ListAuditEntries(all) = %d, %v; want 3", len(all), err)
	}
	if all[0].Kind != models.AuditKindCME {
		t.Errorf("newest entry = %s, want cme", all[0].Kind)
	}

	n, err := db.DeleteAuditBefore(ctx, base.Add(-7*24*time.Hour))
	if err != nil || n != 1 {
		t.Errorf("DeleteAuditBefore() = %d, %v; want 1", n, err)
	}
}
