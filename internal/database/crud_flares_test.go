// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/heliotrack/internal/models"
)

func TestInsertFlareFingerprintConflict(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// A discussion mention without a time is degraded; redelivery must not
	// create a second row.
	first := discussionFlare(t, "M2.1", "2025-11-03", "", nil)
	if !first.Degraded {
		t.Fatal("fixture not degraded")
	}
	mustInsert(t, db, first)

	again := discussionFlare(t, "M2.1", "2025-11-03", "", strPtr("4274"))
	inserted, err := db.InsertFlare(ctx, again)
	if err != nil {
		t.Fatalf("InsertFlare() error = %v", err)
	}
	if inserted {
		t.Error("second InsertFlare() inserted = true, want false")
	}

	n, err := db.CountFlares(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("CountFlares() = %d, want 1", n)
	}

	got, err := db.GetFlare(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetFlare() error = %v", err)
	}
	if got.Region == nil || *got.Region != "4274" {
		t.Errorf("region after conflict = %v, want 4274", got.Region)
	}
	if got.OccurredAt == nil || !got.OccurredAt.Equal(time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("OccurredAt = %v, want date midnight", got.OccurredAt)
	}

	// Region is never overwritten once set.
	third := discussionFlare(t, "M2.1", "2025-11-03", "", strPtr("4275"))
	if _, err := db.InsertFlare(ctx, third); err != nil {
		t.Fatal(err)
	}
	got, _ = db.GetFlare(ctx, first.ID)
	if *got.Region != "4274" {
		t.Errorf("region = %s, want 4274 kept", *got.Region)
	}
}

func TestInsertFlareAssignsIncreasingSeq(t *testing.T) {
	db := setupTestDB(t)

	a := primaryFlare(t, "C1.0", "2025-11-03", "08:00:00", "08:05:00", "08:10:00", nil)
	b := primaryFlare(t, "C2.0", "2025-11-03", "07:00:00", "07:05:00", "07:10:00", nil)
	mustInsert(t, db, a)
	mustInsert(t, db, b)
	if a.Seq <= 0 || b.Seq <= a.Seq {
		t.Errorf("seq a=%d b=%d, want positive and increasing", a.Seq, b.Seq)
	}
}

func TestEnrichFlareRegion(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	ev := primaryFlare(t, "M1.0", "2025-11-03", "09:30:00", "09:38:00", "09:45:00", nil)
	mustInsert(t, db, ev)

	changed, err := db.EnrichFlareRegion(ctx, ev.ID, "4274")
	if err != nil || !changed {
		t.Fatalf("EnrichFlareRegion() = %v, %v; want true, nil", changed, err)
	}
	changed, err = db.EnrichFlareRegion(ctx, ev.ID, "9999")
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("EnrichFlareRegion() overwrote a non-null region")
	}
	got, _ := db.GetFlare(ctx, ev.ID)
	if got.Region == nil || *got.Region != "4274" {
		t.Errorf("region = %v, want 4274", got.Region)
	}
}

func TestSupersedeFlare(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	disc := discussionFlare(t, "M5.0", "2025-11-03", "09:38", strPtr("4274"))
	mustInsert(t, db, disc)

	prim := primaryFlare(t, "M5.0", "2025-11-03", "09:30:00", "09:39:00", "09:50:00", nil)
	prim.Location = strPtr("N25E88")
	changed, err := db.SupersedeFlare(ctx, disc.ID, prim)
	if err != nil || !changed {
		t.Fatalf("SupersedeFlare() = %v, %v; want true, nil", changed, err)
	}

	got, err := db.GetFlare(ctx, disc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Source != models.SourcePrimaryTable {
		t.Errorf("Source = %s, want PRIMARY_TABLE", got.Source)
	}
	if got.Seq != disc.Seq {
		t.Errorf("Seq = %d, want %d kept", got.Seq, disc.Seq)
	}
	if got.Region == nil || *got.Region != "4274" {
		t.Errorf("Region = %v, want 4274 carried over", got.Region)
	}
	if got.StartTime == nil || got.StartTime.Format("15:04:05") != "09:30:00" {
		t.Errorf("StartTime = %v, want 09:30:00", got.StartTime)
	}
	if got.Fingerprint != prim.Fingerprint {
		t.Errorf("Fingerprint = %s, want primary fingerprint", got.Fingerprint)
	}

	// The row is now PRIMARY_TABLE and can never be superseded again.
	other := primaryFlare(t, "M5.1", "2025-11-03", "09:31:00", "09:39:30", "09:50:00", nil)
	changed, err = db.SupersedeFlare(ctx, disc.ID, other)
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("SupersedeFlare() rewrote a PRIMARY_TABLE row")
	}
}

func TestSupersedeFlareRejectsDiscussionReport(t *testing.T) {
	db := setupTestDB(t)
	disc := discussionFlare(t, "C3.0", "2025-11-03", "10:00", nil)
	if _, err := db.SupersedeFlare(context.Background(), uuid.New(), disc); err == nil {
		t.Error("SupersedeFlare() with a discussion report returned nil error")
	}
}

func TestGetFlareNotFound(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.GetFlare(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetFlare() error = %v, want ErrNotFound", err)
	}
}

func TestFlareWindow(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	in := primaryFlare(t, "C1.0", "2025-11-03", "08:55:00", "09:00:00", "09:05:00", nil)
	edge := primaryFlare(t, "C1.1", "2025-11-03", "09:00:00", "09:02:00", "09:05:00", nil)
	out := primaryFlare(t, "C1.2", "2025-11-03", "09:00:00", "09:10:00", "09:15:00", nil)
	undated := discussionFlare(t, "C1.3", "2025-11-03", "", nil)
	for _, ev := range []*models.FlareEvent{in, edge, out, undated} {
		mustInsert(t, db, ev)
	}

	got, err := db.FlareWindow(ctx, base.Add(-time.Minute), base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("FlareWindow() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("FlareWindow() returned %d rows, want 2", len(got))
	}
	if got[0].ID != in.ID || got[1].ID != edge.ID {
		t.Errorf("FlareWindow() = [%s %s], want [C1.0 C1.1]", got[0].ClassLabel, got[1].ClassLabel)
	}
}
