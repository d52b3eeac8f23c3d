// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package reconcile

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/tomtom215/heliotrack/internal/config"
	"github.com/tomtom215/heliotrack/internal/database"
	"github.com/tomtom215/heliotrack/internal/matcher"
	"github.com/tomtom215/heliotrack/internal/models"
)

var testDBSemaphore = make(chan struct{}, 1)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	db, err := database.New(&config.DatabaseConfig{
		Path:                   ":memory:",
		MaxMemory:              "512MB",
		Threads:                2,
		PreserveInsertionOrder: true,
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var now = time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func table(class, start, peak, end string, region *string) models.ProvisionalFlare {
	return models.ProvisionalFlare{
		Source:     models.SourcePrimaryTable,
		ClassLabel: class,
		Region:     region,
		Table:      &models.TableTiming{Date: "2025-11-02", Start: start, Peak: peak, End: end},
	}
}

func discussion(class, clock string, region *string) models.ProvisionalFlare {
	return models.ProvisionalFlare{
		Source:     models.SourceDiscussion,
		ClassLabel: class,
		Region:     region,
		Discussion: &models.DiscussionTiming{Date: "2025-11-02", Time: clock},
	}
}

func countFlares(t *testing.T, db *database.DB) int64 {
	t.Helper()
	n, err := db.CountFlares(context.Background())
	if err != nil {
		t.Fatalf("CountFlares() error = %v", err)
	}
	return n
}

func occurredFlares(t *testing.T, db *database.DB) []models.FlareEvent {
	t.Helper()
	flares, err := db.QueryOccurredFlares(context.Background(), now.Add(-24*time.Hour), now)
	if err != nil {
		t.Fatalf("QueryOccurredFlares() error = %v", err)
	}
	return flares
}

func TestReconcileFlaresSupersedeThenDuplicate(t *testing.T) {
	db := setupTestDB(t)
	r := New(db, matcher.New(matcher.DefaultConfig()))
	ctx := context.Background()

	sum, err := r.ReconcileFlares(ctx, []models.ProvisionalFlare{discussion("M1.0", "00:26", nil)}, now)
	if err != nil {
		t.Fatalf("ReconcileFlares() error = %v", err)
	}
	if sum.Inserted != 1 {
		t.Fatalf("discussion batch inserted = %d, want 1", sum.Inserted)
	}
	window, err := db.FlareWindow(ctx, now.Add(-24*time.Hour), now)
	if err != nil || len(window) != 1 {
		t.Fatalf("FlareWindow() = %v, %v", window, err)
	}
	original := window[0]

	sum, err = r.ReconcileFlares(ctx, []models.ProvisionalFlare{
		table("M1.0", "00:20", "00:27", "00:35", strPtr("4274")),
	}, now)
	if err != nil {
		t.Fatalf("ReconcileFlares() error = %v", err)
	}
	if sum.Superseded != 1 {
		t.Errorf("primary batch = %+v, want one supersede", sum)
	}

	stored, err := db.GetFlare(ctx, original.ID)
	if err != nil {
		t.Fatalf("GetFlare() error = %v", err)
	}
	if stored.Source != models.SourcePrimaryTable {
		t.Errorf("Source = %s, want PRIMARY_TABLE", stored.Source)
	}
	if stored.Seq != original.Seq {
		t.Errorf("Seq = %d, want %d", stored.Seq, original.Seq)
	}
	if stored.Region == nil || *stored.Region != "4274" {
		t.Errorf("Region = %v, want 4274", stored.Region)
	}

	sum, err = r.ReconcileFlares(ctx, []models.ProvisionalFlare{discussion("M1.1", "00:28", nil)}, now)
	if err != nil {
		t.Fatalf("ReconcileFlares() error = %v", err)
	}
	if sum.Duplicates != 1 {
		t.Errorf("late discussion = %+v, want one duplicate", sum)
	}
	if got := countFlares(t, db); got != 1 {
		t.Errorf("CountFlares() = %d, want 1", got)
	}
}

func TestReconcileFlaresSameBatch(t *testing.T) {
	db := setupTestDB(t)
	r := New(db, nil)

	batch := []models.ProvisionalFlare{
		table("X1.2", "05:10", "05:19", "05:30", nil),
		table("X1.2", "05:10", "05:19", "05:30", strPtr("4274")),
		discussion("X1.2", "05:20", nil),
		table("C3.4", "07:00", "07:04", "07:09", nil),
	}
	sum, err := r.ReconcileFlares(context.Background(), batch, now)
	if err != nil {
		t.Fatalf("ReconcileFlares() error = %v", err)
	}
	want := FlareSummary{Inserted: 2, Enriched: 1, Duplicates: 1}
	if sum != want {
		t.Errorf("ReconcileFlares() = %+v, want %+v", sum, want)
	}
	if got := countFlares(t, db); got != 2 {
		t.Errorf("CountFlares() = %d, want 2", got)
	}
}

func TestReconcileFlaresIdempotent(t *testing.T) {
	db := setupTestDB(t)
	r := New(db, nil)
	ctx := context.Background()

	batch := []models.ProvisionalFlare{
		table("M2.0", "10:00", "10:05", "10:12", strPtr("4275")),
		discussion("C5.0", "", nil),
		discussion("M7.4", "11:19", nil),
	}
	first, err := r.ReconcileFlares(ctx, batch, now)
	if err != nil {
		t.Fatalf("first ReconcileFlares() error = %v", err)
	}
	if first.Inserted != 3 || first.Degraded != 1 {
		t.Errorf("first batch = %+v, want 3 inserted with 1 degraded", first)
	}
	before := occurredFlares(t, db)

	second, err := r.ReconcileFlares(ctx, batch, now)
	if err != nil {
		t.Fatalf("second ReconcileFlares() error = %v", err)
	}
	if second.Inserted != 0 || second.Duplicates != 3 {
		t.Errorf("second batch = %+v, want 3 duplicates", second)
	}
	if got := countFlares(t, db); got != 3 {
		t.Errorf("CountFlares() = %d, want 3", got)
	}
	if after := occurredFlares(t, db); !reflect.DeepEqual(after, before) {
		t.Errorf("stored flares changed on redelivery:\n got %+v\nwant %+v", after, before)
	}
}

func TestReconcileFlaresPrimaryDiscussionRegionSequence(t *testing.T) {
	db := setupTestDB(t)
	r := New(db, nil)
	ctx := context.Background()

	steps := []struct {
		name       string
		flare      models.ProvisionalFlare
		want       FlareSummary
		wantRegion *string
	}{
		{"primary at 09:38:00", table("M5.0", "09:21:00", "09:38:00", "09:45:00", nil), FlareSummary{Inserted: 1}, nil},
		{"discussion 40s later", discussion("M5.0", "09:38:40", nil), FlareSummary{Duplicates: 1}, nil},
		{"primary names region 4274", table("M5.0", "09:21:00", "09:38:00", "09:45:00", strPtr("4274")), FlareSummary{Enriched: 1}, strPtr("4274")},
		{"conflicting region 9999", table("M5.0", "09:21:00", "09:38:00", "09:45:00", strPtr("9999")), FlareSummary{Duplicates: 1}, strPtr("4274")},
	}

	var first models.FlareEvent
	for i, step := range steps {
		sum, err := r.ReconcileFlares(ctx, []models.ProvisionalFlare{step.flare}, now)
		if err != nil {
			t.Fatalf("%s: ReconcileFlares() error = %v", step.name, err)
		}
		if sum != step.want {
			t.Errorf("%s: ReconcileFlares() = %+v, want %+v", step.name, sum, step.want)
		}

		flares := occurredFlares(t, db)
		if len(flares) != 1 {
			t.Fatalf("%s: stored %d flares, want 1", step.name, len(flares))
		}
		got := flares[0]
		if i == 0 {
			first = got
		}
		if got.ID != first.ID || got.Seq != first.Seq {
			t.Errorf("%s: flare = %s/%d, want %s/%d", step.name, got.ID, got.Seq, first.ID, first.Seq)
		}
		if got.Source != models.SourcePrimaryTable {
			t.Errorf("%s: Source = %s, want PRIMARY_TABLE", step.name, got.Source)
		}
		if got.PeakTime == nil || !got.PeakTime.Equal(time.Date(2025, 11, 2, 9, 38, 0, 0, time.UTC)) {
			t.Errorf("%s: PeakTime = %v, want 09:38:00", step.name, got.PeakTime)
		}
		switch {
		case step.wantRegion == nil && got.Region != nil:
			t.Errorf("%s: Region = %s, want nil", step.name, *got.Region)
		case step.wantRegion != nil && (got.Region == nil || *got.Region != *step.wantRegion):
			t.Errorf("%s: Region = %v, want %s", step.name, got.Region, *step.wantRegion)
		}
	}
}

func TestReconcileFlaresAmbiguous(t *testing.T) {
	db := setupTestDB(t)
	r := New(db, nil)
	ctx := context.Background()

	for _, p := range []models.ProvisionalFlare{
		table("C1.0", "09:55", "10:00:00", "10:05", nil),
		table("C1.0", "09:56", "10:00:50", "10:06", nil),
	} {
		ev := models.NewFlareEvent(p, now)
		if _, err := db.InsertFlare(ctx, &ev); err != nil {
			t.Fatalf("InsertFlare() error = %v", err)
		}
	}

	sum, err := r.ReconcileFlares(ctx, []models.ProvisionalFlare{
		table("C1.1", "09:55", "10:00:25", "10:05", nil),
	}, now)
	if err != nil {
		t.Fatalf("ReconcileFlares() error = %v", err)
	}
	if sum.Ambiguous != 1 {
		t.Errorf("ReconcileFlares() = %+v, want one ambiguous", sum)
	}
	if got := countFlares(t, db); got != 2 {
		t.Errorf("CountFlares() = %d, want 2", got)
	}

	entries, err := db.ListAuditEntries(ctx, models.AuditKindFlare, now.Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("ListAuditEntries() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Decision != string(matcher.DecisionAmbiguous) || entries[0].CandidateCount != 2 {
		t.Errorf("audit entries = %+v, want one AMBIGUOUS with 2 candidates", entries)
	}
}

func TestReconcileFlaresMagnitudeGuard(t *testing.T) {
	db := setupTestDB(t)
	r := New(db, nil)

	sum, err := r.ReconcileFlares(context.Background(), []models.ProvisionalFlare{
		table("M1.0", "00:20", "00:27", "00:35", nil),
		discussion("M1.3", "00:27", nil),
	}, now)
	if err != nil {
		t.Fatalf("ReconcileFlares() error = %v", err)
	}
	if sum.Inserted != 2 {
		t.Errorf("ReconcileFlares() = %+v, want 2 inserted", sum)
	}
}

func TestReconcileFlaresDropsInvalid(t *testing.T) {
	db := setupTestDB(t)
	r := New(db, nil)

	bad := table("", "00:20", "00:27", "00:35", nil)
	mismatched := discussion("M1.0", "00:26", nil)
	mismatched.Table = &models.TableTiming{Date: "2025-11-02"}

	sum, err := r.ReconcileFlares(context.Background(), []models.ProvisionalFlare{bad, mismatched}, now)
	if err != nil {
		t.Fatalf("ReconcileFlares() error = %v", err)
	}
	if sum.Invalid != 2 || sum.Inserted != 0 {
		t.Errorf("ReconcileFlares() = %+v, want 2 invalid", sum)
	}
}

func TestReconcileCMEsRejectsEarlyArrival(t *testing.T) {
	db := setupTestDB(t)
	r := New(db, nil)
	ctx := context.Background()

	start := now.Add(-3 * time.Hour)
	early := start.Add(-time.Hour)
	late := start.Add(50 * time.Hour)
	cme := models.CmeEvent{
		ActivityID: "2025-11-02T09:00:00-CME-001",
		StartTime:  start,
		Analyses: []models.Analysis{{
			Type: models.AnalysisLeadingEdge,
			Runs: []models.ModelRun{
				{RunNumber: 1, TargetBody: models.TargetEarth, PredictedArrival: &early},
				{RunNumber: 2, TargetBody: models.TargetEarth, PredictedArrival: &late},
			},
		}},
	}
	batch := []models.CmeEvent{cme}

	sum, err := r.ReconcileCMEs(ctx, batch, now)
	if err != nil {
		t.Fatalf("ReconcileCMEs() error = %v", err)
	}
	if sum.Inserted != 1 || sum.RejectedRuns != 1 {
		t.Errorf("ReconcileCMEs() = %+v, want 1 inserted with 1 rejected run", sum)
	}
	if got := len(batch[0].Analyses[0].Runs); got != 2 {
		t.Errorf("caller batch runs = %d, want 2 (unmodified)", got)
	}

	stored, err := db.GetCMEByActivityID(ctx, cme.ActivityID)
	if err != nil {
		t.Fatalf("GetCMEByActivityID() error = %v", err)
	}
	if len(stored.Analyses) != 1 || len(stored.Analyses[0].Runs) != 1 {
		t.Fatalf("stored analyses = %+v, want one analysis with one run", stored.Analyses)
	}
	if run := stored.Analyses[0].Runs[0]; run.RunNumber != 2 {
		t.Errorf("kept run = %d, want 2", run.RunNumber)
	}

	sum, err = r.ReconcileCMEs(ctx, batch, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("second ReconcileCMEs() error = %v", err)
	}
	if sum.Unchanged != 1 {
		t.Errorf("second ReconcileCMEs() = %+v, want unchanged", sum)
	}

	entries, err := db.ListAuditEntries(ctx, models.AuditKindCME, now.Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("ListAuditEntries() error = %v", err)
	}
	if len(entries) != 2 || entries[0].Decision != DecisionRejectedRun {
		t.Errorf("audit entries = %+v, want 2 REJECTED_RUN entries", entries)
	}
}

func TestReconcileCMEsDropsInvalid(t *testing.T) {
	db := setupTestDB(t)
	r := New(db, nil)

	sum, err := r.ReconcileCMEs(context.Background(), []models.CmeEvent{{StartTime: now}}, now)
	if err != nil {
		t.Fatalf("ReconcileCMEs() error = %v", err)
	}
	if sum.Invalid != 1 {
		t.Errorf("ReconcileCMEs() = %+v, want 1 invalid", sum)
	}
}
