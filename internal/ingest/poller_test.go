// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/heliotrack/internal/models"
	"github.com/tomtom215/heliotrack/internal/parser"
	"github.com/tomtom215/heliotrack/internal/reconcile"
	"github.com/tomtom215/heliotrack/internal/wal"
)

const discussionText = `:Product: Forecast Discussion
Solar activity reached moderate levels. The largest event was an M5.0 flare at
03/0938 UTC from Region 4274 (N25E88).`

const catalogPayload = `[{"activityID": "2025-11-03T07:12:00-CME-001", "startTime": "2025-11-03T07:12Z", "cmeAnalyses": []}]`

var errUpstream = errors.New("upstream unavailable")

type fakeFetcher struct {
	tableErr, discErr, catalogErr, bulletinErr error
}

func (f *fakeFetcher) FetchPrimaryFlareTable(context.Context) (string, error) {
	return "<html><body><table></table></body></html>", f.tableErr
}

func (f *fakeFetcher) FetchFlareDiscussion(context.Context) (string, error) {
	return discussionText, f.discErr
}

func (f *fakeFetcher) FetchCMECatalog(context.Context, time.Time, time.Time) ([]byte, error) {
	return []byte(catalogPayload), f.catalogErr
}

func (f *fakeFetcher) FetchCMEBulletins(context.Context, time.Time, time.Time) ([]byte, error) {
	return []byte("[]"), f.bulletinErr
}

type fakeReconciler struct {
	mu       sync.Mutex
	failures int
	flares   int
	cmes     int
	calls    int
}

func (f *fakeReconciler) ReconcileFlares(_ context.Context, batch []models.ProvisionalFlare, _ time.Time) (reconcile.FlareSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return reconcile.FlareSummary{}, errors.New("database is locked")
	}
	f.flares += len(batch)
	return reconcile.FlareSummary{Inserted: len(batch)}, nil
}

func (f *fakeReconciler) ReconcileCMEs(_ context.Context, batch []models.CmeEvent, _ time.Time) (reconcile.CMESummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmes += len(batch)
	return reconcile.CMESummary{Inserted: len(batch)}, nil
}

func openJournal(t *testing.T, maxAttempts int) *wal.Journal {
	t.Helper()
	j, err := wal.Open(wal.Config{InMemory: true, MaxAttempts: maxAttempts})
	if err != nil {
		t.Fatalf("wal.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func newTestPoller(f Fetcher, j Journal, r Reconciler) *Poller {
	p := NewPoller(f, j, r, Config{CycleTimeout: 10 * time.Second, CMEFormat: CMEFormatCatalog})
	p.clock = func() time.Time { return time.Date(2025, 11, 3, 12, 30, 0, 0, time.UTC) }
	return p
}

func pendingCount(t *testing.T, j *wal.Journal) int {
	t.Helper()
	entries, err := j.Pending(context.Background())
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	return len(entries)
}

func TestRunCycleReconcilesAndConfirms(t *testing.T) {
	t.Parallel()
	j := openJournal(t, 3)
	rec := &fakeReconciler{}
	p := newTestPoller(&fakeFetcher{}, j, rec)

	res, err := p.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if res.Flares.Inserted != 1 || res.CMEs.Inserted != 1 {
		t.Errorf("RunCycle() = %+v, want 1 flare and 1 CME", res)
	}
	if res.FeedErrors != 0 {
		t.Errorf("FeedErrors = %d, want 0", res.FeedErrors)
	}
	if got := pendingCount(t, j); got != 0 {
		t.Errorf("pending entries = %d, want 0", got)
	}
}

func TestRunCycleFailureIsReplayed(t *testing.T) {
	t.Parallel()
	j := openJournal(t, 3)
	rec := &fakeReconciler{failures: 1}
	p := newTestPoller(&fakeFetcher{}, j, rec)
	ctx := context.Background()

	if _, err := p.RunCycle(ctx); err == nil {
		t.Fatal("RunCycle() error = nil, want reconcile failure")
	}
	entries, err := j.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Attempts != 1 {
		t.Fatalf("pending = %+v, want one entry with one attempt", entries)
	}

	n, err := p.Replay(ctx)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Replay() = %d, want 1", n)
	}
	if rec.flares != 1 {
		t.Errorf("reconciled flares = %d, want 1", rec.flares)
	}
	if got := pendingCount(t, j); got != 0 {
		t.Errorf("pending entries after replay = %d, want 0", got)
	}
}

func TestReplayDropsAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	j := openJournal(t, 2)
	rec := &fakeReconciler{failures: 10}
	p := newTestPoller(&fakeFetcher{}, j, rec)
	ctx := context.Background()

	if _, err := p.RunCycle(ctx); err == nil {
		t.Fatal("RunCycle() error = nil, want reconcile failure")
	}
	if _, err := p.Replay(ctx); err == nil {
		t.Fatal("Replay() error = nil, want reconcile failure")
	}
	if got := pendingCount(t, j); got != 0 {
		t.Errorf("pending entries = %d, want 0 after max attempts", got)
	}
	if got := j.Stats().Dropped; got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}
}

func TestRunCycleFeedFailureIsolated(t *testing.T) {
	t.Parallel()
	rec := &fakeReconciler{}
	p := newTestPoller(&fakeFetcher{discErr: errUpstream}, nil, rec)

	res, err := p.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if res.FeedErrors != 1 {
		t.Errorf("FeedErrors = %d, want 1", res.FeedErrors)
	}
	if rec.cmes != 1 || rec.flares != 0 {
		t.Errorf("reconciled flares=%d cmes=%d, want 0 and 1", rec.flares, rec.cmes)
	}
}

func TestRunCycleAllFeedsFail(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{tableErr: errUpstream, discErr: errUpstream, catalogErr: errUpstream}
	p := newTestPoller(f, nil, &fakeReconciler{})

	if _, err := p.RunCycle(context.Background()); !errors.Is(err, ErrNoFeeds) {
		t.Errorf("RunCycle() error = %v, want ErrNoFeeds", err)
	}
}

func TestMergeCMEs(t *testing.T) {
	t.Parallel()
	catalog := []models.CmeEvent{{ActivityID: "A", NoteText: "catalog"}, {ActivityID: "B"}}
	bulletin := []models.CmeEvent{{ActivityID: "A", NoteText: "bulletin"}, {ActivityID: "C"}}

	got := mergeCMEs(catalog, bulletin)
	if len(got) != 3 {
		t.Fatalf("mergeCMEs() returned %d, want 3", len(got))
	}
	if got[0].NoteText != "catalog" {
		t.Errorf("A note = %q, want catalog", got[0].NoteText)
	}
	if got[2].ActivityID != "C" {
		t.Errorf("third CME = %s, want C", got[2].ActivityID)
	}
}

func refinedBulletin(arrival string) string {
	return "## Message Type: Space Weather Notification - CME (Missions Near Earth)\n\n" +
		"CME with ID 2025-11-01T10:00:00-CME-001 is predicted to reach Earth at about " + arrival + ".\n\n" +
		"Starting time of the event: 2025-11-01T10:00Z.\n" +
		"Activity ID: 2025-11-01T10:00:00-CME-001.\n"
}

func TestBulletinCMEsPrefersLatestIssued(t *testing.T) {
	t.Parallel()

	bulletins := []parser.Bulletin{
		{MessageID: "20251101-AL-001", IssuedAt: time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC), Body: refinedBulletin("2025-11-03T12:00Z")},
		{MessageID: "20251102-AL-001", IssuedAt: time.Date(2025, 11, 2, 9, 0, 0, 0, time.UTC), Body: refinedBulletin("2025-11-03T20:00Z")},
	}
	cmes, errs := bulletinCMEs(bulletins)
	if len(errs) != 0 {
		t.Fatalf("bulletinCMEs() errors: %v", errs)
	}

	got := mergeCMEs(nil, cmes)
	if len(got) != 1 {
		t.Fatalf("mergeCMEs() returned %d, want 1", len(got))
	}
	if len(got[0].Analyses) == 0 || len(got[0].Analyses[0].Runs) == 0 {
		t.Fatalf("Analyses = %+v, want one run", got[0].Analyses)
	}
	arrival := got[0].Analyses[0].Runs[0].PredictedArrival
	want := time.Date(2025, 11, 3, 20, 0, 0, 0, time.UTC)
	if arrival == nil || !arrival.Equal(want) {
		t.Errorf("PredictedArrival = %v, want %v", arrival, want)
	}
	if bulletins[0].MessageID != "20251101-AL-001" {
		t.Errorf("bulletins reordered in place: %s first", bulletins[0].MessageID)
	}

	// The catalog still wins over any bulletin.
	catalog := []models.CmeEvent{{ActivityID: "2025-11-01T10:00:00-CME-001", NoteText: "catalog"}}
	both := mergeCMEs(catalog, cmes)
	if len(both) != 1 || both[0].NoteText != "catalog" {
		t.Errorf("mergeCMEs(catalog, bulletins) = %+v, want the catalog CME only", both)
	}
}
