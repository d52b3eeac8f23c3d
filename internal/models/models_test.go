// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package models

import (
	"errors"
	"testing"
	"time"
)

func TestParseFlareClass(t *testing.T) {
	t.Parallel()

	tests := []struct {
		label      string
		wantLetter byte
		wantHund   int
		wantErr    bool
	}{
		{"M5.0", 'M', 500, false},
		{"X1.1", 'X', 110, false},
		{"x10.5", 'X', 1050, false},
		{"C8", 'C', 800, false},
		{"B2.25", 'B', 225, false},
		{" M1.7 ", 'M', 170, false},
		{"Q1.0", 0, 0, true},
		{"M", 0, 0, true},
		{"M.5", 0, 0, true},
		{"M1.234", 0, 0, true},
		{"M1.", 0, 0, true},
		{"", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			t.Parallel()
			got, err := ParseFlareClass(tt.label)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidFlareClass) {
					t.Errorf("ParseFlareClass(%q) error = %v, want ErrInvalidFlareClass", tt.label, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFlareClass(%q) unexpected error: %v", tt.label, err)
			}
			if got.Letter != tt.wantLetter || got.Hundredths != tt.wantHund {
				t.Errorf("ParseFlareClass(%q) = %c/%d, want %c/%d", tt.label, got.Letter, got.Hundredths, tt.wantLetter, tt.wantHund)
			}
		})
	}
}

func TestFlareClassWithinTolerance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want bool
	}{
		{"X1.1", "X1.2", true},
		{"X1.0", "X1.2", true},
		{"X1.1", "X1.5", false},
		{"M5.0", "M5.0", true},
		{"M5.0", "X5.0", false},
		{"C9.9", "M1.0", false},
	}

	for _, tt := range tests {
		a, _ := ParseFlareClass(tt.a)
		b, _ := ParseFlareClass(tt.b)
		if got := a.WithinTolerance(b, 0.2); got != tt.want {
			t.Errorf("%s.WithinTolerance(%s, 0.2) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestFlareClassFluxOrdering(t *testing.T) {
	t.Parallel()

	order := []string{"A9.9", "B1.0", "C5.0", "M1.0", "M5.0", "X1.0"}
	for i := 1; i < len(order); i++ {
		lo, _ := ParseFlareClass(order[i-1])
		hi, _ := ParseFlareClass(order[i])
		if lo.Flux() >= hi.Flux() {
			t.Errorf("Flux(%s) = %g should be below Flux(%s) = %g", order[i-1], lo.Flux(), order[i], hi.Flux())
		}
	}
}

func TestTableTimingRollover(t *testing.T) {
	t.Parallel()

	tt := TableTiming{Date: "2025-11-03", Start: "23:52:00", Peak: "00:04:00", End: "00:10:00"}

	peak, err := tt.PeakTime()
	if err != nil {
		t.Fatalf("PeakTime() error: %v", err)
	}
	want := time.Date(2025, 11, 4, 0, 4, 0, 0, time.UTC)
	if !peak.Equal(want) {
		t.Errorf("PeakTime() = %v, want %v", peak, want)
	}

	same := TableTiming{Date: "2025/11/03", Start: "09:21:00", Peak: "09:38:00"}
	peak, err = same.PeakTime()
	if err != nil {
		t.Fatalf("PeakTime() error: %v", err)
	}
	want = time.Date(2025, 11, 3, 9, 38, 0, 0, time.UTC)
	if !peak.Equal(want) {
		t.Errorf("PeakTime() = %v, want %v", peak, want)
	}
}

func TestComparisonTimeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		p    ProvisionalFlare
		want error
	}{
		{
			name: "malformed peak",
			p:    ProvisionalFlare{Source: SourcePrimaryTable, Table: &TableTiming{Date: "2025-11-03", Peak: "9h38"}},
			want: ErrMalformedTime,
		},
		{
			name: "discussion without time",
			p:    ProvisionalFlare{Source: SourceDiscussion, Discussion: &DiscussionTiming{Date: "2025-11-03"}},
			want: ErrNoTimestamp,
		},
		{
			name: "variant mismatch",
			p:    ProvisionalFlare{Source: SourceDiscussion, Table: &TableTiming{Date: "2025-11-03"}},
			want: ErrVariantMismatch,
		},
		{
			name: "unknown source",
			p:    ProvisionalFlare{Source: "RADIO"},
			want: ErrUnknownSource,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := tt.p.ComparisonTime(); !errors.Is(err, tt.want) {
				t.Errorf("ComparisonTime() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCheckVariant(t *testing.T) {
	t.Parallel()

	ok := ProvisionalFlare{Source: SourceDiscussion, Discussion: &DiscussionTiming{Date: "2025-11-03", Time: "09:38"}}
	if err := ok.CheckVariant(); err != nil {
		t.Errorf("CheckVariant() = %v, want nil", err)
	}

	both := ProvisionalFlare{
		Source:     SourcePrimaryTable,
		Table:      &TableTiming{Date: "2025-11-03"},
		Discussion: &DiscussionTiming{Date: "2025-11-03"},
	}
	if err := both.CheckVariant(); !errors.Is(err, ErrVariantMismatch) {
		t.Errorf("CheckVariant() = %v, want ErrVariantMismatch", err)
	}
}

func TestFingerprintIgnoresRegion(t *testing.T) {
	t.Parallel()

	region := "4274"
	a := ProvisionalFlare{Source: SourcePrimaryTable, ClassLabel: "M5.0", Table: &TableTiming{Date: "2025-11-03", Peak: "09:38:00"}}
	b := a
	b.Region = &region

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("Fingerprint() changed when only the region differs")
	}

	c := a
	c.ClassLabel = "M5.1"
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("Fingerprint() collided for different class labels")
	}
}

func TestNewFlareEventDegraded(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)
	p := ProvisionalFlare{Source: SourceDiscussion, ClassLabel: "c3.2", Discussion: &DiscussionTiming{Date: "2025-11-03"}}

	ev := NewFlareEvent(p, now)
	if !ev.Degraded {
		t.Error("Degraded = false, want true")
	}
	if ev.PeakTime != nil {
		t.Errorf("PeakTime = %v, want nil", ev.PeakTime)
	}
	if ev.OccurredAt == nil || !ev.OccurredAt.Equal(time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("OccurredAt = %v, want occurrence date midnight", ev.OccurredAt)
	}
	if ev.ClassLabel != "C3.2" {
		t.Errorf("ClassLabel = %q, want C3.2", ev.ClassLabel)
	}
}

func TestContentHashStable(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 11, 4, 17, 33, 0, 0, time.UTC)
	arrival := start.Add(60 * time.Hour)
	mk := func() CmeEvent {
		return CmeEvent{
			ActivityID: "2025-11-04T17:33:00-CME-001",
			StartTime:  start,
			Analyses: []Analysis{
				{Type: AnalysisShockFront, Runs: []ModelRun{{RunNumber: 1, TargetBody: TargetEarth, PredictedArrival: &arrival}}},
				{Type: AnalysisLeadingEdge, Runs: []ModelRun{
					{RunNumber: 2, TargetBody: "STEREO A"},
					{RunNumber: 1, TargetBody: TargetEarth, PredictedArrival: &arrival},
				}},
			},
		}
	}

	a := mk()
	a.Normalize()
	b := mk()
	b.Analyses[0], b.Analyses[1] = b.Analyses[1], b.Analyses[0]
	b.Normalize()

	if a.ContentHash() != b.ContentHash() {
		t.Error("ContentHash() differs for reordered children")
	}
	if a.Analyses[0].Type != AnalysisLeadingEdge || a.Analyses[0].Runs[0].RunNumber != 1 {
		t.Errorf("Normalize() order = %s run %d, want LEADING_EDGE run 1", a.Analyses[0].Type, a.Analyses[0].Runs[0].RunNumber)
	}

	later := arrival.Add(time.Hour)
	b.Analyses[0].Runs[0].PredictedArrival = &later
	if a.ContentHash() == b.ContentHash() {
		t.Error("ContentHash() unchanged after prediction refinement")
	}
}
