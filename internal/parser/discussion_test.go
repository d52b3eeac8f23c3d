// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package parser

import (
	"testing"
	"time"

	"github.com/tomtom215/heliotrack/internal/models"
)

const discussionFixture = `:Product: Forecast Discussion
:Issued: 2025 Nov 03 1230 UTC

Solar Activity

.24 hr Summary...
Solar activity reached high levels. The largest event was an M5.0 flare at
03/0938 UTC from Region 4274 (N25E88). A C8.2
long-duration flare at 2346 UTC on 02 Nov was also observed from Region 4272.
An X1.5/2B flare from Region 4267 was reported late in the period.

.Forecast...
M-class flares (R1-Minor/R2-Moderate) are likely over 03-05 Nov.
`

func TestParseDiscussion(t *testing.T) {
	t.Parallel()

	ref := time.Date(2025, 11, 3, 12, 30, 0, 0, time.UTC)
	flares, errs := ParseDiscussion(discussionFixture, ref)
	if len(errs) != 0 {
		t.Fatalf("ParseDiscussion() errors: %v", errs)
	}
	if len(flares) != 3 {
		t.Fatalf("ParseDiscussion() returned %d flares, want 3: %+v", len(flares), flares)
	}

	tests := []struct {
		class  string
		date   string
		clock  string
		region string
	}{
		{"M5.0", "2025-11-03", "09:38", "4274"},
		{"C8.2", "2025-11-02", "23:46", "4272"},
		{"X1.5", "2025-11-03", "", "4267"},
	}
	for i, tt := range tests {
		f := flares[i]
		if f.Source != models.SourceDiscussion {
			t.Errorf("flares[%d].Source = %s, want DISCUSSION_TEXT", i, f.Source)
		}
		if f.ClassLabel != tt.class {
			t.Errorf("flares[%d].ClassLabel = %s, want %s", i, f.ClassLabel, tt.class)
		}
		if f.Discussion.Date != tt.date || f.Discussion.Time != tt.clock {
			t.Errorf("flares[%d] timing = %s %s, want %s %s", i, f.Discussion.Date, f.Discussion.Time, tt.date, tt.clock)
		}
		if f.Region == nil || *f.Region != tt.region {
			t.Errorf("flares[%d].Region = %v, want %s", i, f.Region, tt.region)
		}
	}
	if flares[0].Location == nil || *flares[0].Location != "N25E88" {
		t.Errorf("flares[0].Location = %v, want N25E88", flares[0].Location)
	}
}

func TestInferMonthRollover(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ref  time.Time
		day  int
		want string
	}{
		{time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC), 3, "2025-11-03"},
		{time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC), 30, "2025-10-30"},
		{time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), 31, "2025-12-31"},
	}
	for _, tt := range tests {
		got, err := inferMonth(tt.ref, tt.day)
		if err != nil {
			t.Fatalf("inferMonth(%v, %d) error: %v", tt.ref, tt.day, err)
		}
		if got.Format(models.DateLayout) != tt.want {
			t.Errorf("inferMonth(%v, %d) = %s, want %s", tt.ref, tt.day, got.Format(models.DateLayout), tt.want)
		}
	}

	if _, err := inferMonth(time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), 30); err == nil {
		t.Error("inferMonth accepted 30 Feb")
	}
}

func TestInferYear(t *testing.T) {
	t.Parallel()

	ref := time.Date(2026, 1, 2, 6, 0, 0, 0, time.UTC)
	got, err := inferYear(ref, time.December, 31)
	if err != nil {
		t.Fatalf("inferYear() error: %v", err)
	}
	if got.Year() != 2025 {
		t.Errorf("inferYear(31 Dec) year = %d, want 2025", got.Year())
	}
}

func TestParseDiscussionMalformedClock(t *testing.T) {
	t.Parallel()

	ref := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)
	flares, _ := ParseDiscussion("An M1.0 flare at 03/2975 UTC.", ref)
	if len(flares) != 1 {
		t.Fatalf("ParseDiscussion() returned %d flares, want 1", len(flares))
	}
	if flares[0].Discussion.Time != "29:75" {
		t.Errorf("Time = %q, want raw 29:75", flares[0].Discussion.Time)
	}
	if _, err := flares[0].ComparisonTime(); err == nil {
		t.Error("ComparisonTime() accepted 29:75")
	}
}

func TestParseDiscussionRepeatedMentions(t *testing.T) {
	t.Parallel()

	ref := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		text string
		want []string // class and clock of every record
	}{
		{
			name: "restated later with same region",
			text: "An M1.0 flare at 0026 UTC on 02 Nov from Region 4274 was the largest event. " +
				"Region 4274 remained complex and the M1.0 flare from Region 4274 was impulsive.",
			want: []string{"M1.0 00:26"},
		},
		{
			name: "restated with another region within a day",
			text: "An M1.0 flare at 02/0026 UTC was observed. The M1.0 flare from Region 4275 was brief.",
			want: []string{"M1.0 00:26"},
		},
		{
			name: "region-only repeated",
			text: "An X1.5/2B flare from Region 4267 erupted. The X1.5 flare from Region 4267 was long.",
			want: []string{"X1.5 "},
		},
		{
			name: "different class kept",
			text: "An M1.0 flare at 0026 UTC on 02 Nov from Region 4274. A C3.1 flare from Region 4274 followed.",
			want: []string{"M1.0 00:26", "C3.1 "},
		},
		{
			name: "same class days earlier with another region kept",
			text: "An M1.0 flare at 0026 UTC on 28 Oct from Region 4270. An M1.0 flare from Region 4274 followed.",
			want: []string{"M1.0 00:26", "M1.0 "},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			flares, errs := ParseDiscussion(tt.text, ref)
			if len(errs) != 0 {
				t.Fatalf("ParseDiscussion() errors: %v", errs)
			}
			got := make([]string, 0, len(flares))
			for _, f := range flares {
				got = append(got, f.ClassLabel+" "+f.Discussion.Time)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ParseDiscussion() = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("flares[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
