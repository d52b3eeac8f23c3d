// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package parser

import (
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/heliotrack/internal/models"
)

const singleBulletin = `## NASA Goddard Space Flight Center, Space Weather Research Center ( SWRC )
## Message Type: Space Weather Notification - CME update (Missions Near Earth)
##
## Message Issue Date: 2025-11-04T21:12:22Z
## Message ID: 20251104-AL-002
##
## Summary:

Update on CME with ID 2025-11-04T17:33:00-CME-001. Simulations indicate that the leading edge of the CME will reach NASA missions near Earth at about 2025-11-06T21:00Z (plus minus 7 hours). The roughly estimated expected range of the maximum Kp index is 5-7 (moderate to severe).

The CME may also impact STEREO A (glancing blow) at about 2025-11-07T03:00Z. The shock of the CME is predicted to arrive at Earth at about 2025-11-06T18:30Z.

Starting time of the event: 2025-11-04T17:33Z.

Estimated speed: ~1200 km/s.

Estimated opening half-angle: 45 deg.

Direction (lon./lat.): 5/20 in Heliocentric Earth Equatorial Coordinates.

Activity ID: 2025-11-04T17:33:00-CME-001
`

const multiBulletin = `## Message Type: Space Weather Notification - CME (Missions Near Earth)
## Message ID: 20251105-AL-003
## Summary:

Multiple CMEs have been detected.

CME with ID 2025-11-05T02:00:00-CME-001 is predicted to reach Earth at about 2025-11-08T01:00Z.

Starting time of the event: 2025-11-05T02:00Z.
Estimated speed: ~650 km/s.
Activity ID: 2025-11-05T02:00:00-CME-001.

Starting time of the event: 2025-11-05T04:24Z.
Estimated speed: ~900 km/s.
Estimated opening half-angle: 30 deg.
The flank of this CME may impact Mars (run #2) at about 2025-11-10T12:00Z.
`

func TestParseCMEBulletinSingle(t *testing.T) {
	t.Parallel()

	cmes, errs := ParseCMEBulletin(Bulletin{MessageID: "20251104-AL-002", Body: singleBulletin})
	if len(errs) != 0 {
		t.Fatalf("ParseCMEBulletin() errors: %v", errs)
	}
	if len(cmes) != 1 {
		t.Fatalf("ParseCMEBulletin() returned %d CMEs, want 1", len(cmes))
	}

	c := cmes[0]
	if c.ActivityID != "2025-11-04T17:33:00-CME-001" {
		t.Errorf("ActivityID = %s, want 2025-11-04T17:33:00-CME-001", c.ActivityID)
	}
	if !c.StartTime.Equal(time.Date(2025, 11, 4, 17, 33, 0, 0, time.UTC)) {
		t.Errorf("StartTime = %v", c.StartTime)
	}

	var le, sh *models.Analysis
	for i := range c.Analyses {
		switch c.Analyses[i].Type {
		case models.AnalysisLeadingEdge:
			le = &c.Analyses[i]
		case models.AnalysisShockFront:
			sh = &c.Analyses[i]
		}
	}
	if le == nil || sh == nil {
		t.Fatalf("Analyses = %+v, want LEADING_EDGE and SHOCK_FRONT", c.Analyses)
	}
	if le.Speed == nil || *le.Speed != 1200 || le.HalfAngle == nil || *le.HalfAngle != 45 {
		t.Errorf("LE kinematics = %v/%v, want 1200/45", le.Speed, le.HalfAngle)
	}
	if le.DirectionLongitude == nil || *le.DirectionLongitude != 5 || le.DirectionLatitude == nil || *le.DirectionLatitude != 20 {
		t.Errorf("LE direction = %v/%v, want 5/20", le.DirectionLongitude, le.DirectionLatitude)
	}
	if len(le.Runs) != 2 {
		t.Fatalf("len(LE runs) = %d, want 2", len(le.Runs))
	}
	earth := le.Runs[0]
	if earth.TargetBody != models.TargetEarth || earth.KpLow == nil || *earth.KpLow != 5 || *earth.KpHigh != 7 {
		t.Errorf("LE Runs[0] = %+v, want Earth with Kp 5-7", earth)
	}
	if le.Runs[1].TargetBody != "STEREO A" {
		t.Errorf("LE Runs[1].TargetBody = %q, want STEREO A", le.Runs[1].TargetBody)
	}
	if len(sh.Runs) != 1 || sh.Runs[0].TargetBody != models.TargetEarth {
		t.Errorf("SH runs = %+v, want one Earth run", sh.Runs)
	}
}

func TestParseCMEBulletinMulti(t *testing.T) {
	t.Parallel()

	b := Bulletin{MessageID: "20251105-AL-003", Body: multiBulletin}
	cmes, errs := ParseCMEBulletin(b)
	if len(errs) != 0 {
		t.Fatalf("ParseCMEBulletin() errors: %v", errs)
	}
	if len(cmes) != 2 {
		t.Fatalf("ParseCMEBulletin() returned %d CMEs, want 2", len(cmes))
	}

	first := cmes[0]
	if first.ActivityID != "2025-11-05T02:00:00-CME-001" {
		t.Errorf("cmes[0].ActivityID = %s", first.ActivityID)
	}
	if len(first.Analyses) != 1 || len(first.Analyses[0].Runs) != 1 {
		t.Fatalf("cmes[0] analyses = %+v, want one LE analysis with the summary prediction", first.Analyses)
	}

	second := cmes[1]
	if !strings.HasPrefix(second.ActivityID, "2025-11-05T04:24:00-CME-") {
		t.Errorf("cmes[1].ActivityID = %s, want synthesized ID from start time", second.ActivityID)
	}
	if second.ActivityID == first.ActivityID {
		t.Error("synthesized ID collides with the identified CME")
	}
	if len(second.Analyses) != 1 || len(second.Analyses[0].Runs) != 1 {
		t.Fatalf("cmes[1] analyses = %+v, want one LE analysis with one run", second.Analyses)
	}
	mars := second.Analyses[0].Runs[0]
	if mars.TargetBody != "Mars" || mars.RunNumber != 2 {
		t.Errorf("cmes[1] run = %s #%d, want Mars #2", mars.TargetBody, mars.RunNumber)
	}

	// Redelivery synthesizes the same ID.
	again, _ := ParseCMEBulletin(b)
	if again[1].ActivityID != second.ActivityID {
		t.Errorf("synthesized ID not stable: %s vs %s", again[1].ActivityID, second.ActivityID)
	}
}

func TestParseCMEBulletinInformational(t *testing.T) {
	t.Parallel()

	cmes, errs := ParseCMEBulletin(Bulletin{MessageID: "x", Body: "## Weekly space weather summary. No CMEs."})
	if len(cmes) != 0 || len(errs) != 0 {
		t.Errorf("ParseCMEBulletin() = %d CMEs, %d errors, want none", len(cmes), len(errs))
	}
}

func TestDecodeNotifications(t *testing.T) {
	t.Parallel()

	payload := `[
	  {"messageType": "FLR", "messageID": "a", "messageBody": "flare"},
	  {"messageType": "CME", "messageID": "20251104-AL-002", "messageIssueTime": "2025-11-04T21:12Z",
	   "messageURL": "https://kauai.ccmc.gsfc.nasa.gov/DONKI/view/Alert/1/1", "messageBody": "body"}
	]`
	got, err := DecodeNotifications([]byte(payload))
	if err != nil {
		t.Fatalf("DecodeNotifications() error: %v", err)
	}
	if len(got) != 1 || got[0].MessageID != "20251104-AL-002" {
		t.Fatalf("DecodeNotifications() = %+v, want only the CME message", got)
	}
	if !got[0].IssuedAt.Equal(time.Date(2025, 11, 4, 21, 12, 0, 0, time.UTC)) {
		t.Errorf("IssuedAt = %v", got[0].IssuedAt)
	}
}
