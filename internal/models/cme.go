// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package models

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// AnalysisType is the trajectory feature a CME analysis tracks.
type AnalysisType string

const (
	AnalysisLeadingEdge AnalysisType = "LEADING_EDGE"
	AnalysisShockFront  AnalysisType = "SHOCK_FRONT"
)

// Valid reports whether a is a known analysis type.
func (a AnalysisType) Valid() bool {
	return a == AnalysisLeadingEdge || a == AnalysisShockFront
}

// TargetEarth is the target body name for geomagnetic predictions.
const TargetEarth = "Earth"

// CmeEvent is a coronal mass ejection aggregate keyed on ActivityID.
type CmeEvent struct {
	ID                 uuid.UUID  `json:"id"`
	Seq                int64      `json:"seq"`
	ActivityID         string     `json:"activity_id" validate:"required,max=64"`
	StartTime          time.Time  `json:"start_time" validate:"required"`
	SourceLocation     string     `json:"source_location,omitempty" validate:"max=32"`
	SourceRegion       *string    `json:"source_region,omitempty" validate:"omitempty,numeric,max=6"`
	AssociatedFlareRef *string    `json:"associated_flare_ref,omitempty" validate:"omitempty,max=64"`
	NoteText           string     `json:"note_text,omitempty"`
	Link               string     `json:"link,omitempty" validate:"omitempty,url"`
	Analyses           []Analysis `json:"analyses" validate:"dive"`
	IngestedAt         time.Time  `json:"ingested_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Analysis is one trajectory analysis of a CME.
type Analysis struct {
	ID                 uuid.UUID    `json:"id"`
	CmeID              uuid.UUID    `json:"cme_id"`
	Type               AnalysisType `json:"analysis_type" validate:"required,oneof=LEADING_EDGE SHOCK_FRONT"`
	Speed              *float64     `json:"speed,omitempty" validate:"omitempty,gte=0"`
	DirectionLongitude *float64     `json:"direction_longitude,omitempty" validate:"omitempty,gte=-180,lte=360"`
	DirectionLatitude  *float64     `json:"direction_latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	HalfAngle          *float64     `json:"half_angle,omitempty" validate:"omitempty,gte=0,lte=180"`
	Runs               []ModelRun   `json:"model_runs" validate:"dive"`
}

// ModelRun is one arrival prediction of an analysis for one target body.
// A nil PredictedArrival means no impact is predicted for the target.
type ModelRun struct {
	ID               uuid.UUID  `json:"id"`
	AnalysisID       uuid.UUID  `json:"analysis_id"`
	RunNumber        int        `json:"run_number" validate:"gte=1"`
	TargetBody       string     `json:"target_body" validate:"required,max=64"`
	PredictedArrival *time.Time `json:"predicted_arrival_time,omitempty"`
	KpLow            *int       `json:"kp_estimate_low,omitempty" validate:"omitempty,gte=0,lte=9"`
	KpHigh           *int       `json:"kp_estimate_high,omitempty" validate:"omitempty,gte=0,lte=9"`
	ClosestApproach  *float64   `json:"closest_approach_distance,omitempty"`
}

// RunKey is the natural key of a ModelRun within its analysis.
type RunKey struct {
	RunNumber  int
	TargetBody string
}

// Key returns the natural key of r.
func (r ModelRun) Key() RunKey {
	return RunKey{RunNumber: r.RunNumber, TargetBody: r.TargetBody}
}

// ArrivalRow is one ModelRun together with its owning analysis and CME.
// CME.Analyses and Analysis.Runs are not populated.
type ArrivalRow struct {
	CME      CmeEvent `json:"cme"`
	Analysis Analysis `json:"analysis"`
	Run      ModelRun `json:"model_run"`
}

// Normalize sorts analyses by type and runs by (run number, target) so that
// equal content yields an equal ContentHash.
func (c *CmeEvent) Normalize() {
	sort.SliceStable(c.Analyses, func(i, j int) bool {
		return c.Analyses[i].Type < c.Analyses[j].Type
	})
	for i := range c.Analyses {
		runs := c.Analyses[i].Runs
		sort.SliceStable(runs, func(a, b int) bool {
			if runs[a].RunNumber != runs[b].RunNumber {
				return runs[a].RunNumber < runs[b].RunNumber
			}
			return runs[a].TargetBody < runs[b].TargetBody
		})
	}
}

type hashedRun struct {
	RunNumber        int        `json:"n"`
	TargetBody       string     `json:"t"`
	PredictedArrival *time.Time `json:"a,omitempty"`
	KpLow            *int       `json:"kl,omitempty"`
	KpHigh           *int       `json:"kh,omitempty"`
	ClosestApproach  *float64   `json:"c,omitempty"`
}

type hashedAnalysis struct {
	Type      AnalysisType `json:"t"`
	Speed     *float64     `json:"s,omitempty"`
	Lon       *float64     `json:"lo,omitempty"`
	Lat       *float64     `json:"la,omitempty"`
	HalfAngle *float64     `json:"h,omitempty"`
	Runs      []hashedRun  `json:"r"`
}

type hashedCME struct {
	ActivityID string           `json:"id"`
	Start      time.Time        `json:"st"`
	Location   string           `json:"lo"`
	Region     *string          `json:"rg,omitempty"`
	Flare      *string          `json:"fl,omitempty"`
	Note       string           `json:"n"`
	Link       string           `json:"l"`
	Analyses   []hashedAnalysis `json:"a"`
}

// ContentHash digests the feed-supplied content of the aggregate, ignoring
// store-assigned identity and timestamps. Call Normalize first.
func (c CmeEvent) ContentHash() string {
	h := hashedCME{
		ActivityID: c.ActivityID,
		Start:      c.StartTime.UTC(),
		Location:   c.SourceLocation,
		Region:     c.SourceRegion,
		Flare:      c.AssociatedFlareRef,
		Note:       c.NoteText,
		Link:       c.Link,
		Analyses:   make([]hashedAnalysis, 0, len(c.Analyses)),
	}
	for _, a := range c.Analyses {
		ha := hashedAnalysis{
			Type: a.Type, Speed: a.Speed, Lon: a.DirectionLongitude,
			Lat: a.DirectionLatitude, HalfAngle: a.HalfAngle,
			Runs: make([]hashedRun, 0, len(a.Runs)),
		}
		for _, r := range a.Runs {
			var arrival *time.Time
			if r.PredictedArrival != nil {
				t := r.PredictedArrival.UTC()
				arrival = &t
			}
			ha.Runs = append(ha.Runs, hashedRun{
				RunNumber: r.RunNumber, TargetBody: r.TargetBody, PredictedArrival: arrival,
				KpLow: r.KpLow, KpHigh: r.KpHigh, ClosestApproach: r.ClosestApproach,
			})
		}
		h.Analyses = append(h.Analyses, ha)
	}
	buf, err := json.Marshal(h)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}
