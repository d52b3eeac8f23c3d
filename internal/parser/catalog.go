// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/heliotrack/internal/models"
)

// feedTimeLayouts covers the timestamp shapes seen in the CME feeds.
var feedTimeLayouts = []string{
	"2006-01-02T15:04Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05.000Z",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// ParseFeedTime parses a CME feed timestamp as UTC.
func ParseFeedTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range feedTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

type catalogCME struct {
	ActivityID      string            `json:"activityID"`
	StartTime       string            `json:"startTime"`
	SourceLocation  string            `json:"sourceLocation"`
	ActiveRegionNum *json.Number      `json:"activeRegionNum"`
	Note            string            `json:"note"`
	Link            string            `json:"link"`
	LinkedEvents    []catalogLink     `json:"linkedEvents"`
	Analyses        []catalogAnalysis `json:"cmeAnalyses"`
}

type catalogLink struct {
	ActivityID string `json:"activityID"`
}

type catalogAnalysis struct {
	IsMostAccurate bool           `json:"isMostAccurate"`
	Time215        string         `json:"time21_5"`
	Latitude       *float64       `json:"latitude"`
	Longitude      *float64       `json:"longitude"`
	HalfAngle      *float64       `json:"halfAngle"`
	Speed          *float64       `json:"speed"`
	FeatureCode    *string        `json:"featureCode"`
	EnlilList      []catalogEnlil `json:"enlilList"`
}

type catalogEnlil struct {
	EstimatedShockArrivalTime *string         `json:"estimatedShockArrivalTime"`
	RminRe                    *float64        `json:"rmin_re"`
	Kp90                      *int            `json:"kp_90"`
	Kp135                     *int            `json:"kp_135"`
	Kp180                     *int            `json:"kp_180"`
	ImpactList                []catalogImpact `json:"impactList"`
}

type catalogImpact struct {
	Location    string  `json:"location"`
	ArrivalTime *string `json:"arrivalTime"`
}

// featureCodes maps catalog feature codes to analysis types. A missing code
// means leading edge.
var featureCodes = map[string]models.AnalysisType{
	"":   models.AnalysisLeadingEdge,
	"LE": models.AnalysisLeadingEdge,
	"SH": models.AnalysisShockFront,
}

// ParseCMECatalog decodes the structured CME catalog.
//
// When the catalog lists several analyses of the same type, the one flagged
// most accurate wins, then the one with the latest 21.5 Rs time. Each entry
// of the chosen analysis' model list is run number i+1; its shock arrival
// becomes the Earth prediction and its impact list the spacecraft ones.
func ParseCMECatalog(payload []byte) ([]models.CmeEvent, []error) {
	var raw []catalogCME
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, []error{fmt.Errorf("%w: %v", ErrPayload, err)}
	}

	var (
		cmes []models.CmeEvent
		errs []error
	)
	for i, rc := range raw {
		cme, err := catalogEvent(rc)
		if err != nil {
			errs = append(errs, recordErr(FeedCMECatalog, i+1, rc.ActivityID, err))
			continue
		}
		cmes = append(cmes, cme)
	}
	return cmes, errs
}

func catalogEvent(rc catalogCME) (models.CmeEvent, error) {
	if strings.TrimSpace(rc.ActivityID) == "" {
		return models.CmeEvent{}, fmt.Errorf("missing activity ID")
	}
	start, err := ParseFeedTime(rc.StartTime)
	if err != nil {
		return models.CmeEvent{}, fmt.Errorf("start time: %w", err)
	}

	cme := models.CmeEvent{
		ActivityID:     strings.TrimSpace(rc.ActivityID),
		StartTime:      start,
		SourceLocation: strings.TrimSpace(rc.SourceLocation),
		NoteText:       rc.Note,
		Link:           rc.Link,
	}
	if rc.ActiveRegionNum != nil {
		if n, err := rc.ActiveRegionNum.Int64(); err == nil && n > 0 {
			region := strconv.FormatInt(n, 10)
			cme.SourceRegion = &region
		}
	}
	for _, l := range rc.LinkedEvents {
		if strings.Contains(l.ActivityID, "-FLR-") {
			ref := l.ActivityID
			cme.AssociatedFlareRef = &ref
			break
		}
	}
	applyNote(&cme, rc.Note)

	chosen := make(map[models.AnalysisType]catalogAnalysis)
	for _, a := range rc.Analyses {
		code := ""
		if a.FeatureCode != nil {
			code = strings.ToUpper(strings.TrimSpace(*a.FeatureCode))
		}
		typ, ok := featureCodes[code]
		if !ok {
			continue
		}
		if prev, seen := chosen[typ]; seen && !preferAnalysis(a, prev) {
			continue
		}
		chosen[typ] = a
	}
	for _, typ := range []models.AnalysisType{models.AnalysisLeadingEdge, models.AnalysisShockFront} {
		if a, ok := chosen[typ]; ok {
			cme.Analyses = append(cme.Analyses, catalogAnalysisModel(typ, a))
		}
	}
	return cme, nil
}

func preferAnalysis(candidate, current catalogAnalysis) bool {
	if candidate.IsMostAccurate != current.IsMostAccurate {
		return candidate.IsMostAccurate
	}
	ct, cerr := ParseFeedTime(candidate.Time215)
	pt, perr := ParseFeedTime(current.Time215)
	switch {
	case cerr == nil && perr == nil:
		return !ct.Before(pt)
	case cerr == nil:
		return true
	default:
		return perr != nil
	}
}

func catalogAnalysisModel(typ models.AnalysisType, a catalogAnalysis) models.Analysis {
	an := models.Analysis{
		Type:               typ,
		Speed:              a.Speed,
		DirectionLongitude: a.Longitude,
		DirectionLatitude:  a.Latitude,
		HalfAngle:          a.HalfAngle,
	}
	for i, e := range a.EnlilList {
		runNumber := i + 1
		runs := make(map[models.RunKey]models.ModelRun)
		var order []models.RunKey

		earth := models.ModelRun{
			RunNumber:       runNumber,
			TargetBody:      models.TargetEarth,
			ClosestApproach: e.RminRe,
		}
		if e.EstimatedShockArrivalTime != nil {
			if t, err := ParseFeedTime(*e.EstimatedShockArrivalTime); err == nil {
				earth.PredictedArrival = &t
			}
		}
		earth.KpLow, earth.KpHigh = kpRange(e.Kp90, e.Kp135, e.Kp180)
		runs[earth.Key()] = earth
		order = append(order, earth.Key())

		for _, imp := range e.ImpactList {
			target := strings.TrimSpace(imp.Location)
			if target == "" || strings.EqualFold(target, models.TargetEarth) {
				continue
			}
			run := models.ModelRun{RunNumber: runNumber, TargetBody: target}
			if imp.ArrivalTime != nil {
				if t, err := ParseFeedTime(*imp.ArrivalTime); err == nil {
					run.PredictedArrival = &t
				}
			}
			if _, dup := runs[run.Key()]; !dup {
				order = append(order, run.Key())
			}
			runs[run.Key()] = run
		}
		for _, k := range order {
			an.Runs = append(an.Runs, runs[k])
		}
	}
	return an
}

// kpRange returns the lowest and highest of the non-nil Kp estimates.
func kpRange(values ...*int) (lo, hi *int) {
	for _, v := range values {
		if v == nil {
			continue
		}
		if lo == nil || *v < *lo {
			x := *v
			lo = &x
		}
		if hi == nil || *v > *hi {
			x := *v
			hi = &x
		}
	}
	return lo, hi
}
