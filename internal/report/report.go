// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

// Package report assembles the data behind the daily space weather report.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/heliotrack/internal/models"
)

// Store is the read side used to build a report. *database.DB satisfies it.
type Store interface {
	QueryOccurredFlares(ctx context.Context, t0, t1 time.Time) ([]models.FlareEvent, error)
	QueryOccurredCMEs(ctx context.Context, t0, t1 time.Time) ([]models.CmeEvent, error)
	QueryArrivals(ctx context.Context, t0, t1 time.Time, uncertainty time.Duration) ([]models.ArrivalRow, error)
}

// Config sets the report windows.
type Config struct {
	Lookback    time.Duration
	Forecast    time.Duration
	Uncertainty time.Duration
}

// DefaultConfig covers the last 24h of activity and the next 72h of
// arrivals with a ±7h uncertainty.
func DefaultConfig() Config {
	return Config{Lookback: 24 * time.Hour, Forecast: 72 * time.Hour, Uncertainty: 7 * time.Hour}
}

// classLetters is the report order of class counts.
var classLetters = []string{"X", "M", "C", "B", "A"}

// Report is the assembled data.
type Report struct {
	GeneratedAt   time.Time           `json:"generated_at"`
	WindowStart   time.Time           `json:"window_start"`
	WindowEnd     time.Time           `json:"window_end"`
	ForecastEnd   time.Time           `json:"forecast_end"`
	Flares        []models.FlareEvent `json:"flares"`
	FlareSummary  FlareSummary        `json:"flare_summary"`
	CMEs          []models.CmeEvent   `json:"cmes"`
	ArrivalGroups []ArrivalGroup      `json:"arrival_groups"`
	EarthArrivals int                 `json:"earth_arrivals"`
}

// FlareSummary counts flares by class letter.
type FlareSummary struct {
	Total     int                `json:"total"`
	ByClass   map[string]int     `json:"by_class"`
	Strongest *models.FlareEvent `json:"strongest,omitempty"`
}

// ArrivalGroup collects the model runs of one CME analysis. Earliest and
// Latest bound the predicted arrivals; their distance is the convergence
// span of the model runs.
type ArrivalGroup struct {
	CmeID        uuid.UUID           `json:"cme_id"`
	ActivityID   string              `json:"activity_id"`
	StartTime    time.Time           `json:"start_time"`
	AnalysisType models.AnalysisType `json:"analysis_type"`
	Speed        *float64            `json:"speed,omitempty"`
	Earliest     time.Time           `json:"earliest"`
	Latest       time.Time           `json:"latest"`
	SpanHours    float64             `json:"span_hours"`
	KpHigh       *int                `json:"kp_high,omitempty"`
	Runs         []models.ModelRun   `json:"model_runs"`
}

// Builder builds reports from a store.
type Builder struct {
	store Store
	cfg   Config
}

// NewBuilder returns a builder. Zero durations take the defaults.
func NewBuilder(store Store, cfg Config) *Builder {
	def := DefaultConfig()
	if cfg.Lookback <= 0 {
		cfg.Lookback = def.Lookback
	}
	if cfg.Forecast <= 0 {
		cfg.Forecast = def.Forecast
	}
	if cfg.Uncertainty < 0 {
		cfg.Uncertainty = def.Uncertainty
	}
	return &Builder{store: store, cfg: cfg}
}

// Build assembles flares and CMEs in [now-Lookback, now) and arrivals in
// [now, now+Forecast) widened by the uncertainty.
func (b *Builder) Build(ctx context.Context, now time.Time) (*Report, error) {
	now = now.UTC()
	r := &Report{
		GeneratedAt: now,
		WindowStart: now.Add(-b.cfg.Lookback),
		WindowEnd:   now,
		ForecastEnd: now.Add(b.cfg.Forecast),
	}

	var arrivals []models.ArrivalRow
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		r.Flares, err = b.store.QueryOccurredFlares(gctx, r.WindowStart, r.WindowEnd)
		if err != nil {
			return fmt.Errorf("query flares: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		r.CMEs, err = b.store.QueryOccurredCMEs(gctx, r.WindowStart, r.WindowEnd)
		if err != nil {
			return fmt.Errorf("query cmes: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		arrivals, err = b.store.QueryArrivals(gctx, now, r.ForecastEnd, b.cfg.Uncertainty)
		if err != nil {
			return fmt.Errorf("query arrivals: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.FlareSummary = Summarize(r.Flares)
	r.ArrivalGroups = GroupArrivals(arrivals)
	for _, a := range arrivals {
		if a.Run.TargetBody == models.TargetEarth {
			r.EarthArrivals++
		}
	}
	return r, nil
}

// Summarize counts flares per class letter and picks the strongest by flux.
// Flares with an unparseable class count toward Total only. Ties keep the
// first flare seen.
func Summarize(flares []models.FlareEvent) FlareSummary {
	s := FlareSummary{Total: len(flares), ByClass: make(map[string]int, len(classLetters))}
	for _, l := range classLetters {
		s.ByClass[l] = 0
	}
	best := -1.0
	for i := range flares {
		class, err := flares[i].Class()
		if err != nil {
			continue
		}
		s.ByClass[string(class.Letter)]++
		if f := class.Flux(); f > best {
			best = f
			s.Strongest = &flares[i]
		}
	}
	return s
}

type groupKey struct {
	cme      uuid.UUID
	analysis models.AnalysisType
}

// GroupArrivals groups arrival rows by (CME, analysis type). Groups are
// ordered by their earliest arrival; rows keep their query order within a
// group.
func GroupArrivals(rows []models.ArrivalRow) []ArrivalGroup {
	groups := make([]ArrivalGroup, 0)
	index := make(map[groupKey]int)
	for _, row := range rows {
		if row.Run.PredictedArrival == nil {
			continue
		}
		at := row.Run.PredictedArrival.UTC()
		key := groupKey{cme: row.CME.ID, analysis: row.Analysis.Type}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, ArrivalGroup{
				CmeID:        row.CME.ID,
				ActivityID:   row.CME.ActivityID,
				StartTime:    row.CME.StartTime,
				AnalysisType: row.Analysis.Type,
				Speed:        row.Analysis.Speed,
				Earliest:     at,
				Latest:       at,
			})
		}
		g := &groups[i]
		if at.Before(g.Earliest) {
			g.Earliest = at
		}
		if at.After(g.Latest) {
			g.Latest = at
		}
		if row.Run.KpHigh != nil && (g.KpHigh == nil || *row.Run.KpHigh > *g.KpHigh) {
			kp := *row.Run.KpHigh
			g.KpHigh = &kp
		}
		g.Runs = append(g.Runs, row.Run)
	}
	for i := range groups {
		groups[i].SpanHours = groups[i].Latest.Sub(groups[i].Earliest).Hours()
	}
	return groups
}
