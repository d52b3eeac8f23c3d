// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/heliotrack/internal/config"
	"github.com/tomtom215/heliotrack/internal/database"
	"github.com/tomtom215/heliotrack/internal/models"
	"github.com/tomtom215/heliotrack/internal/report"
	"github.com/tomtom215/heliotrack/internal/validation"
)

// Store is the read side of the database. *database.DB satisfies it.
type Store interface {
	QueryOccurredFlares(ctx context.Context, t0, t1 time.Time) ([]models.FlareEvent, error)
	QueryOccurredCMEs(ctx context.Context, t0, t1 time.Time) ([]models.CmeEvent, error)
	QueryArrivals(ctx context.Context, t0, t1 time.Time, uncertainty time.Duration) ([]models.ArrivalRow, error)
	ListAuditEntries(ctx context.Context, kind string, since time.Time, limit int) ([]models.AuditEntry, error)
	Ping(ctx context.Context) error
}

// ReportBuilder builds report data. *report.Builder satisfies it.
type ReportBuilder interface {
	Build(ctx context.Context, now time.Time) (*report.Report, error)
}

// Handler serves the read API.
type Handler struct {
	store   Store
	reports ReportBuilder
	query   config.QueryConfig
	clock   func() time.Time
	started time.Time
}

// NewHandler returns a handler. query supplies the default windows.
func NewHandler(store Store, reports ReportBuilder, query config.QueryConfig) *Handler {
	return &Handler{
		store:   store,
		reports: reports,
		query:   query,
		clock:   time.Now,
		started: time.Now(),
	}
}

func (h *Handler) now() time.Time {
	return h.clock().UTC()
}

// Flares returns flares whose occurrence lies in [from, to). The default
// window is the last LookbackWindow.
func (h *Handler) Flares(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	req, ok := h.window(w, r, now.Add(-h.query.LookbackWindow), now, 0)
	if !ok {
		return
	}
	start := time.Now()
	flares, err := h.store.QueryOccurredFlares(r.Context(), req.From, req.To)
	if err != nil {
		h.storeError(w, err)
		return
	}
	respondData(w, flares, windowMeta(req, len(flares), start))
}

// CMEs returns CMEs starting in [from, to) with their analyses and runs.
func (h *Handler) CMEs(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	req, ok := h.window(w, r, now.Add(-h.query.LookbackWindow), now, 0)
	if !ok {
		return
	}
	start := time.Now()
	cmes, err := h.store.QueryOccurredCMEs(r.Context(), req.From, req.To)
	if err != nil {
		h.storeError(w, err)
		return
	}
	respondData(w, cmes, windowMeta(req, len(cmes), start))
}

// Arrivals returns model runs whose predicted arrival ± uncertainty
// overlaps [from, to). The default window is the next ForecastWindow with
// ArrivalUncertainty.
func (h *Handler) Arrivals(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	req, ok := h.window(w, r, now, now.Add(h.query.ForecastWindow), h.query.ArrivalUncertainty)
	if !ok {
		return
	}
	start := time.Now()
	rows, err := h.store.QueryArrivals(r.Context(), req.From, req.To, req.Uncertainty)
	if err != nil {
		h.storeError(w, err)
		return
	}
	respondData(w, rows, windowMeta(req, len(rows), start))
}

// Report returns the assembled report data for now.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rep, err := h.reports.Build(r.Context(), h.now())
	if err != nil {
		h.storeError(w, err)
		return
	}
	respondData(w, rep, Metadata{
		QueryTimeMS: time.Since(start).Milliseconds(),
		WindowStart: &rep.WindowStart,
		WindowEnd:   &rep.WindowEnd,
	})
}

// Audit lists recent reconcile decisions, newest first.
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	since, err := parseTimeParam(r, "since", h.now().Add(-24*time.Hour))
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil, nil)
		return
	}
	req := auditRequest{
		Kind:  r.URL.Query().Get("kind"),
		Since: since,
		Limit: getIntParam(r, "limit", 100),
	}
	if err := validation.ValidateStruct(req); err != nil {
		validationError(w, err)
		return
	}
	start := time.Now()
	entries, err := h.store.ListAuditEntries(r.Context(), req.Kind, req.Since, req.Limit)
	if err != nil {
		h.storeError(w, err)
		return
	}
	n := len(entries)
	respondData(w, entries, Metadata{QueryTimeMS: time.Since(start).Milliseconds(), Count: &n, WindowStart: &req.Since})
}

// Healthz reports that the process is serving.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	respondData(w, map[string]any{
		"status":         "ok",
		"uptime_seconds": time.Since(h.started).Seconds(),
	}, Metadata{})
}

// Readyz reports whether the database answers.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, CodeUnavailable, "Database is not ready", nil, err)
		return
	}
	respondData(w, map[string]string{"status": "ready"}, Metadata{})
}

func (h *Handler) window(w http.ResponseWriter, r *http.Request, from, to time.Time, u time.Duration) (windowRequest, bool) {
	req, err := parseWindow(r, from, to, u)
	if err != nil {
		validationError(w, err)
		return req, false
	}
	return req, true
}

func (h *Handler) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, database.ErrInvalidWindow) {
		respondError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil, nil)
		return
	}
	respondError(w, http.StatusInternalServerError, CodeDatabase, "Query failed", nil, err)
}

func validationError(w http.ResponseWriter, err error) {
	var verr *validation.Error
	if errors.As(err, &verr) {
		respondError(w, http.StatusBadRequest, CodeValidation, verr.Error(), verr.Fields, nil)
		return
	}
	respondError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil, nil)
}

func windowMeta(req windowRequest, count int, start time.Time) Metadata {
	from, to := req.From, req.To
	return Metadata{
		QueryTimeMS: time.Since(start).Milliseconds(),
		Count:       &count,
		WindowStart: &from,
		WindowEnd:   &to,
	}
}
