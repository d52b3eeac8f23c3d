// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/heliotrack/internal/validation"
)

// windowRequest is a half-open [From, To) query window.
type windowRequest struct {
	From        time.Time     `validate:"required"`
	To          time.Time     `validate:"required,gtefield=From"`
	Uncertainty time.Duration `validate:"gte=0,lte=720h"`
}

// auditRequest filters the reconcile audit log.
type auditRequest struct {
	Kind  string    `validate:"omitempty,oneof=flare cme"`
	Since time.Time `validate:"required"`
	Limit int       `validate:"gte=1,lte=1000"`
}

// parseTimeParam accepts RFC 3339 timestamps and YYYY-MM-DD dates.
func parseTimeParam(r *http.Request, key string, def time.Time) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, time.UTC); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%s must be an RFC 3339 timestamp or a YYYY-MM-DD date", key)
}

// parseDurationParam accepts Go durations ("7h", "90m") and bare hours ("7").
func parseDurationParam(r *http.Request, key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	if h, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(h * float64(time.Hour)), nil
	}
	return 0, fmt.Errorf("%s must be a duration such as 7h", key)
}

func getIntParam(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}

// parseWindow reads from/to/uncertainty with the given defaults.
func parseWindow(r *http.Request, from, to time.Time, uncertainty time.Duration) (windowRequest, error) {
	var req windowRequest
	var err error
	if req.From, err = parseTimeParam(r, "from", from); err != nil {
		return req, err
	}
	if req.To, err = parseTimeParam(r, "to", to); err != nil {
		return req, err
	}
	if req.Uncertainty, err = parseDurationParam(r, "uncertainty", uncertainty); err != nil {
		return req, err
	}
	return req, validation.ValidateStruct(req)
}
