// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package models

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source identifies which feed produced a flare report.
type Source string

const (
	// SourcePrimaryTable is the tabular event list with full start/peak/end timing.
	SourcePrimaryTable Source = "PRIMARY_TABLE"
	// SourceDiscussion is the prose forecast discussion reporting one approximate time.
	SourceDiscussion Source = "DISCUSSION_TEXT"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourcePrimaryTable, SourceDiscussion:
		return true
	default:
		return false
	}
}

// Timestamp layouts used by the flare variants after parser normalization.
const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04:05"
	ShortClock  = "15:04"
)

// Errors returned by the timing accessors.
var (
	ErrNoTimestamp     = errors.New("timestamp not reported")
	ErrMalformedTime   = errors.New("malformed timestamp")
	ErrVariantMismatch = errors.New("flare variant does not match source")
	ErrUnknownSource   = errors.New("unknown flare source")
	ErrMissingDate     = errors.New("occurrence date not reported")
	ErrMalformedDate   = errors.New("malformed occurrence date")
)

// TableTiming is the timing payload of a PRIMARY_TABLE report.
// Times are wall-clock UTC on Date; a peak or end earlier than the start
// belongs to the following day.
type TableTiming struct {
	Date  string `json:"date" validate:"required"`
	Start string `json:"start"`
	Peak  string `json:"peak"`
	End   string `json:"end"`
}

// DiscussionTiming is the timing payload of a DISCUSSION_TEXT report.
// Time is empty when the discussion mentions a flare without a time.
type DiscussionTiming struct {
	Date string `json:"date" validate:"required"`
	Time string `json:"time"`
}

// ProvisionalFlare is an unreconciled flare report. Exactly one of Table or
// Discussion is set, matching Source.
type ProvisionalFlare struct {
	Source     Source            `json:"source" validate:"required,oneof=PRIMARY_TABLE DISCUSSION_TEXT"`
	ClassLabel string            `json:"class_label" validate:"required,max=8"`
	Region     *string           `json:"region,omitempty" validate:"omitempty,numeric,max=6"`
	Location   *string           `json:"location,omitempty" validate:"omitempty,max=16"`
	Table      *TableTiming      `json:"table,omitempty" validate:"omitempty"`
	Discussion *DiscussionTiming `json:"discussion,omitempty" validate:"omitempty"`
	RawText    string            `json:"raw_text,omitempty"`
}

// CheckVariant verifies that the timing payload agrees with Source.
func (p ProvisionalFlare) CheckVariant() error {
	switch p.Source {
	case SourcePrimaryTable:
		if p.Table == nil || p.Discussion != nil {
			return fmt.Errorf("%w: %s", ErrVariantMismatch, p.Source)
		}
	case SourceDiscussion:
		if p.Discussion == nil || p.Table != nil {
			return fmt.Errorf("%w: %s", ErrVariantMismatch, p.Source)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSource, p.Source)
	}
	return nil
}

// OccurrenceDate returns the UTC calendar date the flare was reported on.
func (p ProvisionalFlare) OccurrenceDate() (time.Time, error) {
	var raw string
	switch p.Source {
	case SourcePrimaryTable:
		if p.Table == nil {
			return time.Time{}, ErrVariantMismatch
		}
		raw = p.Table.Date
	case SourceDiscussion:
		if p.Discussion == nil {
			return time.Time{}, ErrVariantMismatch
		}
		raw = p.Discussion.Date
	default:
		return time.Time{}, ErrUnknownSource
	}
	return parseDate(raw)
}

// ComparisonTime returns the timestamp the matcher compares: the peak for a
// PRIMARY_TABLE report, the single reported time for a DISCUSSION_TEXT one.
func (p ProvisionalFlare) ComparisonTime() (time.Time, error) {
	switch p.Source {
	case SourcePrimaryTable:
		if p.Table == nil {
			return time.Time{}, ErrVariantMismatch
		}
		return p.Table.PeakTime()
	case SourceDiscussion:
		if p.Discussion == nil {
			return time.Time{}, ErrVariantMismatch
		}
		return p.Discussion.ReportedTime()
	default:
		return time.Time{}, ErrUnknownSource
	}
}

// Fingerprint identifies a report independent of later region backfill.
// Two deliveries of the same report yield the same fingerprint.
func (p ProvisionalFlare) Fingerprint() string {
	parts := []string{string(p.Source), strings.ToUpper(strings.TrimSpace(p.ClassLabel))}
	switch {
	case p.Table != nil:
		parts = append(parts, p.Table.Date, p.Table.Start, p.Table.Peak, p.Table.End)
	case p.Discussion != nil:
		parts = append(parts, p.Discussion.Date, p.Discussion.Time)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:16])
}

// StartTime returns the parsed start time.
func (t TableTiming) StartTime() (time.Time, error) {
	return combine(t.Date, t.Start)
}

// PeakTime returns the parsed peak time, rolled to the next day when it is
// earlier than the start.
func (t TableTiming) PeakTime() (time.Time, error) {
	return t.rolled(t.Peak)
}

// EndTime returns the parsed end time, rolled like PeakTime.
func (t TableTiming) EndTime() (time.Time, error) {
	return t.rolled(t.End)
}

func (t TableTiming) rolled(clock string) (time.Time, error) {
	ts, err := combine(t.Date, clock)
	if err != nil {
		return time.Time{}, err
	}
	if start, serr := t.StartTime(); serr == nil && ts.Before(start) {
		ts = ts.AddDate(0, 0, 1)
	}
	return ts, nil
}

// ReportedTime returns the single time given by the discussion.
func (d DiscussionTiming) ReportedTime() (time.Time, error) {
	return combine(d.Date, d.Time)
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrMissingDate
	}
	for _, layout := range []string{DateLayout, "2006/01/02"} {
		if d, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedDate, raw)
}

func combine(date, clock string) (time.Time, error) {
	clock = strings.TrimSpace(clock)
	if clock == "" {
		return time.Time{}, ErrNoTimestamp
	}
	d, err := parseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	var tod time.Time
	for _, layout := range []string{ClockLayout, ShortClock} {
		if tod, err = time.ParseInLocation(layout, clock, time.UTC); err == nil {
			return d.Add(time.Duration(tod.Hour())*time.Hour +
				time.Duration(tod.Minute())*time.Minute +
				time.Duration(tod.Second())*time.Second), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTime, clock)
}

// FlareEvent is a reconciled flare stored in the rolling window.
//
// Region is the only field promoted after insert, and only from nil. A
// DISCUSSION_TEXT row may be superseded in place by the PRIMARY_TABLE report
// of the same flare; a PRIMARY_TABLE row is never rewritten.
//
// OccurredAt is the peak (or reported) time, falling back to midnight of
// OccurrenceDate when the report carried a date but no parseable time. It is
// nil when neither could be determined.
type FlareEvent struct {
	ID             uuid.UUID  `json:"id"`
	Seq            int64      `json:"seq"`
	OccurrenceDate *time.Time `json:"occurrence_date,omitempty"`
	StartTime      *time.Time `json:"start_time,omitempty"`
	PeakTime       *time.Time `json:"peak_time,omitempty"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	OccurredAt     *time.Time `json:"occurred_at,omitempty"`
	ClassLabel     string     `json:"class_label"`
	Region         *string    `json:"region,omitempty"`
	Location       *string    `json:"location,omitempty"`
	Source         Source     `json:"source"`
	Degraded       bool       `json:"degraded"`
	Fingerprint    string     `json:"-"`
	RawText        string     `json:"-"`
	IngestedAt     time.Time  `json:"ingested_at"`
}

// NewFlareEvent builds the stored form of p. Unparseable timestamps are left
// nil and the event is marked degraded when the comparison time is missing.
func NewFlareEvent(p ProvisionalFlare, now time.Time) FlareEvent {
	ev := FlareEvent{
		ID:          uuid.New(),
		ClassLabel:  strings.ToUpper(strings.TrimSpace(p.ClassLabel)),
		Region:      p.Region,
		Location:    p.Location,
		Source:      p.Source,
		Fingerprint: p.Fingerprint(),
		RawText:     p.RawText,
		IngestedAt:  now.UTC(),
	}
	if d, err := p.OccurrenceDate(); err == nil {
		ev.OccurrenceDate = &d
	}
	if p.Table != nil {
		ev.StartTime = timePtr(p.Table.StartTime())
		ev.EndTime = timePtr(p.Table.EndTime())
	}
	ev.PeakTime = timePtr(p.ComparisonTime())
	switch {
	case ev.PeakTime != nil:
		ev.OccurredAt = ev.PeakTime
	case ev.OccurrenceDate != nil:
		ev.OccurredAt = ev.OccurrenceDate
	}
	ev.Degraded = ev.PeakTime == nil
	return ev
}

// ComparisonTime returns the stored peak used for matching.
func (e FlareEvent) ComparisonTime() (time.Time, bool) {
	if e.PeakTime == nil {
		return time.Time{}, false
	}
	return *e.PeakTime, true
}

// Class parses the stored class label.
func (e FlareEvent) Class() (FlareClass, error) {
	return ParseFlareClass(e.ClassLabel)
}

func timePtr(t time.Time, err error) *time.Time {
	if err != nil {
		return nil
	}
	return &t
}
