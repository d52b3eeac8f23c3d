// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package parser

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/heliotrack/internal/models"
)

// A class token optionally followed by an optical importance ("X1.5/2B", "C8.2/Sf").
const classToken = `([ABCMX]\d+(?:\.\d+)?)(?:[/-]\d?[A-Za-z]{0,2})?`

var (
	// "M1.0 flare at 0026 UTC on 02 Nov"
	dayMonthRe = regexp.MustCompile(`(?i)\b` + classToken + `\s+(?:[a-z-]+\s+)?(?:flare|event)[^.]{0,120}?(?:at\s+)?\b(\d{4})\s*UTC[^.]{0,40}?(?:on\s+)?\b(\d{1,2})\s+(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\b`)
	// "M7.4 flare occurred at 05/1119 UTC"
	compactRe = regexp.MustCompile(`(?i)\b` + classToken + `\s+(?:[a-z-]+\s+)?(?:flare|event)[^.]{0,120}?(?:at\s+)?\b(\d{2})/(\d{4})\s*UTC`)
	// "X1.5/2B flare from Region 4267", no usable time.
	regionOnlyRe = regexp.MustCompile(`(?i)\b` + classToken + `\s+(?:[a-z-]+\s+)?(?:flare|event)[^.]{0,120}?[Rr]egion\s+(\d{4,5})`)

	discussionRegionRe = regexp.MustCompile(`[Rr]egion\s+(\d{4,5})`)
	locationInTextRe   = regexp.MustCompile(`\(([NS]\d{2}[EW]\d{2})\)`)
)

var monthByAbbrev = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// regionContext is how far past a mention the region search extends.
const regionContext = 100

type mention struct {
	start int
	date  time.Time
	flare models.ProvisionalFlare
}

// repeats reports whether a region-only mention dated day restates m: same
// class, and either the same region or a date within one day.
func (m mention) repeats(class string, region *string, day time.Time) bool {
	if m.flare.ClassLabel != class {
		return false
	}
	if region != nil && m.flare.Region != nil && *region == *m.flare.Region {
		return true
	}
	gap := day.Sub(m.date)
	return gap <= 24*time.Hour && gap >= -24*time.Hour
}

// ParseDiscussion extracts flare mentions from the forecast discussion. ref
// anchors the year of day/month mentions and the month of DD/HHMM mentions;
// mentions without a time are dated on ref.
//
// A class token is reported once: a day/month mention wins over a DD/HHMM
// one, which wins over a region-only one. A region-only mention that
// restates an earlier flare of the same class (same region, or dated within
// a day) is dropped, so a flare named again later in the text is not
// reported twice.
func ParseDiscussion(text string, ref time.Time) ([]models.ProvisionalFlare, []error) {
	ref = ref.UTC()
	body := strings.Join(strings.Fields(text), " ")

	var (
		found []mention
		errs  []error
		index int
	)
	claimed := make(map[int]bool)

	for _, m := range dayMonthRe.FindAllStringSubmatchIndex(body, -1) {
		index++
		classStart := m[2]
		day, _ := strconv.Atoi(body[m[6]:m[7]])
		month := monthByAbbrev[strings.ToLower(body[m[8]:m[9]])]
		date, err := inferYear(ref, month, day)
		if err != nil {
			errs = append(errs, recordErr(FeedDiscussion, index, body[m[0]:m[1]], err))
			continue
		}
		claimed[classStart] = true
		found = append(found, mention{classStart, date, discussionFlare(body, m, date, body[m[4]:m[5]])})
	}

	for _, m := range compactRe.FindAllStringSubmatchIndex(body, -1) {
		index++
		classStart := m[2]
		if claimed[classStart] {
			continue
		}
		day, _ := strconv.Atoi(body[m[4]:m[5]])
		date, err := inferMonth(ref, day)
		if err != nil {
			errs = append(errs, recordErr(FeedDiscussion, index, body[m[0]:m[1]], err))
			continue
		}
		claimed[classStart] = true
		found = append(found, mention{classStart, date, discussionFlare(body, m, date, body[m[6]:m[7]])})
	}

	for _, m := range regionOnlyRe.FindAllStringSubmatchIndex(body, -1) {
		classStart := m[2]
		if claimed[classStart] {
			continue
		}
		claimed[classStart] = true
		day := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC)
		flare := discussionFlare(body, m, day, "")
		if restated(found, flare, day) {
			continue
		}
		found = append(found, mention{classStart, day, flare})
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].start < found[j].start })
	flares := make([]models.ProvisionalFlare, 0, len(found))
	for _, f := range found {
		flares = append(flares, f.flare)
	}
	return flares, errs
}

func restated(found []mention, flare models.ProvisionalFlare, day time.Time) bool {
	for _, f := range found {
		if f.repeats(flare.ClassLabel, flare.Region, day) {
			return true
		}
	}
	return false
}

// discussionFlare builds a record from a match. hhmm is carried as "HH:MM"
// even when out of range so the matcher sees it as malformed.
func discussionFlare(body string, m []int, date time.Time, hhmm string) models.ProvisionalFlare {
	clock := ""
	if len(hhmm) == 4 {
		clock = hhmm[:2] + ":" + hhmm[2:]
	}
	flare := models.ProvisionalFlare{
		Source:     models.SourceDiscussion,
		ClassLabel: strings.ToUpper(body[m[2]:m[3]]),
		Discussion: &models.DiscussionTiming{
			Date: date.Format(models.DateLayout),
			Time: clock,
		},
		RawText: body[m[0]:m[1]],
	}

	end := m[1] + regionContext
	if end > len(body) {
		end = len(body)
	}
	context := body[m[0]:end]
	if r := discussionRegionRe.FindStringSubmatch(context); r != nil {
		region := r[1]
		flare.Region = &region
	}
	if l := locationInTextRe.FindStringSubmatch(context); l != nil {
		loc := l[1]
		flare.Location = &loc
	}
	return flare
}

// inferYear dates a day/month mention on or before ref, allowing one day of
// clock skew.
func inferYear(ref time.Time, month time.Month, day int) (time.Time, error) {
	if month == 0 {
		return time.Time{}, fmt.Errorf("unknown month")
	}
	d := time.Date(ref.Year(), month, day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day {
		return time.Time{}, fmt.Errorf("day %d out of range for %s", day, month)
	}
	if d.After(ref.AddDate(0, 0, 1)) {
		d = time.Date(ref.Year()-1, month, day, 0, 0, 0, 0, time.UTC)
	}
	return d, nil
}

// inferMonth dates a DD/HHMM mention in ref's month, or the previous month
// when the day is later than ref's day.
func inferMonth(ref time.Time, day int) (time.Time, error) {
	if day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("day %d out of range", day)
	}
	year, month := ref.Year(), ref.Month()
	if day > ref.Day() {
		month--
		if month < time.January {
			month = time.December
			year--
		}
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day {
		return time.Time{}, fmt.Errorf("day %d out of range for %s", day, month)
	}
	return d, nil
}
