// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/heliotrack/internal/models"
)

// Bulletin is one free-text CME notification.
type Bulletin struct {
	MessageID string    `json:"message_id"`
	IssuedAt  time.Time `json:"issued_at"`
	URL       string    `json:"url,omitempty"`
	Body      string    `json:"body"`
}

type notification struct {
	MessageType      string `json:"messageType"`
	MessageID        string `json:"messageID"`
	MessageURL       string `json:"messageURL"`
	MessageIssueTime string `json:"messageIssueTime"`
	MessageBody      string `json:"messageBody"`
}

// DecodeNotifications extracts CME bulletins from a notification list.
// Non-CME messages are skipped.
func DecodeNotifications(payload []byte) ([]Bulletin, error) {
	var raw []notification
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayload, err)
	}
	bulletins := make([]Bulletin, 0, len(raw))
	for _, n := range raw {
		if !strings.EqualFold(n.MessageType, "CME") {
			continue
		}
		b := Bulletin{MessageID: n.MessageID, URL: n.MessageURL, Body: n.MessageBody}
		if t, err := ParseFeedTime(n.MessageIssueTime); err == nil {
			b.IssuedAt = t
		}
		bulletins = append(bulletins, b)
	}
	return bulletins, nil
}

// syntheticIDSpace namespaces activity IDs synthesized for unidentified CMEs.
var syntheticIDSpace = uuid.MustParse("6f1c8e52-3a4b-5d7e-9f10-2b3c4d5e6f70")

var (
	blockStartRe = regexp.MustCompile(`(?i)Starting time of the event:\s*(\S+?)\.?(?:\s|$)`)
	speedRe      = regexp.MustCompile(`(?i)Estimated speed:\s*~?\s*(\d+(?:\.\d+)?)\s*km/s`)
	halfAngleRe  = regexp.MustCompile(`(?i)half-angle:\s*(\d+(?:\.\d+)?)\s*deg`)
	directionRe  = regexp.MustCompile(`(?i)Direction\s*\(lon\./lat\.\):\s*(-?\d+(?:\.\d+)?)\s*/\s*(-?\d+(?:\.\d+)?)`)
	activityIDRe = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}-CME-\d{3})\b`)
	arrivalRe    = regexp.MustCompile(`(?i)(?:(leading edge|shock|flank)[^.]{0,80}?)?(?:reach|arrive at|impact)\s+((?:NASA )?[A-Za-z][A-Za-z0-9 \-]*?)\s*(?:\([^)]*\)\s*)?at about\s+(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}(?::\d{2})?Z)`)
	kpRangeRe    = regexp.MustCompile(`(?i)Kp index is\s*(\d)\s*-\s*(\d)`)
	runNumberRe  = regexp.MustCompile(`(?i)\brun\s*#\s*(\d+)`)
)

// bulletinBlock is the text describing one CME.
type bulletinBlock struct {
	text  string
	start string
}

// ParseCMEBulletin extracts every CME a bulletin describes. Each "Starting
// time of the event" opens a block; text before the first block is the
// summary. Summary paragraphs are attributed to the CME whose activity ID
// they mention most recently, or to the only CME when there is one.
//
// A block without an activity ID gets a synthesized one derived from the
// message ID and block position, so redelivery maps to the same CME.
// Bulletins without any block are informational and yield nothing.
func ParseCMEBulletin(b Bulletin) ([]models.CmeEvent, []error) {
	locs := blockStartRe.FindAllStringSubmatchIndex(b.Body, -1)
	if len(locs) == 0 {
		return nil, nil
	}

	summary := b.Body[:locs[0][0]]
	blocks := make([]bulletinBlock, len(locs))
	for i, loc := range locs {
		end := len(b.Body)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		blocks[i] = bulletinBlock{text: b.Body[loc[0]:end], start: b.Body[loc[2]:loc[3]]}
	}

	var (
		cmes []models.CmeEvent
		errs []error
	)
	ids := make([]string, len(blocks))
	built := make([]*models.CmeEvent, len(blocks))
	for i, blk := range blocks {
		cme, err := bulletinCME(b, i, blk)
		if err != nil {
			errs = append(errs, recordErr(FeedCMEBulletin, i+1, b.MessageID, err))
			continue
		}
		ids[i] = cme.ActivityID
		built[i] = &cme
	}

	for _, para := range attributeSummary(summary, ids) {
		if built[para.block] == nil {
			continue
		}
		addPredictions(built[para.block], para.text)
	}

	for _, c := range built {
		if c != nil {
			cmes = append(cmes, *c)
		}
	}
	return cmes, errs
}

func bulletinCME(b Bulletin, index int, blk bulletinBlock) (models.CmeEvent, error) {
	start, err := ParseFeedTime(blk.start)
	if err != nil {
		return models.CmeEvent{}, fmt.Errorf("start time: %w", err)
	}

	cme := models.CmeEvent{StartTime: start, NoteText: strings.TrimSpace(blk.text), Link: b.URL}
	if m := activityIDRe.FindStringSubmatch(blk.text); m != nil {
		cme.ActivityID = m[1]
	} else {
		cme.ActivityID = syntheticActivityID(b.MessageID, index, start)
	}
	applyNote(&cme, blk.text)

	le := models.Analysis{Type: models.AnalysisLeadingEdge}
	measured := false
	if m := speedRe.FindStringSubmatch(blk.text); m != nil {
		le.Speed = parseFloatPtr(m[1])
		measured = true
	}
	if m := halfAngleRe.FindStringSubmatch(blk.text); m != nil {
		le.HalfAngle = parseFloatPtr(m[1])
		measured = true
	}
	if m := directionRe.FindStringSubmatch(blk.text); m != nil {
		le.DirectionLongitude = parseFloatPtr(m[1])
		le.DirectionLatitude = parseFloatPtr(m[2])
		measured = true
	}
	if measured {
		cme.Analyses = append(cme.Analyses, le)
	}
	addPredictions(&cme, blk.text)
	return cme, nil
}

func syntheticActivityID(messageID string, index int, start time.Time) string {
	id := uuid.NewSHA1(syntheticIDSpace, []byte(messageID+"/"+strconv.Itoa(index)))
	return start.Format("2006-01-02T15:04:05") + "-CME-" + id.String()[:8]
}

type summaryPara struct {
	block int
	text  string
}

// attributeSummary splits summary into paragraphs and assigns each to a
// block index. Paragraphs that cannot be attributed are dropped.
func attributeSummary(summary string, ids []string) []summaryPara {
	current := -1
	if len(ids) == 1 {
		current = 0
	}
	var out []summaryPara
	for _, para := range strings.Split(summary, "\n\n") {
		mentioned := activityIDRe.FindAllString(para, -1)
		if len(mentioned) > 0 {
			last := mentioned[len(mentioned)-1]
			for i, id := range ids {
				if id == last {
					current = i
				}
			}
		}
		if current >= 0 && strings.TrimSpace(para) != "" {
			out = append(out, summaryPara{block: current, text: para})
		}
	}
	return out
}

// addPredictions adds one model run per arrival sentence in text. Sentences
// naming the shock go to the SHOCK_FRONT analysis, all others to
// LEADING_EDGE. A Kp range in the same text applies to Earth predictions.
func addPredictions(cme *models.CmeEvent, text string) {
	flat := strings.Join(strings.Fields(text), " ")
	var kpLow, kpHigh *int
	if m := kpRangeRe.FindStringSubmatch(flat); m != nil {
		kpLow, kpHigh = parseIntPtr(m[1]), parseIntPtr(m[2])
	}

	for _, sentence := range strings.SplitAfter(flat, ". ") {
		for _, m := range arrivalRe.FindAllStringSubmatch(sentence, -1) {
			arrival, err := ParseFeedTime(m[3])
			if err != nil {
				continue
			}
			typ := models.AnalysisLeadingEdge
			if strings.EqualFold(m[1], "shock") {
				typ = models.AnalysisShockFront
			}
			run := models.ModelRun{RunNumber: 1, TargetBody: targetBody(m[2]), PredictedArrival: &arrival}
			if r := runNumberRe.FindStringSubmatch(sentence); r != nil {
				if n, err := strconv.Atoi(r[1]); err == nil && n > 0 {
					run.RunNumber = n
				}
			}
			if run.TargetBody == models.TargetEarth {
				run.KpLow, run.KpHigh = kpLow, kpHigh
			}
			upsertRun(analysisOf(cme, typ), run)
		}
	}
}

func analysisOf(cme *models.CmeEvent, typ models.AnalysisType) *models.Analysis {
	for i := range cme.Analyses {
		if cme.Analyses[i].Type == typ {
			return &cme.Analyses[i]
		}
	}
	cme.Analyses = append(cme.Analyses, models.Analysis{Type: typ})
	return &cme.Analyses[len(cme.Analyses)-1]
}

func upsertRun(a *models.Analysis, run models.ModelRun) {
	for i := range a.Runs {
		if a.Runs[i].Key() == run.Key() {
			a.Runs[i] = run
			return
		}
	}
	a.Runs = append(a.Runs, run)
}

// targetBody maps bulletin phrasing to a target name.
func targetBody(phrase string) string {
	p := strings.TrimSpace(phrase)
	lower := strings.ToLower(p)
	if lower == "earth" || strings.Contains(lower, "near earth") {
		return models.TargetEarth
	}
	for _, prefix := range []string{"nasa's ", "nasa ", "the "} {
		if strings.HasPrefix(lower, prefix) {
			p = p[len(prefix):]
			lower = lower[len(prefix):]
		}
	}
	return p
}

func parseFloatPtr(s string) *float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func parseIntPtr(s string) *int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}
