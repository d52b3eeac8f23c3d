// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

// Package matcher decides whether a provisional flare report describes a
// flare already present in the reconciled window.
//
// Rules are evaluated in a fixed order and the first rule that produces a
// match wins:
//
//  1. PRIMARY_TABLE vs stored PRIMARY_TABLE: peak times within 60s.
//  2. DISCUSSION_TEXT vs stored PRIMARY_TABLE: reported time within 120s of the peak.
//  3. PRIMARY_TABLE vs stored DISCUSSION_TEXT: peak within 120s of the reported time.
//
// Every pair is also subject to the magnitude guard: same class letter and a
// magnitude difference of at most 0.2. The matcher holds no state; the
// caller passes the window it read from the store.
package matcher

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/heliotrack/internal/models"
)

// Decision is the outcome of matching one provisional report.
type Decision string

const (
	// DecisionNew means no stored flare matches; insert the report.
	DecisionNew Decision = "NEW"
	// DecisionDuplicate means the report adds nothing to the matched flare.
	DecisionDuplicate Decision = "DUPLICATE"
	// DecisionEnrich means the matched flare has no region and the report supplies one.
	DecisionEnrich Decision = "ENRICH"
	// DecisionSupersede means a PRIMARY_TABLE report replaces a stored DISCUSSION_TEXT flare.
	DecisionSupersede Decision = "SUPERSEDE"
	// DecisionAmbiguous means more than one stored flare matched under the winning rule.
	DecisionAmbiguous Decision = "AMBIGUOUS"
)

// Rule names the matching rule that produced a decision.
type Rule string

const (
	RuleNone                Rule = "none"
	RuleSameSourcePeak      Rule = "same_source_peak"
	RuleDiscussionVsPrimary Rule = "discussion_vs_primary"
	RulePrimaryVsDiscussion Rule = "primary_vs_discussion"
)

// Config holds the matching tolerances.
type Config struct {
	SameSourceTolerance  time.Duration
	CrossSourceTolerance time.Duration
	MagnitudeTolerance   float64
}

// DefaultConfig returns the standard tolerances.
func DefaultConfig() Config {
	return Config{
		SameSourceTolerance:  60 * time.Second,
		CrossSourceTolerance: 120 * time.Second,
		MagnitudeTolerance:   0.2,
	}
}

// Result describes a match decision.
type Result struct {
	Decision Decision
	Rule     Rule

	// Target is the stored flare the decision applies to. Nil for NEW and AMBIGUOUS.
	Target *models.FlareEvent

	// Candidates lists every stored flare that matched when Decision is AMBIGUOUS.
	Candidates []uuid.UUID

	// Degraded is set when the report's own comparison time was unusable and
	// every rule was skipped.
	Degraded bool
}

// Matcher applies the rules with a fixed configuration.
type Matcher struct {
	cfg Config
}

// New creates a Matcher using cfg as given. A MagnitudeTolerance of 0
// requires identical magnitudes; config validation rejects the rest of the
// non-positive values before they reach here.
func New(cfg Config) *Matcher {
	return &Matcher{cfg: cfg}
}

// Config returns the tolerances in use.
func (m *Matcher) Config() Config {
	return m.cfg
}

// ruleOrder is the fixed evaluation order.
var ruleOrder = []Rule{RuleSameSourcePeak, RuleDiscussionVsPrimary, RulePrimaryVsDiscussion}

// ruleFor returns the rule governing an (incoming, stored) source pair.
// Every combination of known sources is listed; DISCUSSION_TEXT against
// DISCUSSION_TEXT has no rule and never matches.
func ruleFor(incoming, stored models.Source) (Rule, bool) {
	switch incoming {
	case models.SourcePrimaryTable:
		switch stored {
		case models.SourcePrimaryTable:
			return RuleSameSourcePeak, true
		case models.SourceDiscussion:
			return RulePrimaryVsDiscussion, true
		}
	case models.SourceDiscussion:
		switch stored {
		case models.SourcePrimaryTable:
			return RuleDiscussionVsPrimary, true
		case models.SourceDiscussion:
			return RuleNone, false
		}
	}
	return RuleNone, false
}

func (m *Matcher) tolerance(r Rule) time.Duration {
	if r == RuleSameSourcePeak {
		return m.cfg.SameSourceTolerance
	}
	return m.cfg.CrossSourceTolerance
}

// Match decides how candidate relates to the stored window. The window is
// not modified.
func (m *Matcher) Match(candidate models.ProvisionalFlare, window []models.FlareEvent) Result {
	at, err := candidate.ComparisonTime()
	if err != nil {
		return Result{Decision: DecisionNew, Rule: RuleNone, Degraded: true}
	}

	for _, rule := range ruleOrder {
		var hits []int
		for i := range window {
			if m.pairMatches(rule, candidate, at, &window[i]) {
				hits = append(hits, i)
			}
		}
		switch len(hits) {
		case 0:
			continue
		case 1:
			return m.outcome(rule, candidate, &window[hits[0]])
		default:
			ids := make([]uuid.UUID, 0, len(hits))
			for _, i := range hits {
				ids = append(ids, window[i].ID)
			}
			return Result{Decision: DecisionAmbiguous, Rule: rule, Candidates: ids}
		}
	}

	return Result{Decision: DecisionNew, Rule: RuleNone}
}

func (m *Matcher) pairMatches(rule Rule, candidate models.ProvisionalFlare, at time.Time, stored *models.FlareEvent) bool {
	r, ok := ruleFor(candidate.Source, stored.Source)
	if !ok || r != rule {
		return false
	}
	storedAt, ok := stored.ComparisonTime()
	if !ok {
		return false
	}
	diff := at.Sub(storedAt)
	if diff < 0 {
		diff = -diff
	}
	if diff > m.tolerance(rule) {
		return false
	}
	return m.magnitudeCompatible(candidate.ClassLabel, stored.ClassLabel)
}

// magnitudeCompatible applies the magnitude guard. Labels that cannot be
// parsed must be equal.
func (m *Matcher) magnitudeCompatible(a, b string) bool {
	ca, errA := models.ParseFlareClass(a)
	cb, errB := models.ParseFlareClass(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	return ca.WithinTolerance(cb, m.cfg.MagnitudeTolerance)
}

func (m *Matcher) outcome(rule Rule, candidate models.ProvisionalFlare, stored *models.FlareEvent) Result {
	target := *stored
	res := Result{Rule: rule, Target: &target}

	if stored.Source == models.SourceDiscussion && candidate.Source == models.SourcePrimaryTable {
		res.Decision = DecisionSupersede
		return res
	}
	if stored.Region == nil && candidate.Region != nil {
		res.Decision = DecisionEnrich
		return res
	}
	res.Decision = DecisionDuplicate
	return res
}
