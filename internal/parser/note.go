// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package parser

import (
	"regexp"
	"strings"

	"github.com/tomtom215/heliotrack/internal/models"
)

var (
	// "M1.7 class flare and subsequent eruption from Active Region 14274 (N27E27)"
	noteFlareRe = regexp.MustCompile(`(?i)\b([ABCMX]\d+\.\d+)\s+(?:class\s+)?flare\s+(?:and\s+subsequent\s+eruption\s+)?from\s+Active\s+Region\s+(\d+)\s*\(([NS]\d+[EW]\d+)\)`)
	// "... from AR 14274"
	noteRegionRe = regexp.MustCompile(`(?i)\bfrom\s+AR\s*(\d{4,5})\b`)
)

// applyNote fills source fields the structured payload left empty from
// note text. Structured values are never overwritten.
func applyNote(cme *models.CmeEvent, note string) {
	if note == "" {
		return
	}
	if m := noteFlareRe.FindStringSubmatch(note); m != nil {
		if cme.AssociatedFlareRef == nil {
			flare := strings.ToUpper(m[1])
			cme.AssociatedFlareRef = &flare
		}
		if cme.SourceRegion == nil {
			region := m[2]
			cme.SourceRegion = &region
		}
		if cme.SourceLocation == "" {
			cme.SourceLocation = strings.ToUpper(m[3])
		}
		return
	}
	if m := noteRegionRe.FindStringSubmatch(note); m != nil && cme.SourceRegion == nil {
		region := m[1]
		cme.SourceRegion = &region
	}
}
