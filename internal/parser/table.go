// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package parser

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/tomtom215/heliotrack/internal/models"
)

// Column layout of the primary event table:
//
//	# | gev_YYYYMMDD_HHMM | YYYY/MM/DD HH:MM:SS | end HH:MM:SS | peak HH:MM:SS | class | location ( region )
const (
	colEventID = 1
	colStart   = 2
	colEnd     = 3
	colPeak    = 4
	colClass   = 5
	colLoc     = 6
	minCols    = 7
)

var (
	eventIDRe  = regexp.MustCompile(`^gev_(\d{4})(\d{2})(\d{2})_\d{4}$`)
	startRe    = regexp.MustCompile(`^(\d{4})/(\d{2})/(\d{2})\s+(\S+)$`)
	tableClass = regexp.MustCompile(`^[ABCMX]\d+(\.\d{1,2})?$`)
	locationRe = regexp.MustCompile(`[NS]\d{2}[EW]\d{2}`)
	regionRe   = regexp.MustCompile(`\(\s*(\d{4,5})\s*\)`)
)

// ParsePrimaryTable extracts flare rows from the HTML event table. Rows that
// are not event rows (headers, notes) are ignored; event rows with an
// unusable class or date are dropped with a RecordError.
func ParsePrimaryTable(doc string) ([]models.ProvisionalFlare, []error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, []error{fmt.Errorf("%w: %v", ErrPayload, err)}
	}

	var (
		flares []models.ProvisionalFlare
		errs   []error
		index  int
	)
	for _, cells := range tableRows(root) {
		if len(cells) < minCols || !eventIDRe.MatchString(cells[colEventID]) {
			continue
		}
		index++
		flare, err := tableRow(cells)
		if err != nil {
			errs = append(errs, recordErr(FeedPrimaryTable, index, cells[colEventID], err))
			continue
		}
		flares = append(flares, flare)
	}
	return flares, errs
}

func tableRow(cells []string) (models.ProvisionalFlare, error) {
	class := strings.ToUpper(cells[colClass])
	if !tableClass.MatchString(class) {
		return models.ProvisionalFlare{}, fmt.Errorf("unrecognized class %q", cells[colClass])
	}

	timing := &models.TableTiming{
		Peak: cells[colPeak],
		End:  cells[colEnd],
	}
	if m := startRe.FindStringSubmatch(cells[colStart]); m != nil {
		timing.Date = m[1] + "-" + m[2] + "-" + m[3]
		timing.Start = m[4]
	} else if id := eventIDRe.FindStringSubmatch(cells[colEventID]); id != nil {
		// Start cell unreadable; the event ID still dates the row.
		timing.Date = id[1] + "-" + id[2] + "-" + id[3]
		timing.Start = cells[colStart]
	} else {
		return models.ProvisionalFlare{}, fmt.Errorf("no date in %q", cells[colStart])
	}

	flare := models.ProvisionalFlare{
		Source:     models.SourcePrimaryTable,
		ClassLabel: class,
		Table:      timing,
		RawText:    strings.Join(cells, " | "),
	}
	if loc := locationRe.FindString(cells[colLoc]); loc != "" {
		flare.Location = &loc
	}
	if m := regionRe.FindStringSubmatch(cells[colLoc]); m != nil {
		region := m[1]
		flare.Region = &region
	}
	return flare, nil
}

// tableRows returns the normalized text of every cell of every <tr>.
func tableRows(n *html.Node) [][]string {
	var rows [][]string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Tr {
			var cells []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
					cells = append(cells, nodeText(c))
				}
			}
			rows = append(rows, cells)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return rows
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
