// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package parser

import (
	"errors"
	"fmt"
)

// Feed names a parsed feed for error reporting and metrics labels.
type Feed string

const (
	FeedPrimaryTable Feed = "primary_table"
	FeedDiscussion   Feed = "discussion"
	FeedCMECatalog   Feed = "cme_catalog"
	FeedCMEBulletin  Feed = "cme_bulletin"
)

// ErrPayload is returned when a payload cannot be decoded at all.
var ErrPayload = errors.New("undecodable feed payload")

// RecordError describes one dropped record.
type RecordError struct {
	Feed   Feed
	Index  int
	Reason string
	Err    error
}

func (e *RecordError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s record %d: %s: %v", e.Feed, e.Index, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s record %d: %s", e.Feed, e.Index, e.Reason)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

func recordErr(feed Feed, index int, reason string, err error) error {
	return &RecordError{Feed: feed, Index: index, Reason: reason, Err: err}
}
