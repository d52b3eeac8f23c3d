// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

/*
Package parser turns raw feed payloads into provisional records.

Every function here is pure: the same payload (and reference time, where one
is needed to infer a year or month) always yields the same records. Parse
failures drop the offending record and are returned as *RecordError values
next to the records that did parse. Malformed timestamps inside an otherwise
recognizable flare row are not parse failures; the raw text is carried in the
provisional record so the matcher can skip the rules that need it.

Feeds:

  - ParsePrimaryTable: HTML event table with start/peak/end per flare.
  - ParseDiscussion: prose forecast discussion.
  - ParseCMECatalog: JSON CME catalog with nested analyses and model runs.
  - DecodeNotifications + ParseCMEBulletin: JSON notification list whose
    message bodies are free-text bulletins describing zero or more CMEs.
*/
package parser
