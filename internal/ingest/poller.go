// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

// Package ingest runs the poll cycle: fetch and parse every feed, journal
// the parsed batch, reconcile it and confirm it.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/heliotrack/internal/logging"
	"github.com/tomtom215/heliotrack/internal/metrics"
	"github.com/tomtom215/heliotrack/internal/models"
	"github.com/tomtom215/heliotrack/internal/parser"
	"github.com/tomtom215/heliotrack/internal/reconcile"
	"github.com/tomtom215/heliotrack/internal/wal"
)

// CME feed selection.
const (
	CMEFormatCatalog  = "catalog"
	CMEFormatBulletin = "bulletin"
	CMEFormatBoth     = "both"
)

// ErrNoFeeds is returned when every feed failed in a cycle.
var ErrNoFeeds = errors.New("no feed could be fetched")

// Fetcher retrieves raw feed payloads. *feeds.Client satisfies it.
type Fetcher interface {
	FetchPrimaryFlareTable(ctx context.Context) (string, error)
	FetchFlareDiscussion(ctx context.Context) (string, error)
	FetchCMECatalog(ctx context.Context, from, to time.Time) ([]byte, error)
	FetchCMEBulletins(ctx context.Context, from, to time.Time) ([]byte, error)
}

// Journal persists batches until they are reconciled. *wal.Journal
// satisfies it.
type Journal interface {
	Write(ctx context.Context, kind string, payload any) (string, error)
	Confirm(ctx context.Context, id string) error
	Pending(ctx context.Context) ([]*wal.Entry, error)
	RecordAttempt(ctx context.Context, id string, cause error) (bool, error)
}

// Reconciler applies batches. *reconcile.Reconciler satisfies it.
type Reconciler interface {
	ReconcileFlares(ctx context.Context, batch []models.ProvisionalFlare, now time.Time) (reconcile.FlareSummary, error)
	ReconcileCMEs(ctx context.Context, batch []models.CmeEvent, now time.Time) (reconcile.CMESummary, error)
}

// Config controls the poll loop.
type Config struct {
	Interval     time.Duration
	RunOnStartup bool
	CycleTimeout time.Duration
	CMEFormat    string
	CMELookback  time.Duration
}

// Result summarizes one cycle.
type Result struct {
	Replayed    int                    `json:"replayed"`
	Flares      reconcile.FlareSummary `json:"flares"`
	CMEs        reconcile.CMESummary   `json:"cmes"`
	FeedErrors  int                    `json:"feed_errors"`
	ParseErrors int                    `json:"parse_errors"`
}

// Poller runs ingest cycles.
type Poller struct {
	fetcher    Fetcher
	journal    Journal
	reconciler Reconciler
	cfg        Config
	clock      func() time.Time
}

// NewPoller creates a poller. journal may be nil, in which case batches are
// reconciled without being journaled.
func NewPoller(fetcher Fetcher, journal Journal, reconciler Reconciler, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 4 * time.Hour
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = 10 * time.Minute
	}
	if cfg.CMEFormat == "" {
		cfg.CMEFormat = CMEFormatCatalog
	}
	if cfg.CMELookback <= 0 {
		cfg.CMELookback = 7 * 24 * time.Hour
	}
	return &Poller{
		fetcher:    fetcher,
		journal:    journal,
		reconciler: reconciler,
		cfg:        cfg,
		clock:      time.Now,
	}
}

// Serve replays the journal, optionally runs a first cycle, then runs a
// cycle every Interval until ctx is canceled. Cycle failures are logged and
// retried on the next tick.
func (p *Poller) Serve(ctx context.Context) error {
	if p.cfg.RunOnStartup {
		p.runLogged(ctx)
	} else if _, err := p.Replay(ctx); err != nil {
		logging.Warn().Err(err).Msg("Journal replay at startup failed")
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.runLogged(ctx)
		}
	}
}

// String names the service in supervisor logs.
func (p *Poller) String() string {
	return "ingest-poller"
}

func (p *Poller) runLogged(ctx context.Context) {
	if _, err := p.RunCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Ingest cycle failed")
	}
}

// RunCycle replays pending journal entries, then fetches, journals and
// reconciles a fresh batch.
func (p *Poller) RunCycle(ctx context.Context) (res Result, err error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.CycleTimeout)
	defer cancel()
	ctx = logging.ContextWithNewCorrelationID(ctx)
	log := logging.Ctx(ctx)

	start := time.Now()
	defer func() { metrics.RecordCycle(time.Since(start), err) }()

	replayed, err := p.Replay(ctx)
	res.Replayed = replayed
	if err != nil {
		log.Warn().Err(err).Msg("Journal replay incomplete")
	}

	now := p.clock().UTC()
	batch, feedErrs, parseErrs := p.collect(ctx, now)
	res.FeedErrors, res.ParseErrors = feedErrs, parseErrs
	if feedErrs == p.feedCount() {
		metrics.CycleErrors.WithLabelValues("fetch").Inc()
		return res, ErrNoFeeds
	}
	if batch.Empty() {
		log.Info().Int("feed_errors", feedErrs).Msg("Ingest cycle found no records")
		return res, nil
	}

	entryID := ""
	if p.journal != nil {
		id, jerr := p.journal.Write(ctx, JournalKind, batch)
		if jerr != nil {
			metrics.CycleErrors.WithLabelValues("journal").Inc()
			log.Warn().Err(jerr).Msg("Journal write failed, reconciling without durability")
		} else {
			entryID = id
		}
	}

	res.Flares, res.CMEs, err = p.apply(ctx, batch)
	if err != nil {
		metrics.CycleErrors.WithLabelValues("reconcile").Inc()
		if entryID != "" {
			if _, aerr := p.journal.RecordAttempt(ctx, entryID, err); aerr != nil {
				log.Warn().Err(aerr).Str("entry_id", entryID).Msg("Failed to record journal attempt")
			}
		}
		return res, err
	}
	if entryID != "" {
		if cerr := p.journal.Confirm(ctx, entryID); cerr != nil {
			log.Warn().Err(cerr).Str("entry_id", entryID).Msg("Failed to confirm journal entry")
		}
	}

	log.Info().
		Int("replayed", res.Replayed).
		Int("flares", len(batch.Flares)).
		Int("cmes", len(batch.CMEs)).
		Int("feed_errors", res.FeedErrors).
		Int("parse_errors", res.ParseErrors).
		Dur("duration", time.Since(start)).
		Msg("Ingest cycle complete")
	return res, nil
}

// Replay reconciles every pending journal entry in write order and returns
// how many were confirmed. Entries that fail again have their attempt
// counted; the journal drops them after its attempt limit.
func (p *Poller) Replay(ctx context.Context) (int, error) {
	if p.journal == nil {
		return 0, nil
	}
	entries, err := p.journal.Pending(ctx)
	if err != nil {
		metrics.CycleErrors.WithLabelValues("journal").Inc()
		return 0, err
	}

	log := logging.Ctx(ctx)
	confirmed := 0
	var errs []error
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return confirmed, err
		}
		applyErr := p.replayEntry(ctx, e)
		if applyErr == nil {
			if err := p.journal.Confirm(ctx, e.ID); err != nil {
				errs = append(errs, err)
				continue
			}
			confirmed++
			continue
		}
		errs = append(errs, applyErr)
		dropped, err := p.journal.RecordAttempt(ctx, e.ID, applyErr)
		if err != nil {
			errs = append(errs, err)
		}
		log.Warn().Err(applyErr).
			Str("entry_id", e.ID).
			Int("attempts", e.Attempts+1).
			Bool("dropped", dropped).
			Msg("Journal replay failed")
	}
	if confirmed > 0 {
		log.Info().Int("entries", confirmed).Msg("Replayed journal entries")
	}
	return confirmed, errors.Join(errs...)
}

func (p *Poller) replayEntry(ctx context.Context, e *wal.Entry) error {
	if e.Kind != JournalKind {
		return fmt.Errorf("unknown journal entry kind %q", e.Kind)
	}
	var batch Batch
	if err := json.Unmarshal(e.Payload, &batch); err != nil {
		return fmt.Errorf("decode journal batch: %w", err)
	}
	_, _, err := p.apply(ctx, &batch)
	return err
}

// apply reconciles flares and CMEs concurrently.
func (p *Poller) apply(ctx context.Context, batch *Batch) (reconcile.FlareSummary, reconcile.CMESummary, error) {
	var (
		flares reconcile.FlareSummary
		cmes   reconcile.CMESummary
	)
	now := batch.FetchedAt
	if now.IsZero() {
		now = p.clock().UTC()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		flares, err = p.reconciler.ReconcileFlares(gctx, batch.Flares, now)
		return err
	})
	g.Go(func() error {
		var err error
		cmes, err = p.reconciler.ReconcileCMEs(gctx, batch.CMEs, now)
		return err
	})
	err := g.Wait()
	return flares, cmes, err
}

func (p *Poller) feedCount() int {
	n := 2
	if p.cfg.CMEFormat == CMEFormatBoth {
		n += 2
	} else {
		n++
	}
	return n
}

// collect fetches and parses every configured feed concurrently. A failed
// feed contributes nothing; the others still produce records.
func (p *Poller) collect(ctx context.Context, now time.Time) (*Batch, int, int) {
	var (
		table, disc     []models.ProvisionalFlare
		catalog, bullet []models.CmeEvent

		tableErr, discErr, catErr, bulErr int
		tableBad, discBad, catBad, bulBad int
	)
	from := now.Add(-p.cfg.CMELookback)

	var g errgroup.Group
	g.Go(func() error {
		doc, err := p.fetcher.FetchPrimaryFlareTable(ctx)
		if err != nil {
			tableErr = 1
			return nil
		}
		var errs []error
		table, errs = parser.ParsePrimaryTable(doc)
		tableBad = reportParseErrors(ctx, parser.FeedPrimaryTable, errs)
		return nil
	})
	g.Go(func() error {
		text, err := p.fetcher.FetchFlareDiscussion(ctx)
		if err != nil {
			discErr = 1
			return nil
		}
		var errs []error
		disc, errs = parser.ParseDiscussion(text, now)
		discBad = reportParseErrors(ctx, parser.FeedDiscussion, errs)
		return nil
	})
	if p.cfg.CMEFormat != CMEFormatBulletin {
		g.Go(func() error {
			payload, err := p.fetcher.FetchCMECatalog(ctx, from, now)
			if err != nil {
				catErr = 1
				return nil
			}
			var errs []error
			catalog, errs = parser.ParseCMECatalog(payload)
			catBad = reportParseErrors(ctx, parser.FeedCMECatalog, errs)
			return nil
		})
	}
	if p.cfg.CMEFormat != CMEFormatCatalog {
		g.Go(func() error {
			payload, err := p.fetcher.FetchCMEBulletins(ctx, from, now)
			if err != nil {
				bulErr = 1
				return nil
			}
			bulletins, err := parser.DecodeNotifications(payload)
			if err != nil {
				bulBad = reportParseErrors(ctx, parser.FeedCMEBulletin, []error{err})
				return nil
			}
			var errs []error
			bullet, errs = bulletinCMEs(bulletins)
			bulBad = reportParseErrors(ctx, parser.FeedCMEBulletin, errs)
			return nil
		})
	}
	_ = g.Wait()

	batch := &Batch{
		FetchedAt: now,
		Flares:    append(table, disc...),
		CMEs:      mergeCMEs(catalog, bullet),
	}
	return batch, tableErr + discErr + catErr + bulErr, tableBad + discBad + catBad + bulBad
}

func reportParseErrors(ctx context.Context, feed parser.Feed, errs []error) int {
	if len(errs) == 0 {
		return 0
	}
	metrics.ParseErrors.WithLabelValues(string(feed)).Add(float64(len(errs)))
	log := logging.Ctx(ctx)
	for _, err := range errs {
		log.Debug().Err(err).Str("feed", string(feed)).Msg("Dropped feed record")
	}
	log.Warn().Str("feed", string(feed)).Int("records", len(errs)).Msg("Feed records dropped by parser")
	return len(errs)
}
