// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package wal

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/heliotrack/internal/logging"
	"github.com/tomtom215/heliotrack/internal/metrics"
)

// Compactor periodically runs badger value log GC and reports journal
// backlog: the pending count and the age of the oldest unconfirmed batch. A
// batch older than StaleAfter means reconciliation keeps failing for it.
// Expired entries are removed by badger itself through EntryTTL.
type Compactor struct {
	journal  *Journal
	interval time.Duration

	// StaleAfter is the backlog age that triggers a warning. Defaults to
	// four GC intervals.
	StaleAfter time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	running   bool
	lastRun   time.Time
	oldestAge time.Duration
}

// NewCompactor returns a compactor for j using its GCInterval.
func NewCompactor(j *Journal) *Compactor {
	return &Compactor{journal: j, interval: j.cfg.GCInterval, StaleAfter: 4 * j.cfg.GCInterval}
}

// Start begins the background loop. Calling Start twice is a no-op.
func (c *Compactor) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.running = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run()

	logging.Info().Dur("interval", c.interval).Msg("Journal compactor started")
	return nil
}

// Stop ends the loop and waits for it to exit.
func (c *Compactor) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.running = false
	c.mu.Unlock()

	c.wg.Wait()
	logging.Info().Msg("Journal compactor stopped")
}

// IsRunning reports whether the loop is active.
func (c *Compactor) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// LastRun returns when the last compaction finished.
func (c *Compactor) LastRun() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRun
}

func (c *Compactor) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.compact()
		}
	}
}

// OldestPendingAge returns the backlog age measured by the last compaction.
func (c *Compactor) OldestPendingAge() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.oldestAge
}

func (c *Compactor) compact() {
	start := time.Now()
	if err := c.journal.RunGC(); err != nil {
		logging.Warn().Err(err).Msg("Journal value log GC failed")
	}

	var age time.Duration
	entries, err := c.journal.Pending(c.ctx)
	switch {
	case err != nil:
		logging.Warn().Err(err).Msg("Failed to read journal backlog")
	case len(entries) > 0:
		oldest := entries[0]
		age = start.Sub(oldest.CreatedAt)
		if c.StaleAfter > 0 && age > c.StaleAfter {
			logging.Warn().
				Str("entry_id", oldest.ID).
				Int("attempts", oldest.Attempts).
				Str("last_error", oldest.LastError).
				Dur("age", age).
				Msg("Journal batch still unconfirmed")
		}
	}
	if err == nil {
		c.journal.pending.Store(int64(len(entries)))
		metrics.JournalPending.Set(float64(len(entries)))
		metrics.JournalOldestPendingAge.Set(age.Seconds())
	}

	c.mu.Lock()
	c.lastRun = time.Now()
	c.oldestAge = age
	c.mu.Unlock()

	logging.Debug().Int("pending", len(entries)).Dur("duration", time.Since(start)).Msg("Journal compaction complete")
}
