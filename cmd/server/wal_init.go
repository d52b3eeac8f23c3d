// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package main

import (
	"fmt"

	"github.com/tomtom215/heliotrack/internal/config"
	"github.com/tomtom215/heliotrack/internal/logging"
	"github.com/tomtom215/heliotrack/internal/supervisor"
	"github.com/tomtom215/heliotrack/internal/supervisor/services"
	"github.com/tomtom215/heliotrack/internal/wal"
)

// initJournal opens the ingest journal and adds its compactor to the data
// layer. It returns nil when the journal is disabled.
func initJournal(cfg *config.WALConfig, tree *supervisor.Tree) (*wal.Journal, error) {
	if !cfg.Enabled {
		logging.Warn().Msg("Ingest journal disabled (WAL_ENABLED=false). A crash mid-cycle loses that cycle's batch until the next poll.")
		return nil, nil
	}

	walCfg := wal.DefaultConfig()
	walCfg.Path = cfg.Path
	walCfg.InMemory = cfg.InMemory
	walCfg.SyncWrites = cfg.SyncWrites
	if cfg.MaxAttempts > 0 {
		walCfg.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.EntryTTL > 0 {
		walCfg.EntryTTL = cfg.EntryTTL
	}
	if cfg.GCInterval > 0 {
		walCfg.GCInterval = cfg.GCInterval
	}

	journal, err := wal.Open(walCfg)
	if err != nil {
		return nil, fmt.Errorf("open ingest journal: %w", err)
	}
	stats := journal.Stats()
	logging.Info().
		Str("path", walCfg.Path).
		Int64("pending", stats.Pending).
		Msg("Ingest journal opened")

	tree.AddDataService(services.NewJournalCompactorService(wal.NewCompactor(journal)))
	return journal, nil
}
