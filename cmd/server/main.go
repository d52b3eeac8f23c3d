// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

// Package main is the Heliotrack server.
//
// Heliotrack polls solar flare and coronal mass ejection feeds, reconciles
// overlapping flare reports from the event table and the forecaster
// discussion into a single record per physical event, stores CMEs with
// their model-run arrival predictions in DuckDB, and serves the rolling
// window over a read-only JSON API.
//
// Startup order:
//
//  1. Configuration (Koanf v2: defaults, config.yaml, environment)
//  2. DuckDB store and schema migrations
//  3. Ingest journal (BadgerDB, if WAL_ENABLED)
//  4. Feed client, matcher, reconciler and poller
//  5. Retention sweeper and report builder
//  6. HTTP server
//
// Every long-running component runs under the suture supervisor tree.
// SIGINT and SIGTERM cancel the tree; services get ServerShutdownTimeout to
// stop before the journal and database are closed.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/heliotrack/internal/api"
	"github.com/tomtom215/heliotrack/internal/config"
	"github.com/tomtom215/heliotrack/internal/database"
	"github.com/tomtom215/heliotrack/internal/feeds"
	"github.com/tomtom215/heliotrack/internal/ingest"
	"github.com/tomtom215/heliotrack/internal/logging"
	"github.com/tomtom215/heliotrack/internal/matcher"
	"github.com/tomtom215/heliotrack/internal/reconcile"
	"github.com/tomtom215/heliotrack/internal/report"
	"github.com/tomtom215/heliotrack/internal/retention"
	"github.com/tomtom215/heliotrack/internal/supervisor"
	"github.com/tomtom215/heliotrack/internal/supervisor/services"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("Heliotrack exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Format = cfg.Logging.Format
	logCfg.Caller = cfg.Logging.Caller
	logging.Init(logCfg)

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Bool("ingest_enabled", cfg.Ingest.Enabled).
		Bool("wal_enabled", cfg.WAL.Enabled).
		Bool("server_enabled", cfg.Server.Enabled).
		Msg("Starting Heliotrack")

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	journal, err := initJournal(&cfg.WAL, tree)
	if err != nil {
		return err
	}
	if journal != nil {
		defer func() {
			if err := journal.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing ingest journal")
			}
		}()
	}

	m := matcher.New(matcher.Config{
		SameSourceTolerance:  cfg.Matching.SameSourceTolerance,
		CrossSourceTolerance: cfg.Matching.CrossSourceTolerance,
		MagnitudeTolerance:   cfg.Matching.MagnitudeTolerance,
	})
	reconciler := reconcile.New(db, m)

	if cfg.Ingest.Enabled {
		var j ingest.Journal
		if journal != nil {
			j = journal
		}
		poller := ingest.NewPoller(feeds.NewClient(&cfg.Feeds), j, reconciler, ingest.Config{
			Interval:     cfg.Ingest.Interval,
			RunOnStartup: cfg.Ingest.RunOnStartup,
			CycleTimeout: cfg.Ingest.CycleTimeout,
			CMEFormat:    cfg.Feeds.CMEFormat,
			CMELookback:  cfg.Feeds.CMELookback,
		})
		tree.AddIngestService(poller)
		logging.Info().Dur("interval", cfg.Ingest.Interval).Str("cme_format", cfg.Feeds.CMEFormat).Msg("Ingest poller added")
	} else {
		logging.Warn().Msg("Ingest disabled (INGEST_ENABLED=false); serving stored data only")
	}

	tree.AddDataService(retention.New(db, retention.Config{
		FlareHorizon: cfg.Retention.FlareHorizon,
		CMEHorizon:   cfg.Retention.CMEHorizon,
		AuditHorizon: cfg.Retention.AuditHorizon,
		Interval:     cfg.Retention.Interval,
	}))

	if cfg.Server.Enabled {
		reports := report.NewBuilder(db, report.Config{
			Lookback:    cfg.Query.LookbackWindow,
			Forecast:    cfg.Query.ForecastWindow,
			Uncertainty: cfg.Query.ArrivalUncertainty,
		})
		mwCfg := api.DefaultMiddlewareConfig()
		if len(cfg.Server.CORSOrigins) > 0 {
			mwCfg.CORSAllowedOrigins = cfg.Server.CORSOrigins
		}
		mwCfg.RateLimitRequests = cfg.Server.RateLimit

		router := api.NewRouter(api.NewHandler(db, reports, cfg.Query), api.NewMiddleware(mwCfg))
		server := api.NewServer(&cfg.Server, router)
		tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
		logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")
	}

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
	}

	if err := db.Checkpoint(context.Background()); err != nil {
		logging.Warn().Err(err).Msg("Final checkpoint failed")
	}
	logging.Info().Msg("Heliotrack stopped")
	return nil
}
