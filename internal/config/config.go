// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

// Package config loads Heliotrack configuration from defaults, an optional
// YAML file and environment variables, in increasing order of precedence.
// A .env file in the working directory, when present, is loaded into the
// environment first.
package config

import "time"

// Config holds all application configuration.
//
// Sections:
//   - Database: DuckDB file and resource limits
//   - Feeds: upstream URLs, timeouts, rate limits and circuit breaker
//   - Ingest: poll cycle schedule
//   - Matching: flare matcher tolerances
//   - Retention: rolling-window horizons and sweep schedule
//   - Query: default report windows and arrival uncertainty
//   - WAL: durable journal of parsed batches
//   - Server: read API for the report renderer
//   - Logging: level and format
type Config struct {
	Database  DatabaseConfig  `koanf:"database"`
	Feeds     FeedsConfig     `koanf:"feeds"`
	Ingest    IngestConfig    `koanf:"ingest"`
	Matching  MatchingConfig  `koanf:"matching"`
	Retention RetentionConfig `koanf:"retention"`
	Query     QueryConfig     `koanf:"query"`
	WAL       WALConfig       `koanf:"wal"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path                   string `koanf:"path"`
	MaxMemory              string `koanf:"max_memory"`
	Threads                int    `koanf:"threads"`
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"`
	SkipIndexes            bool   `koanf:"skip_indexes"`
}

// FeedsConfig holds upstream feed settings.
type FeedsConfig struct {
	PrimaryTableURL     string        `koanf:"primary_table_url"`
	DiscussionURL       string        `koanf:"discussion_url"`
	CMECatalogURL       string        `koanf:"cme_catalog_url"`
	CMENotificationsURL string        `koanf:"cme_notifications_url"`
	CMEFormat           string        `koanf:"cme_format"` // catalog, bulletin or both
	CMELookback         time.Duration `koanf:"cme_lookback"`
	UserAgent           string        `koanf:"user_agent"`
	Timeout             time.Duration `koanf:"timeout"`
	RetryCount          int           `koanf:"retry_count"`
	RateLimit           float64       `koanf:"rate_limit"` // requests per second across all feeds
	RateBurst           int           `koanf:"rate_burst"`

	// Circuit breaker
	BreakerMaxRequests  uint32        `koanf:"breaker_max_requests"`
	BreakerInterval     time.Duration `koanf:"breaker_interval"`
	BreakerTimeout      time.Duration `koanf:"breaker_timeout"`
	BreakerMinRequests  uint32        `koanf:"breaker_min_requests"`
	BreakerFailureRatio float64       `koanf:"breaker_failure_ratio"`
}

// IngestConfig holds the poll cycle schedule.
type IngestConfig struct {
	Enabled      bool          `koanf:"enabled"`
	Interval     time.Duration `koanf:"interval"`
	RunOnStartup bool          `koanf:"run_on_startup"`
	CycleTimeout time.Duration `koanf:"cycle_timeout"`
}

// MatchingConfig holds the flare matcher tolerances.
type MatchingConfig struct {
	SameSourceTolerance  time.Duration `koanf:"same_source_tolerance"`
	CrossSourceTolerance time.Duration `koanf:"cross_source_tolerance"`
	MagnitudeTolerance   float64       `koanf:"magnitude_tolerance"`
}

// RetentionConfig holds rolling-window horizons.
type RetentionConfig struct {
	FlareHorizon time.Duration `koanf:"flare_horizon"`
	CMEHorizon   time.Duration `koanf:"cme_horizon"`
	AuditHorizon time.Duration `koanf:"audit_horizon"`
	Interval     time.Duration `koanf:"interval"`
}

// QueryConfig holds default windows for the read API.
type QueryConfig struct {
	ArrivalUncertainty time.Duration `koanf:"arrival_uncertainty"`
	ForecastWindow     time.Duration `koanf:"forecast_window"`
	LookbackWindow     time.Duration `koanf:"lookback_window"`
}

// WALConfig holds the journal settings.
type WALConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Path        string        `koanf:"path"`
	SyncWrites  bool          `koanf:"sync_writes"`
	InMemory    bool          `koanf:"in_memory"`
	MaxAttempts int           `koanf:"max_attempts"`
	EntryTTL    time.Duration `koanf:"entry_ttl"`
	GCInterval  time.Duration `koanf:"gc_interval"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimit       int           `koanf:"rate_limit"` // requests per minute per client IP
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Load reads configuration; see LoadWithKoanf.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
