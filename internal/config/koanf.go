// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first existing file is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/heliotrack/config.yaml",
	"/etc/heliotrack/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DotEnvPath is loaded into the process environment when it exists.
// Variables already set in the environment win.
var DotEnvPath = ".env"

func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:                   "/data/heliotrack.duckdb",
			MaxMemory:              "1GB",
			Threads:                0,
			PreserveInsertionOrder: true,
		},
		Feeds: FeedsConfig{
			PrimaryTableURL:     "https://www.lmsal.com/solarsoft/last_events/",
			DiscussionURL:       "https://services.swpc.noaa.gov/text/discussion.txt",
			CMECatalogURL:       "https://kauai.ccmc.gsfc.nasa.gov/DONKI/WS/get/CME",
			CMENotificationsURL: "https://kauai.ccmc.gsfc.nasa.gov/DONKI/WS/get/notifications",
			CMEFormat:           "catalog",
			CMELookback:         7 * 24 * time.Hour,
			UserAgent:           "heliotrack/1.0",
			Timeout:             30 * time.Second,
			RetryCount:          2,
			RateLimit:           2,
			RateBurst:           4,
			BreakerMaxRequests:  3,
			BreakerInterval:     time.Minute,
			BreakerTimeout:      2 * time.Minute,
			BreakerMinRequests:  3,
			BreakerFailureRatio: 0.6,
		},
		Ingest: IngestConfig{
			Enabled:      true,
			Interval:     4 * time.Hour,
			RunOnStartup: true,
			CycleTimeout: 10 * time.Minute,
		},
		Matching: MatchingConfig{
			SameSourceTolerance:  60 * time.Second,
			CrossSourceTolerance: 120 * time.Second,
			MagnitudeTolerance:   0.2,
		},
		Retention: RetentionConfig{
			FlareHorizon: 24 * time.Hour,
			CMEHorizon:   30 * 24 * time.Hour,
			AuditHorizon: 7 * 24 * time.Hour,
			Interval:     time.Hour,
		},
		Query: QueryConfig{
			ArrivalUncertainty: 7 * time.Hour,
			ForecastWindow:     72 * time.Hour,
			LookbackWindow:     24 * time.Hour,
		},
		WAL: WALConfig{
			Enabled:     true,
			Path:        "/data/wal",
			SyncWrites:  true,
			MaxAttempts: 5,
			EntryTTL:    72 * time.Hour,
			GCInterval:  30 * time.Minute,
		},
		Server: ServerConfig{
			Enabled:         true,
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimit:       120,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf loads configuration in layers:
//
//  1. Defaults
//  2. YAML file (CONFIG_PATH or DefaultConfigPaths), optional
//  3. Environment variables, after merging DotEnvPath
func LoadWithKoanf() (*Config, error) {
	if err := loadDotEnv(DotEnvPath); err != nil {
		return nil, err
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths are split on commas when they arrive as strings.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		var parts []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to config paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	"duckdb_path":                     "database.path",
	"duckdb_max_memory":               "database.max_memory",
	"duckdb_threads":                  "database.threads",
	"duckdb_preserve_insertion_order": "database.preserve_insertion_order",
	"duckdb_skip_indexes":             "database.skip_indexes",

	"feed_primary_table_url":     "feeds.primary_table_url",
	"feed_discussion_url":        "feeds.discussion_url",
	"feed_cme_catalog_url":       "feeds.cme_catalog_url",
	"feed_cme_notifications_url": "feeds.cme_notifications_url",
	"feed_cme_format":            "feeds.cme_format",
	"feed_cme_lookback":          "feeds.cme_lookback",
	"feed_user_agent":            "feeds.user_agent",
	"feed_timeout":               "feeds.timeout",
	"feed_retry_count":           "feeds.retry_count",
	"feed_rate_limit":            "feeds.rate_limit",
	"feed_rate_burst":            "feeds.rate_burst",
	"feed_breaker_timeout":       "feeds.breaker_timeout",
	"feed_breaker_failure_ratio": "feeds.breaker_failure_ratio",

	"ingest_enabled":        "ingest.enabled",
	"ingest_interval":       "ingest.interval",
	"ingest_run_on_startup": "ingest.run_on_startup",
	"ingest_cycle_timeout":  "ingest.cycle_timeout",

	"match_same_source_tolerance":  "matching.same_source_tolerance",
	"match_cross_source_tolerance": "matching.cross_source_tolerance",
	"match_magnitude_tolerance":    "matching.magnitude_tolerance",

	"retention_flare_horizon": "retention.flare_horizon",
	"retention_cme_horizon":   "retention.cme_horizon",
	"retention_audit_horizon": "retention.audit_horizon",
	"retention_interval":      "retention.interval",

	"query_arrival_uncertainty": "query.arrival_uncertainty",
	"query_forecast_window":     "query.forecast_window",
	"query_lookback_window":     "query.lookback_window",

	"wal_enabled":      "wal.enabled",
	"wal_path":         "wal.path",
	"wal_sync_writes":  "wal.sync_writes",
	"wal_in_memory":    "wal.in_memory",
	"wal_max_attempts": "wal.max_attempts",
	"wal_entry_ttl":    "wal.entry_ttl",
	"wal_gc_interval":  "wal.gc_interval",

	"http_enabled":          "server.enabled",
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"cors_origins":          "server.cors_origins",
	"rate_limit_per_minute": "server.rate_limit",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
