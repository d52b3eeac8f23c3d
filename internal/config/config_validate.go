// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that the loaded configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateFeeds(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateMatching(); err != nil {
		return err
	}
	if err := c.validateRetention(); err != nil {
		return err
	}
	if err := c.validateQuery(); err != nil {
		return err
	}
	if err := c.validateWAL(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must be >= 0, got %d", c.Database.Threads)
	}
	return nil
}

func (c *Config) validateFeeds() error {
	urls := map[string]string{
		"FEED_PRIMARY_TABLE_URL": c.Feeds.PrimaryTableURL,
		"FEED_DISCUSSION_URL":    c.Feeds.DiscussionURL,
	}
	switch c.Feeds.CMEFormat {
	case "catalog":
		urls["FEED_CME_CATALOG_URL"] = c.Feeds.CMECatalogURL
	case "bulletin":
		urls["FEED_CME_NOTIFICATIONS_URL"] = c.Feeds.CMENotificationsURL
	case "both":
		urls["FEED_CME_CATALOG_URL"] = c.Feeds.CMECatalogURL
		urls["FEED_CME_NOTIFICATIONS_URL"] = c.Feeds.CMENotificationsURL
	default:
		return fmt.Errorf("FEED_CME_FORMAT must be catalog, bulletin or both, got %q", c.Feeds.CMEFormat)
	}
	for name, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}
	if c.Feeds.Timeout <= 0 {
		return fmt.Errorf("FEED_TIMEOUT must be positive")
	}
	if c.Feeds.RetryCount < 0 {
		return fmt.Errorf("FEED_RETRY_COUNT must be >= 0")
	}
	if c.Feeds.RateLimit <= 0 || c.Feeds.RateBurst < 1 {
		return fmt.Errorf("FEED_RATE_LIMIT must be positive and FEED_RATE_BURST at least 1")
	}
	if c.Feeds.BreakerFailureRatio <= 0 || c.Feeds.BreakerFailureRatio > 1 {
		return fmt.Errorf("FEED_BREAKER_FAILURE_RATIO must be in (0, 1], got %v", c.Feeds.BreakerFailureRatio)
	}
	if c.Feeds.CMELookback <= 0 {
		return fmt.Errorf("FEED_CME_LOOKBACK must be positive")
	}
	return nil
}

func (c *Config) validateIngest() error {
	if !c.Ingest.Enabled {
		return nil
	}
	if c.Ingest.Interval <= 0 {
		return fmt.Errorf("INGEST_INTERVAL must be positive when ingest is enabled")
	}
	if c.Ingest.CycleTimeout <= 0 {
		return fmt.Errorf("INGEST_CYCLE_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateMatching() error {
	if c.Matching.SameSourceTolerance <= 0 {
		return fmt.Errorf("MATCH_SAME_SOURCE_TOLERANCE must be positive")
	}
	if c.Matching.CrossSourceTolerance < c.Matching.SameSourceTolerance {
		return fmt.Errorf("MATCH_CROSS_SOURCE_TOLERANCE (%s) must be >= MATCH_SAME_SOURCE_TOLERANCE (%s)",
			c.Matching.CrossSourceTolerance, c.Matching.SameSourceTolerance)
	}
	if c.Matching.MagnitudeTolerance < 0 {
		return fmt.Errorf("MATCH_MAGNITUDE_TOLERANCE must be >= 0")
	}
	return nil
}

func (c *Config) validateRetention() error {
	if c.Retention.FlareHorizon <= 0 || c.Retention.CMEHorizon <= 0 {
		return fmt.Errorf("RETENTION_FLARE_HORIZON and RETENTION_CME_HORIZON must be positive")
	}
	if c.Retention.AuditHorizon <= 0 {
		return fmt.Errorf("RETENTION_AUDIT_HORIZON must be positive")
	}
	if c.Retention.Interval <= 0 {
		return fmt.Errorf("RETENTION_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) validateQuery() error {
	if c.Query.ArrivalUncertainty < 0 {
		return fmt.Errorf("QUERY_ARRIVAL_UNCERTAINTY must be >= 0")
	}
	if c.Query.ForecastWindow <= 0 || c.Query.LookbackWindow <= 0 {
		return fmt.Errorf("QUERY_FORECAST_WINDOW and QUERY_LOOKBACK_WINDOW must be positive")
	}
	return nil
}

func (c *Config) validateWAL() error {
	if !c.WAL.Enabled {
		return nil
	}
	if c.WAL.Path == "" && !c.WAL.InMemory {
		return fmt.Errorf("WAL_PATH is required when the journal is enabled on disk")
	}
	if c.WAL.MaxAttempts < 1 {
		return fmt.Errorf("WAL_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

func (c *Config) validateServer() error {
	if !c.Server.Enabled {
		return nil
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled", "":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a recognized level", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console", "":
		return nil
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
}
