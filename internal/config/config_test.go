// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	t.Parallel()
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() on defaults = %v", err)
	}
	if cfg.Matching.SameSourceTolerance != 60*time.Second {
		t.Errorf("SameSourceTolerance = %v, want 60s", cfg.Matching.SameSourceTolerance)
	}
	if cfg.Retention.CMEHorizon != 720*time.Hour {
		t.Errorf("CMEHorizon = %v, want 720h", cfg.Retention.CMEHorizon)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty db path", func(c *Config) { c.Database.Path = "" }, "DUCKDB_PATH"},
		{"bad cme format", func(c *Config) { c.Feeds.CMEFormat = "rss" }, "FEED_CME_FORMAT"},
		{"relative url", func(c *Config) { c.Feeds.DiscussionURL = "/text/discussion.txt" }, "FEED_DISCUSSION_URL"},
		{"bulletin url checked", func(c *Config) {
			c.Feeds.CMEFormat = "bulletin"
			c.Feeds.CMENotificationsURL = ""
		}, "FEED_CME_NOTIFICATIONS_URL"},
		{"cross below same", func(c *Config) { c.Matching.CrossSourceTolerance = 30 * time.Second }, "MATCH_CROSS_SOURCE_TOLERANCE"},
		{"negative magnitude", func(c *Config) { c.Matching.MagnitudeTolerance = -0.1 }, "MATCH_MAGNITUDE_TOLERANCE"},
		{"zero magnitude means exact", func(c *Config) { c.Matching.MagnitudeTolerance = 0 }, ""},
		{"zero same-source tolerance", func(c *Config) { c.Matching.SameSourceTolerance = 0 }, "MATCH_SAME_SOURCE_TOLERANCE"},
		{"zero audit horizon", func(c *Config) { c.Retention.AuditHorizon = 0 }, "RETENTION_AUDIT_HORIZON"},
		{"negative retention interval", func(c *Config) { c.Retention.Interval = -time.Minute }, "RETENTION_INTERVAL"},
		{"zero horizon", func(c *Config) { c.Retention.FlareHorizon = 0 }, "RETENTION_FLARE_HORIZON"},
		{"breaker ratio", func(c *Config) { c.Feeds.BreakerFailureRatio = 1.5 }, "FEED_BREAKER_FAILURE_RATIO"},
		{"wal without path", func(c *Config) { c.WAL.Path = "" }, "WAL_PATH"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "HTTP_PORT"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
		{"disabled server skips port", func(c *Config) {
			c.Server.Enabled = false
			c.Server.Port = 0
		}, ""},
		{"in-memory wal needs no path", func(c *Config) {
			c.WAL.InMemory = true
			c.WAL.Path = ""
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %s", err, tt.wantErr)
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"DUCKDB_PATH":               "database.path",
		"match_magnitude_tolerance": "matching.magnitude_tolerance",
		"CORS_ORIGINS":              "server.cors_origins",
		"HOME":                      "",
	}
	for in, want := range tests {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}

// LoadWithKoanf touches process-wide state (env, cwd), so these tests are
// not parallel.
func TestLoadWithKoanfLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
database:
  path: ` + filepath.Join(dir, "db.duckdb") + `
matching:
  magnitude_tolerance: 0.3
retention:
  flare_horizon: 12h
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("RETENTION_FLARE_HORIZON", "36h")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	oldDotEnv := DotEnvPath
	DotEnvPath = filepath.Join(dir, "missing.env")
	defer func() { DotEnvPath = oldDotEnv }()

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if cfg.Matching.MagnitudeTolerance != 0.3 {
		t.Errorf("MagnitudeTolerance = %v, want 0.3 from file", cfg.Matching.MagnitudeTolerance)
	}
	if cfg.Retention.FlareHorizon != 36*time.Hour {
		t.Errorf("FlareHorizon = %v, want 36h from env", cfg.Retention.FlareHorizon)
	}
	if cfg.Retention.CMEHorizon != 720*time.Hour {
		t.Errorf("CMEHorizon = %v, want default 720h", cfg.Retention.CMEHorizon)
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[0] != want[0] || cfg.Server.CORSOrigins[1] != want[1] {
		t.Errorf("CORSOrigins = %v, want %v", cfg.Server.CORSOrigins, want)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("LOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LOG_LEVEL", "")
	os.Unsetenv("LOG_LEVEL")
	if err := loadDotEnv(path); err != nil {
		t.Fatalf("loadDotEnv() error = %v", err)
	}
	if got := os.Getenv("LOG_LEVEL"); got != "debug" {
		t.Errorf("LOG_LEVEL = %q, want debug", got)
	}
	if err := loadDotEnv(filepath.Join(dir, "absent.env")); err != nil {
		t.Errorf("loadDotEnv(absent) = %v, want nil", err)
	}
}
