// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package wal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/heliotrack/internal/logging"
	"github.com/tomtom215/heliotrack/internal/metrics"
)

const pendingPrefix = "pending:"

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("journal is closed")
	// ErrEntryNotFound is returned when an entry ID has no pending record.
	ErrEntryNotFound = errors.New("journal entry not found")
	// ErrNilPayload is returned by Write for a nil payload.
	ErrNilPayload = errors.New("journal payload is nil")
)

// Config controls the journal store.
type Config struct {
	Path        string
	InMemory    bool
	SyncWrites  bool
	MaxAttempts int
	EntryTTL    time.Duration
	GCInterval  time.Duration
	// GCDiscardRatio is passed to badger's value log GC.
	GCDiscardRatio float64
}

// DefaultConfig returns a durable on-disk configuration rooted at /data/wal.
func DefaultConfig() Config {
	return Config{
		Path:           "/data/wal",
		SyncWrites:     true,
		MaxAttempts:    5,
		EntryTTL:       72 * time.Hour,
		GCInterval:     30 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// Entry is one journaled batch.
type Entry struct {
	ID            string          `json:"id"`
	Kind          string          `json:"kind"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
	Attempts      int             `json:"attempts"`
	LastAttemptAt *time.Time      `json:"last_attempt_at,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
}

// Stats is a point-in-time view of journal activity.
type Stats struct {
	Pending  int64
	Written  int64
	Replayed int64
	Dropped  int64
}

// Journal is a BadgerDB-backed batch journal.
type Journal struct {
	db  *badger.DB
	cfg Config

	closed   atomic.Bool
	pending  atomic.Int64
	written  atomic.Int64
	replayed atomic.Int64
	dropped  atomic.Int64
}

// Open opens or creates the journal.
func Open(cfg Config) (*Journal, error) {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = def.GCInterval
	}
	if cfg.GCDiscardRatio <= 0 || cfg.GCDiscardRatio >= 1 {
		cfg.GCDiscardRatio = def.GCDiscardRatio
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("journal path is required")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(cfg.SyncWrites)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	j := &Journal{db: db, cfg: cfg}
	n, err := j.countPending()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	j.pending.Store(n)
	metrics.JournalPending.Set(float64(n))

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Int64("pending", n).
		Msg("Journal opened")
	return j, nil
}

// Config returns the effective configuration.
func (j *Journal) Config() Config {
	return j.cfg
}

// Write persists payload under a new entry and returns its ID.
func (j *Journal) Write(ctx context.Context, kind string, payload any) (string, error) {
	if j.closed.Load() {
		return "", ErrClosed
	}
	if payload == nil {
		return "", ErrNilPayload
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal journal payload: %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate journal id: %w", err)
	}
	entry := &Entry{
		ID:        id.String(),
		Kind:      kind,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}
	if err := j.put(entry); err != nil {
		return "", err
	}

	j.written.Add(1)
	metrics.JournalPending.Set(float64(j.pending.Add(1)))
	return entry.ID, nil
}

// Confirm removes a fully reconciled entry.
func (j *Journal) Confirm(ctx context.Context, id string) error {
	if err := j.delete(ctx, id); err != nil {
		return err
	}
	j.replayed.Add(1)
	return nil
}

// Pending returns every unconfirmed entry in write order.
func (j *Journal) Pending(ctx context.Context) ([]*Entry, error) {
	if j.closed.Load() {
		return nil, ErrClosed
	}
	var entries []*Entry
	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(pendingPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var e Entry
			if err := json.Unmarshal(raw, &e); err != nil {
				logging.Warn().Err(err).Str("key", string(it.Item().Key())).Msg("Skipping unreadable journal entry")
				continue
			}
			entries = append(entries, &e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	slices.SortStableFunc(entries, func(a, b *Entry) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return entries, nil
}

// RecordAttempt notes a failed replay of id. When the entry has used all of
// its attempts it is dropped and RecordAttempt reports true.
func (j *Journal) RecordAttempt(ctx context.Context, id string, cause error) (bool, error) {
	if j.closed.Load() {
		return false, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var e Entry
	err := j.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	if err != nil {
		return false, fmt.Errorf("read journal entry: %w", err)
	}

	now := time.Now().UTC()
	e.Attempts++
	e.LastAttemptAt = &now
	if cause != nil {
		e.LastError = cause.Error()
	}

	if e.Attempts >= j.cfg.MaxAttempts {
		if err := j.delete(ctx, id); err != nil {
			return false, err
		}
		j.dropped.Add(1)
		metrics.JournalDropped.Inc()
		logging.Error().
			Str("entry_id", id).
			Str("kind", e.Kind).
			Int("attempts", e.Attempts).
			Str("last_error", e.LastError).
			Msg("Dropping journal entry after max attempts")
		return true, nil
	}
	return false, j.put(&e)
}

// Stats returns journal counters.
func (j *Journal) Stats() Stats {
	return Stats{
		Pending:  j.pending.Load(),
		Written:  j.written.Load(),
		Replayed: j.replayed.Load(),
		Dropped:  j.dropped.Load(),
	}
}

// RunGC runs one round of value log garbage collection. It is a no-op for
// in-memory journals and when badger finds nothing to rewrite.
func (j *Journal) RunGC() error {
	if j.closed.Load() {
		return ErrClosed
	}
	if j.cfg.InMemory {
		return nil
	}
	err := j.db.RunValueLogGC(j.cfg.GCDiscardRatio)
	if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
		return nil
	}
	return err
}

// Close flushes and closes the journal. It is safe to call more than once.
func (j *Journal) Close() error {
	if !j.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("close badger: %w", err)
	}
	logging.Info().Msg("Journal closed")
	return nil
}

func (j *Journal) put(e *Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	return j.db.Update(func(txn *badger.Txn) error {
		be := badger.NewEntry(key(e.ID), raw)
		if j.cfg.EntryTTL > 0 {
			be = be.WithTTL(j.cfg.EntryTTL)
		}
		return txn.SetEntry(be)
	})
}

func (j *Journal) delete(ctx context.Context, id string) error {
	if j.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := j.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key(id)); err != nil {
			return err
		}
		return txn.Delete(key(id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("delete journal entry: %w", err)
	}
	metrics.JournalPending.Set(float64(j.pending.Add(-1)))
	return nil
}

func (j *Journal) countPending() (int64, error) {
	var n int64
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(pendingPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count journal entries: %w", err)
	}
	return n, nil
}

func key(id string) []byte {
	return []byte(pendingPrefix + id)
}
