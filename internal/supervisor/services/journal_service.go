// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package services

import (
	"context"
	"fmt"
)

// StartStopper is the lifecycle of the journal compactor.
// Satisfied by *wal.Compactor.
type StartStopper interface {
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
}

// JournalCompactorService runs the journal compactor under supervision.
type JournalCompactorService struct {
	compactor StartStopper
}

// NewJournalCompactorService wraps compactor.
func NewJournalCompactorService(compactor StartStopper) *JournalCompactorService {
	return &JournalCompactorService{compactor: compactor}
}

// Serve starts the compactor, waits for ctx, then stops it. A Start failure
// is returned so suture restarts the service with backoff.
func (s *JournalCompactorService) Serve(ctx context.Context) error {
	if err := s.compactor.Start(ctx); err != nil {
		return fmt.Errorf("journal compactor start failed: %w", err)
	}
	<-ctx.Done()
	s.compactor.Stop()
	return ctx.Err()
}

func (s *JournalCompactorService) String() string {
	return "journal-compactor"
}
