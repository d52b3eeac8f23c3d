// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package feeds

import (
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/heliotrack/internal/config"
	"github.com/tomtom215/heliotrack/internal/logging"
	"github.com/tomtom215/heliotrack/internal/metrics"
)

// newBreaker opens after BreakerFailureRatio of at least BreakerMinRequests
// requests fail within BreakerInterval, and retries a trial request after BreakerTimeout.
func newBreaker(name string, cfg *config.FeedsConfig) *gobreaker.CircuitBreaker[[]byte] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerMinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= cfg.BreakerFailureRatio {
				logging.Warn().
					Str("feed", name).
					Uint32("failures", counts.TotalFailures).
					Float64("failure_ratio", ratio).
					Msg("Opening feed circuit breaker")
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("feed", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Feed circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
