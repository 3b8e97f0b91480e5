// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package remote

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/mgeller/fleetsync/internal/logging"
	"github.com/mgeller/fleetsync/internal/metrics"
)

// BreakerReader wraps a Reader with a circuit breaker so that a remote store
// outage sheds load fast instead of stacking up timed-out reads across the
// whole worker pool.
//
// The breaker uses real time for its interval and timeout calculations.
// Tests should exercise the wrapped Reader directly.
type BreakerReader struct {
	reader *Reader
	cb     *gobreaker.CircuitBreaker[Result]
	name   string
}

// NewBreakerReader creates a circuit-breaker-protected reader.
// Breaker settings: max 3 concurrent probes in half-open state, 1 minute
// measurement window, 2 minutes before recovery attempts, opens at a 60%
// failure rate with a minimum of 10 requests.
func NewBreakerReader(reader *Reader) *BreakerReader {
	cbName := "remote-store"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[Result](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening circuit to remote store")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateToString(from), stateToString(to)).Inc()
		},

		// Permanent errors describe the path, not the store; they must not
		// open the circuit.
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err)
		},
	})

	return &BreakerReader{reader: reader, cb: cb, name: cbName}
}

// Read fetches the payload at path with circuit breaker protection. A
// rejected request (open circuit) surfaces as a TransientError so callers
// apply their normal category-failure handling.
func (b *BreakerReader) Read(ctx context.Context, path string) (Result, error) {
	result, err := b.cb.Execute(func() (Result, error) {
		return b.reader.Read(ctx, path)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Result{}, &TransientError{Path: path, Err: err}
		}
		return Result{}, err
	}
	return result, nil
}

// ListKeys enumerates object keys at path with circuit breaker protection.
func (b *BreakerReader) ListKeys(ctx context.Context, path string) ([]string, error) {
	result, err := b.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	if result.Absent {
		return nil, nil
	}
	// Re-use the reader's key extraction on the already-fetched payload.
	return extractObjectKeys(path, result.Raw)
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
