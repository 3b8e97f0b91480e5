// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package alerting

import (
	"context"
	"time"

	"github.com/mgeller/fleetsync/internal/logging"
	"github.com/mgeller/fleetsync/internal/metrics"
)

// Alerter combines a notifier with throttling. A nil notifier disables
// delivery entirely while keeping call sites unconditional.
type Alerter struct {
	notifier  Notifier
	throttler *Throttler
	intervals map[string]time.Duration
}

// New creates an alerter. notifier may be nil to disable delivery.
func New(notifier Notifier, store ThrottleStore) *Alerter {
	return &Alerter{
		notifier:  notifier,
		throttler: NewThrottler(store),
		intervals: DefaultIntervals,
	}
}

// Alert sends text if the throttle key is clear. The key is
// "<baseKey>:<scope>"; the minimum interval comes from the base key. Delivery
// failures are logged, never propagated: alerting is best effort and must not
// fail the operation that raised the alert.
func (a *Alerter) Alert(ctx context.Context, baseKey, scope, text string) {
	if a == nil || a.notifier == nil {
		return
	}

	key := baseKey
	if scope != "" {
		key = baseKey + ":" + scope
	}
	interval, ok := a.intervals[baseKey]
	if !ok {
		interval = 5 * time.Minute
	}

	send, err := a.throttler.ShouldSend(key, interval)
	if err != nil {
		logging.Warn().Str("key", key).Err(err).Msg("Throttle store failure, suppressing alert")
		metrics.Alerts.WithLabelValues("failed").Inc()
		return
	}
	if !send {
		logging.Debug().Str("key", key).Msg("Alert throttled")
		metrics.Alerts.WithLabelValues("throttled").Inc()
		return
	}

	if err := a.notifier.Send(ctx, text); err != nil {
		logging.Warn().Str("key", key).Err(err).Msg("Failed to deliver alert")
		metrics.Alerts.WithLabelValues("failed").Inc()
		return
	}
	metrics.Alerts.WithLabelValues("sent").Inc()
}

// HealthCheck probes the alert channel.
func (a *Alerter) HealthCheck(ctx context.Context) error {
	if a == nil || a.notifier == nil {
		return nil
	}
	return a.notifier.HealthCheck(ctx)
}
