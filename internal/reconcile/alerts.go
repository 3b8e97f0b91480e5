// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/mgeller/fleetsync/internal/alerting"
	"github.com/mgeller/fleetsync/internal/logging"
	"github.com/mgeller/fleetsync/internal/models"
	"github.com/mgeller/fleetsync/internal/pathres"
)

// AlertPolicy tunes the device alert checks.
type AlertPolicy struct {
	// OfflineAfter is how long without telemetry before a device counts as
	// offline.
	OfflineAfter time.Duration
	// LowBatteryThreshold is the percentage at or below which a low battery
	// alert fires.
	LowBatteryThreshold int
}

// Monitor runs the periodic device alert and health check operations.
type Monitor struct {
	rec     *Reconciler
	alerter *alerting.Alerter
	policy  AlertPolicy
}

// NewMonitor creates a monitor over a reconciler's stores.
func NewMonitor(rec *Reconciler, alerter *alerting.Alerter, policy AlertPolicy) *Monitor {
	if policy.OfflineAfter <= 0 {
		policy.OfflineAfter = 10 * time.Minute
	}
	if policy.LowBatteryThreshold <= 0 {
		policy.LowBatteryThreshold = 20
	}
	return &Monitor{rec: rec, alerter: alerter, policy: policy}
}

// AlertSummary reports what one device-alert pass found.
type AlertSummary struct {
	DevicesChecked int `json:"devices_checked"`
	Offline        int `json:"offline"`
	LowBattery     int `json:"low_battery"`
	SyncIssues     int `json:"sync_issues"`
}

// CheckDeviceAlerts scans active devices for offline, low battery and sync
// failure conditions and raises throttled alerts for each.
func (m *Monitor) CheckDeviceAlerts(ctx context.Context) (*AlertSummary, error) {
	devices, err := m.rec.db.ListActiveDevices(ctx)
	if err != nil {
		return nil, err
	}

	summary := &AlertSummary{DevicesChecked: len(devices)}
	now := time.Now()

	for i := range devices {
		dev := &devices[i]
		name := dev.Name
		if name == "" {
			name = dev.DeviceID
		}

		if dev.LastSeen != nil {
			seen := time.UnixMilli(*dev.LastSeen)
			if now.Sub(seen) > m.policy.OfflineAfter {
				summary.Offline++
				m.alerter.Alert(ctx, alerting.KeyDeviceOffline, dev.DeviceID,
					fmt.Sprintf("Device %s offline: last seen %s", name, seen.Format(time.RFC3339)))
			}
		}

		if dev.BatteryPercentage != nil && *dev.BatteryPercentage <= m.policy.LowBatteryThreshold {
			summary.LowBattery++
			m.alerter.Alert(ctx, alerting.KeyLowBattery, dev.DeviceID,
				fmt.Sprintf("Device %s battery at %d%%", name, *dev.BatteryPercentage))
		}

		switch dev.SyncStatus {
		case models.SyncStatusFailed, models.SyncStatusOutOfSync:
			summary.SyncIssues++
			m.alerter.Alert(ctx, alerting.KeySyncIssue, dev.DeviceID,
				fmt.Sprintf("Device %s sync status %s: %s", name, dev.SyncStatus, dev.SyncError))
		}
	}

	logging.Debug().Int("checked", summary.DevicesChecked).Int("offline", summary.Offline).
		Int("low_battery", summary.LowBattery).Int("sync_issues", summary.SyncIssues).
		Msg("Device alert pass complete")
	return summary, nil
}

// HealthReport is the outcome of one health check pass.
type HealthReport struct {
	Database     string `json:"database"`
	RemoteStore  string `json:"remote_store"`
	AlertChannel string `json:"alert_channel"`
	Healthy      bool   `json:"healthy"`
}

// HealthCheck probes the database, the remote store and the alert channel.
// Failures raise a throttled alert and are reflected in the report rather
// than returned, so the scheduled job records a result either way.
func (m *Monitor) HealthCheck(ctx context.Context) *HealthReport {
	report := &HealthReport{Database: "ok", RemoteStore: "ok", AlertChannel: "ok", Healthy: true}

	if err := m.rec.db.Ping(ctx); err != nil {
		report.Database = err.Error()
		report.Healthy = false
	}

	if _, err := m.rec.reader.Read(ctx, pathres.DeviceRoots[0]); err != nil {
		report.RemoteStore = err.Error()
		report.Healthy = false
	}

	if err := m.alerter.HealthCheck(ctx); err != nil {
		report.AlertChannel = err.Error()
		report.Healthy = false
	}

	if !report.Healthy {
		m.alerter.Alert(ctx, alerting.KeyHealthCheckFailed, "",
			fmt.Sprintf("Health check failed: db=%s remote=%s alerts=%s",
				report.Database, report.RemoteStore, report.AlertChannel))
	}
	return report
}
