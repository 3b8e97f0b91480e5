// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package normalize

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/mgeller/fleetsync/internal/models"
	"github.com/mgeller/fleetsync/internal/pathres"
)

// decodeDeviceInfo decodes a flat device-info map. Older clients report
// "deviceName" instead of "name" and activation state as a string; both forms
// normalize to the same canonical record.
func decodeDeviceInfo(deviceID string, raw json.RawMessage) (*Records, error) {
	f, ok := parseFields(raw)
	if !ok {
		return nil, &Error{Shape: pathres.ShapeDeviceInfo, Err: fmt.Errorf("payload is not an object")}
	}

	dev := &models.Device{
		DeviceID:          deviceID,
		Name:              f.str("name", "deviceName", "device_name"),
		Model:             f.str("model", "deviceModel"),
		Phone:             f.str("phone", "phoneNumber", "phone_number"),
		Code:              f.str("code"),
		CurrentPhone:      f.str("currentPhone", "current_phone"),
		CurrentIdentifier: f.str("currentIdentifier", "current_identifier", "identifier"),
	}

	if active, ok := f.boolval("isActive", "is_active", "status"); ok {
		dev.IsActive = active
	}
	if seen, ok := f.int64val("lastSeen", "last_seen", "time"); ok && seen > 0 {
		dev.LastSeen = &seen
	}
	if battery, ok := f.intval("batteryPercentage", "battery_percentage", "battery"); ok {
		if battery >= 0 && battery <= 100 {
			dev.BatteryPercentage = &battery
		}
	}

	return &Records{Device: dev}, nil
}
