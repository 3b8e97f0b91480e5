// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

// Package pathres resolves the ordered list of remote-store paths to probe
// for a given device and telemetry category.
//
// The remote store has accumulated several path layouts over time. For every
// category the canonical path comes first, followed by legacy paths in a
// fixed, documented order. Resolution order is part of the contract, not an
// implementation detail: the reconciler stops at the first non-absent path,
// so the order determines which layout wins when the same logical item exists
// at two paths with divergent content. There is deliberately no merging
// across paths.
package pathres

import (
	"fmt"

	"github.com/mgeller/fleetsync/internal/models"
)

// ShapeKind selects the decoder for a path's payload layout.
type ShapeKind string

const (
	// ShapeDeviceInfo is a flat map of device attributes. Legacy layouts use
	// alias field names (deviceName vs name) handled by the decoder.
	ShapeDeviceInfo ShapeKind = "device_info"
	// ShapeMessageMap is a map keyed by millisecond timestamp; each entry is
	// either a structured object or a legacy tilde-delimited string.
	ShapeMessageMap ShapeKind = "message_map"
	// ShapeNotificationMap is a map keyed by millisecond timestamp with
	// structured or tilde-delimited entries.
	ShapeNotificationMap ShapeKind = "notification_map"
	// ShapeContactMap is a map keyed by the contact's primary phone number.
	ShapeContactMap ShapeKind = "contact_map"
)

// Candidate is one remote path to probe and the payload shape found there.
type Candidate struct {
	Path  string
	Shape ShapeKind
}

// Legacy root paths still read for backward compatibility.
const (
	legacyTestingRoot = "fleet/testing"
	legacyRunningRoot = "fleet/running"
)

// DeviceRoots lists the remote paths under which device identifiers are
// enumerated, canonical root first.
var DeviceRoots = []string{"device", legacyTestingRoot, legacyRunningRoot}

// Resolve returns the ordered candidate paths for a device and category.
// Pure function of its inputs; no I/O.
func Resolve(deviceID string, category models.Category) ([]Candidate, error) {
	switch category {
	case models.CategoryDevice:
		return []Candidate{
			{Path: "device/" + deviceID, Shape: ShapeDeviceInfo},
			{Path: legacyTestingRoot + "/" + deviceID, Shape: ShapeDeviceInfo},
			{Path: legacyRunningRoot + "/" + deviceID, Shape: ShapeDeviceInfo},
		}, nil
	case models.CategoryMessages:
		return []Candidate{
			{Path: "message/" + deviceID, Shape: ShapeMessageMap},
			{Path: "device/" + deviceID + "/Message", Shape: ShapeMessageMap},
			{Path: legacyTestingRoot + "/" + deviceID + "/message", Shape: ShapeMessageMap},
			{Path: legacyRunningRoot + "/" + deviceID + "/message", Shape: ShapeMessageMap},
		}, nil
	case models.CategoryNotifications:
		return []Candidate{
			{Path: "device/" + deviceID + "/Notification", Shape: ShapeNotificationMap},
			{Path: "notification/" + deviceID, Shape: ShapeNotificationMap},
			{Path: legacyTestingRoot + "/" + deviceID + "/notification", Shape: ShapeNotificationMap},
			{Path: legacyRunningRoot + "/" + deviceID + "/notification", Shape: ShapeNotificationMap},
		}, nil
	case models.CategoryContacts:
		return []Candidate{
			{Path: "device/" + deviceID + "/Contact", Shape: ShapeContactMap},
			{Path: "contact/" + deviceID, Shape: ShapeContactMap},
			{Path: legacyTestingRoot + "/" + deviceID + "/contact", Shape: ShapeContactMap},
			{Path: legacyRunningRoot + "/" + deviceID + "/contact", Shape: ShapeContactMap},
		}, nil
	default:
		return nil, fmt.Errorf("unknown category %q", category)
	}
}
