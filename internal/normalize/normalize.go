// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

// Package normalize converts raw remote-store payloads into canonical record
// types.
//
// Each payload shape has its own decoder, registered in a table keyed by
// pathres.ShapeKind; all decoders for a category produce the same canonical
// type, so adding a new legacy layout means adding one decoder entry without
// touching the reconciler. Absent or garbage optional fields become the
// category's defaults, never nulls propagated into storage.
//
// A payload whose overall structure cannot be decoded yields an *Error, which
// the reconciler treats as absent-for-this-path. Garbage in an individual
// entry drops that entry only and is reported in Records.Dropped.
package normalize

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/mgeller/fleetsync/internal/models"
	"github.com/mgeller/fleetsync/internal/pathres"
)

// Error reports a payload whose shape could not be decoded. Non-fatal to the
// batch: the path is treated as if absent and resolution continues.
type Error struct {
	Shape pathres.ShapeKind
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cannot normalize %s payload: %v", e.Shape, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Records is the canonical output of one decoded payload. Exactly one of the
// category slices (or Device) is populated, matching the decoder's shape.
type Records struct {
	Device        *models.Device
	Messages      []models.Message
	Notifications []models.Notification
	Contacts      []models.Contact

	// Dropped counts entries skipped because they were individually
	// malformed (bad timestamp key, missing app identifier, wrong type).
	Dropped int
}

type decoder func(deviceID string, raw json.RawMessage) (*Records, error)

var decoders = map[pathres.ShapeKind]decoder{
	pathres.ShapeDeviceInfo:      decodeDeviceInfo,
	pathres.ShapeMessageMap:      decodeMessageMap,
	pathres.ShapeNotificationMap: decodeNotificationMap,
	pathres.ShapeContactMap:      decodeContactMap,
}

// Normalize decodes raw into canonical records using the decoder registered
// for shape.
func Normalize(shape pathres.ShapeKind, deviceID string, raw json.RawMessage) (*Records, error) {
	dec, ok := decoders[shape]
	if !ok {
		return nil, &Error{Shape: shape, Err: fmt.Errorf("no decoder registered")}
	}
	return dec(deviceID, raw)
}

// parseTimestampKey converts a map key to a millisecond timestamp.
func parseTimestampKey(key string) (int64, bool) {
	ts, err := strconv.ParseInt(key, 10, 64)
	if err != nil || ts <= 0 {
		return 0, false
	}
	return ts, true
}

// sortNewestFirst orders timestamps descending so a record cap keeps the most
// recent entries.
func sortNewestFirst[T any](items []T, ts func(T) int64) {
	sort.Slice(items, func(i, j int) bool {
		return ts(items[i]) > ts(items[j])
	})
}
