// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package normalize

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/mgeller/fleetsync/internal/models"
	"github.com/mgeller/fleetsync/internal/pathres"
)

// decodeNotificationMap decodes a notification payload: a map keyed by
// millisecond timestamp whose values are structured entries or the legacy
// "package~title~text" encoding. Entries with no originating app identifier
// carry no usable signal and are dropped.
func decodeNotificationMap(deviceID string, raw json.RawMessage) (*Records, error) {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, &Error{Shape: pathres.ShapeNotificationMap, Err: fmt.Errorf("payload is not a timestamp map: %w", err)}
	}

	rec := &Records{Notifications: make([]models.Notification, 0, len(entries))}
	for key, value := range entries {
		ts, ok := parseTimestampKey(key)
		if !ok {
			rec.Dropped++
			continue
		}
		note, ok := decodeNotificationEntry(value)
		if !ok || note.Package == "" {
			rec.Dropped++
			continue
		}
		note.DeviceID = deviceID
		note.Timestamp = ts
		rec.Notifications = append(rec.Notifications, note)
	}

	sortNewestFirst(rec.Notifications, func(n models.Notification) int64 { return n.Timestamp })
	return rec, nil
}

func decodeNotificationEntry(raw json.RawMessage) (models.Notification, bool) {
	if f, ok := parseFields(raw); ok {
		return models.Notification{
			Package: f.str("package", "packageName", "package_name", "app"),
			Title:   f.str("title"),
			Text:    f.str("text", "body", "message"),
		}, true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return models.Notification{}, false
	}
	parts := strings.SplitN(s, "~", 3)
	if len(parts) < 3 {
		return models.Notification{}, false
	}
	return models.Notification{
		Package: parts[0],
		Title:   parts[1],
		Text:    parts[2],
	}, true
}
