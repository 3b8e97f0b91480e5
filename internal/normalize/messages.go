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

// decodeMessageMap decodes a message payload: a map keyed by millisecond
// timestamp whose values are either structured entries or the legacy
// tilde-delimited "type~phone~body" encoding.
func decodeMessageMap(deviceID string, raw json.RawMessage) (*Records, error) {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, &Error{Shape: pathres.ShapeMessageMap, Err: fmt.Errorf("payload is not a timestamp map: %w", err)}
	}

	rec := &Records{Messages: make([]models.Message, 0, len(entries))}
	for key, value := range entries {
		ts, ok := parseTimestampKey(key)
		if !ok {
			rec.Dropped++
			continue
		}
		msg, ok := decodeMessageEntry(value)
		if !ok {
			rec.Dropped++
			continue
		}
		msg.DeviceID = deviceID
		msg.Timestamp = ts
		rec.Messages = append(rec.Messages, msg)
	}

	sortNewestFirst(rec.Messages, func(m models.Message) int64 { return m.Timestamp })
	return rec, nil
}

func decodeMessageEntry(raw json.RawMessage) (models.Message, bool) {
	if f, ok := parseFields(raw); ok {
		msg := models.Message{
			Direction: parseDirection(f.str("type", "direction")),
			Phone:     f.str("phone", "phoneNumber", "phone_number", "address"),
			Body:      f.str("body", "text", "message"),
		}
		if read, ok := f.boolval("read", "isRead"); ok {
			msg.Read = read
		}
		return msg, true
	}

	// Legacy clients store "type~phone~body". The body may itself contain
	// tildes, so only the first two are delimiters.
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return models.Message{}, false
	}
	parts := strings.SplitN(s, "~", 3)
	if len(parts) < 3 {
		return models.Message{}, false
	}
	return models.Message{
		Direction: parseDirection(parts[0]),
		Phone:     parts[1],
		Body:      parts[2],
	}, true
}

// parseDirection maps a reported message type onto a canonical direction.
// Anything unrecognized counts as received.
func parseDirection(raw string) models.MessageDirection {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sent", "outgoing", "out", "2":
		return models.DirectionSent
	default:
		return models.DirectionReceived
	}
}
