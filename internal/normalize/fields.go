// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package normalize

import (
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// fields wraps a decoded JSON object and reads values leniently: client
// versions disagree on field names and on whether numbers are numbers or
// strings, so every accessor takes alias keys and coerces scalar types.
type fields map[string]json.RawMessage

func parseFields(raw json.RawMessage) (fields, bool) {
	var f fields
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, false
	}
	return f, true
}

// str returns the first non-empty string among the aliased keys.
func (f fields) str(keys ...string) string {
	for _, key := range keys {
		raw, ok := f[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
		// Some clients send numeric values for string fields.
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String()
		}
	}
	return ""
}

// int64val returns the first value among the aliased keys that parses as an
// integer, accepting numbers and numeric strings.
func (f fields) int64val(keys ...string) (int64, bool) {
	for _, key := range keys {
		raw, ok := f[key]
		if !ok {
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			if v, err := n.Int64(); err == nil {
				return v, true
			}
			if fv, err := n.Float64(); err == nil {
				return int64(fv), true
			}
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
				return v, true
			}
		}
	}
	return 0, false
}

func (f fields) intval(keys ...string) (int, bool) {
	v, ok := f.int64val(keys...)
	return int(v), ok
}

// boolval accepts JSON booleans plus the legacy activation strings some
// clients report: "opened", "active", "true", "1" and "yes" all mean true.
func (f fields) boolval(keys ...string) (bool, bool) {
	for _, key := range keys {
		raw, ok := f[key]
		if !ok {
			continue
		}
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			return b, true
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			switch strings.ToLower(strings.TrimSpace(s)) {
			case "opened", "active", "true", "1", "yes":
				return true, true
			default:
				return false, true
			}
		}
		var n int
		if err := json.Unmarshal(raw, &n); err == nil {
			return n != 0, true
		}
	}
	return false, false
}

// strList decodes a JSON array of strings, coercing scalar entries and
// skipping anything else. A bare string becomes a single-element list.
func (f fields) strList(keys ...string) []string {
	for _, key := range keys {
		raw, ok := f[key]
		if !ok {
			continue
		}
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err == nil {
			out := make([]string, 0, len(list))
			for _, item := range list {
				var s string
				if err := json.Unmarshal(item, &s); err == nil && s != "" {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return []string{s}
		}
	}
	return nil
}
