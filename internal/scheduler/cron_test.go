// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package scheduler

import (
	"testing"
	"time"
)

func mustParseCron(t *testing.T, expr string) *Cron {
	t.Helper()
	c, err := ParseCron(expr)
	if err != nil {
		t.Fatalf("ParseCron(%q) error = %v", expr, err)
	}
	return c
}

func TestParseCronRejectsInvalid(t *testing.T) {
	tests := []string{
		"",
		"* * * *",        // 4 fields
		"* * * * * *",    // 6 fields
		"60 * * * *",     // minute out of range
		"* 24 * * *",     // hour out of range
		"* * 0 * *",      // day-of-month out of range
		"* * * 13 *",     // month out of range
		"* * * * 8",      // weekday out of range
		"*/0 * * * *",    // zero step
		"5-1 * * * *",    // inverted range
		"abc * * * *",    // garbage
		"1,2,x * * * *",  // garbage in list
		"1-2-3 * * * *",  // malformed range
	}
	for _, expr := range tests {
		if _, err := ParseCron(expr); err == nil {
			t.Errorf("ParseCron(%q) accepted invalid expression", expr)
		}
	}
}

func TestCronNext(t *testing.T) {
	// Reference point: Wednesday 2026-01-07 10:30 UTC.
	ref := time.Date(2026, 1, 7, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		expr string
		want time.Time
	}{
		{"0 3 * * *", time.Date(2026, 1, 8, 3, 0, 0, 0, time.UTC)},      // Daily 03:00
		{"*/15 * * * *", time.Date(2026, 1, 7, 10, 45, 0, 0, time.UTC)}, // Next quarter hour
		{"0 4 * * 0", time.Date(2026, 1, 11, 4, 0, 0, 0, time.UTC)},     // Next Sunday 04:00
		{"0 4 * * 7", time.Date(2026, 1, 11, 4, 0, 0, 0, time.UTC)},     // 7 aliases Sunday
		{"0 0 1 * *", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},      // First of month
		{"30 10 * * *", time.Date(2026, 1, 8, 10, 30, 0, 0, time.UTC)},  // Strictly after ref
		{"45 10 * * 3", time.Date(2026, 1, 7, 10, 45, 0, 0, time.UTC)},  // Same day later
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got := mustParseCron(t, tt.expr).Next(ref)
			if !got.Equal(tt.want) {
				t.Errorf("Next() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCronDayFieldsAreORed(t *testing.T) {
	// "day 15 OR Monday": from Wed Jan 7, the next Monday (Jan 12) comes
	// before the 15th.
	c := mustParseCron(t, "0 0 15 * 1")
	ref := time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)
	got := c.Next(ref)
	want := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Next() = %v, want Monday %v", got, want)
	}
	// And from just after that Monday, the 15th wins.
	got = c.Next(want)
	want = time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Next() = %v, want the 15th %v", got, want)
	}
}

func TestCronRangesListsAndSteps(t *testing.T) {
	c := mustParseCron(t, "0 9-11 * * 1-5")
	// Friday 09:00 matches.
	if !c.matches(time.Date(2026, 1, 9, 9, 0, 0, 0, time.UTC)) {
		t.Error("weekday business hour should match")
	}
	// Saturday 09:00 does not.
	if c.matches(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)) {
		t.Error("Saturday should not match 1-5 weekday range")
	}

	c = mustParseCron(t, "0,30 */2 * * *")
	if !c.matches(time.Date(2026, 1, 7, 4, 30, 0, 0, time.UTC)) {
		t.Error("04:30 should match 0,30 */2")
	}
	if c.matches(time.Date(2026, 1, 7, 5, 30, 0, 0, time.UTC)) {
		t.Error("05:30 should not match */2 hours")
	}
}
