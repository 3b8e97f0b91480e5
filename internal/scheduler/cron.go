// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cron is a parsed 5-field cron expression:
// minute hour day-of-month month day-of-week.
//
// Supported syntax per field: * , n , n-m , n,m,o , */s , n-m/s.
// Day 7 in the weekday field is normalized to 0 (Sunday). Day-of-month and
// day-of-week are OR'd when both are restricted, matching standard cron.
type Cron struct {
	minutes  cronSet
	hours    cronSet
	days     cronSet
	months   cronSet
	weekdays cronSet
}

type cronSet struct {
	values   map[int]struct{}
	wildcard bool
}

func (s cronSet) contains(v int) bool {
	if s.wildcard {
		return true
	}
	_, ok := s.values[v]
	return ok
}

// ParseCron parses a 5-field cron expression.
//
// Examples:
//   - "0 3 * * *"    daily at 03:00
//   - "0 4 * * 0"    Sundays at 04:00
//   - "*/15 * * * *" every 15 minutes
func ParseCron(expr string) (*Cron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron expression needs 5 fields, got %d", len(fields))
	}

	c := &Cron{}
	specs := []struct {
		field    string
		min, max int
		dest     *cronSet
		name     string
	}{
		{fields[0], 0, 59, &c.minutes, "minute"},
		{fields[1], 0, 23, &c.hours, "hour"},
		{fields[2], 1, 31, &c.days, "day-of-month"},
		{fields[3], 1, 12, &c.months, "month"},
		{fields[4], 0, 7, &c.weekdays, "day-of-week"},
	}

	for _, spec := range specs {
		set, err := parseCronField(spec.field, spec.min, spec.max)
		if err != nil {
			return nil, fmt.Errorf("invalid %s field: %w", spec.name, err)
		}
		*spec.dest = set
	}

	// Weekday 7 is an alias for Sunday.
	if _, ok := c.weekdays.values[7]; ok {
		delete(c.weekdays.values, 7)
		c.weekdays.values[0] = struct{}{}
	}
	return c, nil
}

// Next returns the first matching time strictly after t, in UTC. Returns the
// zero time if no match exists within four years.
func (c *Cron) Next(after time.Time) time.Time {
	t := after.UTC().Truncate(time.Minute).Add(time.Minute)

	const maxMinutes = 4 * 366 * 24 * 60
	for i := 0; i < maxMinutes; i++ {
		if c.matches(t) {
			return t
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}
}

func (c *Cron) matches(t time.Time) bool {
	if !c.minutes.contains(t.Minute()) || !c.hours.contains(t.Hour()) || !c.months.contains(int(t.Month())) {
		return false
	}

	// Standard cron: when both day fields are restricted, either may match.
	switch {
	case c.days.wildcard && c.weekdays.wildcard:
		return true
	case c.days.wildcard:
		return c.weekdays.contains(int(t.Weekday()))
	case c.weekdays.wildcard:
		return c.days.contains(t.Day())
	default:
		return c.days.contains(t.Day()) || c.weekdays.contains(int(t.Weekday()))
	}
}

func parseCronField(field string, minVal, maxVal int) (cronSet, error) {
	if field == "*" {
		return cronSet{wildcard: true}, nil
	}

	set := cronSet{values: make(map[int]struct{})}
	for _, part := range strings.Split(field, ",") {
		if err := parseCronPart(part, minVal, maxVal, set.values); err != nil {
			return cronSet{}, err
		}
	}
	return set, nil
}

func parseCronPart(part string, minVal, maxVal int, into map[int]struct{}) error {
	step := 1
	if base, stepStr, found := strings.Cut(part, "/"); found {
		s, err := strconv.Atoi(stepStr)
		if err != nil || s <= 0 {
			return fmt.Errorf("bad step %q", stepStr)
		}
		step = s
		part = base
	}

	start, end := minVal, maxVal
	switch {
	case part == "*":
		// Full range with the given step.
	case strings.Contains(part, "-"):
		lo, hi, _ := strings.Cut(part, "-")
		var err error
		if start, err = strconv.Atoi(lo); err != nil {
			return fmt.Errorf("bad range start %q", lo)
		}
		if end, err = strconv.Atoi(hi); err != nil {
			return fmt.Errorf("bad range end %q", hi)
		}
		if start > end {
			return fmt.Errorf("range %d-%d is inverted", start, end)
		}
	default:
		v, err := strconv.Atoi(part)
		if err != nil {
			return fmt.Errorf("bad value %q", part)
		}
		start, end = v, v
		if step == 1 {
			end = v
		} else {
			// "n/s" means every s starting at n.
			end = maxVal
		}
	}

	if start < minVal || end > maxVal {
		return fmt.Errorf("value out of range %d-%d", minVal, maxVal)
	}
	for v := start; v <= end; v += step {
		into[v] = struct{}{}
	}
	return nil
}
