// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

// Package alerting delivers operational alerts with key-based throttling.
//
// Every alert carries a throttle key; a key that fired within its minimum
// interval is suppressed. Throttle state lives behind the ThrottleStore
// interface so deployments can choose between the in-memory store (state
// resets on restart) and the BadgerDB store (state survives restarts).
package alerting

import (
	"sync"
	"time"
)

// Throttle keys and their minimum intervals. The key scopes the throttle:
// per-device keys embed the device identifier so one noisy device cannot
// silence alerts for the rest of the fleet.
const (
	KeyDeviceOffline     = "device_offline"
	KeyLowBattery        = "low_battery"
	KeySyncIssue         = "sync_issue"
	KeySyncFailed        = "sync_failed"
	KeyHardSync          = "hard_sync"
	KeyHealthCheckFailed = "health_check_failed"
)

// DefaultIntervals maps base throttle keys to their minimum firing interval.
var DefaultIntervals = map[string]time.Duration{
	KeyDeviceOffline:     10 * time.Minute,
	KeyLowBattery:        30 * time.Minute,
	KeySyncIssue:         15 * time.Minute,
	KeySyncFailed:        5 * time.Minute,
	KeyHardSync:          10 * time.Minute,
	KeyHealthCheckFailed: 5 * time.Minute,
}

// ThrottleStore persists the last firing time per throttle key.
type ThrottleStore interface {
	// LastSent returns the last firing time for key, or ok=false when the
	// key has never fired (or its record expired).
	LastSent(key string) (t time.Time, ok bool, err error)
	// MarkSent records a firing at time t, retained at least for ttl.
	MarkSent(key string, t time.Time, ttl time.Duration) error
	Close() error
}

// MemoryStore is a ThrottleStore that keeps state in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	sent map[string]time.Time
}

// NewMemoryStore creates an in-memory throttle store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sent: make(map[string]time.Time)}
}

// LastSent returns the recorded firing time for key.
func (s *MemoryStore) LastSent(key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.sent[key]
	return t, ok, nil
}

// MarkSent records a firing. TTL is ignored; memory state dies with the
// process anyway.
func (s *MemoryStore) MarkSent(key string, t time.Time, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[key] = t
	return nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }

// Throttler decides whether an alert key may fire.
type Throttler struct {
	store ThrottleStore
	now   func() time.Time

	// mu spans the check-then-record in ShouldSend. The store's own locking
	// covers each call but not the pair.
	mu sync.Mutex
}

// NewThrottler creates a throttler over the given store.
func NewThrottler(store ThrottleStore) *Throttler {
	return &Throttler{store: store, now: time.Now}
}

// ShouldSend reports whether key may fire given its minimum interval, and
// records the firing when it may. Check and record are one operation so two
// callers racing on the same key cannot both pass.
func (t *Throttler) ShouldSend(key string, minInterval time.Duration) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok, err := t.store.LastSent(key)
	if err != nil {
		return false, err
	}
	now := t.now()
	if ok && now.Sub(last) < minInterval {
		return false, nil
	}
	// Retain the record a little beyond the interval so a store with TTL
	// support can expire it instead of growing unboundedly.
	if err := t.store.MarkSent(key, now, minInterval*2); err != nil {
		return false, err
	}
	return true, nil
}
