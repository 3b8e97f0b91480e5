// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package alerting

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const throttleKeyPrefix = "throttle:"

// BadgerStore is a ThrottleStore backed by BadgerDB, so throttle state
// survives restarts and a crash-looping process cannot re-spam every alert
// on each start.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a BadgerDB throttle store at path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open throttle store at %s: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

// LastSent returns the persisted firing time for key.
func (s *BadgerStore) LastSent(key string) (time.Time, bool, error) {
	var unixMilli int64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(throttleKeyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			unixMilli, err = strconv.ParseInt(string(val), 10, 64)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read throttle key %s: %w", key, err)
	}
	return time.UnixMilli(unixMilli), true, nil
}

// MarkSent persists a firing with a TTL so stale keys expire on their own.
func (s *BadgerStore) MarkSent(key string, t time.Time, ttl time.Duration) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(
			[]byte(throttleKeyPrefix+key),
			[]byte(strconv.FormatInt(t.UnixMilli(), 10)))
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("failed to persist throttle key %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying BadgerDB.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
