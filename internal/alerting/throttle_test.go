// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package alerting

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestThrottlerFirstFireAlwaysPasses(t *testing.T) {
	th := NewThrottler(NewMemoryStore())
	send, err := th.ShouldSend("device_offline:DEV1", 10*time.Minute)
	if err != nil {
		t.Fatalf("ShouldSend() error = %v", err)
	}
	if !send {
		t.Error("first fire must pass")
	}
}

func TestThrottlerSuppressesWithinInterval(t *testing.T) {
	th := NewThrottler(NewMemoryStore())
	base := time.Now()
	th.now = func() time.Time { return base }

	if send, _ := th.ShouldSend("k", 10*time.Minute); !send {
		t.Fatal("first fire must pass")
	}

	th.now = func() time.Time { return base.Add(9 * time.Minute) }
	if send, _ := th.ShouldSend("k", 10*time.Minute); send {
		t.Error("fire within interval must be suppressed")
	}

	th.now = func() time.Time { return base.Add(10 * time.Minute) }
	if send, _ := th.ShouldSend("k", 10*time.Minute); !send {
		t.Error("fire at interval boundary must pass")
	}
}

func TestThrottlerKeysAreIndependent(t *testing.T) {
	th := NewThrottler(NewMemoryStore())
	if send, _ := th.ShouldSend("low_battery:DEV1", time.Hour); !send {
		t.Fatal("first key must pass")
	}
	if send, _ := th.ShouldSend("low_battery:DEV2", time.Hour); !send {
		t.Error("a different device key must not be throttled by the first")
	}
}

func TestThrottlerConcurrentCallersOnePasses(t *testing.T) {
	th := NewThrottler(NewMemoryStore())
	base := time.Now()
	th.now = func() time.Time { return base }

	const callers = 16
	var wg sync.WaitGroup
	var passed atomic.Int32
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			send, err := th.ShouldSend("sync_failed:soft", 5*time.Minute)
			if err != nil {
				t.Errorf("ShouldSend() error = %v", err)
				return
			}
			if send {
				passed.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := passed.Load(); got != 1 {
		t.Errorf("passed = %d, exactly one racing caller may fire", got)
	}
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	store, err := NewBadgerStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBadgerStore() error = %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}()

	if _, ok, err := store.LastSent("k"); err != nil || ok {
		t.Fatalf("LastSent() on empty store = ok %v err %v", ok, err)
	}

	sent := time.Now().Truncate(time.Millisecond)
	if err := store.MarkSent("k", sent, time.Hour); err != nil {
		t.Fatalf("MarkSent() error = %v", err)
	}

	got, ok, err := store.LastSent("k")
	if err != nil || !ok {
		t.Fatalf("LastSent() = ok %v err %v", ok, err)
	}
	if !got.Equal(sent) {
		t.Errorf("LastSent() = %v, want %v", got, sent)
	}
}

func TestDefaultIntervalsCoverAllKeys(t *testing.T) {
	for _, key := range []string{
		KeyDeviceOffline, KeyLowBattery, KeySyncIssue,
		KeySyncFailed, KeyHardSync, KeyHealthCheckFailed,
	} {
		if _, ok := DefaultIntervals[key]; !ok {
			t.Errorf("no default interval for %q", key)
		}
	}
}
