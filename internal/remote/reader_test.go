// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync/atomic"
	"testing"
	"time"
)

func newTestReader(t *testing.T, handler http.HandlerFunc) *Reader {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewReader(Config{
		BaseURL:    srv.URL,
		Timeout:    2 * time.Second,
		RetryDelay: time.Millisecond,
	})
}

func TestReadPayload(t *testing.T) {
	reader := newTestReader(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/device/ABC123.json" {
			t.Errorf("unexpected request path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"name":"Pixel 7","isActive":true}`))
	})

	result, err := reader.Read(context.Background(), "device/ABC123")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if result.Absent {
		t.Fatal("expected payload, got absent")
	}
	if string(result.Raw) != `{"name":"Pixel 7","isActive":true}` {
		t.Errorf("unexpected payload %q", result.Raw)
	}
}

func TestReadAbsent(t *testing.T) {
	reader := newTestReader(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("null"))
	})

	result, err := reader.Read(context.Background(), "message/NOPE")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !result.Absent {
		t.Error("expected absent result for null payload")
	}
}

func TestReadPermanentErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	reader := newTestReader(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"Permission denied"}`))
	})

	_, err := reader.Read(context.Background(), "device/DENIED")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsPermanent(err) {
		t.Errorf("expected permanent error, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("permanent error was retried: %d calls", got)
	}
}

func TestReadTransientRetriedOnce(t *testing.T) {
	var calls atomic.Int32
	reader := newTestReader(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	result, err := reader.Read(context.Background(), "device/FLAKY")
	if err != nil {
		t.Fatalf("Read() error after retry = %v", err)
	}
	if result.Absent {
		t.Error("expected payload after retry")
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", got)
	}
}

func TestReadTransientBudgetExhausted(t *testing.T) {
	var calls atomic.Int32
	reader := newTestReader(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := reader.Read(context.Background(), "device/DOWN")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsTransient(err) {
		t.Errorf("expected transient error, got %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected retry budget of 2 attempts, got %d", got)
	}
}

func TestListKeys(t *testing.T) {
	reader := newTestReader(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"DEV1":{"name":"a"},"DEV2":{"name":"b"},"junk":"not a device"}`))
	})

	keys, err := reader.ListKeys(context.Background(), "device")
	if err != nil {
		t.Fatalf("ListKeys() error = %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "DEV1" || keys[1] != "DEV2" {
		t.Errorf("ListKeys() = %v, want [DEV1 DEV2]", keys)
	}
}

func TestListKeysAbsentRoot(t *testing.T) {
	reader := newTestReader(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("null"))
	})

	keys, err := reader.ListKeys(context.Background(), "fleet/testing")
	if err != nil {
		t.Fatalf("ListKeys() error = %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("expected no keys for absent root, got %v", keys)
	}
}

func TestBuildURLWithAuth(t *testing.T) {
	reader := NewReader(Config{BaseURL: "https://store.example.com/", AuthToken: "s3cret"})
	u, err := reader.buildURL("device/ABC")
	if err != nil {
		t.Fatalf("buildURL() error = %v", err)
	}
	want := "https://store.example.com/device/ABC.json?auth=s3cret"
	if u != want {
		t.Errorf("buildURL() = %q, want %q", u, want)
	}
}

func TestBuildURLEmptyPath(t *testing.T) {
	reader := NewReader(Config{BaseURL: "https://store.example.com"})
	if _, err := reader.buildURL("/"); err == nil {
		t.Error("expected error for empty path")
	}
}
