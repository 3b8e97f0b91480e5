// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package alerting

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mgeller/fleetsync/internal/config"
)

func newTestNotifier(t *testing.T, handler http.HandlerFunc) *TelegramNotifier {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	n := NewTelegramNotifier(&config.TelegramConfig{
		BotToken: "tok", ChatID: "42", Timeout: 2 * time.Second,
	})
	n.baseURL = srv.URL
	return n
}

func TestTelegramSend(t *testing.T) {
	var gotPath, gotBody string
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	if err := n.Send(context.Background(), "device DEV1 offline"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if gotPath != "/bottok/sendMessage" {
		t.Errorf("path = %q", gotPath)
	}
	if !strings.Contains(gotBody, `"chat_id":"42"`) || !strings.Contains(gotBody, "DEV1") {
		t.Errorf("body = %q", gotBody)
	}
}

func TestTelegramSendRejected(t *testing.T) {
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Unauthorized"}`))
	})
	err := n.Send(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "Unauthorized") {
		t.Errorf("Send() error = %v, want rejection with description", err)
	}
}

func TestTelegramHealthCheck(t *testing.T) {
	var gotPath string
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"ok":true,"result":{"username":"fleetsync_bot"}}`))
	})
	if err := n.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
	if gotPath != "/bottok/getMe" {
		t.Errorf("path = %q", gotPath)
	}
}

type recordingNotifier struct {
	sent []string
	fail bool
}

func (r *recordingNotifier) Send(_ context.Context, text string) error {
	if r.fail {
		return context.DeadlineExceeded
	}
	r.sent = append(r.sent, text)
	return nil
}

func (r *recordingNotifier) HealthCheck(context.Context) error { return nil }

func TestAlerterThrottlesByScopedKey(t *testing.T) {
	rec := &recordingNotifier{}
	a := New(rec, NewMemoryStore())
	ctx := context.Background()

	a.Alert(ctx, KeyDeviceOffline, "DEV1", "DEV1 offline")
	a.Alert(ctx, KeyDeviceOffline, "DEV1", "DEV1 offline again")
	a.Alert(ctx, KeyDeviceOffline, "DEV2", "DEV2 offline")

	if len(rec.sent) != 2 {
		t.Fatalf("sent %d alerts, want 2 (repeat suppressed)", len(rec.sent))
	}
	if rec.sent[0] != "DEV1 offline" || rec.sent[1] != "DEV2 offline" {
		t.Errorf("sent = %v", rec.sent)
	}
}

func TestAlerterNilNotifierIsSafe(t *testing.T) {
	a := New(nil, NewMemoryStore())
	a.Alert(context.Background(), KeySyncFailed, "", "ignored")
	if err := a.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() with nil notifier = %v", err)
	}
}
