// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package normalize

import (
	"errors"
	"testing"

	"github.com/goccy/go-json"

	"github.com/mgeller/fleetsync/internal/models"
	"github.com/mgeller/fleetsync/internal/pathres"
)

func TestDecodeDeviceInfo(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    models.Device
	}{
		{
			name:    "structured",
			payload: `{"name":"Pixel 7","model":"GVU6C","phone":"+15550100","code":"A1","isActive":true,"lastSeen":1700000000000,"batteryPercentage":85}`,
			want: models.Device{
				DeviceID: "DEV1", Name: "Pixel 7", Model: "GVU6C",
				Phone: "+15550100", Code: "A1", IsActive: true,
			},
		},
		{
			name:    "legacy aliases",
			payload: `{"deviceName":"Old Phone","isActive":"opened","time":1600000000000,"battery":"42"}`,
			want: models.Device{
				DeviceID: "DEV1", Name: "Old Phone", IsActive: true,
			},
		},
		{
			name:    "inactive string",
			payload: `{"name":"Gone","isActive":"closed"}`,
			want:    models.Device{DeviceID: "DEV1", Name: "Gone", IsActive: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Normalize(pathres.ShapeDeviceInfo, "DEV1", json.RawMessage(tt.payload))
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			dev := rec.Device
			if dev == nil {
				t.Fatal("expected device record")
			}
			if dev.DeviceID != tt.want.DeviceID || dev.Name != tt.want.Name ||
				dev.Model != tt.want.Model || dev.Phone != tt.want.Phone ||
				dev.Code != tt.want.Code || dev.IsActive != tt.want.IsActive {
				t.Errorf("decoded device = %+v, want %+v", dev, tt.want)
			}
		})
	}
}

func TestDecodeDeviceInfoLastSeenAndBattery(t *testing.T) {
	rec, err := Normalize(pathres.ShapeDeviceInfo, "DEV1",
		json.RawMessage(`{"name":"P","lastSeen":"1700000000000","batteryPercentage":85}`))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if rec.Device.LastSeen == nil || *rec.Device.LastSeen != 1700000000000 {
		t.Errorf("LastSeen = %v, want 1700000000000", rec.Device.LastSeen)
	}
	if rec.Device.BatteryPercentage == nil || *rec.Device.BatteryPercentage != 85 {
		t.Errorf("BatteryPercentage = %v, want 85", rec.Device.BatteryPercentage)
	}
}

func TestDecodeDeviceInfoNotAnObject(t *testing.T) {
	_, err := Normalize(pathres.ShapeDeviceInfo, "DEV1", json.RawMessage(`"scalar"`))
	var nerr *Error
	if !errors.As(err, &nerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if nerr.Shape != pathres.ShapeDeviceInfo {
		t.Errorf("Error.Shape = %v, want %v", nerr.Shape, pathres.ShapeDeviceInfo)
	}
}

func TestDecodeMessageMap(t *testing.T) {
	payload := `{
		"1700000001000": {"type":"sent","phone":"+15550100","body":"hello","read":true},
		"1700000002000": "received~+15550101~tilde ~ body",
		"1700000003000": {"direction":"weird","phone":"+15550102","body":"x"},
		"not-a-ts":      {"type":"sent","phone":"+1","body":"dropped"}
	}`

	rec, err := Normalize(pathres.ShapeMessageMap, "DEV1", json.RawMessage(payload))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(rec.Messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(rec.Messages))
	}
	if rec.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", rec.Dropped)
	}

	// Newest first.
	if rec.Messages[0].Timestamp != 1700000003000 {
		t.Errorf("first message timestamp = %d, want newest", rec.Messages[0].Timestamp)
	}
	if rec.Messages[0].Direction != models.DirectionReceived {
		t.Errorf("unknown type should normalize to received, got %q", rec.Messages[0].Direction)
	}

	tilde := rec.Messages[1]
	if tilde.Phone != "+15550101" || tilde.Body != "tilde ~ body" {
		t.Errorf("tilde entry = %+v, body must keep embedded tildes", tilde)
	}
	if tilde.Direction != models.DirectionReceived {
		t.Errorf("tilde direction = %q, want received", tilde.Direction)
	}

	sent := rec.Messages[2]
	if sent.Direction != models.DirectionSent || !sent.Read {
		t.Errorf("structured entry = %+v, want sent and read", sent)
	}
}

func TestDecodeMessageMapGarbagePayload(t *testing.T) {
	_, err := Normalize(pathres.ShapeMessageMap, "DEV1", json.RawMessage(`[1,2,3]`))
	var nerr *Error
	if !errors.As(err, &nerr) {
		t.Fatalf("expected *Error for non-map payload, got %v", err)
	}
}

func TestDecodeNotificationMap(t *testing.T) {
	payload := `{
		"1700000001000": {"package":"com.app.chat","title":"New","text":"ping"},
		"1700000002000": {"packageName":"com.app.mail","title":"Mail","body":"inbox"},
		"1700000003000": "com.app.legacy~Legacy~tilde text",
		"1700000004000": {"title":"no package","text":"dropped"}
	}`

	rec, err := Normalize(pathres.ShapeNotificationMap, "DEV1", json.RawMessage(payload))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(rec.Notifications) != 3 {
		t.Fatalf("got %d notifications, want 3", len(rec.Notifications))
	}
	if rec.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1 (entry without package)", rec.Dropped)
	}

	for _, n := range rec.Notifications {
		if n.Package == "" {
			t.Errorf("notification without package survived: %+v", n)
		}
		if n.DeviceID != "DEV1" {
			t.Errorf("DeviceID = %q, want DEV1", n.DeviceID)
		}
	}

	legacy := rec.Notifications[0]
	if legacy.Package != "com.app.legacy" || legacy.Text != "tilde text" {
		t.Errorf("legacy entry = %+v", legacy)
	}
	aliased := rec.Notifications[1]
	if aliased.Package != "com.app.mail" || aliased.Text != "inbox" {
		t.Errorf("aliased entry = %+v", aliased)
	}
}

func TestDecodeContactMap(t *testing.T) {
	payload := `{
		"+15550100": {
			"contactId":"42","displayName":"Ada Lovelace","name":"Ada",
			"phones":["+15550100","+15550199"],"emails":["ada@example.com"],
			"company":"Analytical","jobTitle":"Engineer",
			"lastContacted":"1700000000000","timesContacted":7,"isStarred":true
		},
		"+15550101": {"display_name":"Snake Case","last_contacted":1600000000000,"times_contacted":"3"},
		"+15550102": "bare string entry",
		"": {"name":"keyless"}
	}`

	rec, err := Normalize(pathres.ShapeContactMap, "DEV1", json.RawMessage(payload))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(rec.Contacts) != 3 {
		t.Fatalf("got %d contacts, want 3", len(rec.Contacts))
	}
	if rec.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1 (empty phone key)", rec.Dropped)
	}

	byPhone := make(map[string]models.Contact, len(rec.Contacts))
	for _, c := range rec.Contacts {
		byPhone[c.PhoneNumber] = c
	}

	ada := byPhone["+15550100"]
	if ada.ContactID != "42" || ada.DisplayName != "Ada Lovelace" || ada.Name != "Ada" {
		t.Errorf("camelCase contact = %+v", ada)
	}
	if len(ada.Phones) != 2 || len(ada.Emails) != 1 {
		t.Errorf("list fields = phones %v emails %v", ada.Phones, ada.Emails)
	}
	if ada.LastContacted == nil || *ada.LastContacted != 1700000000000 {
		t.Errorf("LastContacted (numeric string) = %v", ada.LastContacted)
	}
	if !ada.IsStarred || ada.TimesContacted != 7 {
		t.Errorf("scalar fields = starred %v times %d", ada.IsStarred, ada.TimesContacted)
	}

	snake := byPhone["+15550101"]
	if snake.DisplayName != "Snake Case" || snake.TimesContacted != 3 {
		t.Errorf("snake_case contact = %+v", snake)
	}
	if snake.LastContacted == nil || *snake.LastContacted != 1600000000000 {
		t.Errorf("snake_case LastContacted = %v", snake.LastContacted)
	}

	bare := byPhone["+15550102"]
	if bare.DeviceID != "DEV1" || bare.Name != "" {
		t.Errorf("bare entry should keep just the phone key, got %+v", bare)
	}
}

func TestNormalizeUnknownShape(t *testing.T) {
	_, err := Normalize(pathres.ShapeKind("bogus"), "DEV1", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected error for unregistered shape")
	}
}
