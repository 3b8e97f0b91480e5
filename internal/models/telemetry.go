// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

// Package models defines the canonical record types shared across the sync
// engine: device telemetry records, sync audit rows, scheduled job definitions
// and reconciliation run results.
package models

import "time"

// Category identifies a class of device telemetry in the remote store.
type Category string

// Telemetry categories. DeviceInfo is only fetched during hard sync or when a
// device is flagged stale.
const (
	CategoryDevice        Category = "device"
	CategoryMessages      Category = "messages"
	CategoryNotifications Category = "notifications"
	CategoryContacts      Category = "contacts"
)

// SyncCategories are the categories fetched by a soft sync, in fetch order.
var SyncCategories = []Category{CategoryMessages, CategoryNotifications, CategoryContacts}

// SyncStatus describes a device's reconciliation health.
type SyncStatus string

const (
	SyncStatusNeverSynced SyncStatus = "never_synced"
	SyncStatusSyncing     SyncStatus = "syncing"
	SyncStatusSynced      SyncStatus = "synced"
	SyncStatusFailed      SyncStatus = "sync_failed"
	SyncStatusOutOfSync   SyncStatus = "out_of_sync"
)

// Device is the canonical device record. DeviceID is the stable identifier
// reported by the client and is the join key across all categories and all
// remote path layouts.
type Device struct {
	DeviceID          string     `json:"device_id"`
	Name              string     `json:"name"`
	Model             string     `json:"model"`
	Phone             string     `json:"phone"`
	Code              string     `json:"code"`
	IsActive          bool       `json:"is_active"`
	LastSeen          *int64     `json:"last_seen,omitempty"` // Device clock, milliseconds
	BatteryPercentage *int       `json:"battery_percentage,omitempty"`
	CurrentPhone      string     `json:"current_phone"`
	CurrentIdentifier string     `json:"current_identifier"`
	SyncStatus        SyncStatus `json:"sync_status"`
	SyncError         string     `json:"sync_error,omitempty"`
	LastSyncAt        *time.Time `json:"last_sync_at,omitempty"`
	LastHardSyncAt    *time.Time `json:"last_hard_sync_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// MessageDirection is the direction of an SMS message relative to the device.
type MessageDirection string

const (
	DirectionReceived MessageDirection = "received"
	DirectionSent     MessageDirection = "sent"
)

// Message is one SMS message. (DeviceID, Timestamp) is unique: the remote
// store may report the same logical message through more than one path
// layout, and duplicates must collapse to a single stored row.
type Message struct {
	DeviceID  string           `json:"device_id"`
	Timestamp int64            `json:"timestamp"` // Device clock, milliseconds
	Direction MessageDirection `json:"direction"`
	Phone     string           `json:"phone"`
	Body      string           `json:"body"`
	Read      bool             `json:"read"`
}

// Notification is one app notification. (DeviceID, Timestamp) is unique with
// the same collapsing rule as Message.
type Notification struct {
	DeviceID  string `json:"device_id"`
	Timestamp int64  `json:"timestamp"` // Device clock, milliseconds
	Package   string `json:"package"`   // Originating app identifier
	Title     string `json:"title"`
	Text      string `json:"text"`
}

// Contact is one address-book entry. (DeviceID, PhoneNumber) is unique. Unlike
// Message and Notification, a later sync updates the existing row in place:
// the remote store treats the phone number as the contact's stable key and may
// revise every other field.
type Contact struct {
	DeviceID       string   `json:"device_id"`
	PhoneNumber    string   `json:"phone_number"`
	ContactID      string   `json:"contact_id"`
	Name           string   `json:"name"`
	DisplayName    string   `json:"display_name"`
	Phones         []string `json:"phones"`
	Emails         []string `json:"emails"`
	Addresses      []string `json:"addresses"`
	Company        string   `json:"company"`
	JobTitle       string   `json:"job_title"`
	Nickname       string   `json:"nickname"`
	Notes          string   `json:"notes"`
	LastContacted  *int64   `json:"last_contacted,omitempty"` // Milliseconds, nil when unknown
	TimesContacted int      `json:"times_contacted"`
	IsStarred      bool     `json:"is_starred"`
}

// SyncLog is one append-only reconciliation outcome for a device, used for
// audit and staleness computation.
type SyncLog struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"device_id"`
	Status    string    `json:"status"` // success | failed
	Detail    string    `json:"detail"` // Free-form JSON payload
	CreatedAt time.Time `json:"created_at"`
}

// SyncLog status values.
const (
	SyncLogSuccess = "success"
	SyncLogFailed  = "failed"
)
