// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package database

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/mgeller/fleetsync/internal/logging"
	"github.com/mgeller/fleetsync/internal/metrics"
	"github.com/mgeller/fleetsync/internal/models"
)

// WriteStats summarizes one batch write. Skipped counts rows that already
// existed with the same identity; Errors counts rows that failed
// individually without aborting the batch.
type WriteStats struct {
	Created int
	Updated int
	Skipped int
	Errors  int
}

// InsertMessages writes a message batch with insert-if-absent semantics:
// an existing (device_id, ts) row is never modified. One bad record does not
// abort the batch.
func (db *DB) InsertMessages(ctx context.Context, msgs []models.Message) (WriteStats, error) {
	var stats WriteStats
	for i := range msgs {
		m := &msgs[i]
		res, err := db.conn.ExecContext(ctx, `
			INSERT INTO messages (device_id, ts, direction, phone, body, read)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (device_id, ts) DO NOTHING`,
			m.DeviceID, m.Timestamp, string(m.Direction), m.Phone, m.Body, m.Read)
		if err != nil {
			stats.Errors++
			logging.Warn().Str("device_id", m.DeviceID).Int64("ts", m.Timestamp).
				Err(err).Msg("Failed to insert message")
			continue
		}
		affected, raErr := res.RowsAffected()
		countInsert(&stats, affected, raErr)
	}
	observeWrites(models.CategoryMessages, stats)
	if ctx.Err() != nil {
		return stats, ctx.Err()
	}
	return stats, nil
}

// InsertNotifications writes a notification batch with the same
// insert-if-absent semantics as messages.
func (db *DB) InsertNotifications(ctx context.Context, notes []models.Notification) (WriteStats, error) {
	var stats WriteStats
	for i := range notes {
		n := &notes[i]
		res, err := db.conn.ExecContext(ctx, `
			INSERT INTO notifications (device_id, ts, app_package, title, body)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (device_id, ts) DO NOTHING`,
			n.DeviceID, n.Timestamp, n.Package, n.Title, n.Text)
		if err != nil {
			stats.Errors++
			logging.Warn().Str("device_id", n.DeviceID).Int64("ts", n.Timestamp).
				Err(err).Msg("Failed to insert notification")
			continue
		}
		affected, raErr := res.RowsAffected()
		countInsert(&stats, affected, raErr)
	}
	observeWrites(models.CategoryNotifications, stats)
	if ctx.Err() != nil {
		return stats, ctx.Err()
	}
	return stats, nil
}

// UpsertContacts writes a contact batch with merge semantics: a new phone
// number inserts, an existing one updates in place with the incoming values
// winning wherever they are non-default.
func (db *DB) UpsertContacts(ctx context.Context, contacts []models.Contact) (WriteStats, error) {
	var stats WriteStats
	for i := range contacts {
		c := &contacts[i]
		created, err := db.upsertContact(ctx, c)
		if err != nil {
			stats.Errors++
			logging.Warn().Str("device_id", c.DeviceID).Str("phone", c.PhoneNumber).
				Err(err).Msg("Failed to upsert contact")
			continue
		}
		if created {
			stats.Created++
		} else {
			stats.Updated++
		}
	}
	observeWrites(models.CategoryContacts, stats)
	if ctx.Err() != nil {
		return stats, ctx.Err()
	}
	return stats, nil
}

func (db *DB) upsertContact(ctx context.Context, c *models.Contact) (created bool, err error) {
	var exists bool
	err = db.conn.QueryRowContext(ctx,
		`SELECT count(*) > 0 FROM contacts WHERE device_id = ? AND phone_number = ?`,
		c.DeviceID, c.PhoneNumber).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to probe contact: %w", err)
	}

	phones, err := marshalList(c.Phones)
	if err != nil {
		return false, err
	}
	emails, err := marshalList(c.Emails)
	if err != nil {
		return false, err
	}
	addresses, err := marshalList(c.Addresses)
	if err != nil {
		return false, err
	}

	// Incoming non-default fields overwrite; defaults keep the stored value.
	// NULLIF collapses empty strings so COALESCE can fall back per field.
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO contacts (device_id, phone_number, contact_id, name, display_name,
			phones, emails, addresses, company, job_title, nickname, notes,
			last_contacted, times_contacted, is_starred, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, now())
		ON CONFLICT (device_id, phone_number) DO UPDATE SET
			contact_id = COALESCE(NULLIF(excluded.contact_id, ''), contacts.contact_id),
			name = COALESCE(NULLIF(excluded.name, ''), contacts.name),
			display_name = COALESCE(NULLIF(excluded.display_name, ''), contacts.display_name),
			phones = COALESCE(NULLIF(excluded.phones, '[]'), contacts.phones),
			emails = COALESCE(NULLIF(excluded.emails, '[]'), contacts.emails),
			addresses = COALESCE(NULLIF(excluded.addresses, '[]'), contacts.addresses),
			company = COALESCE(NULLIF(excluded.company, ''), contacts.company),
			job_title = COALESCE(NULLIF(excluded.job_title, ''), contacts.job_title),
			nickname = COALESCE(NULLIF(excluded.nickname, ''), contacts.nickname),
			notes = COALESCE(NULLIF(excluded.notes, ''), contacts.notes),
			last_contacted = COALESCE(excluded.last_contacted, contacts.last_contacted),
			times_contacted = greatest(excluded.times_contacted, contacts.times_contacted),
			is_starred = excluded.is_starred OR contacts.is_starred,
			updated_at = now()`,
		c.DeviceID, c.PhoneNumber, c.ContactID, c.Name, c.DisplayName,
		phones, emails, addresses, c.Company, c.JobTitle, c.Nickname, c.Notes,
		c.LastContacted, c.TimesContacted, c.IsStarred)
	if err != nil {
		return false, fmt.Errorf("failed to upsert contact: %w", err)
	}
	return !exists, nil
}

// CountMessages returns the stored message count for a device.
func (db *DB) CountMessages(ctx context.Context, deviceID string) (int, error) {
	return db.countRows(ctx, `SELECT count(*) FROM messages WHERE device_id = ?`, deviceID)
}

// CountNotifications returns the stored notification count for a device.
func (db *DB) CountNotifications(ctx context.Context, deviceID string) (int, error) {
	return db.countRows(ctx, `SELECT count(*) FROM notifications WHERE device_id = ?`, deviceID)
}

// CountContacts returns the stored contact count for a device.
func (db *DB) CountContacts(ctx context.Context, deviceID string) (int, error) {
	return db.countRows(ctx, `SELECT count(*) FROM contacts WHERE device_id = ?`, deviceID)
}

// GetContact fetches one contact by its identity pair.
func (db *DB) GetContact(ctx context.Context, deviceID, phoneNumber string) (*models.Contact, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT device_id, phone_number, contact_id, name, display_name,
			phones, emails, addresses, company, job_title, nickname, notes,
			last_contacted, times_contacted, is_starred
		FROM contacts WHERE device_id = ? AND phone_number = ?`, deviceID, phoneNumber)

	var c models.Contact
	var phones, emails, addresses string
	var lastContacted *int64
	err := row.Scan(&c.DeviceID, &c.PhoneNumber, &c.ContactID, &c.Name, &c.DisplayName,
		&phones, &emails, &addresses, &c.Company, &c.JobTitle, &c.Nickname, &c.Notes,
		&lastContacted, &c.TimesContacted, &c.IsStarred)
	if err != nil {
		return nil, fmt.Errorf("contact %s/%s: %w", deviceID, phoneNumber, err)
	}
	c.LastContacted = lastContacted
	if err := unmarshalList(phones, &c.Phones); err != nil {
		return nil, err
	}
	if err := unmarshalList(emails, &c.Emails); err != nil {
		return nil, err
	}
	if err := unmarshalList(addresses, &c.Addresses); err != nil {
		return nil, err
	}
	return &c, nil
}

func (db *DB) countRows(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return n, nil
}

func countInsert(stats *WriteStats, affected int64, err error) {
	if err != nil {
		// RowsAffected is unsupported on some drivers; assume created.
		stats.Created++
		return
	}
	if affected > 0 {
		stats.Created++
	} else {
		stats.Skipped++
	}
}

func observeWrites(category models.Category, stats WriteStats) {
	if stats.Created > 0 {
		metrics.RecordsUpserted.WithLabelValues(string(category), "created").Add(float64(stats.Created))
	}
	if stats.Updated > 0 {
		metrics.RecordsUpserted.WithLabelValues(string(category), "updated").Add(float64(stats.Updated))
	}
	if stats.Skipped > 0 {
		metrics.RecordsUpserted.WithLabelValues(string(category), "skipped").Add(float64(stats.Skipped))
	}
	if stats.Errors > 0 {
		metrics.RecordsUpserted.WithLabelValues(string(category), "error").Add(float64(stats.Errors))
	}
}

func marshalList(list []string) (string, error) {
	if len(list) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("failed to marshal list: %w", err)
	}
	return string(b), nil
}

func unmarshalList(raw string, into *[]string) error {
	if raw == "" || raw == "[]" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), into); err != nil {
		return fmt.Errorf("failed to unmarshal list: %w", err)
	}
	return nil
}
