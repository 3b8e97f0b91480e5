// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package normalize

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/mgeller/fleetsync/internal/models"
	"github.com/mgeller/fleetsync/internal/pathres"
)

// decodeContactMap decodes a contact payload: a map keyed by phone number.
// Entries arrive in both camelCase and snake_case depending on client
// version, and a bare non-object entry still yields a minimal contact since
// the phone number key alone is worth keeping.
func decodeContactMap(deviceID string, raw json.RawMessage) (*Records, error) {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, &Error{Shape: pathres.ShapeContactMap, Err: fmt.Errorf("payload is not a phone map: %w", err)}
	}

	rec := &Records{Contacts: make([]models.Contact, 0, len(entries))}
	for phone, value := range entries {
		if phone == "" {
			rec.Dropped++
			continue
		}
		contact := decodeContactEntry(value)
		contact.DeviceID = deviceID
		contact.PhoneNumber = phone
		rec.Contacts = append(rec.Contacts, contact)
	}
	return rec, nil
}

func decodeContactEntry(raw json.RawMessage) models.Contact {
	f, ok := parseFields(raw)
	if !ok {
		return models.Contact{}
	}

	contact := models.Contact{
		ContactID:   f.str("contactId", "contact_id", "id"),
		Name:        f.str("name", "displayName", "display_name"),
		DisplayName: f.str("displayName", "display_name", "name"),
		Phones:      f.strList("phones", "phoneNumbers", "phone_numbers"),
		Emails:      f.strList("emails", "emailAddresses", "email_addresses"),
		Addresses:   f.strList("addresses", "postalAddresses", "postal_addresses"),
		Company:     f.str("company", "organization"),
		JobTitle:    f.str("jobTitle", "job_title"),
		Nickname:    f.str("nickname"),
		Notes:       f.str("notes", "note"),
	}

	if last, ok := f.int64val("lastContacted", "last_contacted"); ok && last > 0 {
		contact.LastContacted = &last
	}
	if times, ok := f.intval("timesContacted", "times_contacted"); ok && times > 0 {
		contact.TimesContacted = times
	}
	if starred, ok := f.boolval("isStarred", "is_starred", "starred"); ok {
		contact.IsStarred = starred
	}
	return contact
}
