// Package models provides data model definitions for the FarmNexus sync core.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// UUID is a wrapper around string for UUID v4 type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	if value == nil {
		*u = ""
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*u = UUID(v)
	case string:
		*u = UUID(v)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// SyncStatus describes a record's reconciliation state with the server.
type SyncStatus string

const (
	// SyncStatusSynced means the server has acknowledged the record's current fields.
	SyncStatusSynced SyncStatus = "synced"
	// SyncStatusPending means locally held fields may differ from the server's.
	SyncStatusPending SyncStatus = "pending"
	// SyncStatusConflict means the record awaits manual resolution and is
	// excluded from automatic retry.
	SyncStatusConflict SyncStatus = "conflict"
)

// Record is the envelope every domain row (farm, crop, livestock, ...)
// is stored in. The payload is opaque to the sync core.
type Record struct {
	ID           UUID            `db:"id" json:"id"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	SyncStatus   SyncStatus      `db:"sync_status" json:"sync_status"`
	LastModified int64           `db:"last_modified" json:"last_modified"`
	IsDeleted    bool            `db:"is_deleted" json:"is_deleted"`
}

// LastModifiedTime returns LastModified as time.Time.
func (r *Record) LastModifiedTime() time.Time {
	return time.Unix(0, r.LastModified)
}
