// Package models provides data model definitions for the FarmNexus sync core.
package models

import "time"

// ConflictLog records resolved server divergences for user awareness.
// The sync cycle only ever appends to it.
type ConflictLog struct {
	ID         UUID   `db:"id" json:"id"`
	Table      string `db:"table_name" json:"table"`
	RecordID   UUID   `db:"record_id" json:"record_id"`
	Resolution string `db:"resolution" json:"resolution"` // server_wins, client_wins, merge, manual
	DetectedAt int64  `db:"detected_at" json:"detected_at"`
}

// TableName returns the table name for ConflictLog.
func (ConflictLog) TableName() string {
	return "conflict_log"
}

// DetectedAtTime returns DetectedAt as time.Time.
func (c *ConflictLog) DetectedAtTime() time.Time {
	return time.Unix(c.DetectedAt, 0)
}
