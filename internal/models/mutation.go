// Package models provides data model definitions for the FarmNexus sync core.
package models

import (
	"encoding/json"
	"time"
)

// MutationOp is an explicit mutation intent awaiting remote confirmation.
type MutationOp string

const (
	OpCreate MutationOp = "create"
	OpUpdate MutationOp = "update"
	OpDelete MutationOp = "delete"
)

// MutationQueueItem is one durable entry in the mutation queue.
// Items are replayed against the remote API in EnqueuedAt order per
// table and removed only after the remote side confirms application.
type MutationQueueItem struct {
	ID         UUID            `db:"id" json:"id"`
	Table      string          `db:"table_name" json:"table"`
	RecordID   UUID            `db:"record_id" json:"record_id"`
	Operation  MutationOp      `db:"operation" json:"operation"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	EnqueuedAt int64           `db:"enqueued_at" json:"enqueued_at"`
	RetryCount int             `db:"retry_count" json:"retry_count"`
	LastError  string          `db:"last_error" json:"last_error,omitempty"`
}

// TableName returns the table name for MutationQueueItem.
func (MutationQueueItem) TableName() string {
	return "mutation_queue"
}

// EnqueuedAtTime returns EnqueuedAt as time.Time.
func (m *MutationQueueItem) EnqueuedAtTime() time.Time {
	return time.Unix(0, m.EnqueuedAt)
}
