// Package models provides data model definitions for the FarmNexus sync core.
package models

import "encoding/json"

// SyncResult is the terminal state of one sync cycle. It is built once
// when the cycle ends and never mutated afterward.
type SyncResult struct {
	Success   bool `json:"success"`
	Synced    int  `json:"synced"`
	Failed    int  `json:"failed"`
	Conflicts int  `json:"conflicts"`
}

// ConflictRecord pairs a locally held record with the authoritative
// server version for the same id. It exists only while a conflict is
// being resolved; the outcome is written back to the record itself.
type ConflictRecord struct {
	Table         string          `json:"table"`
	RecordID      UUID            `json:"record_id"`
	LocalPayload  json.RawMessage `json:"local_payload"`
	ServerPayload json.RawMessage `json:"server_payload"`
}
