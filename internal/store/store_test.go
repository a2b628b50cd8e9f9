// Package store provides unit tests for the local store.
package store

import (
	"encoding/json"
	"testing"

	"github.com/kurniadi/farmnexus/internal/db"
	apperrors "github.com/kurniadi/farmnexus/internal/errors"
	"github.com/kurniadi/farmnexus/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return New(database)
}

func registerTable(t *testing.T, s *Store, name string) *TableHandle {
	t.Helper()

	h, err := s.RegisterTable(name)
	if err != nil {
		t.Fatalf("RegisterTable(%s) failed: %v", name, err)
	}
	return h
}

// TestCreateMarksPending tests that Create always stamps pending status
// and last-modified, regardless of the caller.
func TestCreateMarksPending(t *testing.T) {
	s := newTestStore(t)
	h := registerTable(t, s, "crops")

	id, err := h.Create(json.RawMessage(`{"name":"wheat"}`))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	rec, err := h.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if rec.SyncStatus != models.SyncStatusPending {
		t.Errorf("Expected pending status, got %s", rec.SyncStatus)
	}
	if rec.LastModified == 0 {
		t.Error("Expected last_modified to be stamped")
	}
}

// TestTimestampsMonotonic tests that consecutive writes get strictly
// increasing last-modified stamps.
func TestTimestampsMonotonic(t *testing.T) {
	s := newTestStore(t)
	h := registerTable(t, s, "crops")

	var previous int64
	for i := 0; i < 10; i++ {
		id, err := h.Create(json.RawMessage(`{}`))
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		rec, err := h.Get(id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if rec.LastModified <= previous {
			t.Fatalf("Timestamps not monotonic: %d <= %d", rec.LastModified, previous)
		}
		previous = rec.LastModified
	}
}

// TestUpdateMergesPatch tests field-level patch merging and re-stamping.
func TestUpdateMergesPatch(t *testing.T) {
	s := newTestStore(t)
	h := registerTable(t, s, "crops")

	id, _ := h.Create(json.RawMessage(`{"name":"wheat","area":12}`))
	before, _ := h.Get(id)

	if err := h.Update(id, json.RawMessage(`{"area":15}`)); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	rec, _ := h.Get(id)

	var fields map[string]interface{}
	if err := json.Unmarshal(rec.Payload, &fields); err != nil {
		t.Fatalf("Payload not valid JSON: %v", err)
	}
	if fields["name"] != "wheat" {
		t.Errorf("Expected untouched field to survive, got %v", fields["name"])
	}
	if fields["area"] != float64(15) {
		t.Errorf("Expected patched area 15, got %v", fields["area"])
	}
	if rec.LastModified <= before.LastModified {
		t.Error("Expected Update to advance last_modified")
	}
	if rec.SyncStatus != models.SyncStatusPending {
		t.Errorf("Expected pending after update, got %s", rec.SyncStatus)
	}
}

// TestUpdateMissingRecord tests the not-found error path.
func TestUpdateMissingRecord(t *testing.T) {
	s := newTestStore(t)
	h := registerTable(t, s, "crops")

	err := h.Update("missing-id", json.RawMessage(`{"a":1}`))
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Expected NOT_FOUND, got %v", err)
	}
}

// TestDeleteTombstones tests that Delete keeps the row but removes it
// from pending queries; Erase removes it for good.
func TestDeleteTombstones(t *testing.T) {
	s := newTestStore(t)
	h := registerTable(t, s, "crops")

	id, _ := h.Create(json.RawMessage(`{}`))

	if err := h.Delete(id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	// Row is still readable (deletion not yet confirmed remotely)
	rec, err := h.Get(id)
	if err != nil {
		t.Fatalf("Get after Delete failed: %v", err)
	}
	if !rec.IsDeleted {
		t.Error("Expected tombstone flag")
	}

	pending, _ := h.QueryPending()
	if len(pending) != 0 {
		t.Errorf("Expected tombstoned row excluded from pending, got %d", len(pending))
	}

	if err := h.Erase(id); err != nil {
		t.Fatalf("Erase failed: %v", err)
	}
	if _, err := h.Get(id); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Expected NOT_FOUND after Erase, got %v", err)
	}
}

// TestApplyServerRecordBypassesPending tests the server-authoritative
// write path: applied records land synced and are never re-enqueued as
// pending work.
func TestApplyServerRecordBypassesPending(t *testing.T) {
	s := newTestStore(t)
	h := registerTable(t, s, "crops")

	if err := h.ApplyServerRecord("srv-1", json.RawMessage(`{"name":"barley"}`)); err != nil {
		t.Fatalf("ApplyServerRecord failed: %v", err)
	}

	rec, err := h.Get("srv-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.SyncStatus != models.SyncStatusSynced {
		t.Errorf("Expected synced, got %s", rec.SyncStatus)
	}

	// Upsert over an existing pending record also flips it to synced
	id, _ := h.Create(json.RawMessage(`{"name":"oats"}`))
	if err := h.ApplyServerRecord(id, json.RawMessage(`{"name":"rye"}`)); err != nil {
		t.Fatalf("ApplyServerRecord upsert failed: %v", err)
	}
	rec, _ = h.Get(id)
	if string(rec.Payload) != `{"name":"rye"}` {
		t.Errorf("Expected server payload, got %s", rec.Payload)
	}
	if rec.SyncStatus != models.SyncStatusSynced {
		t.Errorf("Expected synced after server apply, got %s", rec.SyncStatus)
	}
}

// TestMarkSyncedGuard tests the snapshot guard: a record modified after
// the snapshot keeps its pending status.
func TestMarkSyncedGuard(t *testing.T) {
	s := newTestStore(t)
	h := registerTable(t, s, "crops")

	id, _ := h.Create(json.RawMessage(`{"n":1}`))
	snapshot, _ := h.Get(id)

	// UI edit lands after the snapshot was taken
	if err := h.Update(id, json.RawMessage(`{"n":2}`)); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	marked, err := h.MarkSynced(id, snapshot.LastModified)
	if err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}
	if marked {
		t.Error("Expected guard to reject stale mark")
	}

	rec, _ := h.Get(id)
	if rec.SyncStatus != models.SyncStatusPending {
		t.Errorf("Expected record to stay pending, got %s", rec.SyncStatus)
	}

	// Without an intervening edit the mark goes through
	marked, err = h.MarkSynced(id, rec.LastModified)
	if err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}
	if !marked {
		t.Error("Expected mark to succeed with current stamp")
	}
}

// TestMarkConflictExcludedFromPending tests that manual-conflict rows
// are not retried automatically.
func TestMarkConflictExcludedFromPending(t *testing.T) {
	s := newTestStore(t)
	h := registerTable(t, s, "crops")

	id, _ := h.Create(json.RawMessage(`{}`))
	if err := h.MarkConflict(id); err != nil {
		t.Fatalf("MarkConflict failed: %v", err)
	}

	pending, _ := h.QueryPending()
	if len(pending) != 0 {
		t.Errorf("Expected conflict row excluded from pending, got %d", len(pending))
	}

	count, err := s.PendingCount()
	if err != nil {
		t.Fatalf("PendingCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected PendingCount 0, got %d", count)
	}
}

// TestPendingCountAcrossTables tests the aggregate pending counter.
func TestPendingCountAcrossTables(t *testing.T) {
	s := newTestStore(t)
	crops := registerTable(t, s, "crops")
	farms := registerTable(t, s, "farms")

	crops.Create(json.RawMessage(`{}`))
	crops.Create(json.RawMessage(`{}`))
	farms.Create(json.RawMessage(`{}`))

	count, err := s.PendingCount()
	if err != nil {
		t.Fatalf("PendingCount failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 pending, got %d", count)
	}
}

// TestRegisterTableValidation tests table name validation.
func TestRegisterTableValidation(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.RegisterTable("Crops; DROP TABLE"); err == nil {
		t.Error("Expected invalid table name to be rejected")
	}
	if _, err := s.RegisterTable(""); err == nil {
		t.Error("Expected empty table name to be rejected")
	}
}
