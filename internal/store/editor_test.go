// Package store provides unit tests for the UI edit path.
package store

import (
	"encoding/json"
	"testing"

	"github.com/kurniadi/farmnexus/internal/db"
	"github.com/kurniadi/farmnexus/internal/models"
	"github.com/kurniadi/farmnexus/internal/queue"
)

func newTestEditor(t *testing.T) (*Store, *queue.Queue, *Editor) {
	t.Helper()

	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	s := New(database)
	q := queue.New(database)
	return s, q, NewEditor(s, q)
}

// TestEditorCreateEnqueues tests that every create lands in both the
// store and the mutation queue.
func TestEditorCreateEnqueues(t *testing.T) {
	s, q, editor := newTestEditor(t)
	registerTable(t, s, "crops")

	id, err := editor.Create("crops", json.RawMessage(`{"name":"wheat"}`))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	items, err := q.ListPending()
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 queued item, got %d", len(items))
	}
	if items[0].Operation != models.OpCreate {
		t.Errorf("Expected create op, got %s", items[0].Operation)
	}
	if items[0].RecordID != id {
		t.Errorf("Expected record id %s, got %s", id, items[0].RecordID)
	}
	if items[0].Table != "crops" {
		t.Errorf("Expected table crops, got %s", items[0].Table)
	}
}

// TestEditorUpdateEnqueuesMergedPayload tests that the queued update
// carries the full merged payload, not just the patch.
func TestEditorUpdateEnqueuesMergedPayload(t *testing.T) {
	s, q, editor := newTestEditor(t)
	registerTable(t, s, "crops")

	id, _ := editor.Create("crops", json.RawMessage(`{"name":"wheat","area":12}`))
	if err := editor.Update("crops", id, json.RawMessage(`{"area":20}`)); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	items, _ := q.ListPending()
	if len(items) != 2 {
		t.Fatalf("Expected 2 queued items, got %d", len(items))
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(items[1].Payload, &fields); err != nil {
		t.Fatalf("Queued payload not valid JSON: %v", err)
	}
	if fields["name"] != "wheat" || fields["area"] != float64(20) {
		t.Errorf("Expected merged payload in queue, got %s", items[1].Payload)
	}
}

// TestEditorDeleteEnqueuesIntent tests that deletions surface an
// explicit queue intent instead of relying on row absence.
func TestEditorDeleteEnqueuesIntent(t *testing.T) {
	s, q, editor := newTestEditor(t)
	h := registerTable(t, s, "crops")

	id, _ := editor.Create("crops", json.RawMessage(`{}`))
	if err := editor.Delete("crops", id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	items, _ := q.ListPending()
	if len(items) != 2 {
		t.Fatalf("Expected create + delete intents, got %d", len(items))
	}
	if items[1].Operation != models.OpDelete {
		t.Errorf("Expected delete op, got %s", items[1].Operation)
	}

	rec, err := h.Get(id)
	if err != nil {
		t.Fatalf("Expected tombstoned row to remain: %v", err)
	}
	if !rec.IsDeleted {
		t.Error("Expected tombstone flag set")
	}
}

// TestEditorUnknownTable tests the unregistered-table error path.
func TestEditorUnknownTable(t *testing.T) {
	_, _, editor := newTestEditor(t)

	if _, err := editor.Create("unknown", json.RawMessage(`{}`)); err == nil {
		t.Error("Expected error for unregistered table")
	}
}

// TestServerApplyDoesNotEnqueue tests that the bulk server-write path
// bypasses the queue entirely.
func TestServerApplyDoesNotEnqueue(t *testing.T) {
	s, q, _ := newTestEditor(t)
	h := registerTable(t, s, "crops")

	if err := h.ApplyServerRecord("srv-1", json.RawMessage(`{"name":"barley"}`)); err != nil {
		t.Fatalf("ApplyServerRecord failed: %v", err)
	}

	size, _ := q.Size()
	if size != 0 {
		t.Errorf("Expected empty queue after server apply, got %d", size)
	}
}
