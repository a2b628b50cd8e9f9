// Package store provides the durable local store for domain records.
package store

import (
	"encoding/json"

	"github.com/kurniadi/farmnexus/internal/models"
	"github.com/kurniadi/farmnexus/internal/queue"
)

// Editor is the UI-facing edit path: every mutation writes the local
// store and records the matching intent in the mutation queue. Bulk
// server-driven writes go through TableHandle.ApplyServerRecord
// instead, which never re-enqueues.
type Editor struct {
	store *Store
	queue *queue.Queue
}

// NewEditor creates an Editor over a store and its mutation queue.
func NewEditor(s *Store, q *queue.Queue) *Editor {
	return &Editor{store: s, queue: q}
}

// Create inserts a record and enqueues the create intent.
func (e *Editor) Create(table string, payload json.RawMessage) (models.UUID, error) {
	h, err := e.handle(table)
	if err != nil {
		return "", err
	}

	id, err := h.Create(payload)
	if err != nil {
		return "", err
	}

	if _, err := e.queue.Enqueue(table, id, models.OpCreate, payload); err != nil {
		return id, err
	}
	return id, nil
}

// Update patches a record and enqueues the update intent with the full
// merged payload, so replay does not depend on local state at drain time.
func (e *Editor) Update(table string, id models.UUID, patch json.RawMessage) error {
	h, err := e.handle(table)
	if err != nil {
		return err
	}

	if err := h.Update(id, patch); err != nil {
		return err
	}

	rec, err := h.Get(id)
	if err != nil {
		return err
	}

	_, err = e.queue.Enqueue(table, id, models.OpUpdate, rec.Payload)
	return err
}

// Delete tombstones a record and enqueues the delete intent. The row is
// only erased once the remote side confirms the deletion.
func (e *Editor) Delete(table string, id models.UUID) error {
	h, err := e.handle(table)
	if err != nil {
		return err
	}

	if err := h.Delete(id); err != nil {
		return err
	}

	_, err = e.queue.Enqueue(table, id, models.OpDelete, nil)
	return err
}

func (e *Editor) handle(table string) (*TableHandle, error) {
	h, ok := e.store.Table(table)
	if !ok {
		return nil, errUnknownTable(table)
	}
	return h, nil
}
