// Package queue provides the durable mutation queue for offline edits.
//
// The queue is an ordered log of explicit create/update/delete intents
// that must be replayed against the remote API. The database, not
// memory, is authoritative: items survive process restart and are
// removed only after the remote side confirms application.
package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kurniadi/farmnexus/internal/db"
	apperrors "github.com/kurniadi/farmnexus/internal/errors"
	"github.com/kurniadi/farmnexus/internal/logging"
	"github.com/kurniadi/farmnexus/internal/models"
	"github.com/kurniadi/farmnexus/internal/uuid"
)

// Queue manages pending mutation intents.
type Queue struct {
	db *db.DB

	// stampMu guards the monotonic enqueue stamp so that two enqueues in
	// the same nanosecond still order.
	stampMu   sync.Mutex
	lastStamp int64
}

// New creates a Queue over an open database.
func New(database *db.DB) *Queue {
	return &Queue{db: database}
}

// Enqueue appends a mutation intent. Items for the same table are
// processed strictly in enqueue order.
func (q *Queue) Enqueue(table string, recordID models.UUID, op models.MutationOp, payload json.RawMessage) (*models.MutationQueueItem, error) {
	switch op {
	case models.OpCreate, models.OpUpdate, models.OpDelete:
	default:
		return nil, apperrors.New(apperrors.ErrQueueUnknownOp, fmt.Sprintf("unknown operation %q", op))
	}

	item := &models.MutationQueueItem{
		ID:         models.UUID(uuid.New()),
		Table:      table,
		RecordID:   recordID,
		Operation:  op,
		Payload:    payload,
		EnqueuedAt: q.stamp(),
	}

	_, err := q.db.Exec(`
		INSERT INTO mutation_queue (id, table_name, record_id, operation, payload, enqueued_at, retry_count, last_error)
		VALUES (?, ?, ?, ?, ?, ?, 0, '')`,
		item.ID, item.Table, item.RecordID, item.Operation, payloadString(item.Payload), item.EnqueuedAt)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to enqueue mutation", err)
	}

	logging.Debug("Enqueued mutation", map[string]interface{}{
		"item_id":   item.ID,
		"table":     item.Table,
		"record_id": item.RecordID,
		"operation": item.Operation,
	})

	return item, nil
}

// ListPending returns all items in enqueue order. Per-table FIFO falls
// out of the global ordering; cross-table order carries no guarantee.
func (q *Queue) ListPending() ([]*models.MutationQueueItem, error) {
	rows, err := q.db.Query(`
		SELECT id, table_name, record_id, operation, payload, enqueued_at, retry_count, last_error
		FROM mutation_queue ORDER BY enqueued_at, id`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list queue", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// ListTable returns the pending items for one table in enqueue order.
func (q *Queue) ListTable(table string) ([]*models.MutationQueueItem, error) {
	rows, err := q.db.Query(`
		SELECT id, table_name, record_id, operation, payload, enqueued_at, retry_count, last_error
		FROM mutation_queue WHERE table_name = ? ORDER BY enqueued_at, id`, table)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list queue table", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// Get retrieves a single item by id.
func (q *Queue) Get(id models.UUID) (*models.MutationQueueItem, error) {
	row := q.db.QueryRow(`
		SELECT id, table_name, record_id, operation, payload, enqueued_at, retry_count, last_error
		FROM mutation_queue WHERE id = ?`, id)

	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrQueueItemNotFound, fmt.Sprintf("queue item %s not found", id))
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to get queue item", err)
	}
	return item, nil
}

// Remove deletes an item. Called only after the remote side confirms
// the operation was applied.
func (q *Queue) Remove(id models.UUID) error {
	res, err := q.db.Exec(`DELETE FROM mutation_queue WHERE id = ?`, id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to remove queue item", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.New(apperrors.ErrQueueItemNotFound, fmt.Sprintf("queue item %s not found", id))
	}
	return nil
}

// IncrementRetry bumps the retry counter after a delivery failure and
// keeps the item in place. There is no maximum-retry eviction; the
// counter grows until the remote side eventually confirms.
func (q *Queue) IncrementRetry(id models.UUID, cause error) error {
	lastErr := ""
	if cause != nil {
		lastErr = cause.Error()
	}
	res, err := q.db.Exec(
		`UPDATE mutation_queue SET retry_count = retry_count + 1, last_error = ? WHERE id = ?`,
		lastErr, id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to increment retry", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.New(apperrors.ErrQueueItemNotFound, fmt.Sprintf("queue item %s not found", id))
	}

	logging.Warn("Mutation delivery failed, kept for retry", map[string]interface{}{
		"item_id": id,
		"error":   lastErr,
	})
	return nil
}

// Size returns the number of items in the queue.
func (q *Queue) Size() (int, error) {
	var n int
	if err := q.db.QueryRow(`SELECT COUNT(*) FROM mutation_queue`).Scan(&n); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to count queue", err)
	}
	return n, nil
}

// stamp returns a strictly increasing timestamp in nanoseconds.
func (q *Queue) stamp() int64 {
	q.stampMu.Lock()
	defer q.stampMu.Unlock()

	stamp := time.Now().UnixNano()
	if stamp <= q.lastStamp {
		stamp = q.lastStamp + 1
	}
	q.lastStamp = stamp
	return stamp
}

func payloadString(payload json.RawMessage) string {
	if len(payload) == 0 {
		return ""
	}
	return string(payload)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*models.MutationQueueItem, error) {
	var item models.MutationQueueItem
	var payload string
	err := row.Scan(&item.ID, &item.Table, &item.RecordID, &item.Operation,
		&payload, &item.EnqueuedAt, &item.RetryCount, &item.LastError)
	if err != nil {
		return nil, err
	}
	if payload != "" {
		item.Payload = json.RawMessage(payload)
	}
	return &item, nil
}

func scanItems(rows *sql.Rows) ([]*models.MutationQueueItem, error) {
	var items []*models.MutationQueueItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to scan queue item", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
