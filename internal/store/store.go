// Package store provides the durable local store for domain records.
//
// Every domain collection (farms, crops, livestock, ...) lives in its own
// SQLite table carrying the same sync envelope: an opaque JSON payload, a
// sync status and a last-modified timestamp. Tables are registered at
// startup into a typed registry; there is no dynamic table dispatch.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/kurniadi/farmnexus/internal/db"
	apperrors "github.com/kurniadi/farmnexus/internal/errors"
	"github.com/kurniadi/farmnexus/internal/models"
	"github.com/kurniadi/farmnexus/internal/uuid"
)

var tableNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Store owns the table registry and the monotonic modification clock.
type Store struct {
	db     *db.DB
	tables map[string]*TableHandle

	// clock guards the monotonic last-modified stamp. Two writes in the
	// same nanosecond must still order.
	clockMu   sync.Mutex
	lastStamp int64
}

// New creates a Store over an open database.
func New(database *db.DB) *Store {
	return &Store{
		db:     database,
		tables: make(map[string]*TableHandle),
	}
}

// RegisterTable creates the durable table for a domain collection and
// adds it to the registry. Registration happens at startup, before any
// concurrent access.
func (s *Store) RegisterTable(name string) (*TableHandle, error) {
	if !tableNameRegex.MatchString(name) {
		return nil, apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("invalid table name %q", name))
	}
	if h, ok := s.tables[name]; ok {
		return h, nil
	}
	if err := s.db.CreateDomainTable(name); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to create domain table", err)
	}
	h := &TableHandle{store: s, name: name}
	s.tables[name] = h
	return h, nil
}

// Table returns the handle for a registered table.
func (s *Store) Table(name string) (*TableHandle, bool) {
	h, ok := s.tables[name]
	return h, ok
}

// Tables returns all registered handles in name order, so loops over
// the registry are deterministic.
func (s *Store) Tables() []*TableHandle {
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)

	handles := make([]*TableHandle, 0, len(names))
	for _, name := range names {
		handles = append(handles, s.tables[name])
	}
	return handles
}

// PendingCount returns the number of pending records across all tables.
func (s *Store) PendingCount() (int, error) {
	total := 0
	for _, h := range s.Tables() {
		var n int
		err := s.db.QueryRow(fmt.Sprintf(
			`SELECT COUNT(*) FROM %q WHERE sync_status = ? AND is_deleted = 0`, h.name),
			models.SyncStatusPending).Scan(&n)
		if err != nil {
			return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to count pending records", err)
		}
		total += n
	}
	return total, nil
}

// AppendConflictLog records a resolved conflict for user awareness.
func (s *Store) AppendConflictLog(entry *models.ConflictLog) error {
	entry.ID = models.UUID(uuid.New())
	if entry.DetectedAt == 0 {
		entry.DetectedAt = time.Now().Unix()
	}
	_, err := s.db.Exec(
		`INSERT INTO conflict_log (id, table_name, record_id, resolution, detected_at) VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.Table, entry.RecordID, entry.Resolution, entry.DetectedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to append conflict log", err)
	}
	return nil
}

// now returns a strictly increasing timestamp in nanoseconds.
func (s *Store) now() int64 {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()

	stamp := time.Now().UnixNano()
	if stamp <= s.lastStamp {
		stamp = s.lastStamp + 1
	}
	s.lastStamp = stamp
	return stamp
}

// TableHandle exposes the typed CRUD contract for one domain table.
type TableHandle struct {
	store *Store
	name  string
}

// Name returns the table name.
func (h *TableHandle) Name() string {
	return h.name
}

// Create inserts a new record. The sync status is always set to pending
// and the last-modified stamp is assigned here, never by callers.
func (h *TableHandle) Create(payload json.RawMessage) (models.UUID, error) {
	id := models.UUID(uuid.New())
	_, err := h.store.db.Exec(fmt.Sprintf(
		`INSERT INTO %q (id, payload, sync_status, last_modified, is_deleted) VALUES (?, ?, ?, ?, 0)`, h.name),
		id, string(payload), models.SyncStatusPending, h.store.now())
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrDatabase, "failed to create record", err)
	}
	return id, nil
}

// Update merges a JSON patch into the record's payload. Like Create, it
// marks the record pending and stamps last-modified centrally.
func (h *TableHandle) Update(id models.UUID, patch json.RawMessage) error {
	rec, err := h.Get(id)
	if err != nil {
		return err
	}

	merged, err := mergePayload(rec.Payload, patch)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "failed to merge patch", err)
	}

	res, err := h.store.db.Exec(fmt.Sprintf(
		`UPDATE %q SET payload = ?, sync_status = ?, last_modified = ? WHERE id = ? AND is_deleted = 0`, h.name),
		string(merged), models.SyncStatusPending, h.store.now(), id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to update record", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("record %s not found in %s", id, h.name))
	}
	return nil
}

// Delete tombstones the record. The row is kept until the remote side
// confirms the deletion (deletions cannot be inferred from absence);
// callers surface the deletion intent into the mutation queue.
func (h *TableHandle) Delete(id models.UUID) error {
	res, err := h.store.db.Exec(fmt.Sprintf(
		`UPDATE %q SET is_deleted = 1, last_modified = ? WHERE id = ? AND is_deleted = 0`, h.name),
		h.store.now(), id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to delete record", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("record %s not found in %s", id, h.name))
	}
	return nil
}

// Erase removes the row for good. Called after the remote side has
// confirmed a deletion.
func (h *TableHandle) Erase(id models.UUID) error {
	_, err := h.store.db.Exec(fmt.Sprintf(`DELETE FROM %q WHERE id = ?`, h.name), id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to erase record", err)
	}
	return nil
}

// Get retrieves a record by id, tombstoned rows included.
func (h *TableHandle) Get(id models.UUID) (*models.Record, error) {
	var rec models.Record
	var payload string
	err := h.store.db.QueryRow(fmt.Sprintf(
		`SELECT id, payload, sync_status, last_modified, is_deleted FROM %q WHERE id = ?`, h.name),
		id).Scan(&rec.ID, &payload, &rec.SyncStatus, &rec.LastModified, &rec.IsDeleted)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("record %s not found in %s", id, h.name))
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to get record", err)
	}
	rec.Payload = json.RawMessage(payload)
	return &rec, nil
}

// Query returns all live records matching the predicate. A nil
// predicate matches everything.
func (h *TableHandle) Query(predicate func(*models.Record) bool) ([]*models.Record, error) {
	rows, err := h.store.db.Query(fmt.Sprintf(
		`SELECT id, payload, sync_status, last_modified, is_deleted FROM %q WHERE is_deleted = 0 ORDER BY last_modified`, h.name))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to query records", err)
	}
	defer rows.Close()

	var records []*models.Record
	for rows.Next() {
		var rec models.Record
		var payload string
		if err := rows.Scan(&rec.ID, &payload, &rec.SyncStatus, &rec.LastModified, &rec.IsDeleted); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to scan record", err)
		}
		rec.Payload = json.RawMessage(payload)
		if predicate == nil || predicate(&rec) {
			records = append(records, &rec)
		}
	}
	return records, rows.Err()
}

// QueryPending returns the records awaiting delivery. Tombstoned rows
// and manual-conflict rows are excluded; deletions travel through the
// mutation queue and conflicts wait for an external actor.
func (h *TableHandle) QueryPending() ([]*models.Record, error) {
	return h.Query(func(rec *models.Record) bool {
		return rec.SyncStatus == models.SyncStatusPending
	})
}

// ApplyServerRecord upserts a server-authoritative record without
// marking it pending. This is the bulk/administrative write path used
// when receiving server state, kept separate so it never re-enqueues.
func (h *TableHandle) ApplyServerRecord(id models.UUID, payload json.RawMessage) error {
	_, err := h.store.db.Exec(fmt.Sprintf(`
		INSERT INTO %q (id, payload, sync_status, last_modified, is_deleted) VALUES (?, ?, ?, ?, 0)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, sync_status = excluded.sync_status,
			last_modified = excluded.last_modified, is_deleted = 0`, h.name),
		id, string(payload), models.SyncStatusSynced, h.store.now())
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to apply server record", err)
	}
	return nil
}

// MarkSynced flips a record to synced, but only if it has not been
// modified since the given stamp. A record edited mid-cycle keeps its
// pending status and is picked up by the next cycle.
func (h *TableHandle) MarkSynced(id models.UUID, lastModified int64) (bool, error) {
	res, err := h.store.db.Exec(fmt.Sprintf(
		`UPDATE %q SET sync_status = ? WHERE id = ? AND last_modified = ?`, h.name),
		models.SyncStatusSynced, id, lastModified)
	if err != nil {
		return false, apperrors.Wrap(apperrors.ErrDatabase, "failed to mark record synced", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkConflict flags a record for manual resolution. It is excluded
// from automatic retry until an external actor resolves it.
func (h *TableHandle) MarkConflict(id models.UUID) error {
	_, err := h.store.db.Exec(fmt.Sprintf(
		`UPDATE %q SET sync_status = ? WHERE id = ?`, h.name),
		models.SyncStatusConflict, id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to mark record conflicted", err)
	}
	return nil
}

func errUnknownTable(table string) error {
	return apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("table %q is not registered", table))
}

// mergePayload overlays patch fields onto the base payload.
func mergePayload(base, patch json.RawMessage) (json.RawMessage, error) {
	merged := make(map[string]interface{})
	if len(base) > 0 {
		if err := json.Unmarshal(base, &merged); err != nil {
			return nil, fmt.Errorf("invalid base payload: %w", err)
		}
	}
	fields := make(map[string]interface{})
	if err := json.Unmarshal(patch, &fields); err != nil {
		return nil, fmt.Errorf("invalid patch: %w", err)
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}
