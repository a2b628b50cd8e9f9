// Package sync provides the offline-first synchronization engine.
//
// One sync cycle snapshots the pending records, delivers them to the
// remote API, drains the mutation queue in per-table FIFO order and
// aggregates the outcome into a single SyncResult. Individual failures
// never abort a cycle; nothing is thrown past the orchestrator
// boundary.
package sync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/kurniadi/farmnexus/internal/errors"
	"github.com/kurniadi/farmnexus/internal/logging"
	"github.com/kurniadi/farmnexus/internal/models"
	"github.com/kurniadi/farmnexus/internal/queue"
	"github.com/kurniadi/farmnexus/internal/store"
	"github.com/kurniadi/farmnexus/internal/sync/conflict"
	"github.com/kurniadi/farmnexus/internal/sync/remote"
)

// Listener receives the result of every completed sync cycle.
type Listener func(models.SyncResult)

// Orchestrator coordinates sync cycles. It is mutually exclusive with
// itself (at most one cycle at a time) but never with UI edits: the
// store and queue stay writable while a cycle runs.
type Orchestrator struct {
	store    *store.Store
	queue    *queue.Queue
	remote   RemoteAPI
	resolver *conflict.Resolver
	probe    ConnectivityProbe

	inProgress atomic.Bool

	mu         sync.Mutex // guards listeners and status fields
	listeners  map[int]Listener
	nextListID int
	lastSync   *time.Time
	lastErr    string
}

// NewOrchestrator creates an Orchestrator. The conflict resolver is
// injected so tests can substitute client-wins or merge policies; a nil
// resolver selects the server-wins default.
func NewOrchestrator(s *store.Store, q *queue.Queue, api RemoteAPI, resolver *conflict.Resolver, probe ConnectivityProbe) *Orchestrator {
	if resolver == nil {
		resolver = conflict.NewResolver(nil)
	}
	return &Orchestrator{
		store:     s,
		queue:     q,
		remote:    api,
		resolver:  resolver,
		probe:     probe,
		listeners: make(map[int]Listener),
	}
}

// AddListener registers a cycle-result listener and returns its
// unsubscribe function. Each registration is distinct; removal is
// explicit via the returned handle.
func (o *Orchestrator) AddListener(fn Listener) (unsubscribe func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextListID
	o.nextListID++
	o.listeners[id] = fn

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.listeners, id)
	}
}

// LastSyncTime returns when the last cycle completed, or nil.
func (o *Orchestrator) LastSyncTime() *time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastSync
}

// LastSyncError returns the last cycle's error message, or "".
func (o *Orchestrator) LastSyncError() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// PendingCount returns pending records plus queued mutations.
func (o *Orchestrator) PendingCount() (int, error) {
	records, err := o.store.PendingCount()
	if err != nil {
		return 0, err
	}
	queued, err := o.queue.Size()
	if err != nil {
		return 0, err
	}
	return records + queued, nil
}

// InProgress reports whether a cycle is currently running.
func (o *Orchestrator) InProgress() bool {
	return o.inProgress.Load()
}

// TriggerSync runs one sync cycle. Offline, it returns immediately
// with an unsuccessful empty result. If another cycle is in progress,
// the call is a no-op returning the same, so a mutation is never
// delivered twice concurrently. All trigger paths (manual, periodic,
// connectivity edge, background hook) funnel through here.
func (o *Orchestrator) TriggerSync(ctx context.Context) models.SyncResult {
	if o.probe != nil && !o.probe.IsOnline() {
		logging.Debug("Sync skipped: offline", nil)
		return models.SyncResult{}
	}

	if !o.inProgress.CompareAndSwap(false, true) {
		logging.Debug("Sync skipped: cycle already in progress", nil)
		return models.SyncResult{}
	}
	defer o.inProgress.Store(false)

	logging.Info("Sync cycle started", nil)

	var synced, failed, conflicts int
	var lastFailure string

	// Step 1+2: snapshot pending records per table and deliver each.
	// Records mutated by the UI after the snapshot stay pending and are
	// picked up next cycle.
	for _, h := range o.store.Tables() {
		pending, err := h.QueryPending()
		if err != nil {
			logging.Error("Failed to snapshot pending records", err, map[string]interface{}{
				"table": h.Name(),
			})
			continue
		}

		for _, rec := range pending {
			err := o.remote.Upsert(ctx, h.Name(), rec)
			switch {
			case err == nil:
				// The guarded update leaves the record pending if the UI
				// touched it after the snapshot.
				if _, err := h.MarkSynced(rec.ID, rec.LastModified); err != nil {
					logging.Error("Failed to mark record synced", err, map[string]interface{}{
						"table":     h.Name(),
						"record_id": rec.ID,
					})
				}
				synced++
			default:
				if conflictErr, ok := remote.AsConflict(err); ok {
					o.resolveRecordConflict(h, rec, conflictErr.ServerPayload)
					conflicts++
					continue
				}
				failed++
				lastFailure = err.Error()
				logging.Warn("Record delivery failed", map[string]interface{}{
					"table":     h.Name(),
					"record_id": rec.ID,
					"error":     err.Error(),
				})
			}
		}
	}

	// Step 3: drain the mutation queue. A failure blocks the remaining
	// items of the same table so per-table FIFO survives into the next
	// cycle; other tables keep draining.
	items, err := o.queue.ListPending()
	if err != nil {
		logging.Error("Failed to list mutation queue", err, nil)
		items = nil
	}

	blocked := make(map[string]bool)
	for _, item := range items {
		if blocked[item.Table] {
			continue
		}

		err := o.deliverMutation(ctx, item)
		switch {
		case err == nil:
			o.finishMutation(item)
			synced++
		default:
			if conflictErr, ok := remote.AsConflict(err); ok {
				if o.resolveQueueConflict(item, conflictErr.ServerPayload) {
					conflicts++
					continue
				}
				// Client-wins keeps the intent queued; block the table so
				// later siblings wait behind it.
				conflicts++
				blocked[item.Table] = true
				continue
			}
			if err := o.queue.IncrementRetry(item.ID, err); err != nil {
				logging.Error("Failed to record retry", err, map[string]interface{}{
					"item_id": item.ID,
				})
			}
			blocked[item.Table] = true
			failed++
			lastFailure = err.Error()
		}
	}

	result := models.SyncResult{
		Success:   true,
		Synced:    synced,
		Failed:    failed,
		Conflicts: conflicts,
	}

	now := time.Now()
	o.mu.Lock()
	o.lastSync = &now
	o.lastErr = lastFailure
	listeners := make([]Listener, 0, len(o.listeners))
	for _, fn := range o.listeners {
		listeners = append(listeners, fn)
	}
	o.mu.Unlock()

	logging.Info("Sync cycle completed", map[string]interface{}{
		"synced":    result.Synced,
		"failed":    result.Failed,
		"conflicts": result.Conflicts,
	})

	for _, fn := range listeners {
		fn(result)
	}

	return result
}

// deliverMutation performs one queued operation against the remote API.
func (o *Orchestrator) deliverMutation(ctx context.Context, item *models.MutationQueueItem) error {
	switch item.Operation {
	case models.OpCreate:
		return o.remote.Create(ctx, item.Table, item.RecordID, item.Payload)
	case models.OpUpdate:
		return o.remote.Update(ctx, item.Table, item.RecordID, item.Payload)
	case models.OpDelete:
		return o.remote.Delete(ctx, item.Table, item.RecordID)
	default:
		return apperrors.New(apperrors.ErrQueueUnknownOp, fmt.Sprintf("unknown operation %q", item.Operation))
	}
}

// finishMutation removes a confirmed item and, for deletes, erases the
// tombstoned row.
func (o *Orchestrator) finishMutation(item *models.MutationQueueItem) {
	if err := o.queue.Remove(item.ID); err != nil {
		logging.Error("Failed to remove confirmed queue item", err, map[string]interface{}{
			"item_id": item.ID,
		})
	}
	if item.Operation != models.OpDelete {
		return
	}
	if h, ok := o.store.Table(item.Table); ok {
		if err := h.Erase(item.RecordID); err != nil {
			logging.Error("Failed to erase deleted record", err, map[string]interface{}{
				"table":     item.Table,
				"record_id": item.RecordID,
			})
		}
	}
}

// resolveRecordConflict applies the resolver's decision for a pending
// record the server reported a 409 for.
func (o *Orchestrator) resolveRecordConflict(h *store.TableHandle, rec *models.Record, serverPayload []byte) {
	res := o.resolver.Resolve(models.ConflictRecord{
		Table:         h.Name(),
		RecordID:      rec.ID,
		LocalPayload:  rec.Payload,
		ServerPayload: serverPayload,
	})
	o.applyResolution(h, rec.ID, res)
}

// resolveQueueConflict applies the resolver's decision for a queued
// mutation the server reported a 409 for. It returns false when the
// intent must stay queued (client-wins), true when the item was
// consumed.
func (o *Orchestrator) resolveQueueConflict(item *models.MutationQueueItem, serverPayload []byte) bool {
	h, ok := o.store.Table(item.Table)
	if !ok {
		return false
	}

	local := item.Payload
	if rec, err := h.Get(item.RecordID); err == nil {
		local = rec.Payload
	}

	res := o.resolver.Resolve(models.ConflictRecord{
		Table:         item.Table,
		RecordID:      item.RecordID,
		LocalPayload:  local,
		ServerPayload: serverPayload,
	})

	if res.Action == conflict.ActionClientWins {
		// The local intent stands; the item stays queued for the next
		// cycle and the record remains pending.
		return false
	}

	o.applyResolution(h, item.RecordID, res)
	if err := o.queue.Remove(item.ID); err != nil {
		logging.Error("Failed to remove reconciled queue item", err, map[string]interface{}{
			"item_id": item.ID,
		})
	}
	return true
}

// applyResolution writes a resolver decision back to the local store.
// Every 409 ends in exactly one of these outcomes before the cycle
// moves on.
func (o *Orchestrator) applyResolution(h *store.TableHandle, id models.UUID, res conflict.Resolution) {
	var err error
	switch res.Action {
	case conflict.ActionServerWins, conflict.ActionMerge:
		err = h.ApplyServerRecord(id, res.Payload)
	case conflict.ActionClientWins:
		// Local payload kept; record stays pending for resync.
	case conflict.ActionManual:
		err = h.MarkConflict(id)
	}
	if err != nil {
		logging.Error("Failed to apply conflict resolution", err, map[string]interface{}{
			"table":     h.Name(),
			"record_id": id,
		})
		return
	}

	if err := o.store.AppendConflictLog(&models.ConflictLog{
		Table:      h.Name(),
		RecordID:   id,
		Resolution: string(res.Action),
	}); err != nil {
		logging.Error("Failed to append conflict log", err, map[string]interface{}{
			"table":     h.Name(),
			"record_id": id,
		})
	}
}
