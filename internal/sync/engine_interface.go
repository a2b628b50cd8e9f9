// Package sync provides the offline-first synchronization engine.
package sync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kurniadi/farmnexus/internal/models"
)

// Syncer defines the engine operations exposed to triggers and the API
// layer. The interface allows for mocking in tests and alternative
// implementations.
type Syncer interface {
	// TriggerSync runs one sync cycle and returns its result. If a cycle
	// is already in progress or the device is offline, it returns
	// immediately with an unsuccessful empty result and performs no
	// network I/O.
	TriggerSync(ctx context.Context) models.SyncResult

	// PendingCount returns the number of records and queued mutations
	// awaiting delivery.
	PendingCount() (int, error)

	// LastSyncTime returns when the last cycle completed, or nil.
	LastSyncTime() *time.Time

	// LastSyncError returns the last cycle's error message, or "".
	LastSyncError() string
}

// RemoteAPI is the remote sync endpoint as seen by the orchestrator.
// Implementations report a server-detected divergence by returning a
// remote.ConflictError carrying the authoritative payload.
type RemoteAPI interface {
	Upsert(ctx context.Context, table string, rec *models.Record) error
	Create(ctx context.Context, table string, id models.UUID, payload json.RawMessage) error
	Update(ctx context.Context, table string, id models.UUID, payload json.RawMessage) error
	Delete(ctx context.Context, table string, id models.UUID) error
}

// ConnectivityProbe reports whether the device currently has
// connectivity. It is provided by the connectivity monitor.
type ConnectivityProbe interface {
	IsOnline() bool
}
