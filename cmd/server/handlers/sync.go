// Package handlers provides REST API handlers for sync status and triggers.
package handlers

import (
	"encoding/json"
	"net/http"

	syncpkg "github.com/kurniadi/farmnexus/internal/sync"
)

// SyncHandler exposes the sync engine over HTTP.
type SyncHandler struct {
	engine syncpkg.Syncer
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(engine syncpkg.Syncer) *SyncHandler {
	return &SyncHandler{engine: engine}
}

// GetStatus handles GET /api/sync/status.
// Returns pending count, last sync time and last error.
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pending, err := h.engine.PendingCount()
	if err != nil {
		http.Error(w, "Failed to count pending changes", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"pending": pending,
	}
	if lastSync := h.engine.LastSyncTime(); lastSync != nil {
		response["last_sync"] = lastSync.Unix()
	}
	if lastErr := h.engine.LastSyncError(); lastErr != "" {
		response["last_error"] = lastErr
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// TriggerSync handles POST /api/sync/now.
// Runs one cycle and returns its result. A concurrent or offline
// trigger comes back immediately with an unsuccessful empty result.
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result := h.engine.TriggerSync(r.Context())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
