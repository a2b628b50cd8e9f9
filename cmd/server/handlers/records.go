// Package handlers provides REST API handlers for sync status and triggers.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/kurniadi/farmnexus/internal/errors"
	"github.com/kurniadi/farmnexus/internal/models"
	"github.com/kurniadi/farmnexus/internal/store"
)

// RecordsHandler exposes the local edit path. Every write lands in the
// local store and the mutation queue; delivery happens on the next
// sync cycle.
type RecordsHandler struct {
	store  *store.Store
	editor *store.Editor
}

// NewRecordsHandler creates a RecordsHandler.
func NewRecordsHandler(s *store.Store, editor *store.Editor) *RecordsHandler {
	return &RecordsHandler{store: s, editor: editor}
}

// ServeHTTP routes /api/records/{table} and /api/records/{table}/{id}.
func (h *RecordsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/records/")
	parts := strings.SplitN(strings.Trim(rest, "/"), "/", 2)
	if parts[0] == "" {
		http.Error(w, "Missing table name", http.StatusBadRequest)
		return
	}
	table := parts[0]

	var id models.UUID
	if len(parts) == 2 {
		id = models.UUID(parts[1])
	}

	switch {
	case r.Method == http.MethodGet && id == "":
		h.list(w, table)
	case r.Method == http.MethodGet:
		h.get(w, table, id)
	case r.Method == http.MethodPost && id == "":
		h.create(w, r, table)
	case r.Method == http.MethodPut && id != "":
		h.update(w, r, table, id)
	case r.Method == http.MethodDelete && id != "":
		h.delete(w, table, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *RecordsHandler) list(w http.ResponseWriter, table string) {
	handle, ok := h.store.Table(table)
	if !ok {
		http.Error(w, "Unknown table", http.StatusNotFound)
		return
	}

	records, err := handle.Query(nil)
	if err != nil {
		http.Error(w, "Failed to query records", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*models.Record{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

func (h *RecordsHandler) get(w http.ResponseWriter, table string, id models.UUID) {
	handle, ok := h.store.Table(table)
	if !ok {
		http.Error(w, "Unknown table", http.StatusNotFound)
		return
	}

	rec, err := handle.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

func (h *RecordsHandler) create(w http.ResponseWriter, r *http.Request, table string) {
	payload, ok := readJSONBody(w, r)
	if !ok {
		return
	}

	id, err := h.editor.Create(table, payload)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{"id": id})
}

func (h *RecordsHandler) update(w http.ResponseWriter, r *http.Request, table string, id models.UUID) {
	patch, ok := readJSONBody(w, r)
	if !ok {
		return
	}

	if err := h.editor.Update(table, id, patch); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok"})
}

func (h *RecordsHandler) delete(w http.ResponseWriter, table string, id models.UUID) {
	if err := h.editor.Delete(table, id); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok"})
}

func readJSONBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return nil, false
	}
	if !json.Valid(body) {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return nil, false
	}
	return json.RawMessage(body), true
}

func writeError(w http.ResponseWriter, err error) {
	if apperrors.Is(err, apperrors.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if apperrors.Is(err, apperrors.ErrInvalid) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
