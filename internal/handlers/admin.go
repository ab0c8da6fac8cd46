package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/tubefetch/bot/internal/logging"
	"github.com/tubefetch/bot/internal/storage"
)

// HealthHandler responds with service health information.
type HealthHandler struct{}

// Handle implements GET /healthz.
func (HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StorageStatsHandler reports usage over the object store's namespace.
type StorageStatsHandler struct {
	Store storage.ObjectStore
}

// Handle implements GET /storage/stats.
func (h StorageStatsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	stats, err := h.Store.Statistics(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("storage statistics", "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage statistics unavailable"})
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
