package webserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ichi0g0y/wheel-overlay/internal/localdb"
	"github.com/ichi0g0y/wheel-overlay/internal/shared/logger"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// handleGetHistory returns the most recent spin results.
func handleGetHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			writeValidationError(w, map[string]string{"limit": "Must be between 1 and 200"})
			return
		}
		limit = n
	}

	history, err := localdb.GetSpinHistory(limit)
	if err != nil {
		logger.Error("Failed to load spin history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load spin history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"history": history,
		"count":   len(history),
	})
}

func handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := localdb.DeleteSpinHistory(id)
	if err != nil {
		logger.Error("Failed to delete spin history", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to delete spin history")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "History entry not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
