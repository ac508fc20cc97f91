package webserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ichi0g0y/wheel-overlay/internal/settings"
	"github.com/ichi0g0y/wheel-overlay/internal/wheel"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

func writeValidationError(w http.ResponseWriter, errs map[string]string) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"success": false,
		"error":   "Validation failed",
		"fields":  errs,
	})
}

// actionStatus maps a wheel error to an HTTP status.
func actionStatus(err error) int {
	switch {
	case errors.Is(err, wheel.ErrNoEntries),
		errors.Is(err, wheel.ErrInvalidMode),
		errors.Is(err, wheel.ErrUnknownSetting),
		errors.Is(err, wheel.ErrNoCountdown),
		errors.Is(err, settings.ErrUnknownKey),
		errors.Is(err, settings.ErrInvalidValue):
		return http.StatusBadRequest
	case errors.Is(err, wheel.ErrSpinning),
		errors.Is(err, wheel.ErrNotResolved),
		errors.Is(err, wheel.ErrNotSpinning),
		errors.Is(err, wheel.ErrNotCollecting),
		errors.Is(err, wheel.ErrInvalidWinner),
		errors.Is(err, wheel.ErrFaulted):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func actionMessage(err error) string {
	if errors.Is(err, wheel.ErrNoEntries) {
		return "No entries to spin"
	}
	return err.Error()
}
