package webserver

import (
	"net/http"
	"sort"

	"github.com/ichi0g0y/wheel-overlay/internal/settings"
	"github.com/ichi0g0y/wheel-overlay/internal/wheel"
	"go.uber.org/zap"
)

type settingsUpdateRequest struct {
	Settings map[string]string `json:"settings" validate:"required,min=1"`
}

// handleGetSettings returns every setting with secret values masked.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	all, err := s.settings.GetAllSettings()
	if err != nil {
		s.log.Error("Failed to load settings", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	for key, st := range all {
		if st.Type == settings.KindSecret && st.Value != "" {
			st.Value = "********"
			all[key] = st
		}
	}
	writeJSON(w, http.StatusOK, all)
}

// handlePutSettings applies wheel keys through the machine so the running
// wheel sees them, and saves the rest directly.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsUpdateRequest
	if errs := decodeAndValidate(r, &req); errs != nil {
		writeValidationError(w, errs)
		return
	}

	keys := make([]string, 0, len(req.Settings))
	for key := range req.Settings {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	// 途中で失敗した場合、それまでのキーは保存済み
	for _, key := range keys {
		value := req.Settings[key]
		var err error
		if wheel.IsWheelSetting(key) {
			err = s.machine().UpdateSetting(key, value)
		} else {
			err = s.settings.Save(key, value)
		}
		if err != nil {
			writeError(w, actionStatus(err), err.Error())
			return
		}
	}

	s.log.Info("Settings updated", zap.Strings("keys", keys))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"updated": keys,
	})
}

func (s *Server) handleFeatureStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.settings.CheckFeatureStatus()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}
