package webserver

import (
	"encoding/json"
	"net/http"

	"github.com/ichi0g0y/wheel-overlay/internal/layout"
	"github.com/ichi0g0y/wheel-overlay/internal/perf"
	"github.com/ichi0g0y/wheel-overlay/internal/types"
	"github.com/ichi0g0y/wheel-overlay/internal/version"
)

type modeRequest struct {
	Mode string `json:"mode" validate:"required,oneof=gifts likes chat joins"`
}

type testEntriesRequest struct {
	Count int `json:"count" validate:"min=1,max=500"`
}

type entryRequest struct {
	Name         string `json:"name" validate:"required,max=100"`
	Avatar       string `json:"avatar" validate:"omitempty,max=2048"`
	IsSubscriber bool   `json:"isSubscriber"`
}

type entriesRequest struct {
	Entries []entryRequest `json:"entries" validate:"max=10000,dive"`
}

type errorReportRequest struct {
	Error   string `json:"error" validate:"required,max=200"`
	Message string `json:"message" validate:"max=1000"`
}

type performanceRequest struct {
	AverageFPS float64 `json:"averageFps" validate:"min=0"`
	MinFPS     float64 `json:"minFps" validate:"min=0"`
	MaxFPS     float64 `json:"maxFps" validate:"min=0"`
}

func marshalRaw(v interface{}) (json.RawMessage, error) {
	return json.Marshal(v)
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Info())
}

func (s *Server) handleWheelState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.machine().Snapshot())
}

func (s *Server) handleWheelLayout(w http.ResponseWriter, r *http.Request) {
	st := s.machine().Snapshot()
	writeJSON(w, http.StatusOK, layout.Build(st.Entries, layout.Options{
		WheelSizePercent: st.Settings.WheelSize,
		TextSizePercent:  st.Settings.TextSize,
		CenterSizePx:     st.Settings.CenterSize,
		ShowTextShadows:  st.Settings.ShowTextShadows,
		Rotation:         st.Rotation,
	}))
}

// action wraps a parameterless machine operation and answers with the new state.
func (s *Server) action(fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(); err != nil {
			writeError(w, actionStatus(err), actionMessage(err))
			return
		}
		s.writeState(w)
	}
}

func (s *Server) writeState(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"state":   s.machine().Snapshot(),
	})
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if errs := decodeAndValidate(r, &req); errs != nil {
		writeValidationError(w, errs)
		return
	}
	if err := s.machine().SetMode(types.Mode(req.Mode)); err != nil {
		writeError(w, actionStatus(err), actionMessage(err))
		return
	}
	s.writeState(w)
}

func (s *Server) handleAddTestEntries(w http.ResponseWriter, r *http.Request) {
	var req testEntriesRequest
	if errs := decodeAndValidate(r, &req); errs != nil {
		writeValidationError(w, errs)
		return
	}
	if err := s.machine().AddTestEntries(req.Count); err != nil {
		writeError(w, actionStatus(err), actionMessage(err))
		return
	}
	s.writeState(w)
}

func (s *Server) handleSetEntries(w http.ResponseWriter, r *http.Request) {
	var req entriesRequest
	if errs := decodeAndValidate(r, &req); errs != nil {
		writeValidationError(w, errs)
		return
	}
	entries := make([]types.WheelEntry, 0, len(req.Entries))
	for _, e := range req.Entries {
		entries = append(entries, types.WheelEntry{Name: e.Name, Avatar: e.Avatar, IsSubscriber: e.IsSubscriber})
	}
	if err := s.machine().SetEntries(entries); err != nil {
		writeError(w, actionStatus(err), actionMessage(err))
		return
	}
	s.writeState(w)
}

// handleReportError lets the overlay put the wheel into the error state.
func (s *Server) handleReportError(w http.ResponseWriter, r *http.Request) {
	var req errorReportRequest
	if errs := decodeAndValidate(r, &req); errs != nil {
		writeValidationError(w, errs)
		return
	}
	message := req.Message
	if message == "" {
		message = req.Error
	}
	s.machine().ReportError(req.Error, message)
	s.writeState(w)
}

func (s *Server) handleReportPerformance(w http.ResponseWriter, r *http.Request) {
	var req performanceRequest
	if errs := decodeAndValidate(r, &req); errs != nil {
		writeValidationError(w, errs)
		return
	}
	s.machine().ReportPerformance(perf.Report{
		AverageFPS: req.AverageFPS,
		MinFPS:     req.MinFPS,
		MaxFPS:     req.MaxFPS,
		IsLow:      req.AverageFPS < perf.FrameRateThreshold,
	})
	s.writeState(w)
}
