package webserver

import (
	"encoding/json"
	"net/http"

	"github.com/ichi0g0y/wheel-overlay/internal/livefeed/relay"
)

type injectEventRequest struct {
	Event string          `json:"event" validate:"required"`
	Data  json.RawMessage `json:"data"`
}

// handleInjectEvent pushes one raw feed event into the wheel as if it came
// from the live source. Handy for rehearsals without a stream.
func (s *Server) handleInjectEvent(w http.ResponseWriter, r *http.Request) {
	var req injectEventRequest
	if errs := decodeAndValidate(r, &req); errs != nil {
		writeValidationError(w, errs)
		return
	}
	kind, ok := relay.ParseKind(req.Event)
	if !ok {
		writeValidationError(w, map[string]string{"event": "Unsupported event"})
		return
	}
	payload := []byte(req.Data)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	s.service.HandleRaw(kind, payload)
	s.writeState(w)
}

func (s *Server) handleFeedStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Feed().Status())
}
