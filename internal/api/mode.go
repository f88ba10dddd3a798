package api

import (
	"encoding/json"
	"net/http"

	"github.com/hearth-home/hearth/internal/device"
)

// modeRequest is the body of PUT /api/v1/mode.
type modeRequest struct {
	Mode string `json:"mode"`
}

// handleGetMode returns the active home mode, or null when no mode has
// ever been activated.
func (s *Server) handleGetMode(w http.ResponseWriter, r *http.Request) {
	mode, ok, err := s.modes.Active(r.Context())
	if err != nil {
		s.logger.Error("active mode query failed", "error", err)
		writeInternalError(w, "failed to read active mode")
		return
	}

	var out any
	if ok {
		out = string(mode)
	}
	writeJSON(w, http.StatusOK, map[string]any{"mode": out})
}

// handleSetMode activates a home mode and applies its rule table.
//
// Per-device write failures inside the batch are best-effort and show
// up in the result counters; only a failure to activate the mode itself
// is an error here.
func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	mode := device.Mode(req.Mode)
	if !mode.IsValid() {
		writeBadRequest(w, "unknown mode: "+req.Mode)
		return
	}

	result, err := s.modes.Activate(r.Context(), mode)
	if err != nil {
		s.logger.Error("mode activation failed", "mode", mode, "error", err)
		writeInternalError(w, "failed to activate mode")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
