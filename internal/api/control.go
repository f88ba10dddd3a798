package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hearth-home/hearth/internal/control"
	"github.com/hearth-home/hearth/internal/device"
)

// handleControl applies a control action to one or more devices.
//
// The request body is a control.Request: an action plus either a
// device_id or a room/type filter, with optional typed parameters.
// The response lists one outcome per matched device; zero matches is
// an empty list, not an error.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var req control.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if !req.Action.IsValid() {
		writeBadRequest(w, "unknown action: "+string(req.Action))
		return
	}
	if req.DeviceType != "" && !req.DeviceType.IsValid() {
		writeBadRequest(w, "unknown device type: "+string(req.DeviceType))
		return
	}

	outcomes, err := s.ctrl.Apply(r.Context(), req)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("control apply failed", "action", req.Action, "error", err)
		writeInternalError(w, "failed to apply control action")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"outcomes": outcomes, "count": len(outcomes)})
}
