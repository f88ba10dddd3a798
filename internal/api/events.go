package api

import (
	"net/http"
	"strconv"

	"github.com/hearth-home/hearth/internal/event"
)

// handleListEvents returns a page of the audit trail, newest first.
//
// Query parameters:
//   - type: filter by event type (device_control, mode_change, ...)
//   - device_id: filter by device
//   - limit: page size (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	filter := event.Filter{
		Type:     r.URL.Query().Get("type"),
		DeviceID: r.URL.Query().Get("device_id"),
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}

	result, err := s.events.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("event list failed", "error", err)
		writeInternalError(w, "failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
