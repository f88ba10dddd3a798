package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hearth-home/hearth/internal/device"
)

// handleListDevices returns all devices, with optional query filters.
//
// Query parameters:
//   - room: filter by room (living_room, bedroom, ...)
//   - type: filter by device type (light, lock, ...)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	filter := device.Filter{
		Room: r.URL.Query().Get("room"),
	}
	if typeStr := r.URL.Query().Get("type"); typeStr != "" {
		t := device.DeviceType(typeStr)
		if !t.IsValid() {
			writeBadRequest(w, "unknown device type: "+typeStr)
			return
		}
		filter.Type = t
	}

	devices, err := s.store.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("device list failed", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("device get failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleListRooms returns the sorted distinct room names.
func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.store.Rooms(r.Context())
	if err != nil {
		s.logger.Error("room list failed", "error", err)
		writeInternalError(w, "failed to list rooms")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms, "count": len(rooms)})
}

// handleStats returns the dashboard summary counters.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats query failed", "error", err)
		writeInternalError(w, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
