package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/oilfox-bridge/internal/oilfox"
	"github.com/nerrad567/oilfox-bridge/internal/tank"
)

// AddDeviceRequest is the body of POST /api/v1/devices.
type AddDeviceRequest struct {
	HWID string `json:"hwid"`
	Name string `json:"name,omitempty"`
	ID   string `json:"id,omitempty"`
}

// RefreshDeviceRequest is the optional body of POST /devices/{hwid}/refresh.
type RefreshDeviceRequest struct {
	Channel string `json:"channel"`
}

// handleListDevices returns every device handler in registration order.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	handlers := s.bridge.Devices()
	devices := make([]oilfox.DeviceInfo, 0, len(handlers))
	for _, h := range handlers {
		devices = append(devices, h.Info())
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	h, ok := s.bridge.Device(chi.URLParam(r, "hwid"))
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, h.Info())
}

// handleAddDevice adds a device by hwid and stores it so it is restored on
// the next start.
func (s *Server) handleAddDevice(w http.ResponseWriter, r *http.Request) {
	var req AddDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.HWID == "" {
		writeBadRequest(w, "hwid is required")
		return
	}

	h, err := s.bridge.AddDevice(oilfox.DeviceConfig{ID: req.ID, HWID: req.HWID, Name: req.Name})
	if err != nil {
		writeBridgeError(w, err)
		return
	}

	dev := oilfox.DeviceConfig{ID: h.ThingID(), HWID: h.HWID(), Name: h.Name()}
	if err := s.store.SaveDevice(r.Context(), dev); err != nil {
		s.logger.Error("failed to store added device", "hwid", req.HWID, "error", err)
	}

	writeJSON(w, http.StatusCreated, h.Info())
}

// handleRemoveDevice removes a device handler. Stored readings are kept.
func (s *Server) handleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	hwid := chi.URLParam(r, "hwid")
	if err := s.bridge.RemoveDevice(hwid); err != nil {
		writeBridgeError(w, err)
		return
	}

	s.refreshMu.Lock()
	delete(s.lastDeviceRefresh, hwid)
	s.refreshMu.Unlock()

	// Devices from the config file were never stored.
	if err := s.store.DeleteDevice(r.Context(), hwid); err != nil && !errors.Is(err, tank.ErrNotFound) {
		s.logger.Error("failed to delete stored device", "hwid", hwid, "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListReadings returns stored readings, newest first.
//
// Query parameters:
//   - limit: maximum entries (default 50, max 200)
func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	hwid := chi.URLParam(r, "hwid")
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	readings, err := s.store.History(r.Context(), hwid, limit)
	if err != nil {
		s.logger.Error("failed to list readings", "hwid", hwid, "error", err)
		writeInternalError(w, "failed to list readings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hwid": hwid, "readings": readings, "count": len(readings)})
}

// deviceRefreshSpacing is the minimum time between REST refreshes of one
// device. Channel refreshes bypass the bridge fair-use window, so this
// route is spaced here instead.
const deviceRefreshSpacing = time.Minute

// handleRefreshDevice refreshes one channel of a device. Channel refreshes
// bypass the fair-use window but are spaced by deviceRefreshSpacing per
// device. The channel defaults to fillLevelPercent.
func (s *Server) handleRefreshDevice(w http.ResponseWriter, r *http.Request) {
	h, ok := s.bridge.Device(chi.URLParam(r, "hwid"))
	if !ok {
		writeNotFound(w, "device not found")
		return
	}

	channel := r.URL.Query().Get("channel")
	if channel == "" && r.ContentLength > 0 {
		var req RefreshDeviceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
		channel = req.Channel
	}
	if channel == "" {
		channel = oilfox.ChannelFillLevelPercent
	}
	if !oilfox.IsChannel(channel) {
		writeBridgeError(w, fmt.Errorf("%w: %q", oilfox.ErrUnknownChannel, channel))
		return
	}

	if next, ok := s.admitDeviceRefresh(h.HWID()); !ok {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"status":               http.StatusTooManyRequests,
			"code":                 ErrCodeRefreshDeferred,
			"message":              "device refreshed recently",
			"next_allowed_refresh": next.UTC(),
		})
		return
	}

	if err := h.RequestRefresh(r.Context(), channel); err != nil {
		writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Info())
}

// admitDeviceRefresh records a refresh of hwid and reports whether it is
// admitted. When it is not, the returned time is when the next one will be.
func (s *Server) admitDeviceRefresh(hwid string) (time.Time, bool) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	now := s.now()
	if last, ok := s.lastDeviceRefresh[hwid]; ok {
		if next := last.Add(deviceRefreshSpacing); now.Before(next) {
			return next, false
		}
	}
	s.lastDeviceRefresh[hwid] = now
	return time.Time{}, true
}

// parseLimit reads the limit query parameter. It writes a 400 and returns
// false when the value is not a number.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		writeBadRequest(w, "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}
