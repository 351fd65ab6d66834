package api

import (
	"errors"
	"net/http"

	"github.com/nerrad567/oilfox-bridge/internal/oilfox"
)

// handleGetBridge returns the bridge status, session state and last poll.
func (s *Server) handleGetBridge(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.bridge.Info())
}

// handleRefreshBridge requests an unscheduled refresh of every device.
// The fair-use window applies: a refresh inside it is answered with 429
// and the time the next one is admitted.
func (s *Server) handleRefreshBridge(w http.ResponseWriter, r *http.Request) {
	err := s.bridge.HandleRefreshCommand(r.Context(), "")
	if errors.Is(err, oilfox.ErrRefreshDeferred) {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"status":               http.StatusTooManyRequests,
			"code":                 ErrCodeRefreshDeferred,
			"message":              err.Error(),
			"next_allowed_refresh": s.bridge.NextAllowedRefresh(),
		})
		return
	}
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.bridge.Info())
}
