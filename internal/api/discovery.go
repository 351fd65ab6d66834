package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/oilfox-bridge/internal/oilfox"
)

// handleListDiscovery returns the devices found on the account that no
// handler claims yet, in arrival order.
func (s *Server) handleListDiscovery(w http.ResponseWriter, _ *http.Request) {
	results := s.discoveryResults()
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
}

// handleScan fetches the device list without refreshing the handlers, so
// new devices appear in the inbox.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	devices, err := s.bridge.GetAllDevices(r.Context())
	if err != nil {
		writeBridgeError(w, err)
		return
	}

	results := s.discoveryResults()
	writeJSON(w, http.StatusOK, map[string]any{
		"account_devices": len(devices),
		"results":         results,
		"count":           len(results),
	})
}

// handleApprove adopts a pending discovery result.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	if s.inbox == nil {
		writeNotFound(w, "discovery is not enabled")
		return
	}

	h, err := s.inbox.Approve(chi.URLParam(r, "hwid"))
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.Info())
}

func (s *Server) discoveryResults() []oilfox.DiscoveryResult {
	if s.inbox == nil {
		return []oilfox.DiscoveryResult{}
	}
	results := s.inbox.Results()
	if results == nil {
		results = []oilfox.DiscoveryResult{}
	}
	return results
}
