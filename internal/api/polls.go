package api

import "net/http"

// handleListPolls returns the poll log, newest first.
//
// Query parameters:
//   - limit: maximum entries (default 50, max 200)
func (s *Server) handleListPolls(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	polls, err := s.store.RecentPolls(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list polls", "error", err)
		writeInternalError(w, "failed to list polls")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"polls": polls, "count": len(polls)})
}
