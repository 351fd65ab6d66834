package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/oilfox-bridge/internal/oilfox"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeConflict        = "conflict"
	ErrCodeInternal        = "internal_error"
	ErrCodeRefreshDeferred = "refresh_deferred"
	ErrCodeCloudAuth       = "cloud_auth_failed"
	ErrCodeCloudRateLimit  = "cloud_rate_limited"
	ErrCodeCloudError      = "cloud_error"
	ErrCodeUnavailable     = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeBridgeError maps an oilfox error to a response.
func writeBridgeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, oilfox.ErrRefreshDeferred):
		writeError(w, http.StatusTooManyRequests, ErrCodeRefreshDeferred, err.Error())
	case errors.Is(err, oilfox.ErrUnknownDevice):
		writeNotFound(w, err.Error())
	case errors.Is(err, oilfox.ErrUnknownChannel), errors.Is(err, oilfox.ErrConfiguration):
		writeBadRequest(w, err.Error())
	case errors.Is(err, oilfox.ErrListenerExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, oilfox.ErrAuth), errors.Is(err, oilfox.ErrNotFound):
		writeError(w, http.StatusBadGateway, ErrCodeCloudAuth, err.Error())
	case errors.Is(err, oilfox.ErrRateLimited):
		writeError(w, http.StatusBadGateway, ErrCodeCloudRateLimit, err.Error())
	case errors.Is(err, oilfox.ErrCommunication), errors.Is(err, oilfox.ErrNotAuthenticated):
		writeError(w, http.StatusBadGateway, ErrCodeCloudError, err.Error())
	case errors.Is(err, oilfox.ErrBridgeStopped):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
