package oilfox

import (
	"errors"
	"fmt"
	"net/http"
)

// Domain errors for the OilFox bridge package.
var (
	// ErrAuth is returned when the cloud rejects the credentials or the
	// refresh token (HTTP 401).
	ErrAuth = errors.New("oilfox: authentication failed")

	// ErrRateLimited is returned when the cloud answers HTTP 429.
	ErrRateLimited = errors.New("oilfox: rate limited")

	// ErrNotFound is returned when the cloud answers HTTP 404, which the
	// login endpoint uses for an unknown account.
	ErrNotFound = errors.New("oilfox: not found")

	// ErrCommunication covers transport failures, timeouts, malformed
	// responses and unexpected status codes.
	ErrCommunication = errors.New("oilfox: communication error")

	// ErrConfiguration is returned when a device or bridge is missing a
	// required setting, such as the device hwid.
	ErrConfiguration = errors.New("oilfox: configuration error")

	// ErrNotAuthenticated is returned when an authenticated request is
	// attempted without an access token.
	ErrNotAuthenticated = errors.New("oilfox: not authenticated")

	// ErrRefreshDeferred is returned when an unscheduled refresh is dropped
	// by the fair-use gate.
	ErrRefreshDeferred = errors.New("oilfox: refresh deferred by fair-use window")

	// ErrListenerExists is returned when registering a listener twice or a
	// second listener for the same hwid.
	ErrListenerExists = errors.New("oilfox: listener already registered")

	// ErrUnknownDevice is returned when no handler exists for a hwid.
	ErrUnknownDevice = errors.New("oilfox: unknown device")

	// ErrUnknownChannel is returned when refreshing a channel that devices
	// do not have.
	ErrUnknownChannel = errors.New("oilfox: unknown channel")

	// ErrBridgeStopped is returned by operations invoked after Stop.
	ErrBridgeStopped = errors.New("oilfox: bridge stopped")
)

// StatusError carries the HTTP status code of a failed cloud request.
// It unwraps to one of ErrAuth, ErrNotFound, ErrRateLimited or
// ErrCommunication so callers can use errors.Is.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v (response code %d)", e.Err, e.Code)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// classifyStatus maps a non-200 status code onto the error taxonomy.
func classifyStatus(code int) error {
	switch code {
	case http.StatusUnauthorized:
		return &StatusError{Code: code, Err: ErrAuth}
	case http.StatusNotFound:
		return &StatusError{Code: code, Err: ErrNotFound}
	case http.StatusTooManyRequests:
		return &StatusError{Code: code, Err: ErrRateLimited}
	default:
		return &StatusError{Code: code, Err: ErrCommunication}
	}
}

// statusCode extracts the HTTP status code from err, or 0.
func statusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}
