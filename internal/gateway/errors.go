package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// NetworkError indicates that no response was received for an operation:
// the connection failed, timed out, or the circuit breaker is open.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error (%s): %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError indicates that the server answered with a non-2xx status or
// with success=false. Message is surfaced as-is.
type ServerError struct {
	Op      string
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (%s, %d): %s", e.Op, e.Status, e.Message)
}

// IsNetworkError reports whether err (or any error in its chain) is a NetworkError.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// IsServerError reports whether err (or any error in its chain) is a ServerError.
func IsServerError(err error) bool {
	var srvErr *ServerError
	return errors.As(err, &srvErr)
}

// IsUnauthorized reports whether err is a ServerError caused by a 401.
func IsUnauthorized(err error) bool {
	var srvErr *ServerError
	return errors.As(err, &srvErr) && srvErr.Status == http.StatusUnauthorized
}

// Message returns the human-readable part of a gateway error, falling
// back to err.Error() for anything else.
func Message(err error) string {
	var srvErr *ServerError
	if errors.As(err, &srvErr) && srvErr.Message != "" {
		return srvErr.Message
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return "network unavailable: " + netErr.Err.Error()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
