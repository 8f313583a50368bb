package mcp

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// TransportError reports an HTTP-level failure: a non-2xx status, an
// unparsable response body, or a socket-level error.
type TransportError struct {
	StatusCode int    // zero when the failure happened below HTTP
	Body       string // raw response body, possibly empty
	Err        error  // underlying cause, possibly nil
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 && e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is a JSON-RPC error object returned by the server, or a
// tool result that reported failure through the isError convention.
type ProtocolError struct {
	Code    int
	Message string
}

func (e *ProtocolError) Error() string { return e.Message }

const genericRequestFailed = "request failed"

// newProtocolError builds a ProtocolError, substituting a generic message
// when the server supplied none.
func newProtocolError(code int, message string) *ProtocolError {
	if message == "" {
		message = genericRequestFailed
	}
	return &ProtocolError{Code: code, Message: message}
}

// isSessionLoss reports whether err indicates the server no longer
// recognizes our session: an HTTP 404, or a JSON-RPC error whose message
// mentions "session not found".
func isSessionLoss(err error) bool {
	var te *TransportError
	if errors.As(err, &te) && te.StatusCode == http.StatusNotFound {
		return true
	}
	var pe *ProtocolError
	if errors.As(err, &pe) && strings.Contains(strings.ToLower(pe.Message), "session not found") {
		return true
	}
	return false
}
