// Package graph is a small Microsoft Graph client covering the OneDrive
// item, upload, copy, and profile endpoints, with retry, throttling, and
// error classification.
package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, graph.ErrNotFound) to check.
var (
	ErrBadRequest         = errors.New("graph: bad request")
	ErrUnauthorized       = errors.New("graph: unauthorized")
	ErrForbidden          = errors.New("graph: forbidden")
	ErrNotFound           = errors.New("graph: not found")
	ErrConflict           = errors.New("graph: conflict")
	ErrPreconditionFailed = errors.New("graph: precondition failed")
	ErrThrottled          = errors.New("graph: throttled")
	ErrServerError        = errors.New("graph: server error")
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 64 * 1024

// GraphError carries the HTTP status, request ID, and the service's error
// code and message. It unwraps to the sentinel for its status.
type GraphError struct {
	StatusCode int
	RequestID  string
	Code       string // Graph error code, e.g. "nameAlreadyExists"
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *GraphError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}

	if e.RequestID != "" {
		return fmt.Sprintf("graph: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, msg)
	}

	return fmt.Sprintf("graph: HTTP %d: %s", e.StatusCode, msg)
}

func (e *GraphError) Unwrap() error {
	return e.Err
}

// errorEnvelope is the JSON error body Graph returns.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// newGraphError consumes and closes resp.Body.
func newGraphError(resp *http.Response) *GraphError {
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if readErr != nil {
		body = []byte("(failed to read response body)")
	}

	ge := &GraphError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("request-id"),
		Message:    string(body),
		Err:        classifyStatus(resp.StatusCode),
	}

	var env errorEnvelope
	if json.Unmarshal(body, &env) == nil && env.Error.Code != "" {
		ge.Code = env.Error.Code
		ge.Message = env.Error.Message
	}

	return ge
}

// classifyStatus maps an HTTP status code to a sentinel error.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusPreconditionFailed:
		return ErrPreconditionFailed
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		// 509 Bandwidth Limit Exceeded (SharePoint).
		const statusBandwidthExceeded = 509
		return code == statusBandwidthExceeded
	}
}
