// Package graph provides an HTTP client for the Microsoft Graph drive API
// with automatic retry, error classification, and chunked uploads.
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
	ErrBadRequest   = errors.New("graph: bad request")
	ErrUnauthorized = errors.New("graph: unauthorized")
	ErrForbidden    = errors.New("graph: forbidden")
	ErrNotFound     = errors.New("graph: not found")
	ErrConflict     = errors.New("graph: conflict")
	ErrGone         = errors.New("graph: resource gone")
	ErrThrottled    = errors.New("graph: throttled")
	ErrLocked       = errors.New("graph: resource locked")
	ErrInsufficient = errors.New("graph: insufficient storage")
	ErrServerError  = errors.New("graph: server error")
)

// GraphError wraps a sentinel error with HTTP status code, request ID,
// the Graph error code, and the raw error body for debugging.
type GraphError struct {
	StatusCode int
	RequestID  string
	Code       string // Graph error code, e.g. "itemNotFound"
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *GraphError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("graph: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("graph: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *GraphError) Unwrap() error {
	return e.Err
}

// errorEnvelope mirrors {"error":{"code":...,"message":...}}.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// newGraphError reads and closes resp.Body and builds a GraphError.
func newGraphError(resp *http.Response) *GraphError {
	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()

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
		if env.Error.Message != "" {
			ge.Message = env.Error.Message
		}

		// Some endpoints report a missing item with 400 and itemNotFound.
		if ge.Code == "itemNotFound" {
			ge.Err = ErrNotFound
		}
	}

	return ge
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for codes with no sentinel.
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
	case http.StatusGone:
		return ErrGone
	case http.StatusTooManyRequests:
		return ErrThrottled
	case http.StatusLocked:
		return ErrLocked
	case http.StatusInsufficientStorage:
		return ErrInsufficient
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
