package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/desertthunder/repertoire/internal/shared"
)

// RequestError is the typed failure of a [Request].
//
// StatusCode is zero when no response was received. Callers can use errors.As to extract it:
//
//	var reqErr *RequestError
//	if errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusConflict { ... }
type RequestError struct {
	// StatusCode is the HTTP status of the response, or 0 for transport failures.
	StatusCode int
	// Message is the server supplied "error" field when present.
	Message string
	// Body is the raw response body.
	Body []byte
	// Err is the underlying transport or local error, if any.
	Err error
}

func (e *RequestError) Error() string {
	switch {
	case e.StatusCode == 0 && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("status %d", e.StatusCode)
	}
}

// Unwrap exposes both the status sentinel and the underlying error to errors.Is.
func (e *RequestError) Unwrap() []error {
	errs := []error{e.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (e *RequestError) sentinel() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return shared.ErrTokenExpired
	case http.StatusForbidden:
		return shared.ErrForbidden
	case http.StatusNotFound:
		return shared.ErrNotFound
	default:
		return shared.ErrAPIRequest
	}
}

// ServerMessage returns the server supplied message, or "" for local failures.
func (e *RequestError) ServerMessage() string {
	if e.StatusCode == 0 || e.Err != nil {
		return ""
	}
	return e.Message
}

// errorEnvelope is the backend's failure body.
type errorEnvelope struct {
	Error string `json:"error"`
}

func newStatusError(resp *APIResponse) *RequestError {
	reqErr := &RequestError{StatusCode: resp.StatusCode, Body: resp.Body}

	var env errorEnvelope
	if err := json.Unmarshal(resp.Body, &env); err == nil {
		reqErr.Message = env.Error
	}
	return reqErr
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode
	}
	return 0
}

// IsUnauthorized reports a 401 produced by the server, not by the local fail-fast path.
func IsUnauthorized(err error) bool {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		return false
	}
	return reqErr.StatusCode == http.StatusUnauthorized && !errors.Is(reqErr.Err, shared.ErrNotAuthenticated)
}
