package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error kinds. Every error returned by the gateway matches at most one of
// these through errors.Is.
var (
	// ErrAuthFailure means the server rejected the presented credentials
	ErrAuthFailure = errors.New("authentication failed")
	// ErrRefreshFailure means the session could not be renewed and has ended
	ErrRefreshFailure = errors.New("session refresh failed")
	// ErrNetwork means the request did not produce an HTTP response
	ErrNetwork = errors.New("network failure")
	// ErrValidation means the server rejected the request payload
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
)

// APIError is a non-2xx response from the backend
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, msg)
}

// Is maps the status code onto the error kinds
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAuthFailure:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrValidation:
		return e.StatusCode == http.StatusBadRequest ||
			e.StatusCode == http.StatusConflict ||
			e.StatusCode == http.StatusUnprocessableEntity
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// newAPIError builds an APIError from a response body. The backend answers
// {"message": ...}; token middleware answers {"msg": ...}.
func newAPIError(method, path string, status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Method: method, Path: path}

	var payload struct {
		Message string `json:"message"`
		Msg     string `json:"msg"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Message != "":
			apiErr.Message = payload.Message
		case payload.Msg != "":
			apiErr.Message = payload.Msg
		case payload.Error != "":
			apiErr.Message = payload.Error
		}
	} else if text := strings.TrimSpace(string(body)); len(text) > 0 && len(text) <= 200 {
		apiErr.Message = text
	}

	return apiErr
}
