// Package apierr maps the gateway's error taxonomy onto HTTP status codes
// and a stable JSON error envelope.
package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Code is a stable machine-readable error identifier, independent of the
// HTTP status it happens to map to.
type Code string

const (
	CodeBadRequest       Code = "bad_request"
	CodeUnauthorized     Code = "unauthorized"
	CodeForbidden        Code = "forbidden"
	CodeNotFound         Code = "not_found"
	CodeConflict         Code = "conflict"
	CodeValidation       Code = "validation_error"
	CodeRateLimited      Code = "rate_limited"
	CodeUpstreamTimeout  Code = "upstream_timeout"
	CodeUpstreamUnavail  Code = "upstream_unavailable"
	// CodeServiceUnavailable marks a compute that exists but has no ready
	// pod yet, distinct from CodeUpstreamUnavail's dial/transport failure
	// against a pod that is supposedly up.
	CodeServiceUnavailable Code = "service_unavailable"
	CodeInternal           Code = "internal"
)

var statusByCode = map[Code]int{
	CodeBadRequest:         http.StatusBadRequest,
	CodeUnauthorized:       http.StatusUnauthorized,
	CodeForbidden:          http.StatusForbidden,
	CodeNotFound:           http.StatusNotFound,
	CodeConflict:           http.StatusConflict,
	CodeValidation:         http.StatusUnprocessableEntity,
	CodeRateLimited:        http.StatusTooManyRequests,
	CodeUpstreamTimeout:    http.StatusGatewayTimeout,
	CodeUpstreamUnavail:    http.StatusBadGateway,
	CodeServiceUnavailable: http.StatusServiceUnavailable,
	CodeInternal:           http.StatusInternalServerError,
}

// Error is an error carrying a stable code and a user-facing message.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an Error with the given code, message, and underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Status returns the HTTP status for a Code, defaulting to 500.
func Status(code Code) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// envelope is the JSON body written for every error response.
type envelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Respond writes err as a JSON error response. If err is an *Error its code
// and message are used; otherwise it is treated as an opaque internal error.
func Respond(w http.ResponseWriter, err error) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		apiErr = &Error{Code: CodeInternal, Message: "internal server error", Cause: err}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(Status(apiErr.Code))
	_ = json.NewEncoder(w).Encode(envelope{
		Error:   string(apiErr.Code),
		Message: apiErr.Message,
	})
}

// RespondCode is a convenience for writing a code+message pair directly,
// without constructing an Error value first.
func RespondCode(w http.ResponseWriter, code Code, message string) {
	Respond(w, New(code, message))
}
