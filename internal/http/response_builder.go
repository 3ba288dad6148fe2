// Package http serves the fintrack JSON API.
//
// This file implements the Builder Pattern for JSON responses and the
// mapping from domain errors to status codes.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body. A nil body writes no
// content.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	data, err := json.Marshal(b.body)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n"))
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, message, details string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(ErrorBody{Error: message, Details: details})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(details string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, "malformed request", details)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(details string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, "not found", details)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "internal server error", "")
}

// errMalformedBody marks request bodies that could not be decoded.
var errMalformedBody = errors.New("malformed request body")

// errUnsupported is returned when the configured gateway lacks a feature.
var errUnsupported = errors.New("not supported by the configured bank gateway")

// statusFor maps an error to its HTTP status and public message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errMalformedBody):
		return http.StatusBadRequest, "malformed request"
	case errors.Is(err, core.ErrValidation):
		return http.StatusUnprocessableEntity, "validation failed"
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, core.ErrExternalSync):
		return http.StatusBadGateway, "bank sync failed"
	case errors.Is(err, errUnsupported):
		return http.StatusNotImplemented, "not implemented"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// writeError writes the error response for err. Internal errors are logged
// and their details withheld from the client.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, message := statusFor(err)
	logger := applog.FromContext(r.Context()).WithComponent(applog.ComponentHTTP)
	if status >= http.StatusInternalServerError && status != http.StatusNotImplemented {
		errType := applog.ErrorTypeInternal
		if status == http.StatusBadGateway {
			errType = applog.ErrorTypeExternal
		}
		applog.LogError(r.Context(), logger, "Request failed", err, op, errType, nil)
	}
	details := err.Error()
	if status == http.StatusInternalServerError {
		details = ""
	}
	ErrorResponse(status, message, details).Write(w)
}

// writeJSON writes v with status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	NewJSONResponse().Status(status).Body(v).Write(w)
}
