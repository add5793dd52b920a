// Package http serves the ledger engine as a JSON API.
//
// This file holds the response builder every handler writes through, so that
// status codes and error bodies stay consistent across endpoints.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"bizledger/internal/core"
)

// ResponseBuilder provides a fluent API for building API responses.
type ResponseBuilder struct {
	statusCode  int
	headers     map[string]string
	body        []byte
	contentType string
	encodeErr   error
}

// NewResponse creates a builder with a default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a response header.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON encodes v as the response body.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	raw, err := json.Marshal(v)
	if err != nil {
		b.encodeErr = err
		return b
	}
	b.body = append(raw, '\n')
	b.contentType = "application/json; charset=utf-8"
	return b
}

// Bytes sets a raw body with its content type.
func (b *ResponseBuilder) Bytes(contentType string, body []byte) *ResponseBuilder {
	b.body = body
	b.contentType = contentType
	return b
}

// Write sends the built response.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	if b.encodeErr != nil {
		slog.Error("Response encoding failed", "component", "http", "error", b.encodeErr)
		http.Error(w, "response encoding failed", http.StatusInternalServerError)
		return
	}
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.contentType != "" {
		w.Header().Set("Content-Type", b.contentType)
	}
	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error  string            `json:"error"`
	Fields []core.FieldError `json:"fields,omitempty"`
}

// ErrorResponse creates an error response with a plain message.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	return NewResponse().Status(statusCode).JSON(ErrorBody{Error: message})
}

// BadRequestError creates a 400 response.
func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// NotFoundError creates a 404 response.
func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// InternalServerError creates a 500 response.
func InternalServerError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// ErrorFrom maps an engine error to its response: validation 422 with the
// failing fields, stale ledger 409, not found 404, upstream 502.
func ErrorFrom(err error) *ResponseBuilder {
	var verr *core.ValidationError
	var stale *core.StaleLedgerError
	var up *core.UpstreamError
	switch {
	case errors.As(err, &verr):
		return NewResponse().
			Status(http.StatusUnprocessableEntity).
			JSON(ErrorBody{Error: "validation failed", Fields: verr.Fields})
	case errors.As(err, &stale):
		return NewResponse().
			Status(http.StatusConflict).
			JSON(map[string]string{
				"error":      stale.Error(),
				"vehicle_id": stale.VehicleID,
				"expected":   stale.Expected.String(),
				"actual":     stale.Actual.String(),
			})
	case errors.Is(err, core.ErrNotFound):
		return NotFoundError(err.Error())
	case errors.As(err, &up):
		return ErrorResponse(http.StatusBadGateway, "upstream store failure")
	}
	return InternalServerError("internal error")
}
