// Package http exposes the ledger services as a JSON REST API.
//
// Every response uses one envelope:
//
//	{"success":true,"data":...}
//	{"success":false,"error":{"code":"...","message":"...","details":[...]}}
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"agencyledger/internal/core"
	"agencyledger/internal/ledger"
	"agencyledger/internal/log"
)

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details []core.FieldIssue `json:"details,omitempty"`
}

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

// ResponseBuilder assembles an enveloped JSON response.
type ResponseBuilder struct {
	status  int
	headers map[string]string
	body    envelope
}

func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		status:  http.StatusOK,
		headers: make(map[string]string),
		body:    envelope{Success: true},
	}
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.status = code
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

func (b *ResponseBuilder) Data(data any) *ResponseBuilder {
	b.body.Data = data
	return b
}

// Fail turns the response into an error envelope.
func (b *ResponseBuilder) Fail(status int, code, message string, details []core.FieldIssue) *ResponseBuilder {
	b.status = status
	b.body = envelope{
		Success: false,
		Error:   &errorBody{Code: code, Message: message, Details: details},
	}
	return b
}

func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.status)
	_ = json.NewEncoder(w).Encode(b.body)
}

func ok(w http.ResponseWriter, data any) {
	NewResponse().Data(data).Write(w)
}

func created(w http.ResponseWriter, data any) {
	NewResponse().Status(http.StatusCreated).Data(data).Write(w)
}

func deleted(w http.ResponseWriter, message string) {
	ok(w, map[string]string{"message": message})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind core.ErrorKind) int {
	switch kind {
	case core.KindValidation:
		return http.StatusUnprocessableEntity
	case core.KindBadRequest:
		return http.StatusBadRequest
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindConflict:
		return http.StatusConflict
	case core.KindUnauthorized:
		return http.StatusUnauthorized
	case core.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. Only classified errors reach the client; anything
// else is logged and reported as a generic server error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if e, ok := core.AsError(err); ok && e.Kind != core.KindInternal {
		NewResponse().Fail(statusFor(e.Kind), e.Code, e.Message, e.Details).Write(w)
		return
	}

	logger := log.FromContext(r.Context()).WithComponent(log.ComponentHTTP)
	errType := log.ErrorTypeInternal
	if errors.Is(err, ledger.ErrTransactionUnavailable) {
		errType = log.ErrorTypeDatabase
	}
	logger.ErrorContext(r.Context(), "Request failed",
		log.FieldError, err,
		log.FieldErrorType, errType,
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)

	NewResponse().
		Fail(http.StatusInternalServerError, core.CodeServerError, "Internal server error", nil).
		Write(w)
}
