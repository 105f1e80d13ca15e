// Package api holds the JSON envelope shared by every handler.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/cloo-solutions/docchat/internal/domain"
)

type SuccessResponse struct {
	Data any `json:"data"`
}

// ErrorResponse carries the user-facing message and, when known, the domain
// error code.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

var statusByCode = map[string]int{
	domain.ErrCodeValidation:        http.StatusBadRequest,
	domain.ErrCodeNotFound:          http.StatusNotFound,
	domain.ErrCodeInvalidTransition: http.StatusConflict,
	domain.ErrCodeIngestionFailed:   http.StatusUnprocessableEntity,
	domain.ErrCodeConfiguration:     http.StatusServiceUnavailable,
	domain.ErrCodeTransient:         http.StatusBadGateway,
}

// ErrInvalidBody is returned by DecodeJSON for empty or malformed bodies.
var ErrInvalidBody = errors.New("invalid request body")

func JSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func Success(w http.ResponseWriter, status int, data any) {
	JSON(w, status, SuccessResponse{Data: data})
}

// Error writes a message without a domain code. 400 responses are tagged as
// validation errors so clients can branch on code alone.
func Error(w http.ResponseWriter, status int, message string) {
	resp := ErrorResponse{Error: message}
	if status == http.StatusBadRequest {
		resp.Code = domain.ErrCodeValidation
	}
	JSON(w, status, resp)
}

// DomainErrorToHTTP maps an error to its response status. Deadlines win over
// the domain code because the caller gave up waiting on an upstream.
func DomainErrorToHTTP(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	if status, ok := statusByCode[domain.ErrorCode(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func HandleError(w http.ResponseWriter, err error) {
	JSON(w, DomainErrorToHTTP(err), ErrorResponse{
		Error: domain.UserMessage(err),
		Code:  domain.ErrorCode(err),
	})
}

// DecodeJSON reads a single JSON value from the request body into v. A body
// cut off by http.MaxBytesReader comes back as *http.MaxBytesError; any other
// failure is ErrInvalidBody.
func DecodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return nil
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return err
	}
	return ErrInvalidBody
}

// BadBody answers a DecodeJSON failure with 413 or 400.
func BadBody(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	Error(w, http.StatusBadRequest, err.Error())
}
