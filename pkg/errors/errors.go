package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code     ErrorCode `json:"code"`
	Message  string    `json:"message"`
	Status   int       `json:"status,omitempty"`
	Redirect string    `json:"redirect,omitempty"`
	Err      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode maps the error code to the HTTP status the portal answers with.
func (e *AppError) StatusCode() int {
	switch e.Code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrBadRequest, ErrValidation:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrConflict:
		return http.StatusConflict
	case ErrNavigation:
		return http.StatusUnprocessableEntity
	case ErrRemote:
		if e.Status >= 400 && e.Status < 600 {
			return e.Status
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrValidation
	ErrRemote
	ErrConflict
	ErrNavigation
)

// FallbackMessage is shown when the upstream gives no usable message.
const FallbackMessage = "unexpected error communicating with the server"

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:     ErrUnauthorized,
		Message:  "unauthorized",
		Redirect: "/login",
		Err:      err,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Code:    ErrForbidden,
		Message: message,
	}
}

// Validation wraps a client-side validation failure. These never reach the network.
func Validation(err error) *AppError {
	return &AppError{
		Code:    ErrValidation,
		Message: err.Error(),
		Err:     err,
	}
}

// Conflict reports an operation that is illegal in the current state.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    ErrConflict,
		Message: message,
	}
}

// Navigation is a hard stop: the caller must send the user to redirect.
func Navigation(message, redirect string) *AppError {
	return &AppError{
		Code:     ErrNavigation,
		Message:  message,
		Redirect: redirect,
	}
}

// Unavailable reports a transport failure or an open circuit towards the
// clinic API.
func Unavailable(err error) *AppError {
	return &AppError{
		Code:    ErrRemote,
		Message: FallbackMessage,
		Status:  http.StatusServiceUnavailable,
		Err:     err,
	}
}

// Remote builds an error for a non-2xx upstream answer, taking the message
// from the body when the body carries one.
func Remote(status int, body []byte) *AppError {
	msg := MessageFromBody(body)
	if msg == "" {
		msg = FallbackMessage
	}
	if status == http.StatusUnauthorized {
		return &AppError{Code: ErrUnauthorized, Message: msg, Status: status, Redirect: "/login"}
	}
	if status == http.StatusNotFound {
		return &AppError{Code: ErrNotFound, Message: msg, Status: status}
	}
	return &AppError{Code: ErrRemote, Message: msg, Status: status}
}

// MessageFromBody extracts a human message from an upstream error body.
// Accepted shapes: {"message": "..."}, {"message": ["...", "..."]},
// {"error": "..."} and {"error": {"message": "..."}}.
func MessageFromBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if msg := rawMessage(payload["message"]); msg != "" {
		return msg
	}
	if raw, ok := payload["error"]; ok {
		if msg := rawMessage(raw); msg != "" {
			return msg
		}
		var nested struct {
			Message json.RawMessage `json:"message"`
		}
		if err := json.Unmarshal(raw, &nested); err == nil {
			return rawMessage(nested.Message)
		}
	}
	return ""
}

func rawMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.TrimSpace(strings.Join(list, "; "))
	}
	return ""
}

// As reports whether err carries an *AppError and returns it.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries an *AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// UserMessage returns the message the user should see for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if appErr, ok := As(err); ok {
		return appErr.Message
	}
	return FallbackMessage
}
