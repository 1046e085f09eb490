// Package errors implements the gateway's error taxonomy: a small set of
// type tags, each bound to an HTTP status code and a JSON body shape shared
// by both client protocols the gateway speaks.
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Type tags the semantic category of an AppError, independent of its HTTP
// status code.
type Type string

const (
	TypeAuth         Type = "auth"
	TypeValidation   Type = "validation"
	TypeInvalidModel Type = "invalid_model"
	TypeKiroAPI      Type = "kiro_api_error"
	TypeConfig       Type = "config"
	TypeInternal     Type = "internal"
)

// AppError is the gateway's structured error type. It implements `error`,
// carries the HTTP status to send, and renders as
// `{"error":{"message":...,"type":...}}` on the wire.
type AppError struct {
	HTTPStatusCode int  `json:"-"`
	ErrType        Type `json:"-"`
	Message        string `json:"-"`
	// UpstreamStatus is set only for TypeKiroAPI: the status code the
	// upstream returned after all retries were exhausted.
	UpstreamStatus int   `json:"-"`
	Err            error `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// body is the wire shape of an error response, shared by both client
// protocols per spec.
type body struct {
	Error struct {
		Message string `json:"message"`
		Type    Type   `json:"type"`
	} `json:"error"`
}

// ToJSON renders the `{"error":{"message":...,"type":...}}` wire body.
func (e *AppError) ToJSON() []byte {
	var b body
	b.Error.Message = e.Message
	b.Error.Type = e.ErrType
	out, _ := json.Marshal(b)
	return out
}

// New constructs an AppError of the given type with an explicit HTTP status.
func New(status int, errType Type, message string, err error) *AppError {
	return &AppError{HTTPStatusCode: status, ErrType: errType, Message: message, Err: err}
}

// Auth builds a 401 `auth` error: client secret missing/wrong, or the
// upstream token refresh permanently failed.
func Auth(message string, err error) *AppError {
	return New(http.StatusUnauthorized, TypeAuth, message, err)
}

// Validation builds a 400 `validation` error: request shape invalid.
func Validation(message string) *AppError {
	return New(http.StatusBadRequest, TypeValidation, message, nil)
}

// InvalidModel builds a 400 `invalid_model` error. Currently unused by any
// handler — passthrough resolution is preferred — but kept for parity with
// the upstream's reserved error variant.
func InvalidModel(message string) *AppError {
	return New(http.StatusBadRequest, TypeInvalidModel, message, nil)
}

// KiroAPIError builds a `kiro_api_error` that mirrors the upstream's status
// code, clamped to a valid HTTP status when the upstream sends garbage.
func KiroAPIError(status int, respBody string) *AppError {
	httpStatus := status
	if httpStatus < 100 || httpStatus > 599 {
		httpStatus = http.StatusInternalServerError
	}
	return &AppError{
		HTTPStatusCode: httpStatus,
		ErrType:        TypeKiroAPI,
		Message:        fmt.Sprintf("upstream returned status %d: %s", status, respBody),
		UpstreamStatus: status,
	}
}

// Config builds a 500 `config` error: unrecoverable configuration problem
// detected late (i.e. not at startup validation time).
func Config(message string, err error) *AppError {
	return New(http.StatusInternalServerError, TypeConfig, message, err)
}

// Internal builds a 500 `internal` error: panics, decode failures,
// cancelled upstream bodies.
func Internal(message string, err error) *AppError {
	return New(http.StatusInternalServerError, TypeInternal, message, err)
}

// AsAppError unwraps err into an *AppError if possible, otherwise wraps it
// as a generic internal error.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*AppError); ok {
		return ae
	}
	return Internal(err.Error(), err)
}
