// Package apierror defines the typed error returned by every star ledger operation.
//
// An Error carries the numeric code and message the ledger server (or a local
// validation step) produced. Codes follow HTTP conventions: 400 for caller
// mistakes, 401/403 for credentials, 5xx for server or local failures.
package apierror

import (
	"context"
	"errors"
	"fmt"
)

// Error is a ledger error with a numeric code and a message.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// New returns an error with the given code and message.
func New(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf returns an error with a formatted message.
func Errorf(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Is reports whether target is an *Error with the same code and message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// ErrRequestAborted is delivered to queries abandoned before their response was handled.
var ErrRequestAborted = New(500, "Request aborted")

// FromError converts any error into an *Error, preserving typed errors as-is.
// Context cancellation maps to ErrRequestAborted; anything else becomes a 500.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrRequestAborted
	}
	return New(500, err.Error())
}

// Code returns the code of err, or 0 when err is nil.
func Code(err error) int {
	if err == nil {
		return 0
	}
	return FromError(err).Code
}
