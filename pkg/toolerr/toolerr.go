// Package toolerr defines the typed failures returned by the model and chat
// operations, and their rendering into the text returned to the caller.
package toolerr

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind classifies a failure.
type Kind int

// Kinds of failures
const (
	// Validation is a rejected caller argument, no backend call was made.
	Validation Kind = iota + 1
	// Backend is a failure reported by the model-serving endpoint after all retries.
	Backend
	// Configuration is a missing or invalid server setting.
	Configuration
	// MalformedResponse is a backend answer without the expected payload.
	MalformedResponse
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Backend:
		return "backend"
	case Configuration:
		return "configuration"
	case MalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// Error is a failure of a tool operation.
type Error struct {
	Kind Kind
	// Op describes the backend operation, for example "listing models".
	// Used by Backend errors only.
	Op string
	// Message is the text presented to the caller.
	Message string
	// Cause is the underlying error, if any.
	Cause error
}

func (e *Error) Error() string {
	if e.Kind == Backend {
		cause := "unknown error"
		if e.Cause != nil {
			cause = e.Cause.Error()
		}
		return fmt.Sprintf("Error %s: %s", e.Op, cause)
	}
	return "Error: " + e.Message
}

// Unwrap returns the cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Messages shown to the caller
const (
	MsgInvalidModelName = "Invalid model name provided."
	MsgEmptyMessage     = "Empty message provided."
	MsgEmptyPrompt      = "Empty prompt provided."
	MsgNoResponse       = "No response received from model"
	MsgNoDefaultModel   = "No default model configured. Set DEFAULT_MODEL environment variable."
)

// Newf returns a non-backend error of the given kind.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// InvalidModelName is returned when the model argument is missing or blank.
func InvalidModelName() *Error {
	return Newf(Validation, MsgInvalidModelName)
}

// NoResponse is returned when the backend answered without content.
func NoResponse() *Error {
	return Newf(MalformedResponse, MsgNoResponse)
}

// NoDefaultModel is returned when no default model is configured.
func NoDefaultModel() *Error {
	return Newf(Configuration, MsgNoDefaultModel)
}

// WrapBackend wraps the last cause of a failed backend operation.
func WrapBackend(cause error, op string) *Error {
	return &Error{
		Kind:  Backend,
		Op:    op,
		Cause: errors.WithStack(cause),
	}
}

// KindOf returns the Kind of err, or 0 if err is not a tool error.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return 0
}

// Text renders err as the text returned to the caller.
// Errors that are not tool errors are rendered with the plain "Error: " prefix.
func Text(err error) string {
	if err == nil {
		return ""
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Error()
	}
	return "Error: " + err.Error()
}
