// Package payerr defines the error taxonomy for the payment pipeline.
// Every provider or transport error is converted into one of these kinds
// at the call site; raw transport errors never reach callers.
package payerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a payment pipeline error.
type Kind int

const (
	// KindAuthRequired means no usable auth credential is available.
	// Fatal to the whole pipeline; the caller must re-authenticate.
	KindAuthRequired Kind = iota
	// KindValidationFailed means one or more input fields failed validation.
	// Recoverable; blocks only the current operation.
	KindValidationFailed
	// KindProviderError means an upstream provider rejected or failed the call.
	// Recoverable; the current stage is re-offered.
	KindProviderError
	// KindExpired means a quote or session passed its validity window.
	// Recoverable by restarting the relevant stage.
	KindExpired
	// KindStaleResult means an async result arrived for state that is no
	// longer current. Internal consistency guard, never shown to users.
	KindStaleResult
)

func (k Kind) String() string {
	switch k {
	case KindAuthRequired:
		return "auth_required"
	case KindValidationFailed:
		return "validation_failed"
	case KindProviderError:
		return "provider_error"
	case KindExpired:
		return "expired"
	case KindStaleResult:
		return "stale_result"
	default:
		return "unknown"
	}
}

// Error is a classified payment pipeline error.
type Error struct {
	Kind    Kind
	Message string
	// Fields carries per-field validation messages for KindValidationFailed.
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for field, msg := range e.Fields {
			parts = append(parts, field+": "+msg)
		}
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, strings.Join(parts, "; "))
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AuthRequired builds a fatal auth error.
func AuthRequired(message string) *Error {
	return &Error{Kind: KindAuthRequired, Message: message}
}

// ValidationFailed builds a per-field validation error.
func ValidationFailed(message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidationFailed, Message: message, Fields: fields}
}

// Provider wraps an upstream failure.
func Provider(message string, err error) *Error {
	return &Error{Kind: KindProviderError, Message: message, Err: err}
}

// Expired builds an expiry error for a quote or session.
func Expired(message string) *Error {
	return &Error{Kind: KindExpired, Message: message}
}

// Stale builds an internal stale-result marker.
func Stale(message string) *Error {
	return &Error{Kind: KindStaleResult, Message: message}
}

// IsKind reports whether err is a payment error of the given kind.
func IsKind(err error, kind Kind) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// FieldErrors returns per-field validation messages if err carries them.
func FieldErrors(err error) map[string]string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Fields
	}
	return nil
}
