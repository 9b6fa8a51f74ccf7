// Package domainerrors defines the coded error taxonomy shared by services and
// the HTTP layer. Stores return sentinel errors; services translate them into
// coded errors so transport can map codes to status lines without inspecting
// error strings.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error for retry and remediation decisions.
type Code string

const (
	// CodeProtocolViolation marks invalid or replayed nonces, certifier
	// mismatches, and malformed certificates. Never retried.
	CodeProtocolViolation Code = "protocol_violation"

	// CodeNotFound marks a missing revocation outpoint or certificate record.
	// Terminal for the current request; the caller must re-derive state.
	CodeNotFound Code = "not_found"

	// CodeConflict marks a first-writer-wins rejection, e.g. the subject
	// already holds a live certificate.
	CodeConflict Code = "conflict"

	// CodeTransient marks infrastructure failures (wallet or ledger
	// unreachable, timeout). Safe to retry with backoff.
	CodeTransient Code = "transient"

	// CodeConsistency marks a half-completed issuance or revocation that
	// requires reconciliation rather than retry.
	CodeConsistency Code = "consistency"

	CodeBadRequest   Code = "bad_request"
	CodeUnauthorized Code = "unauthorized"
	CodeInternal     Code = "internal"
)

// Error is a coded domain error. Details carries structured context such as
// missing field names or the expected outpoint, so callers can remediate
// without parsing messages.
type Error struct {
	Code    Code
	Message string
	Details map[string]string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithDetail returns the error with an added structured detail.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the human-facing message from err without the code
// prefix, falling back to the raw error string.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

// ToHTTPStatus maps a code to its HTTP status line.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeProtocolViolation, CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
