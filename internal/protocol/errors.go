package protocol

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a synthesis failure for callers.
type ErrorKind string

const (
	// Client-caused, never retried, never reach the backend.
	KindMissingText         ErrorKind = "missing_text"
	KindUnknownVoice        ErrorKind = "unknown_voice"
	KindParameterOutOfRange ErrorKind = "parameter_out_of_range"

	// Backend failures; abort the session without retry.
	KindBackendUnavailable   ErrorKind = "backend_unavailable"
	KindBackendProtocolError ErrorKind = "backend_protocol_error"

	// Client disconnect or timeout; not reported to the caller.
	KindSessionCancelled ErrorKind = "session_cancelled"
)

// Error is a classified synthesis error.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Errorf builds a classified error.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError classifies an underlying error.
func WrapError(kind ErrorKind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: err}
}

// KindOf extracts the ErrorKind from err, if it carries one.
func KindOf(err error) (ErrorKind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}

// IsClientError reports whether the kind maps to a 4xx response.
func (k ErrorKind) IsClientError() bool {
	switch k {
	case KindMissingText, KindUnknownVoice, KindParameterOutOfRange:
		return true
	}
	return false
}
