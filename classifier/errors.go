// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package classifier

import (
	"errors"
	"fmt"
)

// ErrorType classifies classifier errors.
type ErrorType int

const (
	// ErrorTypeUnknown is an unclassified error.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeNotReady is returned while no model is loaded. It is retryable.
	ErrorTypeNotReady
	// ErrorTypeSchemaMismatch means the model and the feature vectors were
	// built for different feature schemas.
	ErrorTypeSchemaMismatch
	// ErrorTypeInvalidModel means the artifact is malformed.
	ErrorTypeInvalidModel
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeNotReady:
		return "not ready"
	case ErrorTypeSchemaMismatch:
		return "schema mismatch"
	case ErrorTypeInvalidModel:
		return "invalid model"
	default:
		return "unknown"
	}
}

// Error is the error returned by the classifier.
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(t ErrorType, format string, args ...any) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

func errorType(err error) ErrorType {
	var cErr *Error
	if errors.As(err, &cErr) {
		return cErr.Type
	}

	return ErrorTypeUnknown
}

// IsNotReady reports whether err was caused by predicting without a model.
func IsNotReady(err error) bool {
	return errorType(err) == ErrorTypeNotReady
}

// IsSchemaMismatch reports whether err was caused by a feature schema
// mismatch.
func IsSchemaMismatch(err error) bool {
	return errorType(err) == ErrorTypeSchemaMismatch
}

// IsInvalidModel reports whether err was caused by a malformed model.
func IsInvalidModel(err error) bool {
	return errorType(err) == ErrorTypeInvalidModel
}

// IsRetryable reports whether the operation may succeed if retried later.
// Configuration errors are never retryable.
func IsRetryable(err error) bool {
	return IsNotReady(err)
}
