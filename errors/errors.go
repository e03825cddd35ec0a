// Package errors provides error handling for featsmith.
//
// This package re-exports github.com/cockroachdb/errors so that every
// component gets stack traces, hints and marks from one import, and it
// defines the failure taxonomy the pipeline uses to decide between
// retrying, repairing, skipping a unit, or aborting a run.
//
// Usage:
//
//	// Wrap with context
//	if err := os.WriteFile(path, data, 0o644); err != nil {
//	    return errors.MarkIO(errors.Wrapf(err, "write %s", path))
//	}
//
//	// Classify
//	if errors.Is(err, errors.ErrOversizeRequest) {
//	    budget /= 2
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Marks attach a reference error to another error so errors.Is matches the
// reference without changing the message.
var (
	Mark          = crdb.Mark
	CombineErrors = crdb.CombineErrors
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// ErrInvalidRequest indicates the caller passed unusable input
var ErrInvalidRequest = New("invalid request")

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrInvalidRequest)
}
