package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across adapters (stores, caches, blob storage).
var (
	ErrNotFound     = errors.New("not found")
	ErrWSDisconnect = errors.New("websocket disconnected")
	ErrContextDone  = errors.New("context cancelled")
)

// ErrorCode is a stable machine-readable identifier for structural pipeline
// failures. Codes never change once released; callers may switch on them.
type ErrorCode string

const (
	// CodeDataNotLoaded is returned by a backtest data provider when GetData
	// is called before LoadData.
	CodeDataNotLoaded ErrorCode = "DATA_NOT_LOADED"

	// CodeDateRange is returned when a requested timestamp falls outside the
	// loaded series span.
	CodeDateRange ErrorCode = "DATE_RANGE"

	// CodeUnsupportedRequirement is returned when a mode requires data the
	// provider cannot supply.
	CodeUnsupportedRequirement ErrorCode = "UNSUPPORTED_REQUIREMENT"

	// CodeConfiguration is returned for undeclared mode/asset/share-class
	// combinations.
	CodeConfiguration ErrorCode = "CONFIGURATION"

	// CodePnLCalculator is returned when an input exposure snapshot is
	// structurally invalid.
	CodePnLCalculator ErrorCode = "PNL_CALCULATOR"

	// CodeInvalidSnapshot is returned when a position snapshot lacks one of
	// its fixed top-level categories.
	CodeInvalidSnapshot ErrorCode = "INVALID_SNAPSHOT"

	// CodeVenueTimeout marks a venue fetch that exceeded its deadline. It is
	// only fatal under strict reconciliation; otherwise it degrades to a
	// stale-data warning.
	CodeVenueTimeout ErrorCode = "VENUE_TIMEOUT"
)

// Error is a typed pipeline error carrying a stable code alongside a
// human-readable message. Structural failures (canonical-schema
// violations) are always raised as *Error so callers can surface
// code+message and abort the tick.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf constructs a coded error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a code and message to an underlying error.
func WrapError(code ErrorCode, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the ErrorCode from err, or "" when err carries none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
