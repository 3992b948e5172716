package hlogstore

import "fmt"

// ErrorCode enumerates the fatal error categories recovery can fail with.
type ErrorCode int

const (
	// Unknown represents an unspecified error condition.
	Unknown ErrorCode = iota
	// NoCheckpoint means no checkpoint folder parses as a valid token.
	NoCheckpoint
	// CorruptMetadata means an info.dat file failed to parse.
	CorruptMetadata
	// MissingMarker means a checkpoint folder lacks its completed.dat marker.
	MissingMarker
	// Incompatible means the index checkpoint's cut-point falls after the log checkpoint's tail.
	Incompatible
	// IoFailed means the device layer reported a non-zero error code.
	IoFailed
)

func (c ErrorCode) String() string {
	switch c {
	case NoCheckpoint:
		return "NoCheckpoint"
	case CorruptMetadata:
		return "CorruptMetadata"
	case MissingMarker:
		return "MissingMarker"
	case Incompatible:
		return "Incompatible"
	case IoFailed:
		return "IoFailed"
	default:
		return "Unknown"
	}
}

// Error is a store-specific error carrying a code, the wrapped cause, and optional user data
// (e.g. the offending token or page number) for diagnostics.
type Error struct {
	Code     ErrorCode
	Err      error
	UserData any
}

// Error implements the error interface by formatting the code, user data, and wrapped details.
func (e *Error) Error() string {
	return fmt.Errorf("hlogstore: %s, user data: %v, details: %w", e.Code, e.UserData, e.Err).Error()
}

// Unwrap allows errors.Is/As to see through to the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError constructs a fatal recovery Error.
func NewError(code ErrorCode, userData any, err error) *Error {
	return &Error{Code: code, Err: err, UserData: userData}
}
