package core

import (
	"errors"
	"fmt"
)

// Class groups error codes into the resolution, source and alignment families.
type Class string

const (
	ClassResolution Class = "resolution"
	ClassSource     Class = "source"
	ClassAlignment  Class = "alignment"
	ClassConfig     Class = "config"
)

// Hop names the directory lookup step a resolution failure happened at.
type Hop string

const (
	HopSignal     Hop = "signal"
	HopAccess     Hop = "access"
	HopConnection Hop = "connection"
	HopCredential Hop = "credential"
)

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Class   Class
	Message string
	Cause   error

	// Signal is the originating signal, if known.
	Signal SignalID
	// Hop is set for resolution failures.
	Hop Hop
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Signal != "" {
		msg = fmt.Sprintf("%s (signal=%s", msg, e.Signal)
		if e.Hop != "" {
			msg += ", hop=" + string(e.Hop)
		}
		msg += ")"
	} else if e.Hop != "" {
		msg = fmt.Sprintf("%s (hop=%s)", msg, e.Hop)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// ForSignal returns a copy of e attributed to the given signal.
func (e *Error) ForSignal(id SignalID) *Error {
	c := *e
	c.Signal = id
	return &c
}

// AtHop returns a copy of e tagged with the failing lookup hop.
func (e *Error) AtHop(h Hop) *Error {
	c := *e
	c.Hop = h
	return &c
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Class:   base.Class,
		Message: base.Message,
		Cause:   cause,
	}
}

// Errorf wraps base with a formatted cause.
func Errorf(base *Error, format string, args ...any) *Error {
	return WrapError(base, fmt.Errorf(format, args...))
}

// AsError extracts the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable reports whether the caller may retry the failed operation.
// Only connection errors qualify.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConnection)
}

// Predefined errors
var (
	// Resolution errors
	ErrNotFound            = &Error{Code: "NOT_FOUND", Class: ClassResolution, Message: "no historical access entry"}
	ErrAmbiguousAccess     = &Error{Code: "AMBIGUOUS_ACCESS", Class: ClassResolution, Message: "more than one access candidate"}
	ErrMalformedDescriptor = &Error{Code: "MALFORMED_DESCRIPTOR", Class: ClassResolution, Message: "malformed access description"}

	// Source errors
	ErrConnection = &Error{Code: "CONNECTION_ERROR", Class: ClassSource, Message: "source connection failed"}
	ErrAuth       = &Error{Code: "AUTH_ERROR", Class: ClassSource, Message: "source authentication failed"}
	ErrQuery      = &Error{Code: "QUERY_ERROR", Class: ClassSource, Message: "source query rejected"}

	// Alignment errors
	ErrDisjointRanges           = &Error{Code: "DISJOINT_RANGES", Class: ClassAlignment, Message: "series ranges do not overlap"}
	ErrInsufficientSamples      = &Error{Code: "INSUFFICIENT_SAMPLES", Class: ClassAlignment, Message: "fewer than two usable samples"}
	ErrUnsupportedInterpolation = &Error{Code: "UNSUPPORTED_INTERPOLATION", Class: ClassAlignment, Message: "unsupported interpolation"}
	ErrUnsortedSeries           = &Error{Code: "UNSORTED_SERIES", Class: ClassAlignment, Message: "series not strictly ascending"}
	ErrGridMismatch             = &Error{Code: "GRID_MISMATCH", Class: ClassAlignment, Message: "aligned series do not share a grid"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Class: ClassConfig, Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Class: ClassConfig, Message: "required configuration missing"}
)
