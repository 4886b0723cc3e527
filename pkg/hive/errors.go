package hive

import (
	"errors"
	"fmt"
)

// Facility is the namespace an error code belongs to.
type Facility int

// Error facilities.
const (
	FacilityGeneral Facility = 1 // codes generated by this package
	FacilitySystem  Facility = 2 // operating system errno values
	FacilityHTTP    Facility = 3 // HTTP status codes reported by a backend
	FacilityDriver  Facility = 4 // driver-specific codes
)

func (f Facility) String() string {
	switch f {
	case FacilityGeneral:
		return "general"
	case FacilitySystem:
		return "system"
	case FacilityHTTP:
		return "http"
	case FacilityDriver:
		return "driver"
	default:
		return fmt.Sprintf("facility(%d)", int(f))
	}
}

// Code is a numeric error code within a Facility.
type Code int

// General error codes.
const (
	CodeInvalidArgs   Code = 1
	CodeWrongState    Code = 2
	CodeNotReady      Code = 3
	CodeNotSupported  Code = 4
	CodeNotExists     Code = 5
	CodeAlreadyExists Code = 6
	CodeUncommitted   Code = 7
	CodeUnknown       Code = 8
)

var generalMessages = map[Code]string{
	CodeInvalidArgs:   "invalid arguments",
	CodeWrongState:    "wrong state",
	CodeNotReady:      "not ready",
	CodeNotSupported:  "not supported",
	CodeNotExists:     "not exists",
	CodeAlreadyExists: "already exists",
	CodeUncommitted:   "pending writes discarded on close",
	CodeUnknown:       "unknown error",
}

// Error is a structured failure: a facility/code pair plus optional
// operation name and cause. Two Errors match under errors.Is when their
// facility and code are equal, so the package sentinels can be compared
// against errors carrying extra context.
type Error struct {
	Facility Facility
	Code     Code
	Op       string // operation that failed, e.g. "client.login"
	Err      error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := e.message()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}

	if e.Err != nil {
		return "hive: " + msg + ": " + e.Err.Error()
	}

	return "hive: " + msg
}

func (e *Error) message() string {
	if e.Facility == FacilityGeneral {
		if m, ok := generalMessages[e.Code]; ok {
			return m
		}
	}

	return fmt.Sprintf("%s error %d", e.Facility, int(e.Code))
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same facility and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}

	return e.Facility == t.Facility && e.Code == t.Code
}

// Sentinel errors. Use errors.Is(err, hive.ErrNotReady) to check.
var (
	ErrInvalidArgs   = &Error{Facility: FacilityGeneral, Code: CodeInvalidArgs}
	ErrWrongState    = &Error{Facility: FacilityGeneral, Code: CodeWrongState}
	ErrNotReady      = &Error{Facility: FacilityGeneral, Code: CodeNotReady}
	ErrNotSupported  = &Error{Facility: FacilityGeneral, Code: CodeNotSupported}
	ErrNotExists     = &Error{Facility: FacilityGeneral, Code: CodeNotExists}
	ErrAlreadyExists = &Error{Facility: FacilityGeneral, Code: CodeAlreadyExists}
	ErrUncommitted   = &Error{Facility: FacilityGeneral, Code: CodeUncommitted}
)

// newError builds a general-facility error for op with an optional cause.
func newError(code Code, op string, cause error) *Error {
	return &Error{Facility: FacilityGeneral, Code: code, Op: op, Err: cause}
}

// NewError builds a general-facility error. Drivers use it to report
// CodeNotExists and CodeAlreadyExists under their own operation name.
func NewError(code Code, op string, cause error) error {
	return newError(code, op, cause)
}

// CodeOf returns the facility and code carried by err. Errors that are not
// an *Error anywhere in their chain report (FacilityGeneral, CodeUnknown).
// A nil error reports (0, 0).
func CodeOf(err error) (Facility, Code) {
	if err == nil {
		return 0, 0
	}

	var he *Error
	if errors.As(err, &he) {
		return he.Facility, he.Code
	}

	return FacilityGeneral, CodeUnknown
}

// HTTPError wraps cause with an HTTP status code in FacilityHTTP. Drivers
// over HTTP APIs use it to preserve the original status for callers.
func HTTPError(status int, op string, cause error) error {
	return &Error{Facility: FacilityHTTP, Code: Code(status), Op: op, Err: cause}
}
