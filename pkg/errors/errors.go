package errors

import (
	"errors"
	"fmt"
)

// Code is the coarse classification of a device operation failure.
type Code string

const (
	// CodeInvalidArgument marks malformed or misaligned requests and
	// illegal zone operation targets. Detected before any backend is
	// invoked; never forwarded to hardware.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// CodeUnsupported marks operations not implemented by the bound
	// backend, such as emulation-only calls on a real device.
	CodeUnsupported Code = "UNSUPPORTED"

	// CodeNotZoned marks zone operations aimed at a non-zoned device or a
	// conventional zone.
	CodeNotZoned Code = "NOT_ZONED"

	// CodeDeviceError marks a command failure reported by the backend or
	// transport.
	CodeDeviceError Code = "DEVICE_ERROR"

	// CodeIOError marks a data transfer failure, distinct from a command
	// failure.
	CodeIOError Code = "IO_ERROR"

	// CodeOpenFailure marks a failed device open: no viable backend, bad
	// path, or invalid geometry.
	CodeOpenFailure Code = "OPEN_FAILURE"
)

// SenseInfo carries the SCSI sense data of a failed pass-through command.
type SenseInfo struct {
	Key  uint8 `json:"key"`
	ASC  uint8 `json:"asc"`
	ASCQ uint8 `json:"ascq"`
}

// String formats the sense data in the conventional hex triple form.
func (s SenseInfo) String() string {
	return fmt.Sprintf("sense %02xh/%02xh/%02xh", s.Key, s.ASC, s.ASCQ)
}

// Error is a structured device operation error. The zero value is not
// meaningful; use New or one of the constructors.
type Error struct {
	// Code is the coarse error class.
	Code Code `json:"code"`

	// Message is the human-readable diagnostic text.
	Message string `json:"message"`

	// Op names the operation that failed ("report-zones", "write", ...).
	Op string `json:"op,omitempty"`

	// Path is the device path when known.
	Path string `json:"path,omitempty"`

	// Backend names the backend that produced the error.
	Backend string `json:"backend,omitempty"`

	// Errno is the backend-specific diagnostic code, preserved verbatim
	// (an OS errno for the block and emulation backends).
	Errno int `json:"errno,omitempty"`

	// Sense is the SCSI sense data for pass-through command failures.
	Sense *SenseInfo `json:"sense,omitempty"`

	// Cause is the underlying error, if any.
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	s := string(e.Code)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Sense != nil {
		s += " (" + e.Sense.String() + ")"
	} else if e.Errno != 0 {
		s += fmt.Sprintf(" (errno %d)", e.Errno)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by class so callers can compare against the sentinel
// class errors below with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

// Sentinel class errors for use with errors.Is.
var (
	ErrInvalidArgument = &Error{Code: CodeInvalidArgument}
	ErrUnsupported     = &Error{Code: CodeUnsupported}
	ErrNotZoned        = &Error{Code: CodeNotZoned}
	ErrDeviceError     = &Error{Code: CodeDeviceError}
	ErrIOError         = &Error{Code: CodeIOError}
	ErrOpenFailure     = &Error{Code: CodeOpenFailure}
)

// New creates an error of the given class.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error of the given class with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// InvalidArgumentf builds an invalid-argument error.
func InvalidArgumentf(format string, args ...interface{}) *Error {
	return Newf(CodeInvalidArgument, format, args...)
}

// Unsupportedf builds an unsupported-operation error.
func Unsupportedf(format string, args ...interface{}) *Error {
	return Newf(CodeUnsupported, format, args...)
}

// NotZonedf builds a not-zoned error.
func NotZonedf(format string, args ...interface{}) *Error {
	return Newf(CodeNotZoned, format, args...)
}

// WithOp records the failing operation name.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithPath records the device path.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithBackend records the backend name.
func (e *Error) WithBackend(backend string) *Error {
	e.Backend = backend
	return e
}

// WithErrno records the backend diagnostic code.
func (e *Error) WithErrno(errno int) *Error {
	e.Errno = errno
	return e
}

// WithSense records SCSI sense data.
func (e *Error) WithSense(key, asc, ascq uint8) *Error {
	e.Sense = &SenseInfo{Key: key, ASC: asc, ASCQ: ascq}
	return e
}

// WithCause records the underlying error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// CodeOf extracts the error class from any error. Errors that did not
// originate in this package classify as device errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeDeviceError
}
