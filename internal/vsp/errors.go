package vsp

import (
	"errors"
	"fmt"
)

// ErrorCode identifies the class of a conversion failure.
type ErrorCode string

// ErrorCode constants for conversion errors.
const (
	ErrCodeDeviceNotFound      ErrorCode = "DEVICE_NOT_FOUND"
	ErrCodeIPNameMismatch      ErrorCode = "IP_NAME_MISMATCH"
	ErrCodeEntityNotFound      ErrorCode = "ENTITY_NOT_FOUND"
	ErrCodeTopologyConflict    ErrorCode = "TOPOLOGY_CONFLICT"
	ErrCodeLinkSetupFailed     ErrorCode = "LINK_SETUP_FAILED"
	ErrCodeUnsupportedFormat   ErrorCode = "UNSUPPORTED_FORMAT"
	ErrCodeUnsupportedGeometry ErrorCode = "UNSUPPORTED_GEOMETRY"
	ErrCodePadConfigRejected   ErrorCode = "PAD_CONFIG_REJECTED"
	ErrCodeQueueRequestFailed  ErrorCode = "QUEUE_REQUEST_FAILED"
	ErrCodeConversionTimeout   ErrorCode = "CONVERSION_TIMEOUT"
	ErrCodeConversionIO        ErrorCode = "CONVERSION_IO_ERROR"
)

// Sentinels for errors.Is. Only the code is compared.
var (
	ErrDeviceNotFound      = &Error{Code: ErrCodeDeviceNotFound, Message: "device not found"}
	ErrIPNameMismatch      = &Error{Code: ErrCodeIPNameMismatch, Message: "ip name mismatch"}
	ErrEntityNotFound      = &Error{Code: ErrCodeEntityNotFound, Message: "entity not found"}
	ErrTopologyConflict    = &Error{Code: ErrCodeTopologyConflict, Message: "topology conflict"}
	ErrLinkSetupFailed     = &Error{Code: ErrCodeLinkSetupFailed, Message: "link setup failed"}
	ErrUnsupportedFormat   = &Error{Code: ErrCodeUnsupportedFormat, Message: "unsupported format"}
	ErrUnsupportedGeometry = &Error{Code: ErrCodeUnsupportedGeometry, Message: "unsupported geometry"}
	ErrPadConfigRejected   = &Error{Code: ErrCodePadConfigRejected, Message: "pad configuration rejected"}
	ErrQueueRequestFailed  = &Error{Code: ErrCodeQueueRequestFailed, Message: "queue request failed"}
	ErrConversionTimeout   = &Error{Code: ErrCodeConversionTimeout, Message: "conversion timed out"}
	ErrConversionIO        = &Error{Code: ErrCodeConversionIO, Message: "conversion i/o error"}
)

// Error is a conversion failure. Stage names the part of the pipeline that
// failed, e.g. "input", "output", "resize" or "media".
type Error struct {
	Code    ErrorCode
	Stage   string
	Message string
	Cause   error
}

func newError(code ErrorCode, stage string, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Stage:   stage,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Stage != "" {
		msg = fmt.Sprintf("[%s] %s: %s", e.Code, e.Stage, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// HasCode reports whether err is or wraps an *Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
