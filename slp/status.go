package slp

import (
	"fmt"

	"github.com/srvloc/srvloc/wire"
)

// Status mirrors the SLP API error enumeration: 0 is success, 1 is
// the non-error last-call marker, everything else is negative.
type Status int16

const (
	StatusOK                   Status = 0
	StatusLastCall             Status = 1
	StatusLanguageNotSupported Status = -1
	StatusParseError           Status = -2
	StatusInvalidRegistration  Status = -3
	StatusScopeNotSupported    Status = -4
	StatusAuthenticationAbsent Status = -6
	StatusAuthenticationFailed Status = -7
	StatusInvalidUpdate        Status = -13
	StatusRefreshRejected      Status = -15
	StatusNotImplemented       Status = -17
	StatusBufferOverflow       Status = -18
	StatusNetworkTimedOut      Status = -19
	StatusNetworkInitFailed    Status = -20
	StatusMemoryAllocFailed    Status = -21
	StatusParameterBad         Status = -22
	StatusNetworkError         Status = -23
	StatusInternalSystemError  Status = -24
	StatusHandleInUse          Status = -25
	StatusTypeError            Status = -26
)

var statusNames = map[Status]string{
	StatusOK:                   "SLP_OK",
	StatusLastCall:             "SLP_LAST_CALL",
	StatusLanguageNotSupported: "SLP_LANGUAGE_NOT_SUPPORTED",
	StatusParseError:           "SLP_PARSE_ERROR",
	StatusInvalidRegistration:  "SLP_INVALID_REGISTRATION",
	StatusScopeNotSupported:    "SLP_SCOPE_NOT_SUPPORTED",
	StatusAuthenticationAbsent: "SLP_AUTHENTICATION_ABSENT",
	StatusAuthenticationFailed: "SLP_AUTHENTICATION_FAILED",
	StatusInvalidUpdate:        "SLP_INVALID_UPDATE",
	StatusRefreshRejected:      "SLP_REFRESH_REJECTED",
	StatusNotImplemented:       "SLP_NOT_IMPLEMENTED",
	StatusBufferOverflow:       "SLP_BUFFER_OVERFLOW",
	StatusNetworkTimedOut:      "SLP_NETWORK_TIMED_OUT",
	StatusNetworkInitFailed:    "SLP_NETWORK_INIT_FAILED",
	StatusMemoryAllocFailed:    "SLP_MEMORY_ALLOC_FAILED",
	StatusParameterBad:         "SLP_PARAMETER_BAD",
	StatusNetworkError:         "SLP_NETWORK_ERROR",
	StatusInternalSystemError:  "SLP_INTERNAL_SYSTEM_ERROR",
	StatusHandleInUse:          "SLP_HANDLE_IN_USE",
	StatusTypeError:            "SLP_TYPE_ERROR",
}

// String returns the classic SLP.h constant name, or UNKNOWN_ERROR for
// out-of-range values.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UNKNOWN_ERROR"
}

// StatusError is a Status carried as an error for synchronous setup
// failures. Mid-stream failures travel in the callback status
// parameter instead.
type StatusError struct {
	Status Status
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return e.Status.String()
	}
	return fmt.Sprintf("%s: %s", e.Status, e.Detail)
}

// Is matches two StatusErrors by status, so
// errors.Is(err, &StatusError{Status: StatusHandleInUse}) works.
func (e *StatusError) Is(target error) bool {
	t, ok := target.(*StatusError)
	return ok && t.Status == e.Status
}

func statusErr(s Status, format string, args ...any) error {
	return &StatusError{Status: s, Detail: fmt.Sprintf(format, args...)}
}

// StatusOf extracts the Status from an error produced by this package,
// or StatusInternalSystemError for foreign errors.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	if se, ok := err.(*StatusError); ok {
		return se.Status
	}
	return StatusInternalSystemError
}

// statusFromWire maps on-the-wire error codes to API statuses. Codes
// with no API counterpart collapse to a generic status rather than
// failing.
func statusFromWire(c wire.ErrorCode) Status {
	switch c {
	case wire.CodeOK:
		return StatusOK
	case wire.CodeLanguageNotSupported:
		return StatusLanguageNotSupported
	case wire.CodeParseError:
		return StatusParseError
	case wire.CodeInvalidRegistration:
		return StatusInvalidRegistration
	case wire.CodeScopeNotSupported:
		return StatusScopeNotSupported
	case wire.CodeAuthAbsent:
		return StatusAuthenticationAbsent
	case wire.CodeAuthUnknown, wire.CodeAuthFailed:
		return StatusAuthenticationFailed
	case wire.CodeInvalidUpdate:
		return StatusInvalidUpdate
	case wire.CodeRefreshRejected:
		return StatusRefreshRejected
	case wire.CodeMsgNotSupported, wire.CodeOptionNotUnderstood:
		return StatusNotImplemented
	}
	return StatusInternalSystemError
}
