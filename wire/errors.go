package wire

// ErrorCode is an on-the-wire SLP error value, RFC 2608 section 7.
type ErrorCode uint16

const (
	CodeOK                   ErrorCode = 0
	CodeLanguageNotSupported ErrorCode = 1
	CodeParseError           ErrorCode = 2
	CodeInvalidRegistration  ErrorCode = 3
	CodeScopeNotSupported    ErrorCode = 4
	CodeAuthUnknown          ErrorCode = 5
	CodeAuthAbsent           ErrorCode = 6
	CodeAuthFailed           ErrorCode = 7
	CodeVersionNotSupported  ErrorCode = 9
	CodeInternalError        ErrorCode = 10
	CodeDABusyNow            ErrorCode = 11
	CodeOptionNotUnderstood  ErrorCode = 12
	CodeInvalidUpdate        ErrorCode = 13
	CodeMsgNotSupported      ErrorCode = 14
	CodeRefreshRejected      ErrorCode = 15
)
