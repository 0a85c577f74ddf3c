package formula

import "fmt"

// ErrorCode identifies a class of engine failure. Codes are stable and
// surface verbatim in HTTP error payloads.
type ErrorCode string

const (
	CodeParse       ErrorCode = "PARSE_ERROR"
	CodeValidation  ErrorCode = "VALIDATION_ERROR"
	CodeUnknownFunc ErrorCode = "UNKNOWN_FUNCTION"
	CodeArity       ErrorCode = "ARITY_MISMATCH"
	CodeType        ErrorCode = "TYPE_MISMATCH"
	CodeUndefined   ErrorCode = "UNDEFINED_NAME"
	CodeArithmetic  ErrorCode = "ARITHMETIC"
	CodeHitPolicy   ErrorCode = "HIT_POLICY_VIOLATION"
	CodeTimeout     ErrorCode = "TIMEOUT"
	CodeInternal    ErrorCode = "INTERNAL_ERROR"
)

// Span marks a half-open byte range [Start, End) in the formula source.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Error is a structured engine error carrying a code and, when known,
// the source span that produced it.
type Error struct {
	Code    ErrorCode
	Message string
	Span    Span
	Err     error
}

func newError(code ErrorCode, span Span, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Span:    span,
	}
}

func (e *Error) Error() string {
	if e.Span.End > 0 || e.Span.Start > 0 {
		return fmt.Sprintf("%s at position %d: %s", e.Code, e.Span.Start, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Position returns the byte offset at which the error was raised.
func (e *Error) Position() int {
	return e.Span.Start
}
