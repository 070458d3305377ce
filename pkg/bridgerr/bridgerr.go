package bridgerr

import "fmt"

// PostgreSQL SQLSTATE codes surfaced by the gateway.
const (
	CodeSyntaxError           = "42601"
	CodeInsufficientPrivilege = "42501"
	CodeConnectionFailure     = "08006"
	CodeQueryCanceled         = "57014"
	CodeUndefinedTable        = "42P01"
	CodeInvalidParameterValue = "22023"
	CodeTooManyConnections    = "53300"
	CodeProtocolViolation     = "08P01"
	CodeInternalError         = "XX000"
)

const (
	SeverityError = "ERROR"
	SeverityFatal = "FATAL"
)

var codeDescriptionMap = map[string]string{
	CodeSyntaxError:           "syntax error",
	CodeInsufficientPrivilege: "insufficient privilege",
	CodeConnectionFailure:     "connection failure",
	CodeQueryCanceled:         "query canceled",
	CodeUndefinedTable:        "undefined table",
	CodeInvalidParameterValue: "invalid parameter value",
	CodeTooManyConnections:    "too many connections",
	CodeProtocolViolation:     "protocol violation",
	CodeInternalError:         "internal error",
}

func GetMessageByCode(code string) string {
	if rep, ok := codeDescriptionMap[code]; ok {
		return rep
	}
	return "unexpected error"
}

var _ error = &PGError{}

// PGError is the error shape the gateway sends to clients: a severity,
// a five-character SQLSTATE code, the human message and optional
// detail/hint fields.
type PGError struct {
	Severity string
	Code     string
	Message  string
	Detail   string
	Hint     string
}

func (e *PGError) Error() string {
	return fmt.Sprintf("%s: %s (SQLSTATE %s)", e.Severity, e.Message, e.Code)
}

func New(code string, message string) *PGError {
	return &PGError{
		Severity: SeverityError,
		Code:     code,
		Message:  message,
	}
}

func Newf(code string, format string, args ...any) *PGError {
	return New(code, fmt.Sprintf(format, args...))
}

// Convert returns err unchanged when it already is a PGError and wraps
// it as an internal error otherwise.
func Convert(err error) *PGError {
	if err == nil {
		return nil
	}
	if pge, ok := err.(*PGError); ok {
		return pge
	}
	return New(CodeInternalError, err.Error())
}
