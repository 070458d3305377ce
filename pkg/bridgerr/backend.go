package bridgerr

import (
	"errors"
	"strings"

	"github.com/aws/smithy-go"
)

type mapping struct {
	code     string
	severity string
}

// Backend error names as reported by the statement execution service.
var backendCodeMap = map[string]mapping{
	"BadRequestException":         {CodeSyntaxError, SeverityError},
	"ForbiddenException":          {CodeInsufficientPrivilege, SeverityError},
	"ServiceUnavailableError":     {CodeConnectionFailure, SeverityFatal},
	"ServiceUnavailableException": {CodeConnectionFailure, SeverityFatal},
	"StatementTimeoutException":   {CodeQueryCanceled, SeverityError},
	"NotFoundException":           {CodeUndefinedTable, SeverityError},
	"ResourceNotFoundException":   {CodeUndefinedTable, SeverityError},
	"ValidationException":         {CodeInvalidParameterValue, SeverityError},
	"ThrottlingException":         {CodeTooManyConnections, SeverityError},
}

// FromBackend translates a statement-service failure into the PGError
// sent to the client. The original message rides along as both message
// and detail.
func FromBackend(err error) *PGError {
	if err == nil {
		return nil
	}
	if pge, ok := err.(*PGError); ok {
		return pge
	}

	code := CodeInternalError
	severity := SeverityError

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if m, ok := backendCodeMap[apiErr.ErrorCode()]; ok {
			code = m.code
			severity = m.severity
		}
	}

	msg := err.Error()
	return &PGError{
		Severity: severity,
		Code:     code,
		Message:  msg,
		Detail:   msg,
		Hint:     hintFor(msg),
	}
}

func hintFor(msg string) string {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out"):
		return "The statement took too long; consider simplifying the query or raising the backend statement timeout."
	case strings.Contains(lower, "access denied") || strings.Contains(lower, "not authorized") || strings.Contains(lower, "forbidden"):
		return "Check that the configured credentials may invoke the SQL endpoint and read its secret."
	case strings.Contains(lower, "does not exist") || strings.Contains(lower, "not found"):
		return "Check the relation name and the configured database."
	case strings.Contains(lower, "syntax"):
		return "Check the statement syntax."
	case strings.Contains(lower, "throttl") || strings.Contains(lower, "rate"):
		return "The backend is throttling requests; retry after a short delay."
	}
	return ""
}
