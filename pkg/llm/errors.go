// Error types and handling
package llm

import (
	"errors"
	"fmt"
)

// ErrorType classifies an Error into the gateway's failure taxonomy.
type ErrorType string

const (
	// ErrorTypeValidation marks a malformed inbound request, rejected
	// before any upstream call.
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeLimitExceeded marks a pre-check denial by the limiter.
	ErrorTypeLimitExceeded ErrorType = "limit_exceeded"
	// ErrorTypeUpstream marks a provider transport or HTTP failure.
	// The upstream status code and body are passed through unmodified;
	// retrying is the caller's policy, never the adapter's.
	ErrorTypeUpstream ErrorType = "upstream"
	// ErrorTypeMalformedStream marks a decode failure mid-stream, e.g.
	// tool-call argument fragments that never assemble into valid JSON.
	ErrorTypeMalformedStream ErrorType = "upstream_malformed_stream"
	// ErrorTypeToolConnection marks an unreachable tool backend or a
	// failed capability handshake.
	ErrorTypeToolConnection ErrorType = "tool_connection"
	// ErrorTypeToolLoop marks an exact repeat of a tool call id within
	// one conversation turn.
	ErrorTypeToolLoop ErrorType = "tool_loop_detected"
	// ErrorTypeToolRoundLimit marks a turn that hit the tool round cap.
	ErrorTypeToolRoundLimit ErrorType = "tool_round_limit"
)

// Error is the standardized error carried across the gateway. Upstream
// failures keep the provider's status code and raw body so callers can
// apply their own retry policy.
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code,omitempty"`
	Body       string    `json:"body,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NewValidationError creates a validation error for a malformed request.
func NewValidationError(message string) *Error {
	return &Error{Type: ErrorTypeValidation, Message: message}
}

// NewLimitExceededError creates a limiter denial error.
func NewLimitExceededError(message string) *Error {
	return &Error{Type: ErrorTypeLimitExceeded, Message: message}
}

// NewUpstreamError creates an upstream failure carrying the provider's
// HTTP status code and unmodified response body.
func NewUpstreamError(statusCode int, body string, cause error) *Error {
	msg := body
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Type:       ErrorTypeUpstream,
		Message:    msg,
		StatusCode: statusCode,
		Body:       body,
		cause:      cause,
	}
}

// NewMalformedStreamError creates a mid-stream decode failure.
func NewMalformedStreamError(message string, cause error) *Error {
	return &Error{Type: ErrorTypeMalformedStream, Message: message, cause: cause}
}

// NewToolConnectionError creates a tool backend connection failure.
func NewToolConnectionError(message string, cause error) *Error {
	return &Error{Type: ErrorTypeToolConnection, Message: message, cause: cause}
}

// NewToolLoopError creates a tool loop detection marker for the given
// repeated call id.
func NewToolLoopError(callID string) *Error {
	return &Error{
		Type:    ErrorTypeToolLoop,
		Message: fmt.Sprintf("tool call %s repeated with identical id", callID),
	}
}

// NewToolRoundLimitError creates a round cap marker.
func NewToolRoundLimitError(limit int) *Error {
	return &Error{
		Type:    ErrorTypeToolRoundLimit,
		Message: fmt.Sprintf("tool round limit of %d reached", limit),
	}
}

// AsError extracts an *Error from err, if it carries one.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsErrorType reports whether err carries an *Error of type t.
func IsErrorType(err error, t ErrorType) bool {
	if e, ok := AsError(err); ok {
		return e.Type == t
	}
	return false
}

// IsValidation reports whether err is a request validation failure.
func IsValidation(err error) bool { return IsErrorType(err, ErrorTypeValidation) }

// IsLimitExceeded reports whether err is a limiter denial.
func IsLimitExceeded(err error) bool { return IsErrorType(err, ErrorTypeLimitExceeded) }

// IsUpstream reports whether err is an upstream provider failure.
func IsUpstream(err error) bool { return IsErrorType(err, ErrorTypeUpstream) }

// IsMalformedStream reports whether err is a mid-stream decode failure.
func IsMalformedStream(err error) bool { return IsErrorType(err, ErrorTypeMalformedStream) }

// IsToolConnection reports whether err is a tool backend failure.
func IsToolConnection(err error) bool { return IsErrorType(err, ErrorTypeToolConnection) }
