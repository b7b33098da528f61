package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Authentication errors (AUTH-001 to AUTH-099)
	ErrCodeInvalidCredentials ErrorCode = "AUTH-001"
	ErrCodeNotAuthenticated   ErrorCode = "AUTH-002"
	ErrCodeSessionExpired     ErrorCode = "AUTH-003"

	// Authorization errors (AUTHZ-001 to AUTHZ-099)
	ErrCodeSelfServiceOnly ErrorCode = "AUTHZ-001"
	ErrCodeRoleDenied      ErrorCode = "AUTHZ-002"

	// Backend errors (API-001 to API-099)
	ErrCodeBackendRejected ErrorCode = "API-001"
	ErrCodeTransport       ErrorCode = "API-002"
	ErrCodeDecode          ErrorCode = "API-003"

	// Input errors (INPUT-001 to INPUT-099)
	ErrCodeInputMissing ErrorCode = "INPUT-001"
	ErrCodeCancelled    ErrorCode = "INPUT-002"

	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigInvalid ErrorCode = "CONFIG-001"
	ErrCodeConfigRead    ErrorCode = "CONFIG-002"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileReadFailed  ErrorCode = "IO-001"
	ErrCodeFileWriteFailed ErrorCode = "IO-002"
	ErrCodeFileUnmarshal   ErrorCode = "IO-003"
)

// CapboardError represents an error with a code and suggestions
type CapboardError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	Cause       error
}

// Error implements the error interface
func (e *CapboardError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *CapboardError) Unwrap() error {
	return e.Cause
}

// Is matches another CapboardError carrying the same code, so that the
// sentinel values below work with errors.Is.
func (e *CapboardError) Is(target error) bool {
	t, ok := target.(*CapboardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates a new CapboardError
func New(code ErrorCode, message string) *CapboardError {
	return &CapboardError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CapboardError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *CapboardError {
	return &CapboardError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *CapboardError) WithSuggestion(suggestion string) *CapboardError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *CapboardError) WithSuggestions(suggestions ...string) *CapboardError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// CodeOf returns the code of the first CapboardError in err's chain, or ""
func CodeOf(err error) ErrorCode {
	var ce *CapboardError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// UserMessage returns the text that may be shown to a user for err. Causes
// are never included: transport and decoding details stay in the logs.
func UserMessage(err error) string {
	var ce *CapboardError
	if stderrors.As(err, &ce) {
		return ce.Message
	}
	return "An error occurred"
}

// Sentinels for errors.Is comparisons. Only the code is compared.
var (
	ErrInvalidCredentials = New(ErrCodeInvalidCredentials, "Invalid email or password")
	ErrNotAuthenticated   = New(ErrCodeNotAuthenticated, "You are not logged in")
	ErrSessionExpired     = New(ErrCodeSessionExpired, "Your session has expired. Please log in again.")
	ErrSelfServiceOnly    = New(ErrCodeSelfServiceOnly, "Consultants can only register themselves")
	ErrRoleDenied         = New(ErrCodeRoleDenied, "Your role does not permit this action")
	ErrBackendRejected    = New(ErrCodeBackendRejected, "An error occurred")
	ErrTransport          = New(ErrCodeTransport, "The registry could not be reached")
	ErrCancelled          = New(ErrCodeCancelled, "Cancelled")
)

// Common error constructors for frequently used errors

// NewInvalidCredentialsError never says whether the email exists.
func NewInvalidCredentialsError(cause error) *CapboardError {
	return Wrap(ErrCodeInvalidCredentials, "Invalid email or password", cause).
		WithSuggestion("Check your email and password and try again")
}

// NewNotAuthenticatedError creates an error for commands that need a session
func NewNotAuthenticatedError() *CapboardError {
	return New(ErrCodeNotAuthenticated, "You are not logged in").
		WithSuggestion("Run 'capboard login' to start a session")
}

// NewSessionExpiredError creates an error for a session the backend rejected
func NewSessionExpiredError(cause error) *CapboardError {
	return Wrap(ErrCodeSessionExpired, "Your session has expired. Please log in again.", cause).
		WithSuggestion("Run 'capboard login' to start a new session")
}

// NewSelfServiceOnlyError creates the local self-registration denial
func NewSelfServiceOnlyError() *CapboardError {
	return New(ErrCodeSelfServiceOnly, "Consultants can only register themselves")
}

// NewRoleDeniedError creates a local authorization denial with a specific message
func NewRoleDeniedError(message string) *CapboardError {
	if strings.TrimSpace(message) == "" {
		message = "Your role does not permit this action"
	}
	return New(ErrCodeRoleDenied, message)
}

// NewBackendError surfaces the backend's detail verbatim, falling back to a
// generic message when the body carried none.
func NewBackendError(detail string, cause error) *CapboardError {
	if strings.TrimSpace(detail) == "" {
		detail = "An error occurred"
	}
	return Wrap(ErrCodeBackendRejected, detail, cause)
}

// NewTransportError creates a "failed to X" error for the given action
// (e.g. "register", "load capabilities").
func NewTransportError(action string, cause error) *CapboardError {
	return Wrap(ErrCodeTransport, fmt.Sprintf("Failed to %s, please try again.", action), cause).
		WithSuggestion("Check that the registry URL is reachable: capboard config view")
}

// NewInputMissingError creates an error for blank required input
func NewInputMissingError(message string) *CapboardError {
	return New(ErrCodeInputMissing, message)
}

// NewFileReadError creates a file read error
func NewFileReadError(path string, cause error) *CapboardError {
	return Wrap(ErrCodeFileReadFailed, fmt.Sprintf("failed to read file: %s", path), cause).
		WithSuggestion("Check that the file is readable by the current user")
}

// NewFileWriteError creates a file write error
func NewFileWriteError(path string, cause error) *CapboardError {
	return Wrap(ErrCodeFileWriteFailed, fmt.Sprintf("failed to write file: %s", path), cause).
		WithSuggestion("Check that the directory exists and is writable")
}

// NewFileUnmarshalError creates an unmarshal error
func NewFileUnmarshalError(path string, format string, cause error) *CapboardError {
	return Wrap(ErrCodeFileUnmarshal, fmt.Sprintf("failed to parse %s file: %s", format, path), cause).
		WithSuggestion("Check the file syntax and format").
		WithSuggestion(fmt.Sprintf("Ensure the file is valid %s", format))
}

// NewConfigInvalidError creates an error for an unusable configuration value
func NewConfigInvalidError(key string, value interface{}, valid string) *CapboardError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid value for %s: %v", key, value)).
		WithSuggestion(fmt.Sprintf("Valid values: %s", valid)).
		WithSuggestion("Inspect the effective configuration with 'capboard config view'")
}
