package exitcode

import (
	"os"
	"strings"

	"github.com/felixgeelhaar/capboard/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// PermissionDenied indicates a local role check refused the action
	PermissionDenied = 3

	// BackendError indicates the registry rejected the request
	BackendError = 4

	// AuthError indicates an authentication failure or an expired session
	AuthError = 5

	// NetworkError indicates a network connectivity issue
	NetworkError = 6

	// Interrupted indicates the user cancelled the operation
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	if err == nil {
		Exit(Success)
		return
	}

	Exit(DetermineExitCode(err))
}

// DetermineExitCode analyzes an error and returns the appropriate exit code.
// Coded errors are mapped by code; anything else falls back to message
// inspection for errors raised by cobra itself.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	switch errors.CodeOf(err) {
	case errors.ErrCodeInvalidCredentials, errors.ErrCodeNotAuthenticated, errors.ErrCodeSessionExpired:
		return AuthError
	case errors.ErrCodeSelfServiceOnly, errors.ErrCodeRoleDenied:
		return PermissionDenied
	case errors.ErrCodeBackendRejected, errors.ErrCodeDecode:
		return BackendError
	case errors.ErrCodeTransport:
		return NetworkError
	case errors.ErrCodeInputMissing:
		return UsageError
	case errors.ErrCodeCancelled:
		return Interrupted
	case "":
		// fall through to message inspection
	default:
		return GeneralError
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "unauthorized") {
		return AuthError
	}
	if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "connection refused") {
		return NetworkError
	}
	if strings.Contains(errMsg, "invalid flag") || strings.Contains(errMsg, "unknown command") ||
		strings.Contains(errMsg, "unknown flag") {
		return UsageError
	}
	if strings.Contains(errMsg, "required flag") || strings.Contains(errMsg, "accepts") && strings.Contains(errMsg, "arg(s)") {
		return UsageError
	}

	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags or arguments)"
	case PermissionDenied:
		return "Permission denied by role"
	case BackendError:
		return "Registry rejected the request"
	case AuthError:
		return "Authentication error"
	case NetworkError:
		return "Network error"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
