package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeRoleDenied, "test error message")

	if err.Code != ErrCodeRoleDenied {
		t.Errorf("expected code %s, got %s", ErrCodeRoleDenied, err.Code)
	}
	if err.Message != "test error message" {
		t.Errorf("expected message 'test error message', got '%s'", err.Message)
	}
	if err.Cause != nil {
		t.Errorf("expected nil cause, got %v", err.Cause)
	}
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := Wrap(ErrCodeFileReadFailed, "failed to read file", cause)

	if err.Code != ErrCodeFileReadFailed {
		t.Errorf("expected code %s, got %s", ErrCodeFileReadFailed, err.Code)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Wrap should support errors.Is")
	}
}

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name     string
		err      *CapboardError
		wantCode string
		wantMsg  string
	}{
		{
			name:     "simple error",
			err:      New(ErrCodeSelfServiceOnly, "Consultants can only register themselves"),
			wantCode: "AUTHZ-001",
			wantMsg:  "Consultants can only register themselves",
		},
		{
			name:     "error with cause",
			err:      Wrap(ErrCodeFileReadFailed, "read failed", fmt.Errorf("permission denied")),
			wantCode: "IO-001",
			wantMsg:  "permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()
			if !strings.Contains(errStr, tt.wantCode) {
				t.Errorf("error string should contain code %s, got: %s", tt.wantCode, errStr)
			}
			if !strings.Contains(errStr, tt.wantMsg) {
				t.Errorf("error string should contain message '%s', got: %s", tt.wantMsg, errStr)
			}
		})
	}
}

func TestSuggestions(t *testing.T) {
	err := New(ErrCodeConfigInvalid, "bad").
		WithSuggestion("first").
		WithSuggestions("second", "third")

	if len(err.Suggestions) != 3 {
		t.Fatalf("expected 3 suggestions, got %d", len(err.Suggestions))
	}
	s := err.Error()
	for _, want := range []string{"Suggestions:", "• first", "• third"} {
		if !strings.Contains(s, want) {
			t.Errorf("error string missing %q: %s", want, s)
		}
	}
}

func TestSentinelsMatchByCode(t *testing.T) {
	wrapped := fmt.Errorf("refresh: %w", NewSessionExpiredError(fmt.Errorf("401")))

	if !errors.Is(wrapped, ErrSessionExpired) {
		t.Error("expected wrapped session error to match ErrSessionExpired")
	}
	if errors.Is(wrapped, ErrNotAuthenticated) {
		t.Error("session expiry must not match ErrNotAuthenticated")
	}
	if CodeOf(wrapped) != ErrCodeSessionExpired {
		t.Errorf("CodeOf = %s", CodeOf(wrapped))
	}
	if CodeOf(fmt.Errorf("plain")) != "" {
		t.Error("plain errors carry no code")
	}
}

func TestUserMessageHidesCause(t *testing.T) {
	err := NewTransportError("register", fmt.Errorf("dial tcp 10.0.0.1:443: connection refused"))

	msg := UserMessage(err)
	if msg != "Failed to register, please try again." {
		t.Errorf("UserMessage = %q", msg)
	}
	if strings.Contains(msg, "dial tcp") {
		t.Error("transport details must not reach the user message")
	}
	if UserMessage(fmt.Errorf("boom")) != "An error occurred" {
		t.Error("unknown errors get the generic message")
	}
}

func TestNewBackendErrorFallback(t *testing.T) {
	if got := NewBackendError("Capability not found", nil).Message; got != "Capability not found" {
		t.Errorf("detail should be kept verbatim, got %q", got)
	}
	if got := NewBackendError("  ", nil).Message; got != "An error occurred" {
		t.Errorf("blank detail should fall back, got %q", got)
	}
}

func TestNewInvalidCredentialsErrorIsGeneric(t *testing.T) {
	err := NewInvalidCredentialsError(fmt.Errorf("Incorrect email or password"))
	if err.Message != "Invalid email or password" {
		t.Errorf("unexpected message %q", err.Message)
	}
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Error("expected ErrInvalidCredentials match")
	}
}
