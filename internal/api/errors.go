package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/felixgeelhaar/capboard/internal/errors"
)

// APIError is a non-2xx response from the registry.
type APIError struct {
	Status    int
	Detail    string // the body's "detail" string, if any
	RequestID string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("registry returned %d", e.Status)
	}
	return fmt.Sprintf("registry returned %d: %s", e.Status, e.Detail)
}

// IsUnauthorized reports whether err is a 401 from the registry.
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// StatusOf returns the HTTP status of an *APIError in err's chain, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// decodeDetail extracts the human-readable detail from an error body.
// Validation errors carry a list of objects with a "msg" each; those are
// joined. Anything unparseable yields "".
func decodeDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(envelope.Detail, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

// Translate converts an error from a Client call into the coded error a user
// sees. action completes "Failed to %s, please try again." for transport
// failures. Errors that already carry a code pass through unchanged.
func Translate(action string, err error) error {
	if err == nil {
		return nil
	}
	if errors.CodeOf(err) != "" {
		return err
	}
	if IsUnauthorized(err) {
		return errors.NewSessionExpiredError(err)
	}

	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return errors.NewBackendError(apiErr.Detail, err)
	}
	if stderrors.Is(err, context.Canceled) {
		return errors.Wrap(errors.ErrCodeCancelled, "Cancelled", err)
	}
	return errors.NewTransportError(action, err)
}
