package ux

import (
	stderrors "errors"
	"fmt"
	"net"
	"strings"

	"github.com/felixgeelhaar/capboard/internal/errors"
)

// EnhanceError turns errors that reach the command line without a code into
// coded ones with a recovery suggestion. Coded errors pass through.
func EnhanceError(err error) error {
	if err == nil {
		return nil
	}

	var ce *errors.CapboardError
	if stderrors.As(err, &ce) {
		return err
	}

	var netErr net.Error
	msg := err.Error()
	switch {
	case stderrors.As(err, &netErr), strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"):
		return errors.Wrap(errors.ErrCodeTransport, "The registry could not be reached", err).
			WithSuggestion("Check api.url with 'capboard config view'")
	case strings.Contains(msg, "permission denied"):
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "Permission denied", err).
			WithSuggestion("Check the permissions of ~/.capboard")
	}
	return err
}

// FormatError renders err for the terminal: the user-facing message, then
// suggestions and the error code. Causes are left to the logs.
func FormatError(err error, st Styles) string {
	if err == nil {
		return ""
	}

	var ce *errors.CapboardError
	if !stderrors.As(err, &ce) {
		return st.Error.Render("Error: ") + err.Error()
	}

	var b strings.Builder
	b.WriteString(st.Error.Render("Error: "))
	b.WriteString(ce.Message)
	for _, s := range ce.Suggestions {
		b.WriteString("\n  ")
		b.WriteString(st.Muted.Render(fmt.Sprintf("• %s", s)))
	}
	b.WriteString("\n  " + st.Muted.Render(fmt.Sprintf("[%s]", ce.Code)))
	return b.String()
}
