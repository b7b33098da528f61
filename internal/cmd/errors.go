package cmd

import (
	"fmt"

	"github.com/felixgeelhaar/capboard/internal/app"
	"github.com/felixgeelhaar/capboard/internal/errors"
	"github.com/felixgeelhaar/capboard/internal/session"
)

// requireSession returns the active session or a not-logged-in error
// telling the user how to start one.
func requireSession(a *app.App) (session.Session, error) {
	s, ok := a.Sessions.Current()
	if !ok {
		return session.Session{}, errors.NewNotAuthenticatedError()
	}
	return s, nil
}

// capabilityNotFound is returned when a name is missing from the catalog.
func capabilityNotFound(name string) error {
	return errors.New(errors.ErrCodeBackendRejected, "Capability not found").
		WithSuggestion(fmt.Sprintf("No capability is named %q; list them with 'capboard capabilities'", name))
}

// confirmationRequired is returned when unregister cannot ask and --yes
// was not given.
func confirmationRequired() error {
	return errors.NewInputMissingError("Unregistering needs confirmation").
		WithSuggestion("Pass --yes to unregister without a prompt")
}

// credentialsRequired is returned when login has no terminal to prompt on.
func credentialsRequired() error {
	return errors.NewInputMissingError("Email and password are required").
		WithSuggestions(
			"Pipe the password: capboard login --email you@example.com --password-stdin",
			"Or run 'capboard login' in an interactive terminal",
		)
}

// capabilityRequired is returned when no capability was named and there is
// no terminal to pick one on.
func capabilityRequired(command string) error {
	return errors.NewInputMissingError("Email and capability are required").
		WithSuggestion(fmt.Sprintf("Name the capability: capboard %s \"Cloud Architecture\"", command))
}
