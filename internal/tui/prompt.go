package tui

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/felixgeelhaar/capboard/internal/catalog"
	"github.com/felixgeelhaar/capboard/internal/errors"
)

// Prompter asks for input on the command line with huh forms.
type Prompter struct {
	// Accessible renders plain prompts for screen readers and dumb terminals.
	Accessible bool
	In         io.Reader
	Out        io.Writer
}

func (p Prompter) run(ctx context.Context, fields ...huh.Field) error {
	form := huh.NewForm(huh.NewGroup(fields...)).
		WithAccessible(p.Accessible).
		WithShowHelp(false)
	if p.In != nil {
		form = form.WithInput(p.In)
	}
	if p.Out != nil {
		form = form.WithOutput(p.Out)
	}

	if err := form.RunWithContext(ctx); err != nil {
		if stderrors.Is(err, huh.ErrUserAborted) || stderrors.Is(err, context.Canceled) {
			return errors.Wrap(errors.ErrCodeCancelled, "Cancelled", err)
		}
		return fmt.Errorf("prompt failed: %w", err)
	}
	return nil
}

// Login asks for whatever part of the credentials is missing.
func (p Prompter) Login(ctx context.Context, email string) (string, string, error) {
	var password string
	var fields []huh.Field

	if strings.TrimSpace(email) == "" {
		fields = append(fields, huh.NewInput().
			Title("Email").
			Placeholder("you@example.com").
			Value(&email).
			Validate(required("Email")))
	}
	fields = append(fields, huh.NewInput().
		Title("Password").
		EchoMode(huh.EchoModePassword).
		Value(&password).
		Validate(required("Password")))

	if err := p.run(ctx, fields...); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(email), password, nil
}

// Capability lets the user pick one of the catalog's options.
func (p Prompter) Capability(ctx context.Context, options []catalog.Option) (string, error) {
	if len(options) == 0 {
		return "", errors.NewInputMissingError("There are no capabilities to choose from")
	}

	opts := make([]huh.Option[string], len(options))
	for i, o := range options {
		opts[i] = huh.NewOption(o.Label, o.Value)
	}

	var selected string
	if err := p.run(ctx, huh.NewSelect[string]().
		Title("Capability").
		Options(opts...).
		Value(&selected)); err != nil {
		return "", err
	}
	return selected, nil
}

// ConfirmUnregister asks before a consultant is removed. It has the shape
// of command.ConfirmFunc.
func (p Prompter) ConfirmUnregister(ctx context.Context, capability, email string) (bool, error) {
	confirmed := false
	if err := p.run(ctx, huh.NewConfirm().
		Title(fmt.Sprintf("Unregister %s from %s?", email, capability)).
		Affirmative("Unregister").
		Negative("Cancel").
		Value(&confirmed)); err != nil {
		return false, err
	}
	return confirmed, nil
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

// IsInteractive returns true if stdin is a terminal (not piped)
func IsInteractive() bool {
	fileInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// ShouldPrompt returns true if prompts should be shown based on environment
// Prompts are disabled in CI environments or when stdin is not a terminal
func ShouldPrompt() bool {
	ciEnvVars := []string{
		"CI",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"JENKINS_URL",
		"BUILDKITE",
	}

	for _, envVar := range ciEnvVars {
		if os.Getenv(envVar) != "" {
			return false
		}
	}

	return IsInteractive()
}
