package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/capboard/internal/api"
	"github.com/felixgeelhaar/capboard/internal/errors"
	"github.com/felixgeelhaar/capboard/internal/tui"
	"github.com/felixgeelhaar/capboard/internal/ux"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the capability registry",
		Long: `Log in with your registry email and password.

The session is stored in ~/.capboard/session.json (session.path) and is
reused by every other command until you log out or the registry rejects it.

Examples:
  # Prompt for email and password
  capboard login

  # Non-interactive, e.g. in scripts
  echo "$PASSWORD" | capboard login --email you@example.com --password-stdin`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}

	cmd.Flags().String("email", "", "account email")
	cmd.Flags().Bool("password-stdin", false, "read the password from stdin")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		Long: `Forget the stored session. Running it without a session is not an error.

Examples:
  capboard logout`,
		Args: cobra.NoArgs,
		RunE: runLogout,
	}
}

func runLogin(cmd *cobra.Command, args []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	email, _ := cmd.Flags().GetString("email")
	fromStdin, _ := cmd.Flags().GetBool("password-stdin")

	var password string
	switch {
	case fromStdin:
		if strings.TrimSpace(email) == "" {
			return errors.NewInputMissingError("--email is required with --password-stdin")
		}
		password, err = readPassword(cmd.InOrStdin())
		if err != nil {
			return err
		}
	case tui.ShouldPrompt():
		email, password, err = cc.Prompter().Login(ctx, email)
		if err != nil {
			return err
		}
	default:
		return credentialsRequired()
	}

	ctx, a, err := cc.OpenApp(ctx)
	if err != nil {
		return err
	}

	s, err := a.Sessions.Login(ctx, email, password)
	if err != nil {
		return err
	}

	st := cc.Styles()
	fmt.Fprintf(cmd.OutOrStdout(), "%s Logged in as %s %s\n",
		st.Success.Render("✓"), displayUser(s.User), st.Badge.Render(ux.Sanitize(s.User.Role)))
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	ctx, a, err := cc.OpenApp(ctx)
	if err != nil {
		return err
	}

	if err := a.Sessions.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
	return nil
}

// readPassword reads the first line of r.
func readPassword(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInputMissing, "failed to read the password from stdin", err)
	}
	line, _, _ := strings.Cut(string(data), "\n")
	return strings.TrimRight(line, "\r"), nil
}

// displayUser renders "Full Name <email>" or just the email.
func displayUser(u api.User) string {
	email := ux.Sanitize(u.Email)
	if u.FullName == "" {
		return email
	}
	return ux.Sanitize(u.FullName) + " <" + email + ">"
}
