package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/capboard/internal/app"
	"github.com/felixgeelhaar/capboard/internal/command"
	"github.com/felixgeelhaar/capboard/internal/errors"
	"github.com/felixgeelhaar/capboard/internal/feedback"
	"github.com/felixgeelhaar/capboard/internal/tui"
	"github.com/felixgeelhaar/capboard/internal/ux"
)

func newRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register [capability]",
		Short: "Register a consultant for a capability",
		Long: `Add a consultant to a capability. The email defaults to your own.

Consultants may only register themselves; viewers may not register anyone.
Without a capability argument you are asked to pick one.

Examples:
  # Register yourself
  capboard register "Cloud Architecture"

  # Register someone else (managers and above)
  capboard register "Data Analytics" --email alice.smith@example.com`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRegister,
	}

	cmd.Flags().String("email", "", "consultant email (default: your own)")
	return cmd
}

func newUnregisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unregister [capability]",
		Short: "Remove a consultant from a capability",
		Long: `Remove a consultant from a capability. You are asked to confirm unless
--yes is given.

Examples:
  capboard unregister "Cloud Architecture" --email bob.johnson@example.com

  # Scripts
  capboard unregister "Cloud Architecture" --email bob.johnson@example.com --yes`,
		Args: cobra.MaximumNArgs(1),
		RunE: runUnregister,
	}

	cmd.Flags().String("email", "", "consultant email")
	cmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
	return cmd
}

func runRegister(cmd *cobra.Command, args []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	ctx, a, err := cc.OpenApp(ctx)
	if err != nil {
		return err
	}

	s, err := requireSession(a)
	if err != nil {
		return err
	}

	email, _ := cmd.Flags().GetString("email")
	if strings.TrimSpace(email) == "" {
		email = s.User.Email
	}
	if err := a.Commander.CheckRegister(email); err != nil {
		return err
	}

	capability, err := capabilityArg(ctx, cc, a, args, "register")
	if err != nil {
		return err
	}

	msg, err := a.Commander.Register(ctx, email, capability)
	return report(cmd, cc, msg, err)
}

func runUnregister(cmd *cobra.Command, args []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	ctx, a, err := cc.OpenApp(ctx)
	if err != nil {
		return err
	}

	if _, err := requireSession(a); err != nil {
		return err
	}
	// A role that may not unregister hears so before any prompt or picker.
	if err := a.Commander.CheckUnregister(); err != nil {
		return err
	}

	email, _ := cmd.Flags().GetString("email")
	capability, err := capabilityArg(ctx, cc, a, args, "unregister")
	if err != nil {
		return err
	}

	commander := a.Commander
	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		if !tui.ShouldPrompt() {
			return confirmationRequired()
		}
		commander = commander.With(command.WithConfirm(cc.Prompter().ConfirmUnregister))
	}

	msg, err := commander.Unregister(ctx, email, capability)
	return report(cmd, cc, msg, err)
}

// capabilityArg returns the named capability, or lets the user pick one
// from the catalog when none was named and a terminal is available.
func capabilityArg(ctx context.Context, cc *CommandContext, a *app.App, args []string, action string) (string, error) {
	if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
		return args[0], nil
	}
	if !tui.ShouldPrompt() {
		return "", capabilityRequired(action)
	}

	view, err := refreshView(ctx, a)
	if err != nil {
		return "", err
	}
	return cc.Prompter().Capability(ctx, view.Options)
}

// report prints the board message for a finished command. Failures are
// returned so the exit status reflects them; a declined confirmation is not
// a failure.
func report(cmd *cobra.Command, cc *CommandContext, msg feedback.Message, err error) error {
	if err != nil {
		if errors.CodeOf(err) == errors.ErrCodeCancelled && cmd.Context().Err() == nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "Cancelled")
			return nil
		}
		return err
	}

	st := cc.Styles()
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", st.Success.Render("✓"), ux.Sanitize(msg.Text))
	return nil
}
