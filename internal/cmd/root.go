package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/capboard/internal/api"
	"github.com/felixgeelhaar/capboard/internal/exitcode"
	"github.com/felixgeelhaar/capboard/internal/ux"
)

// NewRootCmd builds the capboard command tree. Every call returns a fresh
// tree with its own flag state.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "capboard",
		Short: "Browse and staff the consultant capability registry",
		Long: `capboard is a client for the consultant capability registry.

Log in once, then list capabilities, register or unregister consultants
from the command line, or open the interactive board with 'capboard tui'.
What you may change depends on your role; the registry has the final say.

Settings come from flags, CAPBOARD_* environment variables and
~/.capboard/config.yaml, in that order.

` + exitCodeHelp(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (default ~/.capboard/config.yaml)")
	pf.String("api-url", "", "registry base URL")
	pf.String("profile", "", "registry API profile: "+profileNames())
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.Bool("no-color", false, "disable colored output")

	root.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newStatusCmd(),
		newCapabilitiesCmd(),
		newRegisterCmd(),
		newUnregisterCmd(),
		newTUICmd(),
		newContractCmd(),
		newConfigCmd(),
		newVersionCmd(),
		newCompletionCmd(),
	)
	instrument(root)
	return root
}

// exitCodeHelp lists the exit statuses scripts can rely on.
func exitCodeHelp() string {
	var b strings.Builder
	b.WriteString("Exit codes:\n")
	for _, code := range []int{
		exitcode.Success,
		exitcode.GeneralError,
		exitcode.UsageError,
		exitcode.PermissionDenied,
		exitcode.BackendError,
		exitcode.AuthError,
		exitcode.NetworkError,
		exitcode.Interrupted,
	} {
		fmt.Fprintf(&b, "  %-4d %s\n", code, exitcode.GetExitCodeDescription(code))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func profileNames() string {
	names := make([]string, 0, len(api.Profiles()))
	for _, p := range api.Profiles() {
		names = append(names, p.String())
	}
	return strings.Join(names, ", ")
}

// ExecuteContext runs the command line with os.Args. Errors are printed to
// stderr before they are returned.
func ExecuteContext(ctx context.Context) error {
	return Run(ctx, NewRootCmd(), os.Args[1:])
}

// Run executes root with args and prints a failure the way users see it.
func Run(ctx context.Context, root *cobra.Command, args []string) error {
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}

	err = ux.EnhanceError(err)
	noColor, _ := root.PersistentFlags().GetBool("no-color")
	fmt.Fprintln(root.ErrOrStderr(), ux.FormatError(err, styles(noColor)))
	return err
}

func styles(noColor bool) ux.Styles {
	return ux.NewStyles(noColor || os.Getenv("NO_COLOR") != "")
}
