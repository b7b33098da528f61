package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/capboard/internal/version"
)

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print version information including version number, git commit,
build date, Go version, and platform.`,
		Args: cobra.NoArgs,
		RunE: runVersion,
	}

	cmd.Flags().BoolP("verbose", "v", false, "show detailed version information")
	cmd.Flags().Bool("json", false, "output version information as JSON")
	return cmd
}

func runVersion(cmd *cobra.Command, args []string) error {
	info := version.GetInfo()
	w := cmd.OutOrStdout()

	asJSON, _ := cmd.Flags().GetBool("json")
	verbose, _ := cmd.Flags().GetBool("verbose")

	switch {
	case asJSON:
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal version info: %w", err)
		}
		fmt.Fprintln(w, string(data))
	case verbose:
		fmt.Fprintln(w, "capboard: consultant capability registry client")
		fmt.Fprintln(w)
		fmt.Fprintln(w, info.String())
	default:
		fmt.Fprintf(w, "capboard %s\n", info.Short())
	}
	return nil
}
