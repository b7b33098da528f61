package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/capboard/internal/app"
	"github.com/felixgeelhaar/capboard/internal/tui"
)

func newTUICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive capability board",
		Long: `Open a full-screen board: log in, browse capabilities, register and
unregister consultants. Press ? inside for the key bindings.

Logs go to ~/.capboard/capboard.log (logging.file) while the board is open.

Examples:
  capboard tui

  # Expose Prometheus metrics while the board is open
  capboard tui --metrics-addr 127.0.0.1:9090`,
		Args: cobra.NoArgs,
		RunE: runTUI,
	}

	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func runTUI(cmd *cobra.Command, args []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	ctx, a, err := cc.OpenApp(ctx, app.WithLogFile())
	if err != nil {
		return err
	}

	if addr := a.Config.Metrics.Addr; addr != "" {
		if _, err := a.ServeMetrics(ctx, addr); err != nil {
			return err
		}
	}

	return tui.Run(ctx, tui.Deps{
		Sessions:  a.Sessions,
		Renderer:  a.Renderer,
		Commander: a.Commander,
		Board:     a.Board,
		Styles:    cc.Styles(),
	})
}
