package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/capboard/internal/app"
	"github.com/felixgeelhaar/capboard/internal/catalog"
	"github.com/felixgeelhaar/capboard/internal/ux"
)

func newCapabilitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "capabilities",
		Aliases: []string{"caps"},
		Short:   "List capabilities and their consultants",
		Long: `Show the capability catalog in the registry's order.

Consultants you may remove are marked "(removable)".

Examples:
  # Every capability
  capboard capabilities

  # One capability
  capboard capabilities show "Cloud Architecture"

  # Machine-readable
  capboard capabilities --format json`,
		Args: cobra.NoArgs,
		RunE: runCapabilitiesList,
	}
	cmd.PersistentFlags().String("format", "text", "output format: text, json, yaml")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List every capability",
			Args:  cobra.NoArgs,
			RunE:  runCapabilitiesList,
		},
		&cobra.Command{
			Use:   "show <name>",
			Short: "Show one capability",
			Args:  cobra.ExactArgs(1),
			RunE:  runCapabilitiesShow,
		},
	)
	return cmd
}

func runCapabilitiesList(cmd *cobra.Command, args []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	out, err := cc.Formatter()
	if err != nil {
		return err
	}

	view, err := loadView(cmd.Context(), cc)
	if err != nil {
		return err
	}
	if _, ok := out.(*ux.TextFormatter); ok {
		return out.Format(ux.CatalogText{View: view})
	}
	return out.Format(view)
}

func runCapabilitiesShow(cmd *cobra.Command, args []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	out, err := cc.Formatter()
	if err != nil {
		return err
	}

	view, err := loadView(cmd.Context(), cc)
	if err != nil {
		return err
	}
	card, ok := view.Lookup(args[0])
	if !ok {
		return capabilityNotFound(args[0])
	}
	if _, ok := out.(*ux.TextFormatter); ok {
		return out.Format(ux.CardText{Card: card})
	}
	return out.Format(card)
}

// loadView fetches the catalog for the stored session.
func loadView(ctx context.Context, cc *CommandContext) (catalog.View, error) {
	ctx, a, err := cc.OpenApp(ctx)
	if err != nil {
		return catalog.View{}, err
	}

	return refreshView(ctx, a)
}

func refreshView(ctx context.Context, a *app.App) (catalog.View, error) {
	if _, err := requireSession(a); err != nil {
		return catalog.View{}, err
	}
	return a.Renderer.Refresh(ctx)
}
