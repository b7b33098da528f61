package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/felixgeelhaar/capboard/internal/app"
	"github.com/felixgeelhaar/capboard/internal/config"
	"github.com/felixgeelhaar/capboard/internal/tui"
	"github.com/felixgeelhaar/capboard/internal/ux"
)

// flagKeys maps config keys to the flags that override them. Flags a
// command does not define are skipped.
var flagKeys = map[string]string{
	"api.url":       "api-url",
	"api.profile":   "profile",
	"logging.level": "log-level",
	"metrics.addr":  "metrics-addr",
}

// CommandContext holds the persistent flags of one invocation. Commands
// build it in RunE instead of reading package state, so trees built by
// NewRootCmd never share values.
type CommandContext struct {
	ConfigFile string
	NoColor    bool

	cmd *cobra.Command
}

// NewCommandContext extracts the persistent flags from cmd.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	noColor, err := cmd.Flags().GetBool("no-color")
	if err != nil {
		return nil, err
	}

	return &CommandContext{
		ConfigFile: configFile,
		NoColor:    noColor,
		cmd:        cmd,
	}, nil
}

// Styles returns the text styles for this invocation.
func (c *CommandContext) Styles() ux.Styles {
	return styles(c.NoColor)
}

// Formatter returns the output formatter selected by --format.
func (c *CommandContext) Formatter() (ux.Formatter, error) {
	format := "text"
	if f := c.cmd.Flags().Lookup("format"); f != nil {
		format = f.Value.String()
	}
	return ux.NewFormatter(format, &ux.FormatterOptions{
		Writer:  c.cmd.OutOrStdout(),
		NoColor: c.NoColor || os.Getenv("NO_COLOR") != "",
	})
}

// Prompter returns a prompter on the command's streams.
func (c *CommandContext) Prompter() tui.Prompter {
	return tui.Prompter{
		Accessible: os.Getenv("ACCESSIBLE") != "",
		In:         c.cmd.InOrStdin(),
		Out:        c.cmd.OutOrStdout(),
	}
}

// LoadConfig resolves the configuration with this command's flags on top.
func (c *CommandContext) LoadConfig() (*config.Loaded, error) {
	flags := make(map[string]*pflag.Flag, len(flagKeys))
	for key, name := range flagKeys {
		if f := c.cmd.Flags().Lookup(name); f != nil {
			flags[key] = f
		}
	}
	return config.Load(config.Options{File: c.ConfigFile, Flags: flags})
}

// OpenApp wires the components and restores the persisted session. Logs go
// to the command's stderr unless opts say otherwise. The returned context
// carries the command span. The app belongs to the running command and is
// closed when RunE returns.
func (c *CommandContext) OpenApp(ctx context.Context, opts ...app.Option) (context.Context, *app.App, error) {
	run := runFrom(ctx)
	if run == nil {
		return ctx, nil, fmt.Errorf("%s: app opened outside an instrumented command", c.cmd.CommandPath())
	}

	loaded, err := c.LoadConfig()
	if err != nil {
		return ctx, nil, err
	}

	opts = append([]app.Option{app.WithLogWriter(c.cmd.ErrOrStderr())}, opts...)
	a, err := app.New(ctx, loaded.Config, opts...)
	if err != nil {
		return ctx, nil, err
	}
	ctx = run.attach(ctx, a)

	if err := a.Sessions.Bootstrap(ctx); err != nil {
		return ctx, nil, err
	}
	return ctx, a, nil
}
