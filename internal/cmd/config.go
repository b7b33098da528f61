package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/capboard/internal/config"
	"github.com/felixgeelhaar/capboard/internal/errors"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View or edit capboard configuration",
		Long: `Manage the configuration stored at ~/.capboard/config.yaml

Configuration includes:
  • Registry URL, API profile and timeouts
  • Session file location
  • Logging, tracing and metrics

Every key can be overridden with a CAPBOARD_ environment variable, e.g.
CAPBOARD_API_URL for api.url.

Examples:
  # View the effective configuration
  capboard config view

  # Write a config file with the defaults
  capboard config init

  # Point the file at another registry
  capboard config init --force --api-url https://registry.example.com

  # Get a specific value
  capboard config get api.url

  # Show configuration file path
  capboard config path`,
	}

	view := &cobra.Command{
		Use:   "view",
		Short: "Display the effective configuration",
		Long:  `Display the configuration after flags, environment and file are applied.`,
		Args:  cobra.NoArgs,
		RunE:  runConfigView,
	}
	view.Flags().String("format", "text", "output format: text, json, yaml")

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file",
		Long:  `Write the effective configuration to the config file.`,
		Args:  cobra.NoArgs,
		RunE:  runConfigInit,
	}
	initCmd.Flags().Bool("force", false, "overwrite an existing file")

	cmd.AddCommand(
		view,
		initCmd,
		&cobra.Command{
			Use:       "get <key>",
			Short:     "Get a specific configuration value",
			Long:      `Print one effective value using dot notation (e.g. api.url).`,
			Args:      cobra.ExactArgs(1),
			ValidArgs: config.Keys(),
			RunE:      runConfigGet,
		},
		&cobra.Command{
			Use:   "edit",
			Short: "Edit configuration in $EDITOR",
			Long:  `Open the configuration file in your default editor (from $EDITOR environment variable).`,
			Args:  cobra.NoArgs,
			RunE:  runConfigEdit,
		},
		&cobra.Command{
			Use:   "path",
			Short: "Show configuration file path",
			Args:  cobra.NoArgs,
			RunE:  runConfigPath,
		},
	)
	return cmd
}

func runConfigView(cmd *cobra.Command, args []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	loaded, err := cc.LoadConfig()
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	if format == "json" {
		out, err := cc.Formatter()
		if err != nil {
			return err
		}
		return out.Format(loaded.Config)
	}

	data, err := config.Marshal(loaded.Config)
	if err != nil {
		return err
	}
	if format != "yaml" {
		source := loaded.File
		if !loaded.FromFile {
			source += " (not created yet)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", source)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	force, _ := cmd.Flags().GetBool("force")

	loaded, err := cc.LoadConfig()
	if err != nil {
		if !force || errors.CodeOf(err) != errors.ErrCodeConfigRead {
			return err
		}
		// An unreadable file is replaced with the defaults.
		path, perr := configPath(cc)
		if perr != nil {
			return perr
		}
		loaded = &config.Loaded{Config: config.Default(""), File: path, FromFile: true}
	}

	if err := config.Write(loaded.File, loaded.Config, force); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", loaded.File)
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	loaded, err := cc.LoadConfig()
	if err != nil {
		return err
	}

	value, err := lookupKey(loaded.Config, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	loaded, err := cc.LoadConfig()
	if err != nil {
		return err
	}
	if !loaded.FromFile {
		if err := config.Write(loaded.File, loaded.Config, false); err != nil {
			return err
		}
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}

	editorCmd := exec.CommandContext(cmd.Context(), editor, loaded.File)
	editorCmd.Stdin = cmd.InOrStdin()
	editorCmd.Stdout = cmd.OutOrStdout()
	editorCmd.Stderr = cmd.ErrOrStderr()
	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("failed to run editor: %w", err)
	}

	// Validate the edited file
	if _, err := cc.LoadConfig(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration updated successfully")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	path, err := configPath(cc)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

// configPath is --config or the default location. It does not read the file.
func configPath(cc *CommandContext) (string, error) {
	if cc.ConfigFile != "" {
		return cc.ConfigFile, nil
	}
	return config.DefaultPath("")
}

// lookupKey retrieves a value from c using dot notation, formatted the way
// the config file spells it.
func lookupKey(c config.Config, key string) (string, error) {
	data, err := config.Marshal(c)
	if err != nil {
		return "", err
	}

	var node any
	if err := yaml.Unmarshal(data, &node); err != nil {
		return "", err
	}
	for _, part := range strings.Split(key, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			node = nil
			break
		}
		node = m[part]
	}

	switch node.(type) {
	case nil, map[string]any:
		return "", errors.NewConfigInvalidError("key", key, strings.Join(config.Keys(), ", "))
	default:
		return fmt.Sprint(node), nil
	}
}
