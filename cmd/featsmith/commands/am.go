package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/featsmith/am"
	"github.com/teranos/featsmith/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage featsmith configuration",
	Long: `am — Manage featsmith configuration ("I am")

Configuration sources (later overrides earlier):
1. Default values
2. User config (~/.featsmith/featsmith.toml)
3. Project config (featsmith.toml, searched upwards from the working directory)
4. Explicit config (--config)
5. Environment variables (FEATSMITH_* prefix, plus OPENAI_API_KEY)

Examples:
  featsmith am show                    # Show current configuration
  featsmith am show --format json      # Show configuration in JSON format
  featsmith am show --sources          # Show where each value came from
  featsmith am init                    # Write defaults to ~/.featsmith/featsmith.toml
  featsmith am validate                # Validate current configuration`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runAmShow,
}

var amInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Long:  "Write the default configuration to path (default ~/.featsmith/featsmith.toml). An existing file is backed up first.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAmInit,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var (
	configFormat  string
	configSources bool
)

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	amShowCmd.Flags().BoolVar(&configSources, "sources", false, "List every setting with its source")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amInitCmd)
	AmCmd.AddCommand(amValidateCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	if configSources {
		return showSources(cmd)
	}

	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	out := cmd.OutOrStdout()

	switch configFormat {
	case "json":
		clean := *cfg
		clean.Model.APIKey = ""
		data, err := json.MarshalIndent(clean, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to JSON")
		}
		fmt.Fprintln(out, string(data))

	case "yaml":
		clean := *cfg
		clean.Model.APIKey = ""
		data, err := yaml.Marshal(clean)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		fmt.Fprintf(out, "# featsmith configuration\n%s", string(data))

	case "toml":
		data, err := am.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "# featsmith configuration\n%s", string(data))

	default:
		return errors.NewInvalidRequestError("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}
	return nil
}

func showSources(cmd *cobra.Command) error {
	intro, err := am.GetConfigIntrospection()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, s := range intro.Settings {
		source := string(s.Source)
		if s.SourcePath != "" {
			source += " " + s.SourcePath
		}
		fmt.Fprintf(out, "%-32s %-24v [%s]\n", s.Key, s.Value, source)
	}
	return nil
}

func runAmInit(cmd *cobra.Command, args []string) error {
	path := am.UserConfigPath()
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return errors.NewInvalidRequestError("no home directory; pass a path")
	}

	if err := am.WriteDefault(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote default configuration to %s\n", path)
	if _, err := os.Stat(path + ".back1"); err == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "  previous file kept as %s.back1\n", path)
	}
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration is valid")
	return nil
}
