package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teranos/featsmith/am"
	"github.com/teranos/featsmith/cmd/featsmith/commands"
	"github.com/teranos/featsmith/errors"
	"github.com/teranos/featsmith/logger"
)

var rootCmd = &cobra.Command{
	Use:   "featsmith",
	Short: "featsmith - generate and verify Move feature programs",
	Long: `featsmith asks a chat model for small Move programs that exercise one
language feature each, packages them as Move units, compiles them (optionally
repairing failures with the model) and runs them through the execution harness.

Available commands:
  run       - Generate, package, compile and execute
  generate  - Generate and package only
  check     - Compile or execute an existing output tree
  features  - List the feature catalog
  am        - Manage featsmith configuration ("I am")
  runs      - Inspect the run ledger
  usage     - Show model usage and cost
  version   - Show version information

Examples:
  featsmith run --features casting --instances 3
  featsmith check compile --repair output/features
  featsmith runs ls`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		configPath, _ := cmd.Flags().GetString("config")

		if configPath != "" {
			am.SetConfigFile(configPath)
		}
		if err := logger.Initialize(logger.Options{Verbosity: verbosity, JSON: jsonOutput}); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().String("config", "", "Config file merged over ~/.featsmith and project featsmith.toml")
	rootCmd.PersistentFlags().Bool("json", false, "Emit JSON progress events and JSON logs")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.GenerateCmd)
	rootCmd.AddCommand(commands.CheckCmd)
	rootCmd.AddCommand(commands.FeaturesCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.RunsCmd)
	rootCmd.AddCommand(commands.UsageCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintln(os.Stderr, "Hint:", hint)
		}
		os.Exit(1)
	}
}
