package commands

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/featsmith/am"
	"github.com/teranos/featsmith/db"
	"github.com/teranos/featsmith/errors"
	"github.com/teranos/featsmith/ledger"
	"github.com/teranos/featsmith/logger"
	"github.com/teranos/featsmith/pulse"
	"github.com/teranos/featsmith/pulse/emit"
)

// RunsCmd inspects the run ledger
var RunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded runs",
	Long: `Inspect the run ledger kept in database.path.

Examples:
  featsmith runs ls                # Most recent runs
  featsmith runs ls --limit 50
  featsmith runs show <run-id>     # One run with every unit outcome`,
}

var runsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recent runs",
	Args:  cobra.NoArgs,
	RunE:  runRunsLs,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run and its unit outcomes",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsLimit int

func init() {
	runsLsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Number of runs to show (0 = all)")
	RunsCmd.AddCommand(runsLsCmd)
	RunsCmd.AddCommand(runsShowCmd)
}

// openDatabase opens and migrates the configured database
func openDatabase() (*sql.DB, *am.Config, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load configuration")
	}
	if cfg.Database.Path == "" {
		return nil, nil, errors.WithHint(
			errors.NewInvalidRequestError("the ledger is disabled"),
			"set database.path in featsmith.toml",
		)
	}
	conn, err := db.OpenWithMigrations(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, nil, err
	}
	return conn, cfg, nil
}

func runRunsLs(cmd *cobra.Command, args []string) error {
	conn, _, err := openDatabase()
	if err != nil {
		return err
	}
	defer conn.Close()

	runs, err := ledger.New(conn, logger.Logger).List(cmd.Context(), runsLimit)
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return printJSON(cmd, runs)
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			string(r.Status),
			strconv.Itoa(r.Generated) + "/" + strconv.Itoa(r.Generated+r.Skipped),
			ratio(r.CompileSucceeded, r.CompileTotal),
			ratio(r.ExecutionSucceeded, r.ExecutionTotal),
		})
	}
	pulse.EmitTable(emit.NewCLIEmitterTo(cmd.OutOrStdout(), 0),
		fmt.Sprintf("%d runs", len(runs)),
		[]string{"Run", "Started", "Status", "Generated", "Compiled", "Executed"}, rows)
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	conn, _, err := openDatabase()
	if err != nil {
		return err
	}
	defer conn.Close()

	run, outcomes, err := ledger.New(conn, logger.Logger).Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return printJSON(cmd, map[string]interface{}{"run": run, "outcomes": outcomes})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:       %s\n", run.ID)
	fmt.Fprintf(out, "Status:    %s\n", run.Status)
	fmt.Fprintf(out, "Started:   %s\n", run.StartedAt.Local().Format(time.DateTime))
	if run.FinishedAt != nil {
		fmt.Fprintf(out, "Duration:  %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
	}
	fmt.Fprintf(out, "Features:  %s\n", strings.Join(run.Features, ", "))
	fmt.Fprintf(out, "Instances: %d (repair: %t)\n", run.Instances, run.Repair)
	fmt.Fprintf(out, "Generated: %d, skipped %d\n", run.Generated, run.Skipped)
	fmt.Fprintf(out, "Compile:   %s\n", ratio(run.CompileSucceeded, run.CompileTotal))
	fmt.Fprintf(out, "Execution: %s\n", ratio(run.ExecutionSucceeded, run.ExecutionTotal))
	if run.ErrorMessage != nil {
		fmt.Fprintf(out, "Error:     %s\n", *run.ErrorMessage)
	}

	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		result := "ok"
		if !o.Success {
			result = o.Category
		}
		rows = append(rows, []string{string(o.Kind), o.Subject, result, strconv.Itoa(o.RepairAttempts)})
	}
	if len(rows) > 0 {
		fmt.Fprintln(out)
		pulse.EmitTable(emit.NewCLIEmitterTo(out, 0), "", []string{"Kind", "Subject", "Result", "Repairs"}, rows)
	}
	return nil
}

func ratio(n, total int) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d (%.0f%%)", n, total, float64(n)*100/float64(total))
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal JSON")
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
