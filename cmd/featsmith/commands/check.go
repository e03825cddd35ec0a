package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/featsmith/check"
	"github.com/teranos/featsmith/errors"
	"github.com/teranos/featsmith/metrics"
	"github.com/teranos/featsmith/pipeline"
	"github.com/teranos/featsmith/report"
)

// CheckCmd groups the standalone checkers
var CheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Compile or execute an existing output tree",
	Long: `Run one checker over units that are already on disk.

Examples:
  featsmith check compile                     # every unit under generate.output_dir
  featsmith check compile --repair ./out      # repair failures with the model
  featsmith check exec ./out`,
}

var checkCompileCmd = &cobra.Command{
	Use:   "compile [dir]",
	Short: "Compile every unit under dir",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheckCompile,
}

var checkExecCmd = &cobra.Command{
	Use:   "exec [dir]",
	Short: "Run every source file under dir through the execution harness",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheckExec,
}

var checkRepair bool

func init() {
	checkCompileCmd.Flags().BoolVar(&checkRepair, "repair", false, "Repair compile failures with the model (overrides compile.repair)")
	CheckCmd.AddCommand(checkCompileCmd)
	CheckCmd.AddCommand(checkExecCmd)
}

func checkRoot(s *session, args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return s.cfg.Generate.OutputDir
}

func runCheckCompile(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	repair := s.cfg.Compile.Repair
	if cmd.Flags().Changed("repair") {
		repair = checkRepair
	}

	var compiler *check.Compiler
	m := metrics.New()
	if repair {
		// Repair needs the model; build everything from config
		a, err := pipeline.Assemble(s.cfg, pipeline.Env{Emitter: s.emitter, Logger: s.log})
		if err != nil {
			return err
		}
		defer a.Close()
		compiler, m = a.Compiler, a.Metrics
	} else {
		compiler, _, err = pipeline.Checkers(s.cfg, check.Deps{Emitter: s.emitter, Metrics: m, Logger: s.log})
		if err != nil {
			return err
		}
	}

	rep, _, err := compiler.CheckAll(cmd.Context(), checkRoot(s, args), repair)
	if err != nil {
		return errors.Wrap(err, "compile check failed")
	}
	return finishCheck(cmd, s, m, rep)
}

func runCheckExec(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	m := metrics.New()
	_, executor, err := pipeline.Checkers(s.cfg, check.Deps{Emitter: s.emitter, Metrics: m, Logger: s.log})
	if err != nil {
		return err
	}

	rep, _, err := executor.CheckAll(cmd.Context(), checkRoot(s, args))
	if err != nil {
		return errors.Wrap(err, "execution check failed")
	}
	return finishCheck(cmd, s, m, rep)
}

func finishCheck(cmd *cobra.Command, s *session, m *metrics.Metrics, rep *report.Report) error {
	if err := m.WriteTextfile(s.cfg.Metrics.Textfile); err != nil {
		s.log.Warnw("Failed to write metrics", "error", err)
	}
	if s.json {
		data, err := json.Marshal(rep)
		if err != nil {
			return errors.Wrap(err, "failed to marshal report")
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), rep.Summary())
	for _, f := range rep.Failures {
		fmt.Fprintf(cmd.OutOrStdout(), "  FAIL %s [%s] %s\n", f.Subject, f.Category, f.Message)
	}
	return nil
}
