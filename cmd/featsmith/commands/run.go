package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/featsmith/errors"
	"github.com/teranos/featsmith/feature"
	"github.com/teranos/featsmith/pipeline"
)

// RunCmd runs the whole pipeline
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate, package, compile and execute feature programs",
	Long: `Generate instances of each selected feature with the model, package them
under the output directory, compile every unit (repairing failures when
--repair is set) and run every source file through the execution harness.

Instances whose model query is exhausted or malformed are skipped. A failure
to write a unit aborts the run. Every run is recorded in the ledger when
database.path is set.

Examples:
  featsmith run                                  # whole catalog, 3 instances each
  featsmith run --features casting,"vector rotate" --instances 1
  featsmith run --repair --out /tmp/featsmith`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runFeatureNames []string
	runInstances    int
	runRepair       bool
	runOut          string
)

func init() {
	addGenerateFlags(RunCmd, &runFeatureNames, &runInstances, &runOut)
	RunCmd.Flags().BoolVar(&runRepair, "repair", false, "Repair compile failures with the model (overrides compile.repair)")
}

func addGenerateFlags(cmd *cobra.Command, features *[]string, instances *int, out *string) {
	cmd.Flags().StringSliceVar(features, "features", nil, "Features to generate (default: generate.features, else the whole catalog)")
	cmd.Flags().IntVarP(instances, "instances", "n", 0, "Instances per feature (default: generate.instances)")
	cmd.Flags().StringVarP(out, "out", "o", "", "Output directory (default: generate.output_dir)")
}

// applyGenerateFlags overlays command flags on the loaded config
func (s *session) applyGenerateFlags(cmd *cobra.Command, features []string, instances int, out string) ([]string, int) {
	if out != "" {
		s.cfg.Generate.OutputDir = out
	}
	if !cmd.Flags().Changed("features") {
		features = s.cfg.Generate.Features
	}
	if instances <= 0 {
		instances = s.cfg.Generate.Instances
	}
	return features, instances
}

func runRun(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	features, instances := s.applyGenerateFlags(cmd, runFeatureNames, runInstances, runOut)
	if cmd.Flags().Changed("repair") {
		s.cfg.Compile.Repair = runRepair
	}

	a, err := pipeline.Assemble(s.cfg, pipeline.Env{Emitter: s.emitter, Logger: s.log})
	if err != nil {
		return err
	}
	defer a.Close()

	rr, err := a.Driver.Run(cmd.Context(), features, instances)
	if err != nil {
		return errors.Wrap(err, "run failed")
	}
	return printRunReport(cmd, s, rr)
}

func printRunReport(cmd *cobra.Command, s *session, rr *pipeline.RunReport) error {
	if s.json {
		data, err := json.Marshal(rr)
		if err != nil {
			return errors.Wrap(err, "failed to marshal run report")
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), rr.Summary())
	return nil
}

// GenerateCmd generates and packages without checking
var GenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate and package feature programs without checking them",
	Long: `Generate instances of each selected feature and package them under the
output directory. Use 'featsmith check' afterwards to compile and execute.

Examples:
  featsmith generate --features loops -n 5`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

var (
	genFeatures  []string
	genInstances int
	genOut       string
)

func init() {
	addGenerateFlags(GenerateCmd, &genFeatures, &genInstances, &genOut)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	features, instances := s.applyGenerateFlags(cmd, genFeatures, genInstances, genOut)
	selected, err := feature.Select(features)
	if err != nil {
		return err
	}

	a, err := pipeline.Assemble(s.cfg, pipeline.Env{Emitter: s.emitter, Logger: s.log})
	if err != nil {
		return err
	}
	defer a.Close()

	gen, err := a.Driver.Generate(cmd.Context(), selected, instances)
	if err != nil {
		return errors.Wrap(err, "generate failed")
	}
	if err := a.Metrics.WriteTextfile(s.cfg.Metrics.Textfile); err != nil {
		s.log.Warnw("Failed to write metrics", "error", err)
	}

	s.emitter.EmitComplete(map[string]interface{}{
		"generated": gen.Generated,
		"skipped":   gen.Skipped,
		"output":    s.cfg.Generate.OutputDir,
	})
	return nil
}
