// Package pipeline drives a full featsmith run: for each feature it
// generates instances with the model, packages them as units, then compiles
// (and optionally repairs) every unit and executes every source file.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/featsmith/ai/structured"
	"github.com/teranos/featsmith/am"
	"github.com/teranos/featsmith/check"
	"github.com/teranos/featsmith/errors"
	"github.com/teranos/featsmith/feature"
	"github.com/teranos/featsmith/ledger"
	"github.com/teranos/featsmith/logger"
	"github.com/teranos/featsmith/metrics"
	"github.com/teranos/featsmith/prompt"
	"github.com/teranos/featsmith/pulse"
	"github.com/teranos/featsmith/pulse/emit"
	"github.com/teranos/featsmith/report"
	"github.com/teranos/featsmith/unit"
)

// Config holds the run settings the driver needs
type Config struct {
	OutputDir       string
	Temperature     float64
	CodeKey         string
	Repair          bool
	MetricsTextfile string // "" = no export
}

// Gate is consulted before each generation query. A non-nil error stops
// generation; the instances not yet queried are counted as skipped.
type Gate interface {
	Check(ctx context.Context) error
}

// Deps are the driver's collaborators. Budget, Ledger, Metrics and Emitter
// are optional.
type Deps struct {
	Model    check.Querier
	Budget   Gate
	Prompts  *prompt.Library
	Packager *unit.Packager
	Compiler *check.Compiler
	Executor *check.Executor
	Ledger   *ledger.Ledger
	Metrics  *metrics.Metrics
	Emitter  pulse.ProgressEmitter
	Logger   *zap.SugaredLogger
}

// RunReport is the result of one run
type RunReport struct {
	RunID     uuid.UUID      `json:"run_id"`
	Features  []string       `json:"features"`
	Generated int            `json:"generated"`
	Skipped   int            `json:"skipped"`
	Compile   *report.Report `json:"compile"`
	Execution *report.Report `json:"execution"`
}

// Summary renders the run as plain text
func (r *RunReport) Summary() string {
	s := fmt.Sprintf("run %s: %d generated, %d skipped\n", r.RunID, r.Generated, r.Skipped)
	if r.Compile != nil {
		s += r.Compile.Summary()
	}
	if r.Execution != nil {
		s += r.Execution.Summary()
	}
	return s
}

// Generation is the result of the generation stage
type Generation struct {
	Units     []*unit.Unit
	Generated int
	Skipped   int
}

// CheckResult is the result of the compile and execution batches
type CheckResult struct {
	Compile           *report.Report
	Execution         *report.Report
	CompileOutcomes   []check.CompileOutcome
	ExecutionOutcomes []check.ExecutionOutcome
}

// Driver runs the pipeline
type Driver struct {
	cfg    Config
	deps   Deps
	shape  structured.Shape
	logger *zap.SugaredLogger
}

// NewDriver creates a driver
func NewDriver(cfg Config, deps Deps) (*Driver, error) {
	switch {
	case deps.Model == nil:
		return nil, errors.NewInvalidRequestError("pipeline needs a model")
	case deps.Prompts == nil:
		return nil, errors.NewInvalidRequestError("pipeline needs a prompt library")
	case deps.Packager == nil:
		return nil, errors.NewInvalidRequestError("pipeline needs a packager")
	case deps.Compiler == nil || deps.Executor == nil:
		return nil, errors.NewInvalidRequestError("pipeline needs both checkers")
	case cfg.OutputDir == "":
		return nil, errors.NewInvalidRequestError("output directory is empty")
	}
	if cfg.CodeKey == "" {
		cfg.CodeKey = am.DefaultCodeKey
	}
	shape, err := structured.NewShape(cfg.CodeKey)
	if err != nil {
		return nil, err
	}
	if deps.Emitter == nil {
		deps.Emitter = emit.NewNop()
	}
	return &Driver{
		cfg:    cfg,
		deps:   deps,
		shape:  shape,
		logger: logger.OrNop(deps.Logger).Named("pipeline"),
	}, nil
}

// Run generates instances of every feature, then checks the whole output
// tree. Only cancellation, invalid input and artifact I/O failures are
// returned as errors; failing units are counted in the report.
func (d *Driver) Run(ctx context.Context, features []string, instances int) (*RunReport, error) {
	if instances <= 0 {
		return nil, errors.NewInvalidRequestError("instances must be positive, got %d", instances)
	}
	selected, err := feature.Select(features)
	if err != nil {
		return nil, err
	}

	rr := &RunReport{RunID: uuid.New(), Features: selected}
	runID := rr.RunID.String()
	ctx = logger.WithRunID(ctx, runID)
	log := logger.FromContext(ctx, d.logger)

	if d.deps.Ledger != nil {
		if err := d.deps.Ledger.Start(ctx, runID, selected, instances, d.cfg.Repair); err != nil {
			return nil, err
		}
	}
	log.Infow("Run started", logger.FieldCount, len(selected), logger.FieldInstance, instances)

	runErr := d.run(ctx, rr, selected, instances)
	if runErr != nil {
		d.deps.Emitter.EmitError("run", runErr)
		log.Errorw("Run aborted", logger.FieldError, runErr)
	}

	if d.deps.Ledger != nil {
		// Recorded even when ctx ended so the row does not stay "running"
		if err := d.deps.Ledger.Finish(context.WithoutCancel(ctx), runID, ledger.Totals{
			Generated: rr.Generated,
			Skipped:   rr.Skipped,
			Compile:   rr.Compile,
			Execution: rr.Execution,
		}, runErr); err != nil {
			log.Warnw("Failed to finish ledger row", logger.FieldError, err)
		}
	}
	if err := d.deps.Metrics.WriteTextfile(d.cfg.MetricsTextfile); err != nil {
		log.Warnw("Failed to write metrics", logger.FieldError, err)
	}

	d.emitSummary(rr)
	if runErr != nil {
		return rr, runErr
	}
	d.deps.Emitter.EmitComplete(map[string]interface{}{
		"run_id":    runID,
		"generated": rr.Generated,
		"skipped":   rr.Skipped,
	})
	return rr, nil
}

func (d *Driver) run(ctx context.Context, rr *RunReport, features []string, instances int) error {
	gen, err := d.Generate(ctx, features, instances)
	if gen != nil {
		rr.Generated = gen.Generated
		rr.Skipped = gen.Skipped
	}
	if err != nil {
		return err
	}

	res, err := d.Check(ctx, d.cfg.OutputDir, d.cfg.Repair)
	if res != nil {
		rr.Compile = res.Compile
		rr.Execution = res.Execution
		d.recordOutcomes(ctx, rr.RunID.String(), res)
	}
	return err
}

// Generate queries the model for instances of each feature and packages
// every valid reply. An instance whose query is exhausted or malformed is
// skipped. A packaging I/O failure stops the stage and is returned.
func (d *Driver) Generate(ctx context.Context, features []string, instances int) (*Generation, error) {
	gen := &Generation{}
	total := len(features) * instances
	d.deps.Emitter.EmitStage("generate", fmt.Sprintf("%d features x %d instances", len(features), instances))

	for _, f := range features {
		for i := 0; i < instances; i++ {
			if err := ctx.Err(); err != nil {
				return gen, err
			}
			if d.overBudget(ctx) {
				gen.Skipped += total - gen.Generated - gen.Skipped
				return gen, nil
			}
			u, err := d.generateOne(ctx, f, i)
			if err != nil {
				return gen, err
			}
			if u == nil {
				gen.Skipped++
			} else {
				gen.Generated++
				gen.Units = append(gen.Units, u)
			}
			d.deps.Emitter.EmitProgress(gen.Generated+gen.Skipped, map[string]interface{}{
				"total": total,
				"type":  "instances",
			})
		}
	}
	return gen, nil
}

func (d *Driver) overBudget(ctx context.Context) bool {
	if d.deps.Budget == nil {
		return false
	}
	err := d.deps.Budget.Check(ctx)
	if err == nil {
		return false
	}
	logger.FromContext(ctx, d.logger).Warnw("Generation stopped", logger.FieldError, err)
	d.deps.Emitter.EmitInfo("generation stopped: " + err.Error())
	return true
}

// generateOne returns a nil unit when the instance is skipped
func (d *Driver) generateOne(ctx context.Context, f string, instance int) (*unit.Unit, error) {
	name := feature.UnitName(f, instance)
	log := logger.FromContext(ctx, d.logger).With(logger.FieldFeature, f, logger.FieldUnit, name)

	p, err := d.deps.Prompts.Generate(f)
	if err != nil {
		return nil, err
	}

	pulse.AddTask(d.deps.Emitter, name, name)
	res, err := d.deps.Model.Execute(ctx, structured.Request{
		Prompt:      p,
		Shape:       d.shape,
		Temperature: d.cfg.Temperature,
		Operation:   "generate",
		Entity:      name,
	})
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.IsInvalidRequestError(err):
		// Credentials or request shape; every other instance would fail the same way
		return nil, err
	default:
		log.Warnw("Skipping instance", logger.FieldCategory, errors.Category(err), logger.FieldError, err)
		pulse.UpdateTask(d.deps.Emitter, name, false, errors.Category(err))
		d.deps.Metrics.RecordGeneration(false)
		return nil, nil
	}

	u, err := d.deps.Packager.Package(filepath.Join(d.cfg.OutputDir, name), []string{res.Field(d.cfg.CodeKey)})
	if err != nil {
		pulse.UpdateTask(d.deps.Emitter, name, false, "io")
		return nil, err
	}
	pulse.UpdateTask(d.deps.Emitter, name, true, strconv.Itoa(res.Attempts)+" attempt(s)")
	d.deps.Metrics.RecordGeneration(true)
	log.Debugw("Generated", logger.FieldAttempt, res.Attempts, logger.FieldDir, u.Dir)
	return u, nil
}

// Check compiles every unit under root, repairing when enabled, then
// executes every source file under root.
func (d *Driver) Check(ctx context.Context, root string, repair bool) (*CheckResult, error) {
	res := &CheckResult{}

	comp, compOut, err := d.deps.Compiler.CheckAll(ctx, root, repair)
	res.Compile, res.CompileOutcomes = comp, compOut
	if err != nil {
		return res, err
	}

	exec, execOut, err := d.deps.Executor.CheckAll(ctx, root)
	res.Execution, res.ExecutionOutcomes = exec, execOut
	return res, err
}

func (d *Driver) recordOutcomes(ctx context.Context, runID string, res *CheckResult) {
	if d.deps.Ledger == nil {
		return
	}
	if err := d.deps.Ledger.RecordOutcomes(context.WithoutCancel(ctx), runID, Outcomes(res)); err != nil {
		d.logger.Warnw("Failed to record outcomes", logger.FieldRunID, runID, logger.FieldError, err)
	}
}

// Outcomes flattens check results into ledger rows
func Outcomes(res *CheckResult) []ledger.Outcome {
	out := make([]ledger.Outcome, 0, len(res.CompileOutcomes)+len(res.ExecutionOutcomes))
	for _, o := range res.CompileOutcomes {
		out = append(out, ledger.Outcome{
			Kind:           report.KindCompile,
			Subject:        o.Unit.Dir,
			Success:        o.Success,
			Category:       o.Category,
			ExitCode:       o.ExitCode,
			RepairAttempts: o.RepairAttempts,
			Message:        o.Message,
		})
	}
	for _, o := range res.ExecutionOutcomes {
		out = append(out, ledger.Outcome{
			Kind:     report.KindExecution,
			Subject:  o.File,
			Success:  o.Success,
			Category: o.Category,
			ExitCode: o.ExitCode,
			Message:  o.Message,
		})
	}
	return out
}

func (d *Driver) emitSummary(rr *RunReport) {
	rows := [][]string{}
	for _, r := range []*report.Report{rr.Compile, rr.Execution} {
		if r == nil {
			continue
		}
		rows = append(rows, []string{
			string(r.Kind),
			strconv.Itoa(r.Total),
			strconv.Itoa(r.Succeeded),
			fmt.Sprintf("%.1f%%", r.SuccessRate()),
		})
		for _, s := range r.Breakdown() {
			rows = append(rows, []string{"  " + s.Category, strconv.Itoa(s.Count), "", fmt.Sprintf("%.1f%%", s.Percent)})
		}
	}
	pulse.EmitTable(d.deps.Emitter, "Summary", []string{"Check", "Total", "Succeeded", "Rate"}, rows)
}
