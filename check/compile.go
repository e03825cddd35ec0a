package check

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/featsmith/ai/structured"
	"github.com/teranos/featsmith/am"
	"github.com/teranos/featsmith/errors"
	"github.com/teranos/featsmith/logger"
	"github.com/teranos/featsmith/pulse"
	"github.com/teranos/featsmith/report"
	"github.com/teranos/featsmith/runner"
	"github.com/teranos/featsmith/unit"
)

// State is where a unit is in the compile/repair cycle
type State string

// A unit starts Pending, then Compiling. A failed compile moves it to
// Failing, from where it either goes Repairing and back to Compiling, or
// ends Failed.
const (
	StatePending   State = "pending"
	StateCompiling State = "compiling"
	StateFailing   State = "failing"
	StateRepairing State = "repairing"
	StateSuccess   State = "success"
	StateFailed    State = "failed"
)

// Terminal reports whether s ends the cycle
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailed
}

// CompileOutcome is the final state of one unit
type CompileOutcome struct {
	Unit           *unit.Unit
	Success        bool
	ExitCode       int
	Stdout         string
	Stderr         string
	RepairAttempts int
	State          State
	Category       string // report category; "" on success
	Message        string // first line of the failure output; "" on success
	Err            error  // marked errors.ErrCompileFailure on failure
	Duration       time.Duration
}

func (o CompileOutcome) record(r *report.Report) {
	if o.Success {
		r.Success()
		return
	}
	r.Fail(report.Failure{
		Subject:  o.Unit.Dir,
		Category: o.Category,
		ExitCode: o.ExitCode,
		Message:  o.Message,
	})
}

// CompilerConfig configures a Compiler
type CompilerConfig struct {
	Command     []string // argv run inside the unit directory
	Timeout     time.Duration
	MaxRepairs  int
	Workers     int
	Layout      unit.Layout
	CodeKey     string  // reply key holding repaired code
	Temperature float64 // repair temperature
}

// DefaultCompilerConfig mirrors the am defaults
func DefaultCompilerConfig() CompilerConfig {
	return CompilerConfig{
		Command:     []string{"aptos", "move", "compile"},
		Timeout:     am.DefaultCheckTimeout * time.Second,
		MaxRepairs:  1,
		Workers:     1,
		Layout:      unit.DefaultLayout(),
		CodeKey:     am.DefaultCodeKey,
		Temperature: am.DefaultTemperature,
	}
}

// Compiler runs the compile check with optional bounded repair
type Compiler struct {
	cfg    CompilerConfig
	deps   Deps
	shape  structured.Shape
	logger *zap.SugaredLogger
}

// NewCompiler creates a Compiler
func NewCompiler(cfg CompilerConfig, deps Deps) (*Compiler, error) {
	if len(cfg.Command) == 0 {
		return nil, errors.NewInvalidRequestError("compile command is empty")
	}
	if deps.Runner == nil {
		return nil, errors.NewInvalidRequestError("compiler needs a runner")
	}
	if cfg.MaxRepairs < 0 {
		return nil, errors.NewInvalidRequestError("max repairs must not be negative, got %d", cfg.MaxRepairs)
	}
	if cfg.CodeKey == "" {
		cfg.CodeKey = am.DefaultCodeKey
	}
	shape, err := structured.NewShape(cfg.CodeKey)
	if err != nil {
		return nil, err
	}
	return &Compiler{
		cfg:    cfg,
		deps:   deps,
		shape:  shape,
		logger: logger.OrNop(deps.Logger).Named("compile"),
	}, nil
}

// CheckAll compiles every unit under root in discovery order. With repair
// enabled, a failing unit is rewritten by the model and recompiled, at most
// MaxRepairs times. Units with a manifest but no sources are reported as
// precondition failures without invoking the compiler.
func (c *Compiler) CheckAll(ctx context.Context, root string, repair bool) (*report.Report, []CompileOutcome, error) {
	if repair && (c.deps.Model == nil || c.deps.Prompts == nil) {
		return nil, nil, errors.NewInvalidRequestError("repair needs a model and a prompt library")
	}

	units, invalid, err := unit.Discover(root, c.cfg.Layout)
	if err != nil {
		return nil, nil, err
	}

	em := c.deps.emitter()
	em.EmitStage("compile", fmt.Sprintf("%d units under %s", len(units), root))

	outcomes := make([]CompileOutcome, len(units))
	parts := partialReports(report.KindCompile, c.cfg.Workers, len(units))
	var done atomic.Int64
	err = forEach(ctx, c.cfg.Workers, len(units), func(ctx context.Context, w, i int) {
		o := c.checkUnit(ctx, units[i], repair)
		outcomes[i] = o
		if o.State.Terminal() {
			o.record(parts[w])
		}
		n := done.Add(1)
		em.EmitProgress(int(n), map[string]interface{}{"total": len(units), "type": "units"})
	})

	pre := report.New(report.KindCompile)
	finished := make([]CompileOutcome, 0, len(units)+len(invalid))
	for _, inv := range invalid {
		o := CompileOutcome{
			Unit:     &unit.Unit{Name: filepath.Base(inv.Dir), Dir: inv.Dir},
			State:    StateFailed,
			Category: report.CategoryPrecondition,
			Message:  failureMessage(nil, inv.Err),
			Err:      inv.Err,
			ExitCode: -1,
		}
		c.logger.Warnw("Unit cannot be compiled", logger.FieldDir, inv.Dir, logger.FieldError, inv.Err)
		o.record(pre)
		finished = append(finished, o)
	}
	for _, o := range outcomes {
		// Units never started because ctx ended
		if !o.State.Terminal() {
			continue
		}
		finished = append(finished, o)
	}
	rep := mergeReports(pre, parts)
	c.deps.Metrics.RecordReport(rep)

	return rep, finished, err
}

// CheckUnit runs the compile/repair cycle for one unit
func (c *Compiler) CheckUnit(ctx context.Context, u *unit.Unit, repair bool) CompileOutcome {
	return c.checkUnit(ctx, u, repair)
}

func (c *Compiler) checkUnit(ctx context.Context, u *unit.Unit, repair bool) CompileOutcome {
	log := c.logger.With(logger.FieldUnit, u.Name)
	start := time.Now()
	out := CompileOutcome{Unit: u, State: StatePending}
	em := c.deps.emitter()
	pulse.AddTask(em, u.Dir, u.Name)

	defer func() {
		out.Duration = time.Since(start)
		if !out.State.Terminal() {
			return
		}
		c.deps.Metrics.ObserveCheck(report.KindCompile, out.Category, out.Duration)
		pulse.UpdateTask(em, u.Dir, out.Success, taskResult(out.Success, out.Category, out.ExitCode))
	}()

	for {
		out.State = StateCompiling
		res, err := c.deps.Runner.Run(ctx, runner.Invocation{
			Args:    c.cfg.Command,
			Dir:     u.Dir,
			Timeout: c.cfg.Timeout,
		})
		if ctx.Err() != nil {
			// Left non-terminal: a cancelled unit is not a result
			out.Err = ctx.Err()
			return out
		}
		if res != nil {
			out.ExitCode = res.ExitCode
			out.Stdout = res.Stdout
			out.Stderr = res.Stderr
		}

		if err == nil && res.Success() {
			out.State = StateSuccess
			out.Success = true
			out.Category = ""
			out.Message = ""
			out.Err = nil
			log.Infow("Compiled",
				logger.FieldRepairAttempt, out.RepairAttempts,
				logger.FieldDurationMS, since(start))
			return out
		}

		out.State = StateFailing
		out.Category = failureCategory(err)
		out.Message = failureMessage(res, err)
		out.Err = compileError(u, res, err)
		log.Warnw("Compile failed",
			logger.FieldCategory, out.Category,
			logger.FieldExitCode, out.ExitCode,
			logger.FieldStdout, out.Stdout,
			logger.FieldStderr, out.Stderr,
		)

		// Only a compiler verdict is worth repairing; a timeout or a
		// missing binary would fail the same way on any source.
		if !repair || out.Category != report.CategoryExit || out.RepairAttempts >= c.cfg.MaxRepairs {
			out.State = StateFailed
			return out
		}

		out.State = StateRepairing
		out.RepairAttempts++
		if rerr := c.repair(ctx, u, errorText(res, err)); rerr != nil {
			if ctx.Err() != nil {
				out.Err = ctx.Err()
				return out
			}
			out.Err = errors.WithSecondaryError(out.Err, rerr)
			log.Warnw("Repair failed",
				logger.FieldRepairAttempt, out.RepairAttempts,
				logger.FieldError, rerr)
			out.State = StateFailed
			return out
		}
		log.Infow("Repair written",
			logger.FieldRepairAttempt, out.RepairAttempts,
			logger.FieldFile, u.PrimarySource())
	}
}

func (c *Compiler) repair(ctx context.Context, u *unit.Unit, failure string) error {
	path := u.PrimarySource()
	code, err := os.ReadFile(path)
	if err != nil {
		return errors.MarkFileNotFound(errors.Wrapf(err, "read %s for repair", path))
	}

	p, err := c.deps.Prompts.Fix(string(code), failure)
	if err != nil {
		return err
	}

	res, err := c.deps.Model.Execute(ctx, structured.Request{
		Prompt:      p,
		Shape:       c.shape,
		Temperature: c.cfg.Temperature,
		Operation:   "repair",
		Entity:      u.Name,
	})
	if err != nil {
		return errors.Wrapf(err, "repair %s", u.Name)
	}

	if err := unit.Rewrite(path, res.Field(c.cfg.CodeKey)); err != nil {
		return err
	}
	c.deps.Metrics.RecordRepair()
	return nil
}

func compileError(u *unit.Unit, res *runner.Result, err error) error {
	var e error
	switch {
	case err != nil:
		e = errors.Wrapf(err, "compile %s", u.Name)
	case res != nil:
		e = errors.Newf("compile %s: exit status %d", u.Name, res.ExitCode)
	default:
		e = errors.Newf("compile %s failed", u.Name)
	}
	return errors.Mark(e, errors.ErrCompileFailure)
}
