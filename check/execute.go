package check

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/featsmith/am"
	"github.com/teranos/featsmith/errors"
	"github.com/teranos/featsmith/logger"
	"github.com/teranos/featsmith/pulse"
	"github.com/teranos/featsmith/report"
	"github.com/teranos/featsmith/runner"
	"github.com/teranos/featsmith/unit"
)

// ExecutionOutcome is the result of running one source file
type ExecutionOutcome struct {
	File     string
	Success  bool
	ExitCode int
	Stdout   string
	Stderr   string
	Category string
	Message  string // first line of the failure output; "" on success
	Err      error
	Duration time.Duration
}

func (o ExecutionOutcome) record(r *report.Report) {
	if o.Success {
		r.Success()
		return
	}
	r.Fail(report.Failure{
		Subject:  o.File,
		Category: o.Category,
		ExitCode: o.ExitCode,
		Message:  o.Message,
	})
}

// ExecutorConfig configures an Executor
type ExecutorConfig struct {
	Command []string // argv; the source path is appended
	Timeout time.Duration
	Workers int
	Layout  unit.Layout
}

// DefaultExecutorConfig mirrors the am defaults
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Command: []string{am.DefaultExecuteCommand},
		Timeout: am.DefaultCheckTimeout * time.Second,
		Workers: 1,
		Layout:  unit.DefaultLayout(),
	}
}

// Executor runs every source file through the execution harness
type Executor struct {
	cfg    ExecutorConfig
	deps   Deps
	logger *zap.SugaredLogger
}

// NewExecutor creates an Executor
func NewExecutor(cfg ExecutorConfig, deps Deps) (*Executor, error) {
	if len(cfg.Command) == 0 {
		return nil, errors.NewInvalidRequestError("execute command is empty")
	}
	if deps.Runner == nil {
		return nil, errors.NewInvalidRequestError("executor needs a runner")
	}
	return &Executor{
		cfg:    cfg,
		deps:   deps,
		logger: logger.OrNop(deps.Logger).Named("execute"),
	}, nil
}

// CheckAll runs every source file found under root
func (e *Executor) CheckAll(ctx context.Context, root string) (*report.Report, []ExecutionOutcome, error) {
	files, err := unit.SourceFiles(root, e.cfg.Layout)
	if err != nil {
		return nil, nil, err
	}
	e.deps.emitter().EmitStage("execute", fmt.Sprintf("%d files under %s", len(files), root))
	return e.CheckFiles(ctx, files)
}

// CheckFiles runs the given files in order. A file that no longer exists is
// reported as missing without invoking the harness.
func (e *Executor) CheckFiles(ctx context.Context, files []string) (*report.Report, []ExecutionOutcome, error) {
	em := e.deps.emitter()
	outcomes := make([]ExecutionOutcome, len(files))
	ran := make([]bool, len(files))
	parts := partialReports(report.KindExecution, e.cfg.Workers, len(files))
	var done atomic.Int64

	err := forEach(ctx, e.cfg.Workers, len(files), func(ctx context.Context, w, i int) {
		o, ok := e.checkFile(ctx, files[i])
		if !ok {
			return
		}
		outcomes[i], ran[i] = o, true
		o.record(parts[w])
		n := done.Add(1)
		em.EmitProgress(int(n), map[string]interface{}{"total": len(files), "type": "files"})
	})

	finished := make([]ExecutionOutcome, 0, len(files))
	for i, o := range outcomes {
		if ran[i] {
			finished = append(finished, o)
		}
	}
	rep := mergeReports(report.New(report.KindExecution), parts)
	e.deps.Metrics.RecordReport(rep)

	return rep, finished, err
}

// checkFile returns false when ctx ended before the file had a result
func (e *Executor) checkFile(ctx context.Context, file string) (ExecutionOutcome, bool) {
	log := e.logger.With(logger.FieldFile, file)
	em := e.deps.emitter()
	start := time.Now()
	out := ExecutionOutcome{File: file, ExitCode: -1}
	pulse.AddTask(em, file, file)

	finish := func() (ExecutionOutcome, bool) {
		out.Duration = time.Since(start)
		e.deps.Metrics.ObserveCheck(report.KindExecution, out.Category, out.Duration)
		pulse.UpdateTask(em, file, out.Success, taskResult(out.Success, out.Category, out.ExitCode))
		return out, true
	}

	if _, err := os.Stat(file); err != nil {
		out.Category = report.CategoryMissing
		out.Message = failureMessage(nil, err)
		out.Err = errors.MarkFileNotFound(errors.Wrapf(err, "execute %s", file))
		log.Warnw("Source file missing", logger.FieldError, err)
		return finish()
	}

	args := make([]string, 0, len(e.cfg.Command)+1)
	args = append(args, e.cfg.Command...)
	args = append(args, file)

	res, err := e.deps.Runner.Run(ctx, runner.Invocation{Args: args, Timeout: e.cfg.Timeout})
	if ctx.Err() != nil {
		return out, false
	}
	if res != nil {
		out.ExitCode = res.ExitCode
		out.Stdout = res.Stdout
		out.Stderr = res.Stderr
	}

	if err == nil && res.Success() {
		out.Success = true
		log.Debugw("Executed", logger.FieldDurationMS, since(start))
		return finish()
	}

	out.Category = failureCategory(err)
	out.Message = failureMessage(res, err)
	if err == nil {
		err = errors.Newf("execute %s: exit status %d", file, out.ExitCode)
	} else {
		err = errors.Wrapf(err, "execute %s", file)
	}
	out.Err = errors.Mark(err, errors.ErrExecutionFailure)
	log.Warnw("Execution failed",
		logger.FieldCategory, out.Category,
		logger.FieldExitCode, out.ExitCode,
		logger.FieldStdout, out.Stdout,
		logger.FieldStderr, out.Stderr,
	)
	return finish()
}
