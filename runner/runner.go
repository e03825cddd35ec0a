// Package runner invokes the external compiler and execution harness.
package runner

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"github.com/teranos/featsmith/errors"
	"github.com/teranos/featsmith/logger"
)

// ErrLaunch marks an invocation whose binary could not be started
var ErrLaunch = errors.New("launch failure")

// waitDelay bounds how long Run waits for output pipes after the process is killed
const waitDelay = time.Second

// Invocation describes one external command
type Invocation struct {
	Args    []string      // argv; Args[0] is the binary
	Dir     string        // working directory; "" = current
	Timeout time.Duration // 0 = no timeout beyond ctx
}

// Result is what the process produced. It is returned even when Run also
// returns an error, carrying whatever output was captured.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
}

// Success reports a clean zero exit
func (r *Result) Success() bool {
	return r != nil && !r.TimedOut && r.ExitCode == 0
}

// Runner runs an Invocation. A non-zero exit is not an error: callers read
// Result.ExitCode. Errors are reserved for timeouts (errors.ErrTimeout),
// launch failures (ErrLaunch) and cancellation of ctx.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (*Result, error)
}

// ParseCommand splits a configured command line the way a shell would
func ParseCommand(command string) ([]string, error) {
	args, err := shellquote.Split(command)
	if err != nil {
		return nil, errors.Wrapf(err, "parse command %q", command)
	}
	if len(args) == 0 {
		return nil, errors.NewInvalidRequestError("command is empty")
	}
	return args, nil
}

// Exec runs real subprocesses
type Exec struct {
	logger *zap.SugaredLogger
}

// NewExec creates a subprocess runner. A nil logger disables logging.
func NewExec(log *zap.SugaredLogger) *Exec {
	return &Exec{logger: logger.OrNop(log).Named("runner")}
}

// Run executes inv and captures stdout and stderr
func (e *Exec) Run(ctx context.Context, inv Invocation) (*Result, error) {
	if len(inv.Args) == 0 {
		return nil, errors.NewInvalidRequestError("invocation has no command")
	}

	runCtx := ctx
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, inv.Args[0], inv.Args[1:]...)
	cmd.Dir = inv.Dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	e.logger.Debugw("Invoking",
		logger.FieldCommand, shellquote.Join(inv.Args...),
		logger.FieldDir, inv.Dir)

	start := time.Now()
	err := cmd.Run()
	res := &Result{
		ExitCode: -1,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case ctx.Err() != nil:
		return res, ctx.Err()
	case runCtx.Err() == context.DeadlineExceeded:
		res.TimedOut = true
		e.logger.Warnw("Invocation timed out",
			logger.FieldCommand, inv.Args[0],
			logger.FieldDir, inv.Dir,
			logger.FieldDurationMS, res.Duration.Milliseconds())
		return res, errors.Mark(
			errors.Newf("%s exceeded %s", inv.Args[0], inv.Timeout),
			errors.ErrTimeout,
		)
	case err != nil && cmd.ProcessState == nil:
		return res, errors.Mark(
			errors.Wrapf(err, "start %s", inv.Args[0]),
			ErrLaunch,
		)
	}

	e.logger.Debugw("Invocation finished",
		logger.FieldCommand, inv.Args[0],
		logger.FieldExitCode, res.ExitCode,
		logger.FieldDurationMS, res.Duration.Milliseconds())
	return res, nil
}
