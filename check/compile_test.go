package check

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/featsmith/errors"
	"github.com/teranos/featsmith/metrics"
	"github.com/teranos/featsmith/prompt"
	"github.com/teranos/featsmith/report"
	"github.com/teranos/featsmith/runner"
)

func newCompiler(t *testing.T, r runner.Runner, model Querier, maxRepairs, workers int) *Compiler {
	t.Helper()
	lib, err := prompt.Load("")
	require.NoError(t, err)

	cfg := DefaultCompilerConfig()
	cfg.MaxRepairs = maxRepairs
	cfg.Workers = workers
	c, err := NewCompiler(cfg, Deps{
		Runner:  r,
		Model:   model,
		Prompts: lib,
		Metrics: metrics.New(),
		Logger:  zaptest.NewLogger(t).Sugar(),
	})
	require.NoError(t, err)
	return c
}

func TestNewCompilerValidates(t *testing.T) {
	_, err := NewCompiler(CompilerConfig{}, Deps{Runner: &fakeRunner{}})
	assert.True(t, errors.IsInvalidRequestError(err))

	_, err = NewCompiler(DefaultCompilerConfig(), Deps{})
	assert.True(t, errors.IsInvalidRequestError(err))

	cfg := DefaultCompilerConfig()
	cfg.MaxRepairs = -1
	_, err = NewCompiler(cfg, Deps{Runner: &fakeRunner{}})
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestCompileAllPass(t *testing.T) {
	root := writeUnits(t, "casting_0", "casting_1", "loops_0")
	r := &fakeRunner{answer: func(runner.Invocation, int) (*runner.Result, error) { return ok() }}
	c := newCompiler(t, r, nil, 1, 1)

	rep, outcomes, err := c.CheckAll(context.Background(), root, false)
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Total)
	assert.Equal(t, 3, rep.Succeeded)
	assert.Empty(t, rep.Failures)
	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.Equal(t, StateSuccess, o.State)
		assert.Zero(t, o.RepairAttempts)
	}
	assert.Equal(t, 3, r.count())

	// compiler runs inside the unit directory
	assert.Equal(t, filepath.Join(root, "casting_0"), r.calls[0].Dir)
	assert.Equal(t, []string{"aptos", "move", "compile"}, r.calls[0].Args)
	assert.Equal(t, 10*time.Second, r.calls[0].Timeout)
}

func TestRecompileSucceededUnitIsStable(t *testing.T) {
	root := writeUnits(t, "casting_0")
	before := readSource(t, root, "casting_0")
	r := &fakeRunner{answer: func(runner.Invocation, int) (*runner.Result, error) { return ok() }}
	c := newCompiler(t, r, nil, 1, 1)

	for i := 0; i < 2; i++ {
		rep, _, err := c.CheckAll(context.Background(), root, false)
		require.NoError(t, err)
		assert.Equal(t, 1, rep.Succeeded)
	}
	assert.Equal(t, before, readSource(t, root, "casting_0"))
}

func TestCompileFailureWithoutRepair(t *testing.T) {
	root := writeUnits(t, "casting_0", "loops_0")
	r := &fakeRunner{answer: func(inv runner.Invocation, _ int) (*runner.Result, error) {
		if filepath.Base(inv.Dir) == "loops_0" {
			return exit(1, "error[E01002]: unexpected token\n")
		}
		return ok()
	}}
	c := newCompiler(t, r, nil, 1, 1)

	rep, outcomes, err := c.CheckAll(context.Background(), root, false)
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Total)
	assert.Equal(t, 1, rep.Succeeded)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, filepath.Join(root, "loops_0"), rep.Failures[0].Subject)
	assert.Equal(t, report.CategoryExit, rep.Failures[0].Category)
	assert.Equal(t, 1, rep.Failures[0].ExitCode)
	assert.Equal(t, "error[E01002]: unexpected token", rep.Failures[0].Message)

	failed := outcomes[1]
	assert.Equal(t, StateFailed, failed.State)
	assert.True(t, errors.Is(failed.Err, errors.ErrCompileFailure))
	assert.Zero(t, failed.RepairAttempts)
}

func TestRepairThenSucceed(t *testing.T) {
	root := writeUnits(t, "casting_0")
	r := &fakeRunner{answer: func(_ runner.Invocation, n int) (*runner.Result, error) {
		if n == 1 {
			return exit(1, "error: type mismatch")
		}
		return ok()
	}}
	model := &fakeModel{code: "module 0x1::fixed {}"}
	c := newCompiler(t, r, model, 1, 1)

	rep, outcomes, err := c.CheckAll(context.Background(), root, true)
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Succeeded)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Success)
	assert.Equal(t, 1, outcomes[0].RepairAttempts)
	assert.Equal(t, 2, r.count())

	assert.Equal(t, "module 0x1::fixed {}", readSource(t, root, "casting_0"))
	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], "error: type mismatch")
	assert.Contains(t, model.prompts[0], "module 0x1::casting_0 {}")
}

func TestRepairIsBounded(t *testing.T) {
	root := writeUnits(t, "casting_0")
	r := &fakeRunner{answer: func(runner.Invocation, int) (*runner.Result, error) {
		return exit(1, "still broken")
	}}
	model := &fakeModel{code: "module 0x1::attempt {}"}
	c := newCompiler(t, r, model, 1, 1)

	rep, outcomes, err := c.CheckAll(context.Background(), root, true)
	require.NoError(t, err)

	assert.Equal(t, 0, rep.Succeeded)
	require.Len(t, outcomes, 1)
	assert.Equal(t, StateFailed, outcomes[0].State)
	assert.Equal(t, 1, outcomes[0].RepairAttempts)
	assert.Equal(t, 2, r.count(), "one compile plus one recompile")
	assert.Len(t, model.prompts, 1)
}

func TestRepairBoundZeroNeverQueriesModel(t *testing.T) {
	root := writeUnits(t, "casting_0")
	r := &fakeRunner{answer: func(runner.Invocation, int) (*runner.Result, error) {
		return exit(1, "broken")
	}}
	model := &fakeModel{code: "unused"}
	c := newCompiler(t, r, model, 0, 1)

	_, outcomes, err := c.CheckAll(context.Background(), root, true)
	require.NoError(t, err)
	assert.Equal(t, 1, r.count())
	assert.Empty(t, model.prompts)
	assert.Zero(t, outcomes[0].RepairAttempts)
}

func TestRepairModelFailureStopsUnit(t *testing.T) {
	root := writeUnits(t, "casting_0")
	r := &fakeRunner{answer: func(runner.Invocation, int) (*runner.Result, error) {
		return exit(1, "broken")
	}}
	model := &fakeModel{err: errors.Mark(errors.New("no json"), errors.ErrMalformedResponse)}
	c := newCompiler(t, r, model, 3, 1)

	rep, outcomes, err := c.CheckAll(context.Background(), root, true)
	require.NoError(t, err)

	assert.Equal(t, 1, r.count(), "no recompile after a failed repair")
	assert.Equal(t, 1, rep.Failed())
	assert.Equal(t, StateFailed, outcomes[0].State)
	assert.Equal(t, 1, outcomes[0].RepairAttempts)
	assert.True(t, errors.Is(outcomes[0].Err, errors.ErrCompileFailure))

	// source untouched
	assert.Equal(t, "module 0x1::casting_0 {}", readSource(t, root, "casting_0"))
}

func TestTimeoutAndLaunchAreNotRepaired(t *testing.T) {
	root := writeUnits(t, "a_0", "b_0")
	r := &fakeRunner{answer: func(inv runner.Invocation, _ int) (*runner.Result, error) {
		if filepath.Base(inv.Dir) == "a_0" {
			return &runner.Result{ExitCode: -1, TimedOut: true}, errors.Mark(errors.New("aptos exceeded 10s"), errors.ErrTimeout)
		}
		return &runner.Result{ExitCode: -1}, errors.Mark(errors.New("start aptos: not found"), runner.ErrLaunch)
	}}
	model := &fakeModel{code: "module 0x1::fixed {}"}
	c := newCompiler(t, r, model, 1, 1)

	rep, outcomes, err := c.CheckAll(context.Background(), root, true)
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Failed())
	assert.Equal(t, 2, r.count(), "one compile per unit")
	assert.Empty(t, model.prompts)
	for _, o := range outcomes {
		assert.Equal(t, StateFailed, o.State)
		assert.Zero(t, o.RepairAttempts)
	}
	assert.Equal(t, "module 0x1::a_0 {}", readSource(t, root, "a_0"))
	assert.Equal(t, "module 0x1::b_0 {}", readSource(t, root, "b_0"))
	assert.Equal(t, "aptos exceeded 10s", rep.Failures[0].Message)
	assert.Equal(t, "start aptos: not found", rep.Failures[1].Message)
}

func TestRepairNeedsModel(t *testing.T) {
	root := writeUnits(t, "casting_0")
	r := &fakeRunner{answer: func(runner.Invocation, int) (*runner.Result, error) { return ok() }}
	c, err := NewCompiler(DefaultCompilerConfig(), Deps{Runner: r})
	require.NoError(t, err)

	_, _, err = c.CheckAll(context.Background(), root, true)
	assert.True(t, errors.IsInvalidRequestError(err))
	assert.Zero(t, r.count())
}

func TestCompileTimeoutAndLaunchContinueBatch(t *testing.T) {
	root := writeUnits(t, "a_0", "b_0", "c_0")
	r := &fakeRunner{answer: func(inv runner.Invocation, _ int) (*runner.Result, error) {
		switch filepath.Base(inv.Dir) {
		case "a_0":
			return &runner.Result{ExitCode: -1, TimedOut: true}, errors.Mark(errors.New("aptos exceeded 10s"), errors.ErrTimeout)
		case "b_0":
			return &runner.Result{ExitCode: -1}, errors.Mark(errors.New("start aptos: not found"), runner.ErrLaunch)
		}
		return ok()
	}}
	c := newCompiler(t, r, nil, 1, 1)

	rep, _, err := c.CheckAll(context.Background(), root, false)
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Total)
	assert.Equal(t, 1, rep.Succeeded)
	assert.Equal(t, map[string]int{report.CategoryTimeout: 1, report.CategoryLaunch: 1}, rep.Categories())
}

func TestCompileInvalidUnit(t *testing.T) {
	root := writeUnits(t, "casting_0")
	empty := filepath.Join(root, "empty_0")
	require.NoError(t, os.MkdirAll(filepath.Join(empty, "sources"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(empty, "Move.toml"), []byte("[package]\n"), 0o644))

	r := &fakeRunner{answer: func(runner.Invocation, int) (*runner.Result, error) { return ok() }}
	c := newCompiler(t, r, nil, 1, 1)

	rep, outcomes, err := c.CheckAll(context.Background(), root, false)
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Total)
	assert.Equal(t, 1, rep.Succeeded)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, report.CategoryPrecondition, rep.Failures[0].Category)
	assert.Equal(t, empty, rep.Failures[0].Subject)
	assert.Equal(t, 1, r.count(), "invalid unit never reaches the compiler")
	assert.Len(t, outcomes, 2)
}

func TestCompileMissingRoot(t *testing.T) {
	c := newCompiler(t, &fakeRunner{}, nil, 1, 1)
	_, _, err := c.CheckAll(context.Background(), filepath.Join(t.TempDir(), "nope"), false)
	assert.Error(t, err)
}

func TestCompileParallelMatchesSequential(t *testing.T) {
	names := []string{"a_0", "a_1", "b_0", "b_1", "c_0", "c_1", "d_0"}
	answer := func(inv runner.Invocation, _ int) (*runner.Result, error) {
		if filepath.Base(inv.Dir)[0] == 'b' {
			return exit(2, "bad")
		}
		return ok()
	}

	root := writeUnits(t, names...)
	seq, _, err := newCompiler(t, &fakeRunner{answer: answer}, nil, 1, 1).CheckAll(context.Background(), root, false)
	require.NoError(t, err)
	par, _, err := newCompiler(t, &fakeRunner{answer: answer}, nil, 1, 4).CheckAll(context.Background(), root, false)
	require.NoError(t, err)

	assert.Equal(t, seq, par)
	assert.Equal(t, 5, par.Succeeded)
}

func TestCompileCancelled(t *testing.T) {
	root := writeUnits(t, "a_0", "b_0", "c_0")
	ctx, cancel := context.WithCancel(context.Background())
	r := &fakeRunner{answer: func(runner.Invocation, int) (*runner.Result, error) {
		cancel()
		return ok()
	}}
	c := newCompiler(t, r, nil, 1, 1)

	rep, outcomes, err := c.CheckAll(ctx, root, false)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep)
	assert.Less(t, rep.Total, 3)
	assert.Len(t, outcomes, rep.Total)
}
