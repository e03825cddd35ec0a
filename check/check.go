// Package check verifies packaged units against the external compiler and
// execution harness.
//
// Compiler works per unit and can repair a failing unit by asking the model
// for a corrected source. Executor works per source file and never repairs.
// Neither lets one failing subject stop the batch: only context
// cancellation and an unusable output root are returned as errors.
package check

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/featsmith/ai/structured"
	"github.com/teranos/featsmith/errors"
	"github.com/teranos/featsmith/metrics"
	"github.com/teranos/featsmith/prompt"
	"github.com/teranos/featsmith/pulse"
	"github.com/teranos/featsmith/pulse/emit"
	"github.com/teranos/featsmith/report"
	"github.com/teranos/featsmith/runner"
)

// Querier is the model side of a repair
type Querier interface {
	Execute(ctx context.Context, req structured.Request) (*structured.Result, error)
}

var _ Querier = (*structured.Client)(nil)

// Deps are the collaborators shared by Compiler and Executor. Only Runner
// is required; Model and Prompts are needed for repair.
type Deps struct {
	Runner  runner.Runner
	Model   Querier
	Prompts *prompt.Library
	Emitter pulse.ProgressEmitter
	Metrics *metrics.Metrics
	Logger  *zap.SugaredLogger
}

func (d Deps) emitter() pulse.ProgressEmitter {
	if d.Emitter == nil {
		return emit.NewNop()
	}
	return d.Emitter
}

// failureCategory maps a finished invocation to a report category
func failureCategory(err error) string {
	switch {
	case errors.Is(err, errors.ErrTimeout):
		return report.CategoryTimeout
	case errors.Is(err, runner.ErrLaunch):
		return report.CategoryLaunch
	default:
		return report.CategoryExit
	}
}

// errorText is what a repair prompt shows the model: stderr, else stdout,
// else the invocation error.
func errorText(res *runner.Result, err error) string {
	if res != nil {
		if s := strings.TrimSpace(res.Stderr); s != "" {
			return s
		}
		if s := strings.TrimSpace(res.Stdout); s != "" {
			return s
		}
	}
	if err != nil {
		return err.Error()
	}
	if res != nil {
		return "exit status " + strconv.Itoa(res.ExitCode)
	}
	return "unknown failure"
}

// forEach calls fn for 0..n-1, sequentially when workers <= 1 and on
// bounded errgroup workers otherwise. Each index is handled by exactly one
// worker; worker is in [0, workerSlots(workers, n)). Indexes not started
// before ctx is done are skipped.
func forEach(ctx context.Context, workers, n int, fn func(ctx context.Context, worker, i int)) error {
	if workers <= 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(ctx, 0, i)
		}
		return ctx.Err()
	}

	var next atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workerSlots(workers, n); w++ {
		w := w
		g.Go(func() error {
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				i := int(next.Add(1)) - 1
				if i >= n {
					return nil
				}
				fn(gctx, w, i)
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// workerSlots is the number of distinct worker indexes forEach hands out
func workerSlots(workers, n int) int {
	if workers > n {
		workers = n
	}
	if workers < 1 {
		return 1
	}
	return workers
}

// partialReports returns one empty report per worker slot
func partialReports(kind report.Kind, workers, n int) []*report.Report {
	parts := make([]*report.Report, workerSlots(workers, n))
	for i := range parts {
		parts[i] = report.New(kind)
	}
	return parts
}

// mergeReports folds per-worker reports into base
func mergeReports(base *report.Report, parts []*report.Report) *report.Report {
	for _, p := range parts {
		base = base.Merge(p)
	}
	return base
}

// failureMessage is the one-line report message for a failed invocation:
// the first line of stderr, else stdout, else the runner's own error.
func failureMessage(res *runner.Result, err error) string {
	return firstLine(errorText(res, err))
}

func since(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}

// firstLine trims s to its first non-empty line for report messages
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// taskResult is the short status shown next to a finished task
func taskResult(success bool, category string, exitCode int) string {
	if success {
		return "ok"
	}
	if category == report.CategoryExit {
		return "exit " + strconv.Itoa(exitCode)
	}
	return category
}
