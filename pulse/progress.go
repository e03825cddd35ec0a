// Package pulse defines how long-running featsmith operations report
// progress. Components receive a ProgressEmitter from their caller; nothing
// in featsmith prints progress through a global.
package pulse

// ProgressEmitter defines the domain-agnostic interface for emitting progress updates
// during long-running operations. Implementations must be safe for concurrent
// use: checker workers emit from several goroutines.
type ProgressEmitter interface {
	// EmitStage announces the start of a processing stage
	EmitStage(stage string, message string)

	// EmitProgress announces progress with a count and optional metadata
	// ("total", "type", ...)
	EmitProgress(count int, metadata map[string]interface{})

	// EmitComplete announces successful completion with summary
	EmitComplete(summary map[string]interface{})

	// EmitError announces an error during processing
	EmitError(stage string, err error)

	// EmitInfo emits general informational message
	EmitInfo(message string)
}

// TaskTracker is an optional interface that ProgressEmitter implementations
// can implement to support per-item tracking (one task per unit or file).
type TaskTracker interface {
	// AddTask registers a new task that will be tracked
	AddTask(taskID string, taskName string)

	// UpdateTaskStatus updates a task's completion status
	// completed: true if task finished successfully, false if failed
	// result: optional result summary (e.g., "exit 1")
	UpdateTaskStatus(taskID string, completed bool, result string)
}

// TableEmitter is an optional interface for emitters that can render tabular
// summaries.
type TableEmitter interface {
	EmitTable(title string, header []string, rows [][]string)
}

// AddTask registers a task when e supports task tracking
func AddTask(e ProgressEmitter, taskID, taskName string) {
	if t, ok := e.(TaskTracker); ok {
		t.AddTask(taskID, taskName)
	}
}

// UpdateTask updates a task when e supports task tracking
func UpdateTask(e ProgressEmitter, taskID string, completed bool, result string) {
	if t, ok := e.(TaskTracker); ok {
		t.UpdateTaskStatus(taskID, completed, result)
	}
}

// EmitTable renders a table when e supports it, and falls back to one
// EmitInfo line per row otherwise.
func EmitTable(e ProgressEmitter, title string, header []string, rows [][]string) {
	if t, ok := e.(TableEmitter); ok {
		t.EmitTable(title, header, rows)
		return
	}
	e.EmitInfo(title)
	for _, row := range rows {
		line := ""
		for i, cell := range row {
			if i > 0 {
				line += "  "
			}
			line += cell
		}
		e.EmitInfo(line)
	}
}
