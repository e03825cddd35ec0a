// Package emit provides pulse.ProgressEmitter implementations for the
// terminal, JSON lines and tests.
package emit

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/pterm/pterm"
)

// CLIEmitter outputs pretty-printed progress to a terminal using pterm
type CLIEmitter struct {
	verbosity int
	out       io.Writer
	mu        sync.Mutex
	tasks     map[string]string
}

// NewCLIEmitter creates a CLI progress emitter writing to stdout
func NewCLIEmitter(verbosity int) *CLIEmitter {
	return NewCLIEmitterTo(os.Stdout, verbosity)
}

// NewCLIEmitterTo creates a CLI progress emitter writing to out
func NewCLIEmitterTo(out io.Writer, verbosity int) *CLIEmitter {
	return &CLIEmitter{verbosity: verbosity, out: out, tasks: make(map[string]string)}
}

// EmitStage prints a stage announcement
func (e *CLIEmitter) EmitStage(stage string, message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pterm.Fprintln(e.out, fmt.Sprintf("🔄 %s: %s", pterm.LightCyan(stage), message))
}

// EmitProgress prints a progress count, as n/total when metadata carries "total"
func (e *CLIEmitter) EmitProgress(count int, metadata map[string]interface{}) {
	if e.verbosity < 1 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	itemType := "items"
	if t, ok := metadata["type"].(string); ok {
		itemType = t
	}
	countStr := pterm.Green(fmt.Sprintf("%d", count))
	if total, ok := metadata["total"].(int); ok {
		countStr = pterm.Green(fmt.Sprintf("%d/%d", count, total))
	}
	pterm.Fprintln(e.out, fmt.Sprintf("   %s %s", countStr, itemType))
}

// EmitComplete prints completion summary
func (e *CLIEmitter) EmitComplete(summary map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pterm.Success.WithWriter(e.out).Println("Done")
	if e.verbosity >= 1 {
		keys := make([]string, 0, len(summary))
		for k := range summary {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			pterm.Fprintln(e.out, fmt.Sprintf("  %s: %v", k, summary[k]))
		}
	}
}

// EmitError prints an error
func (e *CLIEmitter) EmitError(stage string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pterm.Error.WithWriter(e.out).Printf("Error in %s: %v\n", stage, err)
}

// EmitInfo prints informational message
func (e *CLIEmitter) EmitInfo(message string) {
	if e.verbosity < 1 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	pterm.Info.WithWriter(e.out).Println(message)
}

// AddTask remembers a task's display name
func (e *CLIEmitter) AddTask(taskID string, taskName string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks[taskID] = taskName
}

// UpdateTaskStatus prints one line per finished task. Failures are always
// shown; successes only with -v.
func (e *CLIEmitter) UpdateTaskStatus(taskID string, completed bool, result string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	name := e.tasks[taskID]
	if name == "" {
		name = taskID
	}
	line := name
	if result != "" {
		line += "  " + pterm.Gray(result)
	}

	if completed {
		if e.verbosity >= 1 {
			pterm.Fprintln(e.out, "  "+pterm.Green("✔")+" "+line)
		}
		return
	}
	pterm.Fprintln(e.out, "  "+pterm.Red("✘")+" "+line)
}

// EmitTable renders a table with a header row
func (e *CLIEmitter) EmitTable(title string, header []string, rows [][]string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if title != "" {
		pterm.Fprintln(e.out, pterm.Bold.Sprint(title))
	}
	data := pterm.TableData{header}
	data = append(data, rows...)
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).WithWriter(e.out).Render(); err != nil {
		pterm.Error.WithWriter(e.out).Printf("render table: %v\n", err)
	}
}
