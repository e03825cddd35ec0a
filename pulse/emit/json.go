package emit

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"
)

// ProgressEvent represents a structured JSON progress event
type ProgressEvent struct {
	Type      string                 `json:"type"` // stage, progress, complete, error, info, task, table
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// JSONEmitter writes one JSON event per line
type JSONEmitter struct {
	mu      sync.Mutex
	encoder *json.Encoder
	now     func() time.Time
}

// NewJSONEmitter creates a JSON progress emitter writing to stdout
func NewJSONEmitter() *JSONEmitter {
	return NewJSONEmitterTo(os.Stdout)
}

// NewJSONEmitterTo creates a JSON progress emitter writing to w
func NewJSONEmitterTo(w io.Writer) *JSONEmitter {
	return &JSONEmitter{encoder: json.NewEncoder(w), now: time.Now}
}

func (e *JSONEmitter) emit(eventType string, data map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	// Progress output is best effort; a closed pipe must not fail the run
	_ = e.encoder.Encode(ProgressEvent{Type: eventType, Timestamp: e.now(), Data: data})
}

// EmitStage emits a stage event
func (e *JSONEmitter) EmitStage(stage string, message string) {
	e.emit("stage", map[string]interface{}{"stage": stage, "message": message})
}

// EmitProgress emits a progress event; metadata is merged into data
func (e *JSONEmitter) EmitProgress(count int, metadata map[string]interface{}) {
	data := map[string]interface{}{"count": count}
	for k, v := range metadata {
		data[k] = v
	}
	e.emit("progress", data)
}

// EmitComplete emits a completion event
func (e *JSONEmitter) EmitComplete(summary map[string]interface{}) {
	e.emit("complete", summary)
}

// EmitError emits an error event
func (e *JSONEmitter) EmitError(stage string, err error) {
	e.emit("error", map[string]interface{}{"stage": stage, "error": err.Error()})
}

// EmitInfo emits an info event
func (e *JSONEmitter) EmitInfo(message string) {
	e.emit("info", map[string]interface{}{"message": message})
}

// AddTask emits a task registration
func (e *JSONEmitter) AddTask(taskID string, taskName string) {
	e.emit("task", map[string]interface{}{"id": taskID, "name": taskName, "status": "pending"})
}

// UpdateTaskStatus emits a task result
func (e *JSONEmitter) UpdateTaskStatus(taskID string, completed bool, result string) {
	status := "failed"
	if completed {
		status = "succeeded"
	}
	e.emit("task", map[string]interface{}{"id": taskID, "status": status, "result": result})
}

// EmitTable emits a table as header plus rows
func (e *JSONEmitter) EmitTable(title string, header []string, rows [][]string) {
	e.emit("table", map[string]interface{}{"title": title, "header": header, "rows": rows})
}
