package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across featsmith.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity
	FieldRunID     = "run_id"
	FieldFeature   = "feature"
	FieldInstance  = "instance"
	FieldUnit      = "unit"
	FieldComponent = "component"

	// Model calls
	FieldAttempt   = "attempt"
	FieldMaxTokens = "max_tokens"
	FieldModel     = "model"
	FieldProvider  = "provider"

	// External invocations
	FieldCommand  = "command"
	FieldExitCode = "exit_code"
	FieldStdout   = "stdout"
	FieldStderr   = "stderr"

	// Repair
	FieldRepairAttempt = "repair_attempt"
	FieldState         = "state"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError    = "error"
	FieldCategory = "category"

	// Counts
	FieldCount     = "count"
	FieldTotal     = "total"
	FieldSucceeded = "succeeded"

	// Files and paths
	FieldFile = "file"
	FieldDir  = "dir"
	FieldPath = "path"
)

type contextKey string

const (
	runIDKey     contextKey = "logger_run_id"
	componentKey contextKey = "logger_component"
)

// WithRunID adds a run ID to the context for logging
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if runID, ok := ctx.Value(runIDKey).(string); ok && runID != "" {
		fields = append(fields, FieldRunID, runID)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// FromContext returns base with fields extracted from ctx.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	base = OrNop(base)
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}
