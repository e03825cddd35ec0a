package logger

// Output controls what categories of information are shown at each verbosity level.
//
// Unlike log levels (which filter by severity), output categories control
// WHAT types of information are displayed regardless of severity.
//
// Verbosity Levels:
//
//	0 (default) - Final summary, errors with hints
//	1 (-v)      - + Stage progress, per-unit outcomes
//	2 (-vv)     - + Model attempts, compiler/harness output, config loaded
//	3 (-vvv)    - + Rendered prompts, raw model replies

// OutputCategory defines a category of output that can be enabled/disabled
type OutputCategory int

const (
	// Level 0 (default) - Always shown
	OutputSummary OutputCategory = iota // Final run summary
	OutputErrors                        // Errors with hints

	// Level 1 (-v) - Informational
	OutputProgress     // Stage and per-unit progress
	OutputUnitOutcomes // One line per unit/file outcome

	// Level 2 (-vv) - Detailed
	OutputModelAttempts  // Each model attempt and its token budget
	OutputCompilerOutput // Compiler and harness stdout/stderr
	OutputConfig         // Config values loaded/applied

	// Level 3 (-vvv) - Full dump
	OutputPrompts    // Rendered prompts sent to the model
	OutputModelReply // Raw model replies
)

// categoryLevels maps each output category to its minimum verbosity level
var categoryLevels = map[OutputCategory]int{
	OutputSummary: VerbosityUser,
	OutputErrors:  VerbosityUser,

	OutputProgress:     VerbosityInfo,
	OutputUnitOutcomes: VerbosityInfo,

	OutputModelAttempts:  VerbosityDebug,
	OutputCompilerOutput: VerbosityDebug,
	OutputConfig:         VerbosityDebug,

	OutputPrompts:    VerbosityTrace,
	OutputModelReply: VerbosityTrace,
}

// ShouldOutput returns true if the given category should be shown at the given verbosity
func ShouldOutput(verbosity int, category OutputCategory) bool {
	minLevel, ok := categoryLevels[category]
	if !ok {
		return verbosity >= VerbosityTrace
	}
	return verbosity >= minLevel
}

var categoryNames = map[OutputCategory]string{
	OutputSummary:        "summary",
	OutputErrors:         "errors",
	OutputProgress:       "progress",
	OutputUnitOutcomes:   "unit-outcomes",
	OutputModelAttempts:  "model-attempts",
	OutputCompilerOutput: "compiler-output",
	OutputConfig:         "config",
	OutputPrompts:        "prompts",
	OutputModelReply:     "model-reply",
}

// CategoryName returns the human-readable name for an output category
func CategoryName(category OutputCategory) string {
	if name, ok := categoryNames[category]; ok {
		return name
	}
	return "unknown"
}

// VerbosityDescription returns a description of what's shown at each level
func VerbosityDescription(verbosity int) string {
	switch verbosity {
	case VerbosityUser:
		return "summary and errors only"
	case VerbosityInfo:
		return "summary, errors, progress and unit outcomes"
	case VerbosityDebug:
		return "above + model attempts, compiler output, config"
	default:
		if verbosity >= VerbosityTrace {
			return "full output including prompts and model replies"
		}
		return "unknown verbosity level"
	}
}
