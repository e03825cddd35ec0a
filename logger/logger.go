package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Logger is the process-wide logger owned by the CLI. Library packages
	// never read it; they receive a *zap.SugaredLogger from their caller.
	Logger *zap.SugaredLogger
	// JSONOutput records whether Initialize selected JSON output
	JSONOutput bool
)

func init() {
	// Safe no-op logger until Initialize runs
	Logger = zap.NewNop().Sugar()
}

// Options controls logger construction.
type Options struct {
	// Verbosity is the -v flag count, mapped through VerbosityToLevel
	Verbosity int
	// JSON selects zap's production JSON encoder instead of the minimal console encoder
	JSON bool
	// Output defaults to os.Stderr so progress output on stdout stays clean
	Output io.Writer
	// Theme selects the console color palette ("everforest" or "gruvbox")
	Theme string
}

// New builds a SugaredLogger from opts.
func New(opts Options) (*zap.SugaredLogger, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := zap.NewAtomicLevelAt(VerbosityToLevel(opts.Verbosity))

	if opts.JSON {
		config := zap.NewProductionEncoderConfig()
		config.TimeKey = "ts"
		config.EncodeTime = zapcore.ISO8601TimeEncoder
		core := zapcore.NewCore(zapcore.NewJSONEncoder(config), zapcore.AddSync(out), level)
		return zap.New(core).Sugar(), nil
	}

	if opts.Theme != "" {
		SetTheme(opts.Theme)
	}
	core := zapcore.NewCore(newMinimalEncoder(), zapcore.AddSync(out), level)
	return zap.New(core).Sugar(), nil
}

// Initialize sets up the global logger for the CLI process.
func Initialize(opts Options) error {
	if theme := os.Getenv("FEATSMITH_LOG_THEME"); theme != "" && opts.Theme == "" {
		opts.Theme = theme
	}

	l, err := New(opts)
	if err != nil {
		return err
	}
	Logger = l
	JSONOutput = opts.JSON
	return nil
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.SugaredLogger) *zap.SugaredLogger {
	if l == nil {
		return zap.NewNop().Sugar()
	}
	return l
}

// Cleanup flushes any buffered log entries
func Cleanup() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}
