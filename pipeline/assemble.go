package pipeline

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/teranos/featsmith/ai/budget"
	"github.com/teranos/featsmith/ai/provider"
	"github.com/teranos/featsmith/ai/structured"
	"github.com/teranos/featsmith/ai/tracker"
	"github.com/teranos/featsmith/am"
	"github.com/teranos/featsmith/check"
	"github.com/teranos/featsmith/db"
	"github.com/teranos/featsmith/ledger"
	"github.com/teranos/featsmith/logger"
	"github.com/teranos/featsmith/metrics"
	"github.com/teranos/featsmith/prompt"
	"github.com/teranos/featsmith/pulse"
	"github.com/teranos/featsmith/runner"
	"github.com/teranos/featsmith/unit"
)

// Env supplies what Assemble cannot build from configuration. Runner and
// AI default to the real subprocess runner and the configured provider.
type Env struct {
	Emitter pulse.ProgressEmitter
	Logger  *zap.SugaredLogger
	Runner  runner.Runner
	AI      provider.AIClient
}

// Assembly is a driver with every collaborator built from one Config
type Assembly struct {
	Driver   *Driver
	Compiler *check.Compiler
	Executor *check.Executor
	Ledger   *ledger.Ledger        // nil when the database is disabled
	Usage    *tracker.UsageTracker // nil when the database is disabled
	Budget   *budget.Tracker       // nil when the database is disabled
	Metrics  *metrics.Metrics

	db *sql.DB
}

// Close releases the database, if one was opened
func (a *Assembly) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Layout converts the package section to a unit layout
func Layout(cfg am.PackageConfig) unit.Layout {
	l := unit.DefaultLayout()
	l.Manifest = cfg.Manifest
	l.SourcesDir = cfg.SourcesDir
	l.Extension = cfg.Extension
	l.FilePrefix = cfg.FilePrefix
	return l
}

// BudgetConfig extracts the spend limits from the model section
func BudgetConfig(cfg am.ModelConfig) budget.Config {
	return budget.Config{DailyUSD: cfg.DailyBudgetUSD, MonthlyUSD: cfg.MonthlyBudgetUSD}
}

// Assemble builds the full pipeline from cfg
func Assemble(cfg *am.Config, env Env) (*Assembly, error) {
	log := logger.OrNop(env.Logger)
	a := &Assembly{Metrics: metrics.New()}

	if cfg.Database.Path != "" {
		conn, err := db.OpenWithMigrations(cfg.Database.Path, log)
		if err != nil {
			return nil, err
		}
		a.db = conn
		a.Ledger = ledger.New(conn, log)
		a.Usage = tracker.NewUsageTracker(conn, log)
		a.Budget = budget.NewTracker(conn, BudgetConfig(cfg.Model))
	}

	d, err := a.build(cfg, env, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Driver = d
	return a, nil
}

func (a *Assembly) build(cfg *am.Config, env Env, log *zap.SugaredLogger) (*Driver, error) {
	prompts, err := prompt.Load(cfg.Generate.PromptDir)
	if err != nil {
		return nil, err
	}

	ai := env.AI
	if ai == nil {
		if ai, err = provider.NewAIClient(cfg.Model, log); err != nil {
			return nil, err
		}
	}

	system := cfg.Model.SystemPrompt
	if system == "" {
		system = prompts.System()
	}
	opts := structured.Options{
		SystemPrompt:      system,
		Provider:          cfg.Model.Provider,
		Model:             cfg.Model.Model,
		MaxTokens:         cfg.Model.MaxTokens,
		MaxAttempts:       cfg.Model.MaxAttempts,
		RetryDelay:        cfg.Model.RetryDelay(),
		RequestsPerMinute: cfg.Model.RequestsPerMinute,
		Observer:          a.Metrics,
		Logger:            log,
	}
	if cfg.Model.RetryDelaySeconds == 0 {
		opts.RetryDelay = -1
	}
	if a.Usage != nil {
		opts.Recorder = a.Usage
	}
	model := structured.NewClient(ai, opts)

	if a.Compiler, a.Executor, err = Checkers(cfg, check.Deps{
		Runner:  env.Runner,
		Model:   model,
		Prompts: prompts,
		Emitter: env.Emitter,
		Metrics: a.Metrics,
		Logger:  log,
	}); err != nil {
		return nil, err
	}

	manifest, err := unit.NewManifest(cfg.Package.Name, cfg.Package.Version)
	if err != nil {
		return nil, err
	}

	var gate Gate
	if a.Budget != nil && a.Budget.Limits().Enabled() {
		gate = a.Budget
	}

	return NewDriver(Config{
		OutputDir:       cfg.Generate.OutputDir,
		Temperature:     cfg.Model.Temperature,
		CodeKey:         cfg.Generate.CodeKey,
		Repair:          cfg.Compile.Repair,
		MetricsTextfile: cfg.Metrics.Textfile,
	}, Deps{
		Model:    model,
		Budget:   gate,
		Prompts:  prompts,
		Packager: unit.NewPackager(Layout(cfg.Package), manifest, log),
		Compiler: a.Compiler,
		Executor: a.Executor,
		Ledger:   a.Ledger,
		Metrics:  a.Metrics,
		Emitter:  env.Emitter,
		Logger:   log,
	})
}

// Checkers builds both checkers from cfg. A nil deps.Runner runs real
// subprocesses.
func Checkers(cfg *am.Config, deps check.Deps) (*check.Compiler, *check.Executor, error) {
	if deps.Runner == nil {
		deps.Runner = runner.NewExec(deps.Logger)
	}
	layout := Layout(cfg.Package)

	compileCmd, err := runner.ParseCommand(cfg.Compile.Command)
	if err != nil {
		return nil, nil, err
	}
	compiler, err := check.NewCompiler(check.CompilerConfig{
		Command:     compileCmd,
		Timeout:     cfg.Compile.Timeout(),
		MaxRepairs:  cfg.Compile.MaxRepairs,
		Workers:     cfg.Compile.Workers,
		Layout:      layout,
		CodeKey:     cfg.Generate.CodeKey,
		Temperature: cfg.Model.Temperature,
	}, deps)
	if err != nil {
		return nil, nil, err
	}

	execCmd, err := runner.ParseCommand(cfg.Execute.Command)
	if err != nil {
		return nil, nil, err
	}
	executor, err := check.NewExecutor(check.ExecutorConfig{
		Command: execCmd,
		Timeout: cfg.Execute.Timeout(),
		Workers: cfg.Execute.Workers,
		Layout:  layout,
	}, deps)
	if err != nil {
		return nil, nil, err
	}
	return compiler, executor, nil
}
