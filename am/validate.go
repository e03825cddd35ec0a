package am

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/kballard/go-shellquote"

	"github.com/teranos/featsmith/errors"
)

var validProviders = map[string]bool{
	"openai":     true,
	"openrouter": true,
	"local":      true,
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if !validProviders[c.Model.Provider] {
		return errors.Newf("model.provider must be one of openai, openrouter, local; got %q", c.Model.Provider)
	}
	if c.Model.Model == "" {
		return errors.New("model.model cannot be empty")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return errors.Newf("model.temperature must be within [0, 2], got %g", c.Model.Temperature)
	}
	if c.Model.MaxTokens <= 0 {
		return errors.Newf("model.max_tokens must be > 0, got %d", c.Model.MaxTokens)
	}
	if c.Model.MaxAttempts <= 0 {
		return errors.Newf("model.max_attempts must be > 0, got %d", c.Model.MaxAttempts)
	}
	// 0 = no delay between attempts
	if c.Model.RetryDelaySeconds < 0 {
		return errors.Newf("model.retry_delay_seconds must be >= 0, got %d", c.Model.RetryDelaySeconds)
	}
	if c.Model.TimeoutSeconds <= 0 {
		return errors.Newf("model.timeout_seconds must be > 0, got %d", c.Model.TimeoutSeconds)
	}
	if c.Model.RequestsPerMinute < 0 {
		return errors.Newf("model.requests_per_minute must be >= 0, got %d", c.Model.RequestsPerMinute)
	}

	if c.Model.DailyBudgetUSD < 0 || c.Model.MonthlyBudgetUSD < 0 {
		return errors.New("model budgets must be >= 0")
	}

	if c.Generate.OutputDir == "" {
		return errors.New("generate.output_dir cannot be empty")
	}
	if c.Generate.Instances <= 0 {
		return errors.Newf("generate.instances must be > 0, got %d", c.Generate.Instances)
	}
	if c.Generate.CodeKey == "" {
		return errors.New("generate.code_key cannot be empty")
	}

	if c.Package.Name == "" {
		return errors.New("package.name cannot be empty")
	}
	if _, err := semver.StrictNewVersion(c.Package.Version); err != nil {
		return errors.Wrapf(err, "package.version %q is not a semantic version", c.Package.Version)
	}
	if c.Package.Manifest == "" || c.Package.SourcesDir == "" {
		return errors.New("package.manifest and package.sources_dir cannot be empty")
	}
	if !strings.HasPrefix(c.Package.Extension, ".") {
		return errors.Newf("package.extension must start with '.', got %q", c.Package.Extension)
	}

	if err := validateCommand("compile.command", c.Compile.Command); err != nil {
		return err
	}
	if c.Compile.TimeoutSeconds <= 0 {
		return errors.Newf("compile.timeout_seconds must be > 0, got %d", c.Compile.TimeoutSeconds)
	}
	// 0 = compile only, even with repair enabled
	if c.Compile.MaxRepairs < 0 {
		return errors.Newf("compile.max_repairs must be >= 0, got %d", c.Compile.MaxRepairs)
	}
	if c.Compile.Workers <= 0 {
		return errors.Newf("compile.workers must be > 0, got %d", c.Compile.Workers)
	}

	if err := validateCommand("execute.command", c.Execute.Command); err != nil {
		return err
	}
	if c.Execute.TimeoutSeconds <= 0 {
		return errors.Newf("execute.timeout_seconds must be > 0, got %d", c.Execute.TimeoutSeconds)
	}
	if c.Execute.Workers <= 0 {
		return errors.Newf("execute.workers must be > 0, got %d", c.Execute.Workers)
	}

	return nil
}

func validateCommand(key, command string) error {
	words, err := shellquote.Split(command)
	if err != nil {
		return errors.Wrapf(err, "%s %q cannot be parsed", key, command)
	}
	if len(words) == 0 {
		return errors.Newf("%s cannot be empty", key)
	}
	return nil
}
