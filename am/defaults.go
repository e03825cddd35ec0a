package am

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/teranos/featsmith/errors"
)

// DefaultDirPermissions is used for ~/.featsmith and generated output directories
const DefaultDirPermissions = 0o755

// Defaults mirrored by SetDefaults; exported for packages that build
// components without a Config (tests, library callers).
const (
	DefaultModel             = "gpt-4o"
	DefaultTemperature       = 0.5
	DefaultMaxTokens         = 4096
	DefaultMaxAttempts       = 21
	DefaultRetryDelaySeconds = 10
	DefaultCompileCommand    = "aptos move compile"
	DefaultExecuteCommand    = "run_transactional"
	DefaultCheckTimeout      = 10
	DefaultCodeKey           = "move_code"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Model defaults
	v.SetDefault("model.provider", "openai")
	v.SetDefault("model.base_url", "")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.api_key_file", "")
	v.SetDefault("model.model", DefaultModel)
	v.SetDefault("model.system_prompt", "")
	v.SetDefault("model.temperature", DefaultTemperature)
	v.SetDefault("model.max_tokens", DefaultMaxTokens)
	v.SetDefault("model.max_attempts", DefaultMaxAttempts)
	v.SetDefault("model.retry_delay_seconds", DefaultRetryDelaySeconds)
	v.SetDefault("model.timeout_seconds", 120)
	v.SetDefault("model.requests_per_minute", 0) // unlimited
	v.SetDefault("model.daily_budget_usd", 0.0)
	v.SetDefault("model.monthly_budget_usd", 0.0)

	// Generation defaults
	v.SetDefault("generate.output_dir", "output/features")
	v.SetDefault("generate.instances", 3)
	v.SetDefault("generate.features", []string{})
	v.SetDefault("generate.code_key", DefaultCodeKey)
	v.SetDefault("generate.prompt_dir", "") // embedded templates

	// Package layout defaults
	v.SetDefault("package.name", "test")
	v.SetDefault("package.version", "0.0.0")
	v.SetDefault("package.manifest", "Move.toml")
	v.SetDefault("package.sources_dir", "sources")
	v.SetDefault("package.extension", ".move")
	v.SetDefault("package.file_prefix", "Test_")

	// Compile check defaults
	v.SetDefault("compile.command", DefaultCompileCommand)
	v.SetDefault("compile.timeout_seconds", DefaultCheckTimeout)
	v.SetDefault("compile.repair", false)
	v.SetDefault("compile.max_repairs", 1)
	v.SetDefault("compile.workers", 1)

	// Execution check defaults
	v.SetDefault("execute.command", DefaultExecuteCommand)
	v.SetDefault("execute.timeout_seconds", DefaultCheckTimeout)
	v.SetDefault("execute.workers", 1)

	v.SetDefault("database.path", "featsmith.db")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("log.theme", "everforest")
}

// BindSensitiveEnvVars binds provider-conventional API key variables so an
// existing OPENAI_API_KEY or OPENROUTER_API_KEY works without extra setup.
// FEATSMITH_MODEL_API_KEY takes precedence over both.
func BindSensitiveEnvVars(v *viper.Viper) {
	_ = v.BindEnv("model.api_key", "FEATSMITH_MODEL_API_KEY", "OPENAI_API_KEY", "OPENROUTER_API_KEY")
}

// DefaultConfig returns the configuration produced by SetDefaults alone.
func DefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	if err != nil {
		// Defaults always unmarshal
		panic(err)
	}
	return cfg
}

// ResolveAPIKey returns the configured API key, reading APIKeyFile when the
// key itself is empty.
func (m ModelConfig) ResolveAPIKey() (string, error) {
	if m.APIKey != "" {
		return m.APIKey, nil
	}
	if m.APIKeyFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(m.APIKeyFile)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read model.api_key_file %s", m.APIKeyFile)
	}
	return strings.TrimSpace(string(data)), nil
}

// RetryDelay returns the delay between model attempts
func (m ModelConfig) RetryDelay() time.Duration {
	return time.Duration(m.RetryDelaySeconds) * time.Second
}

// Timeout returns the per-request HTTP timeout
func (m ModelConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}

// Timeout returns the compile invocation timeout
func (c CompileConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Timeout returns the execution invocation timeout
func (c ExecuteConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// String returns a short representation of the config, never including secrets
func (c *Config) String() string {
	return fmt.Sprintf("Config{Model: %s/%s, Output: %s, Instances: %d, Repair: %t, Database: %s}",
		c.Model.Provider, c.Model.Model, c.Generate.OutputDir, c.Generate.Instances, c.Compile.Repair, c.Database.Path)
}
