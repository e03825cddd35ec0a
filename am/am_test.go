package am

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME and the working directory at fresh temp dirs so no
// real configuration leaks into a test.
func isolate(t *testing.T) string {
	t.Helper()
	Reset()
	t.Cleanup(Reset)

	home := t.TempDir()
	work := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("FEATSMITH_MODEL_API_KEY", "")
	chdir(t, work)
	return work
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Model.Provider)
	assert.Equal(t, DefaultModel, cfg.Model.Model)
	assert.Equal(t, 0.5, cfg.Model.Temperature)
	assert.Equal(t, 4096, cfg.Model.MaxTokens)
	assert.Equal(t, 21, cfg.Model.MaxAttempts)
	assert.Equal(t, 10, cfg.Model.RetryDelaySeconds)
	assert.Equal(t, "output/features", cfg.Generate.OutputDir)
	assert.Equal(t, 3, cfg.Generate.Instances)
	assert.Equal(t, "move_code", cfg.Generate.CodeKey)
	assert.Equal(t, "test", cfg.Package.Name)
	assert.Equal(t, "0.0.0", cfg.Package.Version)
	assert.Equal(t, "Move.toml", cfg.Package.Manifest)
	assert.Equal(t, "sources", cfg.Package.SourcesDir)
	assert.Equal(t, "aptos move compile", cfg.Compile.Command)
	assert.Equal(t, 10, cfg.Compile.TimeoutSeconds)
	assert.False(t, cfg.Compile.Repair)
	assert.Equal(t, 1, cfg.Compile.MaxRepairs)
	assert.Equal(t, "run_transactional", cfg.Execute.Command)
	assert.Equal(t, "featsmith.db", cfg.Database.Path)
	assert.Empty(t, cfg.Metrics.Textfile)

	require.NoError(t, cfg.Validate())
}

func TestLoad_ProjectFileAndEnv(t *testing.T) {
	work := isolate(t)

	project := `
[generate]
instances = 5

[compile]
repair = true
`
	require.NoError(t, os.WriteFile(filepath.Join(work, ProjectConfigName), []byte(project), 0o644))

	// Walks up from a nested directory
	nested := filepath.Join(work, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	chdir(t, nested)

	t.Setenv("FEATSMITH_COMPILE_MAX_REPAIRS", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Generate.Instances)
	assert.True(t, cfg.Compile.Repair)
	assert.Equal(t, 3, cfg.Compile.MaxRepairs)
	assert.Equal(t, "aptos move compile", cfg.Compile.Command)
}

func TestLoad_Precedence(t *testing.T) {
	work := isolate(t)

	home := os.Getenv("HOME")
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".featsmith"), 0o755))
	require.NoError(t, os.WriteFile(UserConfigPath(), []byte("[model]\nmodel = \"user-model\"\ntemperature = 0.1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(work, ProjectConfigName), []byte("[model]\nmodel = \"project-model\"\n"), 0o644))

	explicit := filepath.Join(t.TempDir(), "ci.toml")
	require.NoError(t, os.WriteFile(explicit, []byte("[model]\nprovider = \"local\"\n"), 0o644))
	SetConfigFile(explicit)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "project-model", cfg.Model.Model)
	assert.Equal(t, 0.1, cfg.Model.Temperature)
	assert.Equal(t, "local", cfg.Model.Provider)

	assert.Equal(t, SourceProject, ConfigSources["model.model"].Source)
	assert.Equal(t, SourceUser, ConfigSources["model.temperature"].Source)
	assert.Equal(t, SourceExplicit, ConfigSources["model.provider"].Source)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)
	SetConfigFile(filepath.Join(t.TempDir(), "nope.toml"))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope.toml")
}

func TestLoad_Cached(t *testing.T) {
	isolate(t)

	first, err := Load()
	require.NoError(t, err)
	second, err := Load()
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestLoadFromFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[model\n"), 0o644))

	_, err := LoadFromFile(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown provider", func(c *Config) { c.Model.Provider = "bard" }, "model.provider"},
		{"zero max tokens", func(c *Config) { c.Model.MaxTokens = 0 }, "model.max_tokens"},
		{"zero attempts", func(c *Config) { c.Model.MaxAttempts = 0 }, "model.max_attempts"},
		{"zero delay is valid", func(c *Config) { c.Model.RetryDelaySeconds = 0 }, ""},
		{"negative delay", func(c *Config) { c.Model.RetryDelaySeconds = -1 }, "model.retry_delay_seconds"},
		{"hot temperature", func(c *Config) { c.Model.Temperature = 3 }, "model.temperature"},
		{"zero instances", func(c *Config) { c.Generate.Instances = 0 }, "generate.instances"},
		{"bad version", func(c *Config) { c.Package.Version = "one" }, "package.version"},
		{"bad extension", func(c *Config) { c.Package.Extension = "move" }, "package.extension"},
		{"empty compile command", func(c *Config) { c.Compile.Command = "  " }, "compile.command"},
		{"unterminated quote", func(c *Config) { c.Execute.Command = `run "x` }, "execute.command"},
		{"zero repairs is valid", func(c *Config) { c.Compile.MaxRepairs = 0 }, ""},
		{"negative repairs", func(c *Config) { c.Compile.MaxRepairs = -1 }, "compile.max_repairs"},
		{"zero workers", func(c *Config) { c.Execute.Workers = 0 }, "execute.workers"},
		{"zero compile timeout", func(c *Config) { c.Compile.TimeoutSeconds = 0 }, "compile.timeout_seconds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestResolveAPIKey(t *testing.T) {
	m := ModelConfig{APIKey: "sk-direct", APIKeyFile: "/does/not/matter"}
	key, err := m.ResolveAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "sk-direct", key)

	path := filepath.Join(t.TempDir(), "openai.key")
	require.NoError(t, os.WriteFile(path, []byte("sk-from-file\n"), 0o600))
	key, err = ModelConfig{APIKeyFile: path}.ResolveAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "sk-from-file", key)

	_, err = ModelConfig{APIKeyFile: filepath.Join(t.TempDir(), "missing")}.ResolveAPIKey()
	assert.Error(t, err)

	key, err = ModelConfig{}.ResolveAPIKey()
	require.NoError(t, err)
	assert.Empty(t, key)
}
