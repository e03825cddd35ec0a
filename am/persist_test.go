package am

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", ProjectConfigName)
	require.NoError(t, WriteDefault(path))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	def := DefaultConfig()
	assert.Equal(t, def.Model, cfg.Model)
	assert.Equal(t, def.Package, cfg.Package)
	assert.Equal(t, def.Compile, cfg.Compile)
	assert.Equal(t, def.Execute, cfg.Execute)
	assert.Equal(t, def.Generate.OutputDir, cfg.Generate.OutputDir)
	assert.Empty(t, cfg.Generate.Features)
}

func TestSaveNeverWritesAPIKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model.APIKey = "sk-secret"

	data, err := Marshal(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-secret")
	assert.Equal(t, "sk-secret", cfg.Model.APIKey, "caller's config is untouched")
}

func TestSaveRotatesBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), ProjectConfigName)
	cfg := DefaultConfig()

	for i := 1; i <= 5; i++ {
		cfg.Generate.Instances = i
		require.NoError(t, Save(cfg, path))
	}

	latest, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5, latest.Generate.Instances)

	for n, want := range map[string]int{".back1": 4, ".back2": 3, ".back3": 2} {
		backup, err := LoadFromFile(path + n)
		require.NoError(t, err, n)
		assert.Equal(t, want, backup.Generate.Instances, n)
	}
	_, err = os.Stat(path + ".back4")
	assert.True(t, os.IsNotExist(err))
}
