package am

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settingFor(t *testing.T, in *ConfigIntrospection, key string) SettingInfo {
	t.Helper()
	for _, s := range in.Settings {
		if s.Key == key {
			return s
		}
	}
	t.Fatalf("setting %s not found", key)
	return SettingInfo{}
}

func TestGetConfigIntrospection(t *testing.T) {
	work := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(work, ProjectConfigName), []byte("[generate]\ninstances = 7\n"), 0o644))
	t.Setenv("FEATSMITH_COMPILE_REPAIR", "true")
	t.Setenv("FEATSMITH_MODEL_API_KEY", "sk-live")

	in, err := GetConfigIntrospection()
	require.NoError(t, err)

	instances := settingFor(t, in, "generate.instances")
	assert.Equal(t, SourceProject, instances.Source)
	assert.EqualValues(t, 7, instances.Value)

	repair := settingFor(t, in, "compile.repair")
	assert.Equal(t, SourceEnvironment, repair.Source)
	assert.Equal(t, "FEATSMITH_COMPILE_REPAIR", repair.SourcePath)

	key := settingFor(t, in, "model.api_key")
	assert.Equal(t, "********", key.Value)

	model := settingFor(t, in, "model.model")
	assert.Equal(t, SourceDefault, model.Source)
}
