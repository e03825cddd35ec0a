package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/featsmith/errors"
)

func TestLoadEmbedded(t *testing.T) {
	lib, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{NameFix, NameGenerate, NameSystem}, lib.Names())
	assert.Contains(t, lib.System(), "expert in the programming language Move")
}

func TestGenerateInterpolatesFeature(t *testing.T) {
	lib, err := Load("")
	require.NoError(t, err)

	out, err := lib.Generate("phantom type parameters")
	require.NoError(t, err)
	assert.Contains(t, out, "phantom type parameters")
	assert.NotContains(t, out, "{{")

	_, err = lib.Generate("  ")
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestFixCarriesCodeAndError(t *testing.T) {
	lib, err := Load("")
	require.NoError(t, err)

	out, err := lib.Fix("module 0x42::m { fun f() { x } }", "error[E03005]: unbound variable 'x'")
	require.NoError(t, err)
	assert.Contains(t, out, "module 0x42::m")
	assert.Contains(t, out, "unbound variable 'x'")
}

func TestLoadOverrideDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "generate.md"),
		[]byte("---\nname: generate\nvariables: [feature]\n---\nOnly {{feature}}, please."), 0o644))

	lib, err := Load(dir)
	require.NoError(t, err)

	out, err := lib.Generate("tuple")
	require.NoError(t, err)
	assert.Equal(t, "Only tuple, please.", out)

	// Untouched prompts still come from the embedded set
	p, err := lib.Get(NameFix)
	require.NoError(t, err)
	assert.Equal(t, "fix", p.Doc.Metadata.Name)
}

func TestLoadRejectsVariableMismatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fix.md"),
		[]byte("---\nvariables: [code, error]\n---\nFix {{code}}"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declares variables")
}

func TestLoadMissingDir(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrFileNotFound))
}

func TestGetUnknown(t *testing.T) {
	lib, err := Load("")
	require.NoError(t, err)
	_, err = lib.Get("summarize")
	assert.Error(t, err)
}
