package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/featsmith/ai/openai"
	"github.com/teranos/featsmith/am"
	"github.com/teranos/featsmith/errors"
)

type jsonAI struct{}

func (jsonAI) Chat(_ context.Context, req openai.ChatRequest) (*openai.ChatResponse, error) {
	return &openai.ChatResponse{
		Content:      `{"move_code": "module 0x1::m {}"}`,
		Model:        "gpt-4o",
		FinishReason: "stop",
	}, nil
}

func TestLayoutFromConfig(t *testing.T) {
	cfg := am.DefaultConfig()
	cfg.Package.SourcesDir = "src"
	l := Layout(cfg.Package)
	assert.Equal(t, "Move.toml", l.Manifest)
	assert.Equal(t, "src", l.SourcesDir)
	assert.Equal(t, "Test_3.move", l.SourceName(3))
	assert.Equal(t, "build", l.BuildDir)
}

func TestCheckersFromConfig(t *testing.T) {
	cfg := am.DefaultConfig()
	compiler, executor, err := Checkers(cfg, checkDeps(t))
	require.NoError(t, err)
	assert.NotNil(t, compiler)
	assert.NotNil(t, executor)

	cfg.Compile.Command = `aptos "move`
	_, _, err = Checkers(cfg, checkDeps(t))
	assert.Error(t, err)
}

func TestAssembleRunsEndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfg := am.DefaultConfig()
	cfg.Generate.OutputDir = filepath.Join(dir, "out")
	cfg.Database.Path = filepath.Join(dir, "featsmith.db")
	cfg.Model.RetryDelaySeconds = 0

	r := &passRunner{}
	a, err := Assemble(cfg, Env{AI: jsonAI{}, Runner: r, Logger: zaptest.NewLogger(t).Sugar()})
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.Ledger)
	require.NotNil(t, a.Usage)

	rr, err := a.Driver.Run(context.Background(), []string{"casting"}, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, rr.Generated)
	assert.Equal(t, 2, rr.Compile.Succeeded)
	assert.Equal(t, 2, rr.Execution.Succeeded)

	stats, err := a.Usage.GetUsageStats(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalRequests)
	assert.Equal(t, 2, stats.SuccessfulRequests)

	runs, err := a.Ledger.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, rr.RunID.String(), runs[0].ID)
}

func TestAssembleWithoutDatabase(t *testing.T) {
	cfg := am.DefaultConfig()
	cfg.Database.Path = ""
	a, err := Assemble(cfg, Env{AI: jsonAI{}, Runner: &passRunner{}})
	require.NoError(t, err)
	assert.Nil(t, a.Ledger)
	assert.NoError(t, a.Close())
}

func TestAssembleRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg := am.DefaultConfig()
	cfg.Database.Path = ""
	cfg.Model.APIKey = ""
	cfg.Model.APIKeyFile = ""

	_, err := Assemble(cfg, Env{Runner: &passRunner{}})
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestAssembleRejectsBadVersion(t *testing.T) {
	cfg := am.DefaultConfig()
	cfg.Database.Path = ""
	cfg.Package.Version = "one"

	_, err := Assemble(cfg, Env{AI: jsonAI{}, Runner: &passRunner{}})
	assert.True(t, errors.IsInvalidRequestError(err))
}
