package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/featsmith/ai/tracker"
	"github.com/teranos/featsmith/am"
	"github.com/teranos/featsmith/db"
	"github.com/teranos/featsmith/errors"
	"github.com/teranos/featsmith/internal/util"
	"github.com/teranos/featsmith/ledger"
	"github.com/teranos/featsmith/report"
)

func init() {
	pterm.DisableStyling()
}

// testCmd returns a command with the root's persistent flags and captured output
func testCmd(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	cmd := &cobra.Command{}
	cmd.Flags().Bool("json", false, "")
	cmd.Flags().CountP("verbose", "v", "")
	cmd.SetContext(context.Background())
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	return cmd, &buf
}

// withConfig points am at a temp config file for the duration of the test
func withConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	path := filepath.Join(dir, "featsmith.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	am.Reset()
	am.SetConfigFile(path)
	t.Cleanup(am.Reset)
	return dir
}

func TestFeatures(t *testing.T) {
	cmd, out := testCmd(t)
	require.NoError(t, runFeatures(cmd, nil))
	assert.Contains(t, out.String(), "69 features")
	assert.Contains(t, out.String(), "vector_rotate_0")
}

func TestFeaturesJSON(t *testing.T) {
	cmd, out := testCmd(t)
	require.NoError(t, cmd.Flags().Set("json", "true"))
	require.NoError(t, runFeatures(cmd, nil))
	assert.Contains(t, out.String(), `"casting"`)
}

func TestRunFeaturesFlag(t *testing.T) {
	t.Cleanup(func() { runFeatureNames = nil })
	require.NoError(t, RunCmd.Flags().Set("features", "casting,freeze"))
	assert.Equal(t, []string{"casting", "freeze"}, runFeatureNames)
	assert.NotNil(t, FeaturesCmd.RunE)
}

func TestVersion(t *testing.T) {
	cmd, out := testCmd(t)
	require.NoError(t, VersionCmd.RunE(cmd, nil))
	assert.Contains(t, out.String(), "featsmith dev")
}

func TestRatio(t *testing.T) {
	assert.Equal(t, "-", ratio(0, 0))
	assert.Equal(t, "2/3 (67%)", ratio(2, 3))
}

func TestRunsWithLedgerDisabled(t *testing.T) {
	withConfig(t, "[database]\npath = \"\"\n")
	cmd, _ := testCmd(t)
	err := runRunsLs(cmd, nil)
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestRunsLsAndShow(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "ledger.db")
	withConfig(t, "[database]\npath = \""+dbPath+"\"\n")

	conn, err := db.OpenWithMigrations(dbPath, nil)
	require.NoError(t, err)
	l := ledger.New(conn, nil)
	ctx := context.Background()
	require.NoError(t, l.Start(ctx, "run-abc", []string{"casting"}, 2, false))
	require.NoError(t, l.RecordOutcomes(ctx, "run-abc", []ledger.Outcome{
		{Kind: report.KindCompile, Subject: "out/casting_1", Category: report.CategoryTimeout},
	}))
	require.NoError(t, l.Finish(ctx, "run-abc", ledger.Totals{Generated: 2}, nil))
	require.NoError(t, conn.Close())

	cmd, out := testCmd(t)
	require.NoError(t, runRunsLs(cmd, nil))
	assert.Contains(t, out.String(), "run-abc")
	assert.Contains(t, out.String(), "completed")

	cmd, out = testCmd(t)
	require.NoError(t, runRunsShow(cmd, []string{"run-abc"}))
	assert.Contains(t, out.String(), "Features:  casting")
	assert.Contains(t, out.String(), "out/casting_1")
	assert.Contains(t, out.String(), "timeout")

	cmd, _ = testCmd(t)
	err = runRunsShow(cmd, []string{"missing"})
	assert.True(t, errors.Is(err, ledger.ErrRunNotFound))
}

func TestUsageShowsBudget(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	withConfig(t, "[model]\ndaily_budget_usd = 2.0\n\n[database]\npath = \""+dbPath+"\"\n")

	conn, err := db.OpenWithMigrations(dbPath, nil)
	require.NoError(t, err)
	require.NoError(t, tracker.NewUsageTracker(conn, nil).TrackUsage(&tracker.ModelUsage{
		OperationType:    "generate",
		EntityID:         "casting_0",
		ModelName:        "gpt-4o",
		ModelProvider:    "openai",
		RequestTimestamp: time.Now().Add(-time.Minute),
		Cost:             util.Ptr(0.25),
		Success:          true,
	}))
	require.NoError(t, conn.Close())

	cmd, out := testCmd(t)
	require.NoError(t, runUsage(cmd, nil))
	assert.Contains(t, out.String(), "Requests: 1")
	assert.Contains(t, out.String(), "$0.2500 of $2.00 today")
	assert.Contains(t, out.String(), "(no limit) this month")
}

func TestAmInitWritesDefaults(t *testing.T) {
	dir := withConfig(t, "")
	path := filepath.Join(dir, "out", "featsmith.toml")

	cmd, out := testCmd(t)
	require.NoError(t, runAmInit(cmd, []string{path}))
	assert.Contains(t, out.String(), path)

	cfg, err := am.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, am.DefaultModel, cfg.Model.Model)
}

func TestAmValidate(t *testing.T) {
	withConfig(t, "[compile]\nmax_repairs = -1\n")
	cmd, _ := testCmd(t)
	assert.Error(t, runAmValidate(cmd, nil))
}
