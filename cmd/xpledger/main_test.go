package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackxp/adapters/jsonfile"
	"trackxp/engine"
)

const history = `[
	{"date": "2024-03-01", "kind": "issue_closed", "story_points": 4, "ref": "#1"},
	{"date": "2024-03-02", "kind": "pr_merged", "story_points": 2, "closes_issue": true, "assignees": 2},
	{"date": "2024-03-02", "kind": "docs"}
]`

func TestRunFromStdin(t *testing.T) {
	out := filepath.Join(t.TempDir(), "generated")
	var stderr bytes.Buffer

	err := run(context.Background(), []string{"-out", out}, strings.NewReader(history), &stderr)
	require.NoError(t, err, stderr.String())

	w, err := jsonfile.New(out)
	require.NoError(t, err)
	totals, err := w.ReadTotals()
	require.NoError(t, err)

	// 120 on day one; day two at streak 2: round(1*25*1.2*1.3031) = 39 and round(10*1.3031) = 13
	assert.Equal(t, int64(172), totals.TotalXP)
	assert.Equal(t, int64(2), totals.Level)
	assert.Equal(t, int64(72), totals.IntoLevelXP)
	assert.Contains(t, stderr.String(), "reports written")

	for _, name := range []string{jsonfile.DailyFile, jsonfile.LedgerFile} {
		_, err := os.Stat(filepath.Join(out, name))
		assert.NoError(t, err, name)
	}
}

func TestRunFromFileWithConfig(t *testing.T) {
	dir := t.TempDir()
	eventsPath := filepath.Join(dir, "events.json")
	require.NoError(t, os.WriteFile(eventsPath, []byte(history), 0o600))
	cfgPath := filepath.Join(dir, "trackxp.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("ledger:\n  output_dir: "+filepath.Join(dir, "reports")+"\n"), 0o600))

	var stderr bytes.Buffer
	err := run(context.Background(), []string{"-config", cfgPath, "-events", eventsPath, "-tz", "UTC"}, nil, &stderr)
	require.NoError(t, err, stderr.String())

	_, err = os.Stat(filepath.Join(dir, "reports", jsonfile.TotalFile))
	assert.NoError(t, err)
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	var stderr bytes.Buffer

	err := run(context.Background(), []string{"-out", dir}, strings.NewReader(`{"not":"a list"}`), &stderr)
	assert.Error(t, err)

	err = run(context.Background(), []string{"-out", dir}, strings.NewReader(`[{"date":"2024-03-01","kind":"meeting"}]`), &stderr)
	assert.True(t, errors.Is(err, engine.ErrInvalidEvent), "got %v", err)

	err = run(context.Background(), []string{"-out", dir, "-tz", "Nowhere/Land"}, strings.NewReader(`[]`), &stderr)
	assert.Error(t, err)

	err = run(context.Background(), []string{"-bogus"}, nil, &stderr)
	assert.Error(t, err)
}
