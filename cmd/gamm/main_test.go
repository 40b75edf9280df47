package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/objones25/gamm/internal/benchmark"
	"github.com/objones25/gamm/internal/matio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "gamm v"+version)
}

func TestGenerateAndRun(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "generate", "--x-rows", "12", "--y-rows", "9", "--cols", "64", "--seed", "3", "--out", dir, "--compress")
	require.NoError(t, err)
	paths := strings.Fields(out)
	require.Len(t, paths, 2)

	x, err := matio.Load(paths[0])
	require.NoError(t, err)
	rows, cols := x.Dims()
	assert.Equal(t, 12, rows)
	assert.Equal(t, 64, cols)

	report := filepath.Join(dir, "report.json")
	out, err = execute(t, "run",
		"--x", paths[0], "--y", paths[1],
		"-l", "6", "-t", "2", "--bins", "single,inter",
		"--log-level", "error", "--report", report)
	require.NoError(t, err)
	assert.Contains(t, out, "single-threaded")
	assert.Contains(t, out, "inter-parallel")

	loaded, err := benchmark.LoadReport(report)
	require.NoError(t, err)
	require.Len(t, loaded.Results, 2)
	assert.Equal(t, 9, loaded.YRows)
	assert.Empty(t, loaded.Results[0].Err)
}

func TestRunRequiresInputs(t *testing.T) {
	_, err := execute(t, "run", "--log-level", "error")
	assert.Error(t, err)
}

func TestShowRequiresCache(t *testing.T) {
	_, err := execute(t, "show")
	assert.Error(t, err)
}
