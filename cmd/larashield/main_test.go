package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianshen/larashield/internal/security"
)

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

const unprotectedRoutes = `<?php

use App\Http\Controllers\UserController;
use Illuminate\Support\Facades\Route;

Route::post('/users', [UserController::class, 'store']);
`

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "larashield dev")
}

func TestAnalyzersCommand(t *testing.T) {
	out, _, err := execute(t, "analyzers")
	require.NoError(t, err)

	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "CATEGORY")
	for _, id := range []string{"authentication", "password-security", "mass-assignment", "license", "stable-dependencies", "app-key"} {
		assert.Contains(t, out, id)
	}
}

func TestAnalyzersCommandJSON(t *testing.T) {
	out, _, err := execute(t, "analyzers", "--json")
	require.NoError(t, err)

	var descriptors []security.Descriptor
	require.NoError(t, json.Unmarshal([]byte(out), &descriptors))
	require.Len(t, descriptors, 6)
	assert.Equal(t, "authentication", descriptors[0].ID)
}

func TestScanJSONFailsOnHighIssue(t *testing.T) {
	dir := writeProject(t, map[string]string{"routes/web.php": unprotectedRoutes})

	out, stderr, err := execute(t, "scan", dir, "--format", "json", "--only", "authentication")
	require.Error(t, err)

	var exitErr *security.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 1, exitErr.Code)

	var report struct {
		Summary struct {
			Failed int `json:"failed"`
			Issues int `json:"issues"`
		} `json:"summary"`
		Results []struct {
			Analyzer string `json:"analyzer"`
			Outcome  string `json:"outcome"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Results, 1)
	assert.Equal(t, "authentication", report.Results[0].Analyzer)
	assert.Equal(t, "failed", report.Results[0].Outcome)
	assert.Equal(t, 1, report.Summary.Failed)
	assert.Equal(t, 1, report.Summary.Issues)
	assert.Contains(t, stderr, "1 failed")
}

func TestScanFailOnNonePasses(t *testing.T) {
	dir := writeProject(t, map[string]string{"routes/web.php": unprotectedRoutes})

	out, _, err := execute(t, "scan", dir, "--format", "markdown", "--only", "authentication", "--fail-on", "none")
	require.NoError(t, err)
	assert.Contains(t, out, "# Laravel Security Report")
	assert.Contains(t, out, "POST")
}

func TestScanReadsProjectSettings(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"routes/web.php": unprotectedRoutes,
		".larashield.yaml": `analyzers:
  only: [authentication]
ci:
  fail_on: critical
`,
	})

	_, _, err := execute(t, "scan", dir, "--format", "json")
	assert.NoError(t, err)
}

func TestScanWritesOutputFile(t *testing.T) {
	dir := writeProject(t, map[string]string{"routes/web.php": unprotectedRoutes})
	path := filepath.Join(t.TempDir(), "report.sarif")

	out, _, err := execute(t, "scan", dir, "--format", "sarif", "--only", "authentication", "--fail-on", "none", "--output", path)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version": "2.1.0"`)
	assert.Contains(t, string(data), "authentication")
}

func TestScanRejectsBadInput(t *testing.T) {
	dir := writeProject(t, map[string]string{"routes/web.php": unprotectedRoutes})

	_, _, err := execute(t, "scan", dir, "--format", "xml")
	assert.ErrorContains(t, err, "xml")

	_, _, err = execute(t, "scan", dir, "--only", "nosuch")
	assert.ErrorContains(t, err, `unknown analyzer "nosuch"`)

	_, _, err = execute(t, "scan", filepath.Join(dir, "missing"))
	assert.ErrorContains(t, err, "project path")

	var exitErr *security.ExitError
	assert.False(t, errors.As(err, &exitErr))
}
