package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/julianshen/larashield/internal/config"
	"github.com/julianshen/larashield/internal/security"
)

// writeProject creates a project directory holding files, keyed by
// slash-separated relative path.
func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

// testOptions returns options with default settings plus overrides and
// a test logger.
func testOptions(t *testing.T, overrides map[string]any) Options {
	t.Helper()
	s := config.DefaultSettings()
	for k, v := range overrides {
		s.Set(k, v)
	}
	return Options{Settings: s, Logger: zaptest.NewLogger(t)}
}

// runAnalyzer executes a against dir through the full lifecycle.
func runAnalyzer(t *testing.T, a security.Analyzer, dir string) security.Result {
	t.Helper()
	a.SetBasePath(dir)
	return security.Execute(context.Background(), a, nil, nil)
}

// ofType returns the issues whose issue_type is typ.
func ofType(issues []security.Issue, typ string) []security.Issue {
	var out []security.Issue
	for _, is := range issues {
		if is.Metadata.String("issue_type") == typ {
			out = append(out, is)
		}
	}
	return out
}
