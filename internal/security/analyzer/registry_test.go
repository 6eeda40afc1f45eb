package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianshen/larashield/internal/security"
)

func TestRegistry(t *testing.T) {
	var ids []string
	for _, d := range Descriptors() {
		ids = append(ids, d.ID)
		assert.NotEmpty(t, d.Name)
		assert.NotEmpty(t, d.Category)
		assert.True(t, d.CountsInfo)
	}
	assert.Equal(t, []string{
		"authentication", "password-security", "mass-assignment",
		"license", "stable-dependencies", "app-key",
	}, ids)

	a, ok := ByID("license", Options{})
	require.True(t, ok)
	assert.IsType(t, &License{}, a)

	_, ok = ByID("nope", Options{})
	assert.False(t, ok)
}

func TestRunnerOverProject(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"routes/web.php": "<?php\n\nRoute::post('/users', [UserController::class, 'store']);\n",
		"composer.lock":  lockWithLicense(`"MIT"`),
	})
	opts := testOptions(t, nil)
	runner := security.NewRunner(security.RunnerConfig{
		BasePath: dir,
		Project:  &security.ProjectConfig{Disabled: []string{"app-key"}},
		Logger:   opts.Logger,
	}, All(opts)...)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 5)

	byID := map[string]security.Result{}
	for _, r := range report.Results {
		byID[r.AnalyzerID] = r
	}
	assert.Equal(t, security.OutcomeFailed, byID["authentication"].Outcome)
	assert.Equal(t, security.OutcomePassed, byID["license"].Outcome)
	assert.Equal(t, security.OutcomeSkipped, byID["stable-dependencies"].Outcome)
	assert.Equal(t, 1, security.ExitCode(report, "high"))
	assert.Equal(t, 0, security.ExitCode(report, "critical"))
}

func TestRunnerAppliesProjectExclude(t *testing.T) {
	route := "<?php\n\nRoute::post('/users', [UserController::class, 'store']);\n"
	dir := writeProject(t, map[string]string{
		"routes/web.php":        route,
		"routes/legacy/old.php": route,
	})
	opts := testOptions(t, map[string]any{"paths.exclude": []string{"routes/web.php"}})
	runner := security.NewRunner(security.RunnerConfig{
		BasePath: dir,
		Project:  &security.ProjectConfig{Only: []string{"authentication"}, Exclude: []string{"routes/legacy/**"}},
		Logger:   opts.Logger,
	}, All(opts)...)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	issues := report.Results[0].Issues
	require.Len(t, issues, 1)
	assert.Equal(t, "routes/web.php", issues[0].Location.File)
}
