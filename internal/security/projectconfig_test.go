package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianshen/larashield/internal/config"
)

func TestProjectConfigFromSettings(t *testing.T) {
	s := config.DefaultSettings()
	require.NoError(t, s.Merge(map[string]any{
		"analyzers": map[string]any{"disabled": []any{"license"}},
		"paths":     map[string]any{"exclude": []any{"app/Legacy/**"}},
		"overrides": []any{
			map[string]any{"analyzer": "mass-assignment", "issue_type": "sensitive_fillable", "severity": "low", "reason": "reviewed"},
		},
	}))

	cfg, err := ProjectConfigFromSettings(s)
	require.NoError(t, err)
	assert.Equal(t, []string{"license"}, cfg.Disabled)
	assert.Equal(t, []string{"app/Legacy/**"}, cfg.Exclude)
	assert.Equal(t, "high", cfg.FailOn)
	require.Len(t, cfg.Overrides, 1)
	assert.Equal(t, Override{
		Analyzer:  "mass-assignment",
		IssueType: "sensitive_fillable",
		Severity:  SeverityLow,
		Reason:    "reviewed",
	}, cfg.Overrides[0])
}

func TestProjectConfigRejectsInvalidValues(t *testing.T) {
	s := config.New()
	s.Set("ci.fail_on", "sometimes")
	_, err := ProjectConfigFromSettings(s)
	assert.ErrorContains(t, err, "ci.fail_on")

	s = config.New()
	s.Set("overrides", []any{map[string]any{"analyzer": "license", "severity": "extreme"}})
	_, err = ProjectConfigFromSettings(s)
	assert.ErrorContains(t, err, "invalid severity")

	s = config.New()
	s.Set("overrides", []any{map[string]any{"severity": "low"}})
	_, err = ProjectConfigFromSettings(s)
	assert.ErrorContains(t, err, "missing required analyzer")
}

func TestProjectConfigEnabled(t *testing.T) {
	var nilCfg *ProjectConfig
	assert.True(t, nilCfg.Enabled("license"))

	cfg := &ProjectConfig{Disabled: []string{"license"}}
	assert.False(t, cfg.Enabled("license"))
	assert.True(t, cfg.Enabled("app-key"))

	cfg = &ProjectConfig{Only: []string{"app-key", "license"}, Disabled: []string{"license"}}
	assert.True(t, cfg.Enabled("app-key"))
	assert.False(t, cfg.Enabled("license"))
	assert.False(t, cfg.Enabled("authentication"))
}

func TestApplyOverridesWithoutIssueType(t *testing.T) {
	issues := issuesOf(SeverityHigh, SeverityInfo)
	out, n := ApplyOverrides("license", issues, []Override{{Analyzer: "license", Severity: SeverityMedium}})
	assert.Equal(t, 2, n)
	assert.Equal(t, SeverityMedium, out[0].Severity)
	assert.Equal(t, SeverityMedium, out[1].Severity)

	out, n = ApplyOverrides("app-key", issues, []Override{{Analyzer: "license", Severity: SeverityMedium}})
	assert.Zero(t, n)
	assert.Equal(t, issues, out)
}
