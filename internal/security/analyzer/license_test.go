package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianshen/larashield/internal/security"
)

func lockWithLicense(license string) string {
	return `{
    "packages": [
        {
            "name": "laravel/framework",
            "version": "v11.9.2",
            "license": ["MIT"]
        },
        {
            "name": "acme/widgets",
            "version": "2.1.0",
            "license": ` + license + `
        }
    ],
    "packages-dev": []
}
`
}

func TestLicenseConjunctiveDenied(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"composer.lock": lockWithLicense(`"(MIT and GPL-3.0)"`),
	})

	res := runAnalyzer(t, NewLicense(testOptions(t, nil)), dir)
	require.Len(t, res.Issues, 1)
	is := res.Issues[0]
	assert.Equal(t, security.SeverityHigh, is.Severity)
	assert.Contains(t, is.Message, "conjunctive")
	assert.Contains(t, is.Message, "ALL apply")
	assert.Equal(t, "acme/widgets", is.Metadata.String("package"))
	assert.Equal(t, "denied_license", is.Metadata.String("issue_type"))
	assert.Equal(t, "composer.lock", is.Location.File)
	assert.Equal(t, 9, is.Location.Line)
	assert.Equal(t, security.OutcomeFailed, res.Outcome)
}

func TestLicenseDisjunctiveAllowed(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"composer.lock": lockWithLicense(`"MIT or GPL-3.0"`),
	})

	res := runAnalyzer(t, NewLicense(testOptions(t, nil)), dir)
	assert.Equal(t, security.OutcomePassed, res.Outcome)
	assert.Empty(t, res.Issues)
}

func TestLicenseOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		license  string
		severity security.Severity
		typ      string
	}{
		{"array is a choice", `["GPL-2.0-or-later", "MIT"]`, "", ""},
		{"denied array", `["GPL-2.0-only", "AGPL-3.0"]`, security.SeverityHigh, "denied_license"},
		{"single denied", `"GPL-3.0+"`, security.SeverityHigh, "denied_license"},
		{"lgpl allowed", `"LGPL-3.0-or-later"`, "", ""},
		{"with exception", `"Apache-2.0 WITH LLVM-exception"`, "", ""},
		{"missing", `[]`, security.SeverityLow, "missing_license"},
		{"unrecognised", `"proprietary"`, security.SeverityInfo, "unrecognised_license"},
		{"unknown conjunct", `"MIT AND Custom-1.0"`, security.SeverityInfo, "unrecognised_license"},
		{"malformed", `"(MIT or"`, security.SeverityInfo, "unrecognised_license"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeProject(t, map[string]string{"composer.lock": lockWithLicense(tt.license)})
			res := runAnalyzer(t, NewLicense(testOptions(t, nil)), dir)
			if tt.typ == "" {
				assert.Empty(t, res.Issues)
				return
			}
			require.Len(t, res.Issues, 1)
			assert.Equal(t, tt.severity, res.Issues[0].Severity)
			assert.Equal(t, tt.typ, res.Issues[0].Metadata.String("issue_type"))
		})
	}
}

func TestLicenseListsFromSettings(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"composer.lock": lockWithLicense(`"GPL-3.0-only"`),
	})
	opts := testOptions(t, map[string]any{
		"security.license.allowed": []any{"MIT", "GPL-3.0"},
		"security.license.denied":  []any{"SSPL"},
	})

	res := runAnalyzer(t, NewLicense(opts), dir)
	assert.Empty(t, res.Issues)
}

func TestLicenseIncludeDev(t *testing.T) {
	lock := `{
    "packages": [],
    "packages-dev": [
        {"name": "acme/test-tools", "version": "1.0.0", "license": "AGPL-3.0-only"}
    ]
}
`
	dir := writeProject(t, map[string]string{"composer.lock": lock})

	res := runAnalyzer(t, NewLicense(testOptions(t, nil)), dir)
	assert.Empty(t, res.Issues)

	opts := testOptions(t, map[string]any{"security.license.include_dev": true})
	res = runAnalyzer(t, NewLicense(opts), dir)
	require.Len(t, res.Issues, 1)
	dev, _ := res.Issues[0].Metadata.Get("dev")
	assert.Equal(t, true, dev)
}

func TestLicenseMalformedLock(t *testing.T) {
	dir := writeProject(t, map[string]string{"composer.lock": "{not json"})

	res := runAnalyzer(t, NewLicense(testOptions(t, nil)), dir)
	assert.Equal(t, security.OutcomePassed, res.Outcome)
}

func TestLicenseSkipsWithoutLock(t *testing.T) {
	res := runAnalyzer(t, NewLicense(testOptions(t, nil)), t.TempDir())
	assert.Equal(t, security.OutcomeSkipped, res.Outcome)
	assert.Equal(t, "No composer.lock found.", res.Message)
}

func TestParseLicense(t *testing.T) {
	e, err := parseLicense("(MIT OR Apache-2.0) AND BSD-3-Clause")
	require.NoError(t, err)
	assert.Equal(t, opAnd, e.op)
	require.Len(t, e.terms, 2)
	assert.Equal(t, opOr, e.terms[0].op)
	assert.Equal(t, "BSD-3-Clause", e.terms[1].id)

	_, err = parseLicense("MIT AND")
	assert.Error(t, err)
	_, err = parseLicense("(MIT")
	assert.Error(t, err)
	_, err = parseLicense("MIT)")
	assert.Error(t, err)
}

func TestNormaliseLicense(t *testing.T) {
	assert.Equal(t, "GPL-2.0", normaliseLicense("GPL-2.0-or-later"))
	assert.Equal(t, "GPL-3.0", normaliseLicense("GPL-3.0-only"))
	assert.Equal(t, "LGPL-2.1", normaliseLicense("LGPL-2.1+"))
	assert.Equal(t, "MIT", normaliseLicense(" MIT "))
}
