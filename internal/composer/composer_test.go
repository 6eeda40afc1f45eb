package composer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(`{
  "name": "acme/app",
  "license": ["MIT", "Apache-2.0"],
  "minimum-stability": "dev",
  "prefer-stable": true,
  "require": {"php": "^8.2", "laravel/framework": "^11.0", "bad": 3},
  "require-dev": {"phpunit/phpunit": "dev-main"}
}`))
	require.NoError(t, err)
	assert.Equal(t, "acme/app", m.Name)
	assert.Equal(t, Licenses{"MIT", "Apache-2.0"}, m.License)
	assert.Equal(t, "dev", m.MinimumStability)
	assert.True(t, m.PreferStable)
	assert.Equal(t, map[string]string{"php": "^8.2", "laravel/framework": "^11.0"}, m.Require)
	assert.Equal(t, "dev-main", m.RequireDev["phpunit/phpunit"])
}

func TestParseManifestWrongTypes(t *testing.T) {
	m, err := ParseManifest([]byte(`{"minimum-stability": 5, "prefer-stable": "yes", "require": []}`))
	require.NoError(t, err)
	assert.Empty(t, m.MinimumStability)
	assert.False(t, m.PreferStable)
	assert.Empty(t, m.Require)
}

func TestParseManifestInvalidJSON(t *testing.T) {
	_, err := ParseManifest([]byte(`{not json`))
	require.Error(t, err)
}

func TestParseLock(t *testing.T) {
	data := []byte(`{
  "packages": [
    {"name": "a/one", "version": "v1.2.3", "license": "MIT"},
    {"name": "a/two", "version": "2.0.0", "license": ["GPL-3.0-only", "MIT"]},
    {"name": "a/three", "version": "1.0.0", "license": 42},
    {"name": "a/four", "version": "1.0.0"},
    "garbage",
    {"version": "1.0.0"}
  ],
  "packages-dev": [
    {"name": "d/tool", "version": "dev-main", "license": "BSD-3-Clause"}
  ]
}`)
	lock, err := ParseLock(data, false)
	require.NoError(t, err)
	require.Len(t, lock.Packages, 4)
	assert.Equal(t, 2, lock.Skipped)

	assert.Equal(t, Licenses{"MIT"}, lock.Packages[0].License)
	assert.Equal(t, Licenses{"GPL-3.0-only", "MIT"}, lock.Packages[1].License)
	assert.Equal(t, "a/three", lock.Packages[2].Name)
	assert.Empty(t, lock.Packages[2].License)
	assert.Empty(t, lock.Packages[3].License)

	withDev, err := ParseLock(data, true)
	require.NoError(t, err)
	require.Len(t, withDev.Packages, 5)
	assert.True(t, withDev.Packages[4].Dev)
}

func TestVersionStability(t *testing.T) {
	tests := map[string]string{
		"v1.2.3":        StabilityStable,
		"1.2.3":         StabilityStable,
		"dev-main":      StabilityDev,
		"2.x-dev":       StabilityDev,
		"v1.0.0-beta.2": StabilityBeta,
		"1.0.0-beta2":   StabilityBeta,
		"1.0.0-alpha":   StabilityAlpha,
		"1.0-RC1":       StabilityRC,
		"1.0.0-p1":      StabilityStable,
		"not a version": StabilityStable,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, VersionStability(in))
		})
	}
	assert.True(t, IsPrerelease("3.0.0-RC2"))
	assert.False(t, IsPrerelease("3.0.0"))
}

func TestIsUnstableConstraint(t *testing.T) {
	tests := []struct {
		constraint string
		want       string
		unstable   bool
	}{
		{"^11.0", "", false},
		{"dev-main", StabilityDev, true},
		{"2.x-dev", StabilityDev, true},
		{"^2.0@beta", StabilityBeta, true},
		{"^1.0 || dev-feature", StabilityDev, true},
		{"@RC", StabilityRC, true},
	}
	for _, tt := range tests {
		got, ok := IsUnstableConstraint(tt.constraint)
		assert.Equal(t, tt.unstable, ok, tt.constraint)
		assert.Equal(t, tt.want, got, tt.constraint)
	}
}

func TestIsStable(t *testing.T) {
	assert.True(t, IsStable(""))
	assert.True(t, IsStable("Stable"))
	assert.False(t, IsStable("dev"))
	assert.True(t, ValidStability("RC"))
	assert.False(t, ValidStability("nightly"))
}

func TestIsPlatform(t *testing.T) {
	assert.True(t, IsPlatform("php"))
	assert.True(t, IsPlatform("ext-mbstring"))
	assert.False(t, IsPlatform("laravel/framework"))
}

func TestParseDryRun(t *testing.T) {
	output := `Loading composer repositories with package information
Updating dependencies
Lock file operations: 0 installs, 2 updates, 0 removals
  - Upgrading acme/widgets (v2.0.0-beta.1 => v2.0.0)
  - Downgrading acme/legacy (dev-main 1a2b3c => v1.4.0)
  - Locking acme/other (v1.0.0)
Installing dependencies from lock file (including require-dev)
`
	changes := ParseDryRun(output)
	require.Len(t, changes, 2)
	assert.Equal(t, Change{Operation: "Upgrading", Package: "acme/widgets", From: "v2.0.0-beta.1", To: "v2.0.0"}, changes[0])
	assert.Equal(t, "Downgrading", changes[1].Operation)
	assert.Equal(t, "dev-main 1a2b3c", changes[1].From)
	assert.Empty(t, ParseDryRun("Nothing to modify in lock file\n"))
}

func TestCLIUnavailable(t *testing.T) {
	cli := &CLI{Binary: "composer-does-not-exist-xyz", Dir: t.TempDir()}
	_, err := cli.DryRunUpdate(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrToolUnavailable))
}
