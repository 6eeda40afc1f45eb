package composer

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Stability levels in composer order, least stable first.
const (
	StabilityDev    = "dev"
	StabilityAlpha  = "alpha"
	StabilityBeta   = "beta"
	StabilityRC     = "RC"
	StabilityStable = "stable"
)

var stabilityRank = map[string]int{
	"dev": 0, "alpha": 1, "beta": 2, "rc": 3, "stable": 4,
}

// IsStable reports whether a minimum-stability value is stable. An empty
// value is composer's default, which is stable.
func IsStable(minimumStability string) bool {
	s := strings.ToLower(strings.TrimSpace(minimumStability))
	return s == "" || s == "stable"
}

// ValidStability reports whether s is a stability level composer knows.
func ValidStability(s string) bool {
	_, ok := stabilityRank[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

var prereleaseWord = regexp.MustCompile(`(?i)^(dev|alpha|a|beta|b|rc|patch|pl|p)\.?\d*`)

// VersionStability classifies a locked version string: dev branches
// ("dev-main", "2.x-dev"), pre-releases ("v1.0.0-beta.2", "1.0-RC1") and
// stable releases.
func VersionStability(version string) string {
	v := strings.TrimSpace(version)
	lower := strings.ToLower(v)
	if strings.HasPrefix(lower, "dev-") || strings.HasSuffix(lower, "-dev") {
		return StabilityDev
	}
	sv, err := semver.NewVersion(v)
	if err != nil {
		return StabilityStable
	}
	pre := sv.Prerelease()
	if pre == "" {
		return StabilityStable
	}
	m := prereleaseWord.FindStringSubmatch(pre)
	if m == nil {
		return StabilityStable
	}
	switch strings.ToLower(m[1]) {
	case "dev":
		return StabilityDev
	case "alpha", "a":
		return StabilityAlpha
	case "beta", "b":
		return StabilityBeta
	case "rc":
		return StabilityRC
	}
	// patch and pl releases are stable.
	return StabilityStable
}

// IsPrerelease reports whether a locked version is below stable.
func IsPrerelease(version string) bool {
	return VersionStability(version) != StabilityStable
}

var stabilityFlag = regexp.MustCompile(`(?i)@(dev|alpha|beta|rc)\b`)

// IsUnstableConstraint reports whether a require constraint pins a dev
// branch ("dev-main", "1.x-dev") or carries an unstable flag ("^2.0@beta").
// The returned string names the stability it allows.
func IsUnstableConstraint(constraint string) (string, bool) {
	for _, part := range strings.FieldsFunc(constraint, func(r rune) bool { return r == '|' || r == ' ' || r == ',' }) {
		lower := strings.ToLower(part)
		if strings.HasPrefix(lower, "dev-") || strings.HasSuffix(lower, "-dev") {
			return StabilityDev, true
		}
		if m := stabilityFlag.FindStringSubmatch(part); m != nil {
			s := strings.ToLower(m[1])
			if s == "rc" {
				return StabilityRC, true
			}
			return s, true
		}
	}
	return "", false
}

// IsPlatform reports whether a require key is a platform package such as
// php or ext-mbstring rather than an installable dependency.
func IsPlatform(name string) bool {
	return name == "php" || strings.HasPrefix(name, "ext-") || strings.HasPrefix(name, "lib-") ||
		name == "composer-plugin-api" || name == "composer-runtime-api"
}
