package analyzer

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/julianshen/larashield/internal/composer"
	"github.com/julianshen/larashield/internal/security"
)

const composerJSON = "composer.json"

var stabilityDescriptor = security.Descriptor{
	ID:          "stable-dependencies",
	Name:        "Stable Dependencies",
	Description: "Finds unstable minimum-stability settings, dev constraints, locked pre-releases and pending stable upgrades.",
	Category:    security.CategorySupplyChain,
	DocsURL:     "https://getcomposer.org/doc/04-schema.md#minimum-stability",
	RunInCI:     true,
	CountsInfo:  true,
}

// StableDependencies checks composer.json and composer.lock for
// dependencies below stable.
type StableDependencies struct {
	base
	tool   composer.DependencyTool
	dryRun bool
}

// NewStableDependencies creates the stable-dependencies analyzer.
func NewStableDependencies(opts Options) *StableDependencies {
	a := &StableDependencies{base: newBase(stabilityDescriptor, opts), tool: opts.Tool}
	a.dryRun = a.settings.Bool("security.stable_dependencies.dry_run", false)
	return a
}

// ShouldRun reports whether composer.json exists.
func (a *StableDependencies) ShouldRun() bool { return a.exists(composerJSON) }

// SkipReason explains a skipped run.
func (a *StableDependencies) SkipReason() string { return "No composer.json found." }

// Analyze checks the manifest, then the lock file, then the optional dry
// run. Malformed JSON skips that file's checks; a dry-run failure fails
// the analyzer.
func (a *StableDependencies) Analyze(ctx context.Context) ([]security.Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var issues []security.Issue
	data, err := a.readOptional(composerJSON)
	if err != nil {
		return nil, err
	}
	if manifest, err := composer.ParseManifest(data); err != nil {
		a.logger.Warn("ignoring malformed manifest", zap.String("file", composerJSON), zap.Error(err))
	} else {
		issues = a.checkManifest(manifest)
	}

	data, err = a.readOptional(composerLock)
	if err != nil {
		return nil, err
	}
	if data != nil {
		lock, err := composer.ParseLock(data, true)
		if err != nil {
			a.logger.Warn("ignoring malformed lock file", zap.String("file", composerLock), zap.Error(err))
		} else {
			issues = append(issues, a.checkLock(lock, packageLines(data))...)
		}
	}

	if a.dryRun {
		changes, err := a.runDryRun(ctx)
		if err != nil {
			return nil, err
		}
		issues = append(issues, changes...)
	}
	return issues, nil
}

func (a *StableDependencies) checkManifest(m *composer.Manifest) []security.Issue {
	var issues []security.Issue
	switch {
	case m.MinimumStability != "" && !composer.ValidStability(m.MinimumStability):
		issues = append(issues, security.Issue{
			Message:        fmt.Sprintf("minimum-stability %q is not a stability level composer recognises.", m.MinimumStability),
			Severity:       security.SeverityLow,
			Location:       security.Location{File: composerJSON},
			Recommendation: `Use one of "stable", "RC", "beta", "alpha" or "dev"; "stable" is preferred.`,
			Metadata: security.Meta(
				"issue_type", "invalid_minimum_stability",
				"minimum_stability", m.MinimumStability,
			),
		})
	case !composer.IsStable(m.MinimumStability) && !m.PreferStable:
		issues = append(issues, security.Issue{
			Message: fmt.Sprintf("minimum-stability is %q without prefer-stable, so composer may install unstable releases.",
				m.MinimumStability),
			Severity:       security.SeverityMedium,
			Location:       security.Location{File: composerJSON},
			Recommendation: `Set "minimum-stability": "stable", or add "prefer-stable": true.`,
			Metadata: security.Meta(
				"issue_type", "unstable_minimum_stability",
				"minimum_stability", m.MinimumStability,
				"prefer_stable", m.PreferStable,
			),
		})
	}

	for _, section := range []struct {
		name string
		reqs map[string]string
	}{{"require", m.Require}, {"require-dev", m.RequireDev}} {
		for _, name := range slices.Sorted(maps.Keys(section.reqs)) {
			constraint := section.reqs[name]
			if composer.IsPlatform(name) {
				continue
			}
			stability, unstable := composer.IsUnstableConstraint(constraint)
			if !unstable {
				continue
			}
			issues = append(issues, security.Issue{
				Message:        fmt.Sprintf("%s requires %s at %q, which allows %s releases.", section.name, name, constraint, stability),
				Severity:       security.SeverityLow,
				Location:       security.Location{File: composerJSON},
				Recommendation: "Require a tagged stable release once one is available.",
				Metadata: security.Meta(
					"issue_type", "unstable_constraint",
					"package", name,
					"constraint", constraint,
					"stability", stability,
					"section", section.name,
				),
			})
		}
	}
	return issues
}

func (a *StableDependencies) checkLock(lock *composer.Lock, lines map[string]int) []security.Issue {
	var issues []security.Issue
	for _, pkg := range lock.Packages {
		if !composer.IsPrerelease(pkg.Version) {
			continue
		}
		stability := composer.VersionStability(pkg.Version)
		issues = append(issues, security.Issue{
			Message:        fmt.Sprintf("Locked version %s of %s is a %s release.", pkg.Version, pkg.Name, stability),
			Severity:       security.SeverityLow,
			Location:       security.Location{File: composerLock, Line: lines[pkg.Name]},
			Recommendation: "Update to a stable release and commit the new composer.lock.",
			Metadata: security.Meta(
				"issue_type", "prerelease_version",
				"package", pkg.Name,
				"version", pkg.Version,
				"stability", stability,
				"dev", pkg.Dev,
			),
		})
	}
	return issues
}

func (a *StableDependencies) runDryRun(ctx context.Context) ([]security.Issue, error) {
	tool := a.tool
	if tool == nil {
		tool = composer.NewCLI(a.basePath)
	}
	out, err := tool.DryRunUpdate(ctx)
	if err != nil {
		return nil, fmt.Errorf("dependency dry run: %w", err)
	}
	var issues []security.Issue
	for _, c := range composer.ParseDryRun(out) {
		issues = append(issues, security.Issue{
			Message:        fmt.Sprintf("%s would move from %s to %s with prefer-stable.", c.Package, c.From, c.To),
			Severity:       security.SeverityLow,
			Location:       security.Location{File: composerLock},
			Recommendation: "Run composer update --prefer-stable and commit the updated composer.lock.",
			Metadata: security.Meta(
				"issue_type", "pending_stable_update",
				"package", c.Package,
				"operation", c.Operation,
				"from", c.From,
				"to", c.To,
			),
		})
	}
	a.logger.Debug("dry run finished", zap.Int("changes", len(issues)))
	return issues, nil
}
