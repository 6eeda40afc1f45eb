package security

import (
	"fmt"
	"slices"

	"github.com/spf13/cast"

	"github.com/julianshen/larashield/internal/config"
)

// ProjectConfig is the run-level part of the settings tree: which
// analyzers run, which paths are ignored, how CI is gated and which
// issue severities are overridden.
type ProjectConfig struct {
	Disabled  []string
	Only      []string
	Exclude   []string
	FailOn    string
	Overrides []Override
}

// Override changes the severity of an analyzer's issues. An empty
// IssueType matches every issue of the analyzer.
type Override struct {
	Analyzer  string
	IssueType string
	Severity  Severity
	Reason    string
}

// ProjectConfigFromSettings reads the analyzers, paths, ci and overrides
// sections of s.
func ProjectConfigFromSettings(s *config.Settings) (*ProjectConfig, error) {
	cfg := &ProjectConfig{
		Disabled: s.StringSlice("analyzers.disabled", nil),
		Only:     s.StringSlice("analyzers.only", nil),
		Exclude:  s.StringSlice("paths.exclude", nil),
		FailOn:   s.String("ci.fail_on", ""),
	}
	if cfg.FailOn != "" && cfg.FailOn != "none" {
		if _, ok := ParseSeverity(cfg.FailOn); !ok {
			return nil, fmt.Errorf("ci.fail_on: invalid severity %q (must be critical, high, medium, low, info or none)", cfg.FailOn)
		}
	}

	raw, _ := s.Get("overrides", nil).([]any)
	for i, entry := range raw {
		o := cast.ToStringMap(entry)
		ov := Override{
			Analyzer:  cast.ToString(o["analyzer"]),
			IssueType: cast.ToString(o["issue_type"]),
			Reason:    cast.ToString(o["reason"]),
		}
		if ov.Analyzer == "" {
			return nil, fmt.Errorf("overrides[%d]: missing required analyzer field", i)
		}
		severity := cast.ToString(o["severity"])
		sev, ok := ParseSeverity(severity)
		if !ok {
			return nil, fmt.Errorf("overrides[%d]: invalid severity %q (must be critical, high, medium, low, or info)", i, severity)
		}
		ov.Severity = sev
		cfg.Overrides = append(cfg.Overrides, ov)
	}
	return cfg, nil
}

// Enabled reports whether the analyzer id should run.
func (c *ProjectConfig) Enabled(id string) bool {
	if c == nil {
		return true
	}
	if len(c.Only) > 0 && !slices.Contains(c.Only, id) {
		return false
	}
	return !slices.Contains(c.Disabled, id)
}

// ApplyOverrides returns issues with matching overrides applied and the
// number of issues changed. The input slice is not modified.
func ApplyOverrides(analyzerID string, issues []Issue, overrides []Override) ([]Issue, int) {
	if len(issues) == 0 || len(overrides) == 0 {
		return issues, 0
	}
	out := slices.Clone(issues)
	count := 0
	for i := range out {
		for _, o := range overrides {
			if o.Analyzer != analyzerID {
				continue
			}
			if o.IssueType != "" && out[i].Metadata.String("issue_type") != o.IssueType {
				continue
			}
			out[i].Severity = o.Severity
			count++
			break
		}
	}
	return out, count
}
