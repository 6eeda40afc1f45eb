package output

import (
	"bytes"
	"fmt"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/julianshen/larashield/internal/security"
)

const toolURI = "https://github.com/julianshen/larashield"

// SARIFFormatter formats a report as SARIF v2.1.0. Each analyzer is one
// rule; its issues are the rule's results.
type SARIFFormatter struct {
	descriptors map[string]security.Descriptor
	version     string
}

// NewSARIFFormatter creates a SARIFFormatter. Descriptors supply rule
// descriptions and help links; analyzers without one fall back to the
// result's name.
func NewSARIFFormatter(version string, descriptors ...security.Descriptor) *SARIFFormatter {
	f := &SARIFFormatter{descriptors: make(map[string]security.Descriptor), version: version}
	for _, d := range descriptors {
		f.descriptors[d.ID] = d
	}
	return f
}

// Name returns the formatter name.
func (f *SARIFFormatter) Name() string {
	return "sarif"
}

// Format renders the report as SARIF JSON.
func (f *SARIFFormatter) Format(report *security.Report) ([]byte, error) {
	doc, err := sarif.New(sarif.Version210)
	if err != nil {
		return nil, fmt.Errorf("creating SARIF report: %w", err)
	}

	run := sarif.NewRunWithInformationURI("larashield", toolURI)
	if f.version != "" {
		v := f.version
		run.Tool.Driver.Version = &v
	}
	for _, res := range report.Results {
		rule := run.AddRule(res.AnalyzerID).
			WithName(res.Name).
			WithDescription(f.description(res)).
			WithDefaultConfiguration(&sarif.ReportingConfiguration{Level: "error"}).
			WithProperties(sarif.Properties{"category": string(res.Category)})
		if d, ok := f.descriptors[res.AnalyzerID]; ok && d.DocsURL != "" {
			rule.WithHelpURI(d.DocsURL)
		}

		for _, is := range res.Issues {
			run.AddResult(buildResult(rule.ID, is))
		}
	}
	doc.AddRun(run)

	var buf bytes.Buffer
	if err := doc.PrettyWrite(&buf); err != nil {
		return nil, fmt.Errorf("writing SARIF report: %w", err)
	}
	return buf.Bytes(), nil
}

func (f *SARIFFormatter) description(res security.Result) string {
	if d, ok := f.descriptors[res.AnalyzerID]; ok && d.Description != "" {
		return d.Description
	}
	return res.Name
}

func buildResult(ruleID string, is security.Issue) *sarif.Result {
	region := sarif.NewRegion()
	if is.Location.Line > 0 {
		region.WithStartLine(is.Location.Line)
	}
	if is.Location.Column > 0 {
		region.WithStartColumn(is.Location.Column)
	}
	location := sarif.NewLocation().WithPhysicalLocation(
		sarif.NewPhysicalLocation().
			WithArtifactLocation(sarif.NewArtifactLocation().WithUri(is.Location.File)).
			WithRegion(region),
	)

	result := sarif.NewRuleResult(ruleID).
		WithMessage(sarif.NewTextMessage(is.Message)).
		WithLevel(severityToLevel(is.Severity)).
		WithLocations([]*sarif.Location{location})

	props := sarif.Properties{"severity": string(is.Severity)}
	if is.Recommendation != "" {
		props["recommendation"] = is.Recommendation
	}
	for _, field := range is.Metadata {
		props[field.Key] = field.Value
	}
	result.Properties = props
	return result
}

// severityToLevel maps issue severity to a SARIF level.
func severityToLevel(s security.Severity) string {
	switch s {
	case security.SeverityCritical, security.SeverityHigh:
		return "error"
	case security.SeverityMedium:
		return "warning"
	default:
		return "note"
	}
}
