package output

import (
	"fmt"
	"strings"

	"github.com/julianshen/larashield/internal/security"
)

// MarkdownFormatter formats a report as Markdown.
type MarkdownFormatter struct{}

// NewMarkdownFormatter creates a new MarkdownFormatter.
func NewMarkdownFormatter() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

// Name returns the formatter name.
func (f *MarkdownFormatter) Name() string {
	return "markdown"
}

// severityOrder defines the display order for severity sections.
var severityOrder = []security.Severity{
	security.SeverityCritical,
	security.SeverityHigh,
	security.SeverityMedium,
	security.SeverityLow,
	security.SeverityInfo,
}

// severityLabel returns a human-readable label for a severity.
func severityLabel(s security.Severity) string {
	switch s {
	case security.SeverityCritical:
		return "Critical"
	case security.SeverityHigh:
		return "High"
	case security.SeverityMedium:
		return "Medium"
	case security.SeverityLow:
		return "Low"
	case security.SeverityInfo:
		return "Info"
	default:
		return string(s)
	}
}

// outcomeLabel returns a human-readable label for an outcome.
func outcomeLabel(o security.Outcome) string {
	switch o {
	case security.OutcomePassed:
		return "Passed"
	case security.OutcomeWarning:
		return "Warning"
	case security.OutcomeFailed:
		return "Failed"
	case security.OutcomeError:
		return "Error"
	case security.OutcomeSkipped:
		return "Skipped"
	default:
		return string(o)
	}
}

// Format renders the report as Markdown.
func (f *MarkdownFormatter) Format(report *security.Report) ([]byte, error) {
	var b strings.Builder

	summary := report.Summary()

	b.WriteString("# Laravel Security Report\n\n")

	b.WriteString("## Analyzers\n\n")
	b.WriteString("| Analyzer | Outcome | Issues | Message |\n")
	b.WriteString("|----------|---------|--------|---------|\n")
	for _, res := range report.Results {
		fmt.Fprintf(&b, "| %s | %s | %d | %s |\n",
			res.Name, outcomeLabel(res.Outcome), len(res.Issues), escapeCell(res.Message))
	}
	b.WriteString("\n")

	b.WriteString("## Summary\n\n")
	b.WriteString("| Severity | Count |\n")
	b.WriteString("|----------|-------|\n")
	fmt.Fprintf(&b, "| Critical | %d |\n", summary.Critical)
	fmt.Fprintf(&b, "| High | %d |\n", summary.High)
	fmt.Fprintf(&b, "| Medium | %d |\n", summary.Medium)
	fmt.Fprintf(&b, "| Low | %d |\n", summary.Low)
	fmt.Fprintf(&b, "| Info | %d |\n", summary.Info)
	b.WriteString("\n")
	fmt.Fprintf(&b, "**Total issues:** %d | **Failed:** %d | **Errors:** %d | **Duration:** %dms\n\n",
		summary.Issues, summary.Failed, summary.Errored, report.Duration.Milliseconds())

	type entry struct {
		analyzer string
		issue    security.Issue
	}
	bySeverity := make(map[security.Severity][]entry)
	for _, res := range report.Results {
		for _, is := range res.Issues {
			bySeverity[is.Severity] = append(bySeverity[is.Severity], entry{res.AnalyzerID, is})
		}
	}

	for _, sev := range severityOrder {
		entries := bySeverity[sev]
		if len(entries) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s Issues\n\n", severityLabel(sev))
		for _, e := range entries {
			writeIssue(&b, e.analyzer, e.issue)
		}
	}

	return []byte(b.String()), nil
}

// writeIssue writes a single issue as Markdown.
func writeIssue(b *strings.Builder, analyzer string, is security.Issue) {
	fmt.Fprintf(b, "### %s\n\n", is.Message)
	fmt.Fprintf(b, "- **Analyzer:** %s | **Severity:** %s\n", analyzer, severityLabel(is.Severity))
	if is.Location.File != "" {
		fmt.Fprintf(b, "- **Location:** `%s`\n", is.Location)
	}
	if t := is.Metadata.String("issue_type"); t != "" {
		fmt.Fprintf(b, "- **Type:** %s\n", t)
	}
	if is.Recommendation != "" {
		fmt.Fprintf(b, "- **Recommendation:** %s\n", is.Recommendation)
	}
	b.WriteString("\n")
}

// escapeCell keeps pipes inside a table cell from splitting it.
func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
