package output

import (
	"encoding/json"
	"time"

	"github.com/julianshen/larashield/internal/security"
)

// jsonReport is the top-level JSON output structure.
type jsonReport struct {
	RunID      string           `json:"run_id"`
	BasePath   string           `json:"base_path"`
	StartedAt  string           `json:"started_at"`
	DurationMS int64            `json:"duration_ms"`
	Summary    security.Summary `json:"summary"`
	Results    []jsonResult     `json:"results"`
}

// jsonResult mirrors security.Result with an issues list that is never
// null.
type jsonResult struct {
	Analyzer string           `json:"analyzer"`
	Name     string           `json:"name"`
	Category string           `json:"category"`
	Outcome  string           `json:"outcome"`
	Message  string           `json:"message"`
	Issues   []security.Issue `json:"issues"`
}

// JSONFormatter formats a report as JSON.
type JSONFormatter struct{}

// NewJSONFormatter creates a new JSONFormatter.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// Name returns the formatter name.
func (f *JSONFormatter) Name() string {
	return "json"
}

// Format renders the report as indented JSON.
func (f *JSONFormatter) Format(report *security.Report) ([]byte, error) {
	jr := jsonReport{
		RunID:      report.RunID,
		BasePath:   report.BasePath,
		DurationMS: report.Duration.Milliseconds(),
		Summary:    report.Summary(),
		Results:    convertResults(report.Results),
	}
	if !report.StartedAt.IsZero() {
		jr.StartedAt = report.StartedAt.UTC().Format(time.RFC3339)
	}
	return json.MarshalIndent(jr, "", "  ")
}

// convertResults converts results to their JSON representation.
func convertResults(results []security.Result) []jsonResult {
	out := make([]jsonResult, len(results))
	for i, r := range results {
		issues := r.Issues
		if issues == nil {
			issues = []security.Issue{}
		}
		out[i] = jsonResult{
			Analyzer: r.AnalyzerID,
			Name:     r.Name,
			Category: string(r.Category),
			Outcome:  string(r.Outcome),
			Message:  r.Message,
			Issues:   issues,
		}
	}
	return out
}
