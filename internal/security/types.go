package security

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Severity represents the severity level of an issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// SeverityRank returns a numeric rank for ordering severities.
// Critical=5, High=4, Medium=3, Low=2, Info=1. Unknown severities return 0.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// ParseSeverity normalizes s and reports whether it names a severity.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	return sev, SeverityRank(sev) > 0
}

// Category groups analyzers by the kind of weakness they look for.
type Category string

const (
	CategoryAuthentication    Category = "authentication"
	CategoryCryptography      Category = "cryptography"
	CategoryInputValidation   Category = "input-validation"
	CategorySupplyChain       Category = "supply-chain"
	CategoryLicenseCompliance Category = "license-compliance"
)

// Outcome is the reduced verdict of one analyzer run.
type Outcome string

const (
	OutcomePassed  Outcome = "passed"
	OutcomeWarning Outcome = "warning"
	OutcomeFailed  Outcome = "failed"
	OutcomeError   Outcome = "error"
	OutcomeSkipped Outcome = "skipped"
)

// ReduceOutcome maps the highest severity in issues to an outcome:
// critical or high fail, anything lower warns, no issues pass. When
// countInfo is false, info issues are ignored.
func ReduceOutcome(issues []Issue, countInfo bool) Outcome {
	highest := 0
	for _, is := range issues {
		rank := SeverityRank(is.Severity)
		if rank == SeverityRank(SeverityInfo) && !countInfo {
			continue
		}
		highest = max(highest, rank)
	}
	switch {
	case highest >= SeverityRank(SeverityHigh):
		return OutcomeFailed
	case highest > 0:
		return OutcomeWarning
	default:
		return OutcomePassed
	}
}

// Location identifies a position in a scanned file. File is relative to
// the scanned base path.
type Location struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

func (l Location) String() string {
	switch {
	case l.Line == 0:
		return l.File
	case l.Column == 0:
		return fmt.Sprintf("%s:%d", l.File, l.Line)
	default:
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
}

// Field is one metadata entry.
type Field struct {
	Key   string
	Value any
}

// Metadata is an ordered string-keyed map of scalar or list values.
type Metadata []Field

// Meta builds metadata from alternating keys and values. A trailing key
// without a value is dropped.
func Meta(kv ...any) Metadata {
	m := make(Metadata, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		m = m.With(key, kv[i+1])
	}
	return m
}

// Get returns the value stored under key.
func (m Metadata) Get(key string) (any, bool) {
	for _, f := range m {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// String returns the value under key formatted as a string, or "".
func (m Metadata) String(key string) string {
	v, ok := m.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// With returns a copy of m with key set to value. An existing key keeps
// its position.
func (m Metadata) With(key string, value any) Metadata {
	out := make(Metadata, len(m), len(m)+1)
	copy(out, m)
	for i := range out {
		if out[i].Key == key {
			out[i].Value = value
			return out
		}
	}
	return append(out, Field{Key: key, Value: value})
}

// MarshalJSON encodes the entries as a JSON object in insertion order.
func (m Metadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("metadata %q: %w", f.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Issue is one finding produced by an analyzer.
type Issue struct {
	Message        string   `json:"message"`
	Severity       Severity `json:"severity"`
	Location       Location `json:"location"`
	Recommendation string   `json:"recommendation"`
	Metadata       Metadata `json:"metadata"`
}

// Result is the outcome of one analyzer run.
type Result struct {
	AnalyzerID string   `json:"analyzer"`
	Name       string   `json:"name"`
	Category   Category `json:"category"`
	Outcome    Outcome  `json:"outcome"`
	Message    string   `json:"message"`
	Issues     []Issue  `json:"issues"`
}

// NewResult reduces issues to a result for the analyzer described by d.
func NewResult(d Descriptor, issues []Issue) Result {
	r := Result{
		AnalyzerID: d.ID,
		Name:       d.Name,
		Category:   d.Category,
		Outcome:    ReduceOutcome(issues, d.CountsInfo),
		Issues:     issues,
	}
	switch r.Outcome {
	case OutcomePassed:
		r.Message = "No issues found."
	case OutcomeFailed:
		r.Message = fmt.Sprintf("Found %d issue(s), at least one of high severity or above.", len(issues))
	default:
		r.Message = fmt.Sprintf("Found %d issue(s).", len(issues))
	}
	return r
}

// SkippedResult records an analyzer that had nothing to scan.
func SkippedResult(d Descriptor, reason string) Result {
	return Result{
		AnalyzerID: d.ID,
		Name:       d.Name,
		Category:   d.Category,
		Outcome:    OutcomeSkipped,
		Message:    reason,
	}
}

// ErrorResult records an infrastructure failure.
func ErrorResult(d Descriptor, err error) Result {
	return Result{
		AnalyzerID: d.ID,
		Name:       d.Name,
		Category:   d.Category,
		Outcome:    OutcomeError,
		Message:    err.Error(),
	}
}

// Descriptor is the static description of an analyzer.
type Descriptor struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	DocsURL     string   `json:"docs_url,omitempty"`
	// RunInCI is false for analyzers that need tools or network access a
	// CI runner may not have.
	RunInCI bool `json:"run_in_ci"`
	// CountsInfo makes info-severity issues produce a warning outcome.
	CountsInfo bool `json:"counts_info"`
}

// Analyzer is the contract every check implements. Analyze returns an
// error only for infrastructure failures; anything recoverable is
// logged and skipped.
type Analyzer interface {
	Descriptor() Descriptor
	SetBasePath(path string)
	SetPaths(paths []string)
	ShouldRun() bool
	SkipReason() string
	Analyze(ctx context.Context) ([]Issue, error)
}

// Excluder is implemented by analyzers that honour the project's
// excluded path globs.
type Excluder interface {
	SetExclude(globs []string)
}

// AnalyzerError records an analyzer that failed or panicked.
type AnalyzerError struct {
	Analyzer string
	Err      error
	Panic    bool
}

// Error implements the error interface for AnalyzerError.
func (e *AnalyzerError) Error() string {
	if e.Panic {
		return fmt.Sprintf("analyzer %s panicked: %s", e.Analyzer, e.Err)
	}
	return fmt.Sprintf("analyzer %s failed: %s", e.Analyzer, e.Err)
}

func (e *AnalyzerError) Unwrap() error { return e.Err }
