package security

import "fmt"

// ExitError is returned when a scan should exit with a non-zero code.
// Using a typed error instead of os.Exit ensures deferred cleanup runs.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns 1 if any analyzer errored or any issue has severity at
// or above the failOn threshold, 0 otherwise. An empty or "none" failOn
// disables severity gating; errors still fail the run.
func ExitCode(report *Report, failOn string) int {
	if report == nil {
		return 0
	}
	threshold := 0
	if sev, ok := ParseSeverity(failOn); ok {
		threshold = SeverityRank(sev)
	}
	for _, res := range report.Results {
		if res.Outcome == OutcomeError {
			return 1
		}
		if threshold == 0 {
			continue
		}
		for _, is := range res.Issues {
			if SeverityRank(is.Severity) >= threshold {
				return 1
			}
		}
	}
	return 0
}
