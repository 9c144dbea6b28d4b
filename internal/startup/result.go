// internal/startup/result.go
package startup

import (
	"fmt"
	"strings"
)

// CheckStatus distinguishes how a check concluded.
type CheckStatus string

const (
	StatusPassed  CheckStatus = "passed"
	StatusFailed  CheckStatus = "failed"
	StatusTimeout CheckStatus = "timeout"
	StatusSkipped CheckStatus = "skipped"
)

// CheckResult is the outcome of one startup check. The orchestrator
// sets DurationMS after timing the call; results are otherwise
// immutable once appended.
type CheckResult struct {
	Name       string      `json:"name"`
	Success    bool        `json:"success"`
	Message    string      `json:"message"`
	Critical   bool        `json:"critical"`
	Status     CheckStatus `json:"status"`
	DurationMS float64     `json:"duration_ms"`
}

// Passed builds a successful result.
func Passed(name, message string) CheckResult {
	return CheckResult{Name: name, Success: true, Message: message, Critical: true, Status: StatusPassed}
}

// Failed builds a failed, critical result.
func Failed(name, message string) CheckResult {
	return CheckResult{Name: name, Success: false, Message: message, Critical: true, Status: StatusFailed}
}

// NonCritical downgrades the result's criticality.
func (r CheckResult) NonCritical() CheckResult {
	r.Critical = false
	return r
}

// Report aggregates one orchestration run.
type Report struct {
	Success           bool          `json:"success"`
	TotalChecks       int           `json:"total_checks"`
	Passed            int           `json:"passed"`
	FailedCritical    int           `json:"failed_critical"`
	FailedNonCritical int           `json:"failed_non_critical"`
	DurationMS        float64       `json:"duration_ms"`
	Results           []CheckResult `json:"results"`
	Failures          []CheckResult `json:"failures"`
}

// buildReport computes the aggregate counters from results. Success
// depends only on critical failures.
func buildReport(results []CheckResult, durationMS float64) *Report {
	report := &Report{
		TotalChecks: len(results),
		DurationMS:  durationMS,
		Results:     results,
	}
	for _, r := range results {
		switch {
		case r.Success:
			report.Passed++
		case r.Critical:
			report.FailedCritical++
			report.Failures = append(report.Failures, r)
		default:
			report.FailedNonCritical++
			report.Failures = append(report.Failures, r)
		}
	}
	report.Success = report.FailedCritical == 0
	return report
}

// skippedReport is the all-zero shape returned when checks are bypassed.
func skippedReport() *Report {
	return &Report{Success: true, Results: []CheckResult{}, Failures: []CheckResult{}}
}

// failureSummary enumerates every failing check as "name: message".
func failureSummary(failures []CheckResult) string {
	lines := make([]string, 0, len(failures))
	for _, f := range failures {
		lines = append(lines, fmt.Sprintf("%s: %s", f.Name, f.Message))
	}
	return strings.Join(lines, "\n")
}
