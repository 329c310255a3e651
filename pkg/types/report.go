package types

import "time"

// RunReport is the material handed to a report sink at the end of a run.
type RunReport struct {
	RunID    string        // Identifier of the run.
	Started  time.Time     // Start of the run.
	Events   []ChangeEvent // Detected changes, grouped by repository.
	Summary  Summary       // Run counters.
	StateErr error         // Non-nil when the new state could not be persisted.
}

// ReportSink renders run reports.
type ReportSink interface {
	Write(report RunReport) error
}

// Status returns a machine-readable completion status.
//
// A save failure only matters when there were changes to persist.
func (r RunReport) Status() string {
	switch {
	case r.StateErr != nil && r.Summary.Changes() > 0:
		return StatusStateNotPersisted
	case r.Summary.RepositoriesFailed > 0:
		return StatusCompletedWithErrors
	default:
		return StatusCompleted
	}
}

// Status values returned by RunReport.Status and CheckResult.Status.
const (
	StatusCompleted           = "completed"
	StatusCompletedWithErrors = "completed_with_errors"
	StatusStateNotPersisted   = "state_not_persisted"
)

// CheckResult is the outcome of a completed check run.
type CheckResult struct {
	RunID    string
	Started  time.Time
	Events   []ChangeEvent
	Summary  Summary
	StateErr error
}

// Status returns a machine-readable completion status.
//
// A persistence failure is reported distinctly since it causes the same changes to be
// reported again on the next run.
func (r *CheckResult) Status() string {
	return r.Report().Status()
}

// Report converts the result into the material for a report sink.
func (r *CheckResult) Report() RunReport {
	return RunReport{
		RunID:    r.RunID,
		Started:  r.Started,
		Events:   r.Events,
		Summary:  r.Summary,
		StateErr: r.StateErr,
	}
}
