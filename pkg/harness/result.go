package harness

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cAbhi15/fink-client/pkg/coverage"
)

// Status classifies the overall outcome of a harness run.
type Status int

const (
	// StatusPassed means the dependency group started, the test command
	// exited zero, and teardown plus reporting completed.
	StatusPassed Status = iota

	// StatusReportError means the tests themselves passed but merging or
	// printing the coverage report failed afterwards.
	StatusReportError

	// StatusFailed means the test command ran and exited non-zero.
	StatusFailed

	// StatusInfraError means the run never reached a test verdict: the
	// dependency group failed to start, failed its readiness checks, or
	// fixture seeding failed.
	StatusInfraError
)

// String returns the human-readable name of the status.
func (s Status) String() string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusReportError:
		return "report-error"
	case StatusFailed:
		return "failed"
	case StatusInfraError:
		return "infrastructure-error"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ExitCode maps the status to the process exit code contract:
// 0 passed, 1 test failure, 2 infrastructure error, 3 report error.
func (s Status) ExitCode() int {
	switch s {
	case StatusPassed:
		return 0
	case StatusFailed:
		return 1
	case StatusInfraError:
		return 2
	case StatusReportError:
		return 3
	default:
		return 2
	}
}

// worst returns the more severe of two statuses. Severity follows the
// declaration order: an infrastructure error outranks a test failure,
// which outranks a report error, which outranks passed. This is how a
// late failure (a broken report) is prevented from overriding an
// already-determined test verdict.
func worst(a, b Status) Status {
	if b > a {
		return b
	}
	return a
}

// Result describes one complete harness run.
type Result struct {
	// RunID uniquely identifies one harness run in the logs.
	RunID uuid.UUID

	// Status is the overall outcome, worst-severity across all phases.
	Status Status

	// Reason is a one-line explanation for any non-passed status.
	Reason string

	// TestExitCode is the raw exit code of the test command, or -1 when
	// the command never ran.
	TestExitCode int

	// Started and Finished bound the full run including teardown and
	// reporting.
	Started  time.Time
	Finished time.Time

	// TeardownErr records any teardown failure. Teardown errors are logged
	// and kept here for inspection but never change Status: the test
	// verdict stands.
	TeardownErr error

	// Coverage is the merged coverage summary, nil when reporting was
	// skipped or failed.
	Coverage *coverage.Summary
}

// Duration returns the wall-clock duration of the run.
func (r *Result) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// ExitCode returns the process exit code for the run.
func (r *Result) ExitCode() int {
	return r.Status.ExitCode()
}

// record applies a phase outcome to the result, keeping the worst status
// and the reason that established it.
func (r *Result) record(s Status, reason string) {
	if worst(r.Status, s) != r.Status {
		r.Status = s
		r.Reason = reason
	} else if r.Reason == "" && reason != "" {
		r.Reason = reason
	}
}
