// Package model defines the descriptors and enumerations shared by the
// crucible runtime: test and suite declarations, result kinds, execution
// phases and the final suite verdict.
package model

import "time"

// DefaultTimeout is the per-test deadline applied when a test does not
// specify its own.
const DefaultTimeout = 600 * time.Second

// Kind classifies a single reported result.
type Kind int

const (
	// Info is an informative message. It is printed but never counted.
	Info Kind = iota
	// Pass records a successful check.
	Pass
	// Fail records a failed check. Execution of the test continues.
	Fail
	// Skip records a skipped check. Execution of the test continues.
	Skip
	// Error records a fatal condition. The process that reported it
	// stops after running the teardown appropriate for its phase.
	Error
)

func (k Kind) String() string {
	switch k {
	case Pass:
		return "PASS"
	case Fail:
		return "FAIL"
	case Skip:
		return "SKIP"
	case Error:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Phase identifies which part of the suite lifecycle is currently
// executing. Exactly one phase is active at any instant; it selects the
// teardown routine that runs when a fatal error is reported.
type Phase int32

const (
	PhaseSuiteSetup Phase = iota
	PhaseTestSetup
	PhaseTestRun
	PhaseTestTeardown
	PhaseSuiteTeardown
)

func (p Phase) String() string {
	switch p {
	case PhaseSuiteSetup:
		return "suite-setup"
	case PhaseTestSetup:
		return "test-setup"
	case PhaseTestRun:
		return "test-run"
	case PhaseTestTeardown:
		return "test-teardown"
	case PhaseSuiteTeardown:
		return "suite-teardown"
	default:
		return "unknown"
	}
}

// Verdict is the final classification of a suite run, derived from the
// counters once the last test has been reaped.
type Verdict int

const (
	// VerdictError covers infrastructure failures: spawn errors,
	// unexpected reap errors, or a fatal error outside any test.
	VerdictError Verdict = -1
	// VerdictPassed means every counted result was a Pass.
	VerdictPassed Verdict = 0
	// VerdictFailed means at least one Fail or Error was counted.
	VerdictFailed Verdict = 1
	// VerdictSkipped means at least one Skip was counted and no
	// result takes higher priority. Skipped wins over Failed.
	VerdictSkipped Verdict = 2
)

func (v Verdict) String() string {
	switch v {
	case VerdictPassed:
		return "passed"
	case VerdictFailed:
		return "failed"
	case VerdictSkipped:
		return "skipped"
	default:
		return "error"
	}
}

// ExitCode returns the process exit status encoding the verdict.
// VerdictError maps to -1; Unix truncates that to the low 8 bits, so an
// observer sees 255.
func (v Verdict) ExitCode() int {
	return int(v)
}

// Reporter is the single entry point through which tests and their
// setup/teardown actions announce results. Assertion helpers build on
// it and never touch the underlying session state directly.
type Reporter interface {
	// Report formats a message and records it under the caller's
	// source location.
	Report(kind Kind, format string, args ...any)
	// ReportAt records an already formatted message under an explicit
	// source location. Assertion helpers capture their caller and
	// funnel through here.
	ReportAt(file string, line int, kind Kind, msg string)
	// Last returns the kind of the most recent non-Info report made
	// by this process.
	Last() Kind
}

// Action is a unit of user code run by the suite: a setup, teardown or
// test body. It reports outcomes through the supplied Reporter.
type Action func(r Reporter)

// Test declares one unit of verification. The descriptor is owned by
// the caller and must not change once the suite starts.
type Test struct {
	// Name is an optional label used in operational logs.
	Name string
	// Setup runs before Run inside the test's child process.
	Setup Action
	// Teardown runs after Run, and also when Setup or Run report a
	// fatal error.
	Teardown Action
	// Run is the test body. Required.
	Run Action
	// Timeout is the wall-clock deadline for the whole child. Zero
	// selects the runner's default.
	Timeout time.Duration
}

// Suite declares an ordered collection of tests plus optional
// suite-level setup and teardown, each run once in the orchestrator
// process.
type Suite struct {
	Setup    Action
	Teardown Action
	Tests    []Test
}
