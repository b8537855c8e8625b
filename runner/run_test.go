package runner_test

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crucible-run/crucible/check"
	"github.com/crucible-run/crucible/executor"
	"github.com/crucible-run/crucible/model"
	"github.com/crucible-run/crucible/runner"
)

// suiteEnv selects which declared suite a spawned child rebuilds. The
// variable is set by the parent test and inherited through the
// environment.
const suiteEnv = "CRUCIBLE_TEST_SUITE"

func TestMain(m *testing.M) {
	if idx, ok := executor.ChildIndex(); ok {
		s := suiteByName(os.Getenv(suiteEnv))
		if s == nil {
			fmt.Fprintln(os.Stderr, "unknown suite under test")
			os.Exit(3)
		}
		os.Exit(executor.RunChild(s, idx))
	}
	os.Exit(m.Run())
}

func suiteByName(name string) *model.Suite {
	switch name {
	case "mixed":
		return mixedSuite()
	case "skip-priority":
		return skipPrioritySuite()
	case "setup-error":
		return setupErrorSuite()
	case "suite-setup-error":
		return suiteSetupErrorSuite()
	case "crash":
		return crashSuite()
	case "panic":
		return panicSuite()
	}
	return nil
}

func mixedSuite() *model.Suite {
	return &model.Suite{
		Tests: []model.Test{
			{
				Name: "a-passes",
				Run:  func(r model.Reporter) { r.Report(model.Pass, "a is fine") },
			},
			{
				Name: "b-fails",
				Run:  func(r model.Reporter) { r.Report(model.Fail, "b is broken") },
			},
			{
				Name:    "c-hangs",
				Timeout: 300 * time.Millisecond,
				Run:     func(r model.Reporter) { time.Sleep(3 * time.Second) },
			},
		},
	}
}

func skipPrioritySuite() *model.Suite {
	return &model.Suite{
		Tests: []model.Test{
			{
				Name: "passes",
				Run:  func(r model.Reporter) { check.Eq(r, 1, 1) },
			},
			{
				Name: "skips",
				Run:  func(r model.Reporter) { r.Report(model.Skip, "not on this kernel") },
			},
		},
	}
}

func setupErrorSuite() *model.Suite {
	return &model.Suite{
		Tests: []model.Test{
			{
				Name:     "broken-setup",
				Setup:    func(r model.Reporter) { r.Report(model.Error, "setup exploded") },
				Run:      func(r model.Reporter) { r.Report(model.Pass, "never happens") },
				Teardown: func(r model.Reporter) { r.Report(model.Info, "teardown says goodbye") },
			},
			{
				Name: "still-runs",
				Run:  func(r model.Reporter) { r.Report(model.Pass, "suite keeps going") },
			},
		},
	}
}

func suiteSetupErrorSuite() *model.Suite {
	return &model.Suite{
		Setup:    func(r model.Reporter) { r.Report(model.Error, "suite setup exploded") },
		Teardown: func(r model.Reporter) { r.Report(model.Info, "suite teardown ran") },
		Tests: []model.Test{
			{
				Name: "unreachable",
				Run:  func(r model.Reporter) { r.Report(model.Pass, "no test runs") },
			},
		},
	}
}

func crashSuite() *model.Suite {
	return &model.Suite{
		Tests: []model.Test{
			{
				Name: "hard-crash",
				Run: func(r model.Reporter) {
					_ = syscall.Kill(os.Getpid(), syscall.SIGKILL)
					// Unreachable in the child.
					time.Sleep(time.Second)
				},
				Teardown: func(r model.Reporter) { r.Report(model.Info, "crash teardown ran") },
			},
			{
				Name: "after-crash",
				Run:  func(r model.Reporter) { r.Report(model.Pass, "must not run") },
			},
		},
	}
}

func panicSuite() *model.Suite {
	return &model.Suite{
		Tests: []model.Test{
			{
				Name:     "panics",
				Run:      func(r model.Reporter) { panic("kaboom") },
				Teardown: func(r model.Reporter) { r.Report(model.Info, "panic teardown ran") },
			},
			{
				Name: "unaffected",
				Run:  func(r model.Reporter) { r.Report(model.Pass, "still healthy") },
			},
		},
	}
}

func runNamedSuite(t *testing.T, name string) (model.Verdict, *runner.Runner, *bytes.Buffer) {
	t.Helper()
	t.Setenv(suiteEnv, name)

	var out, errOut bytes.Buffer
	r := runner.New(suiteByName(name), runner.Options{
		Stdout:         &out,
		Stderr:         &errOut,
		DefaultTimeout: 30 * time.Second,
	})
	return r.Run(), r, &out
}

func TestMixedSuiteScenario(t *testing.T) {
	v, r, out := runNamedSuite(t, "mixed")

	require.Equal(t, model.VerdictFailed, v)
	require.Equal(t, 1, v.ExitCode())

	passed, failed, skipped, errs := r.Session().Counters()
	require.Equal(t, uint64(1), passed)
	require.Equal(t, uint64(1), failed)
	require.Equal(t, uint64(0), skipped)
	require.Equal(t, uint64(0), errs)

	require.Equal(t, 1, strings.Count(out.String(), "Test timed out"))
	require.Contains(t, out.String(), "PASS a is fine")
	require.Contains(t, out.String(), "FAIL b is broken")
	require.Contains(t, out.String(), "Summary:")
}

func TestSkipWinsOverPassed(t *testing.T) {
	v, r, _ := runNamedSuite(t, "skip-priority")

	require.Equal(t, model.VerdictSkipped, v)
	require.Equal(t, 2, v.ExitCode())

	passed, failed, skipped, errs := r.Session().Counters()
	require.Equal(t, uint64(1), passed)
	require.Equal(t, uint64(0), failed)
	require.Equal(t, uint64(1), skipped)
	require.Equal(t, uint64(0), errs)
}

func TestSetupErrorSkipsRunButRunsTeardown(t *testing.T) {
	v, r, out := runNamedSuite(t, "setup-error")

	require.Equal(t, model.VerdictFailed, v)

	passed, _, _, errs := r.Session().Counters()
	require.Equal(t, uint64(1), errs)
	// The second test is unaffected by the first one's fatal error.
	require.Equal(t, uint64(1), passed)

	require.Contains(t, out.String(), "ERROR setup exploded")
	require.Contains(t, out.String(), "teardown says goodbye")
	require.NotContains(t, out.String(), "never happens")
	require.Contains(t, out.String(), "suite keeps going")
}

func TestSuiteSetupErrorAbortsRun(t *testing.T) {
	v, r, out := runNamedSuite(t, "suite-setup-error")

	require.Equal(t, model.VerdictError, v)
	require.Equal(t, -1, v.ExitCode())

	passed, _, _, errs := r.Session().Counters()
	require.Equal(t, uint64(0), passed)
	require.Equal(t, uint64(1), errs)

	require.Contains(t, out.String(), "ERROR suite setup exploded")
	require.Contains(t, out.String(), "suite teardown ran")
	require.NotContains(t, out.String(), "no test runs")
}

func TestCrashedChildAbortsSuite(t *testing.T) {
	v, r, out := runNamedSuite(t, "crash")

	require.Equal(t, model.VerdictError, v)

	passed, _, _, errs := r.Session().Counters()
	require.Equal(t, uint64(0), passed)
	require.Equal(t, uint64(1), errs)

	require.Contains(t, out.String(), "killed with signal 9")
	// The phase table applies: the crash hit during the run phase, so
	// the test's teardown ran (in the orchestrator process).
	require.Contains(t, out.String(), "crash teardown ran")
	require.NotContains(t, out.String(), "must not run")
}

func TestPanickingTestIsContained(t *testing.T) {
	v, r, out := runNamedSuite(t, "panic")

	require.Equal(t, model.VerdictFailed, v)

	passed, _, _, errs := r.Session().Counters()
	require.Equal(t, uint64(1), errs)
	require.Equal(t, uint64(1), passed)

	require.Contains(t, out.String(), "test panicked: kaboom")
	require.Contains(t, out.String(), "panic teardown ran")
	require.Contains(t, out.String(), "still healthy")
}

func TestCountersAreStableAfterRun(t *testing.T) {
	_, r, _ := runNamedSuite(t, "skip-priority")

	p1, f1, s1, e1 := r.Session().Counters()
	p2, f2, s2, e2 := r.Session().Counters()
	require.Equal(t, [4]uint64{p1, f1, s1, e1}, [4]uint64{p2, f2, s2, e2})
}
