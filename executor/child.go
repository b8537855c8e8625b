package executor

import (
	"os"
	"strconv"

	"github.com/crucible-run/crucible/ipc"
	"github.com/crucible-run/crucible/model"
	"github.com/crucible-run/crucible/session"
)

// ChildIndex reports whether the current process was spawned as a test
// child, and if so which test it should run.
func ChildIndex() (int, bool) {
	v := os.Getenv(childEnv)
	if v == "" {
		return 0, false
	}
	idx, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return idx, true
}

// RunChild drives one test's setup, run and teardown inside the current
// process and returns the exit code the child should terminate with.
// It is called from the program's entry point when ChildIndex reports
// child mode.
func RunChild(suite *model.Suite, index int) int {
	sess := session.New(suite, session.Config{
		Out:     os.Stdout,
		Color:   os.Getenv(colorEnv) == "1",
		Forward: ipc.NewEncoder(os.NewFile(eventsFD, "crucible-events")),
	})
	return runChild(sess, suite, index)
}

func runChild(sess *session.Session, suite *model.Suite, index int) (code int) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if r != session.ErrFatal {
			panic(r)
		}
		sess.RunFatalTeardown()
		code = ErrorExitCode
	}()

	if index < 0 || index >= len(suite.Tests) {
		sess.SetPhase(model.PhaseTestSetup)
		sess.Report(model.Error, "no test at index %d", index)
	}

	test := &suite.Tests[index]
	sess.SetCurrent(test)

	if test.Setup != nil {
		sess.SetPhase(model.PhaseTestSetup)
		runAction(sess, test.Setup)
	}

	sess.SetPhase(model.PhaseTestRun)
	if test.Run == nil {
		sess.Report(model.Error, "test %d has no run action", index)
	}
	runAction(sess, test.Run)

	if test.Teardown != nil {
		sess.SetPhase(model.PhaseTestTeardown)
		runAction(sess, test.Teardown)
	}

	return 0
}

// runAction executes one user action, containing any panic that is not
// the fatal sentinel and re-reporting it as a fatal error so the usual
// teardown-and-exit path applies.
func runAction(sess *session.Session, a model.Action) {
	defer func() {
		r := recover()
		switch {
		case r == nil:
		case r == session.ErrFatal:
			panic(r)
		default:
			sess.Report(model.Error, "test panicked: %v", r)
		}
	}()
	a(sess)
}
