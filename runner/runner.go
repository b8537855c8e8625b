// Package runner sequences a whole suite run: suite setup, the test
// loop with one isolated child per test, stray-process reaping, suite
// teardown, and the final summary and verdict.
package runner

import (
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/crucible-run/crucible/executor"
	"github.com/crucible-run/crucible/model"
	"github.com/crucible-run/crucible/session"
)

// Options configures a suite run.
type Options struct {
	// DefaultTimeout applies to tests that declare none.
	// Defaults to model.DefaultTimeout (600 s).
	DefaultTimeout time.Duration
	// PollInterval is the timeout monitor's completion-check interval.
	PollInterval time.Duration
	// Color enables ANSI coloring of the result stream.
	Color bool
	// Stdout receives result lines and the summary; it is also
	// inherited by test children. Defaults to os.Stdout.
	Stdout io.Writer
	// Stderr is inherited by test children. Defaults to os.Stderr.
	Stderr io.Writer
	// Logger receives operational (non-result) events. Defaults to a
	// disabled logger.
	Logger *zerolog.Logger
}

// Runner drives one suite from setup to verdict.
type Runner struct {
	logger zerolog.Logger
	suite  *model.Suite
	opts   Options
	sess   *session.Session
}

// New creates a Runner for the given suite.
func New(suite *model.Suite, opts Options) *Runner {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Runner{
		logger: logger,
		suite:  suite,
		opts:   opts,
	}
}

// Session exposes the run's result channel. Valid once Run has started.
func (r *Runner) Session() *session.Session { return r.sess }

// Run executes the suite and returns its verdict. Tests run in
// declaration order, each in its own child process; suite setup and
// teardown run un-forked in this process. A fatal error anywhere on the
// orchestrator side short-circuits to the phase-appropriate teardown
// and yields VerdictError.
func (r *Runner) Run() (v model.Verdict) {
	r.sess = session.New(r.suite, session.Config{
		Out:   r.opts.Stdout,
		Color: r.opts.Color,
	})

	defer func() {
		p := recover()
		if p == nil {
			return
		}
		if p != session.ErrFatal {
			panic(p)
		}
		r.sess.RunFatalTeardown()
		v = model.VerdictError
		r.logger.Error().Msg("Suite aborted by fatal error")
	}()

	exe := executor.New(r.sess, executor.Config{
		Logger:         r.logger,
		Stdout:         r.opts.Stdout,
		Stderr:         r.opts.Stderr,
		DefaultTimeout: r.opts.DefaultTimeout,
		PollInterval:   r.opts.PollInterval,
		Color:          r.opts.Color,
	})

	r.logger.Info().Int("tests", len(r.suite.Tests)).Msg("Running suite")

	if r.suite.Setup != nil {
		r.sess.SetPhase(model.PhaseSuiteSetup)
		r.runAction(r.suite.Setup)
	}

	for i := range r.suite.Tests {
		test := &r.suite.Tests[i]
		r.sess.SetCurrent(test)
		r.logger.Debug().
			Int("test", i).
			Str("name", test.Name).
			Msg("Starting test")
		exe.RunTest(i, test)
	}
	r.sess.SetCurrent(nil)

	if err := executor.ReapStray(); err != nil {
		r.sess.Report(model.Error, "%v", err)
	}

	if r.suite.Teardown != nil {
		r.sess.SetPhase(model.PhaseSuiteTeardown)
		r.runAction(r.suite.Teardown)
	}

	r.sess.Summary()
	v = r.sess.Verdict()
	r.logger.Info().Stringer("verdict", v).Msg("Suite finished")
	return v
}

// runAction executes a suite-level action in the orchestrator process,
// converting a stray panic into a fatal error report.
func (r *Runner) runAction(a model.Action) {
	defer func() {
		p := recover()
		switch {
		case p == nil:
		case p == session.ErrFatal:
			panic(p)
		default:
			r.sess.Report(model.Error, "suite action panicked: %v", p)
		}
	}()
	a(r.sess)
}

// RunSuite runs the suite with default options and returns the process
// exit status encoding the verdict: Passed=0, Failed=1, Skipped=2,
// Error=-1.
func RunSuite(suite *model.Suite) int {
	return New(suite, Options{}).Run().ExitCode()
}
