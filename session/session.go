// Package session holds the shared state of one suite run: the outcome
// counters, the active phase, the current test, and the reporter that
// every result funnels through. The orchestrator owns the only Session
// whose counters are authoritative; a test child holds its own Session
// that forwards counted results and phase changes over the ipc pipe
// instead of incrementing locally.
package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/crucible-run/crucible/ipc"
	"github.com/crucible-run/crucible/model"
)

// ErrFatal is the sentinel raised (via panic) when an Error result is
// reported. The executor recovers it at the child boundary and the
// orchestrator at the suite boundary; both run the phase-appropriate
// teardown and then stop.
var ErrFatal = errors.New("fatal result reported")

const (
	ansiReset   = "\033[0m"
	ansiRed     = "\033[1;31m"
	ansiGreen   = "\033[1;32m"
	ansiYellow  = "\033[1;33m"
	ansiBlue    = "\033[1;34m"
	ansiMagenta = "\033[1;35m"
)

// Config carries the construction parameters for a Session.
type Config struct {
	// Out receives the per-event result lines and the summary.
	// Defaults to os.Stdout.
	Out io.Writer
	// Color enables ANSI coloring of severity labels.
	Color bool
	// Forward, when non-nil, marks this Session as child-side: counted
	// results and phase changes are sent to the orchestrator instead
	// of being applied locally.
	Forward *ipc.Encoder
}

// Session is the result channel of a suite run.
type Session struct {
	suite *model.Suite
	curr  atomic.Pointer[model.Test]

	passed  atomic.Uint64
	failed  atomic.Uint64
	skipped atomic.Uint64
	errs    atomic.Uint64

	phase atomic.Int32
	last  atomic.Int32

	forward *ipc.Encoder

	mu    sync.Mutex
	out   io.Writer
	color bool
}

// New creates a Session for the given suite. The phase starts at
// SuiteSetup.
func New(suite *model.Suite, cfg Config) *Session {
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	return &Session{
		suite:   suite,
		out:     out,
		color:   cfg.Color,
		forward: cfg.Forward,
	}
}

// Suite returns the suite this session belongs to.
func (s *Session) Suite() *model.Suite { return s.suite }

// SetCurrent records the test about to execute. Pass nil once the last
// test has completed.
func (s *Session) SetCurrent(t *model.Test) { s.curr.Store(t) }

// Current returns the test currently executing, or nil outside the test
// loop.
func (s *Session) Current() *model.Test { return s.curr.Load() }

// SetPhase records a phase transition, forwarding it to the
// orchestrator when running inside a child.
func (s *Session) SetPhase(p model.Phase) {
	s.phase.Store(int32(p))
	if s.forward != nil {
		// Best effort: a torn pipe surfaces when the child exits.
		_ = s.forward.SendPhase(p)
	}
}

// Phase returns the currently active phase.
func (s *Session) Phase() model.Phase { return model.Phase(s.phase.Load()) }

// Last returns the kind of the most recent non-Info report made in
// this process.
func (s *Session) Last() model.Kind { return model.Kind(s.last.Load()) }

// Counters returns the four outcome counters.
func (s *Session) Counters() (passed, failed, skipped, errs uint64) {
	return s.passed.Load(), s.failed.Load(), s.skipped.Load(), s.errs.Load()
}

// Report formats a message and records it under the caller's source
// location. Reporting an Error runs the full fatal path: the message is
// printed and counted first, then ErrFatal is raised.
func (s *Session) Report(kind model.Kind, format string, args ...any) {
	file, line := callerLocation(2)
	s.ReportAt(file, line, kind, fmt.Sprintf(format, args...))
}

// ReportAt records an already formatted message under an explicit
// source location. This is the boundary consumed by assertion helpers.
func (s *Session) ReportAt(file string, line int, kind model.Kind, msg string) {
	s.printLine(file, line, kind, msg)

	if kind != model.Info {
		s.last.Store(int32(kind))
		if s.forward != nil {
			_ = s.forward.SendResult(kind)
		} else {
			s.ApplyResult(kind)
		}
	}

	if kind == model.Error {
		panic(ErrFatal)
	}
}

// ApplyResult increments the counter matching kind. It implements
// ipc.Handler so that child events land on the orchestrator's counters.
func (s *Session) ApplyResult(kind model.Kind) {
	switch kind {
	case model.Pass:
		s.passed.Add(1)
	case model.Fail:
		s.failed.Add(1)
	case model.Skip:
		s.skipped.Add(1)
	case model.Error:
		s.errs.Add(1)
	}
}

// ApplyPhase mirrors a child's phase transition into the orchestrator's
// view of the channel.
func (s *Session) ApplyPhase(p model.Phase) {
	s.phase.Store(int32(p))
}

// RunFatalTeardown runs the teardown routine appropriate for the phase
// in which a fatal error was reported:
//
//	SuiteSetup          -> suite teardown
//	TestSetup, TestRun  -> current test's teardown
//	TestTeardown,
//	SuiteTeardown       -> nothing (already inside a teardown)
//
// The phase is switched to the corresponding teardown phase before the
// routine runs, so a nested Error cannot trigger teardown again.
func (s *Session) RunFatalTeardown() {
	switch s.Phase() {
	case model.PhaseSuiteSetup:
		if s.suite != nil && s.suite.Teardown != nil {
			s.SetPhase(model.PhaseSuiteTeardown)
			s.runRecovered(s.suite.Teardown)
		}
	case model.PhaseTestSetup, model.PhaseTestRun:
		if t := s.Current(); t != nil && t.Teardown != nil {
			s.SetPhase(model.PhaseTestTeardown)
			s.runRecovered(t.Teardown)
		}
	}
}

// runRecovered executes a teardown action, swallowing a nested fatal
// report so the termination already in progress wins.
func (s *Session) runRecovered(a model.Action) {
	defer func() {
		if r := recover(); r != nil && r != ErrFatal {
			panic(r)
		}
	}()
	a(s)
}

// Verdict derives the suite classification from the final counters.
// Skipped takes priority over Failed.
func (s *Session) Verdict() model.Verdict {
	_, failed, skipped, errs := s.Counters()
	switch {
	case skipped > 0:
		return model.VerdictSkipped
	case failed > 0 || errs > 0:
		return model.VerdictFailed
	default:
		return model.VerdictPassed
	}
}

// Summary prints the four outcome counters.
func (s *Session) Summary() {
	passed, failed, skipped, errs := s.Counters()

	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "\nSummary:\n%s:  %d\n%s:  %d\n%s: %d\n%s:  %d\n",
		s.colorize(ansiGreen, "Passed"), passed,
		s.colorize(ansiRed, "Failed"), failed,
		s.colorize(ansiYellow, "Skipped"), skipped,
		s.colorize(ansiMagenta, "Errors"), errs,
	)
}

func (s *Session) printLine(file string, line int, kind model.Kind, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "%s:%d %s %s\n", file, line, s.label(kind), msg)
}

func (s *Session) label(kind model.Kind) string {
	switch kind {
	case model.Pass:
		return s.colorize(ansiGreen, kind.String())
	case model.Fail:
		return s.colorize(ansiRed, kind.String())
	case model.Skip:
		return s.colorize(ansiYellow, kind.String())
	case model.Error:
		return s.colorize(ansiMagenta, kind.String())
	default:
		return s.colorize(ansiBlue, kind.String())
	}
}

func (s *Session) colorize(color, str string) string {
	if !s.color {
		return str
	}
	return color + str + ansiReset
}

func callerLocation(skip int) (string, int) {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "???", 0
	}
	return filepath.Base(file), line
}
