// Package executor runs a single test in an isolated child process and
// supervises it from the orchestrator side. Isolation is achieved by
// re-executing the current binary with an environment variable that
// selects child mode; the suite declaration is rebuilt by the child's
// own main, so nothing but result and phase events crosses the process
// boundary.
package executor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/rs/zerolog"

	"github.com/crucible-run/crucible/ipc"
	"github.com/crucible-run/crucible/model"
	"github.com/crucible-run/crucible/session"
)

const (
	childEnv = "CRUCIBLE_CHILD_TEST"
	colorEnv = "CRUCIBLE_COLOR"

	// eventsFD is the file descriptor the child writes ipc events to.
	// It is the first ExtraFiles entry handed over by the parent.
	eventsFD = 3

	// ErrorExitCode is the status a child exits with after a fatal
	// report: -1 truncated by the OS to the low 8 bits.
	ErrorExitCode = 255

	defaultPollInterval = 100 * time.Microsecond
)

// Config carries the construction parameters for an Executor.
type Config struct {
	Logger zerolog.Logger
	// Stdout and Stderr receive the child's output streams.
	// Default to os.Stdout and os.Stderr.
	Stdout io.Writer
	Stderr io.Writer
	// DefaultTimeout applies to tests that declare none.
	// Defaults to model.DefaultTimeout.
	DefaultTimeout time.Duration
	// PollInterval is the sleep between completion checks in the
	// timeout monitor. Defaults to 100 microseconds.
	PollInterval time.Duration
	// Color is inherited by the child for its result lines.
	Color bool
}

// Executor spawns and supervises one test child at a time on behalf of
// the orchestrator.
type Executor struct {
	logger         zerolog.Logger
	sess           *session.Session
	stdout         io.Writer
	stderr         io.Writer
	defaultTimeout time.Duration
	pollInterval   time.Duration
	color          bool
}

// New creates an Executor reporting into sess.
func New(sess *session.Session, cfg Config) *Executor {
	e := &Executor{
		logger:         cfg.Logger,
		sess:           sess,
		stdout:         cfg.Stdout,
		stderr:         cfg.Stderr,
		defaultTimeout: cfg.DefaultTimeout,
		pollInterval:   cfg.PollInterval,
		color:          cfg.Color,
	}
	if e.stdout == nil {
		e.stdout = os.Stdout
	}
	if e.stderr == nil {
		e.stderr = os.Stderr
	}
	if e.defaultTimeout <= 0 {
		e.defaultTimeout = model.DefaultTimeout
	}
	if e.pollInterval <= 0 {
		e.pollInterval = defaultPollInterval
	}
	return e
}

// RunTest executes one test inside a freshly spawned child process and
// blocks until the child has terminated, was killed on deadline, or
// crashed. Spawn failures and unexpected wait errors are fatal to the
// whole suite run and surface through the session's fatal path.
func (e *Executor) RunTest(index int, test *model.Test) {
	exe, err := os.Executable()
	if err != nil {
		e.sess.Report(model.Error, "resolve executable: %v", err)
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		e.sess.Report(model.Error, "create event pipe: %v", err)
	}

	color := "0"
	if e.color {
		color = "1"
	}

	cmd := exec.Command(exe)
	cmd.Stdout = e.stdout
	cmd.Stderr = e.stderr
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("%s=%d", childEnv, index),
		fmt.Sprintf("%s=%s", colorEnv, color),
	)
	cmd.ExtraFiles = []*os.File{pw}

	e.logger.Debug().
		Int("test", index).
		Str("name", test.Name).
		Str("command", shellescape.QuoteCommand(cmd.Args)).
		Msg("Spawning test child")

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		e.sess.Report(model.Error, "spawn test child: %v", err)
	}
	// The child holds its own duplicate of the write end; closing ours
	// lets the reader observe EOF when the child terminates.
	pw.Close()

	readerDone := make(chan error, 1)
	go func() {
		readerDone <- ipc.Forward(pr, e.sess)
	}()

	waitDone := make(chan error, 1)
	go func() {
		waitDone <- cmd.Wait()
	}()

	timeout := test.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}

	killed, werr := e.supervise(cmd, waitDone, timeout)

	// Drain the event pipe before looking at the outcome so the
	// counters are complete once this test is accounted for.
	if err := <-readerDone; err != nil {
		e.logger.Warn().Err(err).Msg("Event pipe closed uncleanly")
	}
	pr.Close()

	e.resolveExit(killed, werr)
}

// resolveExit translates the child's wait result. A plain non-zero exit
// carries no information the counters do not already hold; termination
// by a signal other than the monitor's own kill means the test crashed
// and aborts the whole run.
func (e *Executor) resolveExit(killed bool, werr error) {
	if werr == nil {
		e.logger.Debug().Msg("Test child exited cleanly")
		return
	}

	var exitErr *exec.ExitError
	if errors.As(werr, &exitErr) {
		if killed {
			return
		}
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			e.sess.Report(model.Error, "Test child killed with signal %d", ws.Signal())
		}
		e.logger.Debug().
			Int("exit_code", exitErr.ExitCode()).
			Msg("Test child exited non-zero")
		return
	}

	e.sess.Report(model.Error, "wait on test child: %v", werr)
}
