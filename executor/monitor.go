package executor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/crucible-run/crucible/model"
)

// supervise enforces the per-test deadline. It polls for child
// completion with a short sleep rather than blocking with an alarm, so
// no global signal handlers are installed. On deadline expiry the child
// receives a non-ignorable kill. The returned error is the child's wait
// result, collected by a final blocking receive so no zombie is left
// behind.
func (e *Executor) supervise(cmd *exec.Cmd, waitDone <-chan error, timeout time.Duration) (killed bool, werr error) {
	start := time.Now()
	exited := false

loop:
	for {
		if time.Since(start) >= timeout {
			e.sess.Report(model.Info, "Test timed out. Kill the process.")
			e.logger.Warn().
				Int("pid", cmd.Process.Pid).
				Dur("timeout", timeout).
				Msg("Deadline exceeded, killing test child")
			if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				e.logger.Warn().Err(err).Msg("Failed to kill test child")
			}
			killed = true
			break loop
		}

		select {
		case werr = <-waitDone:
			exited = true
			break loop
		default:
		}

		time.Sleep(e.pollInterval)
	}

	if !exited {
		werr = <-waitDone
	}

	return killed, werr
}

// ReapStray collects any remaining descendant processes once the test
// loop has finished. Finding no children is the expected case; an
// interrupted wait is retried, anything else is reported to the caller.
func ReapStray() error {
	for {
		pid, err := syscall.Wait4(-1, nil, 0, nil)
		if err != nil {
			if errors.Is(err, syscall.ECHILD) {
				return nil
			}
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return fmt.Errorf("wait for stray children: %w", err)
		}
		if pid <= 0 {
			return nil
		}
	}
}
