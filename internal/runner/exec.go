package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// terminateGrace is how long a subprocess gets between SIGTERM and SIGKILL
// when its context is canceled.
const terminateGrace = 5 * time.Second

type execRequest struct {
	argv    []string
	dir     string
	env     []string // appended to the inherited environment
	stdin   string   // empty means no stdin is attached
	timeout time.Duration
}

type execOutcome struct {
	stdout   string
	stderr   string
	exitCode int
	timedOut bool
	notFound bool
	runErr   error // start failures other than a missing binary
}

// runCommand supervises one backend subprocess: it enforces the timeout,
// terminates gracefully on cancellation (SIGTERM, grace period, SIGKILL),
// and captures output.
//
// The error return is non-nil only when the parent ctx was canceled; every
// other failure mode is reported in the outcome so callers can turn it
// into a Result.
func runCommand(ctx context.Context, req execRequest) (execOutcome, error) {
	runCtx := ctx
	if req.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, req.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, req.argv[0], req.argv[1:]...)
	cmd.Dir = req.dir
	if len(req.env) > 0 {
		cmd.Env = append(os.Environ(), req.env...)
	}
	if req.stdin != "" {
		cmd.Stdin = strings.NewReader(req.stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = terminateGrace

	err := cmd.Run()
	outcome := execOutcome{stdout: stdout.String(), stderr: stderr.String()}

	// Operator interrupt: the process is already down (Cancel + WaitDelay);
	// propagate after cleanup so the caller can persist state and exit.
	if ctx.Err() != nil {
		return outcome, ctx.Err()
	}

	if runCtx.Err() == context.DeadlineExceeded {
		outcome.timedOut = true
		outcome.exitCode = ExitTimeout
		return outcome, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			outcome.exitCode = exitErr.ExitCode()
		case errors.Is(err, exec.ErrNotFound):
			outcome.notFound = true
			outcome.exitCode = ExitNotFound
		default:
			outcome.exitCode = 1
			outcome.runErr = err
		}
	}
	return outcome, nil
}

// lookPathOK reports whether a binary resolves on PATH.
func lookPathOK(binary string) bool {
	_, err := exec.LookPath(binary)
	return err == nil
}
