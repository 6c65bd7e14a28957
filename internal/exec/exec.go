// Package exec runs external commands for pushci.
//
// Every subprocess (git, the build tool) goes through CommandRunner so that
// the pipeline can be driven by fakes in tests and by RealRunner in
// production. RealRunner starts each command in its own process group and
// enforces a timeout by signalling the whole group.
package exec

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	osexec "os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultGracePeriod is the time between SIGINT and SIGKILL when a command
// is terminated because of a timeout or cancellation.
const DefaultGracePeriod = 3 * time.Second

// RunOpts configures a single command invocation.
type RunOpts struct {
	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env is the full environment. Nil inherits the parent environment.
	Env []string

	// Timeout bounds the command. Zero means no timeout beyond ctx.
	Timeout time.Duration

	// GracePeriod overrides DefaultGracePeriod when positive.
	GracePeriod time.Duration

	// Combined captures stdout and stderr interleaved into Stdout.
	Combined bool
}

// CmdResult holds the outcome of a command that was started.
type CmdResult struct {
	Stdout   string
	Stderr   string
	ExitCode int // -1 when terminated by a signal
	Signal   string
	TimedOut bool

	// Cancelled is true when the parent context ended before the command.
	Cancelled bool

	Duration time.Duration
}

// CommandRunner executes external commands.
//
// Run returns an error only when the command could not be started.
// Non-zero exits, timeouts and cancellations are reported in CmdResult.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string, opts RunOpts) (CmdResult, error)
	LookPath(file string) (string, error)
}

// StartError is returned by RealRunner when a command cannot be started.
type StartError struct {
	Name string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Name, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// RealRunner runs commands on the host.
type RealRunner struct{}

// NewRealRunner returns a CommandRunner backed by os/exec.
func NewRealRunner() *RealRunner {
	return &RealRunner{}
}

// LookPath implements CommandRunner.
func (r *RealRunner) LookPath(file string) (string, error) {
	return osexec.LookPath(file)
}

// Run implements CommandRunner.
func (r *RealRunner) Run(ctx context.Context, name string, args []string, opts RunOpts) (CmdResult, error) {
	var result CmdResult

	runCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	grace := opts.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	var stdout, stderr bytes.Buffer
	cmd := osexec.Command(name, args...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	cmd.Stdout = &stdout
	if opts.Combined {
		cmd.Stderr = &stdout
	} else {
		cmd.Stderr = &stderr
	}
	// Grandchildren that keep the pipes open must not block Wait forever.
	cmd.WaitDelay = grace

	devnull, err := os.Open(os.DevNull)
	if err != nil {
		return result, &StartError{Name: name, Err: err}
	}
	defer func() { _ = devnull.Close() }()
	cmd.Stdin = devnull

	// Own process group so the timeout reaches every descendant.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return result, &StartError{Name: name, Err: err}
	}
	pgid := cmd.Process.Pid

	waitDone := make(chan error, 1)
	go func() {
		waitDone <- cmd.Wait()
	}()

	var runErr error
	select {
	case runErr = <-waitDone:
	case <-runCtx.Done():
		if ctx.Err() != nil {
			result.Cancelled = true
		} else {
			result.TimedOut = true
		}
		killProcessGroup(pgid, grace, waitDone, &runErr)
	}

	result.Duration = time.Since(start)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	result.ExitCode, result.Signal = exitStatus(runErr)
	if result.TimedOut || result.Cancelled {
		result.ExitCode = -1
		if result.Signal == "" {
			result.Signal = unix.SIGKILL.String()
		}
	}
	return result, nil
}

// killProcessGroup sends SIGINT to the group, waits up to grace for the
// command to exit, then sends SIGKILL and waits for Wait to return.
func killProcessGroup(pgid int, grace time.Duration, waitDone <-chan error, runErr *error) {
	_ = unix.Kill(-pgid, unix.SIGINT)

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case *runErr = <-waitDone:
		// Reap stragglers that ignored SIGINT but did not hold the pipes.
		_ = unix.Kill(-pgid, unix.SIGKILL)
		return
	case <-timer.C:
	}

	_ = unix.Kill(-pgid, unix.SIGKILL)
	*runErr = <-waitDone
}

// exitStatus extracts an exit code and, if signalled, the signal name.
func exitStatus(err error) (int, string) {
	if err == nil {
		return 0, ""
	}
	var exitErr *osexec.ExitError
	if stderrors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return -1, status.Signal().String()
		}
		return exitErr.ExitCode(), ""
	}
	return -1, ""
}
