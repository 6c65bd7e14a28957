// Package process runs the build tool for one phase of one commit and
// decides whether the phase succeeded.
package process

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/NielsdaWheelz/pushci/internal/errors"
	"github.com/NielsdaWheelz/pushci/internal/exec"
)

// Phase is the build tool keyword for one step of processing a commit.
type Phase string

const (
	PhaseBuild Phase = "build"
	PhaseTest  Phase = "test"
)

// DefaultTimeout applies when Run is called with a zero timeout.
const DefaultTimeout = 10 * time.Minute

// Result is the outcome of one build tool invocation.
type Result struct {
	// Succeeded is derived from the success marker only, never the exit code.
	Succeeded bool

	// Output is the combined stdout and stderr, captured in full, with
	// terminal escape sequences removed.
	Output string

	ExitCode int
	Duration time.Duration
}

// Runner invokes the build tool bound to a workspace directory.
type Runner struct {
	CR exec.CommandRunner

	// Tool is the build tool argv; the phase keyword is appended.
	Tool []string

	// GracePeriod is the time between SIGINT and SIGKILL on timeout.
	GracePeriod time.Duration

	// Env is the base environment. Nil inherits os.Environ().
	Env []string
}

// NewRunner creates a Runner for the given build tool argv.
func NewRunner(cr exec.CommandRunner, tool []string) *Runner {
	return &Runner{CR: cr, Tool: tool}
}

// Run executes `<tool...> <phase>` in dir and scans the output for the
// success marker.
//
// A missing marker is a failed Result, not an error. Errors are returned
// only when the tool could not be started (E_LAUNCH_FAILED) or had to be
// killed (E_TIMED_OUT); in the timeout case the partial output is still
// returned in Result.
func (r *Runner) Run(ctx context.Context, phase Phase, dir string, timeout time.Duration) (Result, error) {
	if len(r.Tool) == 0 {
		return Result{}, errors.New(errors.ELaunchFailed, "no build tool configured")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	name := r.Tool[0]
	args := append(append([]string{}, r.Tool[1:]...), string(phase))
	command := strings.Join(append([]string{name}, args...), " ")

	res, err := r.CR.Run(ctx, name, args, exec.RunOpts{
		Dir:         dir,
		Env:         r.environ(phase, dir),
		Timeout:     timeout,
		GracePeriod: r.GracePeriod,
		Combined:    true,
	})
	if err != nil {
		return Result{}, errors.WrapWithDetails(
			errors.ELaunchFailed,
			fmt.Sprintf("failed to launch %s", name),
			err,
			map[string]string{
				"phase":     string(phase),
				"workspace": dir,
				"command":   command,
			},
		)
	}

	output := StripEscapes(res.Stdout)
	result := Result{
		Succeeded: DetectSuccess(output),
		Output:    output,
		ExitCode:  res.ExitCode,
		Duration:  res.Duration,
	}

	// A cancelled parent context kills the tool the same way the deadline
	// does, and leaves the same unusable partial output, so both report
	// E_TIMED_OUT; the message tells them apart.
	if res.TimedOut || res.Cancelled {
		msg := fmt.Sprintf("%s phase exceeded timeout of %v", phase, timeout)
		if res.Cancelled {
			msg = fmt.Sprintf("%s phase cancelled", phase)
		}
		// A killed tool never counts as a success, whatever it printed.
		result.Succeeded = false
		return result, errors.NewWithDetails(errors.ETimedOut, msg, map[string]string{
			"phase":       string(phase),
			"workspace":   dir,
			"command":     command,
			"timeout":     timeout.String(),
			"signal":      res.Signal,
			"duration_ms": fmt.Sprintf("%d", res.Duration.Milliseconds()),
		})
	}

	return result, nil
}

func (r *Runner) environ(phase Phase, dir string) []string {
	env := r.Env
	if env == nil {
		env = os.Environ()
	}
	env = append(append([]string{}, env...),
		"CI=1",
		"PUSHCI_PHASE="+string(phase),
		"PUSHCI_WORKSPACE="+dir,
	)
	return env
}
