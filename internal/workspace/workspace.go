// Package workspace manages the disposable directories a commit is built in.
//
// Each (commit, phase) pair gets its own directory under
// {root}/{runID}/{sha}-{phase}. Directories are never shared and never
// reused; Destroy removes them completely or reports what was left behind.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/NielsdaWheelz/pushci/internal/errors"
	"github.com/NielsdaWheelz/pushci/internal/exec"
	"github.com/NielsdaWheelz/pushci/internal/fs"
	"github.com/NielsdaWheelz/pushci/internal/process"
)

// State is the lifecycle position of a workspace.
type State string

const (
	StateCreated   State = "created"
	StatePopulated State = "populated"
	StateDestroyed State = "destroyed"
)

// maxStderr caps git stderr carried in error details.
const maxStderr = 32 * 1024

// Manager allocates workspaces under a single root directory.
type Manager struct {
	Root string
	CR   exec.CommandRunner
}

// NewManager creates a Manager rooted at root.
func NewManager(root string, cr exec.CommandRunner) *Manager {
	return &Manager{Root: root, CR: cr}
}

// Workspace is one fresh directory for one phase of one commit.
type Workspace struct {
	SHA   string
	Phase process.Phase
	Path  string
	State State

	root string
	cr   exec.CommandRunner
}

// Path returns the directory for (runID, sha, phase).
func Path(root, runID, sha string, phase process.Phase) string {
	return filepath.Join(root, runID, sha+"-"+string(phase))
}

// Create allocates a fresh, empty directory for the commit and phase.
// It fails if the directory already exists.
func (m *Manager) Create(runID, sha string, phase process.Phase) (*Workspace, error) {
	if runID == "" || sha == "" || strings.ContainsAny(sha, `/\`) || sha == "." || sha == ".." {
		return nil, errors.NewWithDetails(errors.EWorkspaceCreateFailed, "invalid workspace identity", map[string]string{
			"sha":   sha,
			"phase": string(phase),
		})
	}

	path := Path(m.Root, runID, sha, phase)
	details := map[string]string{
		"sha":       sha,
		"phase":     string(phase),
		"workspace": path,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.WrapWithDetails(errors.EWorkspaceCreateFailed, "failed to create run directory", err, details)
	}
	// Mkdir, not MkdirAll: an existing path means the workspace is not fresh.
	if err := os.Mkdir(path, 0o755); err != nil {
		msg := "failed to create workspace"
		if os.IsExist(err) {
			msg = "workspace already exists"
		}
		return nil, errors.WrapWithDetails(errors.EWorkspaceCreateFailed, msg, err, details)
	}

	return &Workspace{
		SHA:   sha,
		Phase: phase,
		Path:  path,
		State: StateCreated,
		root:  m.Root,
		cr:    m.CR,
	}, nil
}

// ReleaseRun removes the per-run directory once all of its workspaces are
// gone. A non-empty run directory is left in place.
func (m *Manager) ReleaseRun(runID string) error {
	if runID == "" {
		return nil
	}
	dir := filepath.Join(m.Root, runID)
	err := os.Remove(dir)
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	return errors.WrapWithDetails(errors.ECleanupFailed, "failed to remove run directory", err, map[string]string{
		"workspace": dir,
	})
}

// Populate clones repoURL into the workspace and resets it to sha.
func (w *Workspace) Populate(ctx context.Context, repoURL, sha string) error {
	if w.State != StateCreated {
		return errors.NewWithDetails(errors.ECloneFailed, fmt.Sprintf("workspace is %s, not created", w.State), map[string]string{
			"workspace": w.Path,
		})
	}

	// git clone refuses a non-empty target but accepts the empty dir Create made.
	cloneArgs := []string{"clone", "--quiet", repoURL, w.Path}
	if err := w.git(ctx, errors.ECloneFailed, "git clone failed", cloneArgs, map[string]string{"repo_url": repoURL}); err != nil {
		return err
	}

	resetArgs := []string{"-C", w.Path, "reset", "--hard", "--quiet", sha}
	if err := w.git(ctx, errors.ECheckoutFailed, "git reset failed", resetArgs, map[string]string{"sha": sha}); err != nil {
		return err
	}

	w.State = StatePopulated
	return nil
}

func (w *Workspace) git(ctx context.Context, code errors.Code, msg string, args []string, extra map[string]string) error {
	details := map[string]string{
		"phase":     string(w.Phase),
		"workspace": w.Path,
		"command":   "git " + strings.Join(args, " "),
	}
	for k, v := range extra {
		details[k] = v
	}

	result, err := w.cr.Run(ctx, "git", args, exec.RunOpts{
		Env: gitEnv(os.Environ()),
	})
	if err != nil {
		return errors.WrapWithDetails(code, msg, err, details)
	}
	if result.ExitCode != 0 {
		details["exit_code"] = fmt.Sprintf("%d", result.ExitCode)
		stderr := strings.TrimSpace(result.Stderr)
		if len(stderr) > maxStderr {
			stderr = stderr[:maxStderr]
			details["stderr_truncated"] = "true"
		}
		if stderr != "" {
			details["stderr"] = stderr
			msg = msg + ": " + firstLine(stderr)
		}
		return errors.NewWithDetails(code, msg, details)
	}
	return nil
}

// Destroy removes the workspace directory and everything under it.
// Calling Destroy on a destroyed workspace is a no-op.
func (w *Workspace) Destroy() error {
	if w.State == StateDestroyed {
		return nil
	}
	if err := fs.SafeRemoveAll(w.Path, w.root); err != nil {
		return errors.WrapWithDetails(errors.ECleanupFailed, "failed to destroy workspace", err, map[string]string{
			"sha":       w.SHA,
			"phase":     string(w.Phase),
			"workspace": w.Path,
		})
	}
	w.State = StateDestroyed
	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// repoOverrideVars redirect git away from the repository named on the
// command line. They are set when pushci is started from a git hook.
var repoOverrideVars = []string{
	"GIT_DIR",
	"GIT_WORK_TREE",
	"GIT_COMMON_DIR",
	"GIT_INDEX_FILE",
	"GIT_OBJECT_DIRECTORY",
	"GIT_ALTERNATE_OBJECT_DIRECTORIES",
}

// gitEnv returns base without repo override variables and with credential
// prompts disabled.
func gitEnv(base []string) []string {
	env := make([]string, 0, len(base)+1)
outer:
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		for _, v := range repoOverrideVars {
			if name == v {
				continue outer
			}
		}
		env = append(env, kv)
	}
	return append(env, "GIT_TERMINAL_PROMPT=0")
}
