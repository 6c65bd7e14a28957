package exec

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRealRunner_CapturesOutputAndExitCode(t *testing.T) {
	r := NewRealRunner()

	tests := []struct {
		name       string
		script     string
		opts       RunOpts
		wantStdout string
		wantStderr string
		wantExit   int
	}{
		{
			name:       "success",
			script:     "echo hello",
			wantStdout: "hello\n",
			wantExit:   0,
		},
		{
			name:       "separate streams",
			script:     "echo out; echo err 1>&2; exit 3",
			wantStdout: "out\n",
			wantStderr: "err\n",
			wantExit:   3,
		},
		{
			name:       "combined streams",
			script:     "echo out; echo err 1>&2",
			opts:       RunOpts{Combined: true},
			wantStdout: "out\nerr\n",
			wantExit:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Run(context.Background(), "sh", []string{"-c", tt.script}, tt.opts)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if res.Stdout != tt.wantStdout {
				t.Errorf("Stdout = %q, want %q", res.Stdout, tt.wantStdout)
			}
			if res.Stderr != tt.wantStderr {
				t.Errorf("Stderr = %q, want %q", res.Stderr, tt.wantStderr)
			}
			if res.ExitCode != tt.wantExit {
				t.Errorf("ExitCode = %d, want %d", res.ExitCode, tt.wantExit)
			}
			if res.TimedOut || res.Cancelled {
				t.Errorf("unexpected TimedOut=%v Cancelled=%v", res.TimedOut, res.Cancelled)
			}
		})
	}
}

func TestRealRunner_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := NewRealRunner().Run(context.Background(), "sh", []string{"-c", "ls"}, RunOpts{Dir: dir})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(res.Stdout, "marker.txt") {
		t.Errorf("expected command to run in %s, got %q", dir, res.Stdout)
	}
}

func TestRealRunner_TimeoutKillsProcessGroup(t *testing.T) {
	dir := t.TempDir()
	flag := filepath.Join(dir, "survived")

	// The child sleeps in a subshell so the whole group has to be signalled.
	script := "echo started; (sleep 5; touch " + flag + ") & sleep 5"
	opts := RunOpts{Timeout: 200 * time.Millisecond, GracePeriod: 100 * time.Millisecond, Combined: true}

	start := time.Now()
	res, err := NewRealRunner().Run(context.Background(), "sh", []string{"-c", script}, opts)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("timeout not enforced, took %v", elapsed)
	}
	if !res.TimedOut {
		t.Error("expected TimedOut = true")
	}
	if res.Cancelled {
		t.Error("expected Cancelled = false")
	}
	if res.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1", res.ExitCode)
	}
	if !strings.Contains(res.Stdout, "started") {
		t.Errorf("output before timeout should be kept, got %q", res.Stdout)
	}
}

func TestRealRunner_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	res, err := NewRealRunner().Run(ctx, "sh", []string{"-c", "sleep 5"}, RunOpts{GracePeriod: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Cancelled {
		t.Error("expected Cancelled = true")
	}
	if res.TimedOut {
		t.Error("expected TimedOut = false")
	}
}

func TestRealRunner_StartFailure(t *testing.T) {
	_, err := NewRealRunner().Run(context.Background(), "definitely-not-a-real-binary-xyz", nil, RunOpts{})
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	var startErr *StartError
	if !stderrors.As(err, &startErr) {
		t.Fatalf("expected *StartError, got %T: %v", err, err)
	}
	if startErr.Name != "definitely-not-a-real-binary-xyz" {
		t.Errorf("Name = %q", startErr.Name)
	}
}
