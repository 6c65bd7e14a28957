package logstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/NielsdaWheelz/pushci/internal/errors"
)

func TestTailLog_ReturnsUnescapedLastLines(t *testing.T) {
	s := newTestStore(t)

	log := "> Task :compileJava\nMain.java:3: error: expected <identifier> & more\nBUILD FAILED in 2s\n"
	entry, err := s.AppendLog("abc123", log, "https://github.com/o/r")
	if err != nil {
		t.Fatal(err)
	}

	lines, err := TailLog(filepath.Join(s.Root, entry.HTMLPath), 2)
	if err != nil {
		t.Fatalf("TailLog: %v", err)
	}
	want := []string{"Main.java:3: error: expected <identifier> & more", "BUILD FAILED in 2s"}
	if strings.Join(lines, "\n") != strings.Join(want, "\n") {
		t.Errorf("lines = %q, want %q", lines, want)
	}

	all, err := TailLog(filepath.Join(s.Root, entry.HTMLPath), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("got %d lines without a limit, want 3", len(all))
	}
}

func TestTailLog_EmptyLog(t *testing.T) {
	s := newTestStore(t)
	entry, err := s.AppendLog("abc123", "", "")
	if err != nil {
		t.Fatal(err)
	}

	lines, err := TailLog(filepath.Join(s.Root, entry.HTMLPath), 10)
	if err != nil || len(lines) != 0 {
		t.Errorf("TailLog(empty) = %q, %v", lines, err)
	}
}

func TestTailLog_ForeignPageAndMissingFile(t *testing.T) {
	dir := t.TempDir()
	foreign := filepath.Join(dir, "7.html")
	if err := os.WriteFile(foreign, []byte("<html><body>hand written</body></html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	lines, err := TailLog(foreign, 10)
	if err != nil || len(lines) != 0 {
		t.Errorf("TailLog(foreign) = %q, %v", lines, err)
	}

	_, err = TailLog(filepath.Join(dir, "missing.html"), 10)
	if errors.GetCode(err) != errors.ELogStoreIO {
		t.Errorf("code = %q, want %q", errors.GetCode(err), errors.ELogStoreIO)
	}
}
