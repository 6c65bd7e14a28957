package logstore

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/NielsdaWheelz/pushci/internal/errors"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "store"))
	s.Now = fixedNow
	return s
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

func TestAppendLog_FirstEntry(t *testing.T) {
	s := newTestStore(t)

	e, err := s.AppendLog("a1b2c3", "BUILD SUCCESSFUL in 3s", "https://github.com/acme/widget")
	if err != nil {
		t.Fatalf("AppendLog() error = %v", err)
	}
	if e.Sequence != 1 {
		t.Errorf("Sequence = %d, want 1", e.Sequence)
	}
	if e.HTMLPath != "buildLogs/1.html" {
		t.Errorf("HTMLPath = %q, want buildLogs/1.html", e.HTMLPath)
	}
	if e.SHA != "a1b2c3" {
		t.Errorf("SHA = %q", e.SHA)
	}

	page := readFile(t, filepath.Join(s.Root, "buildLogs", "1.html"))
	if !strings.Contains(page, `href="https://github.com/acme/widget/commit/a1b2c3"`) {
		t.Errorf("page missing commit link:\n%s", page)
	}
	if !strings.Contains(page, "BUILD SUCCESSFUL in 3s") {
		t.Error("page missing log text")
	}

	index := readFile(t, s.IndexPath())
	if !strings.Contains(index, `href="buildLogs/1.html"`) {
		t.Errorf("index missing link to first log:\n%s", index)
	}
}

func TestAppendLog_EscapesLog(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.AppendLog("abc", "<script>alert(1)</script> & more", "https://github.com/o/r"); err != nil {
		t.Fatal(err)
	}
	page := readFile(t, filepath.Join(s.Root, "buildLogs", "1.html"))
	if strings.Contains(page, "<script>") {
		t.Error("log text was not escaped")
	}
	if !strings.Contains(page, "&lt;script&gt;") {
		t.Errorf("expected escaped script tag in page:\n%s", page)
	}
}

func TestAppendLog_TrailingSlashLinkBase(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.AppendLog("abc", "x", "https://github.com/o/r/"); err != nil {
		t.Fatal(err)
	}
	page := readFile(t, filepath.Join(s.Root, "buildLogs", "1.html"))
	if !strings.Contains(page, "https://github.com/o/r/commit/abc") {
		t.Errorf("unexpected commit link:\n%s", page)
	}
}

func TestAppendLog_SequentialAndIndexNewestFirst(t *testing.T) {
	s := newTestStore(t)

	for i, sha := range []string{"aaa", "bbb", "ccc"} {
		e, err := s.AppendLog(sha, "log "+sha, "https://github.com/o/r")
		if err != nil {
			t.Fatal(err)
		}
		if e.Sequence != i+1 {
			t.Errorf("append %d: Sequence = %d, want %d", i, e.Sequence, i+1)
		}
	}

	entries, err := s.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	for i, want := range []int{3, 2, 1} {
		if entries[i].Sequence != want {
			t.Errorf("entries[%d].Sequence = %d, want %d", i, entries[i].Sequence, want)
		}
	}
	if entries[0].SHA != "ccc" {
		t.Errorf("entries[0].SHA = %q, want ccc", entries[0].SHA)
	}

	index := readFile(t, s.IndexPath())
	i3 := strings.Index(index, "buildLogs/3.html")
	i2 := strings.Index(index, "buildLogs/2.html")
	i1 := strings.Index(index, "buildLogs/1.html")
	if i3 < 0 || i2 < 0 || i1 < 0 {
		t.Fatalf("index missing entries:\n%s", index)
	}
	if !(i3 < i2 && i2 < i1) {
		t.Errorf("index not newest first:\n%s", index)
	}
}

func TestAppendLog_NeverReusesNumbers(t *testing.T) {
	s := newTestStore(t)

	for _, sha := range []string{"aaa", "bbb"} {
		if _, err := s.AppendLog(sha, "x", "https://github.com/o/r"); err != nil {
			t.Fatal(err)
		}
	}
	// an operator deletes the newest page
	if err := os.Remove(filepath.Join(s.Root, "buildLogs", "2.html")); err != nil {
		t.Fatal(err)
	}

	e, err := s.AppendLog("ccc", "x", "https://github.com/o/r")
	if err != nil {
		t.Fatal(err)
	}
	if e.Sequence != 3 {
		t.Errorf("Sequence = %d, want 3 (2 was already issued)", e.Sequence)
	}
}

func TestAppendLog_ConcurrentMonotonic(t *testing.T) {
	s := newTestStore(t)

	const n = 20
	seqs := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := s.AppendLog("sha", "log", "https://github.com/o/r")
			if err != nil {
				t.Errorf("AppendLog() error = %v", err)
				return
			}
			seqs[i] = e.Sequence
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool)
	for _, seq := range seqs {
		if seq < 1 || seq > n {
			t.Errorf("sequence %d out of range", seq)
		}
		if seen[seq] {
			t.Errorf("sequence %d issued twice", seq)
		}
		seen[seq] = true
	}

	entries, err := s.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != n {
		t.Errorf("len(entries) = %d, want %d", len(entries), n)
	}
	index := readFile(t, s.IndexPath())
	if got := strings.Count(index, "<li>"); got != n {
		t.Errorf("index lists %d entries, want %d", got, n)
	}
}

func TestAppendLog_SeparateStoresShareDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "store")
	a, b := New(root), New(root)

	var wg sync.WaitGroup
	for _, s := range []*Store{a, b, a, b} {
		wg.Add(1)
		go func(s *Store) {
			defer wg.Done()
			if _, err := s.AppendLog("sha", "log", "https://github.com/o/r"); err != nil {
				t.Errorf("AppendLog() error = %v", err)
			}
		}(s)
	}
	wg.Wait()

	entries, err := a.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 4 || entries[0].Sequence != 4 {
		t.Errorf("expected sequences 1..4, got %+v", entries)
	}
}

func TestAppendLog_IOError(t *testing.T) {
	dir := t.TempDir()
	// a regular file where the store directory should be
	root := filepath.Join(dir, "store")
	if err := os.WriteFile(root, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := New(root).AppendLog("sha", "log", "https://github.com/o/r")
	if errors.GetCode(err) != errors.ELogStoreIO {
		t.Errorf("code = %s, want %s", errors.GetCode(err), errors.ELogStoreIO)
	}
}

func TestRebuildIndex_EmptyStore(t *testing.T) {
	s := newTestStore(t)

	if err := s.RebuildIndex(); err != nil {
		t.Fatalf("RebuildIndex() error = %v", err)
	}
	index := readFile(t, s.IndexPath())
	if strings.Contains(index, "<li>") {
		t.Errorf("empty store should have empty index:\n%s", index)
	}
}

func TestRebuildIndex_IgnoresForeignFiles(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.AppendLog("abc", "x", "https://github.com/o/r"); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"notes.txt", "0.html", "x.html"} {
		if err := os.WriteFile(filepath.Join(s.Root, "buildLogs", name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.RebuildIndex(); err != nil {
		t.Fatal(err)
	}
	entries, err := s.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("len(entries) = %d, want 1", len(entries))
	}
}

func TestPagePath(t *testing.T) {
	s := New("/srv/logs")
	tests := []struct {
		name string
		want string
	}{
		{"1.html", "/srv/logs/buildLogs/1.html"},
		{"42.html", "/srv/logs/buildLogs/42.html"},
		{"../index.html", ""},
		{".seq", ""},
		{"1.txt", ""},
	}
	for _, tt := range tests {
		if got := s.PagePath(tt.name); got != tt.want {
			t.Errorf("PagePath(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
