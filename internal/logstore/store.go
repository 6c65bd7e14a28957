// Package logstore persists build logs as numbered HTML pages and keeps an
// index page listing them newest first.
//
// Layout under Root:
//
//	index.html            regenerated on every append
//	buildLogs/{n}.html    one page per appended log, n = 1, 2, ...
//	buildLogs/.seq        highest sequence number ever allocated
//	.lock                 flock(2) target serializing appends across processes
package logstore

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/NielsdaWheelz/pushci/internal/errors"
	"github.com/NielsdaWheelz/pushci/internal/fs"
)

const (
	// LogsDir is the directory under Root holding the log pages.
	LogsDir   = "buildLogs"
	indexFile = "index.html"
	seqFile   = ".seq"
	lockFile  = ".lock"
)

var pageName = regexp.MustCompile(`^([1-9][0-9]*)\.html$`)

// Entry is one stored log page.
type Entry struct {
	Sequence  int
	SHA       string
	CreatedAt time.Time

	// HTMLPath is the page path relative to Root, e.g. "buildLogs/3.html".
	HTMLPath string
}

// Store is a directory-backed log store. The zero value is not usable;
// create one with New.
type Store struct {
	Root string
	Now  func() time.Time

	mu sync.Mutex
}

// New creates a Store rooted at root. The directory is created on first
// append.
func New(root string) *Store {
	return &Store{Root: root, Now: time.Now}
}

// AppendLog stores logText as the next numbered page for sha and rebuilds
// the index. The page links to commitLinkBase + "/commit/" + sha.
//
// If the page was written but the index rebuild failed, the returned Entry
// is valid (Sequence > 0) and the error is E_LOGSTORE_IO.
func (s *Store) AppendLog(sha, logText, commitLinkBase string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lock()
	if err != nil {
		return Entry{}, err
	}
	defer unlock()

	logsDir := filepath.Join(s.Root, LogsDir)
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return Entry{}, ioError("failed to create log directory", err, logsDir)
	}

	seq, err := s.nextSequence()
	if err != nil {
		return Entry{}, err
	}

	now := s.now()
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, pageData{
		Sequence:  seq,
		SHA:       sha,
		CommitURL: commitURL(commitLinkBase, sha),
		CreatedAt: now.Format(time.RFC3339),
		Log:       logText,
	}); err != nil {
		return Entry{}, ioError("failed to render log page", err, "")
	}

	rel := pagePath(seq)
	path := filepath.Join(s.Root, rel)
	// Claim the number before the page exists so a crash never reissues it.
	if err := s.writeHighWater(seq); err != nil {
		return Entry{}, err
	}
	if err := fs.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return Entry{}, ioError("failed to write log page", err, path)
	}

	entry := Entry{Sequence: seq, SHA: sha, CreatedAt: now, HTMLPath: rel}
	if err := s.rebuildIndex(); err != nil {
		return entry, err
	}
	return entry, nil
}

// RebuildIndex regenerates index.html from the pages currently on disk.
func (s *Store) RebuildIndex() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	return s.rebuildIndex()
}

// Entries lists the stored pages, newest (highest sequence) first.
// A store that has never been written to has no entries.
func (s *Store) Entries() ([]Entry, error) {
	logsDir := filepath.Join(s.Root, LogsDir)
	dirents, err := os.ReadDir(logsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ioError("failed to list log pages", err, logsDir)
	}

	var entries []Entry
	for _, d := range dirents {
		m := pageName.FindStringSubmatch(d.Name())
		if m == nil || d.IsDir() {
			continue
		}
		seq, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		info, err := d.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		rel := pagePath(seq)
		entries = append(entries, Entry{
			Sequence:  seq,
			SHA:       readSHA(filepath.Join(s.Root, rel)),
			CreatedAt: info.ModTime(),
			HTMLPath:  rel,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Sequence > entries[j].Sequence
	})
	return entries, nil
}

// IndexPath returns the absolute path of index.html.
func (s *Store) IndexPath() string {
	return filepath.Join(s.Root, indexFile)
}

// PagePath returns the absolute path of a log page by base name, or "" if
// name is not a log page name.
func (s *Store) PagePath(name string) string {
	if !pageName.MatchString(name) {
		return ""
	}
	return filepath.Join(s.Root, LogsDir, name)
}

func (s *Store) rebuildIndex() error {
	entries, err := s.Entries()
	if err != nil {
		return err
	}

	rows := make([]indexRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, indexRow{
			Href:  e.HTMLPath,
			Label: e.CreatedAt.Format("2006-01-02 15:04:05"),
			SHA:   e.SHA,
		})
	}

	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, indexData{Rows: rows}); err != nil {
		return ioError("failed to render index", err, "")
	}
	if err := os.MkdirAll(s.Root, 0o755); err != nil {
		return ioError("failed to create store directory", err, s.Root)
	}
	path := s.IndexPath()
	if err := fs.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return ioError("failed to write index", err, path)
	}
	return nil
}

// nextSequence returns one more than the largest of: the number of pages,
// the highest page number on disk, and the persisted high-water mark.
func (s *Store) nextSequence() (int, error) {
	entries, err := s.Entries()
	if err != nil {
		return 0, err
	}
	high := len(entries)
	if len(entries) > 0 && entries[0].Sequence > high {
		high = entries[0].Sequence
	}

	hw, err := s.readHighWater()
	if err != nil {
		return 0, err
	}
	if hw > high {
		high = hw
	}
	return high + 1, nil
}

func (s *Store) readHighWater() (int, error) {
	path := filepath.Join(s.Root, LogsDir, seqFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, ioError("failed to read sequence file", err, path)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, ioError("corrupt sequence file", err, path)
	}
	return n, nil
}

func (s *Store) writeHighWater(seq int) error {
	path := filepath.Join(s.Root, LogsDir, seqFile)
	if err := fs.WriteFileAtomic(path, []byte(strconv.Itoa(seq)+"\n"), 0o644); err != nil {
		return ioError("failed to write sequence file", err, path)
	}
	return nil
}

// lock takes an exclusive flock on {Root}/.lock.
func (s *Store) lock() (func(), error) {
	if err := os.MkdirAll(s.Root, 0o755); err != nil {
		return nil, ioError("failed to create store directory", err, s.Root)
	}
	path := filepath.Join(s.Root, lockFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, ioError("failed to open lock file", err, path)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, ioError("failed to lock store", err, path)
	}
	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
	}, nil
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func pagePath(seq int) string {
	return LogsDir + "/" + strconv.Itoa(seq) + ".html"
}

func commitURL(base, sha string) string {
	return strings.TrimRight(base, "/") + "/commit/" + sha
}

var shaMeta = regexp.MustCompile(`<meta name="commit" content="([^"]*)">`)

// readSHA recovers the commit from a page header. Pages written by other
// tools simply have no SHA.
func readSHA(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	head := make([]byte, 1024)
	n, _ := f.Read(head)
	m := shaMeta.FindSubmatch(head[:n])
	if m == nil {
		return ""
	}
	return string(m[1])
}

func ioError(msg string, err error, path string) error {
	if path == "" {
		return errors.Wrap(errors.ELogStoreIO, msg, err)
	}
	return errors.WrapWithDetails(errors.ELogStoreIO, fmt.Sprintf("%s: %s", msg, path), err, map[string]string{
		"path": path,
	})
}
