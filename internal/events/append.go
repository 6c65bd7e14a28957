// Package events provides the push event journal for pushci.
// Events are stored in an append-only JSONL file.
package events

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/NielsdaWheelz/pushci/internal/errors"
)

// SchemaVersion is written into every event.
const SchemaVersion = "1.0"

// Event names.
const (
	PushStarted    = "push_started"
	CommitFinished = "commit_finished"
	PushFinished   = "push_finished"
	CleanupFailed  = "cleanup_failed"
)

// Event represents a single event in events.jsonl.
// This is the public contract for the journal format.
type Event struct {
	SchemaVersion string         `json:"schema_version"`
	Timestamp     string         `json:"timestamp"` // RFC3339
	PushID        string         `json:"push_id"`
	Repo          string         `json:"repo,omitempty"` // owner/name
	SHA           string         `json:"sha,omitempty"`
	Event         string         `json:"event"`
	Data          map[string]any `json:"data,omitempty"`
}

// AppendEvent appends a single event to the file at path.
// The file is created lazily if it doesn't exist.
// Each event is written as a single JSON line followed by newline.
//
// Best-effort: errors are returned but callers should log them and
// continue with the main operation.
func AppendEvent(path string, e Event) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(errors.EEventAppendFailed, "failed to create journal directory", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(errors.EEventAppendFailed, "failed to open journal", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrap(errors.EEventAppendFailed, "failed to close journal", cerr)
		}
	}()

	data, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(errors.EEventAppendFailed, "failed to encode event", err)
	}

	data = append(data, '\n')
	if _, err = f.Write(data); err != nil {
		return errors.Wrap(errors.EEventAppendFailed, "failed to write event", err)
	}
	return nil
}

// Journal appends events for one data directory. Safe for concurrent use.
// A nil *Journal discards events.
type Journal struct {
	Path string
	Now  func() time.Time

	mu sync.Mutex
}

// NewJournal creates a Journal writing to {dataDir}/events.jsonl.
func NewJournal(dataDir string) *Journal {
	return &Journal{Path: filepath.Join(dataDir, "events.jsonl"), Now: time.Now}
}

// Append stamps e with the schema version and timestamp and writes it.
func (j *Journal) Append(e Event) error {
	if j == nil {
		return nil
	}
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	e.SchemaVersion = SchemaVersion
	e.Timestamp = now().UTC().Format(time.RFC3339)

	j.mu.Lock()
	defer j.mu.Unlock()
	return AppendEvent(j.Path, e)
}

// PushStartedData returns the data map for a push_started event.
func PushStartedData(cloneURL string, commits int) map[string]any {
	return map[string]any{
		"clone_url": cloneURL,
		"commits":   commits,
	}
}

// CommitFinishedData returns the data map for a commit_finished event.
// seq is 0 when no log page was written.
func CommitFinishedData(status string, buildOK, testOK bool, seq int, durationMS int64, errorCode string) map[string]any {
	data := map[string]any{
		"status":      status,
		"build_ok":    buildOK,
		"test_ok":     testOK,
		"duration_ms": durationMS,
	}
	if seq > 0 {
		data["log_seq"] = seq
	}
	if errorCode != "" {
		data["error_code"] = errorCode
	}
	return data
}

// PushFinishedData returns the data map for a push_finished event.
func PushFinishedData(counts map[string]int, durationMS int64) map[string]any {
	return map[string]any{
		"statuses":    counts,
		"duration_ms": durationMS,
	}
}

// CleanupFailedData returns the data map for a cleanup_failed event.
// Reason strings are bounded to 512 bytes max.
func CleanupFailedData(phase, workspace, reason string) map[string]any {
	const maxReasonLen = 512
	if len(reason) > maxReasonLen {
		reason = reason[:maxReasonLen]
	}
	return map[string]any{
		"phase":     phase,
		"workspace": workspace,
		"reason":    reason,
	}
}
