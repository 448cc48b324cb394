package tracker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/natefinch/atomic"
	"github.com/steveyegge/fixbot/internal/types"
)

// NarrativeKind classifies a change narrative.
type NarrativeKind string

const (
	NarrativeChanged NarrativeKind = "changed"
	NarrativeAdded   NarrativeKind = "added"
	NarrativeRemoved NarrativeKind = "removed"
)

// Narrative is a human-readable description of one ticket's change between
// two snapshots. Changed and added narratives carry the current record in
// full, not a field diff.
type Narrative struct {
	Kind NarrativeKind
	Key  string
	Text string
}

// Diff compares two snapshots. Changed and added narratives follow the
// current snapshot's order; removed narratives follow the previous
// snapshot's order and always come after all others.
func Diff(prev, curr *types.Snapshot) []Narrative {
	var out []Narrative
	for _, key := range curr.Keys() {
		now := curr.Get(key)
		before := prev.Get(key)
		switch {
		case before == nil:
			out = append(out, Narrative{Kind: NarrativeAdded, Key: key, Text: describe(now)})
		case !before.Equal(now):
			out = append(out, Narrative{Kind: NarrativeChanged, Key: key, Text: describe(now)})
		}
	}
	for _, key := range prev.Keys() {
		if curr.Get(key) == nil {
			out = append(out, Narrative{Kind: NarrativeRemoved, Key: key, Text: describeRemoved(prev.Get(key))})
		}
	}
	return out
}

func describe(t *types.Ticket) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Key: %s\nSummary: %s\nStatus: %s\nDescription: %s\n", t.Key, t.Summary, t.Status, t.Description)
	if t.Confluence != "" {
		fmt.Fprintf(&sb, "Confluence Content: %s\n", t.Confluence)
	}
	if len(t.Comments) > 0 {
		fmt.Fprintf(&sb, "Comments: %s\n", t.CommentText())
	}
	return sb.String()
}

func describeRemoved(t *types.Ticket) string {
	return fmt.Sprintf("REMOVED - Key: %s\nSummary: %s\nStatus: %s\nDescription: %s\n", t.Key, t.Summary, t.Status, t.Description)
}

// ChangeLog appends narratives to a text file.
type ChangeLog struct {
	mu   sync.Mutex
	path string
}

// NewChangeLog creates a change log writing to path.
func NewChangeLog(path string) *ChangeLog {
	return &ChangeLog{path: path}
}

// Path returns the log file path.
func (c *ChangeLog) Path() string { return c.path }

// Append writes narratives separated by blank lines. Nothing is written
// for an empty slice.
func (c *ChangeLog) Append(narratives []Narrative) error {
	if len(narratives) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create change log directory: %w", err)
	}
	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open change log: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for _, n := range narratives {
		sb.WriteString(n.Text)
		sb.WriteString("\n")
	}
	if _, err := f.WriteString(sb.String()); err != nil {
		return fmt.Errorf("failed to write change log: %w", err)
	}
	return nil
}

// SnapshotFile persists the canonical lines of the last observed snapshot
// so that change narratives can be computed across runs.
type SnapshotFile struct {
	path string
}

// NewSnapshotFile creates a snapshot file at path.
func NewSnapshotFile(path string) *SnapshotFile {
	return &SnapshotFile{path: path}
}

// Load returns the stored snapshot. A missing file is an empty snapshot.
func (s *SnapshotFile) Load() (*types.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return types.NewSnapshot(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		lines = nil
	}
	return BuildSnapshot(lines), nil
}

// Save atomically replaces the stored snapshot with lines.
func (s *SnapshotFile) Save(lines []string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	content := strings.Join(lines, "\n")
	if content != "" {
		content += "\n"
	}
	if err := atomic.WriteFile(s.path, strings.NewReader(content)); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// RecordChanges diffs raw against the stored snapshot, appends the
// narratives to log and stores raw's lines as the new snapshot.
func RecordChanges(raw []byte, snap *SnapshotFile, log *ChangeLog) ([]Narrative, error) {
	prev, err := snap.Load()
	if err != nil {
		return nil, err
	}
	narratives := Diff(prev, SnapshotFromResponse(raw))
	if err := log.Append(narratives); err != nil {
		return nil, err
	}
	if err := snap.Save(ExtractStories(raw)); err != nil {
		return narratives, err
	}
	return narratives, nil
}
