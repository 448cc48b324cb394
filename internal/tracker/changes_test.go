package tracker

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/steveyegge/fixbot/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snap(tickets ...*types.Ticket) *types.Snapshot {
	return types.NewSnapshot(tickets)
}

func TestDiffKinds(t *testing.T) {
	prev := snap(
		&types.Ticket{Key: "A-1", Summary: "same"},
		&types.Ticket{Key: "A-2", Summary: "old", Status: "Open"},
		&types.Ticket{Key: "A-3", Summary: "gone", Status: "Done", Description: "bye"},
	)
	curr := snap(
		&types.Ticket{Key: "A-1", Summary: "same"},
		&types.Ticket{Key: "A-2", Summary: "old", Status: "Closed"},
		&types.Ticket{Key: "A-4", Summary: "new", Confluence: "page", Comments: []string{"c1", "c2"}},
	)

	got := Diff(prev, curr)
	require.Len(t, got, 3)

	assert.Equal(t, NarrativeChanged, got[0].Kind)
	assert.Equal(t, "A-2", got[0].Key)
	assert.Contains(t, got[0].Text, "Status: Closed")

	assert.Equal(t, NarrativeAdded, got[1].Kind)
	assert.Equal(t, "Key: A-4\nSummary: new\nStatus: \nDescription: \nConfluence Content: page\nComments: c1 | c2\n", got[1].Text)

	assert.Equal(t, NarrativeRemoved, got[2].Kind)
	assert.Equal(t, "REMOVED - Key: A-3\nSummary: gone\nStatus: Done\nDescription: bye\n", got[2].Text)
}

func TestDiffRemovalsAlwaysLast(t *testing.T) {
	prev := snap(&types.Ticket{Key: "A-1"}, &types.Ticket{Key: "Z-9"}, &types.Ticket{Key: "B-1"})
	curr := snap(&types.Ticket{Key: "Y-1"}, &types.Ticket{Key: "C-1", Summary: "x"}, &types.Ticket{Key: "B-1", Summary: "changed"})

	got := Diff(prev, curr)
	seenRemoved := false
	var removedOrder []string
	for _, n := range got {
		if n.Kind == NarrativeRemoved {
			seenRemoved = true
			removedOrder = append(removedOrder, n.Key)
			continue
		}
		assert.False(t, seenRemoved, "%s narrative for %s after a removal", n.Kind, n.Key)
	}
	assert.Equal(t, []string{"A-1", "Z-9"}, removedOrder)
	assert.Equal(t, "Y-1", got[0].Key)
	assert.Equal(t, "C-1", got[1].Key)
	assert.Equal(t, "B-1", got[2].Key)
}

func TestDiffExactlyOnePerAsymmetricKey(t *testing.T) {
	prev := snap(&types.Ticket{Key: "A-1"}, &types.Ticket{Key: "A-2"})
	curr := snap(&types.Ticket{Key: "A-2"}, &types.Ticket{Key: "A-3"})

	counts := map[string]int{}
	for _, n := range Diff(prev, curr) {
		counts[n.Key]++
	}
	assert.Equal(t, map[string]int{"A-1": 1, "A-3": 1}, counts)
}

func TestDiffCommentChangeDetected(t *testing.T) {
	prev := snap(&types.Ticket{Key: "A-1", Comments: []string{"a"}})
	curr := snap(&types.Ticket{Key: "A-1", Comments: []string{"a", "b"}})
	got := Diff(prev, curr)
	require.Len(t, got, 1)
	assert.Equal(t, NarrativeChanged, got[0].Kind)
}

func TestDiffEmptySnapshots(t *testing.T) {
	assert.Empty(t, Diff(snap(), snap()))
	assert.Empty(t, Diff(nil, nil))
}

func TestChangeLogAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "jira_update.txt")
	log := NewChangeLog(path)

	require.NoError(t, log.Append(nil))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "empty append should not create the file")

	require.NoError(t, log.Append([]Narrative{{Text: "one\n"}, {Text: "two\n"}}))
	require.NoError(t, log.Append([]Narrative{{Text: "three\n"}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one\n\ntwo\n\nthree\n\n", string(data))
}

func TestSnapshotFileRoundTrip(t *testing.T) {
	sf := NewSnapshotFile(filepath.Join(t.TempDir(), "snapshot.txt"))

	empty, err := sf.Load()
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())

	lines := ExtractStories([]byte(searchResponse))
	require.NoError(t, sf.Save(lines))

	loaded, err := sf.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC-1", "ABC-2"}, loaded.Keys())
	assert.Empty(t, Diff(loaded, BuildSnapshot(lines)))
	assert.True(t, strings.HasPrefix(loaded.Get("ABC-1").Description, "Date is rejected"))
}

func TestRecordChanges(t *testing.T) {
	dir := t.TempDir()
	sf := NewSnapshotFile(filepath.Join(dir, "snapshot.json"))
	cl := NewChangeLog(filepath.Join(dir, "jira_update.txt"))

	first := []byte(`{"issues":[{"key":"ABC-1","fields":{"summary":"s1","status":{"name":"Open"}}}]}`)
	got, err := RecordChanges(first, sf, cl)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, NarrativeAdded, got[0].Kind)

	// unchanged response: nothing new
	got, err = RecordChanges(first, sf, cl)
	require.NoError(t, err)
	assert.Empty(t, got)

	second := []byte(`{"issues":[{"key":"ABC-2","fields":{"summary":"s2"}}]}`)
	got, err = RecordChanges(second, sf, cl)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, NarrativeAdded, got[0].Kind)
	assert.Equal(t, "ABC-2", got[0].Key)
	assert.Equal(t, NarrativeRemoved, got[1].Kind)
	assert.Equal(t, "ABC-1", got[1].Key)

	data, err := os.ReadFile(cl.Path())
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "Key: ABC-1"))
}
