package ledger

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)}
}

func TestMarkThenIsProcessed(t *testing.T) {
	clock := newClock()
	l, err := Open(filepath.Join(t.TempDir(), "processed.log"), WithClock(clock.Now), WithLocation(time.UTC))
	require.NoError(t, err)

	assert.False(t, l.IsProcessed("ABC-1"))
	require.NoError(t, l.MarkProcessed("ABC-1"))
	assert.True(t, l.IsProcessed("ABC-1"))
	assert.False(t, l.IsProcessed("ABC-2"))
	assert.Equal(t, []string{"ABC-1"}, l.ProcessedToday())
}

func TestDayRollover(t *testing.T) {
	clock := newClock()
	l, err := Open(filepath.Join(t.TempDir(), "processed.log"), WithClock(clock.Now), WithLocation(time.UTC))
	require.NoError(t, err)

	require.NoError(t, l.MarkProcessed("ABC-1"))
	clock.Advance(14 * time.Hour) // 23:00 same day
	assert.True(t, l.IsProcessed("ABC-1"))

	clock.Advance(2 * time.Hour) // next day
	assert.False(t, l.IsProcessed("ABC-1"))
	assert.Empty(t, l.ProcessedToday())

	require.NoError(t, l.MarkProcessed("ABC-1"))
	assert.True(t, l.IsProcessed("ABC-1"))
}

func TestSurvivesReopen(t *testing.T) {
	clock := newClock()
	path := filepath.Join(t.TempDir(), "state", "processed.log")

	l, err := Open(path, WithClock(clock.Now), WithLocation(time.UTC))
	require.NoError(t, err)
	require.NoError(t, l.MarkProcessed("ABC-1"))
	require.NoError(t, l.MarkProcessed("ABC-1")) // duplicate is not re-appended
	require.NoError(t, l.MarkProcessed("XYZ-7"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-16\tABC-1\n2026-10-16\tXYZ-7\n", string(data))

	reopened, err := Open(path, WithClock(clock.Now), WithLocation(time.UTC))
	require.NoError(t, err)
	assert.True(t, reopened.IsProcessed("ABC-1"))
	assert.True(t, reopened.IsProcessed("XYZ-7"))

	require.NoError(t, reopened.Load(), "Load should be idempotent")
	assert.Equal(t, []string{"ABC-1", "XYZ-7"}, reopened.ProcessedToday())
}

func TestLoadSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed.log")
	content := "2026-10-16\tABC-1\ngarbage\nnot-a-day\tABC-2\n\n2026-10-15\tABC-3\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	clock := newClock()
	l, err := Open(path, WithClock(clock.Now), WithLocation(time.UTC))
	require.NoError(t, err)

	assert.Equal(t, 2, l.Skipped())
	assert.True(t, l.IsProcessed("ABC-1"))
	assert.False(t, l.IsProcessed("ABC-2"))
	assert.False(t, l.IsProcessed("ABC-3"), "yesterday's entry must not count today")
}

func TestMarkProcessedRejectsBadKeys(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "processed.log"))
	require.NoError(t, err)
	assert.Error(t, l.MarkProcessed(""))
	assert.Error(t, l.MarkProcessed("A\tB"))
}

func TestMarkProcessedFailureLeavesTicketUnprocessed(t *testing.T) {
	dir := t.TempDir()
	// A directory where the file should be makes the append fail.
	path := filepath.Join(dir, "processed.log")
	require.NoError(t, os.Mkdir(path, 0755))

	l := &Ledger{path: path, now: time.Now, loc: time.UTC, days: map[string]map[string]struct{}{}, loaded: true}
	assert.Error(t, l.MarkProcessed("ABC-1"))
	assert.False(t, l.IsProcessed("ABC-1"))
}

func TestDayBucketUsesLocation(t *testing.T) {
	ts := time.Date(2026, 10, 16, 23, 30, 0, 0, time.UTC)
	tokyo := time.FixedZone("JST", 9*3600)
	assert.Equal(t, "2026-10-16", DayBucket(ts, time.UTC))
	assert.Equal(t, "2026-10-17", DayBucket(ts, tokyo))
}
