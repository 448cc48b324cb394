package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/fixbot/internal/events"
)

func TestNewStorage(t *testing.T) {
	ctx := context.Background()

	t.Run("sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), DatabaseFile)
		store, err := NewStorage(ctx, &Config{Backend: BackendSQLite, Path: path})
		require.NoError(t, err)
		defer func() { _ = store.Close() }()

		e := events.NewEvent(events.EventTypeCycleStarted, "", "inst-1", events.SeverityInfo, "cycle started", nil)
		require.NoError(t, store.StoreEvent(ctx, e))
		got, err := store.GetRecentEvents(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := NewStorage(ctx, &Config{Backend: "mongo"})
		assert.ErrorContains(t, err, "unknown storage backend")
	})
}

func TestDiscoverStateDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FIXBOT_STATE_DIR", dir)
	got, err := DiscoverStateDir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	t.Setenv("FIXBOT_STATE_DIR", "")
	got, err = DiscoverStateDir()
	require.NoError(t, err)
	assert.Equal(t, DefaultStateDir, filepath.Base(got))
	assert.True(t, filepath.IsAbs(got))
}

func TestDatabasePath(t *testing.T) {
	t.Setenv("FIXBOT_DB_PATH", "")
	assert.Equal(t, filepath.Join("state", DatabaseFile), DatabasePath("state"))

	t.Setenv("FIXBOT_DB_PATH", ":memory:")
	assert.Equal(t, ":memory:", DatabasePath("state"))
}

func TestEnsureStateDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureStateDir(dir))
	assert.DirExists(t, dir)
	require.NoError(t, EnsureStateDir(dir))

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	assert.Error(t, EnsureStateDir(file))
}

func TestExclusiveLock(t *testing.T) {
	dir := t.TempDir()

	lockPath, err := AcquireExclusiveLock(dir, "dev")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, LockFile), lockPath)

	lock, err := ReadLock(lockPath)
	require.NoError(t, err)
	assert.Equal(t, "fixbot", lock.Holder)
	assert.Equal(t, os.Getpid(), lock.PID)

	// the same process may re-acquire
	_, err = AcquireExclusiveLock(dir, "dev")
	require.NoError(t, err)

	require.NoError(t, ReleaseExclusiveLock(lockPath))
	assert.NoFileExists(t, lockPath)
	require.NoError(t, ReleaseExclusiveLock(lockPath))
	require.NoError(t, ReleaseExclusiveLock(""))
}

func TestExclusiveLockHeldByOtherProcess(t *testing.T) {
	dir := t.TempDir()
	hostname, err := os.Hostname()
	require.NoError(t, err)

	// PID 1 always exists
	writeLock(t, dir, ExclusiveLock{Holder: "fixbot", PID: 1, Hostname: hostname, StartedAt: time.Now()})
	_, err = AcquireExclusiveLock(dir, "dev")
	assert.ErrorIs(t, err, ErrLocked)

	// a lock from another host cannot be verified and is respected
	writeLock(t, dir, ExclusiveLock{Holder: "fixbot", PID: 999999, Hostname: "elsewhere.invalid", StartedAt: time.Now()})
	_, err = AcquireExclusiveLock(dir, "dev")
	assert.ErrorIs(t, err, ErrLocked)
}

func TestExclusiveLockStale(t *testing.T) {
	dir := t.TempDir()
	hostname, err := os.Hostname()
	require.NoError(t, err)

	writeLock(t, dir, ExclusiveLock{Holder: "fixbot", PID: 0, Hostname: hostname})
	_, err = AcquireExclusiveLock(dir, "dev")
	require.NoError(t, err)

	// corrupt lock files are replaced
	require.NoError(t, os.WriteFile(filepath.Join(dir, LockFile), []byte("{"), 0644))
	_, err = AcquireExclusiveLock(dir, "dev")
	require.NoError(t, err)
}

func writeLock(t *testing.T, dir string, lock ExclusiveLock) {
	t.Helper()
	data, err := json.Marshal(lock)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, LockFile), data, 0644))
}
