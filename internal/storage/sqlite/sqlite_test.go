package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/fixbot/internal/events"
	"github.com/steveyegge/fixbot/internal/types"
)

func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func addEvent(t *testing.T, store *SQLiteStorage, id, ticket string, sev events.EventSeverity, at time.Time) {
	t.Helper()
	e := events.NewEvent(events.EventTypeSuggestionGenerated, ticket, "inst-1", sev, "msg "+id, map[string]interface{}{"step": "suggest"})
	e.ID = id
	e.Timestamp = at
	require.NoError(t, store.StoreEvent(context.Background(), e))
}

func TestNewCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "fixbot.db")
	store, err := New(path)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	assert.FileExists(t, path)

	// reopening an existing database keeps the schema
	store, err = New(path)
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestEventRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e, err := events.NewAttemptEvent(events.EventTypeGitCommitPushed, "ABC-1", "inst-1", "att-1", events.SeverityInfo, "pushed", events.AttemptData{
		Step:       "commit",
		Branch:     "fix/ABC-1-20261016",
		CommitHash: "abc123",
	})
	require.NoError(t, err)
	require.NoError(t, store.StoreEvent(ctx, e))

	got, err := store.GetEventsByTicket(ctx, "ABC-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, e.ID, got[0].ID)
	assert.Equal(t, "att-1", got[0].AttemptID)
	assert.Equal(t, "inst-1", got[0].InstanceID)
	assert.WithinDuration(t, e.Timestamp, got[0].Timestamp, time.Millisecond)

	data, err := got[0].GetAttemptData()
	require.NoError(t, err)
	assert.Equal(t, "abc123", data.CommitHash)
}

func TestGetEventsFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	addEvent(t, store, "e1", "ABC-1", events.SeverityInfo, base)
	addEvent(t, store, "e2", "ABC-1", events.SeverityError, base.Add(time.Minute))
	addEvent(t, store, "e3", "ABC-2", events.SeverityInfo, base.Add(2*time.Minute))

	tests := []struct {
		name   string
		filter events.EventFilter
		want   []string
	}{
		{"all newest first", events.EventFilter{}, []string{"e3", "e2", "e1"}},
		{"by ticket", events.EventFilter{TicketKey: "ABC-1"}, []string{"e2", "e1"}},
		{"by severity", events.EventFilter{Severity: events.SeverityError}, []string{"e2"}},
		{"by type", events.EventFilter{Type: events.EventTypeTicketFailed}, nil},
		{"after", events.EventFilter{AfterTime: base.Add(30 * time.Second)}, []string{"e3", "e2"}},
		{"before", events.EventFilter{BeforeTime: base.Add(30 * time.Second)}, []string{"e1"}},
		{"limit", events.EventFilter{Limit: 1}, []string{"e3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.GetEvents(ctx, tt.filter)
			require.NoError(t, err)
			var ids []string
			for _, e := range got {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	recent, err := store.GetRecentEvents(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestCleanupEventsByAge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	old := time.Now().AddDate(0, 0, -40)

	addEvent(t, store, "old-info", "ABC-1", events.SeverityInfo, old)
	addEvent(t, store, "old-error", "ABC-1", events.SeverityError, old)
	addEvent(t, store, "new-info", "ABC-1", events.SeverityInfo, time.Now())

	deleted, err := store.CleanupEventsByAge(ctx, 30, 90, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	deleted, err = store.CleanupEventsByAge(ctx, 30, 30, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	counts, err := store.GetEventCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.TotalEvents)

	_, err = store.CleanupEventsByAge(ctx, -1, 30, 10)
	assert.Error(t, err)
	_, err = store.CleanupEventsByAge(ctx, 30, 30, 0)
	assert.Error(t, err)
}

func TestCleanupEventsByTicketLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		addEvent(t, store, fmt.Sprintf("a%d", i), "ABC-1", events.SeverityInfo, base.Add(time.Duration(i)*time.Second))
	}
	addEvent(t, store, "a-err", "ABC-1", events.SeverityCritical, base.Add(-time.Minute))
	addEvent(t, store, "b0", "ABC-2", events.SeverityInfo, base)

	deleted, err := store.CleanupEventsByTicketLimit(ctx, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	left, err := store.GetEventsByTicket(ctx, "ABC-1")
	require.NoError(t, err)
	var ids []string
	for _, e := range left {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"a-err", "a3", "a4"}, ids)

	deleted, err = store.CleanupEventsByTicketLimit(ctx, 0, 2)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestCleanupEventsByGlobalLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 6; i++ {
		addEvent(t, store, fmt.Sprintf("e%d", i), "", events.SeverityInfo, base.Add(time.Duration(i)*time.Second))
	}

	deleted, err := store.CleanupEventsByGlobalLimit(ctx, 4, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	deleted, err = store.CleanupEventsByGlobalLimit(ctx, 4, 1)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	counts, err := store.GetEventCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, counts.TotalEvents)
	assert.Equal(t, 4, counts.EventsBySeverity["info"])
	assert.Equal(t, 4, counts.EventsByType[string(events.EventTypeSuggestionGenerated)])

	require.NoError(t, store.VacuumDatabase(ctx))
}

func TestInstances(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	inst := &types.Instance{
		InstanceID:    "inst-1",
		Hostname:      "host",
		PID:           42,
		Status:        types.InstanceStatusRunning,
		StartedAt:     now,
		LastHeartbeat: now.Add(-10 * time.Minute),
		Version:       "dev",
	}
	require.NoError(t, store.RegisterInstance(ctx, inst))

	active, err := store.GetActiveInstances(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 42, active[0].PID)
	assert.Equal(t, "{}", active[0].Metadata)

	stale, err := store.CleanupStaleInstances(ctx, 60)
	require.NoError(t, err)
	assert.Equal(t, 1, stale)

	active, err = store.GetActiveInstances(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	// re-registering revives the row
	inst.LastHeartbeat = time.Now()
	require.NoError(t, store.RegisterInstance(ctx, inst))
	require.NoError(t, store.UpdateHeartbeat(ctx, "inst-1"))
	stale, err = store.CleanupStaleInstances(ctx, 60)
	require.NoError(t, err)
	assert.Zero(t, stale)

	require.NoError(t, store.MarkInstanceStopped(ctx, "inst-1"))
	active, err = store.GetActiveInstances(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	assert.Error(t, store.UpdateHeartbeat(ctx, "missing"))
	assert.Error(t, store.RegisterInstance(ctx, &types.Instance{InstanceID: "x"}))
}
