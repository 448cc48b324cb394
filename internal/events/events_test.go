package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	e := NewEvent(EventTypeTicketSkipped, "ABC-1", "inst-1", SeverityInfo, "already processed today", nil)
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, "ABC-1", e.TicketKey)
	assert.NotNil(t, e.Data)

	other := NewEvent(EventTypeTicketSkipped, "ABC-1", "inst-1", SeverityInfo, "", nil)
	assert.NotEqual(t, e.ID, other.ID)
}

func TestAttemptEventData(t *testing.T) {
	e, err := NewAttemptEvent(EventTypeGitCommitPushed, "ABC-1", "inst-1", "att-1", SeverityInfo, "pushed", AttemptData{
		Step:       "commit",
		Branch:     "fix/ABC-1-20261016",
		CommitHash: "abc123",
	})
	require.NoError(t, err)
	assert.Equal(t, "att-1", e.AttemptID)
	assert.Equal(t, "fix/ABC-1-20261016", e.Data["branch"])
	_, hasError := e.Data["error"]
	assert.False(t, hasError)

	got, err := e.GetAttemptData()
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.CommitHash)
}

func TestCycleAndPullRequestData(t *testing.T) {
	c, err := NewCycleCompletedEvent("inst-1", SeverityInfo, "cycle done", CycleData{Found: 3, Remediated: 1, DurationMs: 42})
	require.NoError(t, err)
	assert.Equal(t, EventTypeCycleCompleted, c.Type)
	cd, err := c.GetCycleData()
	require.NoError(t, err)
	assert.Equal(t, 3, cd.Found)
	assert.Equal(t, int64(42), cd.DurationMs)

	p, err := NewPullRequestOpenedEvent("ABC-1", "inst-1", "att-1", "opened", PullRequestData{Number: 7, URL: "https://x/pull/7"})
	require.NoError(t, err)
	pd, err := p.GetPullRequestData()
	require.NoError(t, err)
	assert.Equal(t, 7, pd.Number)
}

func TestValidSeverity(t *testing.T) {
	for _, s := range []EventSeverity{SeverityInfo, SeverityWarning, SeverityError, SeverityCritical} {
		assert.True(t, ValidSeverity(s), s)
	}
	assert.False(t, ValidSeverity("debug"))
}
