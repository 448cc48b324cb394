package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/steveyegge/fixbot/internal/events"
)

func TestExtractEventMetadata(t *testing.T) {
	tests := []struct {
		name      string
		eventType events.EventType
		data      map[string]interface{}
		expected  string
	}{
		{
			name:      "cycle completed from stored json",
			eventType: events.EventTypeCycleCompleted,
			data: map[string]interface{}{
				"found":       float64(4),
				"pending":     float64(2),
				"remediated":  float64(1),
				"failed":      float64(1),
				"duration_ms": float64(2500),
			},
			expected: "4 found | 2 pending | 1 fixed | 1 failed | 2.5s",
		},
		{
			name:      "cycle completed with missing fields",
			eventType: events.EventTypeCycleCompleted,
			data:      map[string]interface{}{},
			expected:  "0 found | 0 pending | 0 fixed | 0 failed | 0ms",
		},
		{
			name:      "pull request",
			eventType: events.EventTypePullRequestOpened,
			data: map[string]interface{}{
				"number": 42,
				"branch": "fix/ABC-1",
				"base":   "main",
			},
			expected: "#42 | fix/ABC-1 -> main",
		},
		{
			name:      "commit hash shortened",
			eventType: events.EventTypeGitCommitPushed,
			data: map[string]interface{}{
				"branch":      "fix/ABC-1",
				"commit_hash": "0123456789abcdef",
			},
			expected: "fix/ABC-1 | 01234567",
		},
		{
			name:      "failure carries step and error",
			eventType: events.EventTypeTicketFailed,
			data: map[string]interface{}{
				"step":  "push",
				"error": "remote rejected",
			},
			expected: "push | remote rejected",
		},
		{
			name:      "notification without count",
			eventType: events.EventTypeNotificationSent,
			data:      map[string]interface{}{"error": "smtp down"},
			expected:  "smtp down",
		},
		{
			name:      "unknown type",
			eventType: events.EventTypeTicketCommented,
			data:      map[string]interface{}{},
			expected:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := &events.Event{
				Type:      tt.eventType,
				Data:      tt.data,
				Timestamp: time.Now(),
			}
			assert.Equal(t, tt.expected, extractEventMetadata(event))
		})
	}
}

func TestShouldSkipEvent(t *testing.T) {
	assert.True(t, shouldSkipEvent(&events.Event{Type: events.EventTypeCycleStarted, Severity: events.SeverityInfo}))
	assert.False(t, shouldSkipEvent(&events.Event{Type: events.EventTypeCycleFailed, Severity: events.SeverityError}))
	assert.False(t, shouldSkipEvent(&events.Event{Type: events.EventTypeTicketRemediated, Severity: events.SeverityInfo}))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "abcdefg...", truncateString("abcdefghijklmnop", 10))
	assert.Equal(t, "...", truncateString("abcdef", 2))
}

func TestJoinFields(t *testing.T) {
	assert.Equal(t, "a | c", joinFields([]string{"a", "", "c"}))
	assert.Equal(t, "", joinFields(nil))
}
