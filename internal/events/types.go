// Package events defines the structured activity records emitted while
// remediating tickets.
package events

import (
	"context"
	"time"
)

// EventType represents what happened during a cycle or attempt.
type EventType string

const (
	// Cycle-level events
	// EventTypeCycleStarted indicates a poll cycle began
	EventTypeCycleStarted EventType = "cycle_started"
	// EventTypeCycleCompleted indicates a poll cycle finished
	EventTypeCycleCompleted EventType = "cycle_completed"
	// EventTypeCycleFailed indicates the tracker could not be searched
	EventTypeCycleFailed EventType = "cycle_failed"
	// EventTypeProcessingTriggered indicates an on-demand run was requested
	EventTypeProcessingTriggered EventType = "processing_triggered"

	// Attempt-level events
	// EventTypeTicketSkipped indicates a ticket was not attempted
	EventTypeTicketSkipped EventType = "ticket_skipped"
	// EventTypeSuggestionGenerated indicates a fix suggestion was produced
	EventTypeSuggestionGenerated EventType = "suggestion_generated"
	// EventTypePatchGenerated indicates code was generated for a suggestion
	EventTypePatchGenerated EventType = "patch_generated"
	// EventTypeClarificationRequested indicates a human was asked for input
	EventTypeClarificationRequested EventType = "clarification_requested"
	// EventTypeTargetResolved indicates the file to patch was located
	EventTypeTargetResolved EventType = "target_resolved"
	// EventTypeGitBranchCreated indicates the fix branch was prepared
	EventTypeGitBranchCreated EventType = "git_branch_created"
	// EventTypeGitCommitPushed indicates the fix was committed and pushed
	EventTypeGitCommitPushed EventType = "git_commit_pushed"
	// EventTypePullRequestOpened indicates a pull request was opened
	EventTypePullRequestOpened EventType = "pull_request_opened"
	// EventTypeTicketCommented indicates the tracker ticket was updated
	EventTypeTicketCommented EventType = "ticket_commented"
	// EventTypeTicketRemediated indicates the ledger recorded the ticket
	EventTypeTicketRemediated EventType = "ticket_remediated"
	// EventTypeTicketAbandoned indicates a fix was inconclusive and dropped
	EventTypeTicketAbandoned EventType = "ticket_abandoned"
	// EventTypeTicketFailed indicates an attempt failed and will be retried
	EventTypeTicketFailed EventType = "ticket_failed"
	// EventTypeCredentialMissing indicates an attempt needed a missing token
	EventTypeCredentialMissing EventType = "credential_missing"

	// EventTypeNotificationSent indicates the batch notification went out
	EventTypeNotificationSent EventType = "notification_sent"
	// EventTypePromptOverrideSet indicates an operator set the one-shot prompt
	EventTypePromptOverrideSet EventType = "prompt_override_set"
	// EventTypeEventCleanupCompleted indicates event cleanup finished
	EventTypeEventCleanupCompleted EventType = "event_cleanup_completed"
)

// EventSeverity represents the severity level of an event.
type EventSeverity string

const (
	SeverityInfo     EventSeverity = "info"
	SeverityWarning  EventSeverity = "warning"
	SeverityError    EventSeverity = "error"
	SeverityCritical EventSeverity = "critical"
)

// Event is one activity record. InstanceID is the orchestrator process
// that emitted it; AttemptID groups the events of one remediation attempt.
type Event struct {
	ID         string                 `json:"id"`
	Type       EventType              `json:"type"`
	Timestamp  time.Time              `json:"timestamp"`
	TicketKey  string                 `json:"ticket_key,omitempty"`
	InstanceID string                 `json:"instance_id"`
	AttemptID  string                 `json:"attempt_id,omitempty"`
	Severity   EventSeverity          `json:"severity"`
	Message    string                 `json:"message"`
	Data       map[string]interface{} `json:"data"`
}

// CycleData is attached to cycle_completed events.
type CycleData struct {
	Found      int   `json:"found"`
	Pending    int   `json:"pending"`
	Remediated int   `json:"remediated"`
	Skipped    int   `json:"skipped"`
	Abandoned  int   `json:"abandoned"`
	Failed     int   `json:"failed"`
	DurationMs int64 `json:"duration_ms"`
}

// AttemptData is attached to per-step attempt events.
type AttemptData struct {
	Step       string `json:"step"`
	Source     string `json:"source,omitempty"`
	TargetFile string `json:"target_file,omitempty"`
	Branch     string `json:"branch,omitempty"`
	CommitHash string `json:"commit_hash,omitempty"`
	Checklist  string `json:"checklist,omitempty"`
	Error      string `json:"error,omitempty"`
}

// PullRequestData is attached to pull_request_opened events.
type PullRequestData struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
	Branch string `json:"branch"`
	Base   string `json:"base"`
}

// EventCleanupCompletedData contains structured data for event cleanup.
type EventCleanupCompletedData struct {
	EventsDeleted    int    `json:"events_deleted"`
	TimeBasedDeleted int    `json:"time_based_deleted"`
	PerTicketDeleted int    `json:"per_ticket_deleted"`
	GlobalDeleted    int    `json:"global_deleted"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
	EventsRemaining  int    `json:"events_remaining"`
	Success          bool   `json:"success"`
	Error            string `json:"error,omitempty"`
}

// EventCounts holds event count statistics for the activity command.
type EventCounts struct {
	TotalEvents      int
	EventsByTicket   map[string]int
	EventsBySeverity map[string]int
	EventsByType     map[string]int
}

// EventStore stores and retrieves events.
type EventStore interface {
	StoreEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, filter EventFilter) ([]*Event, error)
}

// EventFilter defines criteria for filtering events.
type EventFilter struct {
	// TicketKey filters events by ticket
	TicketKey string
	// Type filters events by event type
	Type EventType
	// Severity filters events by severity level
	Severity EventSeverity
	// AfterTime filters events that occurred after this time
	AfterTime time.Time
	// BeforeTime filters events that occurred before this time
	BeforeTime time.Time
	// Limit limits the number of events returned
	Limit int
}

// ValidSeverity reports whether s is a known severity.
func ValidSeverity(s EventSeverity) bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}
