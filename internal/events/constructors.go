package events

import (
	"time"

	"github.com/google/uuid"
)

// NewEvent creates an event with free-form data.
func NewEvent(eventType EventType, ticketKey, instanceID string, severity EventSeverity, message string, data map[string]interface{}) *Event {
	if data == nil {
		data = make(map[string]interface{})
	}
	return &Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now(),
		TicketKey:  ticketKey,
		InstanceID: instanceID,
		Severity:   severity,
		Message:    message,
		Data:       data,
	}
}

// NewAttemptEvent creates an event for one step of a remediation attempt.
func NewAttemptEvent(eventType EventType, ticketKey, instanceID, attemptID string, severity EventSeverity, message string, data AttemptData) (*Event, error) {
	event := NewEvent(eventType, ticketKey, instanceID, severity, message, nil)
	event.AttemptID = attemptID
	if err := event.SetAttemptData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewCycleCompletedEvent creates a cycle_completed event.
func NewCycleCompletedEvent(instanceID string, severity EventSeverity, message string, data CycleData) (*Event, error) {
	event := NewEvent(EventTypeCycleCompleted, "", instanceID, severity, message, nil)
	if err := event.SetCycleData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewPullRequestOpenedEvent creates a pull_request_opened event.
func NewPullRequestOpenedEvent(ticketKey, instanceID, attemptID, message string, data PullRequestData) (*Event, error) {
	event := NewEvent(EventTypePullRequestOpened, ticketKey, instanceID, SeverityInfo, message, nil)
	event.AttemptID = attemptID
	if err := event.SetPullRequestData(data); err != nil {
		return nil, err
	}
	return event, nil
}
