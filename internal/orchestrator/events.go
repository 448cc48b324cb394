package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/steveyegge/fixbot/internal/events"
	"github.com/steveyegge/fixbot/internal/types"
)

// logEvent stores a free-form event. Store failures never fail the caller.
func (o *Orchestrator) logEvent(ctx context.Context, eventType events.EventType, severity events.EventSeverity, ticketKey, attemptID, message string, data map[string]interface{}) {
	event := events.NewEvent(eventType, ticketKey, o.instanceID, severity, message, data)
	event.AttemptID = attemptID
	o.storeEvent(ctx, event)
}

// attemptEvent stores an event for one step of attempt a.
func (o *Orchestrator) attemptEvent(ctx context.Context, eventType events.EventType, severity events.EventSeverity, a *types.Attempt, message string, data events.AttemptData) {
	event, err := events.NewAttemptEvent(eventType, a.TicketKey, o.instanceID, a.ID, severity, message, data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to build %s event: %v\n", eventType, err)
		return
	}
	o.storeEvent(ctx, event)
}

func (o *Orchestrator) storeEvent(ctx context.Context, event *events.Event) {
	// Skip if the context is canceled (e.g., during shutdown)
	if ctx.Err() != nil {
		return
	}
	event.Timestamp = o.now()
	if err := o.store.StoreEvent(ctx, event); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to store event: %v\n", err)
	}
}

func (o *Orchestrator) statePath(name string) string {
	return filepath.Join(o.cfg.StateDir, name)
}
