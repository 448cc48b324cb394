package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/steveyegge/fixbot/internal/config"
	"github.com/steveyegge/fixbot/internal/events"
	"github.com/steveyegge/fixbot/internal/storage"
)

// cleanupLoop marks instances whose heartbeat went stale as stopped.
func (o *Orchestrator) cleanupLoop(ctx context.Context) {
	defer o.bg.Done()

	ticker := time.NewTicker(o.cfg.Instances.StaleThreshold)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
			cleaned, err := o.store.CleanupStaleInstances(ctx, o.cfg.Instances.StaleThresholdSeconds())
			if err != nil {
				if ctx.Err() == nil {
					fmt.Fprintf(os.Stderr, "cleanup: error cleaning up stale instances: %v\n", err)
				}
				continue
			}
			if cleaned > 0 {
				slog.Info("marked stale instances stopped", "count", cleaned)
			}
		}
	}
}

// eventCleanupLoop enforces the event retention policy once at startup and
// then on every cleanup interval.
func (o *Orchestrator) eventCleanupLoop(ctx context.Context) {
	defer o.bg.Done()

	cfg := o.cfg.Retention
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "event cleanup: invalid configuration: %v (cleanup disabled)\n", err)
		return
	}
	if !cfg.CleanupEnabled {
		slog.Info("event cleanup disabled")
		return
	}

	if _, err := o.runEventCleanup(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "event cleanup: initial cleanup failed: %v\n", err)
	}

	ticker := time.NewTicker(cfg.CleanupInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
			if _, err := o.runEventCleanup(ctx); err != nil && ctx.Err() == nil {
				fmt.Fprintf(os.Stderr, "event cleanup: error during cleanup: %v\n", err)
			}
		}
	}
}

func (o *Orchestrator) runEventCleanup(ctx context.Context) (*events.EventCleanupCompletedData, error) {
	return RunEventCleanup(ctx, o.store, o.cfg.Retention, o.instanceID)
}

// RunEventCleanup runs one retention pass: age, per-ticket cap, then the
// global cap once the store reaches 95% of it. The outcome is recorded as an
// event_cleanup_completed event even when a step fails.
func RunEventCleanup(ctx context.Context, store storage.Storage, cfg config.EventRetentionConfig, instanceID string) (*events.EventCleanupCompletedData, error) {
	start := time.Now()
	data := &events.EventCleanupCompletedData{}

	fail := func(err error) (*events.EventCleanupCompletedData, error) {
		data.EventsDeleted = data.TimeBasedDeleted + data.PerTicketDeleted + data.GlobalDeleted
		data.ProcessingTimeMs = time.Since(start).Milliseconds()
		data.Error = err.Error()
		logCleanupEvent(ctx, store, instanceID, data)
		return data, err
	}

	deleted, err := store.CleanupEventsByAge(ctx, cfg.RetentionDays, cfg.RetentionCriticalDays, cfg.CleanupBatchSize)
	if err != nil {
		return fail(fmt.Errorf("time-based cleanup failed: %w", err))
	}
	data.TimeBasedDeleted = deleted

	deleted, err = store.CleanupEventsByTicketLimit(ctx, cfg.PerTicketLimitEvents, cfg.CleanupBatchSize)
	if err != nil {
		return fail(fmt.Errorf("per-ticket limit cleanup failed: %w", err))
	}
	data.PerTicketDeleted = deleted

	deleted, err = store.CleanupEventsByGlobalLimit(ctx, cfg.GlobalTrigger(), cfg.CleanupBatchSize)
	if err != nil {
		return fail(fmt.Errorf("global limit cleanup failed: %w", err))
	}
	data.GlobalDeleted = deleted
	data.EventsDeleted = data.TimeBasedDeleted + data.PerTicketDeleted + data.GlobalDeleted

	if cfg.CleanupVacuum && data.EventsDeleted > 0 {
		if err := store.VacuumDatabase(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "event cleanup: warning: VACUUM failed: %v\n", err)
		}
	}

	if counts, err := store.GetEventCounts(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "event cleanup: warning: failed to get event counts: %v\n", err)
	} else if counts != nil {
		data.EventsRemaining = counts.TotalEvents
	}

	data.ProcessingTimeMs = time.Since(start).Milliseconds()
	data.Success = true
	logCleanupEvent(ctx, store, instanceID, data)

	if data.EventsDeleted > 0 {
		slog.Info("event cleanup",
			"deleted", data.EventsDeleted,
			"time_based", data.TimeBasedDeleted,
			"per_ticket", data.PerTicketDeleted,
			"global", data.GlobalDeleted,
			"remaining", data.EventsRemaining,
			"ms", data.ProcessingTimeMs)
	}
	return data, nil
}

func logCleanupEvent(ctx context.Context, store storage.Storage, instanceID string, data *events.EventCleanupCompletedData) {
	if ctx.Err() != nil {
		return
	}
	message := fmt.Sprintf("Event cleanup completed: deleted %d events in %dms", data.EventsDeleted, data.ProcessingTimeMs)
	severity := events.SeverityInfo
	if !data.Success {
		message = fmt.Sprintf("Event cleanup failed: %s", data.Error)
		severity = events.SeverityError
	}
	event := events.NewEvent(events.EventTypeEventCleanupCompleted, "", instanceID, severity, message, nil)
	if err := event.SetEventCleanupData(*data); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to encode cleanup event: %v\n", err)
		return
	}
	if err := store.StoreEvent(ctx, event); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to store cleanup event: %v\n", err)
	}
}
