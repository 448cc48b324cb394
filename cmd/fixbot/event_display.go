package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/steveyegge/fixbot/internal/events"
)

// displayActivityEvent prints one event in the two-line activity format
func displayActivityEvent(event *events.Event) {
	if shouldSkipEvent(event) {
		return
	}

	emoji := getEventEmoji(event)
	severityColor := getSeverityColor(event.Severity)
	timestamp := event.Timestamp.Format("15:04:05")

	key := event.TicketKey
	if key == "" {
		key = "-"
	}
	ticket := color.New(color.FgGreen).Sprint(key)
	eventType := color.New(color.FgMagenta).Sprint(event.Type)

	// Line 1: emoji + [timestamp] + ticket + event_type: message
	maxMessageLen := 60 - len(key) - len(string(event.Type))
	message := truncateString(event.Message, maxMessageLen)

	fmt.Printf("%s [%s] %s %s: %s\n",
		emoji,
		timestamp,
		ticket,
		eventType,
		severityColor.Sprint(message),
	)

	// Line 2: metadata
	metadata := extractEventMetadata(event)
	if metadata != "" {
		fmt.Printf("  %s\n", color.New(color.FgHiBlack).Sprint(metadata))
	} else {
		fmt.Println()
	}
}

func getEventEmoji(event *events.Event) string {
	switch event.Type {
	case events.EventTypeCycleStarted, events.EventTypeCycleCompleted:
		return "🔄"
	case events.EventTypeProcessingTriggered:
		return "📌"
	case events.EventTypeSuggestionGenerated:
		return "🧠"
	case events.EventTypePatchGenerated:
		return "📝"
	case events.EventTypeClarificationRequested:
		return "❓"
	case events.EventTypeTargetResolved:
		return "🎯"
	case events.EventTypeGitBranchCreated, events.EventTypeGitCommitPushed:
		return "🌿"
	case events.EventTypePullRequestOpened:
		return "🚀"
	case events.EventTypeTicketCommented:
		return "💬"
	case events.EventTypeTicketRemediated:
		return "✅"
	case events.EventTypeTicketSkipped:
		return "⏭️"
	case events.EventTypeCredentialMissing:
		return "🔑"
	case events.EventTypeNotificationSent:
		return "📣"
	case events.EventTypePromptOverrideSet:
		return "✏️"
	case events.EventTypeEventCleanupCompleted:
		return "🧹"
	}

	switch event.Severity {
	case events.SeverityInfo:
		return "ℹ️"
	case events.SeverityWarning:
		return "⚠️"
	case events.SeverityError:
		return "❌"
	case events.SeverityCritical:
		return "🔥"
	default:
		return "•"
	}
}

func getSeverityColor(severity events.EventSeverity) *color.Color {
	switch severity {
	case events.SeverityInfo:
		return color.New(color.FgCyan)
	case events.SeverityWarning:
		return color.New(color.FgYellow)
	case events.SeverityError:
		return color.New(color.FgRed)
	case events.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgWhite)
	}
}

// extractEventMetadata picks the few data fields worth showing for each
// event type, pipe-separated and truncated to fit a narrow terminal.
func extractEventMetadata(event *events.Event) string {
	var fields []string

	switch event.Type {
	case events.EventTypeCycleCompleted:
		// cycle_completed: found | pending | remediated | failed | duration
		fields = append(fields,
			fmt.Sprintf("%d found", getIntField(event.Data, "found", 0)),
			fmt.Sprintf("%d pending", getIntField(event.Data, "pending", 0)),
			fmt.Sprintf("%d fixed", getIntField(event.Data, "remediated", 0)),
			fmt.Sprintf("%d failed", getIntField(event.Data, "failed", 0)),
			formatDurationMs(getIntField(event.Data, "duration_ms", 0)),
		)

	case events.EventTypeSuggestionGenerated:
		fields = append(fields, getStringField(event.Data, "source", ""))

	case events.EventTypeTargetResolved:
		fields = append(fields, truncateString(getStringField(event.Data, "target_file", ""), 60))

	case events.EventTypeGitBranchCreated:
		fields = append(fields, truncateString(getStringField(event.Data, "branch", ""), 40))

	case events.EventTypeGitCommitPushed:
		hash := getStringField(event.Data, "commit_hash", "")
		if len(hash) > 8 {
			hash = hash[:8]
		}
		fields = append(fields,
			truncateString(getStringField(event.Data, "branch", ""), 40),
			hash,
		)

	case events.EventTypePullRequestOpened:
		// pull_request_opened: #number | branch -> base
		fields = append(fields,
			fmt.Sprintf("#%d", getIntField(event.Data, "number", 0)),
			fmt.Sprintf("%s -> %s",
				truncateString(getStringField(event.Data, "branch", ""), 30),
				getStringField(event.Data, "base", "")),
		)

	case events.EventTypeTicketRemediated, events.EventTypeTicketAbandoned, events.EventTypeTicketFailed:
		fields = append(fields, getStringField(event.Data, "step", ""))
		if cl := getStringField(event.Data, "checklist", ""); cl != "" {
			fields = append(fields, cl)
		}

	case events.EventTypeNotificationSent:
		if n := getIntField(event.Data, "pull_requests", -1); n >= 0 {
			fields = append(fields, fmt.Sprintf("%d PRs", n))
		}

	case events.EventTypeEventCleanupCompleted:
		fields = append(fields,
			fmt.Sprintf("%d deleted", getIntField(event.Data, "events_deleted", 0)),
			fmt.Sprintf("%d remaining", getIntField(event.Data, "events_remaining", 0)),
			formatDurationMs(getIntField(event.Data, "processing_time_ms", 0)),
		)
	}

	if err := getStringField(event.Data, "error", ""); err != "" {
		fields = append(fields, truncateString(err, 50))
	}

	return truncateString(joinFields(fields), 70)
}

func getStringField(data map[string]interface{}, key, defaultValue string) string {
	if val, ok := data[key].(string); ok {
		return val
	}
	return defaultValue
}

func getIntField(data map[string]interface{}, key string, defaultValue int) int {
	switch val := data[key].(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		return int(val)
	}
	return defaultValue
}

func formatDurationMs(ms int) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	return fmt.Sprintf("%.1fm", float64(ms)/60000)
}

// joinFields joins non-empty fields with " | "
func joinFields(fields []string) string {
	nonEmpty := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			nonEmpty = append(nonEmpty, f)
		}
	}
	return strings.Join(nonEmpty, " | ")
}

// shouldSkipEvent hides cycle_started; cycle_completed carries the counts.
func shouldSkipEvent(event *events.Event) bool {
	return event.Type == events.EventTypeCycleStarted && event.Severity == events.SeverityInfo
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}
