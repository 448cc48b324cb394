package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/fixbot/internal/events"
	"github.com/steveyegge/fixbot/internal/orchestrator"
)

// Note: displayActivityEvent and its helpers are in event_display.go

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show recent remediation events",
	Long: `Display recent activity from the activity store.

Events include poll cycles, suggestions, generated patches, clarification
requests, branches, commits, pull requests, ticket comments, notifications
and failures.

Examples:
  fixbot activity                          # Show last 20 events
  fixbot activity -n 50                    # Show last 50 events
  fixbot activity --ticket ABC-123         # Show events for one ticket
  fixbot activity --type ticket_failed     # Show only failures
  fixbot activity --severity warning       # Show only warnings
  fixbot activity --since 2h               # Show the last two hours`,
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		ticket, _ := cmd.Flags().GetString("ticket")
		eventType, _ := cmd.Flags().GetString("type")
		severity, _ := cmd.Flags().GetString("severity")
		since, _ := cmd.Flags().GetDuration("since")

		ctx := context.Background()
		s, err := openStore(ctx)
		if err != nil {
			fatal(err)
		}

		filter := events.EventFilter{
			TicketKey: ticket,
			Type:      events.EventType(eventType),
			Severity:  events.EventSeverity(severity),
			Limit:     limit,
		}
		if since > 0 {
			filter.AfterTime = time.Now().Add(-since)
		}

		var eventList []*events.Event
		switch {
		case ticket != "" && eventType == "" && severity == "" && since == 0:
			eventList, err = s.GetEventsByTicket(ctx, ticket)
		case ticket == "" && eventType == "" && severity == "" && since == 0:
			eventList, err = s.GetRecentEvents(ctx, limit)
		default:
			eventList, err = s.GetEvents(ctx, filter)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error fetching events: %v\n", err)
			os.Exit(1)
		}

		if len(eventList) == 0 {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("\n%s No events found matching the criteria\n\n", yellow("✨"))
			return
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("\n%s Recent Activity (%d events):\n\n", cyan("📋"), len(eventList))

		// by-ticket queries come back oldest first, the rest newest first
		if ticket != "" && eventType == "" && severity == "" && since == 0 {
			for _, ev := range eventList {
				displayActivityEvent(ev)
			}
		} else {
			for i := len(eventList) - 1; i >= 0; i-- {
				displayActivityEvent(eventList[i])
			}
		}
		fmt.Println()
	},
}

var activityPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Apply the event retention policy now",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		s, err := openStore(ctx)
		if err != nil {
			fatal(err)
		}
		data, err := orchestrator.RunEventCleanup(ctx, s, cfg.Retention, "cli")
		if err != nil {
			fatal(err)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Deleted %s events (age %d, per-ticket %d, global %d), %s remaining\n",
			green("✓"),
			humanize.Comma(int64(data.EventsDeleted)),
			data.TimeBasedDeleted, data.PerTicketDeleted, data.GlobalDeleted,
			humanize.Comma(int64(data.EventsRemaining)))
	},
}

var activityStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show event counts",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		s, err := openStore(ctx)
		if err != nil {
			fatal(err)
		}
		counts, err := s.GetEventCounts(ctx)
		if err != nil {
			fatal(err)
		}
		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("\n%s %s events\n\n", cyan("📊"), humanize.Comma(int64(counts.TotalEvents)))
		fmt.Println("By severity:")
		for _, sev := range []events.EventSeverity{events.SeverityInfo, events.SeverityWarning, events.SeverityError, events.SeverityCritical} {
			fmt.Printf("  %-9s %s\n", sev, humanize.Comma(int64(counts.EventsBySeverity[string(sev)])))
		}
		fmt.Printf("Tickets with events: %d\n\n", len(counts.EventsByTicket))
	},
}

func init() {
	activityCmd.Flags().IntP("limit", "n", 20, "Number of recent events to show")
	activityCmd.Flags().StringP("ticket", "k", "", "Filter events by ticket key")
	activityCmd.Flags().StringP("type", "t", "", "Filter by event type (e.g. ticket_failed, pull_request_opened)")
	activityCmd.Flags().StringP("severity", "s", "", "Filter by severity (info, warning, error, critical)")
	activityCmd.Flags().Duration("since", 0, "Only show events newer than this")
	activityCmd.AddCommand(activityPruneCmd)
	activityCmd.AddCommand(activityStatsCmd)
	rootCmd.AddCommand(activityCmd)
}
