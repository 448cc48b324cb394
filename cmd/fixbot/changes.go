package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/fixbot/internal/storage"
	"github.com/steveyegge/fixbot/internal/tracker"
)

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Poll the tracker and report what changed since the last snapshot",
	Long: `Run the search once, compare the result with the stored snapshot and
append the differences to the change log (` + storage.ChangeLogFile + `).
No tickets are processed.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := reportChanges(); err != nil {
			fatal(err)
		}
	},
}

func init() {
	changesCmd.Flags().String("jql", "", "Search query overriding the generated one")
	changesCmd.Flags().String("project", "", "Tracker project key")
	rootCmd.AddCommand(changesCmd)
}

func reportChanges() error {
	if err := storage.EnsureStateDir(cfg.StateDir); err != nil {
		return err
	}
	tc, err := buildTracker()
	if err != nil {
		return err
	}
	jql := cfg.Tracker.JQL
	if jql == "" {
		jql = tc.DefaultJQL()
	}

	raw, err := tc.Search(context.Background(), tracker.SearchRequest{JQL: jql})
	if err != nil {
		return err
	}
	narratives, err := tracker.RecordChanges(raw,
		tracker.NewSnapshotFile(cfg.Path(storage.SnapshotFile)),
		tracker.NewChangeLog(cfg.Path(storage.ChangeLogFile)))
	if err != nil {
		return err
	}

	if len(narratives) == 0 {
		fmt.Println("No changes since the last snapshot")
		return nil
	}
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	for _, n := range narratives {
		var mark string
		switch n.Kind {
		case tracker.NarrativeAdded:
			mark = green("+")
		case tracker.NarrativeRemoved:
			mark = red("-")
		default:
			mark = yellow("~")
		}
		fmt.Printf("%s %s %s\n", mark, n.Key, n.Kind)
		for _, line := range strings.Split(strings.TrimRight(n.Text, "\n"), "\n") {
			fmt.Printf("    %s\n", gray(line))
		}
	}
	return nil
}
