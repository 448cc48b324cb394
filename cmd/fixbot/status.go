package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/fixbot/internal/control"
	"github.com/steveyegge/fixbot/internal/orchestrator"
	"github.com/steveyegge/fixbot/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running instance and today's processed tickets",
	Run: func(cmd *cobra.Command, args []string) {
		sock := cfg.Path(storage.SocketFile)
		if socketExists(sock) {
			resp, err := control.NewClient(sock).Status()
			if err == nil && resp.Success {
				var st orchestrator.Status
				if err := control.DecodeData(resp.Data, &st); err != nil {
					fatal(err)
				}
				printLiveStatus(&st)
				return
			}
		}
		if err := printOfflineStatus(); err != nil {
			fatal(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func printLiveStatus(st *orchestrator.Status) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	state := green("running")
	if st.CycleRunning {
		state = yellow("processing")
	}
	fmt.Printf("\nfixbot %s (%s)\n", state, gray(st.Version))
	fmt.Printf("  Instance:  %s on %s pid %d\n", st.InstanceID, st.Hostname, st.PID)
	fmt.Printf("  Interval:  %s\n", st.Interval)
	if !st.LastCycleAt.IsZero() {
		fmt.Printf("  Last cycle: %s\n", humanize.Time(st.LastCycleAt))
	}
	if c := st.LastCycle; c != nil {
		fmt.Printf("    %d found, %d pending, %d remediated, %d skipped, %d abandoned, %d failed\n",
			c.Found, c.Pending, c.Remediated, c.Skipped, c.Abandoned, c.Failed)
	}
	fmt.Printf("  Cached suggestions: %d\n", st.CacheSize)
	if st.PromptOverride {
		fmt.Printf("  %s prompt override pending\n", yellow("✏"))
	}
	printProcessed(st.ProcessedToday)
	fmt.Println()
}

func printOfflineStatus() error {
	ctx := context.Background()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\nfixbot %s\n", yellow("not running"))

	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	instances, err := s.GetActiveInstances(ctx)
	if err != nil {
		return fmt.Errorf("failed to list instances: %w", err)
	}
	for _, inst := range instances {
		stale := ""
		if time.Since(inst.LastHeartbeat) > time.Duration(cfg.Instances.StaleThresholdSeconds())*time.Second {
			stale = yellow(" (stale)")
		}
		fmt.Printf("  Registered instance %s on %s, heartbeat %s%s\n",
			inst.InstanceID, inst.Hostname, humanize.Time(inst.LastHeartbeat), stale)
	}

	l, err := buildLedger()
	if err != nil {
		return err
	}
	fmt.Printf("  Ledger: %s\n", gray(l.Path()))
	printProcessed(l.ProcessedToday())
	fmt.Println()
	return nil
}

func printProcessed(keys []string) {
	if len(keys) == 0 {
		fmt.Println("  No tickets processed today")
		return
	}
	fmt.Printf("  Processed today (%d):\n", len(keys))
	for _, k := range keys {
		fmt.Printf("    %s\n", k)
	}
}
