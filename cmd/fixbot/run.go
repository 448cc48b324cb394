package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/fixbot/internal/ai"
	"github.com/steveyegge/fixbot/internal/control"
	"github.com/steveyegge/fixbot/internal/orchestrator"
	"github.com/steveyegge/fixbot/internal/storage"
	"github.com/steveyegge/fixbot/internal/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the tracker and remediate defects until interrupted",
	Long: `Start the remediation loop. A cycle runs at start-up (unless disabled) and
then after every --interval of idle time. Operators talk to the running
process over the control socket: fixbot process, fixbot prompt and
fixbot clarify.

With --once a single cycle runs in the foreground and the command exits.`,
	Run: func(cmd *cobra.Command, args []string) {
		once, _ := cmd.Flags().GetBool("once")
		if err := runLoop(once); err != nil {
			fatal(err)
		}
	},
}

func init() {
	f := runCmd.Flags()
	f.Duration("interval", 5*time.Minute, "Idle time between cycles")
	f.String("jql", "", "Search query overriding the generated one")
	f.String("project", "", "Tracker project key")
	f.String("repo", ".", "Working tree fixes are committed to")
	f.String("base", "main", "Base branch for fix branches")
	f.String("provider", "anthropic", "Model provider: anthropic, openai or none")
	f.String("backend", "sqlite", "Activity store backend: sqlite or postgres")
	f.Bool("once", false, "Run a single cycle and exit")
	rootCmd.AddCommand(runCmd)
}

func runLoop(once bool) error {
	if err := storage.EnsureStateDir(cfg.StateDir); err != nil {
		return err
	}
	lockPath, err := storage.AcquireExclusiveLock(cfg.StateDir, version)
	if err != nil {
		if errors.Is(err, storage.ErrLocked) {
			return fmt.Errorf("%w (use the control socket to talk to the running instance)", err)
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if err := storage.ReleaseExclusiveLock(lockPath); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to release lock: %v\n", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clarifier := ai.NewChannelClarifier(cfg.Engine.ClarificationTimeout)
	rt, err := buildRuntime(ctx, clarifier)
	if err != nil {
		return err
	}

	if once {
		return runOnce(ctx, cancel, rt.orch)
	}

	green := color.New(color.FgGreen).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	if err := rt.orch.Start(ctx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	srv, err := control.NewServer(cfg.Path(storage.SocketFile), control.NewHandler(rt.orch, clarifier))
	if err != nil {
		return fmt.Errorf("failed to create control server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start control server: %w", err)
	}

	fmt.Printf("%s fixbot started (instance %s)\n", green("✓"), rt.orch.InstanceID())
	fmt.Printf("  Interval: %s\n", cfg.Loop.Interval)
	fmt.Printf("  Control:  %s\n", cyan(cfg.Path(storage.SocketFile)))
	fmt.Println("  Press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down...")
	if err := srv.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: control server: %v\n", err)
	}

	// the in-flight ticket finishes before ctx is cancelled
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := rt.orch.Stop(stopCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to stop cleanly: %w", err)
	}
	cancel()

	fmt.Printf("%s fixbot stopped\n", green("✓"))
	return nil
}

// runOnce runs a single cycle in the foreground; an interrupt cancels it.
func runOnce(ctx context.Context, cancel context.CancelFunc, orch *orchestrator.Orchestrator) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	report, err := orch.RunCycle(ctx)
	if err != nil {
		return err
	}
	printCycle(report)
	return nil
}

func printCycle(r *orchestrator.CycleReport) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	sum := r.Summary()
	fmt.Printf("\nCycle finished in %s: %d found, %d pending, %d changes logged\n",
		r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond), sum.Found, sum.Pending, r.Changes)
	for _, res := range r.Results {
		var mark string
		switch res.Outcome {
		case types.OutcomeRemediated:
			mark = green("✓")
		case types.OutcomeFailed:
			mark = red("✗")
		default:
			mark = yellow("-")
		}
		line := fmt.Sprintf("  %s %s %s", mark, res.Ticket.Key, res.Outcome)
		if res.Reason != "" {
			line += gray(" (" + res.Reason + ")")
		}
		if res.Err != nil {
			line += " " + red(res.Err.Error())
		}
		fmt.Println(line)
	}
	if r.Interrupted {
		fmt.Println(yellow("  interrupted before every ticket was attempted"))
	}
}
