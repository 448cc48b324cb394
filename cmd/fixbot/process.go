package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/fixbot/internal/ai"
	"github.com/steveyegge/fixbot/internal/control"
	"github.com/steveyegge/fixbot/internal/orchestrator"
	"github.com/steveyegge/fixbot/internal/storage"
	"github.com/steveyegge/fixbot/internal/types"
)

var processCmd = &cobra.Command{
	Use:   "process <ticket-key>",
	Short: "Run the remediation pipeline for one ticket",
	Long: `Process a single ticket outside the polling schedule.

When fixbot run is active the request is queued on the running instance
through the control socket. Otherwise the ticket is processed here; with
--interactive any clarification the model needs is asked on the terminal.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		local, _ := cmd.Flags().GetBool("local")
		interactive, _ := cmd.Flags().GetBool("interactive")

		green := color.New(color.FgGreen).SprintFunc()
		sock := cfg.Path(storage.SocketFile)
		if !local && socketExists(sock) {
			resp, err := control.NewClient(sock).Process(args[0])
			if err != nil {
				fatal(err)
			}
			if !resp.Success {
				fatal(errors.New(resp.Error))
			}
			fmt.Printf("%s %s\n", green("✓"), resp.Message)
			return
		}

		if err := processLocal(args[0], interactive); err != nil {
			fatal(err)
		}
	},
}

func init() {
	processCmd.Flags().Bool("local", false, "Process here even if an instance is running")
	processCmd.Flags().BoolP("interactive", "i", false, "Ask clarification questions on the terminal")
	processCmd.Flags().String("repo", ".", "Working tree fixes are committed to")
	processCmd.Flags().String("base", "main", "Base branch for fix branches")
	processCmd.Flags().String("provider", "anthropic", "Model provider: anthropic, openai or none")
	rootCmd.AddCommand(processCmd)
}

func socketExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode()&os.ModeSocket != 0
}

func processLocal(key string, interactive bool) error {
	if err := storage.EnsureStateDir(cfg.StateDir); err != nil {
		return err
	}
	lockPath, err := storage.AcquireExclusiveLock(cfg.StateDir, version)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if err := storage.ReleaseExclusiveLock(lockPath); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to release lock: %v\n", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var clarifier ai.Clarifier
	if interactive {
		clarifier = ai.NewReadlineClarifier(cfg.Engine.ClarificationTimeout, nil, nil)
	}
	rt, err := buildRuntime(ctx, clarifier)
	if err != nil {
		return err
	}

	res, err := rt.orch.ProcessTicket(ctx, key)
	if err != nil {
		return err
	}
	printResult(res)
	if res.Outcome == types.OutcomeFailed {
		return fmt.Errorf("%s failed", key)
	}
	return nil
}

func printResult(res *orchestrator.AttemptResult) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	key := res.Ticket.Key
	switch res.Outcome {
	case types.OutcomeRemediated:
		fmt.Printf("%s %s remediated\n", green("✓"), key)
	case types.OutcomeFailed:
		fmt.Printf("%s %s failed: %v\n", red("✗"), key, res.Err)
	default:
		fmt.Printf("%s %s %s: %s\n", yellow("-"), key, res.Outcome, res.Reason)
	}
	a := res.Attempt
	if a == nil {
		return
	}
	if a.Suggestion != "" {
		fmt.Printf("  Suggestion: %s\n", a.Suggestion)
	}
	if a.TargetFile != "" {
		fmt.Printf("  File:       %s\n", a.TargetFile)
	}
	if a.Branch != "" {
		fmt.Printf("  Branch:     %s\n", a.Branch)
	}
	if a.PullRequest != nil {
		fmt.Printf("  PR:         %s\n", cyan(a.PullRequest.URL))
	}
}
