package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/fixbot/internal/ai"
	"github.com/steveyegge/fixbot/internal/control"
)

var clarifyCmd = &cobra.Command{
	Use:   "clarify",
	Short: "Answer clarification questions from the running instance",
}

var clarifyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tickets waiting for an answer",
	Run: func(cmd *cobra.Command, args []string) {
		resp := mustSend(func(c *control.Client) (*control.Response, error) {
			return c.Pending()
		})
		var out struct {
			Pending []ai.ClarificationRequest `json:"pending"`
		}
		if err := control.DecodeData(resp.Data, &out); err != nil {
			fatal(err)
		}
		if len(out.Pending) == 0 {
			fmt.Println("No tickets are waiting for clarification")
			return
		}

		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("\n%s Waiting for clarification (%d)\n\n", yellow("❓"), len(out.Pending))
		for _, p := range out.Pending {
			fmt.Printf("%s %s %s\n", yellow(p.TicketKey), p.Reason,
				gray("("+humanize.RelTime(p.RequestedAt, time.Now(), "ago", "from now")+")"))
			fmt.Printf("   %s\n", p.Question)
		}
		fmt.Println()
	},
}

var clarifyAnswerCmd = &cobra.Command{
	Use:   "answer <ticket-key> <answer>...",
	Short: "Answer a pending clarification",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		resp := mustSend(func(c *control.Client) (*control.Response, error) {
			return c.Clarify(args[0], strings.Join(args[1:], " "))
		})
		fmt.Printf("%s %s\n", color.New(color.FgGreen).Sprint("✓"), resp.Message)
	},
}

func init() {
	clarifyCmd.AddCommand(clarifyListCmd)
	clarifyCmd.AddCommand(clarifyAnswerCmd)
	rootCmd.AddCommand(clarifyCmd)
}
