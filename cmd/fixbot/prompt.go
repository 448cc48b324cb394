package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/fixbot/internal/control"
	"github.com/steveyegge/fixbot/internal/storage"
)

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Manage the one-shot prompt override of the running instance",
	Long: `The prompt override replaces the generated suggestion prompt for the next
ticket only. It is consumed by the first suggestion that uses it.`,
}

var promptSetCmd = &cobra.Command{
	Use:   "set <text>...",
	Short: "Set the prompt override",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		resp := mustSend(func(c *control.Client) (*control.Response, error) {
			return c.SetPrompt(strings.Join(args, " "))
		})
		fmt.Printf("%s %s\n", color.New(color.FgGreen).Sprint("✓"), resp.Message)
	},
}

var promptClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the prompt override",
	Run: func(cmd *cobra.Command, args []string) {
		resp := mustSend(func(c *control.Client) (*control.Response, error) {
			return c.SetPrompt("")
		})
		fmt.Printf("%s %s\n", color.New(color.FgGreen).Sprint("✓"), resp.Message)
	},
}

var promptGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the pending prompt override",
	Run: func(cmd *cobra.Command, args []string) {
		resp := mustSend(func(c *control.Client) (*control.Response, error) {
			return c.GetPrompt()
		})
		printPrompt(resp)
	},
}

var promptConsumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Show and clear the pending prompt override",
	Run: func(cmd *cobra.Command, args []string) {
		resp := mustSend(func(c *control.Client) (*control.Response, error) {
			return c.ConsumePrompt()
		})
		printPrompt(resp)
	},
}

func init() {
	promptCmd.AddCommand(promptSetCmd)
	promptCmd.AddCommand(promptClearCmd)
	promptCmd.AddCommand(promptGetCmd)
	promptCmd.AddCommand(promptConsumeCmd)
	rootCmd.AddCommand(promptCmd)
}

func printPrompt(resp *control.Response) {
	prompt, _ := resp.Data["prompt"].(string)
	if prompt == "" {
		fmt.Println(color.New(color.FgHiBlack).Sprint("(no prompt override)"))
		return
	}
	fmt.Println(prompt)
}

// mustSend runs one control command against the running instance and exits
// on any failure.
func mustSend(send func(c *control.Client) (*control.Response, error)) *control.Response {
	resp, err := send(control.NewClient(cfg.Path(storage.SocketFile)))
	if err != nil {
		fatal(err)
	}
	if !resp.Success {
		fatal(errors.New(resp.Error))
	}
	return resp
}
