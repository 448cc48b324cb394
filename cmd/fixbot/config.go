package main

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/fixbot/internal/config"
	"github.com/steveyegge/fixbot/internal/storage"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Write the default configuration to the state directory",
	Annotations: map[string]string{skipConfig: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		stateDir, _ := cmd.Flags().GetString("state-dir")
		if !cmd.Flags().Changed("state-dir") {
			dir, err := storage.DiscoverStateDir()
			if err != nil {
				fatal(err)
			}
			stateDir = dir
		}
		path := filepath.Join(stateDir, storage.ConfigFile)
		if err := config.WriteDefault(path, force); err != nil {
			fatal(err)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Wrote %s\n", green("✓"), path)
		fmt.Println("  Credentials are best supplied through FIXBOT_* environment variables.")
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Run: func(cmd *cobra.Command, args []string) {
		showSecrets, _ := cmd.Flags().GetBool("show-secrets")
		out, err := cfg.YAML(!showSecrets)
		if err != nil {
			fatal(err)
		}
		gray := color.New(color.FgHiBlack).SprintFunc()
		src := cfg.Source()
		if src == "" {
			src = "defaults and environment only"
		}
		fmt.Println(gray("# source: " + src))
		fmt.Print(string(out))
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing config file")
	configShowCmd.Flags().Bool("show-secrets", false, "Print credentials unmasked")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
