// Command fixbot polls an issue tracker for defects, proposes fixes with a
// language model, and opens pull requests for them.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/steveyegge/fixbot/internal/config"
	"github.com/steveyegge/fixbot/internal/storage"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	cfg   *config.Config
	store storage.Storage
)

// flagKeys maps command-line flags to the config keys they override.
var flagKeys = map[string]string{
	"state-dir":  "state_dir",
	"log-level":  "log.level",
	"log-format": "log.format",
	"interval":   "loop.interval",
	"jql":        "tracker.jql",
	"project":    "tracker.project",
	"repo":       "git.repo_path",
	"base":       "git.base_branch",
	"provider":   "llm.provider",
	"backend":    "storage.backend",
}

// skipConfig marks commands that run without loading configuration.
const skipConfig = "skip-config"

var rootCmd = &cobra.Command{
	Use:   "fixbot",
	Short: "Autonomous defect remediation",
	Long: `fixbot polls the issue tracker for defect tickets, asks a language model
for a fix, commits it to a per-ticket branch, opens a pull request and
comments back on the ticket.

State lives in .fixbot/ (override with --state-dir or FIXBOT_STATE_DIR).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[skipConfig] == "true" {
			return nil
		}
		file, _ := cmd.Flags().GetString("config")
		flags := make(map[string]*pflag.Flag)
		for name, key := range flagKeys {
			if f := cmd.Flags().Lookup(name); f != nil {
				flags[key] = f
			}
		}
		// the state dir flag also decides where config.yaml is looked up
		if f := cmd.Flags().Lookup("state-dir"); f != nil && f.Changed {
			if err := os.Setenv("FIXBOT_STATE_DIR", f.Value.String()); err != nil {
				return err
			}
		}

		loaded, err := config.Load(config.LoadOptions{File: file, Flags: flags})
		if err != nil {
			return err
		}
		cfg = loaded
		setupLogging(cfg.Log)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			if err := store.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to close store: %v\n", err)
			}
			store = nil
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Config file (default .fixbot/config.yaml)")
	pf.String("state-dir", storage.DefaultStateDir, "State directory")
	pf.String("log-level", "info", "Log level: debug, info, warn or error")
	pf.String("log-format", "text", "Log format: text or json")
	rootCmd.Version = version
}

func setupLogging(lc config.LogConfig) {
	var level slog.Level
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if lc.Format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// openStore opens the activity store once per command.
func openStore(ctx context.Context) (storage.Storage, error) {
	if store != nil {
		return store, nil
	}
	if err := storage.EnsureStateDir(cfg.StateDir); err != nil {
		return nil, err
	}
	s, err := storage.NewStorage(ctx, &cfg.Storage)
	if err != nil {
		return nil, err
	}
	store = s
	return store, nil
}

// fatal prints err the way every command reports failure and exits 1.
func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fatal(err)
	}
}
