package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/steveyegge/fixbot/internal/ai"
	"github.com/steveyegge/fixbot/internal/git"
	"github.com/steveyegge/fixbot/internal/ledger"
	"github.com/steveyegge/fixbot/internal/orchestrator"
	"github.com/steveyegge/fixbot/internal/resolver"
	"github.com/steveyegge/fixbot/internal/storage"
	"github.com/steveyegge/fixbot/internal/tracker"
)

// runtime holds what a processing command drives.
type runtime struct {
	orch *orchestrator.Orchestrator
}

// buildTracker creates the Jira client from the loaded config.
func buildTracker() (*tracker.Client, error) {
	client, err := tracker.NewClient(cfg.JiraConfig(cfg.Credentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create tracker client: %w", err)
	}
	return client, nil
}

// buildLedger opens the processed-ticket ledger in the configured day zone.
func buildLedger() (*ledger.Ledger, error) {
	loc, err := cfg.DayLocation()
	if err != nil {
		return nil, err
	}
	l, err := ledger.Open(cfg.Path(storage.LedgerFile), ledger.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	return l, nil
}

// buildRuntime wires the orchestrator. clarifier answers human-input
// requests; nil means tickets needing input are abandoned.
func buildRuntime(ctx context.Context, clarifier ai.Clarifier) (*runtime, error) {
	s, err := openStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	creds := cfg.Credentials()
	tc, err := buildTracker()
	if err != nil {
		return nil, err
	}

	provider, err := ai.NewProvider(cfg.ProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create model provider: %w", err)
	}
	ecfg := cfg.EngineConfig()
	ecfg.Client = ai.NewClient(provider, cfg.RetryConfig())
	ecfg.Clarifier = clarifier
	ecfg.Override = &ai.PromptOverride{}
	engine, err := ai.NewEngine(ecfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create suggestion engine: %w", err)
	}

	g, err := git.NewGit(ctx)
	if err != nil {
		return nil, err
	}
	// a nil *GitHubHost must not reach the PullRequestHost interface
	var host git.PullRequestHost
	if cfg.GitHub.Enabled {
		h, err := git.NewGitHubHost(cfg.GitHubHostConfig(creds))
		if err != nil {
			return nil, fmt.Errorf("failed to create pull request host: %w", err)
		}
		host = h
	}
	automator, err := git.NewAutomator(g, cfg.AutomatorConfig(creds, host))
	if err != nil {
		return nil, err
	}

	l, err := buildLedger()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.DayLocation()
	if err != nil {
		return nil, err
	}

	notifier, err := cfg.Notifier(slog.Default())
	if err != nil {
		return nil, err
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Store:      s,
		Tracker:    tc,
		Engine:     engine,
		Resolver:   resolver.New(cfg.Git.RepoPath, cfg.Engine.Keywords),
		Automator:  automator,
		Ledger:     l,
		Notifier:   notifier,
		Snapshots:  tracker.NewSnapshotFile(cfg.Path(storage.SnapshotFile)),
		ChangeLog:  tracker.NewChangeLog(cfg.Path(storage.ChangeLogFile)),
		JQL:        cfg.Tracker.JQL,
		DefaultJQL: tc.DefaultJQL(),
		BaseBranch: cfg.Git.BaseBranch,
		Reviewers:  cfg.Git.Reviewers,
		Recipients: cfg.Notify.Recipients,
		StateDir:   cfg.StateDir,
		Interval:   cfg.Loop.Interval,
		RunOnStart: cfg.Loop.RunOnStart,
		Location:   loc,
		Retention:  cfg.Retention,
		Instances:  cfg.Instances,
		Version:    version,
	})
	if err != nil {
		return nil, err
	}
	return &runtime{orch: orch}, nil
}
