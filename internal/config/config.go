// Package config loads fixbot configuration. Values are layered: built-in
// defaults, then the YAML config file, then FIXBOT_* environment variables,
// then command-line flags.
package config

import (
	"fmt"
	"time"

	"github.com/steveyegge/fixbot/internal/storage"
	"github.com/steveyegge/fixbot/internal/tracker"
)

// Config is the complete fixbot configuration.
type Config struct {
	StateDir  string                `mapstructure:"state_dir" yaml:"state_dir"`
	Log       LogConfig             `mapstructure:"log" yaml:"log"`
	Tracker   TrackerConfig         `mapstructure:"tracker" yaml:"tracker"`
	LLM       LLMConfig             `mapstructure:"llm" yaml:"llm"`
	Engine    EngineConfig          `mapstructure:"engine" yaml:"engine"`
	Git       GitConfig             `mapstructure:"git" yaml:"git"`
	GitHub    GitHubConfig          `mapstructure:"github" yaml:"github"`
	Notify    NotifyConfig          `mapstructure:"notify" yaml:"notify"`
	Storage   storage.Config        `mapstructure:"storage" yaml:"storage"`
	Loop      LoopConfig            `mapstructure:"loop" yaml:"loop"`
	Retention EventRetentionConfig  `mapstructure:"retention" yaml:"retention"`
	Instances InstanceCleanupConfig `mapstructure:"instances" yaml:"instances"`

	// source is the config file that was read, if any.
	source string
}

// LogConfig configures the default slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text or json
}

// TrackerConfig configures the Jira client and the polling query.
type TrackerConfig struct {
	BaseURL  string `mapstructure:"base_url" yaml:"base_url"`
	Email    string `mapstructure:"email" yaml:"email"`
	APIToken string `mapstructure:"api_token" yaml:"api_token" secret:"true"`
	// Token is a bearer token, preferred over Email + APIToken.
	Token             string        `mapstructure:"token" yaml:"token" secret:"true"`
	Project           string        `mapstructure:"project" yaml:"project"`
	IssueType         string        `mapstructure:"issue_type" yaml:"issue_type"`
	Window            time.Duration `mapstructure:"window" yaml:"window"`
	JQL               string        `mapstructure:"jql" yaml:"jql"` // overrides the generated query
	MaxResults        int           `mapstructure:"max_results" yaml:"max_results"`
	MaxPages          int           `mapstructure:"max_pages" yaml:"max_pages"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries" yaml:"max_retries"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
}

// LLMConfig selects the model provider and its retry policy.
type LLMConfig struct {
	Provider           string        `mapstructure:"provider" yaml:"provider"` // anthropic, openai or none
	APIKey             string        `mapstructure:"api_key" yaml:"api_key" secret:"true"`
	Model              string        `mapstructure:"model" yaml:"model"`
	BaseURL            string        `mapstructure:"base_url" yaml:"base_url"`
	MaxRetries         int           `mapstructure:"max_retries" yaml:"max_retries"`
	InitialBackoff     time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff         time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
	Timeout            time.Duration `mapstructure:"timeout" yaml:"timeout"`
	FailureThreshold   int           `mapstructure:"failure_threshold" yaml:"failure_threshold"`
	OpenTimeout        time.Duration `mapstructure:"open_timeout" yaml:"open_timeout"`
	MaxConcurrentCalls int           `mapstructure:"max_concurrent_calls" yaml:"max_concurrent_calls"`
}

// EngineConfig tunes suggestion and patch generation.
type EngineConfig struct {
	SummarizeThreshold   int           `mapstructure:"summarize_threshold" yaml:"summarize_threshold"`
	SummaryLength        int           `mapstructure:"summary_length" yaml:"summary_length"`
	MinPatchLength       int           `mapstructure:"min_patch_length" yaml:"min_patch_length"`
	ClarificationTimeout time.Duration `mapstructure:"clarification_timeout" yaml:"clarification_timeout"`
	MaxTokens            int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	// Keywords extends the resolver's keyword table (lowercase keyword to
	// identifier).
	Keywords map[string]string `mapstructure:"keywords" yaml:"keywords"`
}

// GitConfig describes the working tree fixes are committed to.
type GitConfig struct {
	RepoPath   string        `mapstructure:"repo_path" yaml:"repo_path"`
	Remote     string        `mapstructure:"remote" yaml:"remote"`
	BaseBranch string        `mapstructure:"base_branch" yaml:"base_branch"`
	Author     string        `mapstructure:"author" yaml:"author"` // "Name <email>", empty uses git config
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// Owner and Repo override the values parsed from the remote URL.
	Owner     string   `mapstructure:"owner" yaml:"owner"`
	Repo      string   `mapstructure:"repo" yaml:"repo"`
	Reviewers []string `mapstructure:"reviewers" yaml:"reviewers"`
}

// GitHubConfig configures the pull request host.
type GitHubConfig struct {
	Enabled           bool          `mapstructure:"enabled" yaml:"enabled"`
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url"` // GitHub Enterprise
	Token             string        `mapstructure:"token" yaml:"token" secret:"true"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// NotifyConfig selects notification channels.
type NotifyConfig struct {
	Recipients      []string `mapstructure:"recipients" yaml:"recipients"`
	Log             bool     `mapstructure:"log" yaml:"log"`
	SlackWebhookURL string   `mapstructure:"slack_webhook_url" yaml:"slack_webhook_url" secret:"true"`
	SlackBotToken   string   `mapstructure:"slack_bot_token" yaml:"slack_bot_token" secret:"true"`
	SlackChannels   []string `mapstructure:"slack_channels" yaml:"slack_channels"`
	SMTPAddr        string   `mapstructure:"smtp_addr" yaml:"smtp_addr"`
	SMTPFrom        string   `mapstructure:"smtp_from" yaml:"smtp_from"`
	SMTPUsername    string   `mapstructure:"smtp_username" yaml:"smtp_username"`
	SMTPPassword    string   `mapstructure:"smtp_password" yaml:"smtp_password" secret:"true"`
}

// LoopConfig configures the polling loop.
type LoopConfig struct {
	// Interval is the fixed delay between the end of one cycle and the
	// start of the next.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	// Location names the time zone ledger days are computed in.
	Location   string `mapstructure:"location" yaml:"location"`
	RunOnStart bool   `mapstructure:"run_on_start" yaml:"run_on_start"`
}

// Default returns the built-in configuration.
func Default() *Config {
	pg := storage.DefaultConfig().Postgres
	return &Config{
		StateDir: storage.DefaultStateDir,
		Log:      LogConfig{Level: "info", Format: "text"},
		Tracker: TrackerConfig{
			IssueType:         "Bug",
			Window:            7 * 24 * time.Hour,
			MaxResults:        50,
			MaxPages:          10,
			Timeout:           30 * time.Second,
			MaxRetries:        2,
			RequestsPerSecond: 5,
		},
		LLM: LLMConfig{
			Provider:           "anthropic",
			MaxRetries:         3,
			InitialBackoff:     time.Second,
			MaxBackoff:         30 * time.Second,
			Timeout:            60 * time.Second,
			FailureThreshold:   5,
			OpenTimeout:        30 * time.Second,
			MaxConcurrentCalls: 3,
		},
		Engine: EngineConfig{
			SummarizeThreshold:   4000,
			SummaryLength:        1500,
			MinPatchLength:       40,
			ClarificationTimeout: 2 * time.Minute,
			MaxTokens:            4096,
			Keywords:             map[string]string{},
		},
		Git: GitConfig{
			RepoPath:   ".",
			Remote:     "origin",
			BaseBranch: "main",
			Timeout:    2 * time.Minute,
		},
		GitHub: GitHubConfig{
			Enabled:           true,
			RequestsPerSecond: 2,
			Timeout:           30 * time.Second,
		},
		Notify: NotifyConfig{Log: true},
		Storage: storage.Config{
			Backend:  storage.BackendSQLite,
			Postgres: pg,
		},
		Loop: LoopConfig{
			Interval:   5 * time.Minute,
			Location:   "Local",
			RunOnStart: true,
		},
		Retention: DefaultEventRetentionConfig(),
		Instances: DefaultInstanceCleanupConfig(),
	}
}

// Source returns the config file that was loaded, or "".
func (c *Config) Source() string { return c.source }

// DayLocation returns the time zone for ledger day buckets.
func (c *Config) DayLocation() (*time.Location, error) {
	switch c.Loop.Location {
	case "", "Local":
		return time.Local, nil
	default:
		return time.LoadLocation(c.Loop.Location)
	}
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error (got %q)", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json (got %q)", c.Log.Format)
	}
	if c.StateDir == "" {
		return fmt.Errorf("state_dir is required")
	}

	t := c.Tracker
	if t.MaxResults < 1 || t.MaxResults > 100 {
		return fmt.Errorf("tracker.max_results must be between 1 and 100 (got %d)", t.MaxResults)
	}
	if t.MaxPages < 1 || t.MaxPages > 100 {
		return fmt.Errorf("tracker.max_pages must be between 1 and 100 (got %d)", t.MaxPages)
	}
	if t.Window < time.Minute {
		return fmt.Errorf("tracker.window must be at least 1m (got %v)", t.Window)
	}
	if t.Timeout <= 0 {
		return fmt.Errorf("tracker.timeout must be positive (got %v)", t.Timeout)
	}
	if t.MaxRetries < 0 {
		return fmt.Errorf("tracker.max_retries cannot be negative (got %d)", t.MaxRetries)
	}
	if t.RequestsPerSecond < 0 {
		return fmt.Errorf("tracker.requests_per_second cannot be negative (got %v)", t.RequestsPerSecond)
	}
	if t.JQL != "" {
		if err := tracker.CheckBounded(t.JQL); err != nil {
			return fmt.Errorf("tracker.jql: %w", err)
		}
	}

	switch c.LLM.Provider {
	case "anthropic", "openai", "none":
	default:
		return fmt.Errorf("llm.provider must be anthropic, openai or none (got %q)", c.LLM.Provider)
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries cannot be negative (got %d)", c.LLM.MaxRetries)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive (got %v)", c.LLM.Timeout)
	}
	if c.LLM.MaxConcurrentCalls < 0 {
		return fmt.Errorf("llm.max_concurrent_calls cannot be negative (got %d)", c.LLM.MaxConcurrentCalls)
	}

	e := c.Engine
	if e.SummarizeThreshold < 100 {
		return fmt.Errorf("engine.summarize_threshold must be at least 100 (got %d)", e.SummarizeThreshold)
	}
	if e.SummaryLength < 1 || e.SummaryLength >= e.SummarizeThreshold {
		return fmt.Errorf("engine.summary_length must be between 1 and summarize_threshold-1 (got %d)", e.SummaryLength)
	}
	if e.MinPatchLength < 0 {
		return fmt.Errorf("engine.min_patch_length cannot be negative (got %d)", e.MinPatchLength)
	}
	if e.ClarificationTimeout < 0 {
		return fmt.Errorf("engine.clarification_timeout cannot be negative (got %v)", e.ClarificationTimeout)
	}

	if c.Git.RepoPath == "" || c.Git.Remote == "" || c.Git.BaseBranch == "" {
		return fmt.Errorf("git.repo_path, git.remote and git.base_branch are required")
	}
	if c.Git.Timeout <= 0 {
		return fmt.Errorf("git.timeout must be positive (got %v)", c.Git.Timeout)
	}
	if c.GitHub.RequestsPerSecond <= 0 {
		return fmt.Errorf("github.requests_per_second must be positive (got %v)", c.GitHub.RequestsPerSecond)
	}

	switch c.Storage.Backend {
	case storage.BackendSQLite, storage.BackendPostgres:
	default:
		return fmt.Errorf("storage.backend must be sqlite or postgres (got %q)", c.Storage.Backend)
	}

	if c.Loop.Interval < time.Second {
		return fmt.Errorf("loop.interval must be at least 1s (got %v)", c.Loop.Interval)
	}
	if _, err := c.DayLocation(); err != nil {
		return fmt.Errorf("loop.location: %w", err)
	}

	if err := c.Retention.Validate(); err != nil {
		return fmt.Errorf("retention: %w", err)
	}
	if err := c.Instances.Validate(); err != nil {
		return fmt.Errorf("instances: %w", err)
	}
	return nil
}
