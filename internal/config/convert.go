package config

import (
	"fmt"
	"log/slog"

	"github.com/steveyegge/fixbot/internal/ai"
	"github.com/steveyegge/fixbot/internal/auth"
	"github.com/steveyegge/fixbot/internal/git"
	"github.com/steveyegge/fixbot/internal/notify"
	"github.com/steveyegge/fixbot/internal/tracker"
)

// Credentials serves configured tokens first, then the conventional
// environment variables.
func (c *Config) Credentials() auth.CredentialProvider {
	static := auth.StaticProvider{}
	if c.Tracker.Token != "" {
		static[auth.ProviderJira] = c.Tracker.Token
	}
	if c.GitHub.Token != "" {
		static[auth.ProviderGitHub] = c.GitHub.Token
	}
	return auth.Chain{static, auth.DefaultEnvProvider()}
}

// JiraConfig returns the tracker client configuration. A bearer token from
// creds wins; email plus api_token is the fallback.
func (c *Config) JiraConfig(creds auth.CredentialProvider) tracker.Config {
	t := c.Tracker
	return tracker.Config{
		BaseURL:           t.BaseURL,
		Email:             t.Email,
		APIToken:          t.APIToken,
		Project:           t.Project,
		IssueType:         t.IssueType,
		Window:            t.Window,
		MaxResults:        t.MaxResults,
		MaxPages:          t.MaxPages,
		Timeout:           t.Timeout,
		MaxRetries:        t.MaxRetries,
		RequestsPerSecond: t.RequestsPerSecond,
		Credentials:       creds,
	}
}

// ProviderConfig returns the model provider selection.
func (c *Config) ProviderConfig() ai.ProviderConfig {
	return ai.ProviderConfig{
		Kind:    c.LLM.Provider,
		APIKey:  c.LLM.APIKey,
		Model:   c.LLM.Model,
		BaseURL: c.LLM.BaseURL,
	}
}

// RetryConfig returns the model client retry policy.
func (c *Config) RetryConfig() ai.RetryConfig {
	r := ai.DefaultRetryConfig()
	r.MaxRetries = c.LLM.MaxRetries
	r.InitialBackoff = c.LLM.InitialBackoff
	r.MaxBackoff = c.LLM.MaxBackoff
	r.Timeout = c.LLM.Timeout
	r.FailureThreshold = c.LLM.FailureThreshold
	r.OpenTimeout = c.LLM.OpenTimeout
	r.MaxConcurrentCalls = c.LLM.MaxConcurrentCalls
	return r
}

// EngineConfig returns the suggestion engine tuning; the caller supplies
// the client, clarifier and override slot.
func (c *Config) EngineConfig() ai.EngineConfig {
	return ai.EngineConfig{
		SummarizeThreshold:   c.Engine.SummarizeThreshold,
		SummaryLength:        c.Engine.SummaryLength,
		MinPatchLength:       c.Engine.MinPatchLength,
		ClarificationTimeout: c.Engine.ClarificationTimeout,
		MaxTokens:            c.Engine.MaxTokens,
	}
}

// GitHubHostConfig returns the pull request host configuration.
func (c *Config) GitHubHostConfig(creds auth.CredentialProvider) git.GitHubConfig {
	return git.GitHubConfig{
		BaseURL:           c.GitHub.BaseURL,
		Credentials:       creds,
		RequestsPerSecond: c.GitHub.RequestsPerSecond,
		Timeout:           c.GitHub.Timeout,
	}
}

// AutomatorConfig returns the source-control automator configuration.
// host may be nil, in which case no pull requests are opened.
func (c *Config) AutomatorConfig(creds auth.CredentialProvider, host git.PullRequestHost) git.AutomatorConfig {
	return git.AutomatorConfig{
		RepoPath:    c.Git.RepoPath,
		Remote:      c.Git.Remote,
		Credentials: creds,
		Host:        host,
		Owner:       c.Git.Owner,
		Repo:        c.Git.Repo,
		Author:      c.Git.Author,
		Timeout:     c.Git.Timeout,
	}
}

// Notifier builds the configured notification channels. With nothing
// configured it returns nil.
func (c *Config) Notifier(logger *slog.Logger) (notify.Notifier, error) {
	n := c.Notify
	var out notify.Multi
	if n.Log {
		out = append(out, notify.LogNotifier{Logger: logger})
	}
	if n.SlackWebhookURL != "" || n.SlackBotToken != "" {
		s, err := notify.NewSlackNotifier(notify.SlackConfig{
			WebhookURL: n.SlackWebhookURL,
			BotToken:   n.SlackBotToken,
			Channels:   n.SlackChannels,
		})
		if err != nil {
			return nil, fmt.Errorf("notify: %w", err)
		}
		out = append(out, s)
	}
	if n.SMTPAddr != "" {
		s, err := notify.NewSMTPNotifier(notify.SMTPConfig{
			Addr:     n.SMTPAddr,
			From:     n.SMTPFrom,
			Username: n.SMTPUsername,
			Password: n.SMTPPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("notify: %w", err)
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
