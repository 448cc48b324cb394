package git

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v72/github"
	"golang.org/x/time/rate"

	"github.com/steveyegge/fixbot/internal/auth"
	"github.com/steveyegge/fixbot/internal/types"
)

// GitHubConfig configures a GitHubHost.
type GitHubConfig struct {
	// BaseURL selects a GitHub Enterprise server; empty means github.com.
	BaseURL     string
	Credentials auth.CredentialProvider

	// RequestsPerSecond limits API calls (default 2).
	RequestsPerSecond float64
	Timeout           time.Duration // default 30s
	HTTPClient        *http.Client
}

// GitHubHost implements PullRequestHost with the GitHub REST API.
type GitHubHost struct {
	client  *github.Client
	limiter *rate.Limiter
}

// tokenTransport resolves the token on every request so rotated
// credentials are picked up without a restart.
type tokenTransport struct {
	creds auth.CredentialProvider
	base  http.RoundTripper
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.creds == nil {
		return nil, ErrMissingCredential
	}
	token, err := t.creds.Credential(req.Context(), auth.ProviderGitHub)
	if err != nil || token == "" {
		return nil, ErrMissingCredential
	}
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(r)
}

// NewGitHubHost creates a GitHub host.
func NewGitHubHost(cfg GitHubConfig) (*GitHubHost, error) {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	base := http.DefaultTransport
	if cfg.HTTPClient != nil && cfg.HTTPClient.Transport != nil {
		base = cfg.HTTPClient.Transport
	}
	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: &tokenTransport{creds: cfg.Credentials, base: base},
	}

	client := github.NewClient(httpClient)
	if cfg.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub base URL: %w", err)
		}
	}
	return &GitHubHost{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}, nil
}

// CreatePullRequest implements PullRequestHost. When an open pull request
// already exists for the head branch it is returned instead.
func (h *GitHubHost) CreatePullRequest(ctx context.Context, owner, repo string, pr NewPullRequest) (*types.PullRequestRef, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	created, resp, err := h.client.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: github.Ptr(pr.Title),
		Head:  github.Ptr(pr.Head),
		Base:  github.Ptr(pr.Base),
		Body:  github.Ptr(pr.Body),
	})
	if err != nil {
		if resp == nil || resp.StatusCode != http.StatusUnprocessableEntity {
			return nil, err
		}
		existing, lerr := h.openPullRequest(ctx, owner, repo, pr)
		if lerr != nil {
			return nil, fmt.Errorf("%w (lookup of existing pull request failed: %v)", err, lerr)
		}
		if existing == nil {
			return nil, err
		}
		return existing, nil
	}
	return &types.PullRequestRef{Number: created.GetNumber(), URL: created.GetHTMLURL()}, nil
}

// openPullRequest finds the open pull request from pr.Head into pr.Base.
func (h *GitHubHost) openPullRequest(ctx context.Context, owner, repo string, pr NewPullRequest) (*types.PullRequestRef, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	prs, _, err := h.client.PullRequests.List(ctx, owner, repo, &github.PullRequestListOptions{
		State: "open",
		Head:  owner + ":" + pr.Head,
		Base:  pr.Base,
	})
	if err != nil {
		return nil, err
	}
	if len(prs) == 0 {
		return nil, nil
	}
	return &types.PullRequestRef{Number: prs[0].GetNumber(), URL: prs[0].GetHTMLURL()}, nil
}

// RequestReviewer implements PullRequestHost.
func (h *GitHubHost) RequestReviewer(ctx context.Context, owner, repo string, number int, reviewer string) error {
	if err := h.limiter.Wait(ctx); err != nil {
		return err
	}
	_, _, err := h.client.PullRequests.RequestReviewers(ctx, owner, repo, number, github.ReviewersRequest{
		Reviewers: []string{reviewer},
	})
	return err
}

// CreateComment implements PullRequestHost.
func (h *GitHubHost) CreateComment(ctx context.Context, owner, repo string, number int, body string) error {
	if err := h.limiter.Wait(ctx); err != nil {
		return err
	}
	_, _, err := h.client.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{Body: github.Ptr(body)})
	return err
}
