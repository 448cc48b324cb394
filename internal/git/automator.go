// Package git drives the git CLI and the pull-request host for fix branches.
package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/steveyegge/fixbot/internal/auth"
	"github.com/steveyegge/fixbot/internal/types"
)

// ErrMissingCredential is returned when a push or host call needs a token
// and none is configured.
var ErrMissingCredential = errors.New("missing source-control credential")

// AutomatorConfig configures an Automator.
type AutomatorConfig struct {
	RepoPath string
	Remote   string // default "origin"

	// Credentials supplies the token injected into https remotes for push.
	Credentials auth.CredentialProvider
	Host        PullRequestHost

	// Owner and Repo override what is parsed from the remote URL.
	Owner string
	Repo  string

	// Author overrides the commit author ("Name <email>").
	Author string

	// Timeout bounds each git subprocess (default 2m).
	Timeout time.Duration
}

// Automator runs the branch, commit, push and pull-request pipeline.
// Each pipeline stops at the first failing step; nothing is rolled back.
type Automator struct {
	git     *Git
	repo    string
	remote  string
	creds   auth.CredentialProvider
	host    PullRequestHost
	owner   string
	name    string
	author  string
	timeout time.Duration
}

// NewAutomator creates an automator over an existing working tree.
func NewAutomator(g *Git, cfg AutomatorConfig) (*Automator, error) {
	if g == nil {
		return nil, fmt.Errorf("git is required")
	}
	if cfg.RepoPath == "" {
		return nil, fmt.Errorf("repository path is required")
	}
	abs, err := filepath.Abs(cfg.RepoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository path: %w", err)
	}
	a := &Automator{
		git:     g,
		repo:    abs,
		remote:  cfg.Remote,
		creds:   cfg.Credentials,
		host:    cfg.Host,
		owner:   cfg.Owner,
		name:    cfg.Repo,
		author:  cfg.Author,
		timeout: cfg.Timeout,
	}
	if a.remote == "" {
		a.remote = "origin"
	}
	if a.timeout <= 0 {
		a.timeout = 2 * time.Minute
	}
	return a, nil
}

// RepoPath returns the absolute working tree path.
func (a *Automator) RepoPath() string { return a.repo }

// Git returns the underlying CLI wrapper.
func (a *Automator) Git() *Git { return a.git }

// HasHost reports whether pull requests can be opened.
func (a *Automator) HasHost() bool { return a.host != nil }

func (a *Automator) step(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.timeout)
}

// PrepareBranch fetches, checks out and fast-forwards base, then creates
// name from it.
func (a *Automator) PrepareBranch(ctx context.Context, base, name string) error {
	steps := []struct {
		what string
		fn   func(context.Context) error
	}{
		{"fetch", func(c context.Context) error { return a.git.Fetch(c, a.repo, a.remote) }},
		{"checkout " + base, func(c context.Context) error { return a.git.Checkout(c, a.repo, base) }},
		{"pull " + base, func(c context.Context) error { return a.git.Pull(c, a.repo, a.remote, base) }},
		{"create branch " + name, func(c context.Context) error { return a.git.CreateBranch(c, a.repo, name) }},
	}
	for _, s := range steps {
		sctx, cancel := a.step(ctx)
		err := s.fn(sctx)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to %s: %w", s.what, err)
		}
	}
	return nil
}

// ReadFile returns the current content of a repository file, empty when it
// does not exist.
func (a *Automator) ReadFile(rel string) (string, error) {
	p, err := a.resolve(rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", rel, err)
	}
	return string(data), nil
}

// ApplyAndCommit writes files, stages everything, commits (empty commits
// allowed) and pushes the current branch. It returns the commit hash.
func (a *Automator) ApplyAndCommit(ctx context.Context, files []FileChange, message string) (string, error) {
	for _, f := range files {
		p, err := a.resolve(f.Path)
		if err != nil {
			return "", err
		}
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return "", fmt.Errorf("failed to create directory for %s: %w", f.Path, err)
		}
		content := f.Content
		if content != "" && !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", f.Path, err)
		}
	}

	sctx, cancel := a.step(ctx)
	hash, err := a.git.Commit(sctx, a.repo, CommitOptions{Message: message, Author: a.author, AddAll: true, AllowEmpty: true})
	cancel()
	if err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}

	sctx, cancel = a.step(ctx)
	branch, err := a.git.CurrentBranch(sctx, a.repo)
	cancel()
	if err != nil {
		return hash, fmt.Errorf("failed to read current branch: %w", err)
	}
	if err := a.PushWithCredential(ctx, branch); err != nil {
		return hash, err
	}
	return hash, nil
}

// PushWithCredential pushes branch. For https remotes the token is written
// into the remote URL for the duration of the push and the original URL is
// restored afterwards on every path.
func (a *Automator) PushWithCredential(ctx context.Context, branch string) (err error) {
	sctx, cancel := a.step(ctx)
	original, err := a.git.RemoteURL(sctx, a.repo, a.remote)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to read remote URL: %w", err)
	}

	if IsHTTPS(original) {
		token, cerr := a.token(ctx)
		if cerr != nil {
			return cerr
		}
		authURL, uerr := WithToken(original, token)
		if uerr != nil {
			return uerr
		}
		sctx, cancel := a.step(ctx)
		serr := a.git.SetRemoteURL(sctx, a.repo, a.remote, authURL)
		cancel()
		if serr != nil {
			return fmt.Errorf("failed to set authenticated remote: %w", serr)
		}
		defer func() {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			if rerr := a.git.SetRemoteURL(rctx, a.repo, a.remote, original); rerr != nil {
				slog.Error("failed to restore remote URL", "remote", a.remote, "error", rerr)
				if err == nil {
					err = fmt.Errorf("failed to restore remote URL: %w", rerr)
				}
			}
		}()
	}

	sctx, cancel = a.step(ctx)
	defer cancel()
	if err := a.git.Push(sctx, a.repo, a.remote, branch); err != nil {
		return fmt.Errorf("failed to push %s: %w", branch, err)
	}
	return nil
}

func (a *Automator) token(ctx context.Context) (string, error) {
	if a.creds == nil {
		return "", ErrMissingCredential
	}
	token, err := a.creds.Credential(ctx, auth.ProviderGitHub)
	if err != nil || token == "" {
		if err != nil && !errors.Is(err, auth.ErrNoCredential) {
			return "", fmt.Errorf("%w: %v", ErrMissingCredential, err)
		}
		return "", ErrMissingCredential
	}
	return token, nil
}

// OpenPullRequest opens a pull request for a pushed branch, requests each
// reviewer separately and posts one summary comment. Reviewer and comment
// failures are logged only.
func (a *Automator) OpenPullRequest(ctx context.Context, req PullRequestRequest) (*types.PullRequestRef, error) {
	if a.host == nil {
		return nil, fmt.Errorf("no pull request host configured")
	}
	owner, name, err := a.repository(ctx)
	if err != nil {
		return nil, err
	}

	ref, err := a.host.CreatePullRequest(ctx, owner, name, NewPullRequest{
		Head:  req.Branch,
		Base:  req.Base,
		Title: req.Title,
		Body:  req.Body,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pull request for %s: %w", req.Branch, err)
	}

	for _, r := range req.Reviewers {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if err := a.host.RequestReviewer(ctx, owner, name, ref.Number, r); err != nil {
			slog.Warn("failed to request reviewer", "pr", ref.Number, "reviewer", r, "error", err)
		}
	}
	if err := a.host.CreateComment(ctx, owner, name, ref.Number, SummaryComment(req.Body)); err != nil {
		slog.Warn("failed to comment on pull request", "pr", ref.Number, "error", err)
	}
	return ref, nil
}

func (a *Automator) repository(ctx context.Context) (string, string, error) {
	if a.owner != "" && a.name != "" {
		return a.owner, a.name, nil
	}
	sctx, cancel := a.step(ctx)
	raw, err := a.git.RemoteURL(sctx, a.repo, a.remote)
	cancel()
	if err != nil {
		return "", "", fmt.Errorf("failed to read remote URL: %w", err)
	}
	r, err := ParseRemote(raw)
	if err != nil {
		return "", "", err
	}
	return r.Owner, r.Repo, nil
}

// resolve maps a slash-separated relative path into the working tree.
func (a *Automator) resolve(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if rel == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the repository", rel)
	}
	if clean == ".git" || strings.HasPrefix(clean, ".git"+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is inside .git", rel)
	}
	return filepath.Join(a.repo, clean), nil
}

// SplitReviewers parses a comma-separated reviewer list.
func SplitReviewers(csv string) []string {
	var out []string
	for _, r := range strings.Split(csv, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
