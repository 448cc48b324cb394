package git

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
)

// Git runs the git CLI against a working tree.
type Git struct {
	// gitPath is the path to the git executable
	gitPath string
}

// NewGit creates a new Git instance.
// It verifies that git is available on the system.
func NewGit(ctx context.Context) (*Git, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}

	cmd := exec.CommandContext(ctx, gitPath, "version")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git command failed: %w", err)
	}

	return &Git{gitPath: gitPath}, nil
}

// userinfoRegex matches credentials embedded in URLs.
var userinfoRegex = regexp.MustCompile(`(https?://)[^/@\s]+@`)

// redact strips embedded credentials from git output.
func redact(s string) string {
	return userinfoRegex.ReplaceAllString(s, "${1}***@")
}

// run executes git in repoPath. Errors carry git's combined output with any
// URL credentials removed.
// SECURITY: repoPath must be a validated, trusted path.
func (g *Git) run(ctx context.Context, repoPath string, args ...string) (string, error) {
	full := append([]string{"-C", repoPath}, args...)
	cmd := exec.CommandContext(ctx, g.gitPath, full...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s failed in %s: %w: %s", args[0], repoPath, err, redact(strings.TrimSpace(string(out))))
	}
	return string(out), nil
}

// Fetch updates remote-tracking refs.
func (g *Git) Fetch(ctx context.Context, repoPath, remote string) error {
	_, err := g.run(ctx, repoPath, "fetch", remote)
	return err
}

// Checkout switches to an existing branch.
func (g *Git) Checkout(ctx context.Context, repoPath, branch string) error {
	_, err := g.run(ctx, repoPath, "checkout", branch)
	return err
}

// Pull fast-forwards the current branch from remote.
func (g *Git) Pull(ctx context.Context, repoPath, remote, branch string) error {
	_, err := g.run(ctx, repoPath, "pull", "--ff-only", remote, branch)
	return err
}

// CreateBranch creates name at HEAD and switches to it, resetting an
// existing branch of the same name.
func (g *Git) CreateBranch(ctx context.Context, repoPath, name string) error {
	_, err := g.run(ctx, repoPath, "checkout", "-B", name)
	return err
}

// CurrentBranch returns the checked-out branch name.
func (g *Git) CurrentBranch(ctx context.Context, repoPath string) (string, error) {
	out, err := g.run(ctx, repoPath, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// AddAll stages every change in the working tree.
func (g *Git) AddAll(ctx context.Context, repoPath string) error {
	_, err := g.run(ctx, repoPath, "add", "-A")
	return err
}

// Commit creates a commit and returns its hash.
// SECURITY: repoPath must be a validated, trusted path.
func (g *Git) Commit(ctx context.Context, repoPath string, opts CommitOptions) (string, error) {
	if opts.Message == "" {
		return "", fmt.Errorf("commit message is required")
	}

	if opts.AddAll {
		if err := g.AddAll(ctx, repoPath); err != nil {
			return "", err
		}
	}

	args := []string{"commit", "-m", opts.Message}
	if opts.Author != "" {
		args = append(args, "--author", opts.Author)
	}
	if opts.AllowEmpty {
		args = append(args, "--allow-empty")
	}
	if _, err := g.run(ctx, repoPath, args...); err != nil {
		return "", err
	}

	out, err := g.run(ctx, repoPath, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to get commit hash in %s: %w", repoPath, err)
	}
	return strings.TrimSpace(out), nil
}

// RemoteURL returns the fetch URL of remote.
func (g *Git) RemoteURL(ctx context.Context, repoPath, remote string) (string, error) {
	out, err := g.run(ctx, repoPath, "remote", "get-url", remote)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// SetRemoteURL replaces the URL of remote.
func (g *Git) SetRemoteURL(ctx context.Context, repoPath, remote, url string) error {
	_, err := g.run(ctx, repoPath, "remote", "set-url", remote, url)
	return err
}

// Push pushes branch to remote and sets upstream. The remote branch is
// overwritten only while it still matches our remote-tracking ref, so a
// branch rebuilt from base can be pushed again.
func (g *Git) Push(ctx context.Context, repoPath, remote, branch string) error {
	_, err := g.run(ctx, repoPath, "push", "--force-with-lease="+branch, "-u", remote, branch)
	return err
}

// Diff returns the unstaged diff, or the staged diff when staged is true.
func (g *Git) Diff(ctx context.Context, repoPath string, staged bool) (string, error) {
	args := []string{"diff"}
	if staged {
		args = append(args, "--staged")
	}
	return g.run(ctx, repoPath, args...)
}

// GetStatus returns the git status of the repository.
// SECURITY: repoPath must be a validated, trusted path.
func (g *Git) GetStatus(ctx context.Context, repoPath string) (*Status, error) {
	output, err := g.run(ctx, repoPath, "status", "--porcelain")
	if err != nil {
		return nil, err
	}

	status := &Status{}
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 4 {
			continue
		}

		code := line[0:2]
		path := line[3:]

		// XY where X=index, Y=working tree
		switch {
		case code == "??":
			status.Untracked = append(status.Untracked, path)
		case code[0] == 'A':
			status.Added = append(status.Added, path)
		case code[0] == 'D' || code[1] == 'D':
			status.Deleted = append(status.Deleted, path)
		default:
			status.Modified = append(status.Modified, path)
		}
		status.HasChanges = true
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse git status: %w", err)
	}
	return status, nil
}
