package git

import (
	"context"

	"github.com/steveyegge/fixbot/internal/types"
)

// Status represents the git status of a repository.
type Status struct {
	Modified  []string
	Untracked []string
	Deleted   []string
	Added     []string

	// HasChanges is true if any changes exist
	HasChanges bool
}

// CommitOptions configures a git commit operation.
type CommitOptions struct {
	// Message is the commit message
	Message string

	// Author specifies the author (optional, uses git config if empty)
	Author string

	// AddAll stages all changes before committing (git add -A)
	AddAll bool

	// AllowEmpty allows creating an empty commit
	AllowEmpty bool
}

// FileChange is the full new content of one repository file.
type FileChange struct {
	// Path is relative to the repository root, slash separated
	Path    string
	Content string
}

// PullRequestRequest describes a pull request to open from a pushed branch.
type PullRequestRequest struct {
	Branch string
	Base   string
	Title  string
	Body   string

	// Reviewers are requested one at a time; failures are not fatal
	Reviewers []string
}

// NewPullRequest is what a PullRequestHost needs to create a pull request.
type NewPullRequest struct {
	Head  string
	Base  string
	Title string
	Body  string
}

// PullRequestHost is the source-control hosting API.
type PullRequestHost interface {
	CreatePullRequest(ctx context.Context, owner, repo string, pr NewPullRequest) (*types.PullRequestRef, error)
	RequestReviewer(ctx context.Context, owner, repo string, number int, reviewer string) error
	CreateComment(ctx context.Context, owner, repo string, number int, body string) error
}
