package git

import (
	"fmt"
	"strings"
)

// CommentPrefix marks text fixbot posts on pull requests and tickets.
const CommentPrefix = "[fixbot]"

// CommitMessage builds the commit message for a ticket fix.
func CommitMessage(key, summary, suggestion string) string {
	subject := fmt.Sprintf("fix(%s): %s", key, firstLine(summary))
	if summary == "" {
		subject = fmt.Sprintf("fix(%s): apply suggested fix", key)
	}
	var sb strings.Builder
	sb.WriteString(truncateSubject(subject))
	if suggestion != "" {
		sb.WriteString("\n\n")
		sb.WriteString(strings.TrimSpace(suggestion))
	}
	fmt.Fprintf(&sb, "\n\nTicket: %s", key)
	return sb.String()
}

// PullRequestTitle is the title for a ticket fix pull request.
func PullRequestTitle(key, summary string) string {
	if summary == "" {
		return fmt.Sprintf("[%s] Automated fix", key)
	}
	return fmt.Sprintf("[%s] %s", key, firstLine(summary))
}

// PullRequestBody describes the fix for reviewers.
func PullRequestBody(key, suggestion, targetFile, checklist string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Automated fix for %s.\n\n", key)
	fmt.Fprintf(&sb, "**Suggested fix:** %s\n\n", strings.TrimSpace(suggestion))
	if targetFile != "" {
		fmt.Fprintf(&sb, "**File:** `%s`\n\n", targetFile)
	}
	if checklist != "" {
		sb.WriteString(checklist)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// SummaryComment is the single comment posted on a new pull request.
func SummaryComment(body string) string {
	return CommentPrefix + " Applied suggested fix. See: " + body
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}

func truncateSubject(s string) string {
	const max = 72
	if len(s) <= max {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
