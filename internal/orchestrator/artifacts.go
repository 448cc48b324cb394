package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
	"github.com/natefinch/atomic"
)

// unifiedDiff renders the change to path as a unified diff, empty when the
// content is unchanged.
func unifiedDiff(path, before, after string) string {
	if before == after {
		return ""
	}
	edits := myers.ComputeEdits(span.URIFromPath(path), before, after)
	return fmt.Sprint(gotextdiff.ToUnified("a/"+path, "b/"+path, before, edits))
}

// appendAgentLog appends one human-readable entry per attempt to the agent
// log.
func appendAgentLog(path string, results []*AttemptResult) error {
	if len(results) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open agent log: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for _, r := range results {
		writeLogEntry(&sb, r)
	}
	if _, err := f.WriteString(sb.String()); err != nil {
		return fmt.Errorf("failed to append agent log: %w", err)
	}
	return nil
}

func writeLogEntry(sb *strings.Builder, r *AttemptResult) {
	a := r.Attempt
	fmt.Fprintf(sb, "[%s] %s %s\n", a.StartedAt.Format(time.RFC3339), a.TicketKey, r.Outcome)
	if r.Ticket != nil && r.Ticket.Summary != "" {
		fmt.Fprintf(sb, "  Summary: %s\n", r.Ticket.Summary)
	}
	if a.Suggestion != "" {
		fmt.Fprintf(sb, "  Suggestion: %s\n", oneLine(a.Suggestion))
	}
	if a.TargetFile != "" {
		fmt.Fprintf(sb, "  File: %s\n", a.TargetFile)
	}
	if a.Branch != "" {
		fmt.Fprintf(sb, "  Branch: %s\n", a.Branch)
	}
	if a.PullRequest != nil {
		fmt.Fprintf(sb, "  Pull request: %s\n", a.PullRequest.URL)
	}
	if r.Reason != "" {
		fmt.Fprintf(sb, "  Reason: %s\n", r.Reason)
	}
	if r.Err != nil {
		fmt.Fprintf(sb, "  Error: %v\n", r.Err)
	}
	sb.WriteString("\n")
}

// writeLastBatch replaces the last-batch artifact with the attempts of one
// cycle. Readers never observe a partially written file.
func writeLastBatch(path string, generated time.Time, results []*AttemptResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if err := atomic.WriteFile(path, strings.NewReader(renderBatch(generated, results))); err != nil {
		return fmt.Errorf("failed to write last batch: %w", err)
	}
	return nil
}

func renderBatch(generated time.Time, results []*AttemptResult) string {
	var sb strings.Builder
	sb.WriteString("# Last batch\n\n")
	fmt.Fprintf(&sb, "Generated: %s\n", generated.Format(time.RFC3339))
	fmt.Fprintf(&sb, "Attempts: %d\n", len(results))

	for _, r := range results {
		a := r.Attempt
		sb.WriteString("\n## ")
		sb.WriteString(a.TicketKey)
		if r.Ticket != nil && r.Ticket.Summary != "" {
			sb.WriteString(": ")
			sb.WriteString(oneLine(r.Ticket.Summary))
		}
		sb.WriteString("\n\n")
		fmt.Fprintf(&sb, "- Outcome: %s\n", r.Outcome)
		if r.Reason != "" {
			fmt.Fprintf(&sb, "- Reason: %s\n", r.Reason)
		}
		if r.Err != nil {
			fmt.Fprintf(&sb, "- Error: %v\n", r.Err)
		}
		if a.Branch != "" {
			fmt.Fprintf(&sb, "- Branch: `%s`\n", a.Branch)
		}
		if a.CommitHash != "" {
			fmt.Fprintf(&sb, "- Commit: `%s`\n", a.CommitHash)
		}
		if a.PullRequest != nil {
			fmt.Fprintf(&sb, "- Pull request: %s\n", a.PullRequest.URL)
		}
		if a.Suggestion != "" {
			fmt.Fprintf(&sb, "\n### Suggestion\n\n%s\n", strings.TrimSpace(a.Suggestion))
		}
		sb.WriteString("\n### Checklist\n\n")
		sb.WriteString(a.Checklist.String())
		switch {
		case a.Diff != "":
			fmt.Fprintf(&sb, "\n### Diff\n\n```diff\n%s```\n", ensureNewline(a.Diff))
		case a.Patch != "":
			fmt.Fprintf(&sb, "\n### Patch\n\n```\n%s```\n", ensureNewline(a.Patch))
		}
	}
	return sb.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

// pullRequests returns the attempts that opened a pull request.
func pullRequests(results []*AttemptResult) []*AttemptResult {
	var out []*AttemptResult
	for _, r := range results {
		if r.Attempt.PullRequest != nil {
			out = append(out, r)
		}
	}
	return out
}
