package ai

import (
	"fmt"
	"strings"

	"github.com/steveyegge/fixbot/internal/types"
)

const suggestSystemPrompt = `You are a senior engineer triaging bug tickets.
Reply with a short, concrete remediation suggestion (one to three sentences).
Do not include code.`

const patchSystemPrompt = `You are a senior engineer fixing a bug.
Return code only: the complete corrected source of the single file that must change.
No explanations, no markdown prose. If you cannot produce a fix, return nothing.`

const summarizeSystemPrompt = `You condense bug tickets for an engineer.
Keep error messages, component names, field names and reproduction steps.`

func buildSuggestPrompt(t *types.Ticket, text string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Ticket %s (status: %s)\n\n", t.Key, orNone(t.Status))
	sb.WriteString(text)
	sb.WriteString("\n\nWhat change would fix this?")
	return sb.String()
}

func buildPatchPrompt(t *types.Ticket, s *Suggestion, clarification string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Ticket %s\n\n%s\n\nSuggested fix: %s\n", t.Key, s.PromptText, s.Text)
	if clarification != "" {
		fmt.Fprintf(&sb, "\nClarification from the team:\n%s\n", clarification)
	}
	sb.WriteString("\nReturn the corrected code only.")
	return sb.String()
}

func buildSummarizePrompt(text string, maxLength int) string {
	return fmt.Sprintf("Summarize the following ticket in at most %d characters.\n\n%s", maxLength, text)
}

func orNone(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
