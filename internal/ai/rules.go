package ai

import "strings"

// rule maps keywords to a canned suggestion.
type rule struct {
	keywords   []string
	suggestion string
}

// rules is ordered; the first rule with a matching keyword wins.
var rules = []rule{
	{[]string{"validation"}, "Check and update validation logic as per requirements."},
	{[]string{"null pointer"}, "Add null checks to prevent NullPointerException."},
	{[]string{"calculation", "amount mismatch"}, "Review calculation logic and ensure correct field mapping."},
	{[]string{"performance"}, "Optimize code for better performance."},
	{[]string{"field mismatch"}, "Check field mapping and data consistency between systems."},
}

// GenericSuggestion is used when a ticket has neither summary nor description.
const GenericSuggestion = "Review and address described issue."

// RuleSuggestion returns the deterministic fallback suggestion for a ticket.
// Matching is case-insensitive over summary and description.
func RuleSuggestion(summary, description string) string {
	haystack := strings.ToLower(summary + " " + description)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(haystack, kw) {
				return r.suggestion
			}
		}
	}

	summary = strings.TrimSpace(summary)
	description = strings.TrimSpace(description)
	switch {
	case summary != "" && description != "":
		return "Investigate: " + summary + ". " + description
	case summary != "":
		return "Investigate: " + summary
	case description != "":
		return "Investigate: " + description
	default:
		return GenericSuggestion
	}
}
