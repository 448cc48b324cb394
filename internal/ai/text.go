package ai

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// Matches ```lang\n...\n``` with or without newlines around the body.
	codeFenceStartRegex = regexp.MustCompile(`(?s)^` + "`{3}" + `[\w+#.-]*[ \t]*\n?(.*?)\n?` + "`{3}" + `\s*$`)
	codeFenceAnyRegex   = regexp.MustCompile(`(?s)` + "`{3}" + `[\w+#.-]*[ \t]*\n?(.*?)\n?` + "`{3}")
)

// stripCodeFences removes markdown fences from model output. When the text
// contains fenced blocks among prose, the first block is returned.
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if m := codeFenceStartRegex.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := codeFenceAnyRegex.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(text, "`") && strings.HasSuffix(text, "`") && len(text) > 1 {
		return strings.TrimSpace(text[1 : len(text)-1])
	}
	return text
}

// safeTruncateString cuts s to at most maxLen bytes without splitting a
// UTF-8 sequence.
func safeTruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 0 {
		return ""
	}
	truncated := s[:maxLen]
	for i := 0; i < 4 && len(truncated) > 0; i++ {
		if utf8.ValidString(truncated) {
			return truncated
		}
		truncated = truncated[:len(truncated)-1]
	}
	return ""
}

// headTail keeps the start and end of s within maxLen bytes, marking the cut.
func headTail(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	const marker = "\n...[truncated]...\n"
	budget := maxLen - len(marker)
	if budget <= 0 {
		return safeTruncateString(s, maxLen)
	}
	head := safeTruncateString(s, budget*2/5)
	tailLen := budget - len(head)
	tail := s[len(s)-tailLen:]
	for len(tail) > 0 && !utf8.ValidString(tail) {
		tail = tail[1:]
	}
	return head + marker + tail
}
