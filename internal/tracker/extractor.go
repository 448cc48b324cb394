// Package tracker talks to the issue tracker and turns its search results
// into canonical ticket records that can be compared between polls.
package tracker

import (
	"iter"
	"slices"
	"strings"

	"github.com/steveyegge/fixbot/internal/types"
	"github.com/tidwall/gjson"
)

// Field separators of the canonical line format:
//
//	key|summary|status|description|confluence|comment1||comment2||
const (
	fieldSep   = "|"
	commentSep = "||"
)

// Paths into a tracker search response.
const (
	pathIssues      = "issues"
	pathKey         = "key"
	pathSummary     = "fields.summary"
	pathStatus      = "fields.status.name"
	pathDescription = "fields.description"
	pathConfluence  = "fields.customfield_confluence"
	pathComments    = "fields.comment.comments"
)

var (
	escaper   = strings.NewReplacer(`\`, `\\`, "|", `\|`, "\n", `\n`, "\r", "")
	unescaper = strings.NewReplacer(`\\`, `\`, `\|`, "|", `\n`, "\n")
)

// ExtractTickets parses a raw search response into tickets sorted by key.
// Invalid input, or input without an issues array, yields no tickets.
// Issues without a key cannot be tracked and are dropped.
func ExtractTickets(raw []byte) []*types.Ticket {
	if !gjson.ValidBytes(raw) {
		return nil
	}
	issues := gjson.GetBytes(raw, pathIssues)
	if !issues.IsArray() {
		return nil
	}

	var tickets []*types.Ticket
	issues.ForEach(func(_, issue gjson.Result) bool {
		key := strings.TrimSpace(issue.Get(pathKey).String())
		if key == "" {
			return true
		}
		t := &types.Ticket{
			Key:         key,
			Summary:     issue.Get(pathSummary).String(),
			Status:      issue.Get(pathStatus).String(),
			Description: richText(issue.Get(pathDescription)),
			Confluence:  richText(issue.Get(pathConfluence)),
		}
		issue.Get(pathComments).ForEach(func(_, c gjson.Result) bool {
			t.Comments = append(t.Comments, richText(c.Get("body")))
			return true
		})
		tickets = append(tickets, t)
		return true
	})

	slices.SortStableFunc(tickets, func(a, b *types.Ticket) int {
		return strings.Compare(a.Key, b.Key)
	})
	return tickets
}

// ExtractStories returns the canonical line of every ticket in raw, sorted by
// key. The output is byte-identical for identical input.
func ExtractStories(raw []byte) []string {
	tickets := ExtractTickets(raw)
	lines := make([]string, 0, len(tickets))
	for _, t := range tickets {
		lines = append(lines, FormatRecord(t))
	}
	return lines
}

// Stories is the lazy form of ExtractStories. Each range over the returned
// sequence starts from the beginning.
func Stories(raw []byte) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, line := range ExtractStories(raw) {
			if !yield(line) {
				return
			}
		}
	}
}

// FormatRecord serializes a ticket into its canonical line.
func FormatRecord(t *types.Ticket) string {
	var sb strings.Builder
	for _, f := range []string{t.Key, t.Summary, t.Status, t.Description, t.Confluence} {
		sb.WriteString(escaper.Replace(f))
		sb.WriteString(fieldSep)
	}
	for _, c := range t.Comments {
		sb.WriteString(escaper.Replace(c))
		sb.WriteString(commentSep)
	}
	return sb.String()
}

// ParseRecord reverses FormatRecord. ok is false when line has fewer than
// five fields.
func ParseRecord(line string) (t *types.Ticket, ok bool) {
	fields := splitEscaped(line)
	if len(fields) < 5 {
		return nil, false
	}
	t = &types.Ticket{
		Key:         fields[0],
		Summary:     fields[1],
		Status:      fields[2],
		Description: fields[3],
		Confluence:  fields[4],
	}
	// Comments are terminated by "||", which splits into the body and an
	// empty field.
	rest := fields[5:]
	for i := 0; i+1 < len(rest); i += 2 {
		t.Comments = append(t.Comments, rest[i])
	}
	return t, true
}

// BuildSnapshot parses canonical lines into a snapshot, skipping lines that
// do not parse.
func BuildSnapshot(lines []string) *types.Snapshot {
	tickets := make([]*types.Ticket, 0, len(lines))
	for _, l := range lines {
		if t, ok := ParseRecord(l); ok {
			tickets = append(tickets, t)
		}
	}
	return types.NewSnapshot(tickets)
}

// SnapshotFromResponse is shorthand for BuildSnapshot(ExtractStories(raw)).
func SnapshotFromResponse(raw []byte) *types.Snapshot {
	return BuildSnapshot(ExtractStories(raw))
}

// splitEscaped splits on unescaped '|' and unescapes each field.
func splitEscaped(line string) []string {
	var fields []string
	var cur strings.Builder
	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune('\\')
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '|':
			fields = append(fields, unescaper.Replace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		fields = append(fields, unescaper.Replace(cur.String()))
	}
	return fields
}

// richText returns plain text for a field that is either a string or an
// Atlassian document.
func richText(v gjson.Result) string {
	switch {
	case !v.Exists() || v.Type == gjson.Null:
		return ""
	case v.IsObject() && v.Get("type").String() == "doc":
		var sb strings.Builder
		flattenADF(v, &sb)
		return strings.TrimSpace(sb.String())
	case v.IsObject() || v.IsArray():
		return v.Raw
	default:
		return v.String()
	}
}

// blockNodes end with a line break when flattened.
var blockNodes = map[string]bool{
	"paragraph":  true,
	"heading":    true,
	"codeBlock":  true,
	"listItem":   true,
	"blockquote": true,
	"rule":       true,
}

func flattenADF(node gjson.Result, sb *strings.Builder) {
	switch node.Get("type").String() {
	case "text":
		sb.WriteString(node.Get("text").String())
		return
	case "hardBreak":
		sb.WriteString("\n")
		return
	case "mention", "emoji":
		sb.WriteString(node.Get("attrs.text").String())
		return
	}
	node.Get("content").ForEach(func(_, child gjson.Result) bool {
		flattenADF(child, sb)
		return true
	})
	if blockNodes[node.Get("type").String()] {
		sb.WriteString("\n")
	}
}
