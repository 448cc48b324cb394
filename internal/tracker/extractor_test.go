package tracker

import (
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchResponse = `{
  "issues": [
    {
      "key": "ABC-2",
      "fields": {
        "summary": "Amount mismatch on invoice",
        "status": {"name": "Open"},
        "description": "Totals differ | by one cent",
        "comment": {"comments": [{"body": "first"}, {"body": "second"}]}
      }
    },
    {
      "key": "ABC-1",
      "fields": {
        "summary": "Validation fails on date field",
        "status": {"name": "In Progress"},
        "description": {
          "type": "doc", "version": 1,
          "content": [
            {"type": "paragraph", "content": [{"type": "text", "text": "Date "}, {"type": "text", "text": "is rejected"}]},
            {"type": "paragraph", "content": [{"type": "text", "text": "on save"}]}
          ]
        },
        "customfield_confluence": "Design page"
      }
    },
    {
      "fields": {"summary": "no key"}
    }
  ]
}`

func TestExtractStoriesSortedAndComplete(t *testing.T) {
	lines := ExtractStories([]byte(searchResponse))
	require.Len(t, lines, 2)

	assert.True(t, strings.HasPrefix(lines[0], "ABC-1|"))
	assert.True(t, strings.HasPrefix(lines[1], "ABC-2|"))
	assert.Equal(t, `ABC-1|Validation fails on date field|In Progress|Date is rejected\non save|Design page|`, lines[0])
	assert.Equal(t, `ABC-2|Amount mismatch on invoice|Open|Totals differ \| by one cent||first||second||`, lines[1])
}

func TestExtractStoriesIdempotent(t *testing.T) {
	first := ExtractStories([]byte(searchResponse))
	second := ExtractStories([]byte(searchResponse))
	assert.Equal(t, strings.Join(first, "\n"), strings.Join(second, "\n"))
	assert.True(t, slices.IsSorted(first))
}

func TestExtractStoriesMissingFields(t *testing.T) {
	raw := `{"issues":[{"key":"X-9","fields":{}}]}`
	lines := ExtractStories([]byte(raw))
	require.Len(t, lines, 1)
	assert.Equal(t, "X-9|||||", lines[0])

	tk, ok := ParseRecord(lines[0])
	require.True(t, ok)
	assert.Equal(t, "X-9", tk.Key)
	assert.Empty(t, tk.Summary)
	assert.Empty(t, tk.Comments)
}

func TestExtractStoriesInvalidInput(t *testing.T) {
	inputs := map[string]string{
		"not json":        `{"issues": [`,
		"no issues":       `{"total": 0}`,
		"issues not list": `{"issues": {"key": "A-1"}}`,
		"empty":           ``,
		"html":            `<html>error</html>`,
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			assert.Empty(t, ExtractStories([]byte(in)))
		})
	}
}

func TestStoriesRestartable(t *testing.T) {
	seq := Stories([]byte(searchResponse))

	var first, second []string
	for l := range seq {
		first = append(first, l)
	}
	for l := range seq {
		second = append(second, l)
		break
	}
	assert.Len(t, first, 2)
	require.Len(t, second, 1)
	assert.Equal(t, first[0], second[0])
}

func TestParseRecordRoundTrip(t *testing.T) {
	tickets := ExtractTickets([]byte(searchResponse))
	for _, tk := range tickets {
		parsed, ok := ParseRecord(FormatRecord(tk))
		require.True(t, ok)
		assert.True(t, tk.Equal(parsed), "round trip changed %s: %+v vs %+v", tk.Key, tk, parsed)
	}

	_, ok := ParseRecord("A-1|only|three")
	assert.False(t, ok)
}

func TestRichTextFlattensMentionsAndBreaks(t *testing.T) {
	raw := `{"issues":[{"key":"A-1","fields":{"description":{"type":"doc","version":1,"content":[
	  {"type":"paragraph","content":[
	    {"type":"mention","attrs":{"text":"@dana"}},
	    {"type":"text","text":" see"},
	    {"type":"hardBreak"},
	    {"type":"text","text":"log"}
	  ]}
	]}}}]}`
	tickets := ExtractTickets([]byte(raw))
	require.Len(t, tickets, 1)
	assert.Equal(t, "@dana see\nlog", tickets[0].Description)
}
