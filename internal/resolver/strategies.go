package resolver

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/steveyegge/fixbot/internal/types"
)

const declKeywords = `class|interface|enum|record|struct|type|func`

var declarationRegex = regexp.MustCompile(`\b(?:` + declKeywords + `)\s+(?:\([^)]*\)\s*)?([A-Za-z_][A-Za-z0-9_]*)`)

// DeclarationStrategy matches the types and functions a patch declares
// against file names, then against declarations in file contents.
type DeclarationStrategy struct{}

// Name implements Strategy.
func (DeclarationStrategy) Name() string { return "declaration" }

// Candidates implements Strategy.
func (DeclarationStrategy) Candidates(ctx context.Context, tree *Tree, _ *types.Ticket, patch string) ([]string, error) {
	names := declaredNames(patch)
	if len(names) == 0 {
		return nil, nil
	}

	var byName []string
	for _, n := range names {
		byName = append(byName, tree.ByStem(n)...)
	}
	if len(byName) > 0 {
		return byName, nil
	}

	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = regexp.QuoteMeta(n)
	}
	re := regexp.MustCompile(`\b(?:` + declKeywords + `)\s+(?:\([^)]*\)\s*)?(?:` + strings.Join(quoted, "|") + `)\b`)
	return tree.Containing(ctx, re)
}

func declaredNames(patch string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range declarationRegex.FindAllStringSubmatch(patch, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

type keywordTarget struct {
	keyword    string
	identifier string
}

// builtinKeywords is ordered; earlier entries take precedence.
var builtinKeywords = []keywordTarget{
	{"claimservice", "ClaimService"},
	{"validation", "validateClaimDate"},
}

// KeywordStrategy maps keywords in the ticket or patch to a known
// identifier and finds the file that defines or mentions it.
type KeywordStrategy struct {
	table []keywordTarget
}

// NewKeywordStrategy returns the built-in table followed by extra, in
// keyword order. Keywords are matched case-insensitively.
func NewKeywordStrategy(extra map[string]string) KeywordStrategy {
	table := append([]keywordTarget(nil), builtinKeywords...)
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		table = append(table, keywordTarget{strings.ToLower(k), extra[k]})
	}
	return KeywordStrategy{table: table}
}

// Name implements Strategy.
func (KeywordStrategy) Name() string { return "keyword" }

// Candidates implements Strategy. The first keyword with matching files
// decides.
func (s KeywordStrategy) Candidates(ctx context.Context, tree *Tree, t *types.Ticket, patch string) ([]string, error) {
	haystack := strings.ToLower(t.Summary + " " + t.Description + " " + patch)
	for _, kt := range s.table {
		if kt.keyword == "" || kt.identifier == "" || !strings.Contains(haystack, kt.keyword) {
			continue
		}
		if files := tree.ByStem(kt.identifier); len(files) > 0 {
			return files, nil
		}
		files, err := tree.Containing(ctx, regexp.MustCompile(`\b`+regexp.QuoteMeta(kt.identifier)+`\b`))
		if err != nil {
			return nil, err
		}
		if len(files) > 0 {
			return files, nil
		}
	}
	return nil, nil
}
