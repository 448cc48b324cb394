// Package resolver locates the source file a generated patch applies to.
package resolver

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/steveyegge/fixbot/internal/types"
)

// Reason classifies a resolution failure.
type Reason string

const (
	NotFound  Reason = "not_found"
	Ambiguous Reason = "ambiguous"
)

// ResolutionError is returned when no single target file could be chosen.
type ResolutionError struct {
	TicketKey  string
	Reason     Reason
	Candidates []string
}

func (e *ResolutionError) Error() string {
	if e.Reason == Ambiguous {
		return fmt.Sprintf("%s: ambiguous target file (%d candidates: %s)",
			e.TicketKey, len(e.Candidates), strings.Join(e.Candidates, ", "))
	}
	return fmt.Sprintf("%s: no target file found", e.TicketKey)
}

// DefaultExcludeDirs are never searched.
var DefaultExcludeDirs = []string{".git", "vendor", "node_modules"}

// Strategy proposes candidate files. Returning no candidates passes the
// decision to the next strategy.
type Strategy interface {
	Name() string
	Candidates(ctx context.Context, tree *Tree, t *types.Ticket, patch string) ([]string, error)
}

// Resolver runs strategies in order over a repository tree.
type Resolver struct {
	Root        string
	Strategies  []Strategy
	ExcludeDirs []string
}

// New creates a resolver with the declaration and keyword strategies.
// extraKeywords adds to the built-in keyword table.
func New(root string, extraKeywords map[string]string) *Resolver {
	return &Resolver{
		Root: root,
		Strategies: []Strategy{
			DeclarationStrategy{},
			NewKeywordStrategy(extraKeywords),
		},
		ExcludeDirs: DefaultExcludeDirs,
	}
}

// Resolve returns the repository-relative path (slash separated) of the
// single file the patch targets.
func (r *Resolver) Resolve(ctx context.Context, t *types.Ticket, patch string) (string, error) {
	tree, err := Scan(ctx, r.Root, r.ExcludeDirs)
	if err != nil {
		return "", err
	}
	for _, s := range r.Strategies {
		cands, err := s.Candidates(ctx, tree, t, patch)
		if err != nil {
			return "", fmt.Errorf("%s strategy failed: %w", s.Name(), err)
		}
		cands = dedupe(cands)
		switch len(cands) {
		case 0:
			continue
		case 1:
			return cands[0], nil
		default:
			return "", &ResolutionError{TicketKey: t.Key, Reason: Ambiguous, Candidates: cands}
		}
	}
	return "", &ResolutionError{TicketKey: t.Key, Reason: NotFound}
}

// FromAnswer picks the first whitespace-separated token of a human answer
// that names an existing file under the root.
func (r *Resolver) FromAnswer(answer string) (string, bool) {
	for _, tok := range strings.Fields(answer) {
		tok = strings.Trim(tok, "`'\",;:()")
		if tok == "" {
			continue
		}
		rel := filepath.ToSlash(filepath.Clean(tok))
		if filepath.IsAbs(tok) {
			var err error
			if rel, err = filepath.Rel(r.Root, tok); err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
		}
		if strings.HasPrefix(rel, "../") || rel == ".." {
			continue
		}
		info, err := os.Stat(filepath.Join(r.Root, filepath.FromSlash(rel)))
		if err == nil && !info.IsDir() {
			return rel, true
		}
	}
	return "", false
}

// Tree is a snapshot of the files under a root.
type Tree struct {
	Root  string
	Files []string // slash-separated, relative, sorted
}

// Scan walks root skipping excluded directories.
func Scan(ctx context.Context, root string, exclude []string) (*Tree, error) {
	skip := make(map[string]bool, len(exclude))
	for _, d := range exclude {
		skip[d] = true
	}
	tree := &Tree{Root: root}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skip[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		tree.Files = append(tree.Files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	sort.Strings(tree.Files)
	return tree, nil
}

// ByStem returns files whose base name without extension equals name.
func (t *Tree) ByStem(name string) []string {
	var out []string
	for _, f := range t.Files {
		base := filepath.Base(f)
		if strings.TrimSuffix(base, filepath.Ext(base)) == name {
			out = append(out, f)
		}
	}
	return out
}

// Containing returns files whose content matches re. Unreadable files are
// skipped.
func (t *Tree) Containing(ctx context.Context, re *regexp.Regexp) ([]string, error) {
	var out []string
	for _, f := range t.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(t.Root, filepath.FromSlash(f)))
		if err != nil {
			continue
		}
		if re.Match(data) {
			out = append(out, f)
		}
	}
	return out, nil
}

func dedupe(in []string) []string {
	if len(in) < 2 {
		return in
	}
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
