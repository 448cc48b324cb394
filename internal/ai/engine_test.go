package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/fixbot/internal/types"
)

// fakeCompleter answers per operation and records every request.
type fakeCompleter struct {
	mu      sync.Mutex
	answers map[string][]string
	errs    map[string]error
	calls   []fakeCall
}

type fakeCall struct {
	operation string
	req       Request
}

func (f *fakeCompleter) Complete(_ context.Context, operation string, req Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fakeCall{operation, req})
	if err := f.errs[operation]; err != nil {
		return "", err
	}
	queue := f.answers[operation]
	if len(queue) == 0 {
		return "", nil
	}
	out := queue[0]
	if len(queue) > 1 {
		f.answers[operation] = queue[1:]
	}
	return out, nil
}

func (f *fakeCompleter) callsFor(operation string) []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeCall
	for _, c := range f.calls {
		if c.operation == operation {
			out = append(out, c)
		}
	}
	return out
}

type staticClarifier struct {
	answer string
	got    []ClarificationRequest
}

func (s *staticClarifier) RequestClarification(_ context.Context, req ClarificationRequest) (string, error) {
	s.got = append(s.got, req)
	return s.answer, nil
}

const goodPatch = `func validateClaimDate(d time.Time) error {
	if d.IsZero() {
		return errors.New("claim date required")
	}
	return nil
}`

func newTestEngine(t *testing.T, c Completer, clarifier Clarifier) *Engine {
	t.Helper()
	e, err := NewEngine(EngineConfig{Client: c, Clarifier: clarifier})
	require.NoError(t, err)
	return e
}

func TestNewEngineRequiresClient(t *testing.T) {
	_, err := NewEngine(EngineConfig{})
	assert.Error(t, err)
}

func TestSuggestUsesModel(t *testing.T) {
	fc := &fakeCompleter{answers: map[string][]string{"suggest": {"  Validate the claim date before saving.  "}}}
	e := newTestEngine(t, fc, nil)

	ticket := &types.Ticket{Key: "ABC-1", Summary: "Validation fails", Description: "Claim date accepted when empty"}
	s, err := e.Suggest(context.Background(), ticket)
	require.NoError(t, err)

	assert.Equal(t, "Validate the claim date before saving.", s.Text)
	assert.Equal(t, SourceModel, s.Source)
	assert.False(t, s.Summarized)
	assert.False(t, s.Overridden)
	assert.Equal(t, []State{StateNew, StatePromptOverride, StateSuggestionGenerated}, s.States)

	calls := fc.callsFor("suggest")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].req.Prompt, "ABC-1")
	assert.Contains(t, calls[0].req.Prompt, "Claim date accepted when empty")
}

func TestSuggestFallsBackToRules(t *testing.T) {
	tests := []struct {
		name string
		fc   *fakeCompleter
	}{
		{"model error", &fakeCompleter{errs: map[string]error{"suggest": ErrUnavailable}}},
		{"empty answer", &fakeCompleter{answers: map[string][]string{"suggest": {"   "}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, tt.fc, nil)
			s, err := e.Suggest(context.Background(), &types.Ticket{Key: "ABC-2", Summary: "Null pointer in ClaimService"})
			require.NoError(t, err)
			assert.Equal(t, SourceRules, s.Source)
			assert.Equal(t, "Add null checks to prevent NullPointerException.", s.Text)
		})
	}
}

func TestSuggestWithUnreachableProvider(t *testing.T) {
	client := NewClient(NoopProvider{Reason: "no key"}, RetryConfig{Timeout: time.Second})
	e := newTestEngine(t, client, nil)

	s, err := e.Suggest(context.Background(), &types.Ticket{Key: "ABC-3", Summary: "Null pointer on submit"})
	require.NoError(t, err)
	assert.Equal(t, "Add null checks to prevent NullPointerException.", s.Text)
}

func TestSuggestSummarizesLongTickets(t *testing.T) {
	long := strings.Repeat("stack frame line\n", 400)

	t.Run("model summary", func(t *testing.T) {
		fc := &fakeCompleter{answers: map[string][]string{
			"summarize": {"Short summary."},
			"suggest":   {"Fix it."},
		}}
		e := newTestEngine(t, fc, nil)
		s, err := e.Suggest(context.Background(), &types.Ticket{Key: "ABC-4", Description: long})
		require.NoError(t, err)
		assert.True(t, s.Summarized)
		assert.Equal(t, "Short summary.", s.PromptText)
		assert.Equal(t, []State{StateNew, StateSummarized, StatePromptOverride, StateSuggestionGenerated}, s.States)
	})

	t.Run("truncation fallback", func(t *testing.T) {
		fc := &fakeCompleter{errs: map[string]error{"summarize": errors.New("503 service unavailable")}}
		e := newTestEngine(t, fc, nil)
		s, err := e.Suggest(context.Background(), &types.Ticket{Key: "ABC-4", Description: long})
		require.NoError(t, err)
		assert.True(t, s.Summarized)
		assert.LessOrEqual(t, len(s.PromptText), 1500)
		assert.Contains(t, s.PromptText, "[truncated]")
	})
}

func TestSuggestConsumesOverrideOnce(t *testing.T) {
	fc := &fakeCompleter{answers: map[string][]string{"suggest": {"Fix it."}}}
	e := newTestEngine(t, fc, nil)
	e.Override().Set("Focus on the date parser")

	first, err := e.Suggest(context.Background(), &types.Ticket{Key: "ABC-5", Summary: "Bad date"})
	require.NoError(t, err)
	assert.True(t, first.Overridden)
	assert.Equal(t, "Focus on the date parser", first.PromptText)
	assert.Empty(t, e.Override().Get())

	second, err := e.Suggest(context.Background(), &types.Ticket{Key: "ABC-6", Summary: "Bad date"})
	require.NoError(t, err)
	assert.False(t, second.Overridden)
}

func TestSuggestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := newTestEngine(t, &fakeCompleter{}, nil)
	_, err := e.Suggest(ctx, &types.Ticket{Key: "ABC-7"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGeneratePatchAccepted(t *testing.T) {
	fc := &fakeCompleter{answers: map[string][]string{"patch": {"```go\n" + goodPatch + "\n```"}}}
	e := newTestEngine(t, fc, nil)

	ticket := &types.Ticket{Key: "ABC-1", Summary: "Validation"}
	p, err := e.GeneratePatch(context.Background(), ticket, &Suggestion{Text: "Validate dates"})
	require.NoError(t, err)
	assert.Equal(t, goodPatch, p.Code)
	assert.Equal(t, []State{StatePatchGenerated, StatePatchAccepted, StateTerminal}, p.States)
}

func TestGeneratePatchNeedsClarification(t *testing.T) {
	tests := []struct {
		name  string
		patch string
	}{
		{"empty", ""},
		{"placeholder", "// TODO"},
		{"echoes suggestion", "Validate dates"},
		{"too short", "x := 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeCompleter{answers: map[string][]string{"patch": {tt.patch}}}
			e := newTestEngine(t, fc, nil)

			p, err := e.GeneratePatch(context.Background(), &types.Ticket{Key: "ABC-1"}, &Suggestion{Text: "Validate dates"})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNeedsClarification)
			var ce *ClarificationError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, "ABC-1", ce.TicketKey)
			assert.Empty(t, p.Code)
			assert.Contains(t, p.States, StateNeedsClarification)
		})
	}
}

func TestGeneratePatchRetriesWithClarification(t *testing.T) {
	fc := &fakeCompleter{answers: map[string][]string{"patch": {"TODO", goodPatch}}}
	cl := &staticClarifier{answer: "Edit validateClaimDate in validation.go"}
	e := newTestEngine(t, fc, cl)

	p, err := e.GeneratePatch(context.Background(), &types.Ticket{Key: "ABC-1"}, &Suggestion{Text: "Validate dates"})
	require.NoError(t, err)
	assert.Equal(t, goodPatch, p.Code)
	assert.Equal(t, "Edit validateClaimDate in validation.go", p.Clarification)

	require.Len(t, cl.got, 1)
	assert.Equal(t, "ABC-1", cl.got[0].TicketKey)

	calls := fc.callsFor("patch")
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].req.Prompt, "Edit validateClaimDate in validation.go")
}

func TestGeneratePatchClarifiedButStillUnusable(t *testing.T) {
	fc := &fakeCompleter{answers: map[string][]string{"patch": {"TODO"}}}
	e := newTestEngine(t, fc, &staticClarifier{answer: "try harder"})

	_, err := e.GeneratePatch(context.Background(), &types.Ticket{Key: "ABC-1"}, &Suggestion{Text: "x"})
	assert.ErrorIs(t, err, ErrNeedsClarification)
	assert.Len(t, fc.callsFor("patch"), 2)
}
