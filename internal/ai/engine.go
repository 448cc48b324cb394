// Package ai turns tickets into fix suggestions and source patches using a
// language model, falling back to a keyword rule table when no model answers.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/steveyegge/fixbot/internal/types"
)

// State is a step of the per-ticket suggestion state machine.
type State string

const (
	StateNew                 State = "NEW"
	StateSummarized          State = "SUMMARIZED"
	StatePromptOverride      State = "PROMPT_OVERRIDE_CHECK"
	StateSuggestionGenerated State = "SUGGESTION_GENERATED"
	StatePatchGenerated      State = "PATCH_GENERATED"
	StatePatchAccepted       State = "PATCH_ACCEPTED"
	StateNeedsClarification  State = "NEEDS_CLARIFICATION"
	StateTerminal            State = "TERMINAL"
)

// Source records where a suggestion came from.
type Source string

const (
	SourceModel Source = "model"
	SourceRules Source = "rules"
)

// ErrNeedsClarification is wrapped by ClarificationError.
var ErrNeedsClarification = errors.New("fix needs clarification")

// ClarificationError reports an inconclusive fix that no human resolved.
type ClarificationError struct {
	TicketKey string
	Reason    string
}

func (e *ClarificationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.TicketKey, ErrNeedsClarification, e.Reason)
}

func (e *ClarificationError) Unwrap() error { return ErrNeedsClarification }

// Suggestion is the natural-language remediation for a ticket.
type Suggestion struct {
	TicketKey string
	Text      string
	Source    Source
	// PromptText is the ticket text fed to the model: summarized, or the
	// operator override when one was consumed.
	PromptText string
	Summarized bool
	Overridden bool
	States     []State
}

// Patch is generated source code for a suggestion.
type Patch struct {
	Code          string
	Clarification string
	States        []State
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	Client    Completer
	Clarifier Clarifier       // default NoInputClarifier
	Override  *PromptOverride // optional one-shot prompt slot

	SummarizeThreshold int // canonical text length that triggers summarization (default 4000)
	SummaryLength      int // target summary length (default 1500)
	MinPatchLength     int // shorter patches need clarification (default 40)
	// ClarificationTimeout bounds each human-input request (default 2m).
	ClarificationTimeout time.Duration
	MaxTokens            int
}

// Engine produces suggestions and patches.
type Engine struct {
	client    Completer
	clarifier Clarifier
	override  *PromptOverride

	summarizeThreshold int
	summaryLength      int
	minPatchLength     int
	clarifyTimeout     time.Duration
	maxTokens          int
}

// NewEngine creates an engine, applying defaults.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("model client is required")
	}
	e := &Engine{
		client:             cfg.Client,
		clarifier:          cfg.Clarifier,
		override:           cfg.Override,
		summarizeThreshold: cfg.SummarizeThreshold,
		summaryLength:      cfg.SummaryLength,
		minPatchLength:     cfg.MinPatchLength,
		clarifyTimeout:     cfg.ClarificationTimeout,
		maxTokens:          cfg.MaxTokens,
	}
	if e.clarifier == nil {
		e.clarifier = NoInputClarifier{}
	}
	if e.override == nil {
		e.override = &PromptOverride{}
	}
	if e.summarizeThreshold <= 0 {
		e.summarizeThreshold = 4000
	}
	if e.summaryLength <= 0 {
		e.summaryLength = 1500
	}
	if e.minPatchLength <= 0 {
		e.minPatchLength = 40
	}
	if e.clarifyTimeout <= 0 {
		e.clarifyTimeout = 2 * time.Minute
	}
	return e, nil
}

// Override returns the engine's prompt override slot.
func (e *Engine) Override() *PromptOverride { return e.override }

// Suggest produces a suggestion for t. Model failures fall back to the rule
// table; the only error returned is context cancellation.
func (e *Engine) Suggest(ctx context.Context, t *types.Ticket) (*Suggestion, error) {
	s := &Suggestion{TicketKey: t.Key, States: []State{StateNew}}

	text := t.Text()
	if len(text) > e.summarizeThreshold {
		text = e.summarize(ctx, t.Key, text)
		s.Summarized = true
		s.States = append(s.States, StateSummarized)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.States = append(s.States, StatePromptOverride)
	if o := e.override.Consume(); o != "" {
		text = o
		s.Overridden = true
		slog.Info("using prompt override", "ticket", t.Key)
	}
	s.PromptText = text

	out, err := e.client.Complete(ctx, "suggest", Request{
		System:    suggestSystemPrompt,
		Prompt:    buildSuggestPrompt(t, text),
		MaxTokens: e.maxTokens,
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out = strings.TrimSpace(out)
	if err != nil || out == "" {
		if err != nil {
			slog.Warn("suggestion model call failed, using rules", "ticket", t.Key, "error", err)
		}
		s.Text = RuleSuggestion(t.Summary, t.Description)
		s.Source = SourceRules
	} else {
		s.Text = out
		s.Source = SourceModel
	}
	s.States = append(s.States, StateSuggestionGenerated)
	return s, nil
}

// GeneratePatch asks the model for code implementing s. An unusable answer
// goes to the clarifier; without a clarification the result is a
// *ClarificationError.
func (e *Engine) GeneratePatch(ctx context.Context, t *types.Ticket, s *Suggestion) (*Patch, error) {
	p := &Patch{States: []State{StatePatchGenerated}}

	code, reason := e.patchAttempt(ctx, t, s, "")
	if reason == "" {
		p.Code = code
		p.States = append(p.States, StatePatchAccepted, StateTerminal)
		return p, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.States = append(p.States, StateNeedsClarification)
	answer, err := e.Clarify(ctx, t.Key, reason, fmt.Sprintf("Suggested fix: %s\nDescribe the change or point to the file to edit.", s.Text))
	if err != nil {
		return nil, err
	}
	if answer == "" {
		p.States = append(p.States, StateTerminal)
		return p, &ClarificationError{TicketKey: t.Key, Reason: reason}
	}

	p.Clarification = answer
	code, reason = e.patchAttempt(ctx, t, s, answer)
	p.States = append(p.States, StatePatchGenerated)
	if reason != "" {
		p.States = append(p.States, StateTerminal)
		return p, &ClarificationError{TicketKey: t.Key, Reason: "after clarification: " + reason}
	}
	p.Code = code
	p.States = append(p.States, StatePatchAccepted, StateTerminal)
	return p, nil
}

// Clarify sends a request through the clarifier with the configured
// timeout. Clarifier failures other than cancellation count as no input.
func (e *Engine) Clarify(ctx context.Context, ticketKey, reason, question string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, e.clarifyTimeout)
	defer cancel()
	answer, err := e.clarifier.RequestClarification(cctx, ClarificationRequest{
		TicketKey:   ticketKey,
		Reason:      reason,
		Question:    question,
		RequestedAt: time.Now(),
	})
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		slog.Warn("clarification request failed", "ticket", ticketKey, "error", err)
		return "", nil
	}
	return strings.TrimSpace(answer), nil
}

// patchAttempt returns the cleaned code, or a non-empty reason it was
// rejected.
func (e *Engine) patchAttempt(ctx context.Context, t *types.Ticket, s *Suggestion, clarification string) (string, string) {
	out, err := e.client.Complete(ctx, "patch", Request{
		System:    patchSystemPrompt,
		Prompt:    buildPatchPrompt(t, s, clarification),
		MaxTokens: e.maxTokens,
	})
	if err != nil {
		slog.Warn("patch model call failed", "ticket", t.Key, "error", err)
		return "", "model returned no patch"
	}
	code := stripCodeFences(out)
	if reason := e.rejectPatch(code, s.Text); reason != "" {
		return "", reason
	}
	return code, ""
}

// placeholders are answers that look like output but contain no change.
var placeholders = []string{
	"todo", "// todo", "# todo", "n/a", "none", "...",
	"no changes", "no changes needed", "no code",
	"// fix here", "// your code here",
}

func (e *Engine) rejectPatch(code, suggestion string) string {
	norm := strings.ToLower(strings.TrimSpace(code))
	switch {
	case norm == "":
		return "model returned an empty patch"
	case slices.Contains(placeholders, norm) || norm == strings.ToLower(strings.TrimSpace(suggestion)):
		return "model returned a placeholder patch"
	case len(norm) < e.minPatchLength:
		return fmt.Sprintf("patch shorter than %d characters", e.minPatchLength)
	}
	return ""
}

// summarize condenses text with the model, or keeps its head and tail when
// the model is unavailable.
func (e *Engine) summarize(ctx context.Context, key, text string) string {
	out, err := e.client.Complete(ctx, "summarize", Request{
		System:    summarizeSystemPrompt,
		Prompt:    buildSummarizePrompt(text, e.summaryLength),
		MaxTokens: 2048,
	})
	out = strings.TrimSpace(out)
	if err != nil || out == "" {
		if err != nil {
			slog.Warn("summarization failed, truncating", "ticket", key, "error", err)
		}
		return headTail(text, e.summaryLength)
	}
	return out
}
