package ai

import (
	"strings"
	"sync"
)

// PromptOverride is a one-shot slot for an operator-supplied prompt.
// Set is last-write-wins; Consume reads and clears it, so an override
// applies to exactly one remediation attempt.
type PromptOverride struct {
	mu     sync.Mutex
	prompt string
}

// Set stores prompt, replacing any pending override. Blank input clears it.
func (p *PromptOverride) Set(prompt string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompt = strings.TrimSpace(prompt)
}

// Get returns the pending override without clearing it.
func (p *PromptOverride) Get() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prompt
}

// Consume returns the pending override and clears it.
func (p *PromptOverride) Consume() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.prompt
	p.prompt = ""
	return out
}
