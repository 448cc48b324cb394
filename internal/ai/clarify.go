package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
)

// ClarificationRequest asks a human to help with an inconclusive fix.
type ClarificationRequest struct {
	TicketKey   string    `json:"ticket_key"`
	Reason      string    `json:"reason"`
	Question    string    `json:"question"`
	RequestedAt time.Time `json:"requested_at"`
}

// Clarifier is the human-input port. An empty answer with a nil error
// means nobody responded.
type Clarifier interface {
	RequestClarification(ctx context.Context, req ClarificationRequest) (string, error)
}

// NoInputClarifier answers every request with silence. It is the default:
// automated runs have no human in the loop.
type NoInputClarifier struct{}

// RequestClarification implements Clarifier.
func (NoInputClarifier) RequestClarification(context.Context, ClarificationRequest) (string, error) {
	return "", nil
}

// ErrNoPendingRequest is returned when answering a ticket nobody asked about.
var ErrNoPendingRequest = errors.New("no pending clarification request")

// ChannelClarifier parks requests until Answer is called or the timeout
// elapses. The control socket answers through it.
type ChannelClarifier struct {
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]*pendingClarification
	notify  chan ClarificationRequest
}

type pendingClarification struct {
	req    ClarificationRequest
	answer chan string
}

// NewChannelClarifier creates a clarifier waiting at most timeout per request.
func NewChannelClarifier(timeout time.Duration) *ChannelClarifier {
	return &ChannelClarifier{
		timeout: timeout,
		pending: make(map[string]*pendingClarification),
		notify:  make(chan ClarificationRequest, 16),
	}
}

// Requests delivers each new request; sends are dropped when nobody reads.
func (c *ChannelClarifier) Requests() <-chan ClarificationRequest {
	return c.notify
}

// RequestClarification implements Clarifier.
func (c *ChannelClarifier) RequestClarification(ctx context.Context, req ClarificationRequest) (string, error) {
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now()
	}
	p := &pendingClarification{req: req, answer: make(chan string, 1)}

	c.mu.Lock()
	c.pending[req.TicketKey] = p
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.pending[req.TicketKey] == p {
			delete(c.pending, req.TicketKey)
		}
		c.mu.Unlock()
	}()

	select {
	case c.notify <- req:
	default:
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case a := <-p.answer:
		return strings.TrimSpace(a), nil
	case <-timer.C:
		return "", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Answer delivers text to the pending request for ticketKey.
func (c *ChannelClarifier) Answer(ticketKey, text string) error {
	c.mu.Lock()
	p, ok := c.pending[ticketKey]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", ticketKey, ErrNoPendingRequest)
	}
	select {
	case p.answer <- text:
		return nil
	default:
		return fmt.Errorf("%s: already answered", ticketKey)
	}
}

// Pending lists outstanding requests ordered by ticket key.
func (c *ChannelClarifier) Pending() []ClarificationRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ClarificationRequest, 0, len(c.pending))
	for _, p := range c.pending {
		out = append(out, p.req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketKey < out[j].TicketKey })
	return out
}

// ReadlineClarifier prompts on a terminal. A request that gets no line
// within the timeout counts as no input.
type ReadlineClarifier struct {
	timeout time.Duration
	stdin   io.ReadCloser
	stdout  io.Writer
}

// NewReadlineClarifier creates a terminal clarifier. Nil stdin/stdout use
// the process streams.
func NewReadlineClarifier(timeout time.Duration, stdin io.ReadCloser, stdout io.Writer) *ReadlineClarifier {
	return &ReadlineClarifier{timeout: timeout, stdin: stdin, stdout: stdout}
}

// RequestClarification implements Clarifier.
func (r *ReadlineClarifier) RequestClarification(ctx context.Context, req ClarificationRequest) (string, error) {
	cfg := &readline.Config{
		Prompt:          fmt.Sprintf("%s> ", req.TicketKey),
		InterruptPrompt: "^C",
		EOFPrompt:       "skip",
	}
	if r.stdin != nil {
		cfg.Stdin = r.stdin
	}
	if r.stdout != nil {
		cfg.Stdout = r.stdout
	}
	rl, err := readline.NewEx(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(rl.Stdout(), "\nClarification needed for %s: %s\n%s\n(empty line to skip)\n",
		req.TicketKey, req.Reason, req.Question)

	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := rl.Readline()
		ch <- result{line, err}
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		if res.err != nil {
			if errors.Is(res.err, readline.ErrInterrupt) || errors.Is(res.err, io.EOF) {
				return "", nil
			}
			return "", res.err
		}
		return strings.TrimSpace(res.line), nil
	case <-timer.C:
		return "", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
