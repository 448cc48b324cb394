package types

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ticketKeyRegex matches tracker keys such as ABC-123.
var ticketKeyRegex = regexp.MustCompile(`^[A-Z][A-Z0-9]*-\d+$`)

// ValidTicketKey reports whether key looks like a PROJECT-NUMBER tracker key.
func ValidTicketKey(key string) bool {
	return ticketKeyRegex.MatchString(key)
}

// Ticket is the canonical form of one tracker item.
// It is rebuilt on every poll and compared by value, never mutated in place.
type Ticket struct {
	Key         string   `json:"key"`
	Summary     string   `json:"summary"`
	Status      string   `json:"status"`
	Description string   `json:"description"`
	Confluence  string   `json:"confluence,omitempty"` // linked document text
	Comments    []string `json:"comments,omitempty"`
}

// CommentText joins comment bodies in tracker order.
func (t *Ticket) CommentText() string {
	return strings.Join(t.Comments, " | ")
}

// Text returns the prose used as model input: summary, description,
// linked content and comments.
func (t *Ticket) Text() string {
	var sb strings.Builder
	sb.WriteString(t.Summary)
	if t.Description != "" {
		sb.WriteString("\n\n")
		sb.WriteString(t.Description)
	}
	if t.Confluence != "" {
		sb.WriteString("\n\nLinked content:\n")
		sb.WriteString(t.Confluence)
	}
	if len(t.Comments) > 0 {
		sb.WriteString("\n\nComments:\n")
		for _, c := range t.Comments {
			sb.WriteString("- ")
			sb.WriteString(c)
			sb.WriteString("\n")
		}
	}
	return strings.TrimSpace(sb.String())
}

// Equal reports whether two tickets agree on every tracked field.
func (t *Ticket) Equal(o *Ticket) bool {
	return t.Key == o.Key &&
		t.Summary == o.Summary &&
		t.Status == o.Status &&
		t.Description == o.Description &&
		t.Confluence == o.Confluence &&
		t.CommentText() == o.CommentText()
}

// Snapshot is the set of tickets observed at one poll, in key order.
type Snapshot struct {
	keys    []string
	tickets map[string]*Ticket
}

// NewSnapshot builds a snapshot preserving the order tickets are given in.
// Later duplicates of a key replace earlier ones.
func NewSnapshot(tickets []*Ticket) *Snapshot {
	s := &Snapshot{tickets: make(map[string]*Ticket, len(tickets))}
	for _, t := range tickets {
		if _, seen := s.tickets[t.Key]; !seen {
			s.keys = append(s.keys, t.Key)
		}
		s.tickets[t.Key] = t
	}
	return s
}

// Keys returns ticket keys in snapshot order.
func (s *Snapshot) Keys() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Get returns the ticket for key, or nil.
func (s *Snapshot) Get(key string) *Ticket {
	if s == nil {
		return nil
	}
	return s.tickets[key]
}

// Len returns the number of tickets.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// PullRequestRef identifies an opened pull request.
type PullRequestRef struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
}

// ChecklistStep names one stage of a remediation attempt.
type ChecklistStep string

const (
	StepSuggest     ChecklistStep = "suggest"
	StepPatch       ChecklistStep = "patch"
	StepResolve     ChecklistStep = "resolve"
	StepBranch      ChecklistStep = "branch"
	StepCommit      ChecklistStep = "commit"
	StepPullRequest ChecklistStep = "pull_request"
	StepComment     ChecklistStep = "comment"
	StepLedger      ChecklistStep = "ledger"
)

// AllSteps lists checklist steps in pipeline order.
var AllSteps = []ChecklistStep{
	StepSuggest, StepPatch, StepResolve, StepBranch,
	StepCommit, StepPullRequest, StepComment, StepLedger,
}

// ChecklistItem tracks one step of an attempt.
type ChecklistItem struct {
	Step         ChecklistStep `json:"step"`
	Completed    bool          `json:"completed"`
	InputPending bool          `json:"input_pending,omitempty"`
}

// Checklist is the ordered progress record of one attempt.
type Checklist []ChecklistItem

// NewChecklist returns a checklist with every step pending.
func NewChecklist() Checklist {
	c := make(Checklist, len(AllSteps))
	for i, s := range AllSteps {
		c[i] = ChecklistItem{Step: s}
	}
	return c
}

// Complete marks step done.
func (c Checklist) Complete(step ChecklistStep) {
	for i := range c {
		if c[i].Step == step {
			c[i].Completed = true
			c[i].InputPending = false
		}
	}
}

// AwaitInput marks step as blocked on human input.
func (c Checklist) AwaitInput(step ChecklistStep) {
	for i := range c {
		if c[i].Step == step {
			c[i].InputPending = true
		}
	}
}

// String renders the checklist as markdown task items.
func (c Checklist) String() string {
	var sb strings.Builder
	for _, item := range c {
		mark := " "
		if item.Completed {
			mark = "x"
		}
		fmt.Fprintf(&sb, "- [%s] %s", mark, item.Step)
		if item.InputPending {
			sb.WriteString(" (awaiting input)")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// Attempt is one pass of the remediation pipeline over one ticket.
// It lives only for the duration of that pass.
type Attempt struct {
	ID          string          `json:"id"`
	TicketKey   string          `json:"ticket_key"`
	Suggestion  string          `json:"suggestion"`
	Patch       string          `json:"patch,omitempty"`
	TargetFile  string          `json:"target_file,omitempty"`
	Branch      string          `json:"branch,omitempty"`
	CommitHash  string          `json:"commit_hash,omitempty"`
	Diff        string          `json:"diff,omitempty"`
	PullRequest *PullRequestRef `json:"pull_request,omitempty"`
	Checklist   Checklist       `json:"checklist"`
	StartedAt   time.Time       `json:"started_at"`
}

// Outcome classifies how an attempt ended.
type Outcome string

const (
	OutcomeRemediated Outcome = "remediated"
	OutcomeSkipped    Outcome = "skipped"   // already processed or suggestion unchanged
	OutcomeAbandoned  Outcome = "abandoned" // needs clarification that never came
	OutcomeFailed     Outcome = "failed"
)

// InstanceStatus represents the state of an orchestrator process.
type InstanceStatus string

const (
	InstanceStatusRunning InstanceStatus = "running"
	InstanceStatusStopped InstanceStatus = "stopped"
)

// IsValid checks if the instance status value is valid
func (s InstanceStatus) IsValid() bool {
	return s == InstanceStatusRunning || s == InstanceStatusStopped
}

// Instance records one orchestrator process for the status command.
type Instance struct {
	InstanceID    string         `json:"instance_id"`
	Hostname      string         `json:"hostname"`
	PID           int            `json:"pid"`
	Status        InstanceStatus `json:"status"`
	StartedAt     time.Time      `json:"started_at"`
	LastHeartbeat time.Time      `json:"last_heartbeat"`
	Version       string         `json:"version"`
	Metadata      string         `json:"metadata"` // JSON string (must be valid JSON)
}

// Validate checks if the instance has valid field values
func (e *Instance) Validate() error {
	if e.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if e.Hostname == "" {
		return fmt.Errorf("hostname is required")
	}
	if e.PID <= 0 {
		return fmt.Errorf("pid must be positive (got %d)", e.PID)
	}
	if !e.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", e.Status)
	}
	if e.Metadata != "" {
		var v interface{}
		if err := json.Unmarshal([]byte(e.Metadata), &v); err != nil {
			return fmt.Errorf("metadata must be valid JSON: %w", err)
		}
	}
	return nil
}
