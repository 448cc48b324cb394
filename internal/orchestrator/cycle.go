package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/steveyegge/fixbot/internal/ai"
	"github.com/steveyegge/fixbot/internal/events"
	"github.com/steveyegge/fixbot/internal/git"
	"github.com/steveyegge/fixbot/internal/notify"
	"github.com/steveyegge/fixbot/internal/resolver"
	"github.com/steveyegge/fixbot/internal/storage"
	"github.com/steveyegge/fixbot/internal/tracker"
	"github.com/steveyegge/fixbot/internal/types"
)

// AttemptResult is how one ticket's pipeline ended.
type AttemptResult struct {
	Ticket  *types.Ticket
	Attempt *types.Attempt
	Outcome types.Outcome
	// Reason explains a skip or abandonment.
	Reason string
	Err    error
}

// CycleReport summarizes one polling cycle.
type CycleReport struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Found      int
	Pending    int
	// Changes counts narratives appended to the change log.
	Changes int
	Results []*AttemptResult
	// Interrupted is set when a stop request ended the cycle early.
	Interrupted bool
}

// CycleSummary counts a cycle's outcomes.
type CycleSummary struct {
	Found      int   `json:"found"`
	Pending    int   `json:"pending"`
	Remediated int   `json:"remediated"`
	Skipped    int   `json:"skipped"`
	Abandoned  int   `json:"abandoned"`
	Failed     int   `json:"failed"`
	DurationMs int64 `json:"duration_ms"`
}

// Summary counts outcomes.
func (r *CycleReport) Summary() CycleSummary {
	s := CycleSummary{
		Found:      r.Found,
		Pending:    r.Pending,
		DurationMs: r.FinishedAt.Sub(r.StartedAt).Milliseconds(),
	}
	for _, res := range r.Results {
		switch res.Outcome {
		case types.OutcomeRemediated:
			s.Remediated++
		case types.OutcomeSkipped:
			s.Skipped++
		case types.OutcomeAbandoned:
			s.Abandoned++
		case types.OutcomeFailed:
			s.Failed++
		}
	}
	return s
}

func (o *Orchestrator) jql() string {
	if o.cfg.JQL != "" {
		return o.cfg.JQL
	}
	return o.cfg.DefaultJQL
}

// RunCycle polls the tracker once and runs the pipeline for every ticket
// not yet processed today. Per-ticket failures are recorded in the report;
// the returned error covers the search, a panic outside the per-ticket
// pipeline and context cancellation.
func (o *Orchestrator) RunCycle(ctx context.Context) (report *CycleReport, err error) {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer o.sem.Release(1)

	o.setInCycle(true)
	defer o.setInCycle(false)

	report = &CycleReport{StartedAt: o.now()}
	defer func() {
		if r := recover(); r != nil {
			report.FinishedAt = o.now()
			err = o.cyclePanicked(ctx, "", r)
			o.recordCycle(report)
		}
	}()
	o.logEvent(ctx, events.EventTypeCycleStarted, events.SeverityInfo, "", "", "Poll cycle started", nil)

	raw, err := o.cfg.Tracker.Search(ctx, tracker.SearchRequest{JQL: o.jql()})
	if err != nil {
		report.FinishedAt = o.now()
		o.logEvent(ctx, events.EventTypeCycleFailed, events.SeverityError, "", "",
			fmt.Sprintf("Tracker search failed: %v", err), map[string]interface{}{"error": err.Error()})
		o.recordCycle(report)
		return report, fmt.Errorf("failed to search tracker: %w", err)
	}

	if o.cfg.Snapshots != nil && o.cfg.ChangeLog != nil {
		if changes, err := tracker.RecordChanges(raw, o.cfg.Snapshots, o.cfg.ChangeLog); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to record ticket changes: %v\n", err)
		} else {
			report.Changes = len(changes)
		}
	}

	tickets := tracker.ExtractTickets(raw)
	report.Found = len(tickets)
	var pending []*types.Ticket
	for _, t := range tickets {
		if !o.cfg.Ledger.IsProcessed(t.Key) {
			pending = append(pending, t)
		}
	}
	report.Pending = len(pending)

	for _, t := range pending {
		if o.stopRequested() || ctx.Err() != nil {
			report.Interrupted = true
			break
		}
		report.Results = append(report.Results, o.safeProcess(ctx, t))
	}

	report.FinishedAt = o.now()
	o.finishBatch(ctx, report.FinishedAt, report.Results)
	o.recordCycle(report)

	sum := report.Summary()
	severity := events.SeverityInfo
	if sum.Failed > 0 {
		severity = events.SeverityWarning
	}
	msg := fmt.Sprintf("Poll cycle completed: found=%d pending=%d remediated=%d skipped=%d abandoned=%d failed=%d",
		sum.Found, sum.Pending, sum.Remediated, sum.Skipped, sum.Abandoned, sum.Failed)
	if ev, err := events.NewCycleCompletedEvent(o.instanceID, severity, msg, events.CycleData(sum)); err == nil {
		o.storeEvent(ctx, ev)
	}
	slog.Info("cycle completed", "found", sum.Found, "pending", sum.Pending,
		"remediated", sum.Remediated, "failed", sum.Failed, "duration_ms", sum.DurationMs)
	return report, ctx.Err()
}

// ProcessTicket fetches key from the tracker and runs the pipeline for it,
// serialized with the polling loop. A ticket already processed today is
// skipped.
func (o *Orchestrator) ProcessTicket(ctx context.Context, key string) (res *AttemptResult, err error) {
	if !types.ValidTicketKey(key) {
		return nil, fmt.Errorf("invalid ticket key %q", key)
	}
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer o.sem.Release(1)
	defer func() {
		if r := recover(); r != nil {
			err = o.cyclePanicked(ctx, key, r)
		}
	}()

	project := key[:strings.LastIndexByte(key, '-')]
	jql := fmt.Sprintf("project = %q AND key = %q", project, key)
	raw, err := o.cfg.Tracker.Search(ctx, tracker.SearchRequest{JQL: jql})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", key, err)
	}
	var ticket *types.Ticket
	for _, t := range tracker.ExtractTickets(raw) {
		if t.Key == key {
			ticket = t
		}
	}
	if ticket == nil {
		return nil, fmt.Errorf("ticket %s not found", key)
	}

	if o.cfg.Ledger.IsProcessed(key) {
		res = o.skipped(ctx, ticket, newAttempt(key, o.now()), "already processed today")
	} else {
		res = o.safeProcess(ctx, ticket)
	}
	o.finishBatch(ctx, o.now(), []*AttemptResult{res})
	return res, nil
}

// cyclePanicked logs a panic raised outside the per-ticket pipeline and
// returns it as an error.
func (o *Orchestrator) cyclePanicked(ctx context.Context, key string, r interface{}) error {
	slog.Error("cycle panicked", "ticket", key, "panic", r, "stack", string(debug.Stack()))
	err := fmt.Errorf("cycle panicked: %v", r)
	o.logEvent(ctx, events.EventTypeCycleFailed, events.SeverityError, key, "",
		err.Error(), map[string]interface{}{"error": err.Error()})
	return err
}

func (o *Orchestrator) setInCycle(v bool) {
	o.mu.Lock()
	o.inCycle = v
	o.mu.Unlock()
}

func (o *Orchestrator) recordCycle(r *CycleReport) {
	o.mu.Lock()
	o.lastCycle = r
	o.mu.Unlock()
}

func newAttempt(key string, now time.Time) *types.Attempt {
	return &types.Attempt{
		ID:        uuid.New().String(),
		TicketKey: key,
		Checklist: types.NewChecklist(),
		StartedAt: now,
	}
}

// safeProcess runs one ticket, converting a panic into a failed result.
func (o *Orchestrator) safeProcess(ctx context.Context, t *types.Ticket) (res *AttemptResult) {
	attempt := newAttempt(t.Key, o.now())
	defer func() {
		if r := recover(); r != nil {
			slog.Error("ticket pipeline panicked", "ticket", t.Key, "panic", r, "stack", string(debug.Stack()))
			res = o.failed(ctx, t, attempt, "pipeline", fmt.Errorf("panic: %v", r))
		}
	}()
	return o.processTicket(ctx, t, attempt)
}

// processTicket is the remediation pipeline. Nothing is rolled back when a
// step fails; the ticket stays out of the ledger and is retried next cycle.
func (o *Orchestrator) processTicket(ctx context.Context, t *types.Ticket, a *types.Attempt) *AttemptResult {
	key := t.Key

	s, err := o.cfg.Engine.Suggest(ctx, t)
	if err != nil {
		return o.failed(ctx, t, a, "suggest", err)
	}
	a.Suggestion = s.Text
	a.Checklist.Complete(types.StepSuggest)
	o.attemptEvent(ctx, events.EventTypeSuggestionGenerated, events.SeverityInfo, a,
		fmt.Sprintf("Suggestion generated from %s", s.Source),
		events.AttemptData{Step: string(types.StepSuggest), Source: string(s.Source)})

	if o.cache.Unchanged(key, s.Text) {
		// marked so the model is not asked again until the next day
		if err := o.cfg.Ledger.MarkProcessed(key); err != nil {
			return o.failed(ctx, t, a, "ledger", err)
		}
		return o.skipped(ctx, t, a, "suggestion unchanged since last remediation")
	}

	p, err := o.cfg.Engine.GeneratePatch(ctx, t, s)
	var cerr *ai.ClarificationError
	switch {
	case errors.As(err, &cerr):
		a.Checklist.AwaitInput(types.StepPatch)
		o.attemptEvent(ctx, events.EventTypeClarificationRequested, events.SeverityWarning, a,
			"Patch needs clarification", events.AttemptData{Step: string(types.StepPatch), Error: cerr.Reason})
		return o.abandoned(ctx, t, a, cerr.Reason)
	case err != nil:
		return o.failed(ctx, t, a, "patch", err)
	}
	a.Patch = p.Code
	a.Checklist.Complete(types.StepPatch)
	o.attemptEvent(ctx, events.EventTypePatchGenerated, events.SeverityInfo, a,
		fmt.Sprintf("Patch generated (%d bytes)", len(p.Code)), events.AttemptData{Step: string(types.StepPatch)})

	target, res := o.resolveTarget(ctx, t, a, p.Code)
	if res != nil {
		return res
	}
	a.TargetFile = target
	a.Checklist.Complete(types.StepResolve)
	o.attemptEvent(ctx, events.EventTypeTargetResolved, events.SeverityInfo, a,
		fmt.Sprintf("Target file %s", target), events.AttemptData{Step: string(types.StepResolve), TargetFile: target})

	a.Branch = git.BranchName(key, o.now().In(o.loc))
	if err := o.cfg.Automator.PrepareBranch(ctx, o.cfg.BaseBranch, a.Branch); err != nil {
		return o.failed(ctx, t, a, "branch", err)
	}
	a.Checklist.Complete(types.StepBranch)
	o.attemptEvent(ctx, events.EventTypeGitBranchCreated, events.SeverityInfo, a,
		fmt.Sprintf("Branch %s created from %s", a.Branch, o.cfg.BaseBranch),
		events.AttemptData{Step: string(types.StepBranch), Branch: a.Branch})

	before, err := o.cfg.Automator.ReadFile(target)
	if err != nil {
		return o.failed(ctx, t, a, "commit", err)
	}
	if have, got, ok := fragmentPatch(before, p.Code); ok {
		return o.abandoned(ctx, t, a, fmt.Sprintf(
			"patch has %d lines but %s has %d; refusing to replace the file with a fragment", got, target, have))
	}
	a.Diff = unifiedDiff(target, before, ensureNewline(p.Code))
	hash, err := o.cfg.Automator.ApplyAndCommit(ctx,
		[]git.FileChange{{Path: target, Content: p.Code}},
		git.CommitMessage(key, t.Summary, s.Text))
	a.CommitHash = hash
	if err != nil {
		return o.failed(ctx, t, a, "commit", err)
	}
	a.Checklist.Complete(types.StepCommit)
	o.attemptEvent(ctx, events.EventTypeGitCommitPushed, events.SeverityInfo, a,
		fmt.Sprintf("Commit %s pushed to %s", shortHash(hash), a.Branch),
		events.AttemptData{Step: string(types.StepCommit), Branch: a.Branch, CommitHash: hash})

	if o.cfg.Automator.HasHost() {
		ref, err := o.cfg.Automator.OpenPullRequest(ctx, git.PullRequestRequest{
			Branch:    a.Branch,
			Base:      o.cfg.BaseBranch,
			Title:     git.PullRequestTitle(key, t.Summary),
			Body:      git.PullRequestBody(key, s.Text, target, a.Checklist.String()),
			Reviewers: o.cfg.Reviewers,
		})
		if err != nil {
			return o.failed(ctx, t, a, "pull_request", err)
		}
		a.PullRequest = ref
		a.Checklist.Complete(types.StepPullRequest)
		if ev, err := events.NewPullRequestOpenedEvent(key, o.instanceID, a.ID,
			fmt.Sprintf("Pull request #%d opened: %s", ref.Number, ref.URL),
			events.PullRequestData{Number: ref.Number, URL: ref.URL, Branch: a.Branch, Base: o.cfg.BaseBranch}); err == nil {
			o.storeEvent(ctx, ev)
		}
	}

	// The branch is pushed and any pull request exists from here on, so a
	// comment failure must not cause the ticket to be attempted again today.
	posted, err := o.cfg.Tracker.CommentOnce(ctx, key, TicketComment(key, s.Text, a))
	if err != nil {
		o.attemptEvent(ctx, events.EventTypeTicketFailed, events.SeverityError, a,
			fmt.Sprintf("Failed to comment on ticket: %v", err),
			events.AttemptData{Step: string(types.StepComment), Error: err.Error()})
	} else {
		a.Checklist.Complete(types.StepComment)
		msg := "Ticket commented"
		if !posted {
			msg = "Equivalent comment already present"
		}
		o.attemptEvent(ctx, events.EventTypeTicketCommented, events.SeverityInfo, a, msg,
			events.AttemptData{Step: string(types.StepComment)})
	}

	if err := o.cfg.Ledger.MarkProcessed(key); err != nil {
		return o.failed(ctx, t, a, "ledger", err)
	}
	a.Checklist.Complete(types.StepLedger)
	o.cache.Record(key, s.Text)

	o.attemptEvent(ctx, events.EventTypeTicketRemediated, events.SeverityInfo, a,
		fmt.Sprintf("Ticket remediated on %s", a.Branch),
		events.AttemptData{Step: string(types.StepLedger), Branch: a.Branch, CommitHash: a.CommitHash,
			TargetFile: target, Checklist: a.Checklist.String()})
	return &AttemptResult{Ticket: t, Attempt: a, Outcome: types.OutcomeRemediated}
}

// A patch replaces the whole target file. Files shorter than
// fragmentMinLines are always replaced; longer ones only when the patch
// keeps at least 1/fragmentRatio of their non-blank lines.
const (
	fragmentMinLines = 10
	fragmentRatio    = 2
)

// fragmentPatch reports whether patch looks like a snippet of before rather
// than a full replacement, with both non-blank line counts.
func fragmentPatch(before, patch string) (have, got int, ok bool) {
	have, got = nonBlankLines(before), nonBlankLines(patch)
	return have, got, have >= fragmentMinLines && got*fragmentRatio < have
}

func nonBlankLines(s string) int {
	n := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

// resolveTarget locates the patched file. Resolution failures go to the
// clarifier; an answer naming an existing file is used instead.
func (o *Orchestrator) resolveTarget(ctx context.Context, t *types.Ticket, a *types.Attempt, patch string) (string, *AttemptResult) {
	target, err := o.cfg.Resolver.Resolve(ctx, t, patch)
	if err == nil {
		return target, nil
	}
	var rerr *resolver.ResolutionError
	if !errors.As(err, &rerr) {
		return "", o.failed(ctx, t, a, "resolve", err)
	}

	a.Checklist.AwaitInput(types.StepResolve)
	o.attemptEvent(ctx, events.EventTypeClarificationRequested, events.SeverityWarning, a,
		"Target file needs clarification", events.AttemptData{Step: string(types.StepResolve), Error: rerr.Error()})

	question := "Which file should the patch be applied to?"
	if len(rerr.Candidates) > 0 {
		question += " Candidates: " + strings.Join(rerr.Candidates, ", ")
	}
	answer, cerr := o.cfg.Engine.Clarify(ctx, t.Key, rerr.Error(), question)
	if cerr != nil {
		return "", o.failed(ctx, t, a, "resolve", cerr)
	}
	if path, ok := o.cfg.Resolver.FromAnswer(answer); ok {
		return path, nil
	}
	return "", o.abandoned(ctx, t, a, rerr.Error())
}

// TicketComment is the traceability comment posted back to the tracker.
func TicketComment(key, suggestion string, a *types.Attempt) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s Automated fix proposed for %s.\n", git.CommentPrefix, key)
	fmt.Fprintf(&sb, "Suggested fix: %s\n", oneLine(suggestion))
	if a.TargetFile != "" {
		fmt.Fprintf(&sb, "File: %s\n", a.TargetFile)
	}
	if a.PullRequest != nil {
		fmt.Fprintf(&sb, "Pull request: %s\n", a.PullRequest.URL)
	} else {
		fmt.Fprintf(&sb, "Branch: %s\n", a.Branch)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

func (o *Orchestrator) skipped(ctx context.Context, t *types.Ticket, a *types.Attempt, reason string) *AttemptResult {
	o.attemptEvent(ctx, events.EventTypeTicketSkipped, events.SeverityInfo, a,
		"Ticket skipped: "+reason, events.AttemptData{Step: "skip", Error: reason})
	return &AttemptResult{Ticket: t, Attempt: a, Outcome: types.OutcomeSkipped, Reason: reason}
}

func (o *Orchestrator) abandoned(ctx context.Context, t *types.Ticket, a *types.Attempt, reason string) *AttemptResult {
	slog.Warn("attempt abandoned", "ticket", t.Key, "reason", reason)
	o.attemptEvent(ctx, events.EventTypeTicketAbandoned, events.SeverityWarning, a,
		"Attempt abandoned: "+reason,
		events.AttemptData{Step: "abandon", Error: reason, Checklist: a.Checklist.String()})
	return &AttemptResult{Ticket: t, Attempt: a, Outcome: types.OutcomeAbandoned, Reason: reason}
}

func (o *Orchestrator) failed(ctx context.Context, t *types.Ticket, a *types.Attempt, step string, err error) *AttemptResult {
	slog.Error("attempt failed", "ticket", t.Key, "step", step, "error", err)
	data := events.AttemptData{Step: step, Branch: a.Branch, Error: err.Error(), Checklist: a.Checklist.String()}
	if errors.Is(err, git.ErrMissingCredential) {
		o.attemptEvent(ctx, events.EventTypeCredentialMissing, events.SeverityCritical, a,
			fmt.Sprintf("Push for %s needs a credential: %v", t.Key, err), data)
	} else {
		o.attemptEvent(ctx, events.EventTypeTicketFailed, events.SeverityError, a,
			fmt.Sprintf("Attempt failed at %s: %v", step, err), data)
	}
	return &AttemptResult{Ticket: t, Attempt: a, Outcome: types.OutcomeFailed, Err: fmt.Errorf("%s: %w", step, err)}
}

// finishBatch writes the agent log and last-batch artifact and announces
// opened pull requests.
func (o *Orchestrator) finishBatch(ctx context.Context, at time.Time, results []*AttemptResult) {
	if len(results) == 0 {
		return
	}
	if o.cfg.StateDir != "" {
		if err := appendAgentLog(o.statePath(storage.AgentLogFile), results); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
		if err := writeLastBatch(o.statePath(storage.LastBatchFile), at, results); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}

	prs := pullRequests(results)
	if len(prs) == 0 || o.cfg.Notifier == nil {
		return
	}
	lines := make([]string, 0, len(prs))
	for _, r := range prs {
		title := ""
		if r.Ticket != nil {
			title = r.Ticket.Summary
		}
		lines = append(lines, notify.PullRequestOpened(r.Attempt.TicketKey, title, r.Attempt.PullRequest.URL))
	}
	message := strings.Join(lines, "\n")
	if err := o.cfg.Notifier.Notify(ctx, message, o.cfg.Recipients); err != nil {
		o.logEvent(ctx, events.EventTypeNotificationSent, events.SeverityWarning, "", "",
			fmt.Sprintf("Notification failed: %v", err), map[string]interface{}{"error": err.Error()})
		return
	}
	o.logEvent(ctx, events.EventTypeNotificationSent, events.SeverityInfo, "", "",
		fmt.Sprintf("Notified %d pull request(s)", len(prs)), map[string]interface{}{"pull_requests": len(prs)})
}
