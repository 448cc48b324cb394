// Package orchestrator runs the remediation loop: poll the tracker, filter
// through the ledger, suggest and patch, push a fix branch, open a pull
// request, comment back and record the ticket.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/steveyegge/fixbot/internal/ai"
	"github.com/steveyegge/fixbot/internal/config"
	"github.com/steveyegge/fixbot/internal/events"
	"github.com/steveyegge/fixbot/internal/git"
	"github.com/steveyegge/fixbot/internal/ledger"
	"github.com/steveyegge/fixbot/internal/notify"
	"github.com/steveyegge/fixbot/internal/storage"
	"github.com/steveyegge/fixbot/internal/tracker"
	"github.com/steveyegge/fixbot/internal/types"
)

// Tracker is the issue tracker as the loop uses it.
type Tracker interface {
	Search(ctx context.Context, req tracker.SearchRequest) ([]byte, error)
	CommentOnce(ctx context.Context, key, text string) (bool, error)
}

// Suggester produces suggestions and patches; *ai.Engine implements it.
type Suggester interface {
	Suggest(ctx context.Context, t *types.Ticket) (*ai.Suggestion, error)
	GeneratePatch(ctx context.Context, t *types.Ticket, s *ai.Suggestion) (*ai.Patch, error)
	Clarify(ctx context.Context, ticketKey, reason, question string) (string, error)
	Override() *ai.PromptOverride
}

// TargetResolver locates the file a patch applies to; *resolver.Resolver
// implements it.
type TargetResolver interface {
	Resolve(ctx context.Context, t *types.Ticket, patch string) (string, error)
	FromAnswer(answer string) (string, bool)
}

// SourceControl is the branch, commit and pull-request pipeline;
// *git.Automator implements it.
type SourceControl interface {
	PrepareBranch(ctx context.Context, base, name string) error
	ReadFile(rel string) (string, error)
	ApplyAndCommit(ctx context.Context, files []git.FileChange, message string) (string, error)
	OpenPullRequest(ctx context.Context, req git.PullRequestRequest) (*types.PullRequestRef, error)
	HasHost() bool
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Store     storage.Storage
	Tracker   Tracker
	Engine    Suggester
	Resolver  TargetResolver
	Automator SourceControl
	Ledger    *ledger.Ledger
	Notifier  notify.Notifier // optional

	// Snapshots and ChangeLog, when both set, record change narratives for
	// every search.
	Snapshots *tracker.SnapshotFile
	ChangeLog *tracker.ChangeLog

	// JQL overrides DefaultJQL when set.
	JQL        string
	DefaultJQL string

	BaseBranch string
	Reviewers  []string
	Recipients []string

	// StateDir receives the agent log and last-batch artifact.
	StateDir string

	Interval   time.Duration
	RunOnStart bool
	Location   *time.Location

	Retention config.EventRetentionConfig
	Instances config.InstanceCleanupConfig

	Version string
	Now     func() time.Time
}

// Status is a point-in-time view for the status command.
type Status struct {
	InstanceID     string        `json:"instance_id"`
	Hostname       string        `json:"hostname"`
	PID            int           `json:"pid"`
	Version        string        `json:"version"`
	Running        bool          `json:"running"`
	CycleRunning   bool          `json:"cycle_running"`
	LastCycleAt    time.Time     `json:"last_cycle_at"`
	LastCycle      *CycleSummary `json:"last_cycle,omitempty"`
	ProcessedToday []string      `json:"processed_today"`
	CacheSize      int           `json:"cache_size"`
	PromptOverride bool          `json:"prompt_override"`
	Interval       time.Duration `json:"interval"`
}

// Orchestrator owns the polling loop and the per-ticket pipeline.
type Orchestrator struct {
	cfg        Config
	store      storage.Storage
	cache      *SuggestionCache
	sem        *semaphore.Weighted
	now        func() time.Time
	loc        *time.Location
	instanceID string
	hostname   string
	pid        int

	stopCh  chan struct{}
	doneCh  chan struct{}
	bg      sync.WaitGroup // heartbeat and cleanup loops
	trigger sync.WaitGroup // on-demand runs

	mu        sync.RWMutex
	running   bool
	stopping  bool
	inCycle   bool
	lastCycle *CycleReport
}

// New validates cfg and creates an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Store == nil:
		return nil, fmt.Errorf("storage is required")
	case cfg.Tracker == nil:
		return nil, fmt.Errorf("tracker is required")
	case cfg.Engine == nil:
		return nil, fmt.Errorf("suggestion engine is required")
	case cfg.Resolver == nil:
		return nil, fmt.Errorf("target resolver is required")
	case cfg.Automator == nil:
		return nil, fmt.Errorf("source-control automator is required")
	case cfg.Ledger == nil:
		return nil, fmt.Errorf("ledger is required")
	}
	if cfg.JQL == "" && cfg.DefaultJQL == "" {
		return nil, fmt.Errorf("a search query is required")
	}

	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("failed to get hostname: %w", err)
	}

	if cfg.BaseBranch == "" {
		cfg.BaseBranch = "main"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Retention == (config.EventRetentionConfig{}) {
		cfg.Retention = config.DefaultEventRetentionConfig()
	}
	if cfg.Instances == (config.InstanceCleanupConfig{}) {
		cfg.Instances = config.DefaultInstanceCleanupConfig()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	return &Orchestrator{
		cfg:        cfg,
		store:      cfg.Store,
		cache:      NewSuggestionCache(),
		sem:        semaphore.NewWeighted(1),
		now:        now,
		loc:        loc,
		instanceID: uuid.New().String(),
		hostname:   hostname,
		pid:        os.Getpid(),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// InstanceID identifies this process in activity events.
func (o *Orchestrator) InstanceID() string { return o.instanceID }

// Cache returns the last-suggestion cache.
func (o *Orchestrator) Cache() *SuggestionCache { return o.cache }

// Override returns the one-shot prompt override slot.
func (o *Orchestrator) Override() *ai.PromptOverride { return o.cfg.Engine.Override() }

// Start registers the instance and launches the polling, heartbeat and
// cleanup loops. It returns immediately.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator is already running")
	}
	if o.stopping {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator has been stopped")
	}
	o.running = true
	o.mu.Unlock()

	started := o.now()
	instance := &types.Instance{
		InstanceID:    o.instanceID,
		Hostname:      o.hostname,
		PID:           o.pid,
		Status:        types.InstanceStatusRunning,
		StartedAt:     started,
		LastHeartbeat: started,
		Version:       o.cfg.Version,
		Metadata:      "{}",
	}
	if err := o.store.RegisterInstance(ctx, instance); err != nil {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
		return fmt.Errorf("failed to register instance: %w", err)
	}

	if cleaned, err := o.store.CleanupStaleInstances(ctx, o.cfg.Instances.StaleThresholdSeconds()); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to cleanup stale instances on startup: %v\n", err)
	} else if cleaned > 0 {
		slog.Info("marked stale instances stopped", "count", cleaned)
	}

	go o.loop(ctx)
	o.bg.Add(3)
	go o.heartbeatLoop(ctx)
	go o.cleanupLoop(ctx)
	go o.eventCleanupLoop(ctx)

	slog.Info("orchestrator started", "instance", o.instanceID, "interval", o.cfg.Interval)
	return nil
}

// Stop declines new cycles, lets the in-flight ticket finish and waits for
// every loop to exit or ctx to expire.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator is not running")
	}
	if o.stopping {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator is already stopping")
	}
	o.stopping = true
	o.mu.Unlock()

	close(o.stopCh)

	done := make(chan struct{})
	go func() {
		<-o.doneCh
		o.bg.Wait()
		o.trigger.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := o.store.MarkInstanceStopped(ctx, o.instanceID); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to mark instance as stopped: %v\n", err)
	}

	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
	slog.Info("orchestrator stopped", "instance", o.instanceID)
	return nil
}

func (o *Orchestrator) stopRequested() bool {
	select {
	case <-o.stopCh:
		return true
	default:
		return false
	}
}

// loop runs cycles with a fixed delay: the timer is armed only after a
// cycle has completed.
func (o *Orchestrator) loop(ctx context.Context) {
	defer close(o.doneCh)

	delay := o.cfg.Interval
	if o.cfg.RunOnStart {
		delay = 0
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-timer.C:
		}
		if o.stopRequested() {
			return
		}
		if _, err := o.RunCycle(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "error running cycle: %v\n", err)
		}
		timer.Reset(o.cfg.Interval)
	}
}

func (o *Orchestrator) heartbeatLoop(ctx context.Context) {
	defer o.bg.Done()

	ticker := time.NewTicker(o.cfg.Instances.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
			if err := o.store.UpdateHeartbeat(ctx, o.instanceID); err != nil && ctx.Err() == nil {
				fmt.Fprintf(os.Stderr, "warning: failed to update heartbeat: %v\n", err)
			}
		}
	}
}

// Trigger requests an immediate run for key and returns without waiting.
// The run serializes with the polling loop.
func (o *Orchestrator) Trigger(ctx context.Context, key string) error {
	if !types.ValidTicketKey(key) {
		return fmt.Errorf("invalid ticket key %q", key)
	}
	o.mu.RLock()
	stopping := o.stopping
	o.mu.RUnlock()
	if stopping {
		return fmt.Errorf("orchestrator is stopping")
	}

	o.logEvent(ctx, events.EventTypeProcessingTriggered, events.SeverityInfo, key, "",
		fmt.Sprintf("Processing triggered for ticket: %s", key), nil)

	o.trigger.Add(1)
	go func() {
		defer o.trigger.Done()
		res, err := o.ProcessTicket(context.WithoutCancel(ctx), key)
		if err != nil {
			slog.Error("on-demand processing failed", "ticket", key, "error", err)
			return
		}
		slog.Info("on-demand processing finished", "ticket", key, "outcome", res.Outcome)
	}()
	return nil
}

// Status reports loop state, today's ledger and the cache size.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()

	s := Status{
		InstanceID:     o.instanceID,
		Hostname:       o.hostname,
		PID:            o.pid,
		Version:        o.cfg.Version,
		Running:        o.running && !o.stopping,
		CycleRunning:   o.inCycle,
		ProcessedToday: o.cfg.Ledger.ProcessedToday(),
		CacheSize:      o.cache.Len(),
		PromptOverride: o.cfg.Engine.Override().Get() != "",
		Interval:       o.cfg.Interval,
	}
	if o.lastCycle != nil {
		s.LastCycleAt = o.lastCycle.FinishedAt
		sum := o.lastCycle.Summary()
		s.LastCycle = &sum
	}
	return s
}
