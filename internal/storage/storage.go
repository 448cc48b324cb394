// Package storage selects the activity store backend and owns the state
// directory layout and its exclusive lock.
package storage

import (
	"context"
	"fmt"

	"github.com/steveyegge/fixbot/internal/events"
	"github.com/steveyegge/fixbot/internal/storage/postgres"
	"github.com/steveyegge/fixbot/internal/storage/sqlite"
	"github.com/steveyegge/fixbot/internal/types"
)

// Storage is the activity store: remediation events and the orchestrator
// instances that emitted them.
type Storage interface {
	// Events
	StoreEvent(ctx context.Context, event *events.Event) error
	GetEvents(ctx context.Context, filter events.EventFilter) ([]*events.Event, error)
	GetEventsByTicket(ctx context.Context, ticketKey string) ([]*events.Event, error)
	GetRecentEvents(ctx context.Context, limit int) ([]*events.Event, error)

	// Event cleanup
	CleanupEventsByAge(ctx context.Context, retentionDays, criticalRetentionDays, batchSize int) (int, error)
	CleanupEventsByTicketLimit(ctx context.Context, perTicketLimit, batchSize int) (int, error)
	CleanupEventsByGlobalLimit(ctx context.Context, globalLimit, batchSize int) (int, error)
	GetEventCounts(ctx context.Context) (*events.EventCounts, error)
	VacuumDatabase(ctx context.Context) error

	// Instances
	RegisterInstance(ctx context.Context, instance *types.Instance) error
	UpdateHeartbeat(ctx context.Context, instanceID string) error
	MarkInstanceStopped(ctx context.Context, instanceID string) error
	GetActiveInstances(ctx context.Context) ([]*types.Instance, error)
	CleanupStaleInstances(ctx context.Context, staleThreshold int) (int, error)

	Close() error
}

// Backend names.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds storage configuration
type Config struct {
	Backend  string           `mapstructure:"backend" yaml:"backend"`
	Path     string           `mapstructure:"path" yaml:"path"`
	Postgres *postgres.Config `mapstructure:"postgres" yaml:"postgres"`
}

// DefaultConfig returns the default storage configuration
func DefaultConfig() *Config {
	return &Config{
		Backend:  BackendSQLite,
		Path:     DatabasePath(DefaultStateDir),
		Postgres: postgres.DefaultConfig(),
	}
}

// NewStorage creates a new storage backend based on configuration
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	switch cfg.Backend {
	case "", BackendSQLite:
		store, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return store, nil
	case BackendPostgres:
		store, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", cfg.Backend)
	}
}

// Compile-time interface checks
var _ Storage = (*sqlite.SQLiteStorage)(nil)
var _ Storage = (*postgres.PostgresStorage)(nil)
var _ events.EventStore = Storage(nil)
