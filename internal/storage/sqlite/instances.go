package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/steveyegge/fixbot/internal/types"
)

// RegisterInstance records an orchestrator process, replacing any earlier
// row with the same instance ID.
func (s *SQLiteStorage) RegisterInstance(ctx context.Context, instance *types.Instance) error {
	if err := instance.Validate(); err != nil {
		return fmt.Errorf("invalid instance: %w", err)
	}
	metadata := instance.Metadata
	if metadata == "" {
		metadata = "{}"
	}

	query := `
		INSERT INTO instances (
			instance_id, hostname, pid, status, started_at, last_heartbeat, version, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(instance_id) DO UPDATE SET
			hostname = excluded.hostname,
			pid = excluded.pid,
			status = excluded.status,
			last_heartbeat = excluded.last_heartbeat,
			version = excluded.version,
			metadata = excluded.metadata
	`

	_, err := s.db.ExecContext(ctx, query,
		instance.InstanceID,
		instance.Hostname,
		instance.PID,
		instance.Status,
		instance.StartedAt.UTC(),
		instance.LastHeartbeat.UTC(),
		instance.Version,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to register instance: %w", err)
	}

	return nil
}

// UpdateHeartbeat updates the last_heartbeat timestamp for an instance
func (s *SQLiteStorage) UpdateHeartbeat(ctx context.Context, instanceID string) error {
	return s.updateInstance(ctx, `UPDATE instances SET last_heartbeat = ? WHERE instance_id = ?`, time.Now().UTC(), instanceID)
}

// MarkInstanceStopped sets an instance's status to stopped.
func (s *SQLiteStorage) MarkInstanceStopped(ctx context.Context, instanceID string) error {
	return s.updateInstance(ctx, `UPDATE instances SET status = 'stopped', last_heartbeat = ? WHERE instance_id = ?`, time.Now().UTC(), instanceID)
}

func (s *SQLiteStorage) updateInstance(ctx context.Context, query string, at time.Time, instanceID string) error {
	result, err := s.db.ExecContext(ctx, query, at, instanceID)
	if err != nil {
		return fmt.Errorf("failed to update instance: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("instance not found: %s", instanceID)
	}
	return nil
}

// GetActiveInstances returns all instances with status='running'
func (s *SQLiteStorage) GetActiveInstances(ctx context.Context) ([]*types.Instance, error) {
	query := `
		SELECT instance_id, hostname, pid, status, started_at, last_heartbeat, version, metadata
		FROM instances
		WHERE status = 'running'
		ORDER BY last_heartbeat DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active instances: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var instances []*types.Instance
	for rows.Next() {
		instance := &types.Instance{}
		err := rows.Scan(
			&instance.InstanceID,
			&instance.Hostname,
			&instance.PID,
			&instance.Status,
			&instance.StartedAt,
			&instance.LastHeartbeat,
			&instance.Version,
			&instance.Metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		instances = append(instances, instance)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}

	return instances, nil
}

// CleanupStaleInstances marks running instances as stopped when their
// last_heartbeat is older than staleThreshold seconds.
func (s *SQLiteStorage) CleanupStaleInstances(ctx context.Context, staleThreshold int) (int, error) {
	cutoff := time.Now().Add(-time.Duration(staleThreshold) * time.Second).UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE instances
		SET status = 'stopped'
		WHERE status = 'running'
		  AND last_heartbeat < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup stale instances: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rows), nil
}
