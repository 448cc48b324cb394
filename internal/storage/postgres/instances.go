package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/steveyegge/fixbot/internal/types"
)

// RegisterInstance records an orchestrator process, replacing any earlier
// row with the same instance ID.
func (p *PostgresStorage) RegisterInstance(ctx context.Context, instance *types.Instance) error {
	if err := instance.Validate(); err != nil {
		return fmt.Errorf("invalid instance: %w", err)
	}
	metadata := instance.Metadata
	if metadata == "" {
		metadata = "{}"
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO instances (
			instance_id, hostname, pid, status, started_at, last_heartbeat, version, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (instance_id) DO UPDATE SET
			hostname = EXCLUDED.hostname,
			pid = EXCLUDED.pid,
			status = EXCLUDED.status,
			last_heartbeat = EXCLUDED.last_heartbeat,
			version = EXCLUDED.version,
			metadata = EXCLUDED.metadata
	`,
		instance.InstanceID,
		instance.Hostname,
		instance.PID,
		string(instance.Status),
		instance.StartedAt,
		instance.LastHeartbeat,
		instance.Version,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to register instance: %w", err)
	}
	return nil
}

// UpdateHeartbeat updates the last_heartbeat timestamp for an instance
func (p *PostgresStorage) UpdateHeartbeat(ctx context.Context, instanceID string) error {
	return p.updateInstance(ctx, `UPDATE instances SET last_heartbeat = $1 WHERE instance_id = $2`, instanceID)
}

// MarkInstanceStopped sets an instance's status to stopped.
func (p *PostgresStorage) MarkInstanceStopped(ctx context.Context, instanceID string) error {
	return p.updateInstance(ctx, `UPDATE instances SET status = 'stopped', last_heartbeat = $1 WHERE instance_id = $2`, instanceID)
}

func (p *PostgresStorage) updateInstance(ctx context.Context, query, instanceID string) error {
	tag, err := p.pool.Exec(ctx, query, time.Now(), instanceID)
	if err != nil {
		return fmt.Errorf("failed to update instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("instance not found: %s", instanceID)
	}
	return nil
}

// GetActiveInstances returns all instances with status='running'
func (p *PostgresStorage) GetActiveInstances(ctx context.Context) ([]*types.Instance, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT instance_id, hostname, pid, status, started_at, last_heartbeat, version, metadata::text
		FROM instances
		WHERE status = 'running'
		ORDER BY last_heartbeat DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active instances: %w", err)
	}
	defer rows.Close()

	var instances []*types.Instance
	for rows.Next() {
		instance := &types.Instance{}
		var status string
		if err := rows.Scan(
			&instance.InstanceID,
			&instance.Hostname,
			&instance.PID,
			&status,
			&instance.StartedAt,
			&instance.LastHeartbeat,
			&instance.Version,
			&instance.Metadata,
		); err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		instance.Status = types.InstanceStatus(status)
		instances = append(instances, instance)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}
	return instances, nil
}

// CleanupStaleInstances marks running instances as stopped when their
// last_heartbeat is older than staleThreshold seconds.
func (p *PostgresStorage) CleanupStaleInstances(ctx context.Context, staleThreshold int) (int, error) {
	cutoff := time.Now().Add(-time.Duration(staleThreshold) * time.Second)
	tag, err := p.pool.Exec(ctx, `
		UPDATE instances
		SET status = 'stopped'
		WHERE status = 'running' AND last_heartbeat < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup stale instances: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
