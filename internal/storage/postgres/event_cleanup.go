package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/steveyegge/fixbot/internal/events"
)

// CleanupEventsByAge deletes info and warning events older than
// retentionDays and error and critical events older than
// criticalRetentionDays, batchSize rows at a time.
func (p *PostgresStorage) CleanupEventsByAge(ctx context.Context, retentionDays, criticalRetentionDays, batchSize int) (int, error) {
	if retentionDays < 0 || criticalRetentionDays < 0 {
		return 0, fmt.Errorf("retention days cannot be negative")
	}
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}

	query := `
		DELETE FROM events
		WHERE id IN (
			SELECT id FROM events
			WHERE timestamp < $1 AND severity = ANY($2)
			ORDER BY timestamp ASC
			LIMIT $3
		)
	`

	groups := []struct {
		cutoff     time.Time
		severities []string
	}{
		{time.Now().AddDate(0, 0, -retentionDays), []string{"info", "warning"}},
		{time.Now().AddDate(0, 0, -criticalRetentionDays), []string{"error", "critical"}},
	}

	totalDeleted := 0
	for _, g := range groups {
		for {
			if err := ctx.Err(); err != nil {
				return totalDeleted, err
			}
			tag, err := p.pool.Exec(ctx, query, g.cutoff, g.severities, batchSize)
			if err != nil {
				return totalDeleted, fmt.Errorf("failed to delete old events: %w", err)
			}
			n := int(tag.RowsAffected())
			totalDeleted += n
			if n < batchSize {
				break
			}
		}
	}

	return totalDeleted, nil
}

// CleanupEventsByTicketLimit keeps at most perTicketLimit events per ticket,
// deleting the oldest info and warning events first. 0 means unlimited.
func (p *PostgresStorage) CleanupEventsByTicketLimit(ctx context.Context, perTicketLimit, batchSize int) (int, error) {
	if perTicketLimit < 0 {
		return 0, fmt.Errorf("per-ticket limit cannot be negative")
	}
	if perTicketLimit == 0 {
		return 0, nil
	}
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}

	rows, err := p.pool.Query(ctx, `
		SELECT ticket_key, COUNT(*)
		FROM events
		WHERE ticket_key != ''
		GROUP BY ticket_key
		HAVING COUNT(*) > $1
	`, perTicketLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to query ticket event counts: %w", err)
	}

	over := make(map[string]int)
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan ticket count: %w", err)
		}
		over[key] = int(count) - perTicketLimit
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating ticket counts: %w", err)
	}

	totalDeleted := 0
	for key, excess := range over {
		deleted, err := p.deleteOldest(ctx, key, excess, batchSize)
		totalDeleted += deleted
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to delete events for ticket %s: %w", key, err)
		}
	}
	return totalDeleted, nil
}

// CleanupEventsByGlobalLimit deletes the oldest info and warning events
// until at most globalLimit events remain.
func (p *PostgresStorage) CleanupEventsByGlobalLimit(ctx context.Context, globalLimit, batchSize int) (int, error) {
	if globalLimit < 1 {
		return 0, fmt.Errorf("global limit must be at least 1")
	}
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}

	var currentCount int64
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM events").Scan(&currentCount); err != nil {
		return 0, fmt.Errorf("failed to get event count: %w", err)
	}
	if int(currentCount) <= globalLimit {
		return 0, nil
	}

	return p.deleteOldest(ctx, "", int(currentCount)-globalLimit, batchSize)
}

// deleteOldest removes up to count non-critical events, restricted to
// ticketKey when it is non-empty.
func (p *PostgresStorage) deleteOldest(ctx context.Context, ticketKey string, count, batchSize int) (int, error) {
	query := `
		DELETE FROM events
		WHERE id IN (
			SELECT id FROM events
			WHERE severity NOT IN ('error', 'critical')
			AND ($1 = '' OR ticket_key = $1)
			ORDER BY timestamp ASC
			LIMIT $2
		)
	`

	totalDeleted := 0
	remaining := count
	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return totalDeleted, err
		}
		limit := min(batchSize, remaining)
		tag, err := p.pool.Exec(ctx, query, ticketKey, limit)
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to execute delete: %w", err)
		}
		n := int(tag.RowsAffected())
		totalDeleted += n
		remaining -= n
		if n < limit {
			break
		}
	}
	return totalDeleted, nil
}

// GetEventCounts returns event count statistics
func (p *PostgresStorage) GetEventCounts(ctx context.Context) (*events.EventCounts, error) {
	counts := &events.EventCounts{}

	var total int64
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM events").Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to get total event count: %w", err)
	}
	counts.TotalEvents = int(total)

	var err error
	if counts.EventsByTicket, err = p.countBy(ctx, "ticket_key"); err != nil {
		return nil, err
	}
	if counts.EventsBySeverity, err = p.countBy(ctx, "severity"); err != nil {
		return nil, err
	}
	if counts.EventsByType, err = p.countBy(ctx, "type"); err != nil {
		return nil, err
	}
	return counts, nil
}

func (p *PostgresStorage) countBy(ctx context.Context, column string) (map[string]int, error) {
	rows, err := p.pool.Query(ctx, fmt.Sprintf("SELECT %s, COUNT(*) FROM events GROUP BY %s", column, column))
	if err != nil {
		return nil, fmt.Errorf("failed to query events by %s: %w", column, err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		out[key] = int(count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s counts: %w", column, err)
	}
	return out, nil
}

// VacuumDatabase reclaims space from the events table.
func (p *PostgresStorage) VacuumDatabase(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, "VACUUM events"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	return nil
}
