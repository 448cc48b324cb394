package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/fixbot/internal/events"
)

// CleanupEventsByAge deletes events older than the retention period.
// Info and warning events go after retentionDays, error and critical
// events after criticalRetentionDays. Deletions run in batches.
func (s *SQLiteStorage) CleanupEventsByAge(ctx context.Context, retentionDays, criticalRetentionDays, batchSize int) (int, error) {
	if retentionDays < 0 || criticalRetentionDays < 0 {
		return 0, fmt.Errorf("retention days cannot be negative")
	}
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}

	totalDeleted := 0

	regularCutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted, err := s.deleteOldEventsBatch(ctx, regularCutoff, []string{"info", "warning"}, batchSize)
	if err != nil {
		return totalDeleted, fmt.Errorf("failed to delete old regular events: %w", err)
	}
	totalDeleted += deleted

	criticalCutoff := time.Now().AddDate(0, 0, -criticalRetentionDays)
	deleted, err = s.deleteOldEventsBatch(ctx, criticalCutoff, []string{"error", "critical"}, batchSize)
	if err != nil {
		return totalDeleted, fmt.Errorf("failed to delete old critical events: %w", err)
	}
	totalDeleted += deleted

	return totalDeleted, nil
}

func (s *SQLiteStorage) deleteOldEventsBatch(ctx context.Context, cutoff time.Time, severities []string, batchSize int) (int, error) {
	totalDeleted := 0

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(severities)), ", ")
	query := fmt.Sprintf(`
		DELETE FROM events
		WHERE id IN (
			SELECT id FROM events
			WHERE timestamp < ?
			AND severity IN (%s)
			ORDER BY timestamp ASC
			LIMIT ?
		)
	`, placeholders)

	args := []interface{}{cutoff.UTC()}
	for _, sev := range severities {
		args = append(args, sev)
	}
	args = append(args, batchSize)

	for {
		if err := ctx.Err(); err != nil {
			return totalDeleted, err
		}

		rowsAffected, err := s.execDelete(ctx, query, args...)
		if err != nil {
			return totalDeleted, err
		}
		totalDeleted += rowsAffected

		if rowsAffected < batchSize {
			break
		}
	}

	return totalDeleted, nil
}

// CleanupEventsByTicketLimit keeps at most perTicketLimit events per ticket.
// The oldest info and warning events are deleted first; error and critical
// events are never deleted by this limit. 0 means unlimited.
func (s *SQLiteStorage) CleanupEventsByTicketLimit(ctx context.Context, perTicketLimit, batchSize int) (int, error) {
	if perTicketLimit < 0 {
		return 0, fmt.Errorf("per-ticket limit cannot be negative")
	}
	if perTicketLimit == 0 {
		return 0, nil
	}
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ticket_key, COUNT(*) AS event_count
		FROM events
		WHERE ticket_key != ''
		GROUP BY ticket_key
		HAVING event_count > ?
	`, perTicketLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to query ticket event counts: %w", err)
	}

	over := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("failed to scan ticket count: %w", err)
		}
		over[key] = count - perTicketLimit
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, fmt.Errorf("error iterating ticket counts: %w", err)
	}
	_ = rows.Close()

	totalDeleted := 0
	for key, excess := range over {
		deleted, err := s.deleteOldest(ctx, "AND ticket_key = ?", []interface{}{key}, excess, batchSize)
		totalDeleted += deleted
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to delete events for ticket %s: %w", key, err)
		}
	}

	return totalDeleted, nil
}

// CleanupEventsByGlobalLimit deletes the oldest info and warning events
// until at most globalLimit events remain.
func (s *SQLiteStorage) CleanupEventsByGlobalLimit(ctx context.Context, globalLimit, batchSize int) (int, error) {
	if globalLimit < 1 {
		return 0, fmt.Errorf("global limit must be at least 1")
	}
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}

	var currentCount int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&currentCount); err != nil {
		return 0, fmt.Errorf("failed to get event count: %w", err)
	}
	if currentCount <= globalLimit {
		return 0, nil
	}

	return s.deleteOldest(ctx, "", nil, currentCount-globalLimit, batchSize)
}

// deleteOldest removes up to count non-critical events matching cond.
func (s *SQLiteStorage) deleteOldest(ctx context.Context, cond string, condArgs []interface{}, count, batchSize int) (int, error) {
	query := `
		DELETE FROM events
		WHERE id IN (
			SELECT id FROM events
			WHERE severity NOT IN ('error', 'critical') ` + cond + `
			ORDER BY timestamp ASC
			LIMIT ?
		)
	`

	totalDeleted := 0
	remaining := count
	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return totalDeleted, err
		}

		limit := min(batchSize, remaining)
		args := append(append([]interface{}{}, condArgs...), limit)

		rowsAffected, err := s.execDelete(ctx, query, args...)
		if err != nil {
			return totalDeleted, err
		}
		totalDeleted += rowsAffected
		remaining -= rowsAffected

		// no more non-critical events to delete
		if rowsAffected < limit {
			break
		}
	}

	return totalDeleted, nil
}

func (s *SQLiteStorage) execDelete(ctx context.Context, query string, args ...interface{}) (int, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to execute delete: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// GetEventCounts returns event count statistics
func (s *SQLiteStorage) GetEventCounts(ctx context.Context) (*events.EventCounts, error) {
	counts := &events.EventCounts{}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&counts.TotalEvents); err != nil {
		return nil, fmt.Errorf("failed to get total event count: %w", err)
	}

	var err error
	if counts.EventsByTicket, err = s.countBy(ctx, "ticket_key"); err != nil {
		return nil, err
	}
	if counts.EventsBySeverity, err = s.countBy(ctx, "severity"); err != nil {
		return nil, err
	}
	if counts.EventsByType, err = s.countBy(ctx, "type"); err != nil {
		return nil, err
	}

	return counts, nil
}

// countBy groups events by a fixed column name.
func (s *SQLiteStorage) countBy(ctx context.Context, column string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT %s, COUNT(*) FROM events GROUP BY %s", column, column))
	if err != nil {
		return nil, fmt.Errorf("failed to query events by %s: %w", column, err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		out[key] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s counts: %w", column, err)
	}
	return out, nil
}

// VacuumDatabase reclaims disk space after large deletions.
func (s *SQLiteStorage) VacuumDatabase(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	return nil
}
