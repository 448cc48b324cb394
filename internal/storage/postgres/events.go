package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/steveyegge/fixbot/internal/events"
)

const eventColumns = `id, type, timestamp, ticket_key, instance_id, attempt_id, severity, message, data`

// StoreEvent stores a new event in the database
func (p *PostgresStorage) StoreEvent(ctx context.Context, event *events.Event) error {
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	query := `INSERT INTO events (` + eventColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = p.pool.Exec(ctx, query,
		event.ID,
		string(event.Type),
		event.Timestamp,
		event.TicketKey,
		event.InstanceID,
		event.AttemptID,
		string(event.Severity),
		event.Message,
		dataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to store event (type=%s, ticket=%s): %w", event.Type, event.TicketKey, err)
	}

	return nil
}

// GetEvents retrieves events matching the given filter, most recent first
func (p *PostgresStorage) GetEvents(ctx context.Context, filter events.EventFilter) ([]*events.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE 1=1`
	args := []interface{}{}
	argNum := 1

	if filter.TicketKey != "" {
		query += fmt.Sprintf(" AND ticket_key = $%d", argNum)
		args = append(args, filter.TicketKey)
		argNum++
	}
	if filter.Type != "" {
		query += fmt.Sprintf(" AND type = $%d", argNum)
		args = append(args, string(filter.Type))
		argNum++
	}
	if filter.Severity != "" {
		query += fmt.Sprintf(" AND severity = $%d", argNum)
		args = append(args, string(filter.Severity))
		argNum++
	}
	if !filter.AfterTime.IsZero() {
		query += fmt.Sprintf(" AND timestamp > $%d", argNum)
		args = append(args, filter.AfterTime)
		argNum++
	}
	if !filter.BeforeTime.IsZero() {
		query += fmt.Sprintf(" AND timestamp < $%d", argNum)
		args = append(args, filter.BeforeTime)
		argNum++
	}

	query += " ORDER BY timestamp DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetEventsByTicket retrieves all events for a ticket in chronological order
func (p *PostgresStorage) GetEventsByTicket(ctx context.Context, ticketKey string) ([]*events.Event, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+eventColumns+` FROM events WHERE ticket_key = $1 ORDER BY timestamp ASC`, ticketKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query events by ticket: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetRecentEvents retrieves the most recent events up to limit
func (p *PostgresStorage) GetRecentEvents(ctx context.Context, limit int) ([]*events.Event, error) {
	return p.GetEvents(ctx, events.EventFilter{Limit: limit})
}

func scanEvents(rows pgx.Rows) ([]*events.Event, error) {
	var result []*events.Event

	for rows.Next() {
		var event events.Event
		var eventType, severity string
		var dataJSON []byte
		var timestamp time.Time

		err := rows.Scan(
			&event.ID,
			&eventType,
			&timestamp,
			&event.TicketKey,
			&event.InstanceID,
			&event.AttemptID,
			&severity,
			&event.Message,
			&dataJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		event.Type = events.EventType(eventType)
		event.Severity = events.EventSeverity(severity)
		event.Timestamp = timestamp
		event.Data = make(map[string]interface{})
		if len(dataJSON) > 0 {
			if err := json.Unmarshal(dataJSON, &event.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
			}
		}

		result = append(result, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}

	return result, nil
}
