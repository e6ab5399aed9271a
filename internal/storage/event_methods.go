package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/radiolink/radiolink/internal/models"
)

// CreateEventLog creates an event log entry
func (s *PostgresStore) CreateEventLog(ctx context.Context, event *models.EventLog) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO event_logs (
			id, created_at, device, type, level, state, code, tx_id,
			network_id, description, details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.getDB().ExecContext(ctx, query,
		event.ID, event.CreatedAt, event.Device, event.Type, event.Level,
		event.State, event.Code, event.TxID, event.NetworkID,
		event.Description, event.Details,
	)

	return err
}

// ListEventLogs lists event logs with filters
func (s *PostgresStore) ListEventLogs(ctx context.Context, filters EventLogFilters, limit, offset int) ([]*models.EventLog, int64, error) {
	w := filters.where()

	// Get count
	var count int64
	countQuery := "SELECT COUNT(*) FROM event_logs WHERE 1=1" + w.String()
	if err := s.getDB().QueryRowContext(ctx, countQuery, w.args...).Scan(&count); err != nil {
		return nil, 0, err
	}

	// Get rows
	args := append(w.args, limit, offset)
	query := fmt.Sprintf(`
		SELECT id, created_at, device, type, level, state, code, tx_id,
		       network_id, description, details
		FROM event_logs WHERE 1=1%s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, w.String(), len(args)-1, len(args))

	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*models.EventLog
	for rows.Next() {
		event := &models.EventLog{}
		err := rows.Scan(
			&event.ID, &event.CreatedAt, &event.Device, &event.Type,
			&event.Level, &event.State, &event.Code, &event.TxID,
			&event.NetworkID, &event.Description, &event.Details,
		)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, event)
	}

	return events, count, rows.Err()
}
