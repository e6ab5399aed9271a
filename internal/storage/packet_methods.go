package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/radiolink/radiolink/internal/models"
)

// CreatePacketRecord appends an entry to the packet log
func (s *PostgresStore) CreatePacketRecord(ctx context.Context, record *models.PacketRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO packet_log (
			id, created_at, device, direction, source, destination, packet_id,
			priority, require_ack, retry_count, timestamp, payload, tx_id,
			error_code, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := s.getDB().ExecContext(ctx, query,
		record.ID, record.CreatedAt, record.Device, record.Direction,
		record.Source, record.Destination, record.PacketID, record.Priority,
		record.RequireAck, record.RetryCount, record.Timestamp, record.Payload,
		record.TxID, record.ErrorCode, record.Status,
	)
	return err
}

// ListPacketRecords lists packet log entries, newest first
func (s *PostgresStore) ListPacketRecords(ctx context.Context, filters PacketFilters, limit, offset int) ([]*models.PacketRecord, int64, error) {
	w := filters.where()

	var count int64
	countQuery := "SELECT COUNT(*) FROM packet_log WHERE 1=1" + w.String()
	if err := s.getDB().QueryRowContext(ctx, countQuery, w.args...).Scan(&count); err != nil {
		return nil, 0, err
	}

	args := append(w.args, limit, offset)
	query := fmt.Sprintf(`
		SELECT id, created_at, device, direction, source, destination, packet_id,
		       priority, require_ack, retry_count, timestamp, payload, tx_id,
		       error_code, status
		FROM packet_log WHERE 1=1%s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, w.String(), len(args)-1, len(args))

	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []*models.PacketRecord
	for rows.Next() {
		r := &models.PacketRecord{}
		err := rows.Scan(
			&r.ID, &r.CreatedAt, &r.Device, &r.Direction, &r.Source,
			&r.Destination, &r.PacketID, &r.Priority, &r.RequireAck,
			&r.RetryCount, &r.Timestamp, &r.Payload, &r.TxID,
			&r.ErrorCode, &r.Status,
		)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, r)
	}

	return records, count, rows.Err()
}
