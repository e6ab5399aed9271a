package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/radiolink/radiolink/internal/models"
)

// CreateStatsSnapshot stores a statistics snapshot
func (s *PostgresStore) CreateStatsSnapshot(ctx context.Context, snap *models.StatsSnapshot) error {
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO stats_snapshots (
			id, created_at, device, state, packets_sent, packets_received,
			packets_lost, retries_attempted, crc_errors, timeouts, last_rssi,
			channel_utilization, total_airtime_us, power_consumption_uah
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := s.getDB().ExecContext(ctx, query,
		snap.ID, snap.CreatedAt, snap.Device, snap.State, snap.PacketsSent,
		snap.PacketsReceived, snap.PacketsLost, snap.RetriesAttempted,
		snap.CRCErrors, snap.Timeouts, snap.LastRSSI, snap.ChannelUtilization,
		snap.TotalAirtimeUs, snap.PowerConsumption,
	)
	return err
}

// ListStatsSnapshots lists snapshots for a device, newest first
func (s *PostgresStore) ListStatsSnapshots(ctx context.Context, device string, limit, offset int) ([]*models.StatsSnapshot, int64, error) {
	var count int64
	err := s.getDB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM stats_snapshots WHERE device = $1`, device).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.getDB().QueryContext(ctx, `
		SELECT id, created_at, device, state, packets_sent, packets_received,
		       packets_lost, retries_attempted, crc_errors, timeouts, last_rssi,
		       channel_utilization, total_airtime_us, power_consumption_uah
		FROM stats_snapshots WHERE device = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, device, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var snaps []*models.StatsSnapshot
	for rows.Next() {
		snap := &models.StatsSnapshot{}
		err := rows.Scan(
			&snap.ID, &snap.CreatedAt, &snap.Device, &snap.State, &snap.PacketsSent,
			&snap.PacketsReceived, &snap.PacketsLost, &snap.RetriesAttempted,
			&snap.CRCErrors, &snap.Timeouts, &snap.LastRSSI, &snap.ChannelUtilization,
			&snap.TotalAirtimeUs, &snap.PowerConsumption,
		)
		if err != nil {
			return nil, 0, err
		}
		snaps = append(snaps, snap)
	}

	return snaps, count, rows.Err()
}
