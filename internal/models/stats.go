package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/radiolink/radiolink/pkg/radio"
)

// StatsSnapshot is a point-in-time copy of the radio statistics
type StatsSnapshot struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	Device    string    `json:"device" db:"device"`
	State     string    `json:"state" db:"state"`

	PacketsSent        int64 `json:"packetsSent" db:"packets_sent"`
	PacketsReceived    int64 `json:"packetsReceived" db:"packets_received"`
	PacketsLost        int64 `json:"packetsLost" db:"packets_lost"`
	RetriesAttempted   int64 `json:"retriesAttempted" db:"retries_attempted"`
	CRCErrors          int64 `json:"crcErrors" db:"crc_errors"`
	Timeouts           int64 `json:"timeouts" db:"timeouts"`
	LastRSSI           int   `json:"lastRssi" db:"last_rssi"`
	ChannelUtilization int   `json:"channelUtilization" db:"channel_utilization"`
	TotalAirtimeUs     int64 `json:"totalAirtimeUs" db:"total_airtime_us"`
	PowerConsumption   int64 `json:"powerConsumptionUah" db:"power_consumption_uah"`
}

// NewStatsSnapshot copies stats into a snapshot for device.
func NewStatsSnapshot(device radio.Address, state radio.PowerState, stats radio.Statistics) *StatsSnapshot {
	return &StatsSnapshot{
		ID:                 uuid.New(),
		CreatedAt:          time.Now(),
		Device:             device.String(),
		State:              state.String(),
		PacketsSent:        int64(stats.PacketsSent),
		PacketsReceived:    int64(stats.PacketsReceived),
		PacketsLost:        int64(stats.PacketsLost),
		RetriesAttempted:   int64(stats.RetriesAttempted),
		CRCErrors:          int64(stats.CRCErrors),
		Timeouts:           int64(stats.Timeouts),
		LastRSSI:           int(stats.LastRSSI),
		ChannelUtilization: int(stats.ChannelUtilization),
		TotalAirtimeUs:     int64(stats.TotalAirtimeUs),
		PowerConsumption:   int64(stats.PowerConsumption),
	}
}
