package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/radiolink/radiolink/pkg/radio"
)

// Direction of a logged packet
type Direction string

const (
	DirectionRX Direction = "RX"
	DirectionTX Direction = "TX"
)

// PacketRecord is one entry in the packet log
type PacketRecord struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	Device      string    `json:"device" db:"device"`
	Direction   Direction `json:"direction" db:"direction"`
	Source      string    `json:"source" db:"source"`
	Destination string    `json:"destination" db:"destination"`
	PacketID    int       `json:"packetId" db:"packet_id"`
	Priority    string    `json:"priority" db:"priority"`
	RequireAck  bool      `json:"requireAck" db:"require_ack"`
	RetryCount  int       `json:"retryCount" db:"retry_count"`
	Timestamp   int64     `json:"timestamp" db:"timestamp"`
	Payload     []byte    `json:"payload" db:"payload"`

	TxID      *int   `json:"txId,omitempty" db:"tx_id"`
	ErrorCode int    `json:"errorCode" db:"error_code"`
	Status    string `json:"status" db:"status"`
}

// NewPacketRecord builds a packet log entry for a packet seen by device.
func NewPacketRecord(device radio.Address, dir Direction, pkt radio.Packet) *PacketRecord {
	payload := make([]byte, len(pkt.Payload))
	copy(payload, pkt.Payload)

	return &PacketRecord{
		ID:          uuid.New(),
		CreatedAt:   time.Now(),
		Device:      device.String(),
		Direction:   dir,
		Source:      pkt.Source.String(),
		Destination: pkt.Destination.String(),
		PacketID:    int(pkt.ID),
		Priority:    pkt.Priority.String(),
		RequireAck:  pkt.RequireAck,
		RetryCount:  int(pkt.RetryCount),
		Timestamp:   int64(pkt.Timestamp),
		Payload:     payload,
		Status:      "OK",
	}
}
