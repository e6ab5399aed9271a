package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/radiolink/radiolink/pkg/radio"
)

// EventLog represents an event log entry
type EventLog struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	Device    string     `json:"device" db:"device"`
	Type      EventType  `json:"type" db:"type"`
	Level     EventLevel `json:"level" db:"level"`
	State     string     `json:"state" db:"state"`
	Code      int        `json:"code" db:"code"`
	TxID      *int       `json:"txId,omitempty" db:"tx_id"`
	NetworkID *int       `json:"networkId,omitempty" db:"network_id"`

	Description string  `json:"description" db:"description"`
	Details     Details `json:"details,omitempty" db:"details"`
}

// EventType represents event types
type EventType string

const (
	EventTypeStateChanged    EventType = "STATE_CHANGED"
	EventTypePacketSent      EventType = "PACKET_SENT"
	EventTypePacketLost      EventType = "PACKET_LOST"
	EventTypePacketReceived  EventType = "PACKET_RECEIVED"
	EventTypePacketDropped   EventType = "PACKET_DROPPED"
	EventTypeTxCompleted     EventType = "TX_COMPLETED"
	EventTypeNetworkJoined   EventType = "NETWORK_JOINED"
	EventTypeNetworkLeft     EventType = "NETWORK_LEFT"
	EventTypeStatisticsReset EventType = "STATISTICS_RESET"

	// System events
	EventTypeAPICall     EventType = "API_CALL"
	EventTypeIntegration EventType = "INTEGRATION"
)

// EventLevel represents event severity levels
type EventLevel string

const (
	EventLevelDebug   EventLevel = "DEBUG"
	EventLevelInfo    EventLevel = "INFO"
	EventLevelWarning EventLevel = "WARNING"
	EventLevelError   EventLevel = "ERROR"
)

var radioEventTypes = map[radio.EventType]EventType{
	radio.EventStateChanged:    EventTypeStateChanged,
	radio.EventPacketSent:      EventTypePacketSent,
	radio.EventPacketLost:      EventTypePacketLost,
	radio.EventPacketReceived:  EventTypePacketReceived,
	radio.EventPacketDropped:   EventTypePacketDropped,
	radio.EventTxCompleted:     EventTypeTxCompleted,
	radio.EventNetworkJoined:   EventTypeNetworkJoined,
	radio.EventNetworkLeft:     EventTypeNetworkLeft,
	radio.EventStatisticsReset: EventTypeStatisticsReset,
}

// NewEventLog converts a radio event into a log entry for device.
func NewEventLog(device radio.Address, evt radio.Event) *EventLog {
	typ, ok := radioEventTypes[evt.Type]
	if !ok {
		typ = EventType(evt.Type)
	}

	level := EventLevelInfo
	switch {
	case evt.Err != nil && evt.Type == radio.EventPacketDropped:
		level = EventLevelWarning
	case evt.Err != nil:
		level = EventLevelError
	case evt.Type == radio.EventStateChanged || evt.Type == radio.EventPacketReceived:
		level = EventLevelDebug
	}

	e := &EventLog{
		ID:          uuid.New(),
		CreatedAt:   evt.Time,
		Device:      device.String(),
		Type:        typ,
		Level:       level,
		State:       evt.State.String(),
		Code:        evt.Code,
		Description: radio.ErrorString(evt.Err),
	}
	if evt.Err != nil {
		e.Details = Details{"error": evt.Error}
	}
	if evt.TxID != 0 {
		id := int(evt.TxID)
		e.TxID = &id
	}
	if evt.NetworkID != 0 {
		id := int(evt.NetworkID)
		e.NetworkID = &id
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	return e
}
