package radio

import "time"

// EventType classifies a radio event.
type EventType string

const (
	EventStateChanged    EventType = "state_changed"
	EventPacketSent      EventType = "packet_sent"
	EventPacketLost      EventType = "packet_lost"
	EventPacketReceived  EventType = "packet_received"
	EventPacketDropped   EventType = "packet_dropped"
	EventTxCompleted     EventType = "tx_completed"
	EventNetworkJoined   EventType = "network_joined"
	EventNetworkLeft     EventType = "network_left"
	EventStatisticsReset EventType = "statistics_reset"
)

// Event is delivered to the registered EventListener. Code and Error
// mirror Err for JSON consumers; Code is 0 on success.
type Event struct {
	Type      EventType  `json:"type"`
	Time      time.Time  `json:"time"`
	State     PowerState `json:"state"`
	TxID      uint16     `json:"tx_id,omitempty"`
	NetworkID uint16     `json:"network_id,omitempty"`
	Code      int        `json:"code"`
	Error     string     `json:"error,omitempty"`
	Err       error      `json:"-"`
}

func newEvent(t EventType, at time.Time, state PowerState, err error) Event {
	e := Event{Type: t, Time: at, State: state, Err: err, Code: ErrorCode(err)}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// RxListener receives every packet accepted into the receive buffer. It
// runs synchronously on the enqueue path after the radio lock has been
// released, so it may call back into the radio but must not block
// indefinitely.
type RxListener interface {
	OnPacket(pkt Packet)
}

// RxFunc adapts a function to RxListener.
type RxFunc func(pkt Packet)

func (f RxFunc) OnPacket(pkt Packet) { f(pkt) }

// EventListener receives radio events under the same rules as RxListener.
type EventListener interface {
	OnEvent(evt Event)
}

// EventFunc adapts a function to EventListener.
type EventFunc func(evt Event)

func (f EventFunc) OnEvent(evt Event) { f(evt) }

// Transmitter is the outbound half of a physical link: every transmission
// attempt hands its frame to it before the outcome is decided.
type Transmitter interface {
	Transmit(pkt Packet) error
}
