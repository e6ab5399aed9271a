package models

import (
	"time"

	"github.com/radiolink/radiolink/pkg/radio"
)

// RxMessage is published for every packet accepted by the radio
type RxMessage struct {
	Device     radio.Address `json:"device"`
	ReceivedAt time.Time     `json:"receivedAt"`
	Packet     radio.Packet  `json:"packet"`
}

// EventMessage is published for every radio event
type EventMessage struct {
	Device radio.Address `json:"device"`
	Event  radio.Event   `json:"event"`
}

// StatsMessage is published periodically with the radio statistics
type StatsMessage struct {
	Device     radio.Address    `json:"device"`
	State      radio.PowerState `json:"state"`
	Statistics radio.Statistics `json:"statistics"`
	Timestamp  time.Time        `json:"timestamp"`
}

// TxRequest asks the radio to transmit a packet. It is the body of
// POST /api/v1/radio/packets and of messages on the tx subject.
type TxRequest struct {
	Destination string `json:"destination" validate:"required,hex=8"`
	Payload     []byte `json:"payload" validate:"max=246"`
	Priority    string `json:"priority,omitempty" validate:"oneof=low normal high critical"`
	RequireAck  bool   `json:"requireAck"`
	Async       bool   `json:"async,omitempty"`
}

// Packet converts the request to a radio packet. The request must have
// passed validation.
func (r *TxRequest) Packet() (radio.Packet, error) {
	dst, err := radio.ParseAddress(r.Destination)
	if err != nil {
		return radio.Packet{}, err
	}
	pkt := radio.Packet{
		Destination: dst,
		Priority:    radio.PriorityNormal,
		Payload:     r.Payload,
		RequireAck:  r.RequireAck,
	}
	if r.Priority != "" {
		if pkt.Priority, err = radio.ParsePriority(r.Priority); err != nil {
			return radio.Packet{}, err
		}
	}
	return pkt, nil
}

// TxReply answers a TxRequest
type TxReply struct {
	TxID   uint16 `json:"txId,omitempty"`
	Status string `json:"status"`
	Code   int    `json:"code"`
	Error  string `json:"error,omitempty"`
}

// NewTxReply builds the reply for a submission result
func NewTxReply(txID uint16, err error) TxReply {
	reply := TxReply{TxID: txID, Status: radio.TxPending.String()}
	if txID == 0 && err == nil {
		reply.Status = radio.TxSucceeded.String()
	}
	if err != nil {
		reply.Status = radio.TxFailed.String()
		reply.Code = radio.ErrorCode(err)
		reply.Error = radio.ErrorString(err)
	}
	return reply
}
