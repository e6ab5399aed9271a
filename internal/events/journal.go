package events

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/radiolink/radiolink/internal/models"
	"github.com/radiolink/radiolink/internal/storage"
	"github.com/radiolink/radiolink/pkg/radio"
)

// Journal persists received packets and radio events to the store.
type Journal struct {
	store  storage.Store
	device radio.Address
}

// NewJournal creates a journal for the radio with the given address.
func NewJournal(store storage.Store, device radio.Address) *Journal {
	return &Journal{store: store, device: device}
}

// HandlePacket logs a received packet
func (j *Journal) HandlePacket(ctx context.Context, pkt radio.Packet) {
	rec := models.NewPacketRecord(j.device, models.DirectionRX, pkt)
	if err := j.store.CreatePacketRecord(ctx, rec); err != nil {
		log.Error().Err(err).Msg("Failed to store received packet")
	}
}

// HandleEvent logs a radio event
func (j *Journal) HandleEvent(ctx context.Context, evt radio.Event) {
	if err := j.store.CreateEventLog(ctx, models.NewEventLog(j.device, evt)); err != nil {
		log.Error().Err(err).Str("type", string(evt.Type)).Msg("Failed to store event")
	}
}

// RecordTx logs an outbound packet. txID is 0 for synchronous sends; err is
// the send result, or nil for an async submission that is still pending.
func (j *Journal) RecordTx(ctx context.Context, pkt radio.Packet, txID uint16, err error) {
	rec := models.NewPacketRecord(j.device, models.DirectionTX, pkt)
	if txID != 0 {
		id := int(txID)
		rec.TxID = &id
		rec.Status = radio.TxPending.String()
	}
	if err != nil {
		rec.ErrorCode = radio.ErrorCode(err)
		rec.Status = radio.ErrorString(err)
	}
	if err := j.store.CreatePacketRecord(ctx, rec); err != nil {
		log.Error().Err(err).Msg("Failed to store transmitted packet")
	}
}
