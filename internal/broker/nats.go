// Package broker bridges the radio to NATS. Received packets, events and
// statistics are published under <prefix>.<device>; transmit requests are
// accepted on <prefix>.<device>.tx.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/radiolink/radiolink/internal/config"
	"github.com/radiolink/radiolink/internal/models"
	"github.com/radiolink/radiolink/internal/validation"
	"github.com/radiolink/radiolink/pkg/radio"
)

// Publisher is the publishing half of a NATS connection
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Sender submits packets for asynchronous transmission
type Sender interface {
	SendAsync(pkt radio.Packet) (uint16, error)
}

// TxRecorder records submitted packets
type TxRecorder interface {
	RecordTx(ctx context.Context, pkt radio.Packet, txID uint16, err error)
}

// Connect dials NATS with the configured credentials and reconnect policy
func Connect(cfg config.NATSConfig) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.ClientID),
		nats.ReconnectWait(cfg.ReconnectInterval),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

// Broker publishes radio traffic and serves transmit requests
type Broker struct {
	nc        *nats.Conn
	pub       Publisher
	sender    Sender
	recorder  TxRecorder
	validator *validation.Validator
	device    radio.Address
	prefix    string
	subs      []*nats.Subscription
}

// New creates a broker. nc may be nil when only publishing through pub is
// needed, in which case Start does not subscribe.
func New(nc *nats.Conn, pub Publisher, prefix string, device radio.Address, sender Sender, recorder TxRecorder) *Broker {
	if pub == nil && nc != nil {
		pub = nc
	}
	return &Broker{
		nc:        nc,
		pub:       pub,
		sender:    sender,
		recorder:  recorder,
		validator: validation.NewValidator(),
		device:    device,
		prefix:    prefix,
	}
}

// Subject returns the subject for kind ("rx", "event", "stats" or "tx")
func (b *Broker) Subject(kind string) string {
	return fmt.Sprintf("%s.%s.%s", b.prefix, b.device, kind)
}

// Start subscribes to the transmit subject and blocks until ctx is done
func (b *Broker) Start(ctx context.Context) error {
	if b.nc == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	sub, err := b.nc.Subscribe(b.Subject("tx"), b.handleTx)
	if err != nil {
		return fmt.Errorf("subscribe tx: %w", err)
	}
	b.subs = append(b.subs, sub)

	log.Info().
		Str("subject", sub.Subject).
		Msg("NATS broker started")

	<-ctx.Done()

	for _, s := range b.subs {
		if err := s.Unsubscribe(); err != nil {
			log.Warn().Err(err).Str("subject", s.Subject).Msg("Failed to unsubscribe")
		}
	}
	b.subs = nil

	return ctx.Err()
}

func (b *Broker) handleTx(msg *nats.Msg) {
	log.Debug().
		Str("subject", msg.Subject).
		Int("size", len(msg.Data)).
		Msg("Received transmit request")

	reply := b.processTx(context.Background(), msg.Data)
	if msg.Reply == "" {
		return
	}

	data, err := json.Marshal(reply)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal tx reply")
		return
	}
	if err := msg.Respond(data); err != nil {
		log.Error().Err(err).Msg("Failed to respond to tx request")
	}
}

// processTx decodes, validates and submits one transmit request
func (b *Broker) processTx(ctx context.Context, data []byte) models.TxReply {
	var req models.TxRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Error().Err(err).Msg("Failed to unmarshal tx request")
		return models.NewTxReply(0, fmt.Errorf("decode: %w", radio.ErrInvalidParameter))
	}
	if err := b.validator.Validate(&req); err != nil {
		return models.NewTxReply(0, fmt.Errorf("%v: %w", err, radio.ErrInvalidParameter))
	}
	pkt, err := req.Packet()
	if err != nil {
		return models.NewTxReply(0, err)
	}

	id, err := b.sender.SendAsync(pkt)
	if b.recorder != nil {
		b.recorder.RecordTx(ctx, pkt, id, err)
	}
	if err != nil {
		log.Warn().Err(err).Str("destination", req.Destination).Msg("Transmit request rejected")
		return models.NewTxReply(0, err)
	}

	log.Info().
		Uint16("txId", id).
		Str("destination", req.Destination).
		Int("dataLen", len(pkt.Payload)).
		Msg("Transmit request queued")

	return models.NewTxReply(id, nil)
}

func (b *Broker) publish(kind string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("kind", kind).Msg("Failed to marshal message")
		return
	}
	subject := b.Subject(kind)
	if err := b.pub.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("Failed to publish")
	}
}

// HandlePacket publishes a received packet
func (b *Broker) HandlePacket(ctx context.Context, pkt radio.Packet) {
	b.publish("rx", models.RxMessage{Device: b.device, ReceivedAt: time.Now(), Packet: pkt})
}

// HandleEvent publishes a radio event
func (b *Broker) HandleEvent(ctx context.Context, evt radio.Event) {
	b.publish("event", models.EventMessage{Device: b.device, Event: evt})
}

// PublishStats publishes a statistics snapshot
func (b *Broker) PublishStats(ctx context.Context, msg models.StatsMessage) error {
	msg.Device = b.device
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	if err := b.pub.Publish(b.Subject("stats"), data); err != nil {
		return fmt.Errorf("publish stats: %w", err)
	}
	return nil
}
