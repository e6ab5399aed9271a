// Package integration forwards radio traffic to an external MQTT broker.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/radiolink/radiolink/internal/config"
	"github.com/radiolink/radiolink/internal/models"
	"github.com/radiolink/radiolink/pkg/radio"
)

const publishTimeout = 5 * time.Second

// Publisher is the subset of mqtt.Client used for forwarding
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTForwarder publishes received packets and events to
// <prefix>/<device>/rx and <prefix>/<device>/event
type MQTTForwarder struct {
	client Publisher
	prefix string
	qos    byte
	device radio.Address
}

// NewMQTTForwarder creates a forwarder over an existing client
func NewMQTTForwarder(client Publisher, prefix string, qos byte, device radio.Address) *MQTTForwarder {
	return &MQTTForwarder{
		client: client,
		prefix: prefix,
		qos:    qos,
		device: device,
	}
}

// Connect creates and connects an MQTT client from configuration
func Connect(cfg config.MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().
			Str("broker", cfg.Broker).
			Msg("MQTT client connected")
	})

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Error().
			Err(err).
			Str("broker", cfg.Broker).
			Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		client.Disconnect(0)
		return nil, fmt.Errorf("connect mqtt %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect mqtt %s: %w", cfg.Broker, err)
	}
	return client, nil
}

// Topic returns the topic for kind ("rx" or "event")
func (f *MQTTForwarder) Topic(kind string) string {
	return fmt.Sprintf("%s/%s/%s", f.prefix, f.device, kind)
}

func (f *MQTTForwarder) forward(kind string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}

	topic := f.Topic(kind)
	token := f.client.Publish(topic, f.qos, false, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	log.Debug().
		Str("topic", topic).
		Int("size", len(data)).
		Msg("Forwarded to MQTT")
	return nil
}

// HandlePacket forwards a received packet
func (f *MQTTForwarder) HandlePacket(ctx context.Context, pkt radio.Packet) {
	msg := models.RxMessage{Device: f.device, ReceivedAt: time.Now(), Packet: pkt}
	if err := f.forward("rx", msg); err != nil {
		log.Error().Err(err).Uint16("packetId", pkt.ID).Msg("Failed to forward packet to MQTT")
	}
}

// HandleEvent forwards a radio event
func (f *MQTTForwarder) HandleEvent(ctx context.Context, evt radio.Event) {
	msg := models.EventMessage{Device: f.device, Event: evt}
	if err := f.forward("event", msg); err != nil {
		log.Error().Err(err).Str("type", string(evt.Type)).Msg("Failed to forward event to MQTT")
	}
}
