// Package telemetry samples radio statistics on a fixed interval, stores
// a snapshot and publishes it.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/radiolink/radiolink/internal/models"
	"github.com/radiolink/radiolink/internal/storage"
	"github.com/radiolink/radiolink/pkg/radio"
)

// Source is the radio being sampled
type Source interface {
	Statistics() (radio.Statistics, error)
	PowerState() (radio.PowerState, error)
}

// StatsPublisher publishes statistics snapshots
type StatsPublisher interface {
	PublishStats(ctx context.Context, msg models.StatsMessage) error
}

// Recorder periodically records radio statistics. The store and publisher
// are both optional.
type Recorder struct {
	source    Source
	device    radio.Address
	store     storage.Store
	publisher StatsPublisher
	interval  time.Duration
}

// NewRecorder creates a recorder
func NewRecorder(source Source, device radio.Address, store storage.Store, publisher StatsPublisher, interval time.Duration) *Recorder {
	return &Recorder{
		source:    source,
		device:    device,
		store:     store,
		publisher: publisher,
		interval:  interval,
	}
}

// Record takes one sample
func (r *Recorder) Record(ctx context.Context) error {
	state, err := r.source.PowerState()
	if err != nil {
		return fmt.Errorf("sample power state: %w", err)
	}
	stats, err := r.source.Statistics()
	if err != nil {
		return fmt.Errorf("sample statistics: %w", err)
	}

	if r.store != nil {
		if err := r.store.CreateStatsSnapshot(ctx, models.NewStatsSnapshot(r.device, state, stats)); err != nil {
			return fmt.Errorf("store snapshot: %w", err)
		}
	}

	if r.publisher != nil {
		msg := models.StatsMessage{
			Device:     r.device,
			State:      state,
			Statistics: stats,
			Timestamp:  time.Now(),
		}
		if err := r.publisher.PublishStats(ctx, msg); err != nil {
			return fmt.Errorf("publish snapshot: %w", err)
		}
	}

	log.Debug().
		Str("state", state.String()).
		Uint32("sent", stats.PacketsSent).
		Uint32("received", stats.PacketsReceived).
		Uint32("lost", stats.PacketsLost).
		Msg("Statistics recorded")
	return nil
}

// Run records a sample every interval until ctx is done
func (r *Recorder) Run(ctx context.Context) error {
	if r.interval <= 0 {
		return fmt.Errorf("telemetry interval must be positive")
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", r.interval).Msg("Telemetry recorder started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Record(ctx); err != nil {
				log.Error().Err(err).Msg("Failed to record statistics")
			}
		}
	}
}
