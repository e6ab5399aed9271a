// Package radio models a wireless radio transceiver: configuration, power
// states, packet transmission and reception, network association and
// telemetry. Each Radio is an independent instance; the radio environment
// is supplied through a ChannelModel so a simulated channel and a real
// driver share one contract.
package radio

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// FirmwareVersion is the version string reported by Radio.FirmwareVersion.
const FirmwareVersion = "v2.1.4-sim"

// Radio is a single transceiver instance. All exported methods are safe
// for concurrent use; state is guarded by one mutex shared by the API and
// the arrival path.
type Radio struct {
	mu   sync.Mutex
	cond *sync.Cond

	initialized  bool
	closing      bool
	config       Config
	power        PowerState
	connected    bool
	network      NetworkInfo
	sessionKey   []byte
	stats        Statistics
	rx           ReceiveBuffer
	nextTxID     uint16
	nextPacketID uint16
	epoch        time.Time
	lastActivity time.Time
	txns         *txTable

	rxListener    RxListener
	eventListener EventListener

	channel      ChannelModel
	transmitter  Transmitter
	logger       zerolog.Logger
	now          func() time.Time
	pollInterval time.Duration
	txHistory    int

	workers sync.WaitGroup
}

// Option configures a Radio at construction.
type Option func(*Radio)

// WithChannelModel sets the radio environment. The default is a
// SimulatedChannel with DefaultSimulationParams.
func WithChannelModel(m ChannelModel) Option {
	return func(r *Radio) { r.channel = m }
}

// WithTransmitter hands every transmitted frame to t.
func WithTransmitter(t Transmitter) Option {
	return func(r *Radio) { r.transmitter = t }
}

// WithLogger sets the logger used by the radio.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Radio) { r.logger = l }
}

// WithClock replaces time.Now for timestamps, uptime and power estimates.
func WithClock(now func() time.Time) Option {
	return func(r *Radio) { r.now = now }
}

// WithPollInterval sets how often a blocked Receive polls the channel
// model for inbound packets.
func WithPollInterval(d time.Duration) Option {
	return func(r *Radio) { r.pollInterval = d }
}

// WithTxHistory sets how many settled asynchronous transactions are kept
// for TxStatus lookups.
func WithTxHistory(n int) Option {
	return func(r *Radio) { r.txHistory = n }
}

// New creates an uninitialized radio. Call Init before any other method.
func New(opts ...Option) *Radio {
	r := &Radio{
		logger:       log.Logger.With().Str("component", "radio").Logger(),
		now:          time.Now,
		pollInterval: 50 * time.Millisecond,
		txHistory:    256,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.channel == nil {
		r.channel = NewSimulatedChannel(DefaultSimulationParams())
	}
	if r.pollInterval <= 0 {
		r.pollInterval = 50 * time.Millisecond
	}
	r.cond = sync.NewCond(&r.mu)
	r.txns = newTxTable(r.txHistory)
	r.power = PowerOff
	r.network.HopCount = UnassociatedHopCount
	return r
}

// Init validates cfg and brings the radio up in Idle.
func (r *Radio) Init(cfg Config) error {
	if err := ValidateConfig(cfg); err != nil {
		return fmt.Errorf("init: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return fmt.Errorf("init: already initialized: %w", ErrInit)
	}
	if r.closing {
		return fmt.Errorf("init: deinit in progress: %w", ErrInit)
	}

	now := r.now()
	r.config = cfg
	r.initialized = true
	r.power = PowerIdle
	r.connected = false
	r.sessionKey = nil
	r.nextTxID = 1
	r.nextPacketID = 1
	r.epoch = now
	r.lastActivity = now
	r.rx.reset()
	r.txns = newTxTable(r.txHistory)
	r.network = NetworkInfo{
		NetworkID:      cfg.NetworkID,
		SignalStrength: r.channel.SampleRSSI(),
		HopCount:       UnassociatedHopCount,
	}
	r.stats = Statistics{LastRSSI: r.channel.SampleRSSI()}

	r.logger.Info().
		Uint32("frequency_hz", cfg.FrequencyHz).
		Uint8("channel", cfg.Channel).
		Str("data_rate", cfg.DataRate.String()).
		Str("modulation", cfg.Modulation.String()).
		Str("address", cfg.DeviceAddress.String()).
		Msg("radio initialized")
	return nil
}

// Deinit powers the radio off and clears all state. Blocked receivers wake
// with ErrInit and in-flight asynchronous transmissions are drained. Init
// fails with ErrInit until the drain has finished.
func (r *Radio) Deinit() error {
	r.mu.Lock()
	if !r.initialized {
		r.mu.Unlock()
		return fmt.Errorf("deinit: %w", ErrInit)
	}
	r.initialized = false
	r.closing = true
	r.power = PowerOff
	r.connected = false
	r.rxListener = nil
	r.eventListener = nil
	r.cond.Broadcast()
	r.mu.Unlock()

	r.workers.Wait()

	r.mu.Lock()
	r.config = Config{}
	r.network = NetworkInfo{HopCount: UnassociatedHopCount}
	r.sessionKey = nil
	r.stats = Statistics{}
	r.rx.reset()
	r.txns = newTxTable(r.txHistory)
	r.nextTxID = 0
	r.nextPacketID = 0
	r.closing = false
	r.mu.Unlock()

	r.logger.Info().Msg("radio deinitialized")
	return nil
}

// Initialized reports whether Init has succeeded and Deinit has not run.
func (r *Radio) Initialized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initialized
}

// Configure replaces the configuration. Only permitted in Idle with no
// asynchronous transmission in flight.
func (r *Radio) Configure(cfg Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return fmt.Errorf("configure: %w", ErrInit)
	}
	if err := ValidateConfig(cfg); err != nil {
		return fmt.Errorf("configure: %w", err)
	}
	if r.power != PowerIdle {
		return fmt.Errorf("configure: radio is %s, not IDLE: %w", r.power, ErrConfig)
	}
	if n := r.txns.pending(); n > 0 {
		return fmt.Errorf("configure: %d transmissions in flight: %w", n, ErrConfig)
	}

	r.config = cfg
	r.logger.Info().
		Uint8("channel", cfg.Channel).
		Str("data_rate", cfg.DataRate.String()).
		Str("modulation", cfg.Modulation.String()).
		Msg("radio reconfigured")
	return nil
}

// Config returns the active configuration.
func (r *Radio) Config() (Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return Config{}, fmt.Errorf("config: %w", ErrInit)
	}
	return r.config, nil
}

// SetRxListener registers l for inbound packets; nil unregisters.
func (r *Radio) SetRxListener(l RxListener) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return fmt.Errorf("set rx listener: %w", ErrInit)
	}
	r.rxListener = l
	return nil
}

// SetEventListener registers l for radio events; nil unregisters.
func (r *Radio) SetEventListener(l EventListener) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return fmt.Errorf("set event listener: %w", ErrInit)
	}
	r.eventListener = l
	return nil
}

// checkPoweredLocked is the admission check shared by operations that need
// the radio up and not Off.
func (r *Radio) checkPoweredLocked() error {
	if !r.initialized {
		return ErrInit
	}
	if r.power == PowerOff {
		return ErrPowerFailure
	}
	return nil
}

func (r *Radio) touchLocked() {
	r.lastActivity = r.now()
}

// timestampLocked returns milliseconds since Init.
func (r *Radio) timestampLocked() uint32 {
	return uint32(r.now().Sub(r.epoch) / time.Millisecond)
}

// unlockAndEmit releases r.mu and then delivers evts to the event listener
// that was registered at the time of the call.
func (r *Radio) unlockAndEmit(evts ...Event) {
	listener := r.eventListener
	r.mu.Unlock()
	if listener == nil {
		return
	}
	for _, evt := range evts {
		listener.OnEvent(evt)
	}
}
