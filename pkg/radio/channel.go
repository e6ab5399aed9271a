package radio

import (
	"math/rand"
	"sync"
	"time"
)

// ChannelModel abstracts the radio environment: signal sampling,
// transmission and join outcomes, network discovery and inbound traffic.
// SimulatedChannel is the default; a hardware-backed driver implements the
// same contract. Implementations must be safe for concurrent use and must
// not call back into the Radio.
type ChannelModel interface {
	// SampleRSSI returns a received signal strength sample in dBm.
	SampleRSSI() int8
	// SampleUtilization returns the channel utilization in percent.
	SampleUtilization() uint8
	// TransmissionOutcome reports whether pkt was delivered. ErrNoAck
	// means the frame went out but was not acknowledged.
	TransmissionOutcome(pkt Packet) error
	// DiscoverNetworks returns up to max visible networks.
	DiscoverNetworks(max int, scanTime time.Duration) []NetworkInfo
	// JoinOutcome attempts association with networkID.
	JoinOutcome(networkID uint16, timeout time.Duration) (NetworkInfo, error)
	// InboundPacket returns a packet that arrived for local, if any.
	InboundPacket(local Address) (Packet, bool)
}

// SimulationParams tunes SimulatedChannel. Percentages are 0..100.
type SimulationParams struct {
	Seed               int64
	BaseRSSI           int8
	RSSIVariation      int
	LossPercent        int
	JoinFailurePercent int
	ArrivalPercent     int
	MaxNetworks        int
}

// DefaultSimulationParams returns the stock simulation profile: RSSI around
// -70 dBm ±10, 5% frame loss, 10% join failures and a 5% chance of an
// inbound packet per poll.
func DefaultSimulationParams() SimulationParams {
	return SimulationParams{
		Seed:               time.Now().UnixNano(),
		BaseRSSI:           -70,
		RSSIVariation:      10,
		LossPercent:        5,
		JoinFailurePercent: 10,
		ArrivalPercent:     5,
		MaxNetworks:        5,
	}
}

// SimulatedChannel is a pseudo-random ChannelModel.
type SimulatedChannel struct {
	mu     sync.Mutex
	rng    *rand.Rand
	params SimulationParams
}

// NewSimulatedChannel creates a channel model seeded from params.Seed.
func NewSimulatedChannel(params SimulationParams) *SimulatedChannel {
	if params.MaxNetworks <= 0 {
		params.MaxNetworks = 5
	}
	if params.RSSIVariation < 0 {
		params.RSSIVariation = 0
	}
	return &SimulatedChannel{
		rng:    rand.New(rand.NewSource(params.Seed)),
		params: params,
	}
}

// intn must be called with c.mu held.
func (c *SimulatedChannel) intn(n int) int {
	if n <= 0 {
		return 0
	}
	return c.rng.Intn(n)
}

func (c *SimulatedChannel) chance(percent int) bool {
	return c.intn(100) < percent
}

func (c *SimulatedChannel) rssiLocked() int8 {
	v := c.params.RSSIVariation
	rssi := int(c.params.BaseRSSI) + c.intn(2*v+1) - v
	return clampRSSI(rssi)
}

func (c *SimulatedChannel) SampleRSSI() int8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rssiLocked()
}

func (c *SimulatedChannel) SampleUtilization() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint8(c.intn(30) + 10)
}

func (c *SimulatedChannel) TransmissionOutcome(pkt Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chance(c.params.LossPercent) {
		return ErrNoAck
	}
	return nil
}

func (c *SimulatedChannel) DiscoverNetworks(max int, scanTime time.Duration) []NetworkInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.intn(c.params.MaxNetworks) + 1
	if n > max {
		n = max
	}
	networks := make([]NetworkInfo, 0, n)
	for i := 0; i < n; i++ {
		networks = append(networks, NetworkInfo{
			NetworkID:        uint16(1000 + i),
			ConnectedDevices: uint8(c.intn(10) + 1),
			SignalStrength:   c.rssiLocked(),
			LinkQuality:      uint8(c.intn(50) + 50),
			UptimeSeconds:    uint32(c.intn(86400)),
			IsGateway:        i == 0,
			HopCount:         uint8(c.intn(5) + 1),
		})
	}
	return networks
}

func (c *SimulatedChannel) JoinOutcome(networkID uint16, timeout time.Duration) (NetworkInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chance(c.params.JoinFailurePercent) {
		return NetworkInfo{}, ErrTimeout
	}
	return NetworkInfo{
		NetworkID:        networkID,
		ConnectedDevices: uint8(c.intn(10) + 1),
		SignalStrength:   c.rssiLocked(),
		LinkQuality:      uint8(c.intn(30) + 70),
		HopCount:         uint8(c.intn(5) + 1),
	}, nil
}

func (c *SimulatedChannel) InboundPacket(local Address) (Packet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.chance(c.params.ArrivalPercent) {
		return Packet{}, false
	}
	pkt := Packet{
		Destination: local,
		ID:          uint16(c.intn(65536)),
		Priority:    PriorityNormal,
		Payload:     make([]byte, c.intn(100)+1),
	}
	c.rng.Read(pkt.Source[:])
	c.rng.Read(pkt.Payload)
	return pkt, true
}

func clampRSSI(v int) int8 {
	if v < RSSIMin {
		v = RSSIMin
	}
	if v > RSSIMax {
		v = RSSIMax
	}
	return int8(v)
}
