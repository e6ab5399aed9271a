package radio

import (
	"fmt"
	"time"

	"github.com/radiolink/radiolink/pkg/crypto"
)

// ScanNetworks returns up to max visible networks. It does not change the
// association or power state.
func (r *Radio) ScanNetworks(max int, scanTime time.Duration) ([]NetworkInfo, error) {
	r.mu.Lock()
	err := r.checkPoweredLocked()
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("scan networks: %w", err)
	}
	if max <= 0 {
		return nil, fmt.Errorf("scan networks: max %d: %w", max, ErrInvalidParameter)
	}

	networks := r.channel.DiscoverNetworks(max, scanTime)
	if len(networks) > max {
		networks = networks[:max]
	}

	r.logger.Debug().Int("found", len(networks)).Dur("scan_time", scanTime).Msg("network scan complete")
	return networks, nil
}

// JoinNetwork associates with networkID. When the configured security mode
// is not None the key must be non-zero. A zero timeout uses the configured
// transmission timeout.
func (r *Radio) JoinNetwork(networkID uint16, key NetworkKey, timeout time.Duration) error {
	r.mu.Lock()
	if err := r.checkPoweredLocked(); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("join network: %w", err)
	}
	if r.config.Security != SecurityNone && key.IsZero() {
		mode := r.config.Security
		r.mu.Unlock()
		return fmt.Errorf("join network: %s requires a network key: %w", mode, ErrEncryption)
	}
	if timeout <= 0 {
		timeout = r.config.TxTimeout
	}
	device := r.config.DeviceAddress
	r.mu.Unlock()

	info, err := r.channel.JoinOutcome(networkID, timeout)
	if err != nil {
		r.mu.Lock()
		if k, ok := KindOf(err); ok && k == KindTimeout {
			r.stats.Timeouts++
		}
		r.mu.Unlock()
		r.logger.Warn().Err(err).Uint16("network_id", networkID).Msg("network join failed")
		return fmt.Errorf("join network %d: %w", networkID, err)
	}

	sessionKey, err := crypto.DeriveSessionKey(key[:], networkID, device[:])
	if err != nil {
		return fmt.Errorf("join network %d: %v: %w", networkID, err, ErrEncryption)
	}

	info.NetworkID = networkID
	info.UptimeSeconds = 0
	info.IsGateway = false
	if info.HopCount == 0 || info.HopCount == UnassociatedHopCount {
		info.HopCount = 1
	}
	if info.LinkQuality > 100 {
		info.LinkQuality = 100
	}

	r.mu.Lock()
	if err := r.checkPoweredLocked(); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("join network %d: %w", networkID, err)
	}
	r.network = info
	r.connected = true
	r.sessionKey = sessionKey
	r.touchLocked()

	r.logger.Info().
		Uint16("network_id", networkID).
		Uint8("hop_count", info.HopCount).
		Uint8("link_quality", info.LinkQuality).
		Msg("joined network")

	evt := newEvent(EventNetworkJoined, r.lastActivity, r.power, nil)
	evt.NetworkID = networkID
	r.unlockAndEmit(evt)
	return nil
}

// LeaveNetwork drops the current association. Leaving while not associated
// is not an error.
func (r *Radio) LeaveNetwork() error {
	r.mu.Lock()
	if !r.initialized {
		r.mu.Unlock()
		return fmt.Errorf("leave network: %w", ErrInit)
	}
	was := r.connected
	id := r.network.NetworkID
	r.connected = false
	r.sessionKey = nil
	r.network.HopCount = UnassociatedHopCount
	r.network.LinkQuality = 0
	if !was {
		r.mu.Unlock()
		return nil
	}
	r.touchLocked()
	r.logger.Info().Uint16("network_id", id).Msg("left network")

	evt := newEvent(EventNetworkLeft, r.lastActivity, r.power, nil)
	evt.NetworkID = id
	r.unlockAndEmit(evt)
	return nil
}

// NetworkInfo returns the current association with a fresh signal sample.
// Uptime counts from the last radio activity.
func (r *Radio) NetworkInfo() (NetworkInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return NetworkInfo{}, fmt.Errorf("network info: %w", ErrInit)
	}
	if !r.connected {
		return NetworkInfo{}, fmt.Errorf("network info: %w", ErrNotConnected)
	}
	r.network.SignalStrength = r.channel.SampleRSSI()
	r.network.UptimeSeconds = uint32(r.now().Sub(r.lastActivity) / time.Second)
	return r.network, nil
}

// Connected reports whether the radio is associated with a network.
func (r *Radio) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initialized && r.connected
}

// SessionKey returns a copy of the link key derived at join time.
func (r *Radio) SessionKey() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return nil, fmt.Errorf("session key: %w", ErrInit)
	}
	if !r.connected || r.sessionKey == nil {
		return nil, fmt.Errorf("session key: %w", ErrNotConnected)
	}
	key := make([]byte, len(r.sessionKey))
	copy(key, r.sessionKey)
	return key, nil
}
