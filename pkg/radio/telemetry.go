package radio

import (
	"fmt"
	"strings"
	"time"
)

// MeasureRSSI samples the received signal strength and records it as the
// latest reading.
func (r *Radio) MeasureRSSI() (int8, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkPoweredLocked(); err != nil {
		return 0, fmt.Errorf("measure rssi: %w", err)
	}
	rssi := r.channel.SampleRSSI()
	r.stats.LastRSSI = rssi
	return rssi, nil
}

// ChannelUtilization samples channel occupancy in percent and records it.
func (r *Radio) ChannelUtilization() (uint8, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkPoweredLocked(); err != nil {
		return 0, fmt.Errorf("channel utilization: %w", err)
	}
	u := clampUtilization(r.channel.SampleUtilization())
	r.stats.ChannelUtilization = u
	return u, nil
}

// clampUtilization caps a utilization sample at 100 percent.
func clampUtilization(u uint8) uint8 {
	if u > 100 {
		return 100
	}
	return u
}

// Statistics returns a snapshot of the counters with refreshed signal,
// utilization and power samples. Counters are never modified here.
func (r *Radio) Statistics() (Statistics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return Statistics{}, fmt.Errorf("statistics: %w", ErrInit)
	}
	r.stats.LastRSSI = r.channel.SampleRSSI()
	r.stats.ChannelUtilization = clampUtilization(r.channel.SampleUtilization())
	idle := r.now().Sub(r.lastActivity)
	if idle < 0 {
		idle = 0
	}
	r.stats.PowerConsumption = EstimatePowerConsumption(r.power, uint32(idle/time.Millisecond))
	return r.stats, nil
}

// ResetStatistics zeroes every counter and takes a fresh RSSI sample.
func (r *Radio) ResetStatistics() error {
	r.mu.Lock()
	if !r.initialized {
		r.mu.Unlock()
		return fmt.Errorf("reset statistics: %w", ErrInit)
	}
	r.stats = Statistics{LastRSSI: r.channel.SampleRSSI()}
	r.logger.Debug().Msg("statistics reset")
	r.unlockAndEmit(newEvent(EventStatisticsReset, r.now(), r.power, nil))
	return nil
}

// SelfTestResult is a bitmask with one bit per subsystem; a set bit means
// the subsystem passed.
type SelfTestResult uint8

const (
	SelfTestConfig SelfTestResult = 1 << iota
	SelfTestPower
	SelfTestBuffer
	SelfTestAirtime
	SelfTestChannel
	SelfTestTxTable

	SelfTestAll = SelfTestConfig | SelfTestPower | SelfTestBuffer |
		SelfTestAirtime | SelfTestChannel | SelfTestTxTable
)

var selfTestNames = []struct {
	bit  SelfTestResult
	name string
}{
	{SelfTestConfig, "config"},
	{SelfTestPower, "power"},
	{SelfTestBuffer, "buffer"},
	{SelfTestAirtime, "airtime"},
	{SelfTestChannel, "channel"},
	{SelfTestTxTable, "tx_table"},
}

// Passed reports whether every subsystem passed.
func (s SelfTestResult) Passed() bool { return s&SelfTestAll == SelfTestAll }

// Failed lists the subsystems whose bit is clear.
func (s SelfTestResult) Failed() []string {
	var failed []string
	for _, t := range selfTestNames {
		if s&t.bit == 0 {
			failed = append(failed, t.name)
		}
	}
	return failed
}

func (s SelfTestResult) String() string {
	if s.Passed() {
		return "all passed"
	}
	return "failed: " + strings.Join(s.Failed(), ",")
}

// reference airtime for 32 bytes at 50 kbps GFSK
const selfTestAirtimeUs = 6912

// SelfTest checks each subsystem and returns the pass mask. A partial
// failure returns the mask together with ErrHardware.
func (r *Radio) SelfTest() (SelfTestResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return 0, fmt.Errorf("self test: %w", ErrInit)
	}

	var res SelfTestResult
	if ValidateConfig(r.config) == nil {
		res |= SelfTestConfig
	}
	if r.power.Valid() {
		res |= SelfTestPower
	}
	if r.rx.consistent() {
		res |= SelfTestBuffer
	}
	if CalculateAirtime(32, DataRate50K, ModulationGFSK) == selfTestAirtimeUs {
		res |= SelfTestAirtime
	}
	if rssi := r.channel.SampleRSSI(); rssi >= RSSIMin && rssi <= RSSIMax &&
		r.channel.SampleUtilization() <= 100 {
		res |= SelfTestChannel
	}
	if r.txns != nil && r.txns.pending() >= 0 && len(r.txns.settled) <= r.txns.limit {
		res |= SelfTestTxTable
	}

	if !res.Passed() {
		r.logger.Error().Strs("failed", res.Failed()).Msg("self test failed")
		return res, fmt.Errorf("self test: %s: %w", res, ErrHardware)
	}
	r.logger.Info().Msg("self test passed")
	return res, nil
}

// FirmwareVersion returns the firmware version truncated to fit a buffer
// of capacity bytes including a terminator. Capacities below 8 are
// rejected.
func (r *Radio) FirmwareVersion(capacity int) (string, error) {
	r.mu.Lock()
	initialized := r.initialized
	r.mu.Unlock()
	if !initialized {
		return "", fmt.Errorf("firmware version: %w", ErrInit)
	}
	if capacity < 8 {
		return "", fmt.Errorf("firmware version: capacity %d: %w", capacity, ErrInvalidParameter)
	}
	v := FirmwareVersion
	if len(v) > capacity-1 {
		v = v[:capacity-1]
	}
	return v, nil
}
