package radio

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	// MaxPayloadSize is the largest payload a single packet can carry.
	MaxPayloadSize = 246

	// MaxRetries is the ceiling for Config.MaxRetries.
	MaxRetries = 5

	// DefaultTxTimeout is the transmission timeout used by DefaultConfig.
	DefaultTxTimeout = 5000 * time.Millisecond

	// MaxChannels is the number of addressable channels (0..124).
	MaxChannels = 125

	RSSIMin = -120
	RSSIMax = -30

	AddressSize    = 8
	NetworkKeySize = 16

	// RxBufferCapacity is the number of packets the receive buffer holds.
	RxBufferCapacity = 32

	// UnassociatedHopCount marks NetworkInfo as not associated.
	UnassociatedHopCount = 255

	// PacketOverhead is the header/preamble size added to every payload
	// when computing airtime.
	PacketOverhead = 16
)

// enumNames backs String/MarshalText/UnmarshalText for the small enums below.
type enumNames []string

func (n enumNames) name(v int, kind string) string {
	if v >= 0 && v < len(n) {
		return n[v]
	}
	return fmt.Sprintf("%s(%d)", kind, v)
}

func (n enumNames) parse(s, kind string) (int, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range n {
		if name == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q: %w", kind, s, ErrInvalidParameter)
}

// PowerState is the radio operating mode.
type PowerState uint8

const (
	PowerOff PowerState = iota
	PowerSleep
	PowerStandby
	PowerIdle
	PowerRx
	PowerTx
)

var powerStateNames = enumNames{"OFF", "SLEEP", "STANDBY", "IDLE", "RX", "TX"}

func (s PowerState) String() string { return powerStateNames.name(int(s), "PowerState") }

// Valid reports whether s is one of the defined power states.
func (s PowerState) Valid() bool { return s <= PowerTx }

// ParsePowerState parses a power state name such as "idle" or "RX".
func ParsePowerState(s string) (PowerState, error) {
	v, err := powerStateNames.parse(s, "power state")
	return PowerState(v), err
}

func (s PowerState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *PowerState) UnmarshalText(b []byte) error {
	v, err := ParsePowerState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// TxPower is the transmission power level.
type TxPower uint8

const (
	TxPowerMin    TxPower = iota // -20 dBm
	TxPowerLow                   // -10 dBm
	TxPowerMedium                // 0 dBm
	TxPowerHigh                  // +10 dBm
	TxPowerMax                   // +20 dBm
)

var txPowerNames = enumNames{"MIN", "LOW", "MEDIUM", "HIGH", "MAX"}

func (p TxPower) String() string { return txPowerNames.name(int(p), "TxPower") }

// DBm returns the nominal output power.
func (p TxPower) DBm() int8 { return int8(p)*10 - 20 }

func ParseTxPower(s string) (TxPower, error) {
	v, err := txPowerNames.parse(s, "tx power")
	return TxPower(v), err
}

func (p TxPower) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *TxPower) UnmarshalText(b []byte) error {
	v, err := ParseTxPower(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// DataRate is the nominal over-the-air bit rate.
type DataRate uint8

const (
	DataRate1K DataRate = iota
	DataRate10K
	DataRate50K
	DataRate100K
	DataRate250K
)

var dataRateNames = enumNames{"1K", "10K", "50K", "100K", "250K"}

func (d DataRate) String() string { return dataRateNames.name(int(d), "DataRate") }

// BitsPerSecond returns the nominal bit rate. Unknown rates fall back to 10 kbps.
func (d DataRate) BitsPerSecond() uint32 {
	switch d {
	case DataRate1K:
		return 1000
	case DataRate10K:
		return 10000
	case DataRate50K:
		return 50000
	case DataRate100K:
		return 100000
	case DataRate250K:
		return 250000
	default:
		return 10000
	}
}

func ParseDataRate(s string) (DataRate, error) {
	v, err := dataRateNames.parse(s, "data rate")
	return DataRate(v), err
}

func (d DataRate) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *DataRate) UnmarshalText(b []byte) error {
	v, err := ParseDataRate(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Modulation is the modulation scheme.
type Modulation uint8

const (
	ModulationFSK Modulation = iota
	ModulationGFSK
	ModulationLoRa
	ModulationOOK
)

var modulationNames = enumNames{"FSK", "GFSK", "LORA", "OOK"}

func (m Modulation) String() string { return modulationNames.name(int(m), "Modulation") }

func ParseModulation(s string) (Modulation, error) {
	v, err := modulationNames.parse(s, "modulation")
	return Modulation(v), err
}

func (m Modulation) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Modulation) UnmarshalText(b []byte) error {
	v, err := ParseModulation(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// SecurityMode is the link encryption mode.
type SecurityMode uint8

const (
	SecurityNone SecurityMode = iota
	SecurityWEP
	SecurityWPA
	SecurityAES128
	SecurityAES256
)

var securityNames = enumNames{"NONE", "WEP", "WPA", "AES128", "AES256"}

func (s SecurityMode) String() string { return securityNames.name(int(s), "SecurityMode") }

func ParseSecurityMode(s string) (SecurityMode, error) {
	v, err := securityNames.parse(s, "security mode")
	return SecurityMode(v), err
}

func (s SecurityMode) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *SecurityMode) UnmarshalText(b []byte) error {
	v, err := ParseSecurityMode(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Priority is the packet priority.
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

var priorityNames = enumNames{"LOW", "NORMAL", "HIGH", "CRITICAL"}

func (p Priority) String() string { return priorityNames.name(int(p), "Priority") }

func ParsePriority(s string) (Priority, error) {
	v, err := priorityNames.parse(s, "priority")
	return Priority(v), err
}

func (p Priority) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Address represents an 8-byte device address
type Address [AddressSize]byte

// String returns hex string representation
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalJSON implements json.Marshaler
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// ParseAddress parses a 16 character hex string.
func ParseAddress(s string) (Address, error) {
	var a Address
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("invalid address %q: %w", s, ErrInvalidParameter)
	}
	if len(b) != AddressSize {
		return a, fmt.Errorf("invalid address length %d: %w", len(b), ErrInvalidParameter)
	}
	copy(a[:], b)
	return a, nil
}

// NetworkKey represents a 128-bit network key
type NetworkKey [NetworkKeySize]byte

// String returns hex string representation
func (k NetworkKey) String() string {
	return hex.EncodeToString(k[:])
}

// IsZero reports whether the key is all zero bytes.
func (k NetworkKey) IsZero() bool {
	return k == NetworkKey{}
}

// ParseNetworkKey parses a 32 character hex string.
func ParseNetworkKey(s string) (NetworkKey, error) {
	var k NetworkKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("invalid network key: %w", ErrInvalidParameter)
	}
	if len(b) != NetworkKeySize {
		return k, fmt.Errorf("invalid network key length %d: %w", len(b), ErrInvalidParameter)
	}
	copy(k[:], b)
	return k, nil
}

// Config is the radio configuration.
type Config struct {
	FrequencyHz   uint32        `json:"frequency_hz"`
	Channel       uint8         `json:"channel"`
	TxPower       TxPower       `json:"tx_power"`
	DataRate      DataRate      `json:"data_rate"`
	Modulation    Modulation    `json:"modulation"`
	Security      SecurityMode  `json:"security"`
	NetworkKey    NetworkKey    `json:"-"`
	DeviceAddress Address       `json:"device_address"`
	NetworkID     uint16        `json:"network_id"`
	AutoAck       bool          `json:"auto_ack"`
	AutoRetry     bool          `json:"auto_retry"`
	MaxRetries    uint8         `json:"max_retries"`
	TxTimeout     time.Duration `json:"tx_timeout"`
}

// DefaultConfig returns a valid 868 MHz configuration.
func DefaultConfig() Config {
	return Config{
		FrequencyHz: 868000000,
		Channel:     10,
		TxPower:     TxPowerMedium,
		DataRate:    DataRate50K,
		Modulation:  ModulationGFSK,
		Security:    SecurityNone,
		NetworkID:   0x1234,
		AutoAck:     true,
		AutoRetry:   true,
		MaxRetries:  3,
		TxTimeout:   DefaultTxTimeout,
	}
}

// Packet is a single radio frame.
type Packet struct {
	Destination Address  `json:"destination"`
	Source      Address  `json:"source"`
	ID          uint16   `json:"packet_id"`
	Priority    Priority `json:"priority"`
	Payload     []byte   `json:"payload"`
	Timestamp   uint32   `json:"timestamp"` // milliseconds since radio init
	RequireAck  bool     `json:"require_ack"`
	RetryCount  uint8    `json:"retry_count"`
}

// Clone returns a deep copy of the packet.
func (p Packet) Clone() Packet {
	if p.Payload != nil {
		payload := make([]byte, len(p.Payload))
		copy(payload, p.Payload)
		p.Payload = payload
	}
	return p
}

// NetworkInfo describes a discovered network or the current association.
type NetworkInfo struct {
	NetworkID        uint16 `json:"network_id"`
	ConnectedDevices uint8  `json:"connected_devices"`
	SignalStrength   int8   `json:"signal_strength"`
	LinkQuality      uint8  `json:"link_quality"`
	UptimeSeconds    uint32 `json:"uptime_seconds"`
	IsGateway        bool   `json:"is_gateway"`
	HopCount         uint8  `json:"hop_count"`
}

// Statistics holds cumulative counters and the latest samples.
type Statistics struct {
	PacketsSent        uint32 `json:"packets_sent"`
	PacketsReceived    uint32 `json:"packets_received"`
	PacketsLost        uint32 `json:"packets_lost"`
	RetriesAttempted   uint32 `json:"retries_attempted"`
	CRCErrors          uint32 `json:"crc_errors"`
	Timeouts           uint32 `json:"timeouts"`
	LastRSSI           int8   `json:"last_rssi"`
	ChannelUtilization uint8  `json:"channel_utilization"`
	TotalAirtimeUs     uint64 `json:"total_airtime_us"`
	PowerConsumption   uint32 `json:"power_consumption_uah"`
}

// TotalAirtimeMs returns the cumulative airtime in whole milliseconds.
func (s Statistics) TotalAirtimeMs() uint64 {
	return s.TotalAirtimeUs / 1000
}
