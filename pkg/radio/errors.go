package radio

import (
	"errors"
	"fmt"
)

// Kind classifies a radio failure. The numeric values match the driver
// error codes reported over the wire and in the event log.
type Kind int

const (
	KindInit             Kind = -1
	KindConfig           Kind = -2
	KindTimeout          Kind = -3
	KindNoAck            Kind = -4
	KindCRC              Kind = -5
	KindInvalidParameter Kind = -6
	KindBufferFull       Kind = -7
	KindBufferEmpty      Kind = -8
	KindChannelBusy      Kind = -9
	KindPowerFailure     Kind = -10
	KindHardware         Kind = -11
	KindNotConnected     Kind = -12
	KindEncryption       Kind = -13
	KindOversizedPacket  Kind = -14
	KindNetworkFull      Kind = -15
	KindRateLimited      Kind = -16
	KindNotFound         Kind = -17
)

var kindInfo = map[Kind]struct {
	token       string
	description string
}{
	KindInit:             {"INIT", "Initialization error"},
	KindConfig:           {"CONFIG", "Configuration error"},
	KindTimeout:          {"TIMEOUT", "Operation timeout"},
	KindNoAck:            {"NO_ACK", "No acknowledgment received"},
	KindCRC:              {"CRC", "CRC error"},
	KindInvalidParameter: {"INVALID_PARAM", "Invalid parameter"},
	KindBufferFull:       {"BUFFER_FULL", "Buffer full"},
	KindBufferEmpty:      {"BUFFER_EMPTY", "Buffer empty"},
	KindChannelBusy:      {"CHANNEL_BUSY", "Channel busy"},
	KindPowerFailure:     {"POWER_FAILURE", "Power supply failure"},
	KindHardware:         {"HARDWARE", "Hardware failure"},
	KindNotConnected:     {"NOT_CONNECTED", "Not connected to network"},
	KindEncryption:       {"ENCRYPTION", "Encryption/decryption error"},
	KindOversizedPacket:  {"PACKET_TOO_LARGE", "Packet exceeds size limit"},
	KindNetworkFull:      {"NETWORK_FULL", "Network capacity exceeded"},
	KindRateLimited:      {"RATE_LIMITED", "Rate limit exceeded"},
	KindNotFound:         {"NOT_FOUND", "Not found"},
}

// String returns the short upper-case token for the kind.
func (k Kind) String() string {
	if info, ok := kindInfo[k]; ok {
		return info.token
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Description returns the human-readable description of the kind.
func (k Kind) Description() string {
	if info, ok := kindInfo[k]; ok {
		return info.description
	}
	return "Unknown error"
}

// Code returns the numeric driver error code.
func (k Kind) Code() int { return int(k) }

// Error is a classified radio failure. Compare with errors.Is against the
// exported sentinels.
type Error struct {
	Kind Kind
}

func (e *Error) Error() string {
	return "radio: " + e.Kind.Description()
}

// Is matches any radio Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInit             = &Error{Kind: KindInit}
	ErrConfig           = &Error{Kind: KindConfig}
	ErrTimeout          = &Error{Kind: KindTimeout}
	ErrNoAck            = &Error{Kind: KindNoAck}
	ErrCRC              = &Error{Kind: KindCRC}
	ErrInvalidParameter = &Error{Kind: KindInvalidParameter}
	ErrBufferFull       = &Error{Kind: KindBufferFull}
	ErrBufferEmpty      = &Error{Kind: KindBufferEmpty}
	ErrChannelBusy      = &Error{Kind: KindChannelBusy}
	ErrPowerFailure     = &Error{Kind: KindPowerFailure}
	ErrHardware         = &Error{Kind: KindHardware}
	ErrNotConnected     = &Error{Kind: KindNotConnected}
	ErrEncryption       = &Error{Kind: KindEncryption}
	ErrOversizedPacket  = &Error{Kind: KindOversizedPacket}
	ErrNetworkFull      = &Error{Kind: KindNetworkFull}
	ErrRateLimited      = &Error{Kind: KindRateLimited}
	ErrNotFound         = &Error{Kind: KindNotFound}
)

// KindOf extracts the Kind from err. ok is false when err does not wrap
// a radio Error.
func KindOf(err error) (kind Kind, ok bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// ErrorString returns the description for err: "Success" for nil,
// the kind description for radio errors and "Unknown error" otherwise.
func ErrorString(err error) string {
	if err == nil {
		return "Success"
	}
	kind, ok := KindOf(err)
	if !ok {
		return "Unknown error"
	}
	return kind.Description()
}

// ErrorCode returns 0 for nil and the numeric kind code otherwise.
// Errors that are not radio errors report KindHardware.
func ErrorCode(err error) int {
	if err == nil {
		return 0
	}
	if kind, ok := KindOf(err); ok {
		return kind.Code()
	}
	return KindHardware.Code()
}
