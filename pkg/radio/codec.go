package radio

import (
	"encoding/binary"
	"fmt"

	"github.com/radiolink/radiolink/pkg/crypto"
)

// Air frame layout (multi-byte fields big-endian):
//
//	0      version
//	1..8   destination
//	9..16  source
//	17..18 packet id
//	19     priority
//	20     flags (bit 0 require ack, bit 1 sealed payload)
//	21     retry count
//	22..25 timestamp
//	26..27 payload length
//	28..   payload
//	       CRC-16/CCITT over everything before it
const (
	FrameVersion     = 1
	FrameHeaderSize  = 28
	FrameTrailerSize = 2

	// MaxSealedPayloadSize bounds the payload of a sealed frame, which
	// carries the AEAD nonce and tag in addition to the plaintext.
	MaxSealedPayloadSize = MaxPayloadSize + crypto.Overhead

	MaxFrameSize = FrameHeaderSize + MaxSealedPayloadSize + FrameTrailerSize
)

const (
	flagRequireAck = 1 << 0
	flagSealed     = 1 << 1
)

var crcTable [256]uint16

func init() {
	// CRC-16/CCITT-FALSE, polynomial 0x1021, MSB first
	const poly uint16 = 0x1021

	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
		}
		crcTable[i] = crc
	}
}

// CRC16 returns the CRC-16/CCITT-FALSE checksum of data.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc = (crc << 8) ^ crcTable[byte(crc>>8)^b]
	}
	return crc
}

// MarshalPacket encodes pkt as an air frame. sealed marks the payload as
// AEAD ciphertext, which raises the payload limit to MaxSealedPayloadSize.
func MarshalPacket(pkt Packet, sealed bool) ([]byte, error) {
	limit := MaxPayloadSize
	if sealed {
		limit = MaxSealedPayloadSize
	}
	if len(pkt.Payload) > limit {
		return nil, fmt.Errorf("marshal packet: payload %d bytes: %w", len(pkt.Payload), ErrOversizedPacket)
	}

	buf := make([]byte, FrameHeaderSize+len(pkt.Payload)+FrameTrailerSize)
	buf[0] = FrameVersion
	copy(buf[1:9], pkt.Destination[:])
	copy(buf[9:17], pkt.Source[:])
	binary.BigEndian.PutUint16(buf[17:19], pkt.ID)
	buf[19] = byte(pkt.Priority)

	var flags byte
	if pkt.RequireAck {
		flags |= flagRequireAck
	}
	if sealed {
		flags |= flagSealed
	}
	buf[20] = flags
	buf[21] = pkt.RetryCount
	binary.BigEndian.PutUint32(buf[22:26], pkt.Timestamp)
	binary.BigEndian.PutUint16(buf[26:28], uint16(len(pkt.Payload)))
	copy(buf[FrameHeaderSize:], pkt.Payload)

	n := FrameHeaderSize + len(pkt.Payload)
	binary.BigEndian.PutUint16(buf[n:], CRC16(buf[:n]))
	return buf, nil
}

// UnmarshalPacket decodes an air frame. A checksum mismatch returns ErrCRC;
// truncated frames and unknown versions return ErrInvalidParameter.
func UnmarshalPacket(b []byte) (Packet, bool, error) {
	if len(b) < FrameHeaderSize+FrameTrailerSize {
		return Packet{}, false, fmt.Errorf("unmarshal packet: short frame (%d bytes): %w", len(b), ErrInvalidParameter)
	}
	if b[0] != FrameVersion {
		return Packet{}, false, fmt.Errorf("unmarshal packet: version %d: %w", b[0], ErrInvalidParameter)
	}

	n := len(b) - FrameTrailerSize
	if got, want := binary.BigEndian.Uint16(b[n:]), CRC16(b[:n]); got != want {
		return Packet{}, false, fmt.Errorf("unmarshal packet: checksum %04x, want %04x: %w", got, want, ErrCRC)
	}

	sealed := b[20]&flagSealed != 0
	length := int(binary.BigEndian.Uint16(b[26:28]))
	limit := MaxPayloadSize
	if sealed {
		limit = MaxSealedPayloadSize
	}
	if length > limit {
		return Packet{}, false, fmt.Errorf("unmarshal packet: payload %d bytes: %w", length, ErrOversizedPacket)
	}
	if FrameHeaderSize+length != n {
		return Packet{}, false, fmt.Errorf("unmarshal packet: length field %d, frame carries %d: %w",
			length, n-FrameHeaderSize, ErrInvalidParameter)
	}

	var pkt Packet
	copy(pkt.Destination[:], b[1:9])
	copy(pkt.Source[:], b[9:17])
	pkt.ID = binary.BigEndian.Uint16(b[17:19])
	pkt.Priority = Priority(b[19])
	pkt.RequireAck = b[20]&flagRequireAck != 0
	pkt.RetryCount = b[21]
	pkt.Timestamp = binary.BigEndian.Uint32(b[22:26])
	pkt.Payload = make([]byte, length)
	copy(pkt.Payload, b[FrameHeaderSize:n])
	return pkt, sealed, nil
}
