// Package airlink carries radio frames over UDP. Each datagram holds one
// air frame as produced by radio.MarshalPacket. The link is the radio's
// Transmitter and injects frames received from peers with Deliver.
package airlink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/radiolink/radiolink/pkg/crypto"
	"github.com/radiolink/radiolink/pkg/radio"
)

const (
	peerExpiry      = 5 * time.Minute
	cleanupInterval = 30 * time.Second
)

// BroadcastAddress is accepted by every radio on the link
var BroadcastAddress = radio.Address{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// Receiver is the radio side of the link
type Receiver interface {
	Deliver(pkt radio.Packet) error
	ReportCRCError() error
	SessionKey() ([]byte, error)
}

// PeerInfo describes a remote end of the link
type PeerInfo struct {
	Addr     *net.UDPAddr
	Static   bool
	LastSeen time.Time
	Frames   uint64
}

// UDPLink bridges a radio to UDP peers
type UDPLink struct {
	conn  *net.UDPConn
	local radio.Address
	seal  bool

	mu       sync.RWMutex
	receiver Receiver
	peers    map[string]*PeerInfo
}

// NewUDPLink binds bindAddr and registers the static peers. seal encrypts
// payloads with the radio's session key, which requires a joined network.
func NewUDPLink(bindAddr string, peers []string, local radio.Address, seal bool) (*UDPLink, error) {
	addr, err := net.ResolveUDPAddr("udp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", bindAddr, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", bindAddr, err)
	}

	l := &UDPLink{
		conn:  conn,
		local: local,
		seal:  seal,
		peers: make(map[string]*PeerInfo),
	}

	for _, p := range peers {
		paddr, err := net.ResolveUDPAddr("udp", p)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("resolve peer %s: %w", p, err)
		}
		l.peers[paddr.String()] = &PeerInfo{Addr: paddr, Static: true}
	}

	return l, nil
}

// SetReceiver attaches the radio that frames are delivered to
func (l *UDPLink) SetReceiver(r Receiver) {
	l.mu.Lock()
	l.receiver = r
	l.mu.Unlock()
}

// LocalAddr returns the bound UDP address
func (l *UDPLink) LocalAddr() *net.UDPAddr {
	return l.conn.LocalAddr().(*net.UDPAddr)
}

// Peers returns a snapshot of the known peers
func (l *UDPLink) Peers() []PeerInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]PeerInfo, 0, len(l.peers))
	for _, p := range l.peers {
		out = append(out, *p)
	}
	return out
}

// Start reads frames until ctx is done, then closes the socket
func (l *UDPLink) Start(ctx context.Context) error {
	log.Info().
		Str("addr", l.conn.LocalAddr().String()).
		Int("peers", len(l.Peers())).
		Bool("seal", l.seal).
		Msg("Air link started")

	go l.cleanupPeers(ctx)
	go func() {
		<-ctx.Done()
		l.conn.Close()
	}()

	buf := make([]byte, radio.MaxFrameSize+1)
	for {
		n, addr, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			log.Error().Err(err).Msg("Failed to read UDP frame")
			continue
		}

		frame := make([]byte, n)
		copy(frame, buf[:n])
		l.handleFrame(frame, addr)
	}
}

// Close releases the socket
func (l *UDPLink) Close() error {
	return l.conn.Close()
}

func (l *UDPLink) touchPeer(addr *net.UDPAddr) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := addr.String()
	p, ok := l.peers[key]
	if !ok {
		p = &PeerInfo{Addr: addr}
		l.peers[key] = p
		log.Info().Str("peer", key).Msg("New air link peer")
	}
	p.LastSeen = time.Now()
	p.Frames++
}

func (l *UDPLink) handleFrame(frame []byte, addr *net.UDPAddr) {
	l.mu.RLock()
	recv := l.receiver
	l.mu.RUnlock()
	if recv == nil {
		return
	}

	if len(frame) > radio.MaxFrameSize {
		log.Warn().Str("peer", addr.String()).Int("size", len(frame)).Msg("Oversized frame dropped")
		return
	}

	pkt, sealed, err := radio.UnmarshalPacket(frame)
	if err != nil {
		if errors.Is(err, radio.ErrCRC) {
			log.Debug().Err(err).Str("peer", addr.String()).Msg("Frame failed checksum")
			recv.ReportCRCError()
			return
		}
		log.Warn().Err(err).Str("peer", addr.String()).Msg("Malformed frame dropped")
		return
	}

	l.touchPeer(addr)

	if pkt.Source == l.local {
		return
	}
	if pkt.Destination != l.local && pkt.Destination != BroadcastAddress {
		return
	}

	if sealed {
		key, err := recv.SessionKey()
		if err != nil {
			log.Warn().Err(err).Uint16("packetId", pkt.ID).Msg("Sealed frame received without session key")
			return
		}
		plain, err := crypto.Decrypt(key, pkt.Payload)
		if err != nil {
			log.Warn().Err(err).Uint16("packetId", pkt.ID).Msg("Sealed frame failed authentication")
			recv.ReportCRCError()
			return
		}
		pkt.Payload = plain
	}

	if err := recv.Deliver(pkt); err != nil {
		ev := log.Warn()
		if kind, ok := radio.KindOf(err); ok && kind == radio.KindChannelBusy {
			ev = log.Debug()
		}
		ev.Err(err).
			Str("source", pkt.Source.String()).
			Uint16("packetId", pkt.ID).
			Msg("Frame not delivered")
		return
	}

	log.Debug().
		Str("peer", addr.String()).
		Str("source", pkt.Source.String()).
		Uint16("packetId", pkt.ID).
		Int("size", len(pkt.Payload)).
		Bool("sealed", sealed).
		Msg("Frame delivered")
}

// Transmit implements radio.Transmitter. The frame is sent to every known
// peer and fails only when no peer write succeeded. With no peers it is
// discarded.
func (l *UDPLink) Transmit(pkt radio.Packet) error {
	if l.seal {
		l.mu.RLock()
		recv := l.receiver
		l.mu.RUnlock()
		if recv == nil {
			return fmt.Errorf("transmit: no receiver for session key")
		}
		key, err := recv.SessionKey()
		if err != nil {
			return fmt.Errorf("transmit: %w", err)
		}
		sealedPayload, err := crypto.Encrypt(key, pkt.Payload)
		if err != nil {
			return fmt.Errorf("transmit: seal: %w", err)
		}
		pkt.Payload = sealedPayload
	}

	frame, err := radio.MarshalPacket(pkt, l.seal)
	if err != nil {
		return fmt.Errorf("transmit: %w", err)
	}

	l.mu.RLock()
	targets := make([]*net.UDPAddr, 0, len(l.peers))
	for _, p := range l.peers {
		targets = append(targets, p.Addr)
	}
	l.mu.RUnlock()

	var firstErr error
	delivered := 0
	for _, addr := range targets {
		if _, err := l.conn.WriteToUDP(frame, addr); err != nil {
			log.Error().Err(err).Str("peer", addr.String()).Msg("Failed to send frame")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		delivered++
	}
	if firstErr != nil && delivered == 0 {
		return fmt.Errorf("transmit: no peer reached: %w", firstErr)
	}
	return nil
}

// cleanupPeers forgets learned peers that have been silent too long
func (l *UDPLink) cleanupPeers(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.expirePeers(time.Now())
		}
	}
}

func (l *UDPLink) expirePeers(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, p := range l.peers {
		if !p.Static && now.Sub(p.LastSeen) > peerExpiry {
			delete(l.peers, key)
			log.Info().Str("peer", key).Msg("Air link peer expired")
		}
	}
}
