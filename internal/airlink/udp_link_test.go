package airlink

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/radiolink/radiolink/pkg/radio"
)

type fakeReceiver struct {
	mu        sync.Mutex
	delivered []radio.Packet
	crcErrors int
	key       []byte
	got       chan radio.Packet
}

func newFakeReceiver() *fakeReceiver {
	return &fakeReceiver{got: make(chan radio.Packet, 16)}
}

func (f *fakeReceiver) Deliver(pkt radio.Packet) error {
	f.mu.Lock()
	f.delivered = append(f.delivered, pkt)
	f.mu.Unlock()
	f.got <- pkt
	return nil
}

func (f *fakeReceiver) ReportCRCError() error {
	f.mu.Lock()
	f.crcErrors++
	f.mu.Unlock()
	return nil
}

func (f *fakeReceiver) SessionKey() ([]byte, error) {
	if f.key == nil {
		return nil, radio.ErrNotConnected
	}
	return f.key, nil
}

func (f *fakeReceiver) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered), f.crcErrors
}

var (
	addrA = radio.Address{0xA, 0, 0, 0, 0, 0, 0, 1}
	addrB = radio.Address{0xB, 0, 0, 0, 0, 0, 0, 2}
)

func newLink(t *testing.T, local radio.Address, peers []string, seal bool) *UDPLink {
	t.Helper()
	l, err := NewUDPLink("127.0.0.1:0", peers, local, seal)
	if err != nil {
		t.Fatalf("NewUDPLink: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func frameFor(t *testing.T, pkt radio.Packet, sealed bool) []byte {
	t.Helper()
	b, err := radio.MarshalPacket(pkt, sealed)
	if err != nil {
		t.Fatalf("MarshalPacket: %v", err)
	}
	return b
}

func TestTransmitReachesPeer(t *testing.T) {
	b := newLink(t, addrB, nil, false)
	recv := newFakeReceiver()
	b.SetReceiver(recv)

	a := newLink(t, addrA, []string{b.LocalAddr().String()}, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Start(ctx)

	pkt := radio.Packet{Destination: addrB, Source: addrA, ID: 42, Payload: []byte("ping"), RequireAck: true}
	if err := a.Transmit(pkt); err != nil {
		t.Fatalf("Transmit: %v", err)
	}

	select {
	case got := <-recv.got:
		if got.ID != 42 || string(got.Payload) != "ping" || !got.RequireAck || got.Source != addrA {
			t.Errorf("delivered = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame not delivered")
	}

	if peers := b.Peers(); len(peers) != 1 || peers[0].Static || peers[0].Frames != 1 {
		t.Errorf("learned peers = %+v", peers)
	}
}

func TestHandleFrameFiltering(t *testing.T) {
	l := newLink(t, addrB, nil, false)
	recv := newFakeReceiver()
	l.SetReceiver(recv)
	from := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9}

	l.handleFrame(frameFor(t, radio.Packet{Destination: addrB, Source: addrA, ID: 1}, false), from)
	l.handleFrame(frameFor(t, radio.Packet{Destination: BroadcastAddress, Source: addrA, ID: 2}, false), from)
	l.handleFrame(frameFor(t, radio.Packet{Destination: addrA, Source: addrA, ID: 3}, false), from)
	l.handleFrame(frameFor(t, radio.Packet{Destination: addrB, Source: addrB, ID: 4}, false), from)

	corrupt := frameFor(t, radio.Packet{Destination: addrB, Source: addrA, ID: 5, Payload: []byte{1, 2}}, false)
	corrupt[radio.FrameHeaderSize] ^= 0xFF
	l.handleFrame(corrupt, from)

	l.handleFrame([]byte{1, 2, 3}, from)

	delivered, crc := recv.counts()
	if delivered != 2 {
		t.Errorf("delivered %d frames, want 2", delivered)
	}
	if crc != 1 {
		t.Errorf("crc errors = %d, want 1", crc)
	}
}

func TestSealedFrames(t *testing.T) {
	key := bytes.Repeat([]byte{7}, 16)

	b := newLink(t, addrB, nil, true)
	recvB := newFakeReceiver()
	recvB.key = key
	b.SetReceiver(recvB)

	a := newLink(t, addrA, []string{b.LocalAddr().String()}, true)
	recvA := newFakeReceiver()
	a.SetReceiver(recvA)

	pkt := radio.Packet{Destination: addrB, Source: addrA, ID: 9, Payload: []byte("secret")}
	if err := a.Transmit(pkt); err == nil {
		t.Fatal("sealed transmit without a session key should fail")
	}

	recvA.key = key
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Start(ctx)

	if err := a.Transmit(pkt); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	select {
	case got := <-recvB.got:
		if string(got.Payload) != "secret" {
			t.Errorf("payload = %q, want secret", got.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sealed frame not delivered")
	}

	// wrong key fails authentication and counts as an integrity error
	recvB.key = bytes.Repeat([]byte{8}, 16)
	sealed, _ := radio.MarshalPacket(radio.Packet{Destination: addrB, Source: addrA, Payload: make([]byte, 40)}, true)
	b.handleFrame(sealed, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9})
	if _, crc := recvB.counts(); crc != 1 {
		t.Errorf("crc errors = %d, want 1", crc)
	}
}

func TestExpirePeers(t *testing.T) {
	l := newLink(t, addrA, []string{"127.0.0.1:1700"}, false)
	learned := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1800}
	l.touchPeer(learned)

	l.expirePeers(time.Now().Add(peerExpiry + time.Second))

	peers := l.Peers()
	if len(peers) != 1 || !peers[0].Static {
		t.Errorf("peers after expiry = %+v, want only the static peer", peers)
	}
}

func TestTransmitFailsWhenNoPeerReached(t *testing.T) {
	tests := []struct {
		name  string
		peers []string
	}{
		{"one peer", []string{"127.0.0.1:9"}},
		{"two peers", []string{"127.0.0.1:9", "127.0.0.1:10"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLink(t, addrA, tt.peers, false)
			if got := len(l.Peers()); got != len(tt.peers) {
				t.Fatalf("peers = %d, want %d", got, len(tt.peers))
			}
			l.Close()

			err := l.Transmit(radio.Packet{ID: 1, Source: addrA, Destination: addrB, Payload: []byte("x")})
			if err == nil {
				t.Fatal("Transmit on a closed socket returned nil")
			}
		})
	}
}
