package radio

import (
	"testing"
	"time"
)

func TestSimulatedChannelRanges(t *testing.T) {
	params := DefaultSimulationParams()
	params.Seed = 42
	ch := NewSimulatedChannel(params)

	for i := 0; i < 1000; i++ {
		if rssi := ch.SampleRSSI(); rssi < -80 || rssi > -60 {
			t.Fatalf("rssi %d outside -70±10", rssi)
		}
		if u := ch.SampleUtilization(); u < 10 || u > 39 {
			t.Fatalf("utilization %d outside 10..39", u)
		}
	}

	for i := 0; i < 50; i++ {
		nets := ch.DiscoverNetworks(3, time.Second)
		if len(nets) < 1 || len(nets) > 3 {
			t.Fatalf("discovered %d networks, want 1..3", len(nets))
		}
		for j, n := range nets {
			if n.NetworkID != uint16(1000+j) {
				t.Errorf("network %d id = %d", j, n.NetworkID)
			}
			if n.IsGateway != (j == 0) {
				t.Errorf("network %d gateway = %v", j, n.IsGateway)
			}
			if n.HopCount < 1 || n.HopCount > 5 {
				t.Errorf("hop count %d outside 1..5", n.HopCount)
			}
		}
	}
}

func TestSimulatedChannelDeterministic(t *testing.T) {
	params := DefaultSimulationParams()
	params.Seed = 7
	a := NewSimulatedChannel(params)
	b := NewSimulatedChannel(params)

	for i := 0; i < 100; i++ {
		if a.SampleRSSI() != b.SampleRSSI() {
			t.Fatal("same seed produced different samples")
		}
	}
}

func TestSimulatedChannelRates(t *testing.T) {
	params := SimulationParams{Seed: 1, BaseRSSI: -70, LossPercent: 100, JoinFailurePercent: 100, ArrivalPercent: 100}
	ch := NewSimulatedChannel(params)

	if err := ch.TransmissionOutcome(Packet{}); err != ErrNoAck {
		t.Errorf("TransmissionOutcome = %v, want ErrNoAck", err)
	}
	if _, err := ch.JoinOutcome(1000, time.Second); err != ErrTimeout {
		t.Errorf("JoinOutcome = %v, want ErrTimeout", err)
	}
	pkt, ok := ch.InboundPacket(testAddress())
	if !ok {
		t.Fatal("InboundPacket returned nothing at 100% arrival")
	}
	if pkt.Destination != testAddress() || len(pkt.Payload) == 0 || len(pkt.Payload) > 100 {
		t.Errorf("inbound packet = %+v", pkt)
	}

	params.LossPercent, params.JoinFailurePercent, params.ArrivalPercent = 0, 0, 0
	ch = NewSimulatedChannel(params)
	if err := ch.TransmissionOutcome(Packet{}); err != nil {
		t.Errorf("TransmissionOutcome = %v, want nil", err)
	}
	info, err := ch.JoinOutcome(1000, time.Second)
	if err != nil {
		t.Fatalf("JoinOutcome: %v", err)
	}
	if info.LinkQuality < 70 || info.LinkQuality > 99 {
		t.Errorf("join link quality %d outside 70..99", info.LinkQuality)
	}
	if _, ok := ch.InboundPacket(testAddress()); ok {
		t.Error("InboundPacket returned a packet at 0% arrival")
	}
}

func TestClampRSSI(t *testing.T) {
	if got := clampRSSI(-200); got != RSSIMin {
		t.Errorf("clampRSSI(-200) = %d", got)
	}
	if got := clampRSSI(10); got != RSSIMax {
		t.Errorf("clampRSSI(10) = %d", got)
	}
}
