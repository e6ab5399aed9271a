package radio

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestMeasureRSSI(t *testing.T) {
	r, ch := newTestRadio(t)
	ch.rssi = -88

	rssi, err := r.MeasureRSSI()
	if err != nil {
		t.Fatalf("MeasureRSSI: %v", err)
	}
	if rssi != -88 {
		t.Errorf("rssi = %d, want -88", rssi)
	}

	_ = r.SetPowerState(PowerOff)
	if _, err := r.MeasureRSSI(); !errors.Is(err, ErrPowerFailure) {
		t.Errorf("MeasureRSSI when off error = %v, want ErrPowerFailure", err)
	}
	if _, err := r.ChannelUtilization(); !errors.Is(err, ErrPowerFailure) {
		t.Errorf("ChannelUtilization when off error = %v, want ErrPowerFailure", err)
	}
}

func TestStatisticsPowerEstimate(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	r := New(WithChannelModel(newFakeChannel()), WithLogger(zerolog.Nop()), WithClock(clock))
	if err := r.Init(testConfig()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer r.Deinit()

	now = now.Add(time.Hour)
	stats, err := r.Statistics()
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	// one hour idle at 10 mA
	if stats.PowerConsumption != 10000 {
		t.Errorf("power consumption = %d uAh, want 10000", stats.PowerConsumption)
	}
	if stats.ChannelUtilization != 20 {
		t.Errorf("utilization = %d, want 20", stats.ChannelUtilization)
	}
}

func TestUtilizationClamped(t *testing.T) {
	tests := []struct {
		sample uint8
		want   uint8
	}{
		{0, 0},
		{55, 55},
		{100, 100},
		{150, 100},
		{255, 100},
	}
	for _, tt := range tests {
		r, ch := newTestRadio(t)
		ch.mu.Lock()
		ch.util = tt.sample
		ch.mu.Unlock()

		stats, err := r.Statistics()
		if err != nil {
			t.Fatalf("Statistics: %v", err)
		}
		if stats.ChannelUtilization != tt.want {
			t.Errorf("Statistics utilization for sample %d = %d, want %d", tt.sample, stats.ChannelUtilization, tt.want)
		}
		u, err := r.ChannelUtilization()
		if err != nil {
			t.Fatalf("ChannelUtilization: %v", err)
		}
		if u != tt.want {
			t.Errorf("ChannelUtilization for sample %d = %d, want %d", tt.sample, u, tt.want)
		}
	}
}

func TestTotalAirtimeMs(t *testing.T) {
	tests := []struct {
		us   uint64
		want uint64
	}{
		{0, 0},
		{999, 0},
		{1000, 1},
		{6912, 6},
		{20736, 20},
	}
	for _, tt := range tests {
		s := Statistics{TotalAirtimeUs: tt.us}
		if got := s.TotalAirtimeMs(); got != tt.want {
			t.Errorf("TotalAirtimeMs(%d us) = %d, want %d", tt.us, got, tt.want)
		}
	}
}

func TestStatisticsDoesNotTouchCounters(t *testing.T) {
	r, _ := newTestRadio(t)
	_ = r.Send(Packet{Payload: []byte("a")})

	a, _ := r.Statistics()
	b, _ := r.Statistics()
	if a.PacketsSent != b.PacketsSent || a.TotalAirtimeUs != b.TotalAirtimeUs {
		t.Errorf("counters changed between reads: %+v vs %+v", a, b)
	}
}

func TestResetStatistics(t *testing.T) {
	r, ch := newTestRadio(t)
	_ = r.Send(Packet{Payload: []byte("a")})
	_ = r.Deliver(Packet{})
	_ = r.ReportCRCError()

	ch.rssi = -50
	if err := r.ResetStatistics(); err != nil {
		t.Fatalf("ResetStatistics: %v", err)
	}

	r.mu.Lock()
	stats := r.stats
	r.mu.Unlock()
	want := Statistics{LastRSSI: -50}
	if stats != want {
		t.Errorf("stats after reset = %+v, want %+v", stats, want)
	}
}

func TestSelfTest(t *testing.T) {
	r, _ := newTestRadio(t)

	res, err := r.SelfTest()
	if err != nil {
		t.Fatalf("SelfTest: %v", err)
	}
	if res != SelfTestAll {
		t.Errorf("result = %06b, want %06b", res, SelfTestAll)
	}

	r.mu.Lock()
	r.rx.count = 5
	r.mu.Unlock()

	res, err = r.SelfTest()
	if !errors.Is(err, ErrHardware) {
		t.Fatalf("SelfTest error = %v, want ErrHardware", err)
	}
	if res&SelfTestBuffer != 0 {
		t.Error("buffer bit set for inconsistent buffer")
	}
	if res|SelfTestBuffer != SelfTestAll {
		t.Errorf("result = %06b, want every bit but buffer", res)
	}
	if failed := res.Failed(); len(failed) != 1 || failed[0] != "buffer" {
		t.Errorf("failed = %v, want [buffer]", failed)
	}

	r.mu.Lock()
	r.rx.reset()
	r.mu.Unlock()
}

func TestFirmwareVersion(t *testing.T) {
	r, _ := newTestRadio(t)

	tests := []struct {
		capacity int
		want     string
		err      error
	}{
		{7, "", ErrInvalidParameter},
		{8, "v2.1.4-", nil},
		{11, "v2.1.4-sim", nil},
		{64, "v2.1.4-sim", nil},
	}
	for _, tt := range tests {
		got, err := r.FirmwareVersion(tt.capacity)
		if !errors.Is(err, tt.err) {
			t.Errorf("FirmwareVersion(%d) error = %v, want %v", tt.capacity, err, tt.err)
		}
		if got != tt.want {
			t.Errorf("FirmwareVersion(%d) = %q, want %q", tt.capacity, got, tt.want)
		}
	}
}
