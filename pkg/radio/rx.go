package radio

import (
	"context"
	"fmt"
	"time"
)

// Deliver injects an arrived packet into the receive buffer. It is the
// inbound path for the channel model, the air-link bridge and tests.
// Packets are accepted only in Idle or Rx; a full buffer drops the arrival
// without counting it.
func (r *Radio) Deliver(pkt Packet) error {
	if len(pkt.Payload) > MaxPayloadSize {
		return fmt.Errorf("deliver: %w", ErrOversizedPacket)
	}
	pkt = pkt.Clone()

	r.mu.Lock()
	if !r.initialized {
		r.mu.Unlock()
		return fmt.Errorf("deliver: %w", ErrInit)
	}
	switch r.power {
	case PowerIdle, PowerRx:
	case PowerOff:
		r.mu.Unlock()
		return fmt.Errorf("deliver: %w", ErrPowerFailure)
	default:
		state := r.power
		r.mu.Unlock()
		return fmt.Errorf("deliver: radio is %s: %w", state, ErrChannelBusy)
	}
	if pkt.Timestamp == 0 {
		pkt.Timestamp = r.timestampLocked()
	}
	if !r.rx.push(pkt) {
		r.logger.Warn().Uint16("packet_id", pkt.ID).Msg("receive buffer full, packet dropped")
		r.unlockAndEmit(newEvent(EventPacketDropped, r.now(), r.power, ErrBufferFull))
		return fmt.Errorf("deliver: %w", ErrBufferFull)
	}
	r.stats.PacketsReceived++
	r.touchLocked()
	r.cond.Broadcast()

	rxl := r.rxListener
	evl := r.eventListener
	evt := newEvent(EventPacketReceived, r.lastActivity, r.power, nil)
	r.mu.Unlock()

	if rxl != nil {
		rxl.OnPacket(pkt.Clone())
	}
	if evl != nil {
		evl.OnEvent(evt)
	}
	return nil
}

// pollArrival asks the channel model for one inbound packet and delivers
// it. It reports whether a packet was accepted.
func (r *Radio) pollArrival() bool {
	r.mu.Lock()
	if r.checkPoweredLocked() != nil {
		r.mu.Unlock()
		return false
	}
	local := r.config.DeviceAddress
	r.mu.Unlock()

	pkt, ok := r.channel.InboundPacket(local)
	if !ok {
		return false
	}
	return r.Deliver(pkt) == nil
}

// SimulateArrivals polls the channel model n times and returns how many
// packets were accepted into the receive buffer.
func (r *Radio) SimulateArrivals(n int) (int, error) {
	r.mu.Lock()
	err := r.checkPoweredLocked()
	r.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("simulate arrivals: %w", err)
	}
	if n < 0 {
		return 0, fmt.Errorf("simulate arrivals: %w", ErrInvalidParameter)
	}

	accepted := 0
	for i := 0; i < n; i++ {
		if r.pollArrival() {
			accepted++
		}
	}
	return accepted, nil
}

// Receive returns the oldest buffered packet. With a zero timeout it never
// blocks and reports ErrBufferEmpty; otherwise it waits until a packet
// arrives, the timeout expires (ErrTimeout), ctx is done or the radio is
// deinitialized (ErrInit). The deadline is fixed at entry.
func (r *Radio) Receive(ctx context.Context, timeout time.Duration) (Packet, error) {
	deadline := time.Now().Add(timeout)
	r.pollArrival()

	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		if err := r.checkPoweredLocked(); err != nil {
			return Packet{}, fmt.Errorf("receive: %w", err)
		}
		if pkt, ok := r.rx.pop(); ok {
			r.touchLocked()
			return pkt, nil
		}
		if timeout <= 0 {
			return Packet{}, fmt.Errorf("receive: %w", ErrBufferEmpty)
		}
		if err := ctx.Err(); err != nil {
			return Packet{}, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			r.stats.Timeouts++
			return Packet{}, fmt.Errorf("receive: %w", ErrTimeout)
		}

		r.waitLocked(ctx, min(remaining, r.pollInterval))

		r.mu.Unlock()
		r.pollArrival()
		r.mu.Lock()
	}
}

// waitLocked blocks on r.cond until a broadcast, d elapses or ctx is done.
func (r *Radio) waitLocked(ctx context.Context, d time.Duration) {
	wake := func() {
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
	}
	timer := time.AfterFunc(d, wake)
	stop := context.AfterFunc(ctx, wake)
	r.cond.Wait()
	timer.Stop()
	stop()
}

// Pending returns the number of packets waiting in the receive buffer.
func (r *Radio) Pending() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return 0, fmt.Errorf("pending: %w", ErrInit)
	}
	return r.rx.Len(), nil
}

// ReportCRCError records a frame that failed its integrity check before it
// could be delivered.
func (r *Radio) ReportCRCError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return fmt.Errorf("report crc error: %w", ErrInit)
	}
	r.stats.CRCErrors++
	return nil
}
