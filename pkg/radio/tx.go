package radio

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TxState is the lifecycle of an asynchronous transmission.
type TxState uint8

const (
	TxPending TxState = iota
	TxSucceeded
	TxFailed
)

var txStateNames = enumNames{"PENDING", "SUCCEEDED", "FAILED"}

func (s TxState) String() string { return txStateNames.name(int(s), "TxState") }

func (s TxState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// TxStatus is the outcome of one asynchronous transmission.
type TxStatus struct {
	ID        uint16    `json:"tx_id"`
	State     TxState   `json:"state"`
	Submitted time.Time `json:"submitted"`
	Completed time.Time `json:"completed,omitempty"`
	Code      int       `json:"code"`
	Error     string    `json:"error,omitempty"`
	Err       error     `json:"-"`
}

type txEntry struct {
	status TxStatus
	done   chan struct{}
}

// txTable tracks asynchronous transmissions by id. Settled entries are
// evicted oldest first once more than limit have accumulated.
type txTable struct {
	entries map[uint16]*txEntry
	settled []uint16
	limit   int
}

func newTxTable(limit int) *txTable {
	if limit <= 0 {
		limit = 1
	}
	return &txTable{entries: make(map[uint16]*txEntry), limit: limit}
}

func (t *txTable) begin(id uint16, at time.Time) {
	t.entries[id] = &txEntry{
		status: TxStatus{ID: id, State: TxPending, Submitted: at},
		done:   make(chan struct{}),
	}
}

func (t *txTable) settle(id uint16, at time.Time, err error) (TxStatus, bool) {
	e, ok := t.entries[id]
	if !ok || e.status.State != TxPending {
		return TxStatus{}, false
	}
	e.status.Completed = at
	e.status.Err = err
	e.status.Code = ErrorCode(err)
	if err != nil {
		e.status.State = TxFailed
		e.status.Error = err.Error()
	} else {
		e.status.State = TxSucceeded
	}
	close(e.done)

	t.settled = append(t.settled, id)
	for len(t.settled) > t.limit {
		delete(t.entries, t.settled[0])
		t.settled = t.settled[1:]
	}
	return e.status, true
}

func (t *txTable) lookup(id uint16) (*txEntry, bool) {
	e, ok := t.entries[id]
	return e, ok
}

func (t *txTable) pending() int {
	return len(t.entries) - len(t.settled)
}

// admitLocked runs the admission checks shared by Send and SendAsync and
// fills in driver-assigned fields. It mutates nothing but pkt on failure.
func (r *Radio) admitLocked(pkt *Packet) error {
	if !r.initialized {
		return ErrInit
	}
	if len(pkt.Payload) > MaxPayloadSize {
		return fmt.Errorf("payload %d bytes exceeds %d: %w", len(pkt.Payload), MaxPayloadSize, ErrOversizedPacket)
	}
	if r.power == PowerOff {
		return ErrPowerFailure
	}
	if pkt.Source.IsZero() {
		pkt.Source = r.config.DeviceAddress
	}
	if pkt.Timestamp == 0 {
		pkt.Timestamp = r.timestampLocked()
	}
	pkt.RetryCount = 0
	return nil
}

func (r *Radio) allocPacketIDLocked() uint16 {
	id := r.nextPacketID
	r.nextPacketID++
	if r.nextPacketID == 0 {
		r.nextPacketID = 1
	}
	return id
}

func (r *Radio) allocTxIDLocked() uint16 {
	id := r.nextTxID
	r.nextTxID++
	if r.nextTxID == 0 {
		r.nextTxID = 1
	}
	return id
}

// transmit performs the transmission attempts for pkt without holding the
// lock across channel model or transmitter calls. Each attempt accrues
// airtime. Unacknowledged frames are retried only when cfg.AutoRetry is
// set and an acknowledgement is expected.
func (r *Radio) transmit(cfg Config, pkt *Packet) error {
	attempts := 1
	if cfg.AutoRetry && (cfg.AutoAck || pkt.RequireAck) {
		attempts += int(cfg.MaxRetries)
	}
	airtime := uint64(CalculateAirtime(len(pkt.Payload), cfg.DataRate, cfg.Modulation))

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		r.mu.Lock()
		r.stats.TotalAirtimeUs += airtime
		if attempt > 0 {
			r.stats.RetriesAttempted++
			pkt.RetryCount++
		}
		r.mu.Unlock()

		if r.transmitter != nil {
			if terr := r.transmitter.Transmit(pkt.Clone()); terr != nil {
				r.logger.Error().Err(terr).Uint16("packet_id", pkt.ID).Msg("transmitter failed")
				return fmt.Errorf("transmit: %v: %w", terr, ErrHardware)
			}
		}

		err = r.channel.TransmissionOutcome(*pkt)
		if err == nil || !errors.Is(err, ErrNoAck) {
			return err
		}
	}
	return err
}

// Send transmits pkt and waits for the outcome. The radio passes through
// Tx and is always left in Idle, emitting a state change for each leg. A
// lost frame returns ErrNoAck.
func (r *Radio) Send(pkt Packet) error {
	pkt = pkt.Clone()

	r.mu.Lock()
	if err := r.admitLocked(&pkt); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("send: %w", err)
	}
	if pkt.ID == 0 {
		pkt.ID = r.allocPacketIDLocked()
	}
	r.power = PowerTx
	r.touchLocked()
	r.stats.PacketsSent++
	cfg := r.config
	r.unlockAndEmit(newEvent(EventStateChanged, r.lastActivity, PowerTx, nil))

	err := r.transmit(cfg, &pkt)

	r.mu.Lock()
	var evts []Event
	if r.initialized && r.power == PowerTx {
		r.power = PowerIdle
		r.touchLocked()
		evts = append(evts, newEvent(EventStateChanged, r.lastActivity, PowerIdle, nil))
	}
	evt := newEvent(EventPacketSent, r.now(), r.power, nil)
	if err != nil {
		r.stats.PacketsLost++
		evt = newEvent(EventPacketLost, r.now(), r.power, err)
		r.logger.Warn().Err(err).Uint16("packet_id", pkt.ID).Uint8("retries", pkt.RetryCount).Msg("packet lost")
	}
	r.unlockAndEmit(append(evts, evt)...)

	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// SendAsync queues pkt for transmission and returns its transaction id
// immediately. The outcome is recorded in the transaction table; query it
// with TxStatus or WaitTx.
func (r *Radio) SendAsync(pkt Packet) (uint16, error) {
	pkt = pkt.Clone()

	r.mu.Lock()
	if err := r.admitLocked(&pkt); err != nil {
		r.mu.Unlock()
		return 0, fmt.Errorf("send async: %w", err)
	}
	id := r.allocTxIDLocked()
	if pkt.ID == 0 {
		pkt.ID = id
	}
	r.stats.PacketsSent++
	r.txns.begin(id, r.now())
	cfg := r.config
	r.workers.Add(1)
	r.mu.Unlock()

	go r.completeAsync(id, cfg, pkt)
	return id, nil
}

func (r *Radio) completeAsync(id uint16, cfg Config, pkt Packet) {
	err := r.transmit(cfg, &pkt)

	r.mu.Lock()
	if err != nil {
		r.stats.PacketsLost++
	}
	status, ok := r.txns.settle(id, r.now(), err)
	listener := r.eventListener
	state := r.power
	r.mu.Unlock()
	r.workers.Done()

	if !ok {
		return
	}
	if err != nil {
		r.logger.Warn().Err(err).Uint16("tx_id", id).Msg("async transmission failed")
	}
	if listener != nil {
		evt := newEvent(EventTxCompleted, status.Completed, state, err)
		evt.TxID = id
		listener.OnEvent(evt)
	}
}

// TxStatus returns the state of the asynchronous transmission id.
func (r *Radio) TxStatus(id uint16) (TxStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return TxStatus{}, fmt.Errorf("tx status: %w", ErrInit)
	}
	e, ok := r.txns.lookup(id)
	if !ok {
		return TxStatus{}, fmt.Errorf("tx status %d: %w", id, ErrNotFound)
	}
	return e.status, nil
}

// WaitTx blocks until transaction id settles or ctx is done.
func (r *Radio) WaitTx(ctx context.Context, id uint16) (TxStatus, error) {
	r.mu.Lock()
	if !r.initialized {
		r.mu.Unlock()
		return TxStatus{}, fmt.Errorf("wait tx: %w", ErrInit)
	}
	e, ok := r.txns.lookup(id)
	if !ok {
		r.mu.Unlock()
		return TxStatus{}, fmt.Errorf("wait tx %d: %w", id, ErrNotFound)
	}
	done := e.done
	r.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return TxStatus{}, ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return e.status, nil
}
