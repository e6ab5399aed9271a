package radio

import "fmt"

// SetPowerState moves the radio to state. Any transition is legal except
// entering Rx or Tx from Off. Entering Off drops the network association.
func (r *Radio) SetPowerState(state PowerState) error {
	r.mu.Lock()
	if !r.initialized {
		r.mu.Unlock()
		return fmt.Errorf("set power state: %w", ErrInit)
	}
	if !state.Valid() {
		r.mu.Unlock()
		return fmt.Errorf("set power state %d: %w", state, ErrInvalidParameter)
	}
	if r.power == PowerOff && (state == PowerRx || state == PowerTx) {
		r.mu.Unlock()
		return fmt.Errorf("set power state: %s -> %s: %w", r.power, state, ErrConfig)
	}

	prev := r.power
	if state == PowerOff {
		r.connected = false
	}
	r.power = state
	r.touchLocked()

	r.logger.Debug().
		Str("from", prev.String()).
		Str("to", state.String()).
		Msg("power state changed")

	if state != PowerIdle && state != PowerRx {
		// Nothing can arrive now; wake receivers so they observe the change.
		r.cond.Broadcast()
	}
	r.unlockAndEmit(newEvent(EventStateChanged, r.lastActivity, state, nil))
	return nil
}

// PowerState returns the current power state.
func (r *Radio) PowerState() (PowerState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return PowerOff, fmt.Errorf("power state: %w", ErrInit)
	}
	return r.power, nil
}
