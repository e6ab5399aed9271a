package radio

// efficiency is a bit-count multiplier expressed as num/den so airtime can
// be computed without floating point.
type efficiency struct {
	num, den uint64
}

func modulationEfficiency(m Modulation) efficiency {
	switch m {
	case ModulationGFSK:
		return efficiency{9, 10}
	case ModulationLoRa:
		return efficiency{15, 10}
	case ModulationOOK:
		return efficiency{20, 10}
	default:
		return efficiency{10, 10}
	}
}

// CalculateAirtime returns the time in microseconds a payload of
// payloadSize bytes occupies the channel. The payload is padded with
// PacketOverhead bytes of header and preamble, scaled by the modulation
// efficiency and divided by the nominal bit rate. The multiply happens
// before the single division, so 32 bytes at 50 kbps GFSK is exactly 6912.
func CalculateAirtime(payloadSize int, rate DataRate, modulation Modulation) uint32 {
	if payloadSize < 0 {
		payloadSize = 0
	}
	bits := uint64(payloadSize+PacketOverhead) * 8
	eff := modulationEfficiency(modulation)
	us := bits * eff.num * 1000000 / (eff.den * uint64(rate.BitsPerSecond()))
	if us > 0xFFFFFFFF {
		return 0xFFFFFFFF
	}
	return uint32(us)
}

// currentDrawMA is the supply current per power state in milliamps.
func currentDrawMA(state PowerState) uint64 {
	switch state {
	case PowerOff:
		return 0
	case PowerSleep:
		return 1
	case PowerStandby:
		return 5
	case PowerIdle:
		return 10
	case PowerRx:
		return 20
	case PowerTx:
		return 50
	default:
		return 10
	}
}

// EstimatePowerConsumption returns the charge drawn in microamp-hours by
// staying in state for durationMs milliseconds.
func EstimatePowerConsumption(state PowerState, durationMs uint32) uint32 {
	uah := currentDrawMA(state) * 1000 * uint64(durationMs) / 3600000
	return uint32(uah)
}
