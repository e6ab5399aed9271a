package radio

// ReceiveBuffer is a fixed-capacity FIFO of inbound packets. head is the
// next write slot, tail the next read slot. When full, new arrivals are
// rejected instead of overwriting the oldest packet.
type ReceiveBuffer struct {
	slots [RxBufferCapacity]Packet
	head  int
	tail  int
	count int
}

// Len returns the number of buffered packets.
func (b *ReceiveBuffer) Len() int { return b.count }

// Full reports whether another push would be rejected.
func (b *ReceiveBuffer) Full() bool { return b.count == RxBufferCapacity }

func (b *ReceiveBuffer) push(p Packet) bool {
	if b.count == RxBufferCapacity {
		return false
	}
	b.slots[b.head] = p
	b.head = (b.head + 1) % RxBufferCapacity
	b.count++
	return true
}

func (b *ReceiveBuffer) pop() (Packet, bool) {
	if b.count == 0 {
		return Packet{}, false
	}
	p := b.slots[b.tail]
	b.slots[b.tail] = Packet{}
	b.tail = (b.tail + 1) % RxBufferCapacity
	b.count--
	return p, true
}

func (b *ReceiveBuffer) reset() {
	*b = ReceiveBuffer{}
}

// consistent checks the occupancy invariant: count matches the distance
// from tail to head, with count disambiguating the full and empty cases.
func (b *ReceiveBuffer) consistent() bool {
	if b.count < 0 || b.count > RxBufferCapacity {
		return false
	}
	dist := (b.head - b.tail + RxBufferCapacity) % RxBufferCapacity
	if b.count == RxBufferCapacity {
		return dist == 0
	}
	return dist == b.count
}
