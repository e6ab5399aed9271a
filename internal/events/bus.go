// Package events fans radio callbacks out to several consumers. The radio
// holds a single RxListener and EventListener; the Bus registers as both and
// hands each packet or event to every subscriber through its own bounded
// queue so a slow consumer never stalls the radio caller.
package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/radiolink/radiolink/pkg/radio"
)

const defaultQueueSize = 128

// Subscriber consumes radio traffic. Either method may be a no-op.
type Subscriber interface {
	HandlePacket(ctx context.Context, pkt radio.Packet)
	HandleEvent(ctx context.Context, evt radio.Event)
}

type item struct {
	pkt   *radio.Packet
	event *radio.Event
}

type subscription struct {
	name  string
	sub   Subscriber
	queue chan item
}

// Bus implements radio.RxListener and radio.EventListener.
type Bus struct {
	mu        sync.RWMutex
	subs      []*subscription
	queueSize int
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closed    bool
}

// NewBus creates a bus whose subscriber queues hold queueSize items.
func NewBus(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		queueSize: queueSize,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Subscribe registers s and starts its delivery goroutine. It returns a
// function that removes the subscription.
func (b *Bus) Subscribe(name string, s Subscriber) func() {
	sub := &subscription{
		name:  name,
		sub:   s,
		queue: make(chan item, b.queueSize),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.subs = append(b.subs, sub)
	b.wg.Add(1)
	b.mu.Unlock()

	go b.run(sub)

	log.Debug().Str("subscriber", name).Msg("Event subscriber registered")

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(sub) })
	}
}

func (b *Bus) remove(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(sub.queue)
			return
		}
	}
}

func (b *Bus) run(sub *subscription) {
	defer b.wg.Done()
	for it := range sub.queue {
		if it.pkt != nil {
			sub.sub.HandlePacket(b.ctx, *it.pkt)
		}
		if it.event != nil {
			sub.sub.HandleEvent(b.ctx, *it.event)
		}
	}
}

func (b *Bus) publish(it item) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		select {
		case sub.queue <- it:
		default:
			log.Warn().Str("subscriber", sub.name).Msg("Event queue full, dropping item")
		}
	}
}

// OnPacket implements radio.RxListener. Subscribers share one copy of the
// packet and must not modify its payload.
func (b *Bus) OnPacket(pkt radio.Packet) {
	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()
	if n == 0 {
		return
	}
	p := pkt.Clone()
	b.publish(item{pkt: &p})
}

// OnEvent implements radio.EventListener.
func (b *Bus) OnEvent(evt radio.Event) {
	b.publish(item{event: &evt})
}

// Close stops accepting items and waits for subscribers to drain their
// queues.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.queue)
	}
	b.subs = nil
	b.mu.Unlock()

	b.wg.Wait()
	b.cancel()
}
