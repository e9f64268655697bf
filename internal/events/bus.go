package events

import "sync"

// Bus is an in-process pub/sub broker. Publishing never blocks: a
// subscriber that cannot keep up loses messages rather than stalling the
// reconciliation or ingest paths.
type Bus struct {
	mu   sync.RWMutex
	subs map[Event][]chan any
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Event][]chan any)}
}

// Subscribe registers a listener for one topic. The returned function
// removes the subscription and closes the channel.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan any, func()) {
	b.mu.Lock()
	ch := make(chan any, buffer)
	b.subs[e] = append(b.subs[e], ch)
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, c := range b.subs[e] {
			if c == ch {
				close(c)
				b.subs[e] = append(b.subs[e][:i], b.subs[e][i+1:]...)
				return
			}
		}
	}
	return ch, unsub
}

// Publish delivers payload to every subscriber of e, dropping it for any
// subscriber whose buffer is full.
func (b *Bus) Publish(e Event, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[e] {
		select {
		case ch <- payload:
		default:
		}
	}
}
