package event

import "sync"

// Bus fans outcomes out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the outcome.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Outcome
	nextID int
	closed bool
}

// NewBus creates a Bus with no subscribers.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Outcome)}
}

// Subscribe returns a channel receiving every outcome published from now on
// and a cancel func that unsubscribes and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Outcome, func()) {
	ch := make(chan Outcome, buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers o to every subscriber with room and returns how many
// subscribers missed it.
func (b *Bus) Publish(o Outcome) (dropped int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- o:
		default:
			dropped++
		}
	}
	return dropped
}

// Close closes every subscriber channel. Later subscriptions get a closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
