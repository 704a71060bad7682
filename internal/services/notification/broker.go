package notification

import (
	"context"
	"sync"
)

// Broker is an in-process Publisher/Subscriber for single-process
// deployments and tests. Slow subscribers are skipped rather than
// blocking a publish.
type Broker struct {
	mu   sync.RWMutex
	subs map[string][]chan StateChangeEvent
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string][]chan StateChangeEvent)}
}

func (b *Broker) Publish(ctx context.Context, event StateChangeEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[event.TransactionID] {
		select {
		case ch <- event:
		default:
		}
	}
}

func (b *Broker) Subscribe(ctx context.Context, transactionID string) (<-chan StateChangeEvent, func()) {
	ch := make(chan StateChangeEvent, 16)

	b.mu.Lock()
	b.subs[transactionID] = append(b.subs[transactionID], ch)
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			chans := b.subs[transactionID]
			for i, c := range chans {
				if c == ch {
					b.subs[transactionID] = append(chans[:i], chans[i+1:]...)
					break
				}
			}
			if len(b.subs[transactionID]) == 0 {
				delete(b.subs, transactionID)
			}
			close(ch)
		})
	}
	return ch, cancel
}
