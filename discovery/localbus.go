package discovery

import (
	"context"
	"sync"
)

// LocalBus is an in-process PubSub test double mirroring gossip's,
// sized for this package's []byte-channel Subscribe shape.
type LocalBus struct {
	mu   sync.Mutex
	subs map[string][]chan []byte
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string][]chan []byte)}
}

func (b *LocalBus) Publish(ctx context.Context, topic string, data []byte) error {
	b.mu.Lock()
	chans := append([]chan []byte(nil), b.subs[topic]...)
	b.mu.Unlock()
	for _, ch := range chans {
		select {
		case ch <- data:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(topic string) (<-chan []byte, func(), error) {
	ch := make(chan []byte, 32)
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[topic]
		for i, c := range subs {
			if c == ch {
				b.subs[topic] = append(subs[:i], subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel, nil
}
