package gossip

import (
	"context"
	"sync"
)

// LocalBus is a process-local, in-memory PubSub: every Subscribe call
// on a topic gets its own buffered channel, and Publish fans out to
// all of them. Used by cmd/swarmnode's single-node demo mode and by
// this package's own tests; never persists anything.
type LocalBus struct {
	mu   sync.Mutex
	subs map[string][]chan PubSubMsg
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string][]chan PubSubMsg)}
}

func (b *LocalBus) Publish(ctx context.Context, topic string, data []byte) error {
	b.mu.Lock()
	chans := append([]chan PubSubMsg(nil), b.subs[topic]...)
	b.mu.Unlock()
	for _, ch := range chans {
		select {
		case ch <- PubSubMsg{Data: data}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(topic string) (<-chan PubSubMsg, func(), error) {
	ch := make(chan PubSubMsg, 32)
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
