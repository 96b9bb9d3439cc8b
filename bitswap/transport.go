package bitswap

import (
	"context"
	"sync"

	peer "github.com/libp2p/go-libp2p/core/peer"
)

// WantsMsg is one inbound frame from a connection-oriented wants
// transport: a message from a specific peer.
type WantsMsg struct {
	Peer    peer.ID
	Payload []byte
}

// Transport is the connection-oriented block-wants collaborator this
// package consumes (spec §6.1's WantsTransport): one codec per
// connection, carrying HAVE/WANT/CANCEL frames.
type Transport interface {
	SendHave(ctx context.Context, p peer.ID, m HaveQuery) error
	SendHaveResponse(ctx context.Context, p peer.ID, m HaveResponse) error
	SendWant(ctx context.Context, p peer.ID, m WantQuery) error
	SendWantResponse(ctx context.Context, p peer.ID, m WantResponse) error
	SendCancel(ctx context.Context, p peer.ID, m Cancel) error
	Deliver(p peer.ID) (<-chan WantsMsg, error)
}

// LocalTransport is a process-local, in-memory Transport test double.
// Deliver(p) returns the channel of messages received from p; Connect
// links two LocalTransports so each can address the other by peer ID.
type LocalTransport struct {
	mu      sync.Mutex
	remotes map[peer.ID]*LocalTransport
	inboxes map[peer.ID]chan WantsMsg // keyed by the sending peer
	self    peer.ID
}

func NewLocalTransport(self peer.ID) *LocalTransport {
	return &LocalTransport{
		remotes: make(map[peer.ID]*LocalTransport),
		inboxes: make(map[peer.ID]chan WantsMsg),
		self:    self,
	}
}

func (t *LocalTransport) Connect(other *LocalTransport) {
	t.mu.Lock()
	t.remotes[other.self] = other
	t.inboxes[other.self] = make(chan WantsMsg, 64)
	t.mu.Unlock()
	other.mu.Lock()
	other.remotes[t.self] = t
	other.inboxes[t.self] = make(chan WantsMsg, 64)
	other.mu.Unlock()
}

func (t *LocalTransport) send(ctx context.Context, p peer.ID, payload []byte) error {
	t.mu.Lock()
	remote, ok := t.remotes[p]
	t.mu.Unlock()
	if !ok {
		return nil // unconnected peer, drop silently like an unreachable remote
	}
	remote.mu.Lock()
	ch := remote.inboxes[t.self]
	remote.mu.Unlock()
	select {
	case ch <- WantsMsg{Peer: t.self, Payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *LocalTransport) SendHave(ctx context.Context, p peer.ID, m HaveQuery) error {
	data, err := Encode(Message{HaveQuery: &m})
	if err != nil {
		return err
	}
	return t.send(ctx, p, data)
}

func (t *LocalTransport) SendHaveResponse(ctx context.Context, p peer.ID, m HaveResponse) error {
	data, err := Encode(Message{HaveResponse: &m})
	if err != nil {
		return err
	}
	return t.send(ctx, p, data)
}

func (t *LocalTransport) SendWant(ctx context.Context, p peer.ID, m WantQuery) error {
	data, err := Encode(Message{WantQuery: &m})
	if err != nil {
		return err
	}
	return t.send(ctx, p, data)
}

func (t *LocalTransport) SendWantResponse(ctx context.Context, p peer.ID, m WantResponse) error {
	data, err := Encode(Message{WantResponse: &m})
	if err != nil {
		return err
	}
	return t.send(ctx, p, data)
}

func (t *LocalTransport) SendCancel(ctx context.Context, p peer.ID, m Cancel) error {
	data, err := Encode(Message{Cancel: &m})
	if err != nil {
		return err
	}
	return t.send(ctx, p, data)
}

// Deliver returns the channel of messages received from p.
func (t *LocalTransport) Deliver(p peer.ID) (<-chan WantsMsg, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.inboxes[p]
	if !ok {
		ch = make(chan WantsMsg, 64)
		t.inboxes[p] = ch
	}
	return ch, nil
}
