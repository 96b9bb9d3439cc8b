package discovery

import (
	"context"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/multiformats/go-multiaddr"
	peer "github.com/libp2p/go-libp2p/core/peer"
)

const topic = "banyanmesh/discovery/v1"

// Stats is the peer-count summary carried in every NodeInfo.
type Stats struct {
	KnownPeers     int `cbor:"known_peers"`
	ConnectedPeers int `cbor:"connected_peers"`
}

// NodeInfo announces a peer's full address set and summary stats.
type NodeInfo struct {
	Peer      peer.ID  `cbor:"peer"`
	Addresses []string `cbor:"addresses"`
	Stats     Stats    `cbor:"stats"`
}

// NewListenAddr/ExpiredListenAddr announce a single listen-address
// change, published immediately rather than waiting for the next
// NodeInfo cadence (spec §4.3).
type NewListenAddr struct {
	Peer    peer.ID `cbor:"peer"`
	Address string  `cbor:"address"`
}

type ExpiredListenAddr struct {
	Peer    peer.ID `cbor:"peer"`
	Address string  `cbor:"address"`
}

// Message is the outer single-key wire wrapper, mirroring gossip's.
type Message struct {
	NodeInfo          *NodeInfo
	NewListenAddr     *NewListenAddr
	ExpiredListenAddr *ExpiredListenAddr
}

type wireMessage struct {
	NodeInfo          *NodeInfo          `cbor:"NodeInfo,omitempty"`
	NewListenAddr     *NewListenAddr     `cbor:"NewListenAddr,omitempty"`
	ExpiredListenAddr *ExpiredListenAddr `cbor:"ExpiredListenAddr,omitempty"`
}

func Encode(m Message) ([]byte, error) {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	return mode.Marshal(wireMessage{NodeInfo: m.NodeInfo, NewListenAddr: m.NewListenAddr, ExpiredListenAddr: m.ExpiredListenAddr})
}

func Decode(data []byte) (Message, error) {
	var w wireMessage
	if err := cbor.Unmarshal(data, &w); err != nil {
		return Message{}, err
	}
	return Message{NodeInfo: w.NodeInfo, NewListenAddr: w.NewListenAddr, ExpiredListenAddr: w.ExpiredListenAddr}, nil
}

// PubSub is the external broadcast primitive this package consumes.
type PubSub interface {
	Publish(ctx context.Context, topic string, data []byte) error
	Subscribe(topic string) (<-chan []byte, func(), error)
}

// Publisher drives the discovery-topic outbound cadence: a periodic
// NodeInfo (default 30s, first fire +1s) plus immediate
// NewListenAddr/ExpiredListenAddr on listen-set changes.
type Publisher struct {
	bus  PubSub
	self peer.ID
}

func NewPublisher(bus PubSub, self peer.ID) *Publisher {
	return &Publisher{bus: bus, self: self}
}

func (p *Publisher) PublishNodeInfo(ctx context.Context, addrs []multiaddr.Multiaddr, stats Stats) error {
	strs := make([]string, len(addrs))
	for i, a := range addrs {
		strs[i] = a.String()
	}
	data, err := Encode(Message{NodeInfo: &NodeInfo{Peer: p.self, Addresses: strs, Stats: stats}})
	if err != nil {
		return err
	}
	return p.bus.Publish(ctx, topic, data)
}

func (p *Publisher) PublishNewListenAddr(ctx context.Context, addr multiaddr.Multiaddr) error {
	data, err := Encode(Message{NewListenAddr: &NewListenAddr{Peer: p.self, Address: addr.String()}})
	if err != nil {
		return err
	}
	return p.bus.Publish(ctx, topic, data)
}

func (p *Publisher) PublishExpiredListenAddr(ctx context.Context, addr multiaddr.Multiaddr) error {
	data, err := Encode(Message{ExpiredListenAddr: &ExpiredListenAddr{Peer: p.self, Address: addr.String()}})
	if err != nil {
		return err
	}
	return p.bus.Publish(ctx, topic, data)
}

// RunNodeInfoCadence blocks, publishing NodeInfo every interval (the
// first fire after firstDelay) until ctx is cancelled.
func (p *Publisher) RunNodeInfoCadence(ctx context.Context, firstDelay, interval time.Duration, snapshot func() ([]multiaddr.Multiaddr, Stats)) {
	timer := time.NewTimer(firstDelay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			addrs, stats := snapshot()
			_ = p.PublishNodeInfo(ctx, addrs, stats)
			timer.Reset(interval)
		}
	}
}
