package node

import (
	"context"
	"time"

	peer "github.com/libp2p/go-libp2p/core/peer"

	"github.com/banyanmesh/core/bitswap"
	"github.com/banyanmesh/core/cmn/nlog"
	"github.com/banyanmesh/core/model"
)

// runBitswapJanitor runs Engine.Janitor passes until ctx is cancelled,
// sleeping between passes for the delay Janitor reports, capped at
// config.Intervals.JanitorPeriod (also used when Janitor reports <= 0).
func (n *Node) runBitswapJanitor(ctx context.Context) {
	delay := n.cfg.Intervals.JanitorPeriod
	t := time.NewTimer(delay)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			next := n.bitswapEngine.Janitor(ctx)
			if next <= 0 || next > n.cfg.Intervals.JanitorPeriod {
				next = n.cfg.Intervals.JanitorPeriod
			}
			t.Reset(next)
		}
	}
}

// ServeWants runs until ctx is cancelled, reading every inbound
// bitswap frame from p and dispatching it to the engine (spec §4.4).
// A real transport spawns one of these per connected peer; the
// LocalTransport test double keyed by inbox lets a single call drain
// everything one peer sent.
func (n *Node) ServeWants(ctx context.Context, p peer.ID) {
	ch, err := n.bitswapTr.Deliver(p)
	if err != nil {
		nlog.Errorf("node: bitswap deliver(%s) failed: %v", p, err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case wm, ok := <-ch:
			if !ok {
				return
			}
			n.handleWantsMsg(ctx, wm)
		}
	}
}

func (n *Node) handleWantsMsg(ctx context.Context, wm bitswap.WantsMsg) {
	msg, err := bitswap.Decode(wm.Payload)
	if err != nil {
		nlog.Warningf("node: dropping malformed bitswap message from %s: %v", wm.Peer, err)
		return
	}
	switch {
	case msg.HaveQuery != nil:
		_ = n.bitswapEngine.HandleHaveQuery(ctx, wm.Peer, *msg.HaveQuery, n.haveLocally)
	case msg.HaveResponse != nil:
		_ = n.bitswapEngine.HandleHaveResponse(ctx, wm.Peer, *msg.HaveResponse)
	case msg.WantQuery != nil:
		_ = n.bitswapEngine.HandleWantQuery(ctx, wm.Peer, *msg.WantQuery, n.getLocally)
	case msg.WantResponse != nil:
		_ = n.bitswapEngine.HandleWantResponse(ctx, wm.Peer, *msg.WantResponse)
	case msg.Cancel != nil:
		// Cancel only affects an in-flight remote send we already
		// completed synchronously; nothing to do on this side.
	}
}

func (n *Node) haveLocally(c model.Cid) bool {
	ok, _ := n.bs.Has(context.Background(), c)
	return ok
}

func (n *Node) getLocally(c model.Cid) ([]byte, bool) {
	block, err := n.bs.Get(context.Background(), c)
	if err != nil {
		return nil, false
	}
	return block, true
}
