package bitswap

import (
	"context"
	"sync"
	"time"

	peer "github.com/libp2p/go-libp2p/core/peer"

	"github.com/banyanmesh/core/cmn/config"
	"github.com/banyanmesh/core/model"
)

// wantState is which of the two per-CID states (spec §4.4) an entry
// is in.
type wantState int

const (
	stateWant wantState = iota
	stateComing
)

type entry struct {
	cid   model.Cid
	state wantState
	from  peer.ID // valid only when state == stateComing
	since time.Time
}

// Engine tracks the per-CID want state machine and drives the
// HAVE/WANT/CANCEL traffic plus janitor timeouts that keep it honest
// (spec §4.4).
type Engine struct {
	mu        sync.Mutex
	entries   map[string]*entry // keyed by Cid.String()
	peers     map[peer.ID]struct{}
	transport Transport

	maxSendDuration time.Duration
	resendDuration  time.Duration

	onDeliver       func(cid model.Cid, block []byte)
	onPromiseBroken func(p peer.ID)
	onWantCleanup   func(cid model.Cid)
}

func NewEngine(transport Transport, cfg config.Bitswap) *Engine {
	return &Engine{
		entries:         make(map[string]*entry),
		peers:           make(map[peer.ID]struct{}),
		transport:       transport,
		maxSendDuration: cfg.MaxSendDuration,
		resendDuration:  cfg.ResendDuration,
	}
}

// OnDeliver registers the callback invoked with every block accepted
// via HandleWantResponse (typically a blockstore.Put).
func (e *Engine) OnDeliver(fn func(cid model.Cid, block []byte)) { e.onDeliver = fn }

// OnPromiseBroken registers the callback invoked when a Coming promise
// times out, naming the peer that failed to deliver in time.
func (e *Engine) OnPromiseBroken(fn func(p peer.ID)) { e.onPromiseBroken = fn }

// OnWantCleanup registers the callback invoked when a Want has gone
// unanswered long enough that the caller may decide to drop it.
func (e *Engine) OnWantCleanup(fn func(cid model.Cid)) { e.onWantCleanup = fn }

// AddPeer registers a newly connected peer and immediately sends it
// the full current want-list as a HaveQuery (spec §4.4 new-peer
// behaviour).
func (e *Engine) AddPeer(ctx context.Context, p peer.ID) error {
	e.mu.Lock()
	e.peers[p] = struct{}{}
	cids := e.allWantedLocked()
	e.mu.Unlock()

	if len(cids) == 0 {
		return nil
	}
	return e.transport.SendHave(ctx, p, HaveQuery{Cids: cids})
}

// RemovePeer handles a peer disconnecting: any CID we were Coming
// from p reverts to Want and HaveQuery is re-broadcast; no Cancel is
// sent to the disconnected peer (spec §4.4).
func (e *Engine) RemovePeer(ctx context.Context, p peer.ID) error {
	e.mu.Lock()
	delete(e.peers, p)
	var reverted []model.Cid
	now := time.Now()
	for _, en := range e.entries {
		if en.state == stateComing && en.from == p {
			en.state = stateWant
			en.since = now
			reverted = append(reverted, en.cid)
		}
	}
	peers := e.peersLocked()
	e.mu.Unlock()

	if len(reverted) == 0 {
		return nil
	}
	return e.broadcastHave(ctx, peers, reverted)
}

// Want adds cids to the want set (a no-op for CIDs already tracked)
// and broadcasts a HaveQuery for the newly added ones to every known
// peer.
func (e *Engine) Want(ctx context.Context, cids []model.Cid, now time.Time) error {
	e.mu.Lock()
	var fresh []model.Cid
	for _, c := range cids {
		key := c.String()
		if _, ok := e.entries[key]; ok {
			continue
		}
		e.entries[key] = &entry{cid: c, state: stateWant, since: now}
		fresh = append(fresh, c)
	}
	peers := e.peersLocked()
	e.mu.Unlock()

	if len(fresh) == 0 {
		return nil
	}
	return e.broadcastHave(ctx, peers, fresh)
}

// HandleHaveResponse applies one peer's answer to a prior HaveQuery.
// The first true answer for a still-Want CID transitions it to Coming
// and sends that peer a WantQuery; a false answer, or an answer for a
// CID that is already Coming or no longer wanted, is a no-op.
func (e *Engine) HandleHaveResponse(ctx context.Context, p peer.ID, resp HaveResponse) error {
	var toAsk []model.Cid
	now := time.Now()

	e.mu.Lock()
	for _, he := range resp.Entries {
		if !he.Have {
			continue
		}
		en, ok := e.entries[he.Cid.String()]
		if !ok || en.state != stateWant {
			continue
		}
		en.state = stateComing
		en.from = p
		en.since = now
		toAsk = append(toAsk, he.Cid)
	}
	e.mu.Unlock()

	if len(toAsk) == 0 {
		return nil
	}
	return e.transport.SendWant(ctx, p, WantQuery{Cids: toAsk})
}

// HandleWantResponse accepts delivered blocks. A CID still tracked
// (Want or Coming, from any peer; an unsolicited delivery is accepted
// too) is removed from the want set and the block is handed to the
// OnDeliver hook. If it was Coming from a different peer than the
// deliverer, that peer receives a Cancel. A CID no longer tracked is a
// duplicate and is discarded.
func (e *Engine) HandleWantResponse(ctx context.Context, p peer.ID, resp WantResponse) error {
	type cancelTo struct {
		peer peer.ID
		cid  model.Cid
	}
	var cancels []cancelTo
	var delivered []BlockEntry

	e.mu.Lock()
	for _, be := range resp.Blocks {
		key := be.Cid.String()
		en, ok := e.entries[key]
		if !ok {
			continue // already delivered by someone else; duplicate
		}
		if en.state == stateComing && en.from != p {
			cancels = append(cancels, cancelTo{peer: en.from, cid: be.Cid})
		}
		delete(e.entries, key)
		delivered = append(delivered, be)
	}
	e.mu.Unlock()

	for _, be := range delivered {
		if e.onDeliver != nil {
			e.onDeliver(be.Cid, be.Block)
		}
	}
	for _, c := range cancels {
		if err := e.transport.SendCancel(ctx, c.peer, Cancel{Cids: []model.Cid{c.cid}}); err != nil {
			return err
		}
	}
	return nil
}

// HandleHaveQuery answers a peer's HaveQuery with the blocks we
// actually hold, per have (a thin wrapper: callers supply a predicate
// since only the blockstore knows what's present).
func (e *Engine) HandleHaveQuery(ctx context.Context, p peer.ID, q HaveQuery, have func(model.Cid) bool) error {
	entries := make([]HaveEntry, len(q.Cids))
	for i, c := range q.Cids {
		entries[i] = HaveEntry{Cid: c, Have: have(c)}
	}
	return e.transport.SendHaveResponse(ctx, p, HaveResponse{Entries: entries})
}

// HandleWantQuery answers a peer's WantQuery with whichever requested
// blocks we actually hold, via get (only the blockstore knows what's
// present); CIDs it doesn't have are silently omitted.
func (e *Engine) HandleWantQuery(ctx context.Context, p peer.ID, q WantQuery, get func(model.Cid) ([]byte, bool)) error {
	var entries []BlockEntry
	for _, c := range q.Cids {
		if block, ok := get(c); ok {
			entries = append(entries, BlockEntry{Cid: c, Block: block})
		}
	}
	if len(entries) == 0 {
		return nil
	}
	return e.transport.SendWantResponse(ctx, p, WantResponse{Blocks: entries})
}

// Janitor reverts stale Coming promises and re-broadcasts HAVE for
// stale Wants (spec §4.4: MAX_SEND_DURATION 30s / RESEND_DURATION
// 120s). Registered with the housekeeper; returns the delay until it
// should run again.
func (e *Engine) Janitor(ctx context.Context) time.Duration {
	now := time.Now()
	var brokenPromises []peer.ID
	var revertedCids []model.Cid
	var resendCids []model.Cid
	var cleanedUp []model.Cid

	e.mu.Lock()
	for _, en := range e.entries {
		switch en.state {
		case stateComing:
			if now.Sub(en.since) > e.maxSendDuration {
				brokenPromises = append(brokenPromises, en.from)
				en.state = stateWant
				en.since = now
				revertedCids = append(revertedCids, en.cid)
			}
		case stateWant:
			if now.Sub(en.since) > e.resendDuration {
				en.since = now
				resendCids = append(resendCids, en.cid)
				cleanedUp = append(cleanedUp, en.cid)
			}
		}
	}
	peers := e.peersLocked()
	e.mu.Unlock()

	for _, p := range brokenPromises {
		if e.onPromiseBroken != nil {
			e.onPromiseBroken(p)
		}
	}
	toRebroadcast := append(append([]model.Cid(nil), revertedCids...), resendCids...)
	if len(toRebroadcast) > 0 {
		_ = e.broadcastHave(ctx, peers, toRebroadcast)
	}
	for _, c := range cleanedUp {
		if e.onWantCleanup != nil {
			e.onWantCleanup(c)
		}
	}

	return minDuration(e.maxSendDuration, e.resendDuration)
}

func (e *Engine) allWantedLocked() []model.Cid {
	out := make([]model.Cid, 0, len(e.entries))
	for _, en := range e.entries {
		out = append(out, en.cid)
	}
	return out
}

func (e *Engine) peersLocked() []peer.ID {
	out := make([]peer.ID, 0, len(e.peers))
	for p := range e.peers {
		out = append(out, p)
	}
	return out
}

func (e *Engine) broadcastHave(ctx context.Context, peers []peer.ID, cids []model.Cid) error {
	for _, p := range peers {
		if err := e.transport.SendHave(ctx, p, HaveQuery{Cids: cids}); err != nil {
			return err
		}
	}
	return nil
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
