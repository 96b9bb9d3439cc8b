package gossip

import (
	"sync"
	"time"

	peer "github.com/libp2p/go-libp2p/core/peer"

	"github.com/banyanmesh/core/model"
)

// Priority orders the sources a candidate root can arrive from:
// FastPath always wins (it carries blocks inline), SlowPath is
// delayed to let a competing FastPath overtake, RootMap is the
// fallback used for reconciliation and bootstrap.
type Priority int

const (
	PriorityRootMap Priority = iota
	PrioritySlowPath
	PriorityFastPath
)

// DefaultSlowPathDelay is how long a SlowPath candidate waits before
// the sync driver may act on it, giving a same-update FastPath time
// to overtake (spec §4.2, config.Gossip.SlowPathDelay default).
const DefaultSlowPathDelay = 100 * time.Millisecond

// RootSource names where a pending root candidate came from.
type RootSource struct {
	SenderPeer peer.ID
	Priority   Priority
}

type pendingRoot struct {
	cid     model.Cid
	source  RootSource
	readyAt time.Time
}

// Engine tracks, per remote stream, the single highest-priority
// pending root candidate, and the priority-queue replacement rule
// from spec §4.2.
type Engine struct {
	mu            sync.Mutex
	pending       map[model.StreamId]pendingRoot
	slowPathDelay time.Duration
}

// NewEngine builds an Engine using DefaultSlowPathDelay; callers
// wanting the configured delay should use NewEngineWithDelay(cfg).
func NewEngine() *Engine {
	return NewEngineWithDelay(DefaultSlowPathDelay)
}

func NewEngineWithDelay(slowPathDelay time.Duration) *Engine {
	return &Engine{pending: make(map[model.StreamId]pendingRoot), slowPathDelay: slowPathDelay}
}

// Ingest offers a new candidate root for stream. It replaces the
// current pending candidate if source.Priority is greater than or
// equal to the pending one's priority (the newest arrival wins ties);
// a strictly lower priority is dropped. Reports whether it replaced
// the pending entry.
func (e *Engine) Ingest(stream model.StreamId, cid model.Cid, source RootSource, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur, ok := e.pending[stream]
	if ok && source.Priority < cur.source.Priority {
		return false
	}
	readyAt := now
	if source.Priority == PrioritySlowPath {
		readyAt = now.Add(e.slowPathDelay)
	}
	e.pending[stream] = pendingRoot{cid: cid, source: source, readyAt: readyAt}
	return true
}

// DueRoot is one pending candidate whose delay has elapsed, ready for
// the sync driver to act on.
type DueRoot struct {
	Stream model.StreamId
	Cid    model.Cid
	Source RootSource
}

// Due drains and returns every pending candidate whose delay has
// elapsed as of now, removing them from the pending set; the sync
// driver is expected to act on each.
func (e *Engine) Due(now time.Time) []DueRoot {
	e.mu.Lock()
	defer e.mu.Unlock()

	var due []DueRoot
	for stream, p := range e.pending {
		if !p.readyAt.After(now) {
			due = append(due, DueRoot{Stream: stream, Cid: p.cid, Source: p.source})
			delete(e.pending, stream)
		}
	}
	return due
}

// Peek reports the currently pending candidate for stream, if any,
// without draining it.
func (e *Engine) Peek(stream model.StreamId) (model.Cid, RootSource, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.pending[stream]
	if !ok {
		return model.Cid{}, RootSource{}, false
	}
	return p.cid, p.source, true
}

// ReconcileRootMap ingests, at RootMap priority, every entry whose
// root differs from what localRoots reports for that stream (spec
// §4.2: "each entry not equal to the locally-known root triggers an
// update_root at priority RootMap").
func (e *Engine) ReconcileRootMap(rm RootMap, source RootSource, localRoots func(model.StreamId) (model.Cid, bool), now time.Time) {
	source.Priority = PriorityRootMap
	for stream, cid := range rm.Entries {
		if local, ok := localRoots(stream); ok && local.Equal(cid) {
			continue
		}
		e.Ingest(stream, cid, source, now)
	}
}
