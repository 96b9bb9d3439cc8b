// Package discovery implements the peer-discovery state machine: a
// provenance-ordered view of {PeerId -> {Multiaddr -> (ConnectionState,
// Provenance, LastSeen)}}, independent of any DHT, driving dial
// decisions (spec §4.3).
/*
 * Grounded on reb/status.go's per-entity state tracking under a lock
 * plus the teacher's broader habit of expressing "what should happen
 * next" as small result structs returned from mutating methods, rather
 * than invoking side-effecting callbacks from inside the lock.
 */
package discovery

import (
	"time"

	"github.com/multiformats/go-multiaddr"
	peer "github.com/libp2p/go-libp2p/core/peer"
)

// ConnectionState is whether we currently hold an open connection to
// a peer's address.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connected
)

// Provenance ranks how an address was learned; higher overrides lower
// and an address can only ever gain provenance (spec §4.3:
// "Swarm < MDNS < Discovery < Bootstrap").
type Provenance int

const (
	ProvenanceSwarm Provenance = iota
	ProvenanceMDNS
	ProvenanceDiscovery
	ProvenanceBootstrap
)

// AddressState is what the table tracks per (peer, address) pair.
type AddressState struct {
	Conn       ConnectionState
	Provenance Provenance
	LastSeen   time.Time
}

type peerEntry struct {
	addrs map[string]*AddressState // keyed by multiaddr.String()
}

// Action is something the caller should do as a result of a state
// transition: dial a specific address, or dial any address of a peer.
type Action struct {
	DialAddress multiaddr.Multiaddr // set for a DialAddress action
	DialPeer    peer.ID             // set (non-empty) for a DialPeer action
}

// Table is the peer-discovery state machine.
type Table struct {
	self  peer.ID
	peers map[peer.ID]*peerEntry
}

func New(self peer.ID) *Table {
	return &Table{self: self, peers: make(map[peer.ID]*peerEntry)}
}

func (t *Table) entry(p peer.ID) *peerEntry {
	e, ok := t.peers[p]
	if !ok {
		e = &peerEntry{addrs: make(map[string]*AddressState)}
		t.peers[p] = e
	}
	return e
}

// Observe records addr for p at provenance prov, raising the address's
// provenance if prov is higher than what's recorded (never lowering
// it), and refreshing LastSeen. It returns the dial Actions this
// observation implies (spec §4.3 dial policy).
func (t *Table) Observe(p peer.ID, addr multiaddr.Multiaddr, prov Provenance, now time.Time) []Action {
	if p == t.self {
		return nil // self-filtering
	}
	e := t.entry(p)
	disconnected := t.connectionState(p) == Disconnected
	key := addr.String()
	state, existed := e.addrs[key]
	if !existed {
		state = &AddressState{Conn: Disconnected, Provenance: prov, LastSeen: now}
		e.addrs[key] = state
	} else {
		if prov > state.Provenance {
			state.Provenance = prov
		}
		state.LastSeen = now
	}

	var actions []Action
	if !existed && disconnected {
		actions = append(actions, Action{DialAddress: addr})
	}
	if prov == ProvenanceBootstrap {
		actions = append(actions, Action{DialPeer: p})
	}
	return actions
}

// ObserveNodeInfo applies a NodeInfo gossip update: every address in
// addrs not already known for p is recorded at ProvenanceDiscovery,
// and if p is currently disconnected, a DialAddress action is emitted
// for each newly learned address (spec §4.3).
func (t *Table) ObserveNodeInfo(p peer.ID, addrs []multiaddr.Multiaddr, now time.Time) []Action {
	if p == t.self {
		return nil
	}
	e := t.entry(p)
	disconnected := t.connectionState(p) == Disconnected

	var actions []Action
	for _, addr := range addrs {
		key := addr.String()
		if _, known := e.addrs[key]; known {
			e.addrs[key].LastSeen = now
			continue
		}
		e.addrs[key] = &AddressState{Conn: Disconnected, Provenance: ProvenanceDiscovery, LastSeen: now}
		if disconnected {
			actions = append(actions, Action{DialAddress: addr})
		}
	}
	return actions
}

// SetConnectionState records the connection state of one specific
// address of p (a connection is always made over a specific address).
func (t *Table) SetConnectionState(p peer.ID, addr multiaddr.Multiaddr, state ConnectionState, now time.Time) {
	if p == t.self {
		return
	}
	e := t.entry(p)
	key := addr.String()
	s, ok := e.addrs[key]
	if !ok {
		s = &AddressState{Provenance: ProvenanceSwarm}
		e.addrs[key] = s
	}
	s.Conn = state
	s.LastSeen = now
}

// connectionState reports Connected if any address of p is connected.
func (t *Table) connectionState(p peer.ID) ConnectionState {
	e, ok := t.peers[p]
	if !ok {
		return Disconnected
	}
	for _, s := range e.addrs {
		if s.Conn == Connected {
			return Connected
		}
	}
	return Disconnected
}

// Addresses returns a snapshot of p's known addresses.
func (t *Table) Addresses(p peer.ID) map[string]AddressState {
	e, ok := t.peers[p]
	if !ok {
		return nil
	}
	out := make(map[string]AddressState, len(e.addrs))
	for k, v := range e.addrs {
		out[k] = *v
	}
	return out
}

// KnownPeers returns every peer currently tracked.
func (t *Table) KnownPeers() []peer.ID {
	out := make([]peer.ID, 0, len(t.peers))
	for p := range t.peers {
		out = append(out, p)
	}
	return out
}

// GC removes addresses that have been Disconnected for longer than
// pruneAfter and whose provenance is not Bootstrap; peers whose
// address set becomes empty are dropped entirely (spec §4.3 GC
// policy, run every JANITOR_PERIOD by the caller).
func (t *Table) GC(pruneAfter time.Duration, now time.Time) {
	for p, e := range t.peers {
		for key, s := range e.addrs {
			if s.Conn == Disconnected && s.Provenance != ProvenanceBootstrap && now.Sub(s.LastSeen) > pruneAfter {
				delete(e.addrs, key)
			}
		}
		if len(e.addrs) == 0 {
			delete(t.peers, p)
		}
	}
}

// JanitorDialActions returns a DialPeer action for every currently
// disconnected known peer (spec §4.3: "every janitor tick -> DialPeer
// for all disconnected known peers").
func (t *Table) JanitorDialActions() []Action {
	var actions []Action
	for p := range t.peers {
		if t.connectionState(p) == Disconnected {
			actions = append(actions, Action{DialPeer: p})
		}
	}
	return actions
}
