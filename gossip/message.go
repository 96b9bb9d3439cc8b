// Package gossip implements the root-propagation protocol: RootUpdate
// fast/slow path, periodic RootMap digests, a priority-ordered ingest
// queue per remote stream, and Lamport propagation into the local
// persistent counter (spec §4.2).
/*
 * Grounded on transport/bundle/stream_bundle.go's per-peer stream
 * multiplexing (here: one logical topic fanned out to every connected
 * peer) and cmn/cos/err.go's typed-error idiom for message validation.
 */
package gossip

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/banyanmesh/core/model"
)

// RootUpdate announces a single stream's new root, immediately after
// an append or compaction changes it.
type RootUpdate struct {
	Stream  model.StreamId         `cbor:"stream"`
	Root    model.Cid              `cbor:"root"`
	Blocks  [][]byte               `cbor:"blocks"` // fast path: inline delta blocks; empty means slow path
	Lamport model.LamportTimestamp `cbor:"lamport"`
	Time    model.Timestamp        `cbor:"time"`
	Offset  *model.Offset          `cbor:"offset,omitempty"`
}

// IsFastPath reports whether this update carries its delta blocks
// inline, letting a receiver apply it without fetching.
func (r RootUpdate) IsFastPath() bool { return len(r.Blocks) > 0 }

// RootMapEntry is one stream's offset/lamport pair inside a RootMap
// digest.
type RootMapEntry struct {
	Offset  model.Offset           `cbor:"offset"`
	Lamport model.LamportTimestamp `cbor:"lamport"`
}

// RootMap is a periodic full digest of one node's view of every
// stream it knows about; it also serves as the bootstrap channel.
type RootMap struct {
	Entries map[model.StreamId]model.Cid `cbor:"entries"`
	Offsets map[model.StreamId]RootMapEntry `cbor:"offsets"`
	Lamport model.LamportTimestamp        `cbor:"lamport"`
	Time    model.Timestamp              `cbor:"time"`
}

// Message is the outer single-key wrapper object ({"RootUpdate": ...}
// or {"RootMap": ...}); unknown fields on either payload are ignored
// on decode (forward compatible, spec §4.2).
type Message struct {
	RootUpdate *RootUpdate
	RootMap    *RootMap
}

type wireMessage struct {
	RootUpdate *RootUpdate `cbor:"RootUpdate,omitempty"`
	RootMap    *RootMap    `cbor:"RootMap,omitempty"`
}

func canonicalMode() (cbor.EncMode, error) {
	return cbor.CanonicalEncOptions().EncMode()
}

// Encode marshals m as canonical CBOR, carrying exactly one of
// RootUpdate/RootMap (the caller must set exactly one).
func Encode(m Message) ([]byte, error) {
	mode, err := canonicalMode()
	if err != nil {
		return nil, err
	}
	return mode.Marshal(wireMessage{RootUpdate: m.RootUpdate, RootMap: m.RootMap})
}

// Decode unmarshals a wire message. Unknown top-level keys and unknown
// fields inside either payload are silently ignored (cbor's default
// struct-decode behavior), matching spec.md's forward-compatibility
// rule.
func Decode(data []byte) (Message, error) {
	var w wireMessage
	if err := cbor.Unmarshal(data, &w); err != nil {
		return Message{}, err
	}
	return Message{RootUpdate: w.RootUpdate, RootMap: w.RootMap}, nil
}
