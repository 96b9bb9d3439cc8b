// Package model holds the mesh's primitive identifiers and the Event
// type built from them: NodeId, StreamId, LamportTimestamp, Offset,
// EventKey, Tag/TagSet/AppId, Payload, and Cid.
/*
 * Adapted in spirit from the aistore cmn/objattrs.go value-object idiom
 * (plain structs, debug.Assert'd invariants, String()/Equal() methods) —
 * generalized from object metadata to event-sourcing identifiers.
 */
package model

import (
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/blake2b"

	"github.com/banyanmesh/core/cmn/debug"
)

// NodeIdLen is the byte length of a NodeId.
const NodeIdLen = 32

// NodeId is an opaque node identity, derived as the blake2b-256 hash of
// the node's Ed25519 public key.
type NodeId [NodeIdLen]byte

var ErrBadNodeId = errors.New("model: malformed node id")

// DeriveNodeId hashes an Ed25519 public key into a NodeId.
func DeriveNodeId(pubKey []byte) NodeId {
	sum := blake2b.Sum256(pubKey)
	var id NodeId
	copy(id[:], sum[:])
	return id
}

func (n NodeId) String() string { return hex.EncodeToString(n[:]) }

func (n NodeId) IsZero() bool { return n == NodeId{} }

// Less gives NodeId a total order, used to order StreamId.
func (n NodeId) Less(o NodeId) bool {
	for i := range n {
		if n[i] != o[i] {
			return n[i] < o[i]
		}
	}
	return false
}

// ParseNodeId decodes a hex-encoded NodeId.
func ParseNodeId(s string) (NodeId, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != NodeIdLen {
		return NodeId{}, ErrBadNodeId
	}
	var id NodeId
	copy(id[:], b)
	return id, nil
}

// MustParseNodeId panics on malformed input; for tests and constant-like
// call sites only.
func MustParseNodeId(s string) NodeId {
	id, err := ParseNodeId(s)
	debug.AssertNoErr(err)
	return id
}
