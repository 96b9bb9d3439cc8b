package banyan

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/banyanmesh/core/model"
)

// Leaf holds a packed, sealed sequence of event keys plus separately
// packed payloads (spec §3): "Leaf holds a packed sequence of AxKey
// ... plus separately packed payloads; summaries computed per leaf."
type Leaf struct {
	Keys     []model.AxKey `cbor:"keys"`
	Payloads []model.Payload `cbor:"payloads"`
}

func (l *Leaf) summary() Summary { return summaryOfKeys(l.Keys) }

func (l *Leaf) byteSize() int64 {
	var n int64
	for _, p := range l.Payloads {
		n += int64(p.Len())
	}
	return n
}

// Branch holds a packed sequence of child summaries and the matching
// child-link CIDs (spec §3), plus each child's event count so offset
// lookups can skip whole children without fetching them.
type Branch struct {
	ChildSummaries []Summary    `cbor:"child_summaries"`
	ChildCids      []model.Cid  `cbor:"child_cids"`
	ChildCounts    []int64      `cbor:"child_counts"`
}

func (b *Branch) summary() Summary {
	s := Summary{}
	for _, cs := range b.ChildSummaries {
		s = Merge(s, cs)
	}
	return s
}

// node codec: a one-byte tag distinguishes Leaf from Branch when the
// block is loaded back from the store.
const (
	tagLeaf   byte = 0
	tagBranch byte = 1
)

func encodeLeaf(l *Leaf) ([]byte, error) {
	body, err := marshalCanonical(l)
	if err != nil {
		return nil, err
	}
	return append([]byte{tagLeaf}, body...), nil
}

func encodeBranch(b *Branch) ([]byte, error) {
	body, err := marshalCanonical(b)
	if err != nil {
		return nil, err
	}
	return append([]byte{tagBranch}, body...), nil
}

func marshalCanonical(v any) ([]byte, error) {
	opts, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	return opts.Marshal(v)
}

// decodeNode returns either a *Leaf or a *Branch, decoded from a raw
// block previously written by encodeLeaf/encodeBranch.
func decodeNode(block []byte) (any, error) {
	if len(block) == 0 {
		return nil, fmt.Errorf("banyan: empty block")
	}
	switch block[0] {
	case tagLeaf:
		var l Leaf
		if err := cbor.Unmarshal(block[1:], &l); err != nil {
			return nil, err
		}
		return &l, nil
	case tagBranch:
		var b Branch
		if err := cbor.Unmarshal(block[1:], &b); err != nil {
			return nil, err
		}
		return &b, nil
	default:
		return nil, fmt.Errorf("banyan: unknown node tag %d", block[0])
	}
}
