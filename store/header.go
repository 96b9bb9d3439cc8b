package store

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/banyanmesh/core/model"
)

// TreeHeader wraps a published tree snapshot, separating the root from
// its lamport watermark so a sync driver can skip old headers without
// inspecting the tree itself (spec §4.1).
type TreeHeader struct {
	Root       model.Cid              `cbor:"root"`
	Lamport    model.LamportTimestamp `cbor:"lamport"`
	NextOffset int64                  `cbor:"next_offset"`
}

func encodeHeader(h TreeHeader) ([]byte, error) {
	opts, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	return opts.Marshal(h)
}

func decodeHeader(b []byte) (TreeHeader, error) {
	var h TreeHeader
	err := cbor.Unmarshal(b, &h)
	return h, err
}

func aliasName(stream model.StreamId) string { return "stream-" + stream.String() }
