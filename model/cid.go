package model

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	ipfscid "github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// DagCBORCodec is the only multicodec this mesh ever mints tree-node
// CIDs under (spec §3: "dag-cbor codec is mandatory for tree nodes").
const DagCBORCodec = ipfscid.DagCBOR

// Cid is the mesh's content-id: a multihash plus codec, wrapping
// ipfs/go-cid's Cid.
type Cid struct {
	c ipfscid.Cid
}

var Undef = Cid{c: ipfscid.Undef}

// CidFromBlock hashes block and mints a dag-cbor CIDv1 for it.
func CidFromBlock(block []byte) (Cid, error) {
	sum, err := mh.Sum(block, mh.SHA2_256, -1)
	if err != nil {
		return Cid{}, err
	}
	return Cid{c: ipfscid.NewCidV1(uint64(DagCBORCodec), sum)}, nil
}

func CidFromBytes(b []byte) (Cid, error) {
	c, err := ipfscid.Cast(b)
	if err != nil {
		return Cid{}, err
	}
	return Cid{c: c}, nil
}

func ParseCid(s string) (Cid, error) {
	c, err := ipfscid.Decode(s)
	if err != nil {
		return Cid{}, err
	}
	return Cid{c: c}, nil
}

func (c Cid) IsDefined() bool { return c.c.Defined() }

func (c Cid) Bytes() []byte { return c.c.Bytes() }

func (c Cid) String() string { return c.c.String() }

func (c Cid) Equal(o Cid) bool { return c.c.Equals(o.c) }

func (c Cid) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Cid) UnmarshalText(text []byte) error {
	parsed, err := ParseCid(string(text))
	if err != nil {
		return fmt.Errorf("model: bad cid %q: %w", text, err)
	}
	*c = parsed
	return nil
}

// MarshalCBOR/UnmarshalCBOR make Cid usable directly as a CBOR byte
// string field (the gossip wire types carry CIDs this way, spec §4.2).
func (c Cid) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(c.c.Bytes())
}

func (c *Cid) UnmarshalCBOR(data []byte) error {
	var b []byte
	if err := cbor.Unmarshal(data, &b); err != nil {
		return err
	}
	parsed, err := CidFromBytes(b)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
