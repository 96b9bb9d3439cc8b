// Package bitswap implements the block-wants protocol: per-CID want
// state, HAVE/WANT/CANCEL messaging, promise-timeout janitoring, and
// new-peer/disconnect/race handling (spec §4.4).
/*
 * Grounded on reb/ec.go's want/response/timeout bookkeeping for
 * in-flight content-transfer requests, generalized from EC chunk
 * rebuild to arbitrary block CIDs, and the transport package's
 * connection-oriented message-framing idiom.
 */
package bitswap

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/banyanmesh/core/model"
)

// HaveQuery asks the receiving peer whether it has each listed CID.
type HaveQuery struct {
	Cids []model.Cid `cbor:"cids"`
}

// HaveEntry is one CID's answer inside a HaveResponse.
type HaveEntry struct {
	Cid  model.Cid `cbor:"cid"`
	Have bool      `cbor:"have"`
}

// HaveResponse answers a HaveQuery.
type HaveResponse struct {
	Entries []HaveEntry `cbor:"entries"`
}

// WantQuery asks the receiving peer to send the block for each CID.
type WantQuery struct {
	Cids []model.Cid `cbor:"cids"`
}

// BlockEntry is one delivered block inside a WantResponse.
type BlockEntry struct {
	Cid   model.Cid `cbor:"cid"`
	Block []byte    `cbor:"block"`
}

// WantResponse delivers blocks previously asked for via WantQuery.
type WantResponse struct {
	Blocks []BlockEntry `cbor:"blocks"`
}

// Cancel retracts a prior WantQuery for each listed CID.
type Cancel struct {
	Cids []model.Cid `cbor:"cids"`
}

// Message is the single-key wire wrapper for this protocol's five
// message kinds, mirroring gossip's and discovery's envelope.
type Message struct {
	HaveQuery    *HaveQuery
	HaveResponse *HaveResponse
	WantQuery    *WantQuery
	WantResponse *WantResponse
	Cancel       *Cancel
}

type wireMessage struct {
	HaveQuery    *HaveQuery    `cbor:"HaveQuery,omitempty"`
	HaveResponse *HaveResponse `cbor:"HaveResponse,omitempty"`
	WantQuery    *WantQuery    `cbor:"WantQuery,omitempty"`
	WantResponse *WantResponse `cbor:"WantResponse,omitempty"`
	Cancel       *Cancel       `cbor:"Cancel,omitempty"`
}

func Encode(m Message) ([]byte, error) {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	return mode.Marshal(wireMessage{
		HaveQuery:    m.HaveQuery,
		HaveResponse: m.HaveResponse,
		WantQuery:    m.WantQuery,
		WantResponse: m.WantResponse,
		Cancel:       m.Cancel,
	})
}

func Decode(data []byte) (Message, error) {
	var w wireMessage
	if err := cbor.Unmarshal(data, &w); err != nil {
		return Message{}, err
	}
	return Message{
		HaveQuery:    w.HaveQuery,
		HaveResponse: w.HaveResponse,
		WantQuery:    w.WantQuery,
		WantResponse: w.WantResponse,
		Cancel:       w.Cancel,
	}, nil
}
