package model

import (
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Payload is an opaque canonical-CBOR blob: the event's application
// data, already encoded by the caller or produced by MarshalPayload below.
type Payload []byte

var (
	encMode cbor.EncMode
	encOnce sync.Once
)

func canonicalEncMode() cbor.EncMode {
	encOnce.Do(func() {
		m, err := cbor.CanonicalEncOptions().EncMode()
		if err != nil {
			panic(err) // fixed option set, cannot fail
		}
		encMode = m
	})
	return encMode
}

// MarshalPayload canonically CBOR-encodes v into a Payload.
func MarshalPayload(v any) (Payload, error) {
	b, err := canonicalEncMode().Marshal(v)
	if err != nil {
		return nil, err
	}
	return Payload(b), nil
}

// Unmarshal decodes the payload into v.
func (p Payload) Unmarshal(v any) error {
	return cbor.Unmarshal(p, v)
}

func (p Payload) Bytes() []byte { return []byte(p) }

func (p Payload) Len() int { return len(p) }
