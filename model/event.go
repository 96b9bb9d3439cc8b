package model

// EventMeta carries an event's tags, wall-clock timestamp, and
// publishing app id.
type EventMeta struct {
	Tags      TagSet    `cbor:"tags"`
	Timestamp Timestamp `cbor:"timestamp"`
	AppId     AppId     `cbor:"app_id"`
}

// Event is an immutable, once-written unit of the log.
type Event struct {
	Key     EventKey  `cbor:"key"`
	Meta    EventMeta `cbor:"meta"`
	Payload Payload   `cbor:"payload"`
}

// AxKey is the packed per-event key stored in a Banyan leaf: tags,
// lamport, offset, and timestamp, separate from the payload (spec
// §3). Offset is carried explicitly rather than reconstructed from a
// leaf's position in the tree, since retention pruning can discard
// leading leaves and leave the survivors' offsets non-contiguous from
// zero.
type AxKey struct {
	Tags      TagSet
	Lamport   LamportTimestamp
	Offset    Offset
	Timestamp Timestamp
}

func (e Event) AxKey() AxKey {
	return AxKey{Tags: e.Meta.Tags, Lamport: e.Key.Lamport, Offset: e.Key.Offset, Timestamp: e.Meta.Timestamp}
}
