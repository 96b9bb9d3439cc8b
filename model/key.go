package model

// EventKey totally orders events: Lamport first, stream second, offset
// third.
type EventKey struct {
	Lamport LamportTimestamp
	Stream  StreamId
	Offset  Offset
}

// Less implements the event total order (spec's EventKey ordering).
func (k EventKey) Less(o EventKey) bool {
	if k.Lamport != o.Lamport {
		return k.Lamport < o.Lamport
	}
	if !k.Stream.Equal(o.Stream) {
		return k.Stream.Less(o.Stream)
	}
	return k.Offset < o.Offset
}

func (k EventKey) Equal(o EventKey) bool {
	return k.Lamport == o.Lamport && k.Stream.Equal(o.Stream) && k.Offset == o.Offset
}

// Compare returns -1, 0, or 1, for use with sort.Slice-free callers (the
// Banyan in-order iterators and the query merger's heap).
func (k EventKey) Compare(o EventKey) int {
	switch {
	case k.Equal(o):
		return 0
	case k.Less(o):
		return -1
	default:
		return 1
	}
}
