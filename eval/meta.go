package eval

import "github.com/banyanmesh/core/model"

// MetaKind discriminates a Value's provenance (spec §4.6): a value
// either came from nowhere in particular (Synthetic), from exactly
// one stored event (Event), or is derived from a span of events
// (Range).
type MetaKind int

const (
	MetaSynthetic MetaKind = iota
	MetaEvent
	MetaRange
)

// Meta is attached to every Value; KEY/TIME/TAGS/APP read it off the
// current value rather than off a separate evaluation context, so a
// derived value (e.g. a LET binding, or one side of a binop) still
// answers them meaningfully.
type Meta struct {
	Kind MetaKind

	// Event
	Key      model.EventKey
	EventRec model.EventMeta

	// Range
	FromKey  model.EventKey
	ToKey    model.EventKey
	FromTime model.Timestamp
	ToTime   model.Timestamp
}

func Synthetic() Meta { return Meta{Kind: MetaSynthetic} }

func OfEvent(key model.EventKey, rec model.EventMeta) Meta {
	return Meta{Kind: MetaEvent, Key: key, EventRec: rec}
}

func rangeOf(fromKey, toKey model.EventKey, fromTime, toTime model.Timestamp) Meta {
	return Meta{Kind: MetaRange, FromKey: fromKey, ToKey: toKey, FromTime: fromTime, ToTime: toTime}
}

// bounds reports the key/time span a Meta covers, collapsing a single
// Event to a zero-width range at its own key/time.
func (m Meta) bounds() (fromKey, toKey model.EventKey, fromTime, toTime model.Timestamp, ok bool) {
	switch m.Kind {
	case MetaEvent:
		return m.Key, m.Key, m.EventRec.Timestamp, m.EventRec.Timestamp, true
	case MetaRange:
		return m.FromKey, m.ToKey, m.FromTime, m.ToTime, true
	default:
		return model.EventKey{}, model.EventKey{}, 0, 0, false
	}
}

// unionMeta combines two operands' Metas across a binop (spec §4.6:
// "Meta propagates via binop union"): Synthetic is the identity, a
// shared single event stays an Event, and anything wider becomes the
// spanning Range.
func unionMeta(a, b Meta) Meta {
	if a.Kind == MetaSynthetic {
		return b
	}
	if b.Kind == MetaSynthetic {
		return a
	}
	if a.Kind == MetaEvent && b.Kind == MetaEvent && a.Key.Equal(b.Key) {
		return a
	}
	aFromKey, aToKey, aFromTime, aToTime, _ := a.bounds()
	bFromKey, bToKey, bFromTime, bToTime, _ := b.bounds()

	fromKey, fromTime := aFromKey, aFromTime
	if bFromKey.Less(fromKey) {
		fromKey, fromTime = bFromKey, bFromTime
	}
	toKey, toTime := aToKey, aToTime
	if toKey.Less(bToKey) {
		toKey, toTime = bToKey, bToTime
	}
	return rangeOf(fromKey, toKey, fromTime, toTime)
}
