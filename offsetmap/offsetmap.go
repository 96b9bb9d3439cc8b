// Package offsetmap implements OffsetMap: a mapping StreamId -> Offset
// meaning "contains every event with offset <= value for that stream."
/*
 * Adapted from the aistore cmn/cos/fs.go custom JSON marshaling idiom
 * (a value type with its own compact MarshalJSON/UnmarshalJSON over
 * jsoniter, rather than relying on the struct tag default).
 */
package offsetmap

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/banyanmesh/core/model"
)

// OffsetMap maps a StreamId to the highest Offset known present for it.
// A stream absent from the map is equivalent to MinOffset.
type OffsetMap struct {
	m map[model.StreamId]model.OffsetOrMin
}

func New() *OffsetMap { return &OffsetMap{m: make(map[model.StreamId]model.OffsetOrMin)} }

// Get returns the stream's offset, or MinOffset if absent.
func (o *OffsetMap) Get(s model.StreamId) model.OffsetOrMin {
	if o == nil {
		return model.MinOffset
	}
	if v, ok := o.m[s]; ok {
		return v
	}
	return model.MinOffset
}

// Set records offset as the highest known-present offset for s.
func (o *OffsetMap) Set(s model.StreamId, off model.OffsetOrMin) {
	if o.m == nil {
		o.m = make(map[model.StreamId]model.OffsetOrMin)
	}
	o.m[s] = off
}

// Streams returns every stream with an entry, including entries set to
// MinOffset.
func (o *OffsetMap) Streams() []model.StreamId {
	out := make([]model.StreamId, 0, len(o.m))
	for s := range o.m {
		out = append(out, s)
	}
	return out
}

func (o *OffsetMap) Len() int { return len(o.m) }

func (o *OffsetMap) Clone() *OffsetMap {
	c := New()
	for s, v := range o.m {
		c.m[s] = v
	}
	return c
}

// Union returns the component-wise max of two maps.
func Union(a, b *OffsetMap) *OffsetMap {
	out := a.Clone()
	for s, v := range b.m {
		if cur, ok := out.m[s]; !ok || v > cur {
			out.m[s] = v
		}
	}
	return out
}

// Intersection returns the component-wise min; a stream absent from
// either side is absent from the result (its effective value is MIN).
func Intersection(a, b *OffsetMap) *OffsetMap {
	out := New()
	for s, va := range a.m {
		if vb, ok := b.m[s]; ok {
			if va < vb {
				out.m[s] = va
			} else {
				out.m[s] = vb
			}
		}
	}
	return out
}

// Diff counts offsets present in a but not in b, i.e. the sum over
// streams of max(0, a[s]-b[s]) where a[s] is taken as MIN if absent.
func Diff(a, b *OffsetMap) int64 {
	var n int64
	for s, va := range a.m {
		vb := b.Get(s)
		if int64(va) > int64(vb) {
			n += int64(va) - int64(vb)
		}
	}
	return n
}

// LessOrEqual reports whether a <= b component-wise (a's partial order).
func LessOrEqual(a, b *OffsetMap) bool {
	for s, va := range a.m {
		if int64(va) > int64(b.Get(s)) {
			return false
		}
	}
	return true
}

// wireEntry is the JSON-on-the-wire shape: stream id as a string key,
// offset as a number (MinOffset serializes as -1).
type wireEntry struct {
	Node string `json:"node"`
	Nr   uint64 `json:"nr"`
	Off  int64  `json:"off"`
}

func (o *OffsetMap) MarshalJSON() ([]byte, error) {
	entries := make([]wireEntry, 0, len(o.m))
	for s, v := range o.m {
		entries = append(entries, wireEntry{Node: s.Node.String(), Nr: uint64(s.Nr), Off: int64(v)})
	}
	return jsoniter.Marshal(entries)
}

func (o *OffsetMap) UnmarshalJSON(b []byte) error {
	var entries []wireEntry
	if err := jsoniter.Unmarshal(b, &entries); err != nil {
		return err
	}
	o.m = make(map[model.StreamId]model.OffsetOrMin, len(entries))
	for _, e := range entries {
		node, err := model.ParseNodeId(e.Node)
		if err != nil {
			return err
		}
		o.m[model.NewStreamId(node, model.StreamNr(e.Nr))] = model.OffsetOrMin(e.Off)
	}
	return nil
}
