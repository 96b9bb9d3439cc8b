package model

import "sort"

// Tag is a non-empty UTF-8 label attached to an event.
type Tag string

// AppId is a dotted-reverse-DNS identifier of the publishing app.
type AppId string

// AppIdTagPrefix is injected by the store as `app_id:<id>` into every
// appended event's TagSet (spec §4.1 append contract).
const AppIdTagPrefix = "app_id:"

func (a AppId) Tag() Tag { return Tag(AppIdTagPrefix + string(a)) }

// AppIdFromTags recovers the publishing AppId from a TagSet carrying
// the `app_id:<id>` tag the store injects on every append; ok is false
// if no such tag is present.
func AppIdFromTags(ts TagSet) (AppId, bool) {
	for t := range ts {
		if len(t) > len(AppIdTagPrefix) && string(t)[:len(AppIdTagPrefix)] == AppIdTagPrefix {
			return AppId(string(t)[len(AppIdTagPrefix):]), true
		}
	}
	return "", false
}

// TagSet is a set of Tags: insertion order is irrelevant, duplicates
// collapse.
type TagSet map[Tag]struct{}

func NewTagSet(tags ...Tag) TagSet {
	ts := make(TagSet, len(tags))
	for _, t := range tags {
		ts[t] = struct{}{}
	}
	return ts
}

func (ts TagSet) Has(t Tag) bool {
	_, ok := ts[t]
	return ok
}

func (ts TagSet) Add(t Tag) TagSet {
	if ts == nil {
		ts = make(TagSet, 1)
	}
	ts[t] = struct{}{}
	return ts
}

// Sorted returns the tags in lexical order, for deterministic CBOR
// encoding and display.
func (ts TagSet) Sorted() []Tag {
	out := make([]Tag, 0, len(ts))
	for t := range ts {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Union returns the component-wise union of two tag sets (used when
// computing a leaf/branch TagsSummary).
func (ts TagSet) Union(o TagSet) TagSet {
	out := make(TagSet, len(ts)+len(o))
	for t := range ts {
		out[t] = struct{}{}
	}
	for t := range o {
		out[t] = struct{}{}
	}
	return out
}

// ByteSize estimates the wire size of the tag set, used to decide
// whether a TagsSummary must collapse to Unrestricted (spec: 4 KiB).
func (ts TagSet) ByteSize() int {
	n := 0
	for t := range ts {
		n += len(t)
	}
	return n
}
