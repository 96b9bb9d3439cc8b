package banyan

import (
	"github.com/banyanmesh/core/model"
)

// TagsSummaryUnrestrictedBytes bounds how large a leaf/branch's unioned
// tag set may grow before the summary gives up precision and reports
// Unrestricted instead (spec §3).
const TagsSummaryUnrestrictedBytes = 4096

// TagsSummary is either the full union of the tag sets below a node, or
// Unrestricted when that union would exceed TagsSummaryUnrestrictedBytes.
type TagsSummary struct {
	Tags         model.TagSet `cbor:"tags,omitempty"`
	Unrestricted bool         `cbor:"unrestricted,omitempty"`
}

func tagsSummaryOf(ts model.TagSet) TagsSummary {
	if ts.ByteSize() > TagsSummaryUnrestrictedBytes {
		return TagsSummary{Unrestricted: true}
	}
	return TagsSummary{Tags: ts}
}

func mergeTagsSummary(a, b TagsSummary) TagsSummary {
	if a.Unrestricted || b.Unrestricted {
		return TagsSummary{Unrestricted: true}
	}
	u := a.Tags.Union(b.Tags)
	if u.ByteSize() > TagsSummaryUnrestrictedBytes {
		return TagsSummary{Unrestricted: true}
	}
	return TagsSummary{Tags: u}
}

// Summary describes the range of a Banyan subtree: its tag coverage,
// lamport range, and wall-clock time range.
type Summary struct {
	Tags        TagsSummary             `cbor:"tags"`
	LamportMin  model.LamportTimestamp  `cbor:"lamport_min"`
	LamportMax  model.LamportTimestamp  `cbor:"lamport_max"`
	TimeMin     model.Timestamp         `cbor:"time_min"`
	TimeMax     model.Timestamp         `cbor:"time_max"`
	EventCount  int64                   `cbor:"event_count"`
}

func summaryOfKeys(keys []model.AxKey) Summary {
	if len(keys) == 0 {
		return Summary{}
	}
	s := Summary{
		Tags:       tagsSummaryOf(keys[0].Tags),
		LamportMin: keys[0].Lamport,
		LamportMax: keys[0].Lamport,
		TimeMin:    keys[0].Timestamp,
		TimeMax:    keys[0].Timestamp,
		EventCount: int64(len(keys)),
	}
	for _, k := range keys[1:] {
		s.Tags = mergeTagsSummary(s.Tags, tagsSummaryOf(k.Tags))
		if k.Lamport < s.LamportMin {
			s.LamportMin = k.Lamport
		}
		if k.Lamport > s.LamportMax {
			s.LamportMax = k.Lamport
		}
		if k.Timestamp < s.TimeMin {
			s.TimeMin = k.Timestamp
		}
		if k.Timestamp > s.TimeMax {
			s.TimeMax = k.Timestamp
		}
	}
	return s
}

// Merge combines two sibling summaries into their parent's.
func Merge(a, b Summary) Summary {
	if a.EventCount == 0 {
		return b
	}
	if b.EventCount == 0 {
		return a
	}
	out := Summary{
		Tags:       mergeTagsSummary(a.Tags, b.Tags),
		LamportMin: a.LamportMin,
		LamportMax: a.LamportMax,
		TimeMin:    a.TimeMin,
		TimeMax:    a.TimeMax,
		EventCount: a.EventCount + b.EventCount,
	}
	if b.LamportMin < out.LamportMin {
		out.LamportMin = b.LamportMin
	}
	if b.LamportMax > out.LamportMax {
		out.LamportMax = b.LamportMax
	}
	if b.TimeMin < out.TimeMin {
		out.TimeMin = b.TimeMin
	}
	if b.TimeMax > out.TimeMax {
		out.TimeMax = b.TimeMax
	}
	return out
}
