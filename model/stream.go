package model

import "fmt"

// StreamNr indexes a stream within a single node.
type StreamNr uint64

// Well-known stream numbers (routing.Table seeds these).
const (
	DefaultStreamNr   StreamNr = 0
	DiscoveryStreamNr StreamNr = 1
	MetricsStreamNr   StreamNr = 2
	FilesStreamNr     StreamNr = 3
)

// StreamId names a stream globally: the owning node plus its local index.
type StreamId struct {
	Node NodeId
	Nr   StreamNr
}

func NewStreamId(node NodeId, nr StreamNr) StreamId { return StreamId{Node: node, Nr: nr} }

func (s StreamId) String() string { return fmt.Sprintf("%s/%d", s.Node, s.Nr) }

func (s StreamId) IsZero() bool { return s.Node.IsZero() && s.Nr == 0 }

// Less gives StreamId a total order: node first, then stream number.
func (s StreamId) Less(o StreamId) bool {
	if s.Node != o.Node {
		return s.Node.Less(o.Node)
	}
	return s.Nr < o.Nr
}

func (s StreamId) Equal(o StreamId) bool { return s.Node == o.Node && s.Nr == o.Nr }
