package model_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/banyanmesh/core/model"
)

var _ = Describe("EventKey ordering", func() {
	It("orders by lamport first", func() {
		a := model.EventKey{Lamport: 1, Stream: model.StreamId{Nr: 5}, Offset: 100}
		b := model.EventKey{Lamport: 2, Stream: model.StreamId{Nr: 0}, Offset: 0}
		Expect(a.Less(b)).To(BeTrue())
		Expect(a.Compare(b)).To(Equal(-1))
	})

	It("breaks lamport ties by stream", func() {
		n1 := model.NodeId{31: 1}
		n2 := model.NodeId{31: 2}
		a := model.EventKey{Lamport: 1, Stream: model.NewStreamId(n1, 0), Offset: 0}
		b := model.EventKey{Lamport: 1, Stream: model.NewStreamId(n2, 0), Offset: 0}
		Expect(a.Less(b)).To(BeTrue())
	})

	It("breaks stream ties by offset", func() {
		s := model.StreamId{Nr: 1}
		a := model.EventKey{Lamport: 1, Stream: s, Offset: 1}
		b := model.EventKey{Lamport: 1, Stream: s, Offset: 2}
		Expect(a.Less(b)).To(BeTrue())
		Expect(a.Equal(a)).To(BeTrue())
	})
})

var _ = Describe("LamportTimestamp.Observe", func() {
	It("advances past the observed remote value", func() {
		var l model.LamportTimestamp = 5
		Expect(l.Observe(10)).To(Equal(model.LamportTimestamp(11)))
	})

	It("advances past its own value when remote is behind", func() {
		var l model.LamportTimestamp = 5
		Expect(l.Observe(2)).To(Equal(model.LamportTimestamp(6)))
	})
})

var _ = Describe("OffsetOrMin", func() {
	It("treats MinOffset as before-first", func() {
		Expect(model.MinOffset.IsMin()).To(BeTrue())
		Expect(model.Offset(0).OrMin().IsMin()).To(BeFalse())
	})
})

var _ = Describe("TagSet", func() {
	It("collapses duplicates and sorts deterministically", func() {
		ts := model.NewTagSet("b", "a", "a")
		Expect(ts.Sorted()).To(Equal([]model.Tag{"a", "b"}))
	})

	It("unions without mutating either operand", func() {
		a := model.NewTagSet("x")
		b := model.NewTagSet("y")
		u := a.Union(b)
		Expect(u.Has("x")).To(BeTrue())
		Expect(u.Has("y")).To(BeTrue())
		Expect(a.Has("y")).To(BeFalse())
	})
})

var _ = Describe("Cid", func() {
	It("round-trips through string encoding", func() {
		c, err := model.CidFromBlock([]byte("hello banyan"))
		Expect(err).NotTo(HaveOccurred())
		Expect(c.IsDefined()).To(BeTrue())

		parsed, err := model.ParseCid(c.String())
		Expect(err).NotTo(HaveOccurred())
		Expect(parsed.Equal(c)).To(BeTrue())
	})

	It("round-trips through CBOR", func() {
		c, _ := model.CidFromBlock([]byte("payload"))
		b, err := c.MarshalCBOR()
		Expect(err).NotTo(HaveOccurred())
		var back model.Cid
		Expect(back.UnmarshalCBOR(b)).To(Succeed())
		Expect(back.Equal(c)).To(BeTrue())
	})
})

var _ = Describe("Payload canonical CBOR", func() {
	It("round-trips a map", func() {
		p, err := model.MarshalPayload(map[string]int{"a": 1, "b": 2})
		Expect(err).NotTo(HaveOccurred())
		var out map[string]int
		Expect(p.Unmarshal(&out)).To(Succeed())
		Expect(out).To(Equal(map[string]int{"a": 1, "b": 2}))
	})
})
