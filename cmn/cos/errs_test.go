package cos_test

import (
	"errors"

	"github.com/banyanmesh/core/cmn/cos"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Errs", func() {
	It("de-duplicates by message and caps at 4", func() {
		var errs cos.Errs
		for i := 0; i < 10; i++ {
			errs.Add(errors.New("boom"))
		}
		Expect(errs.Cnt()).To(Equal(1))
		errs.Add(errors.New("bang"))
		Expect(errs.Cnt()).To(Equal(2))
		for _, msg := range []string{"e3", "e4", "e5"} {
			errs.Add(errors.New(msg))
		}
		Expect(errs.Cnt()).To(Equal(4))
	})

	It("renders a joined error mentioning the overflow count", func() {
		var errs cos.Errs
		errs.Add(errors.New("e1"))
		errs.Add(errors.New("e2"))
		errs.Add(errors.New("e3"))
		Expect(errs.Error()).To(ContainSubstring("e1"))
		Expect(errs.Error()).To(ContainSubstring("2 more"))
	})

	It("reports nothing when empty", func() {
		var errs cos.Errs
		Expect(errs.Error()).To(Equal(""))
		Expect(errs.Cnt()).To(Equal(0))
	})
})

var _ = Describe("ErrNotFound", func() {
	It("formats and is detectable via IsErrNotFound", func() {
		err := cos.NewErrNotFound("stream %d", 7)
		Expect(err.Error()).To(Equal("stream 7 does not exist"))
		Expect(cos.IsErrNotFound(err)).To(BeTrue())
		Expect(cos.IsErrNotFound(errors.New("other"))).To(BeFalse())
	})
})

var _ = Describe("UUID generation", func() {
	It("generates valid, distinct ids", func() {
		a := cos.GenUUID()
		b := cos.GenUUID()
		Expect(a).NotTo(Equal(b))
		Expect(cos.IsValidUUID(a)).To(BeTrue())
	})
})
