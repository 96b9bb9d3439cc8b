package model

// MaxOffset is the largest value representable losslessly in an IEEE-754
// double (2^53 - 1); OffsetMap snapshots cross the wire as JSON numbers,
// so every Offset must stay within this bound.
const MaxOffset = (int64(1) << 53) - 1

// Offset is a per-stream event index, starting at 0.
type Offset int64

// OffsetOrMin extends Offset with the sentinel MinOffset meaning "before
// the first event of the stream."
type OffsetOrMin int64

// MinOffset is the OffsetOrMin sentinel for "no events yet."
const MinOffset OffsetOrMin = -1

func (o Offset) OrMin() OffsetOrMin { return OffsetOrMin(o) }

func (m OffsetOrMin) IsMin() bool { return m == MinOffset }

// AsOffset converts, panicking semantics left to the caller: callers
// must check IsMin first.
func (m OffsetOrMin) AsOffset() Offset { return Offset(m) }

func (o Offset) Valid() bool { return int64(o) >= 0 && int64(o) <= MaxOffset }
