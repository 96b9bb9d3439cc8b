package aql

import "github.com/banyanmesh/core/model"

// durationUnitMicros gives the microsecond factor for each
// "N ago" unit letter (spec §4.5). M and Y are deliberately not
// calendar months/years: they use the Y2000 synodic-month and
// J2000.0 mean-tropical-year constants so `from(1M ago)` is stable
// regardless of calendar position.
var durationUnitMicros = map[string]uint64{
	"s": 1_000_000,
	"m": 60_000_000,
	"h": 3_600_000_000,
	"D": 86_400_000_000,
	"W": 604_800_000_000,
	"M": 2_551_442_876_908,
	"Y": 31_556_925_250_733,
}

// saturatingMul multiplies without overflowing uint64, clamping to
// the max instead of wrapping (mirrors the original's
// saturating_mul).
func saturatingMul(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	p := a * b
	if p/a != b {
		return ^uint64(0)
	}
	return p
}

// resolveDurationAgo computes now - count*unit at parse time (spec
// §4.5: "Computed as now - n*unit at parse time").
func resolveDurationAgo(now model.Timestamp, count uint64, unit string, pos int) (model.Timestamp, error) {
	factor, ok := durationUnitMicros[unit]
	if !ok {
		return 0, errf(pos, "unknown duration unit %q", unit)
	}
	offset := saturatingMul(count, factor)
	return model.Timestamp(int64(now) - int64(offset)), nil
}
