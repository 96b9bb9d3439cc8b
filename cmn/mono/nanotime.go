// Package mono provides a fast monotonic nanosecond clock for lamport/
// timestamp stamping and log-flush timing.
/*
 * Adapted from the aistore cmn/mono package, which reached into
 * runtime.nanotime via go:linkname under a "mono" build tag. That trick
 * pins the module to a matched runtime build; here the same fast, monotonic
 * nanosource is built portably on top of time.Since, which already reads
 * the runtime's monotonic clock reading internally.
 */
package mono

import "time"

var start = time.Now()

// NanoTime returns nanoseconds elapsed since process start — monotonic,
// cheap, and independent of wall-clock adjustments.
func NanoTime() int64 { return int64(time.Since(start)) }
