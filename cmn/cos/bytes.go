package cos

import (
	"crypto/rand"
	mrand "math/rand"
	"unsafe"
)

// byte-size constants used throughout the store (leaf/branch size bounds,
// cache capacities).
const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
)

// UnsafeB reinterprets s as a byte slice without copying. Callers must not
// mutate the result and must not retain it past the lifetime of s.
func UnsafeB(s string) []byte {
	if s == "" {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

// UnsafeS reinterprets b as a string without copying.
func UnsafeS(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}

func DivCeil(a, b int64) int64 {
	return (a + b - 1) / b
}

// NowRand returns a process-local PRNG (math/rand) seeded from
// crypto/rand; its output is not suitable for unguessable identifiers.
func NowRand() *mrand.Rand { return mrand.New(mrand.NewSource(seed())) }

func seed() int64 {
	var x int64
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	for i, v := range b {
		x |= int64(v) << (8 * i)
	}
	return x
}
