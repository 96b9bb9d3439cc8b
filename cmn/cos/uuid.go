// Package cos provides low-level shared types and utilities used throughout
// the mesh.
/*
 * Adapted from the aistore cmn/cos package.
 */
package cos

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/OneOfOne/xxhash"
	"github.com/teris-io/shortid"
)

const (
	// alphabet for generating short IDs, similar to shortid's default
	// NOTE: len(uuidABC) > 0x3f - see GenTie()
	uuidABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

	// MLCG32 is the multiplier used by the 32-bit multiplicative
	// congruential generator variant of xxhash's seed parameter.
	MLCG32 = uint32(1103515245)
)

const (
	LenShortID  = 9 // as per https://github.com/teris-io/shortid#id-length
	lenNodeID   = 8 // min length, via cryptographic rand
	tooLongID   = 32
	mayOnlyHave = "may only contain letters, numbers, dashes (-), underscores (_)"
	OnlyNice    = "must be less than 32 characters and " + mayOnlyHave
)

var (
	sid  *shortid.Shortid
	rtie atomic.Uint32
)

func InitShortID(seed uint64) {
	sid = shortid.MustNew(4 /*worker*/, uuidABC, seed)
}

func init() { InitShortID(0) }

// GenUUID generates a short, mostly-alphabetic unique id. It prepends a
// letter when shortid's id does not start with a letter, and appends a
// letter when it ends in '-' or '_'.
func GenUUID() (uuid string) {
	var h, t string
	uuid = sid.MustGenerate()
	if !isAlpha(uuid[0]) {
		tie := int(rtie.Add(1))
		h = string(rune('A' + tie%26))
	}
	c := uuid[len(uuid)-1]
	if c == '-' || c == '_' {
		tie := int(rtie.Add(1))
		t = string(rune('a' + tie%26))
	}
	return h + uuid + t
}

func IsValidUUID(uuid string) bool {
	return len(uuid) >= LenShortID && IsAlphaNice(uuid)
}

// GenNodeID generates a random node identifier suffix used when no Ed25519
// keypair is configured (dev/test mode).
func GenNodeID() string { return CryptoRandS(lenNodeID) }

func CryptoRandS(n int) string {
	b := make([]byte, n)
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is fatal: we cannot safely generate identifiers
		Exitf("crypto/rand: %v", err)
	}
	for i, v := range buf {
		b[i] = letters[int(v)%len(letters)]
	}
	return string(b)
}

func ValidateNodeID(id string) error {
	if len(id) < lenNodeID {
		return fmt.Errorf("node id %q is too short", id)
	}
	if !IsAlphaNice(id) {
		return fmt.Errorf("node id %q is invalid: must start with a letter, "+OnlyNice, id)
	}
	return nil
}

// HashStreamName computes a stable base-36 digest of a stream name.
func HashStreamName(name string) string {
	digest := xxhash.Checksum64S(UnsafeB(name), MLCG32)
	s := strconv.FormatUint(digest, 36)
	if s[0] >= '0' && s[0] <= '9' {
		s = s[1:]
	}
	return s
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// IsAlphaNice: letters and numbers w/ '-' and '_' permitted with
// limitations (see OnlyNice const).
func IsAlphaNice(s string) bool {
	l := len(s)
	if l > tooLongID {
		return false
	}
	for i := range l {
		c := s[i]
		if isAlpha(c) || (c >= '0' && c <= '9') {
			continue
		}
		if c != '-' && c != '_' {
			return false
		}
		if i == 0 || i == l-1 {
			return false
		}
	}
	return true
}

var errBufferUnderrun = errors.New("buffer underrun")

// ErrBufferUnderrun returns the shared "buffer underrun" error value.
func ErrBufferUnderrun() error { return errBufferUnderrun }

// GenTie produces a 3-character tie breaker from a shared counter.
func GenTie() string {
	tie := rtie.Add(1)
	b0 := uuidABC[tie&0x3f]
	b1 := uuidABC[-tie&0x3f]
	b2 := uuidABC[(tie>>2)&0x3f]
	return string([]byte{b0, b1, b2})
}
