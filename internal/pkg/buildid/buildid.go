// Package buildid generates sortable identifiers for build runs.
package buildid

import (
	crypto_rand "crypto/rand"
	"strings"
	"time"
)

// Prefix is prepended to every build ID.
const Prefix = "bld"

// Base62 alphabet: 0-9, A-Z, a-z (62 characters)
const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const randomLength = 14

// EncodeTimestamp encodes Unix seconds as a 6-character base62 string that
// sorts lexicographically in time order.
func EncodeTimestamp(seconds int64) string {
	n := seconds
	result := make([]byte, 6)
	for i := 5; i >= 0; i-- {
		result[i] = base62Alphabet[n%62]
		n /= 62
	}
	return string(result)
}

// randomBase62 returns length uniformly distributed base62 characters.
// Six bits are taken at a time and values >= 62 are rejected.
func randomBase62(length int) string {
	buf := make([]byte, (length*6)/8+4)
	fill := func() {
		if _, err := crypto_rand.Read(buf); err != nil {
			panic("failed to read random bytes: " + err.Error())
		}
	}
	fill()

	var result strings.Builder
	var bits uint64
	var nbits uint
	idx := 0
	for result.Len() < length {
		for nbits < 6 && idx < len(buf) {
			bits = (bits << 8) | uint64(buf[idx])
			nbits += 8
			idx++
		}
		value := (bits >> (nbits - 6)) & 0x3f
		nbits -= 6
		if value < 62 {
			result.WriteByte(base62Alphabet[value])
		}
		if idx >= len(buf) && nbits < 6 && result.Len() < length {
			fill()
			idx = 0
		}
	}
	return result.String()
}

// NewAt returns a build ID for a run started at t: "bld_" + timestamp + random.
func NewAt(t time.Time) string {
	return Prefix + "_" + EncodeTimestamp(t.Unix()) + randomBase62(randomLength)
}

// New returns a build ID for a run starting now.
func New() string {
	return NewAt(time.Now())
}
