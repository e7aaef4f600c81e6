// Package fingerprint implements the content-hashing and block-compression
// primitives shared by the dependency graph, the compile-result cache and
// the distribution protocol (spec component C1).
//
// Three hash widths are used throughout forge, each for a distinct purpose:
//
//   - 32-bit (CRC32, IEEE polynomial) keys the node-name hash bucket chain
//     in the dependency graph.
//   - 64-bit (xxhash) identifies toolchains and summarizes dynamic
//     dependency sets.
//   - 128-bit (FNV-128a) is the "A" component of a compile-result cache
//     key, over the preprocessed source text.
package fingerprint

import (
	"hash/crc32"
	"hash/fnv"
	"io"

	"github.com/cespare/xxhash/v2"
)

// Hash32 returns the CRC32 (IEEE) checksum of b, used as the bucket key for
// node-name lookups. It is case-sensitive; callers are responsible for
// lower-casing the canonical name first, per spec.md's "lower-case CRC32 of
// the canonical name" requirement.
func Hash32(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

// Hash32Reader streams r through a CRC32 checksum.
func Hash32Reader(r io.Reader) (uint32, error) {
	h := crc32.NewIEEE()
	if _, err := io.Copy(h, r); err != nil {
		return 0, err
	}
	return h.Sum32(), nil
}

// Hash64 returns the 64-bit xxhash digest of b. Used for toolchain ids and
// for summarizing an ordered list of dynamic-dependency stamps into a single
// value (e.g. a unity node's combined content stamp).
func Hash64(b []byte) uint64 {
	return xxhash.Sum64(b)
}

// Hash64Stream is an incremental xxhash accumulator, for hashing a sequence
// of values (e.g. toolchain manifest entries) without concatenating them
// into one buffer first.
type Hash64Stream struct {
	h *xxhash.Digest
}

func NewHash64Stream() *Hash64Stream {
	return &Hash64Stream{h: xxhash.New()}
}

func (s *Hash64Stream) Write(b []byte) (int, error) { return s.h.Write(b) }
func (s *Hash64Stream) WriteUint64(v uint64) {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	s.h.Write(buf[:])
}
func (s *Hash64Stream) Sum() uint64 { return s.h.Sum64() }

// Hash128 is a 128-bit fingerprint, produced by FNV-128a.
type Hash128 [16]byte

// Hash128Bytes fingerprints b with FNV-128a. This is the "A" component of a
// compile-result cache key (spec.md §4.4): the preprocessed source text is
// hashed wholesale, independent of the arguments used to produce the object
// (those form the separate 32-bit "B" component, see Hash32).
func Hash128Bytes(b []byte) Hash128 {
	h := fnv.New128a()
	h.Write(b)
	var out Hash128
	copy(out[:], h.Sum(nil))
	return out
}

// Hash128Reader streams r through FNV-128a.
func Hash128Reader(r io.Reader) (Hash128, error) {
	h := fnv.New128a()
	if _, err := io.Copy(h, r); err != nil {
		return Hash128{}, err
	}
	var out Hash128
	copy(out[:], h.Sum(nil))
	return out, nil
}
