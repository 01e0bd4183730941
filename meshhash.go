package npk

import "math/bits"

// Sentinel words folded into every content hash after the name itself.
const (
	hashTail0 = 0x9BE74448
	hashTail1 = 0x66F42C48
)

// MeshHash computes the 32-bit content signature an archive stores for an
// entry in place of its name. Hashing is case-insensitive: ASCII letters are
// lowered and bytes outside the ASCII range are dropped before the name is
// packed into little-endian 32-bit words. The function is total and
// deterministic; equal names always collide and distinct names are expected
// to collide roughly like a 32-bit hash.
func MeshHash(name string) uint32 {
	norm := make([]byte, 0, len(name)+3)
	for i := 0; i < len(name); i++ {
		b := name[i]
		if b >= 0x80 {
			continue
		}
		if 'A' <= b && b <= 'Z' {
			b += 'a' - 'A'
		}
		norm = append(norm, b)
	}
	for len(norm)%4 != 0 {
		norm = append(norm, 0)
	}

	words := make([]uint32, 0, len(norm)/4+2)
	for i := 0; i < len(norm); i += 4 {
		words = append(words, bo.Uint32(norm[i:i+4]))
	}
	words = append(words, hashTail0, hashTail1)

	var (
		hash  uint32 = 0xF4FA8928
		state uint32 = 0x37A8470E
		tweak uint32 = 0x7758B42B
	)
	for _, w := range words {
		hash = bits.RotateLeft32(hash, 1)
		e := 0x267B0B11 ^ hash

		state ^= w
		tweak ^= w

		// First widening multiply, with the legacy carry corrections: the low
		// half bumps once for a nonzero high half, then once more if folding
		// the halves together overflows.
		b := ((e + tweak) | 0x02040801) & 0xBFEF7FDF
		f := uint64(b) * uint64(state)
		a := uint32(f)
		hi := uint32(f >> 32)
		if hi != 0 {
			a++
		}
		f = uint64(a) + uint64(hi)
		a = uint32(f)
		if f>>32 != 0 {
			a++
		}

		// Second multiply reads the pre-update state, then commits the first
		// result into it.
		b = ((e + state) | 0x00804021) & 0x7DFEFBFF
		state = a
		f = uint64(tweak) * uint64(b)
		a = uint32(f)
		hi = uint32(f >> 32)

		f = uint64(hi) + uint64(hi)
		lo := uint32(f)
		if f>>32 != 0 {
			a++
		}
		f = uint64(a) + uint64(lo)
		a = uint32(f)
		if f>>32 != 0 {
			a += 2
		}
		tweak = a
	}
	return state ^ tweak
}
