package npk

import (
	"fmt"
	"slices"
)

// Rotor configuration constants.
const (
	// DefaultRotors is the rotor count used by the asset pipeline's built-in
	// payload cipher.
	DefaultRotors = 6

	// rotorSize is the alphabet size of each rotor.
	rotorSize = 256
)

// Rotor is a rotating-substitution stream cipher. The byte key seeds a
// deterministic generator that lays out one substitution table per rotor, the
// matching inverse tables, the starting rotor positions, and the per-rotor
// odometer increments, so the same key always yields the same cipher.
//
// Encryption and decryption keep independent rotor positions. Each direction
// starts from the built positions on its first call and continues from where
// it stopped on later calls, so a stream may be processed in arbitrary chunks
// and the chunk boundaries never change the output. Reset returns both
// directions to the starting positions.
//
// A Rotor is not safe for concurrent use. Separate instances, even with the
// same key, are fully independent.
type Rotor struct {
	key []byte
	n   int

	// built lazily on first use
	enc   [][]uint8 // per-rotor substitution, rotorSize entries
	dec   [][]uint8 // per-rotor inverse substitution
	inc   []uint8   // per-rotor odometer increment, always odd
	start []uint8   // rotor positions as built
	built bool

	encPos []uint8 // nil until the first Encrypt
	decPos []uint8 // nil until the first Decrypt
}

// NewRotor returns a cipher with the default rotor count.
func NewRotor(key []byte) *Rotor {
	return NewRotorN(key, DefaultRotors)
}

// NewRotorN returns a cipher with n rotors. It panics if n < 1.
func NewRotorN(key []byte, n int) *Rotor {
	if n < 1 {
		panic(fmt.Sprintf("npk: rotor count %d out of range", n))
	}
	return &Rotor{key: slices.Clone(key), n: n}
}

// Encrypt appends the encrypted form of src to dst and returns the extended
// slice. The result depends on every byte already encrypted since the last
// Reset.
func (r *Rotor) Encrypt(dst, src []byte) []byte {
	r.build()
	if r.encPos == nil {
		r.encPos = slices.Clone(r.start)
	}
	dst = slices.Grow(dst, len(src))
	for _, b := range src {
		c := int(b)
		for i := 0; i < r.n; i++ {
			c = int(r.enc[i][c^int(r.encPos[i])])
		}
		dst = append(dst, byte(c))
		r.step(r.encPos)
	}
	return dst
}

// Decrypt appends the decrypted form of src to dst and returns the extended
// slice. The result depends on every byte already decrypted since the last
// Reset.
func (r *Rotor) Decrypt(dst, src []byte) []byte {
	r.build()
	if r.decPos == nil {
		r.decPos = slices.Clone(r.start)
	}
	dst = slices.Grow(dst, len(src))
	for _, b := range src {
		c := int(b)
		for i := r.n - 1; i >= 0; i-- {
			c = int(r.decPos[i]) ^ int(r.dec[i][c])
		}
		dst = append(dst, byte(c))
		r.step(r.decPos)
	}
	return dst
}

// Reset returns both directions to the built starting positions, as if no
// data had been processed yet.
func (r *Rotor) Reset() {
	r.encPos = nil
	r.decPos = nil
}

// build materializes the rotor tables once per instance.
func (r *Rotor) build() {
	if r.built {
		return
	}
	w := seedWichmann(r.key)
	r.enc = make([][]uint8, r.n)
	r.dec = make([][]uint8, r.n)
	r.inc = make([]uint8, r.n)
	r.start = make([]uint8, r.n)
	for i := range r.enc {
		// Draw order matters: position, then increment, then the shuffle.
		r.start[i] = uint8(w.rand(rotorSize))
		r.inc[i] = uint8(1 + 2*w.rand(rotorSize/2))

		e := make([]uint8, rotorSize)
		d := make([]uint8, rotorSize)
		for j := range e {
			e[j] = uint8(j)
		}
		for j := rotorSize; j > 1; {
			k := w.rand(j)
			j--
			e[k], e[j] = e[j], e[k]
			d[e[j]] = uint8(j)
		}
		d[e[0]] = 0
		r.enc[i] = e
		r.dec[i] = d
	}
	r.built = true
}

// step turns the rotors one notch: each rotor advances by its own increment
// plus a carry from the rotor before it overflowing the alphabet.
func (r *Rotor) step(pos []uint8) {
	carry := 0
	for i := 0; i < r.n; i++ {
		p := ((int(pos[i]) + carry) & 0xff) + int(r.inc[i])
		pos[i] = uint8(p % rotorSize)
		if p >= rotorSize {
			carry = 1
		} else {
			carry = 0
		}
	}
}

// wichmann is the three-stream combined congruential generator that expands a
// key into rotor tables. Draws use the current state; the state then advances.
type wichmann struct {
	x, y, z int
}

// seedWichmann folds the key bytes into three 16-bit accumulators, clips them
// to signed range, and re-seeds each against its modulus with one Schrage
// step. The divisions here round toward negative infinity; truncated division
// would land some keys on different seeds.
func seedWichmann(key []byte) wichmann {
	x, y, z := 995, 576, 767
	for _, c := range key {
		k := int(c)
		x = ((x<<3 | x>>13) + k) & 0xffff
		y = ((y<<3 | y>>13) ^ k) & 0xffff
		z = ((z<<3 | z>>13) - k) & 0xffff
	}
	if x > 0x7fff {
		x -= 0x10000
	}
	if y > 0x7fff {
		y -= 0x10000
	}
	if z > 0x7fff {
		z -= 0x10000
	}
	y |= 1

	x = 171*floorMod(x, 177) - 2*floorDiv(x, 177)
	y = 172*floorMod(y, 176) - 35*floorDiv(y, 176)
	z = 170*floorMod(z, 178) - 63*floorDiv(z, 178)
	if x < 0 {
		x += 30269
	}
	if y < 0 {
		y += 30307
	}
	if z < 0 {
		z += 30323
	}
	return wichmann{x, y, z}
}

// rand returns a value in [0, n) and advances the state. The combined
// fraction is scaled and truncated in float64; the table layout depends on
// this exact rounding.
func (w *wichmann) rand(n int) int {
	x, y, z := w.x, w.y, w.z
	w.x = (171 * x) % 30269
	w.y = (172 * y) % 30307
	w.z = (170 * z) % 30323
	v := (float64(x)/30269 + float64(y)/30307 + float64(z)/30323) * float64(n)
	return int(int64(v) % int64(n))
}

// floorDiv is division rounding toward negative infinity.
func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// floorMod is the remainder paired with floorDiv; its sign follows b.
func floorMod(a, b int) int {
	m := a % b
	if m != 0 && (a < 0) != (b < 0) {
		m += b
	}
	return m
}
