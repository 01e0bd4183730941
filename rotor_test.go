package npk

import (
	"encoding/hex"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

// ExampleRotor demonstrates a whole-buffer encrypt/decrypt round trip.
func ExampleRotor() {
	key := []byte("test-key-123")
	sealed := NewRotor(key).Encrypt(nil, []byte("hello, rotor stream"))
	opened := NewRotor(key).Decrypt(nil, sealed)
	fmt.Println(string(opened))
	// Output:
	// hello, rotor stream
}

// TestRotorKnownVectors pins the cipher to known key/plaintext/ciphertext
// triples so table layout, rotor stepping, and the generator behind them
// cannot drift.
func TestRotorKnownVectors(t *testing.T) {
	assert := assert.New(t)

	key := []byte("test-key-123")
	cases := []struct {
		rotors int
		plain  []byte
		cipher string
	}{
		{DefaultRotors, []byte("hello, rotor stream"), "a2a94d2ab627f0fc96453e377b99ff3ae4a74a"},
		{DefaultRotors, byteRange(64), "61e7a8b832fb6e98621b157ed4f4a33569f69d7220487de200621b918843f181862fbaf2a58a0ebc7db9bc6b0cffae7f7f9658e000f410db4f5ab2ddf40395c1"},
		{2, []byte("hello, rotor stream"), "fd37fe5c6d04b2628b13b55700ae01a75b929b"},
		{12, []byte("hello, rotor stream"), "97cb0a09e63054e2933c01620913e4c453e365"},
	}
	for _, tc := range cases {
		want := mustHex(t, tc.cipher)
		got := NewRotorN(key, tc.rotors).Encrypt(nil, tc.plain)
		assert.Equal(want, got, "%d rotors encrypt mismatch", tc.rotors)

		back := NewRotorN(key, tc.rotors).Decrypt(nil, want)
		assert.Equal(tc.plain, back, "%d rotors decrypt mismatch", tc.rotors)
	}
}

func TestRotorRoundTripRandom(t *testing.T) {
	assert := assert.New(t)

	rng := rand.New(rand.NewSource(42))
	key := make([]byte, 48)
	rng.Read(key)
	plain := make([]byte, 1024)
	rng.Read(plain)

	sealed := NewRotor(key).Encrypt(nil, plain)
	assert.Equal(len(plain), len(sealed))
	assert.NotEqual(plain, sealed)
	assert.Equal(plain, NewRotor(key).Decrypt(nil, sealed))
}

// TestRotorChunked tests that chunk boundaries never change the stream:
// feeding a buffer in pieces produces the bytes of one whole-buffer call.
func TestRotorChunked(t *testing.T) {
	assert := assert.New(t)

	rng := rand.New(rand.NewSource(7))
	key := []byte("chunk boundaries")
	plain := make([]byte, 257)
	rng.Read(plain)

	whole := NewRotor(key).Encrypt(nil, plain)

	chunked := NewRotor(key)
	var sealed []byte
	for _, cut := range [][2]int{{0, 1}, {1, 100}, {100, 100}, {100, 257}} {
		sealed = chunked.Encrypt(sealed, plain[cut[0]:cut[1]])
	}
	assert.Equal(whole, sealed)

	opened := NewRotor(key)
	var back []byte
	back = opened.Decrypt(back, sealed[:33])
	back = opened.Decrypt(back, sealed[33:])
	assert.Equal(plain, back)
}

func TestRotorReset(t *testing.T) {
	assert := assert.New(t)

	r := NewRotor([]byte("reset me"))
	msg := []byte("the same message")

	first := r.Encrypt(nil, msg)
	moved := r.Encrypt(nil, msg)
	assert.NotEqual(first, moved, "positions did not advance between calls")

	r.Reset()
	again := r.Encrypt(nil, msg)
	assert.Equal(first, again)
}

// TestRotorDeterministicTables tests that one key always builds identical
// rotors: same substitution tables, inverses, increments, and positions.
func TestRotorDeterministicTables(t *testing.T) {
	assert := assert.New(t)

	a := NewRotor([]byte("one key"))
	b := NewRotor([]byte("one key"))
	a.build()
	b.build()

	assert.Equal(a.enc, b.enc)
	assert.Equal(a.dec, b.dec)
	assert.Equal(a.inc, b.inc)
	assert.Equal(a.start, b.start)

	for i := 0; i < a.n; i++ {
		assert.Equal(uint8(1), a.inc[i]&1, "rotor %d increment must be odd", i)
		var seen [rotorSize]bool
		for _, v := range a.enc[i] {
			seen[v] = true
		}
		for v, ok := range seen {
			assert.True(ok, "rotor %d substitution misses value %d", i, v)
		}
		for c := 0; c < rotorSize; c++ {
			assert.Equal(uint8(c), a.dec[i][a.enc[i][c]], "rotor %d inverse mismatch at %d", i, c)
		}
	}
}

func TestRotorDifferentKeysDiffer(t *testing.T) {
	assert := assert.New(t)

	plain := make([]byte, 128)
	a := NewRotor([]byte("key a")).Encrypt(nil, plain)
	b := NewRotor([]byte("key b")).Encrypt(nil, plain)
	assert.NotEqual(a, b)
}

func TestRotorCountValidation(t *testing.T) {
	assert := assert.New(t)
	assert.Panics(func() {
		NewRotorN([]byte("k"), 0)
	})
}

func TestRotorAppendsToDst(t *testing.T) {
	assert := assert.New(t)

	r := NewRotor([]byte("append"))
	prefix := append(make([]byte, 0, 64), "head:"...)
	out := r.Encrypt(prefix, []byte("tail"))
	assert.Equal([]byte("head:"), out[:5])
	assert.Equal(9, len(out))
}

func BenchmarkRotorEncrypt(b *testing.B) {
	r := NewRotor([]byte("benchmark key"))
	src := make([]byte, 4096)
	dst := make([]byte, 0, len(src))
	b.SetBytes(int64(len(src)))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		dst = r.Encrypt(dst[:0], src)
	}
	benchBytes = dst
}

// Helpers

var benchBytes []byte

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex literal: %v", err)
	}
	return b
}

func byteRange(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}
