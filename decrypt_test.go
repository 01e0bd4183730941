package npk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Expected outputs for each XOR scheme over xorPattern inputs. The long
// vectors use a 200-byte entry, the short ones a 77-byte entry.
const (
	basicVec = "959d898185bdb1a9a5dde9f1f5fdc1c9d5dd2921253d3109051d0971757d6169555d4941" +
		"45bdb1a9a59de9f1f5fd8189959da9a1a5bdb149455d4971757d6169151d0901053d3129" +
		"25dde9f1f5fdc1c9d5dda9a1a5bdb189859d8971757d6169555d4941453d3129251de9f1" +
		"f5fd0109151d2921253d3149455d4971757d6169838a91989fa6adb4bbc2c9d0d7dee5ec" +
		"f3fa01080f161d242b323940474e555c636a71787f868d949ba2a9b0b7bec5ccd3dae1e8" +
		"eff6fd040b121920272e353c434a51585f666d74"

	advancedVec = "030a11181f262d343b424950575e656c737a81888f969da4abb2b9c0c7ced5dce3eaf1f8" +
		"ff060d141b222930373e454c539ca6a0a6bcb648465c5670767c6668161c0600063c3628" +
		"26dcd6f0f6fcc6c8d6dca6a0a6bcb68886727980878e959ca3aab1b8bfc6cdd4dbe2e9f0" +
		"f7fe050c131a21282f363d444b525960676e757c838a91989fa6adb4bbc2c9d0d7dee5ec" +
		"f3fa01080f161d242b323940474e555c636a71787f868d949ba2a9b0b7bec5ccd3dae1e8" +
		"eff6fd040b121920272e353c434a51585f666d74"

	incrementalVec = "030a11181f262d343b424950575e656c737a81888f969da4abb27f070f071f172f273f37" +
		"2fd7dfc7cff7ffe7efe79f978f87bfb78f979f676f777f474f475f572f273f372f171f07" +
		"0ff7ffe7efe7dfd7cfc7bfb74f575f676f777f878f87959ca3aab1b8bfc6cdd4dbe2e9f0" +
		"f7fe050c131a21282f363d444b525960676e757c838a91989fa6adb4bbc2c9d0d7dee5ec" +
		"f3fa01080f161d242b323940474e555c636a71787f868d949ba2a9b0b7bec5ccd3dae1e8" +
		"eff6fd040b121920272e353c434a51585f666d74"

	shortVec = "a1a9b5bdb981859d91e9e5fdf9f1d5ddc1c9353d3921251d1109057d7971151d2129353d" +
		"39c1c5ddd1e9e5fdf9f1959d8189b5bdb9a1a55d5149457d7971555d2129353d3901051d" +
		"11e9e5fdf9"

	basicShortVec = "959d898185bdb1a9a5dde9f1f5fdc1c9d5dd2921253d3109051d0971757d6169555d4941" +
		"45bdb1a9a59de9f1f5fd8189959da9a1a5bdb149455d4971757d6169151d0901053d3129" +
		"25dde9f1f5"
)

// xorPattern fills n bytes with 7*i + 3 so every window boundary is visible.
func xorPattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*7 + 3)
	}
	return data
}

func TestDecryptEntryNone(t *testing.T) {
	assert := assert.New(t)

	data := xorPattern(64)
	err := decryptEntry(data, &EntryInfo{Encryption: EncryptNone}, nil)
	assert.NoError(err)
	assert.Equal(xorPattern(64), data)
}

func TestDecryptEntryBasicXOR(t *testing.T) {
	assert := assert.New(t)
	key := uint32(150)

	// Only the first 128 bytes are obfuscated; the tail passes through.
	data := xorPattern(200)
	err := decryptEntry(data, &EntryInfo{Encryption: EncryptBasicXOR}, &key)
	assert.NoError(err)
	assert.Equal(mustHex(t, basicVec), data)

	short := xorPattern(77)
	err = decryptEntry(short, &EntryInfo{Encryption: EncryptBasicXOR}, &key)
	assert.NoError(err)
	assert.Equal(mustHex(t, basicShortVec), short)
}

func TestDecryptEntryBasicXORNeedsKey(t *testing.T) {
	data := xorPattern(16)
	err := decryptEntry(data, &EntryInfo{Encryption: EncryptBasicXOR}, nil)
	assert.ErrorContains(t, err, "decryption key is required")
	assert.Equal(t, xorPattern(16), data)
}

func TestDecryptEntryAdvancedXOR(t *testing.T) {
	assert := assert.New(t)

	// CRC and original length place the pad window at [49, 89).
	info := &EntryInfo{
		Encryption:     EncryptAdvancedXOR,
		CRC:            0x9C1D34F2,
		OriginalLength: 0x1234,
	}
	data := xorPattern(200)
	err := decryptEntry(data, info, nil)
	assert.NoError(err)
	assert.Equal(mustHex(t, advancedVec), data)
}

func TestDecryptEntryIncrementalXOR(t *testing.T) {
	assert := assert.New(t)

	// The same record metadata lands the window at [26, 94) here, with the
	// length and CRC roles swapped relative to the advanced scheme.
	info := &EntryInfo{
		Encryption:     EncryptIncrementalXOR,
		CRC:            0x9C1D34F2,
		OriginalLength: 0x1234,
	}
	data := xorPattern(200)
	err := decryptEntry(data, info, nil)
	assert.NoError(err)
	assert.Equal(mustHex(t, incrementalVec), data)
}

// TestDecryptEntryShortEntries covers entries of at most 128 bytes, which
// both windowed schemes cover whole. Their pads then coincide byte for byte.
func TestDecryptEntryShortEntries(t *testing.T) {
	assert := assert.New(t)

	adv := xorPattern(77)
	err := decryptEntry(adv, &EntryInfo{
		Encryption:     EncryptAdvancedXOR,
		CRC:            0xDEADBEEF,
		OriginalLength: 77,
	}, nil)
	assert.NoError(err)
	assert.Equal(mustHex(t, shortVec), adv)

	incr := xorPattern(77)
	err = decryptEntry(incr, &EntryInfo{
		Encryption:     EncryptIncrementalXOR,
		CRC:            0xDEADBEEF,
		OriginalLength: 77,
	}, nil)
	assert.NoError(err)
	assert.Equal(adv, incr)
}

// TestDecryptEntryInvolution checks that every scheme is its own inverse,
// which is what lets one routine serve both directions.
func TestDecryptEntryInvolution(t *testing.T) {
	assert := assert.New(t)
	key := uint32(0xA5)

	cases := []struct {
		name string
		info EntryInfo
		key  *uint32
	}{
		{"basic", EntryInfo{Encryption: EncryptBasicXOR}, &key},
		{"advanced", EntryInfo{Encryption: EncryptAdvancedXOR, CRC: 12345, OriginalLength: 67890}, nil},
		{"incremental", EntryInfo{Encryption: EncryptIncrementalXOR, CRC: 12345, OriginalLength: 67890}, nil},
	}
	for _, tc := range cases {
		data := xorPattern(300)
		assert.NoError(decryptEntry(data, &tc.info, tc.key), tc.name)
		assert.NotEqual(xorPattern(300), data, tc.name)
		assert.NoError(decryptEntry(data, &tc.info, tc.key), tc.name)
		assert.Equal(xorPattern(300), data, tc.name)
	}
}

func TestDecryptEntryUnknownFlag(t *testing.T) {
	err := decryptEntry(xorPattern(8), &EntryInfo{Encryption: Encryption(7)}, nil)
	assert.ErrorContains(t, err, "unknown encryption flag 7")
}
