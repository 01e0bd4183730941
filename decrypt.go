package npk

import (
	"errors"
	"fmt"
)

// decryptEntry undoes an entry's XOR obfuscation in place. data holds the
// stored bytes exactly as sliced from the archive; the window and pad of each
// scheme derive from the entry's index record. Only the basic scheme needs a
// caller-provided key.
func decryptEntry(data []byte, info *EntryInfo, key *uint32) error {
	switch info.Encryption {
	case EncryptNone:
		return nil
	case EncryptBasicXOR:
		if key == nil {
			return errors.New("a decryption key is required for this entry")
		}
		basicXOR(data, *key)
	case EncryptAdvancedXOR:
		advancedXOR(data, info)
	case EncryptIncrementalXOR:
		incrementalXOR(data, info)
	default:
		return fmt.Errorf("unknown encryption flag %d", uint16(info.Encryption))
	}
	return nil
}

// basicXOR applies a pad of successive key bytes to at most the first 128
// bytes, indexed modulo 0xff.
func basicXOR(data []byte, key uint32) {
	size := min(len(data), 0x80)
	var pad [0x100]byte
	for i := range pad {
		pad[i] = byte(uint32(i) + key)
	}
	for j := 0; j < size; j++ {
		data[j] ^= pad[j%0xff]
	}
}

// advancedXOR applies a pad seeded from the entry's CRC and original length.
// Entries longer than 128 bytes obfuscate only a CRC-positioned window of at
// most 0x7F bytes; shorter entries are covered whole.
func advancedXOR(data []byte, info *EntryInfo) {
	seed := info.CRC ^ info.OriginalLength
	start := 0
	size := len(data)
	if size > 0x80 {
		start = int((info.CRC >> 1) % uint32(size-0x80))
		size = int((2*uint64(info.OriginalLength))%0x60) + 0x20
	}
	var pad [0x81]byte
	for i := range pad {
		pad[i] = byte(uint32(i) + seed)
	}
	for j := 0; j < size; j++ {
		data[start+j] ^= pad[j%0x80]
	}
}

// incrementalXOR applies a single key byte that increments per position. The
// window placement mirrors advancedXOR with the length and CRC roles
// swapped.
func incrementalXOR(data []byte, info *EntryInfo) {
	key := byte(info.OriginalLength ^ info.CRC)
	offset := 0
	length := len(data)
	if length > 0x80 {
		offset = int((info.OriginalLength >> 1) % uint32(length-0x80))
		length = int((info.CRC<<1)%0x60) + 0x20
	}
	for j := 0; j < length; j++ {
		data[offset+j] ^= key
		key++
	}
}
