package npk

import (
	"bytes"
	"compress/zlib"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math/big"
	"math/bits"
	"slices"
	"strings"
	"sync"

	"github.com/bkaradzic/go-lz4"
	"github.com/klauspost/compress/zstd"
)

// decompressEntry expands stored bytes according to the entry's compression
// flag. The index's original length sizes the output buffer and, for LZ4, is
// the promised block length.
func decompressEntry(data []byte, info *EntryInfo) ([]byte, error) {
	switch info.Compression {
	case CompressNone:
		return data, nil
	case CompressZlib:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		var buf bytes.Buffer
		buf.Grow(int(info.OriginalLength))
		if _, err := io.Copy(&buf, zr); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressLZ4:
		// The block decoder wants the decompressed length prepended.
		src := make([]byte, 4+len(data))
		bo.PutUint32(src, info.OriginalLength)
		copy(src[4:], data)
		return lz4.Decode(make([]byte, info.OriginalLength), src)
	case CompressZstd:
		return zstdDecoder().DecodeAll(data, nil)
	default:
		return nil, fmt.Errorf("unknown compression flag %d", uint16(info.Compression))
	}
}

var (
	zstdOnce sync.Once
	zstdDec  *zstd.Decoder
)

// zstdDecoder returns the shared zstandard decoder. DecodeAll on it is safe
// for concurrent use.
func zstdDecoder() *zstd.Decoder {
	zstdOnce.Do(func() {
		var err error
		zstdDec, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
		if err != nil {
			panic(err)
		}
	})
	return zstdDec
}

// IsRotorWrapped reports whether data begins with one of the rotor envelope
// markers.
func IsRotorWrapped(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0x1D, 0x04}) ||
		bytes.HasPrefix(data, []byte{0x15, 0x23})
}

// builtinRotorKey assembles the fixed cipher key of rotor-wrapped payloads
// from its fragments.
func builtinRotorKey() []byte {
	const (
		dn = "j2h56ogodh3se"
		dt = "=dziaq."
		df = `|os=5v7!"-234`
	)
	var sb strings.Builder
	sb.WriteString(strings.Repeat(dn, 4))
	sb.WriteString(strings.Repeat(dt+dn+df, 5))
	sb.WriteString("!#")
	sb.WriteString(strings.Repeat(dt, 7))
	sb.WriteString(strings.Repeat(df, 2))
	sb.WriteString("*&'")
	return []byte(sb.String())
}

// UnwrapRotor reverses the rotor envelope: stream-decrypt the whole buffer,
// marker included, with the built-in key, inflate the result, XOR the first
// 128 bytes of the plaintext with 154, and reverse it.
func UnwrapRotor(data []byte) ([]byte, error) {
	plain := NewRotor(builtinRotorKey()).Decrypt(nil, data)
	zr, err := zlib.NewReader(bytes.NewReader(plain))
	if err != nil {
		return nil, fmt.Errorf("%w: rotor payload: %v", ErrArchive, err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: rotor payload: %v", ErrArchive, err)
	}
	n := min(len(out), 128)
	for i := 0; i < n; i++ {
		out[i] ^= 154
	}
	slices.Reverse(out)
	return out, nil
}

// nxs3Magic opens an NXS3-enveloped payload.
var nxs3Magic = []byte("NXS3\x03\x00\x00\x01")

// IsNXS3Wrapped reports whether data begins with the NXS3 envelope magic.
func IsNXS3Wrapped(data []byte) bool {
	return bytes.HasPrefix(data, nxs3Magic)
}

// nxs3KeyPEM recovers the ephemeral payload key from the envelope's RSA
// block.
const nxs3KeyPEM = `-----BEGIN RSA PUBLIC KEY-----
MIGJAoGBAOZAaZe2qB7dpT9Y8WfZIdDv+ooS1HsFEDW2hFnnvcuFJ4vIuPgKhISm
pY4/jT3aipwPNVTjM6yHbzOLhrnGJh7Ec3CQG/FZu6VKoCqVEtCeh15hjcu6QYtn
YWIEf8qgkylqsOQ3IIn76udV6m0AWC2jDlmLeRcR04w9NNw7+9t9AgMBAAE=
-----END RSA PUBLIC KEY-----`

var nxs3Key = mustParsePKCS1PublicKey(nxs3KeyPEM)

func mustParsePKCS1PublicKey(pemText string) *rsa.PublicKey {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		panic("npk: no PEM block in embedded key")
	}
	key, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		panic(err)
	}
	return key
}

// UnwrapNXS3 reverses the NXS3 envelope. Bytes [20, 148) hold an RSA block
// whose public-key operation recovers a 4-byte little-endian ephemeral key;
// the payload after it is a rolling XOR stream under that key, which evolves
// after every fourth byte. The 148-byte envelope is dropped from the result.
func UnwrapNXS3(data []byte) ([]byte, error) {
	const (
		keyStart     = 20
		payloadStart = keyStart + 128
	)
	if len(data) < payloadStart {
		return nil, fmt.Errorf("%w: NXS3 envelope needs %d bytes, have %d",
			ErrArchive, payloadStart, len(data))
	}
	recovered, err := rsaPublicDecrypt(nxs3Key, data[keyStart:payloadStart])
	if err != nil {
		return nil, fmt.Errorf("%w: NXS3 key block: %v", ErrArchive, err)
	}
	if len(recovered) < 4 {
		return nil, fmt.Errorf("%w: NXS3 key block recovered only %d bytes",
			ErrArchive, len(recovered))
	}
	key := bo.Uint32(recovered[:4])

	out := make([]byte, len(data)-payloadStart)
	for i, b := range data[payloadStart:] {
		out[i] = b ^ byte(key>>(i%4*8))
		if i%4 == 3 {
			ror := bits.RotateLeft32(key, -19)
			key = ror + ror<<2 + 0xE6546B64
		}
	}
	return out, nil
}

// rsaPublicDecrypt runs the raw public-key operation on a signature-style
// block and strips its PKCS #1 v1.5 padding. Padding bytes between the 00 01
// header and the 00 separator are not themselves verified.
func rsaPublicDecrypt(key *rsa.PublicKey, sig []byte) ([]byte, error) {
	k := (key.N.BitLen() + 7) / 8
	if len(sig) != k {
		return nil, fmt.Errorf("block is %d bytes, key expects %d", len(sig), k)
	}
	m := new(big.Int).Exp(new(big.Int).SetBytes(sig), big.NewInt(int64(key.E)), key.N)
	em := m.FillBytes(make([]byte, k))
	if em[0] != 0x00 || em[1] != 0x01 {
		return nil, errors.New("bad padding header")
	}
	sep := bytes.IndexByte(em[2:], 0x00)
	if sep < 0 {
		return nil, errors.New("unterminated padding")
	}
	return em[2+sep+1:], nil
}
