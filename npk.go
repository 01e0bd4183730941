// Package npk unpacks the NPK game-asset container family and the formats
// packed inside it.
//
// An archive is a flat file: a 24-byte header, entry payloads, and an index
// of fixed-size records located by the header. Each record carries the
// offsets, lengths, checksums, and the compression and obfuscation flags of
// one entry. Extraction walks a fixed pipeline per entry: slice the stored
// bytes, undo the XOR scheme, decompress, strip the rotor or NXS3 envelope
// when one is present, then sniff the payload's file type. The package also
// exposes the primitives the pipeline is built on: a binary tag-tree decoder
// for the engine's XML dialect, the rotor stream cipher, and the content
// hash that names entries in archives without a filename table. All
// operations work over fully materialized in-memory buffers; the package
// never touches the filesystem or network.
package npk

import (
	"bytes"
	"crypto/rc4"
	"errors"
	"fmt"
)

// ErrArchive reports a malformed or unsupported archive.
var ErrArchive = errors.New("npk: invalid archive")

// Archive magics.
var (
	magicNXPK = []byte("NXPK")
	magicEXPK = []byte("EXPK")
)

// Index record sizes. Records grew by four bytes when signatures widened to
// 64 bits.
const (
	indexEntrySize32 = 28
	indexEntrySize64 = 32
)

// rc4IndexKey decrypts the index block of archives with hash mode 3.
const rc4IndexKey = "61ea476e-8201-11e5-864b-fcaa147137b7"

// Compression identifies how an entry's stored bytes are compressed.
type Compression uint16

const (
	CompressNone Compression = 0
	CompressZlib Compression = 1
	CompressLZ4  Compression = 2
	CompressZstd Compression = 3
)

func (c Compression) String() string {
	switch c {
	case CompressNone:
		return "NONE"
	case CompressZlib:
		return "ZLIB"
	case CompressLZ4:
		return "LZ4"
	case CompressZstd:
		return "ZSTANDARD"
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint16(c))
}

// Encryption identifies the XOR scheme applied to an entry's stored bytes.
type Encryption uint16

const (
	EncryptNone           Encryption = 0
	EncryptBasicXOR       Encryption = 1
	EncryptAdvancedXOR    Encryption = 2
	EncryptIncrementalXOR Encryption = 4
)

func (e Encryption) String() string {
	switch e {
	case EncryptNone:
		return "NONE"
	case EncryptBasicXOR:
		return "BASIC_XOR"
	case EncryptAdvancedXOR:
		return "ADVANCED_XOR"
	case EncryptIncrementalXOR:
		return "INCREMENTAL_XOR"
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint16(e))
}

// EntryFlags records what the extraction pipeline observed about an entry.
type EntryFlags uint8

const (
	// FlagText marks entries whose extracted bytes look like text.
	FlagText EntryFlags = 1 << iota
	// FlagNXS3Wrapped marks entries that arrived inside an NXS3 envelope.
	FlagNXS3Wrapped
	// FlagRotorWrapped marks entries that arrived inside a rotor envelope.
	FlagRotorWrapped
)

// ReadOptions adjusts how Open parses an archive.
type ReadOptions struct {
	// Key is the shared secret for entries under the basic XOR scheme.
	// Leave nil when the archive has none.
	Key *uint32

	// IndexSize overrides index record size detection when nonzero.
	IndexSize int
}

// EntryInfo is one parsed index record.
type EntryInfo struct {
	// Signature identifies the entry, usually a content hash of its
	// original filename. 32 bits in older archives, 64 in newer ones.
	Signature uint64

	// Offset and Length locate the stored bytes in the file.
	Offset uint32
	Length uint32

	// OriginalLength is the entry's size once decompressed.
	OriginalLength uint32

	// CompressedCRC and CRC checksum the stored and decompressed bytes.
	CompressedCRC uint32
	CRC           uint32

	Compression Compression
	Encryption  Encryption

	// Name is the entry's path from the archive's filename table, empty
	// when the archive has none.
	Name string
}

// Entry is a fully extracted archive member.
type Entry struct {
	EntryInfo

	// Data holds the entry's bytes after the whole pipeline has run.
	Data []byte

	Flags    EntryFlags
	Ext      string
	Category Category
}

// Filename names the entry for output: the table-provided path when the
// archive has one, otherwise the hex signature with the detected extension.
func (e *Entry) Filename() string {
	if e.Name != "" {
		return e.Name
	}
	return fmt.Sprintf("0x%x.%s", e.Signature, e.Ext)
}

// Archive is an opened NPK container. Open parses the whole index up front;
// entry payloads are extracted on demand.
type Archive struct {
	data        []byte
	index       []EntryInfo
	key         *uint32
	encryptMode uint32
	hashMode    uint32
	entrySize   int
}

// Open parses the archive held in data. The buffer is retained by the
// returned Archive and must not be modified while it is in use. opts may be
// nil.
func Open(data []byte, opts *ReadOptions) (*Archive, error) {
	const headerSize = 24
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: file of %d bytes is too short for a header",
			ErrArchive, len(data))
	}
	magic := data[:4]
	switch {
	case bytes.Equal(magic, magicNXPK):
	case bytes.Equal(magic, magicEXPK):
		return nil, fmt.Errorf("%w: EXPK archives require an external key schedule",
			ErrArchive)
	default:
		return nil, fmt.Errorf("%w: bad magic % x", ErrArchive, magic)
	}

	count := int(bo.Uint32(data[4:]))
	// data[8:12] is reserved
	encryptMode := bo.Uint32(data[12:])
	hashMode := bo.Uint32(data[16:])
	indexOffset := bo.Uint32(data[20:])

	a := &Archive{
		data:        data,
		encryptMode: encryptMode,
		hashMode:    hashMode,
	}
	if opts != nil {
		a.key = opts.Key
		a.entrySize = opts.IndexSize
	}
	if count == 0 {
		return a, nil
	}

	if a.entrySize == 0 {
		if encryptMode == 256 || hashMode == 2 {
			a.entrySize = indexEntrySize32
		} else if uint64(indexOffset) < uint64(len(data)) {
			a.entrySize = (len(data) - int(indexOffset)) / count
		}
	}
	switch a.entrySize {
	case indexEntrySize32, indexEntrySize64:
	default:
		return nil, fmt.Errorf("%w: index records of %d bytes (want %d or %d)",
			ErrArchive, a.entrySize, indexEntrySize32, indexEntrySize64)
	}

	indexEnd := uint64(indexOffset) + uint64(count)*uint64(a.entrySize)
	if indexEnd > uint64(len(data)) {
		return nil, fmt.Errorf("%w: index needs %d bytes, file has %d",
			ErrArchive, indexEnd, len(data))
	}
	raw := data[indexOffset:indexEnd]

	// Archives either carry a plaintext filename table after the index or
	// encrypt the index itself, never both.
	var names [][]byte
	switch {
	case hashMode == 2:
		names = parseNameList(data, int(indexEnd))
	case hashMode == 3:
		c, err := rc4.NewCipher([]byte(rc4IndexKey))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrArchive, err)
		}
		dec := make([]byte, len(raw))
		c.XORKeyStream(dec, raw)
		raw = dec
	case encryptMode == 256:
		names = parseNameList(data, int(indexEnd)+16)
	}

	a.index = make([]EntryInfo, count)
	for i := range a.index {
		rec := raw[i*a.entrySize : (i+1)*a.entrySize]
		info := &a.index[i]

		if a.entrySize == indexEntrySize64 {
			info.Signature = bo.Uint64(rec)
			rec = rec[8:]
		} else {
			info.Signature = uint64(bo.Uint32(rec))
			rec = rec[4:]
		}
		info.Offset = bo.Uint32(rec)
		info.Length = bo.Uint32(rec[4:])
		info.OriginalLength = bo.Uint32(rec[8:])
		info.CompressedCRC = bo.Uint32(rec[12:])
		info.CRC = bo.Uint32(rec[16:])

		zip := bo.Uint16(rec[20:])
		if zip == 5 { // still LZ4
			zip = 2
		}
		info.Compression = Compression(zip)

		enc := bo.Uint16(rec[22:])
		if enc == 3 { // still advanced XOR
			enc = 2
		}
		info.Encryption = Encryption(enc)

		if i < len(names) {
			info.Name = string(names[i])
		}
	}
	return a, nil
}

// parseNameList splits the NUL-separated filename table that follows the
// index in archives built with one.
func parseNameList(data []byte, start int) [][]byte {
	if start < 0 || start >= len(data) {
		return nil
	}
	var names [][]byte
	for _, name := range bytes.Split(data[start:], []byte{0x00}) {
		if len(name) > 0 {
			names = append(names, name)
		}
	}
	return names
}

// Len returns the number of entries in the archive.
func (a *Archive) Len() int { return len(a.index) }

// EncryptMode reports the header's encryption mode field.
func (a *Archive) EncryptMode() uint32 { return a.encryptMode }

// HashMode reports the header's hash mode field.
func (a *Archive) HashMode() uint32 { return a.hashMode }

// EntrySize reports the index record size in bytes, zero for an empty
// archive opened without an override.
func (a *Archive) EntrySize() int { return a.entrySize }

// Info returns the parsed index record of entry i.
func (a *Archive) Info(i int) (EntryInfo, error) {
	if i < 0 || i >= len(a.index) {
		return EntryInfo{}, fmt.Errorf("%w: entry index %d out of range (archive has %d)",
			ErrArchive, i, len(a.index))
	}
	return a.index[i], nil
}

// FindName locates the entry whose signature matches the content hash of
// name. Archives without a filename table identify entries this way.
func (a *Archive) FindName(name string) (int, bool) {
	want := uint64(MeshHash(name))
	for i := range a.index {
		if a.index[i].Signature == want {
			return i, true
		}
	}
	return -1, false
}

// Extract runs the extraction pipeline over entry i: slice the stored
// bytes, undo the XOR scheme, decompress, strip rotor and NXS3 envelopes,
// and sniff the payload's file type. The returned entry owns its data; the
// archive's backing buffer is never aliased.
func (a *Archive) Extract(i int) (*Entry, error) {
	info, err := a.Info(i)
	if err != nil {
		return nil, err
	}
	entry := &Entry{EntryInfo: info}

	end := uint64(info.Offset) + uint64(info.Length)
	if end > uint64(len(a.data)) {
		return nil, fmt.Errorf("%w: entry %d spans [%d, %d) beyond file of %d bytes",
			ErrArchive, i, info.Offset, end, len(a.data))
	}
	data := bytes.Clone(a.data[info.Offset:end])

	if err := decryptEntry(data, &info, a.key); err != nil {
		return nil, fmt.Errorf("%w: entry %d: %v", ErrArchive, i, err)
	}

	if info.Compression != CompressNone {
		data, err = decompressEntry(data, &info)
		if err != nil {
			if a.key != nil {
				return nil, fmt.Errorf("%w: entry %d: %v (is the decryption key correct?)",
					ErrArchive, i, err)
			}
			return nil, fmt.Errorf("%w: entry %d: %v", ErrArchive, i, err)
		}
	}

	if IsRotorWrapped(data) {
		entry.Flags |= FlagRotorWrapped
		if data, err = UnwrapRotor(data); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	if IsNXS3Wrapped(data) {
		entry.Flags |= FlagNXS3Wrapped
		if data, err = UnwrapNXS3(data); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}

	if !IsBinaryData(data) {
		entry.Flags |= FlagText
	}
	entry.Data = data
	entry.Ext = DetectExt(data, entry.Flags)
	entry.Category = FileCategory(entry.Ext)
	return entry, nil
}
