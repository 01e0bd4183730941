package npk

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/elliotchance/orderedmap/v3"
)

// binxmlMagic opens every binary-packed document.
var binxmlMagic = []byte{0xC1, 0x59, 0x41, 0x0D}

// Attribute payload type codes. Both string codes carry the same
// NUL-terminated payload.
const (
	attrTypeString    = 0x01
	attrTypeUint32    = 0x02
	attrTypeStringAlt = 0x03
	attrTypeInt32     = 0x05
	attrTypeMatrix    = 0x06
	attrTypeUint64    = 0x08
)

// Element is one node of a decoded document. Attrs preserves document order;
// a name repeated within one tag keeps its first position and takes the last
// value. Decoded values are canonical strings regardless of their packed
// type.
type Element struct {
	Name     string
	Attrs    *orderedmap.OrderedMap[string, string]
	Children []*Element
}

// ParseBinaryXML decodes a binary-packed document into its element forest.
//
// The layout is: 4-byte magic, declared file size (unused), the element name
// table, the attribute name table, the attribute area offset (unused), a
// varint tag count, the (name id, child count) tag list, and one attribute
// block per tag. Documents may have any number of roots; bytes past the last
// attribute block are ignored.
//
// Malformed structure is reported as ErrFormat and text that is not UTF-8 as
// ErrEncoding, both with the offset at which decoding stopped.
func ParseBinaryXML(data []byte) ([]*Element, error) {
	r := NewReader(data)

	magic, err := r.Take(4)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(magic, binxmlMagic) {
		return nil, fmt.Errorf("%w: bad magic % x", ErrFormat, magic)
	}
	if _, err := r.ReadUint64(); err != nil { // declared file size
		return nil, err
	}

	elemNames, err := readNameTable(r)
	if err != nil {
		return nil, err
	}
	attrNames, err := readNameTable(r)
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadUint64(); err != nil { // attribute area offset
		return nil, err
	}

	tags, err := readTags(r, elemNames)
	if err != nil {
		return nil, err
	}
	attrs, err := readAttributes(r, len(tags), attrNames)
	if err != nil {
		return nil, err
	}
	return buildForest(tags, attrs), nil
}

// readNameTable decodes a varint count followed by that many NUL-terminated
// UTF-8 names. Ids are positions in the returned slice.
func readNameTable(r *Reader) ([]string, error) {
	n, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	// Every name takes at least its terminator byte.
	if n > uint64(r.Remaining()) {
		return nil, fmt.Errorf("%w: name table count %d exceeds %d remaining bytes at offset %d",
			ErrFormat, n, r.Remaining(), r.Offset())
	}
	names := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		s, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		names = append(names, s)
	}
	return names, nil
}

// tagRecord is one entry of the tag list: a resolved element name and the
// number of following tags it claims as children.
type tagRecord struct {
	name     string
	children uint64
}

// readTags decodes the tag list, resolving each name id against the element
// name table.
func readTags(r *Reader, names []string) ([]tagRecord, error) {
	n, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	// Every tag takes at least two varint bytes.
	if n > uint64(r.Remaining())/2 {
		return nil, fmt.Errorf("%w: tag count %d exceeds %d remaining bytes at offset %d",
			ErrFormat, n, r.Remaining(), r.Offset())
	}
	tags := make([]tagRecord, 0, n)
	for i := uint64(0); i < n; i++ {
		id, err := r.ReadUvarint()
		if err != nil {
			return nil, err
		}
		if id >= uint64(len(names)) {
			return nil, fmt.Errorf("%w: element name id %d out of range (table has %d) at offset %d",
				ErrFormat, id, len(names), r.Offset())
		}
		count, err := r.ReadUvarint()
		if err != nil {
			return nil, err
		}
		tags = append(tags, tagRecord{name: names[id], children: count})
	}
	return tags, nil
}

// attrTerminator closes every attribute block.
var attrTerminator = []byte{0x01, 0x00}

// readAttributes decodes one attribute block per tag: a 1-byte attribute
// count, that many (name id, type code, payload) triples, and the 2-byte
// terminator.
func readAttributes(r *Reader, tags int, names []string) ([]*orderedmap.OrderedMap[string, string], error) {
	blocks := make([]*orderedmap.OrderedMap[string, string], 0, tags)
	for t := 0; t < tags; t++ {
		count, err := r.ReadUint8()
		if err != nil {
			return nil, err
		}
		attrs := orderedmap.NewOrderedMap[string, string]()
		for a := 0; a < int(count); a++ {
			id, err := r.ReadUint8()
			if err != nil {
				return nil, err
			}
			if int(id) >= len(names) {
				return nil, fmt.Errorf("%w: attribute name id %d out of range (table has %d) at offset %d",
					ErrFormat, id, len(names), r.Offset())
			}
			code, err := r.ReadUint8()
			if err != nil {
				return nil, err
			}
			value, err := readAttrValue(r, code)
			if err != nil {
				return nil, err
			}
			attrs.Set(names[id], value)
		}
		term, err := r.Take(2)
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(term, attrTerminator) {
			return nil, fmt.Errorf("%w: unexpected attribute terminator % x at offset %d",
				ErrFormat, term, r.Offset())
		}
		blocks = append(blocks, attrs)
	}
	return blocks, nil
}

// readAttrValue decodes one attribute payload into its canonical string form.
func readAttrValue(r *Reader, code uint8) (string, error) {
	switch code {
	case attrTypeString, attrTypeStringAlt:
		return r.ReadString()
	case attrTypeUint32:
		v, err := r.ReadUint32()
		if err != nil {
			return "", err
		}
		return strconv.FormatUint(uint64(v), 10), nil
	case attrTypeInt32:
		v, err := r.ReadInt32()
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(int64(v), 10), nil
	case attrTypeMatrix:
		return readMatrix(r)
	case attrTypeUint64:
		v, err := r.ReadUint64()
		if err != nil {
			return "", err
		}
		return strconv.FormatUint(v, 10), nil
	default:
		return "", fmt.Errorf("%w: unknown attribute type 0x%02X at offset %d",
			ErrFormat, code, r.Offset())
	}
}

// readMatrix decodes a float32 run and joins the values with commas, four
// decimal places each.
func readMatrix(r *Reader) (string, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return "", err
	}
	if uint64(n)*4 > uint64(r.Remaining()) {
		return "", fmt.Errorf("%w: matrix of %d floats exceeds %d remaining bytes at offset %d",
			ErrFormat, n, r.Remaining(), r.Offset())
	}
	var sb strings.Builder
	for i := uint32(0); i < n; i++ {
		f, err := r.ReadFloat32()
		if err != nil {
			return "", err
		}
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'f', 4, 64))
	}
	return sb.String(), nil
}

// buildForest threads the flat tag list into trees. Tags arrive in document
// order; a FIFO of open parents tracks how many children each still claims.
// Parents whose claim is exhausted retire before every placement, so a tag
// that finds the queue empty starts a new root.
func buildForest(tags []tagRecord, attrs []*orderedmap.OrderedMap[string, string]) []*Element {
	type slot struct {
		node      *Element
		remaining uint64
	}
	var roots []*Element
	queue := make([]slot, 0, len(tags))
	head := 0
	for i := range tags {
		el := &Element{Name: tags[i].name, Attrs: attrs[i]}
		for head < len(queue) && queue[head].remaining == 0 {
			head++
		}
		if head == len(queue) {
			roots = append(roots, el)
		} else {
			front := &queue[head]
			front.node.Children = append(front.node.Children, el)
			front.remaining--
		}
		if tags[i].children > 0 {
			queue = append(queue, slot{node: el, remaining: tags[i].children})
		}
	}
	return roots
}
