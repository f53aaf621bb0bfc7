package record

import (
	"encoding/binary"
	"fmt"
)

// Field is one decoded (index, type, bytes) entry of a packed image, plus
// the byte span it occupied in the original buffer so that range hashing
// can reuse the original bytes verbatim rather than re-encoding them.
type Field struct {
	Index uint8
	Type  uint8
	Data  []byte

	start, end int // span within the owning Packed's raw buffer
}

// Packed is a parsed view over a sparse record image. Field.Data slices
// directly into raw; RangeBytes copies the fields it concatenates into a
// new slice.
type Packed struct {
	raw    []byte
	fields []Field
	byIdx  map[uint8]Field
}

// Parse decodes a packed record image into an ordered field list. Fields
// must appear in strictly ascending index order; Parse does not sort.
func Parse(buf []byte) (*Packed, error) {
	p := &Packed{raw: buf, byIdx: make(map[uint8]Field)}
	pos := 0
	var lastIdx int = -1
	for pos < len(buf) {
		if pos+2 > len(buf) {
			return nil, fmt.Errorf("record: truncated field header at byte %d", pos)
		}
		start := pos
		idx := buf[pos]
		typ := buf[pos+1]
		pos += 2
		length, n := binary.Uvarint(buf[pos:])
		if n <= 0 {
			return nil, fmt.Errorf("record: invalid varint length at byte %d", pos)
		}
		pos += n
		if pos+int(length) > len(buf) {
			return nil, fmt.Errorf("record: field %d length %d overruns buffer", idx, length)
		}
		data := buf[pos : pos+int(length)]
		pos += int(length)

		if int(idx) <= lastIdx {
			return nil, fmt.Errorf("record: field index %d out of order", idx)
		}
		lastIdx = int(idx)

		f := Field{Index: idx, Type: typ, Data: data, start: start, end: pos}
		p.fields = append(p.fields, f)
		p.byIdx[idx] = f
	}
	return p, nil
}

// Field returns the decoded field at idx, if present.
func (p *Packed) Field(idx uint8) (Field, bool) {
	f, ok := p.byIdx[idx]
	return f, ok
}

// Fields returns every decoded field, in ascending index order.
func (p *Packed) Fields() []Field {
	out := make([]Field, len(p.fields))
	copy(out, p.fields)
	return out
}

// RangeBytes returns the raw concatenation of the field images whose index
// falls in [fromIndex, toIndex], matching spec §4.A's hash(packed,
// fromIndex, toIndex) input.
func (p *Packed) RangeBytes(fromIndex, toIndex uint8) []byte {
	var out []byte
	for _, f := range p.fields {
		if f.Index < fromIndex || f.Index > toIndex {
			continue
		}
		out = append(out, p.raw[f.start:f.end]...)
	}
	return out
}

// Owner returns the owner field, or nil if absent.
func (p *Packed) Owner() []byte {
	if f, ok := p.byIdx[FieldOwner]; ok {
		return f.Data
	}
	return nil
}

// Embedded returns every field in the reserved sub-schema embedded range
// (200-239), each itself a nested packed image.
func (p *Packed) Embedded() []Field {
	var out []Field
	for _, f := range p.fields {
		if f.Index >= FieldEmbeddedMin && f.Index <= FieldEmbeddedMax {
			out = append(out, f)
		}
	}
	return out
}

// Builder assembles a packed image field by field, in ascending index
// order, for use by tests and by the signing path that must re-pack a
// record after applying a new signature.
type Builder struct {
	fields []Field
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

// Set stores or replaces the field at idx.
func (b *Builder) Set(idx, typ uint8, data []byte) *Builder {
	for i, f := range b.fields {
		if f.Index == idx {
			b.fields[i] = Field{Index: idx, Type: typ, Data: data}
			return b
		}
	}
	b.fields = append(b.fields, Field{Index: idx, Type: typ, Data: data})
	return b
}

// Bytes serializes the builder's fields, sorted ascending by index, into a
// packed image.
func (b *Builder) Bytes() []byte {
	fields := append([]Field(nil), b.fields...)
	for i := 1; i < len(fields); i++ {
		for j := i; j > 0 && fields[j-1].Index > fields[j].Index; j-- {
			fields[j-1], fields[j] = fields[j], fields[j-1]
		}
	}
	var out []byte
	var lenBuf [binary.MaxVarintLen64]byte
	for _, f := range fields {
		out = append(out, f.Index, f.Type)
		n := binary.PutUvarint(lenBuf[:], uint64(len(f.Data)))
		out = append(out, lenBuf[:n]...)
		out = append(out, f.Data...)
	}
	return out
}

// Parse re-parses the builder's current serialization. Useful after Set
// calls when the caller needs field spans (e.g. to hash a range).
func (b *Builder) Parse() (*Packed, error) { return Parse(b.Bytes()) }
