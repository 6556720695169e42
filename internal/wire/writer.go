package wire

import (
	"encoding/binary"
	"math"
)

// minGrowSize is the buffer length used when growing an empty buffer.
const minGrowSize = 64

// Writer appends protobuf primitives to a byte buffer owned by the writer.
//
// Every write first tries a fast path that writes straight into the buffer
// when the remaining room is known to be sufficient. Otherwise it falls back to
// writing one byte at a time, doubling the buffer whenever the cursor reaches
// its end. Writes never fail; growth is unbounded.
//
// A Writer is not safe for concurrent use.
type Writer struct {
	buf   []byte
	pos   int
	grows int
}

// NewWriter returns a writer that starts writing buf at offset. The full
// capacity of buf is available to the writer.
func NewWriter(buf []byte, offset int) *Writer {
	w := &Writer{}
	w.Reset(buf, offset)
	return w
}

// Reset points the writer at buf, with the cursor at offset. Bytes before
// offset are preserved.
func (w *Writer) Reset(buf []byte, offset int) {
	if offset < 0 {
		panic("wire: negative offset")
	}
	buf = buf[:cap(buf)]
	if offset > len(buf) {
		nb := make([]byte, offset)
		copy(nb, buf)
		buf = nb
	}
	w.buf = buf
	w.pos = offset
	w.grows = 0
}

// Pos returns the cursor.
func (w *Writer) Pos() int { return w.pos }

// Bytes returns the written range [0, Pos()). The slice aliases the writer's
// buffer and is overwritten by later writes after a Reset.
func (w *Writer) Bytes() []byte { return w.buf[:w.pos] }

// Buffer returns the whole backing buffer, including the unused tail, so a
// caller can hand it back on the next Reset.
func (w *Writer) Buffer() []byte { return w.buf }

// Grows reports how many times the buffer was reallocated since the last Reset.
func (w *Writer) Grows() int { return w.grows }

// Grow makes sure at least n more bytes fit without reallocating.
func (w *Writer) Grow(n int) {
	if w.pos+n <= len(w.buf) {
		return
	}
	size := 2 * len(w.buf)
	if size < w.pos+n {
		size = w.pos + n
	}
	w.realloc(size)
}

func (w *Writer) realloc(size int) {
	if size < minGrowSize {
		size = minGrowSize
	}
	nb := make([]byte, size)
	copy(nb, w.buf[:w.pos])
	w.buf = nb
	w.grows++
}

// writeByteSlow is the correctness backstop for every write: it checks for
// room before each byte and doubles the buffer when the cursor hits the end.
func (w *Writer) writeByteSlow(b byte) {
	if w.pos == len(w.buf) {
		w.realloc(2 * len(w.buf))
	}
	w.buf[w.pos] = b
	w.pos++
}

// WriteTag writes (field << 3) | wt as a varint.
func (w *Writer) WriteTag(field int, wt WireType) {
	w.WriteVarint32(MakeTag(field, wt))
}

// WriteVarint32 writes v as a base-128 varint.
func (w *Writer) WriteVarint32(v uint32) {
	w.WriteVarint64(uint64(v))
}

// WriteVarint64 writes v as a base-128 varint.
func (w *Writer) WriteVarint64(v uint64) {
	if w.pos+SizeVarint64(v) <= len(w.buf) {
		buf := w.buf
		for v >= 0x80 {
			buf[w.pos] = byte(v) | 0x80
			v >>= 7
			w.pos++
		}
		buf[w.pos] = byte(v)
		w.pos++
		return
	}
	for v >= 0x80 {
		w.writeByteSlow(byte(v) | 0x80)
		v >>= 7
	}
	w.writeByteSlow(byte(v))
}

// WriteFixed32 writes v as four little-endian bytes.
func (w *Writer) WriteFixed32(v uint32) {
	if w.pos+4 <= len(w.buf) {
		binary.LittleEndian.PutUint32(w.buf[w.pos:], v)
		w.pos += 4
		return
	}
	for i := 0; i < 4; i++ {
		w.writeByteSlow(byte(v >> (8 * i)))
	}
}

// WriteFixed64 writes v as eight little-endian bytes.
func (w *Writer) WriteFixed64(v uint64) {
	if w.pos+8 <= len(w.buf) {
		binary.LittleEndian.PutUint64(w.buf[w.pos:], v)
		w.pos += 8
		return
	}
	for i := 0; i < 8; i++ {
		w.writeByteSlow(byte(v >> (8 * i)))
	}
}

// WriteLength writes the length prefix of a LEN field. The content is
// written separately by the caller.
func (w *Writer) WriteLength(n int) {
	w.WriteVarint64(uint64(n))
}

// WriteRaw copies b into the buffer.
func (w *Writer) WriteRaw(b []byte) {
	if w.pos+len(b) <= len(w.buf) {
		w.pos += copy(w.buf[w.pos:], b)
		return
	}
	for _, c := range b {
		w.writeByteSlow(c)
	}
}

// WriteRawString copies the bytes of s into the buffer.
func (w *Writer) WriteRawString(s string) {
	if w.pos+len(s) <= len(w.buf) {
		w.pos += copy(w.buf[w.pos:], s)
		return
	}
	for i := 0; i < len(s); i++ {
		w.writeByteSlow(s[i])
	}
}

// WriteString writes a LEN field holding the UTF-8 bytes of s.
func (w *Writer) WriteString(field int, s string) {
	w.WriteTag(field, BytesType)
	w.WriteLength(len(s))
	w.WriteRawString(s)
}

// WriteBytes writes a LEN field holding b.
func (w *Writer) WriteBytes(field int, b []byte) {
	w.WriteTag(field, BytesType)
	w.WriteLength(len(b))
	w.WriteRaw(b)
}

// WriteMessageHeader writes the tag and length prefix of an embedded message
// whose content is size bytes.
func (w *Writer) WriteMessageHeader(field, size int) {
	w.WriteTag(field, BytesType)
	w.WriteLength(size)
}

// WriteVarintField writes a VARINT field.
func (w *Writer) WriteVarintField(field int, v uint64) {
	w.WriteTag(field, VarintType)
	w.WriteVarint64(v)
}

// WriteFixed32Field writes an I32 field.
func (w *Writer) WriteFixed32Field(field int, v uint32) {
	w.WriteTag(field, Fixed32Type)
	w.WriteFixed32(v)
}

// WriteFixed64Field writes an I64 field.
func (w *Writer) WriteFixed64Field(field int, v uint64) {
	w.WriteTag(field, Fixed64Type)
	w.WriteFixed64(v)
}

// WriteDouble writes an I64 field holding the IEEE 754 bits of v.
func (w *Writer) WriteDouble(field int, v float64) {
	w.WriteFixed64Field(field, math.Float64bits(v))
}

// WriteBool writes a VARINT field holding 0 or 1.
func (w *Writer) WriteBool(field int, v bool) {
	var b uint64
	if v {
		b = 1
	}
	w.WriteVarintField(field, b)
}

// WriteInt64 writes a VARINT field holding the two's complement bits of v.
// Negative values take ten bytes.
func (w *Writer) WriteInt64(field int, v int64) {
	w.WriteVarintField(field, uint64(v))
}
