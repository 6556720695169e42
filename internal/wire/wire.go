// Package wire holds the protocol-buffer primitives used by the span encoder:
// varint sizing and a growable byte writer.
package wire

import (
	"math/bits"
)

// WireType is the low three bits of a field tag.
type WireType uint8

const (
	VarintType  WireType = 0
	Fixed64Type WireType = 1
	BytesType   WireType = 2
	Fixed32Type WireType = 5
)

const (
	// MaxVarintLen32 is the longest encoding of a uint32.
	MaxVarintLen32 = 5
	// MaxVarintLen64 is the longest encoding of a uint64.
	MaxVarintLen64 = 10
)

// SizeVarint32 returns the number of bytes v occupies as a base-128 varint.
func SizeVarint32(v uint32) int {
	return (bits.Len32(v|1) + 6) / 7
}

// SizeVarint64 returns the number of bytes v occupies as a base-128 varint.
func SizeVarint64(v uint64) int {
	return (bits.Len64(v|1) + 6) / 7
}

// MakeTag composes a field tag.
func MakeTag(field int, wt WireType) uint32 {
	return uint32(field)<<3 | uint32(wt)
}

// SizeTag returns the encoded size of the tag for field. The wire type never
// changes the size.
func SizeTag(field int) int {
	return SizeVarint32(uint32(field) << 3)
}

// SizeLengthDelimited returns the size of a LEN field whose content is n bytes:
// tag, length prefix and content.
func SizeLengthDelimited(field, n int) int {
	return SizeTag(field) + SizeVarint64(uint64(n)) + n
}

// SizeVarintField returns the size of a VARINT field holding v.
func SizeVarintField(field int, v uint64) int {
	return SizeTag(field) + SizeVarint64(v)
}

// SizeFixed32Field returns the size of an I32 field.
func SizeFixed32Field(field int) int {
	return SizeTag(field) + 4
}

// SizeFixed64Field returns the size of an I64 field.
func SizeFixed64Field(field int) int {
	return SizeTag(field) + 8
}
