package usb

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Field is one fixed-width value inside a descriptor record.
//
// The set of fields is closed: values come from the constructors in this
// file, and header fields such as bLength are only available as derived
// fields computed from the enclosing record at compose time.
type Field interface {
	Width() int
	encode(dst []byte, f *frame) error
}

// frame carries the properties of the record being encoded that derived
// fields read from.
type frame struct {
	record string
	dtype  DescriptorType
	length int
	total  int
}

// Tag is a closed set of byte-wide constants.
type Tag interface {
	~uint8
	Valid() bool
	String() string
}

type valueField struct {
	width int
	v     uint64
}

func (v valueField) Width() int { return v.width }

func (v valueField) encode(dst []byte, _ *frame) error {
	switch v.width {
	case 1:
		dst[0] = uint8(v.v)
	case 2:
		binary.LittleEndian.PutUint16(dst, uint16(v.v))
	case 3:
		dst[0] = uint8(v.v)
		dst[1] = uint8(v.v >> 8)
		dst[2] = uint8(v.v >> 16)
	case 4:
		binary.LittleEndian.PutUint32(dst, uint32(v.v))
	}
	return nil
}

func U8(v uint8) Field   { return valueField{1, uint64(v)} }
func U16(v uint16) Field { return valueField{2, uint64(v)} }
func U32(v uint32) Field { return valueField{4, uint64(v)} }

// I16 encodes a two's-complement 16-bit value.
func I16(v int16) Field { return valueField{2, uint64(uint16(v))} }

// U24 encodes the low 24 bits of v, as used by audio sample frequencies.
func U24(v uint32) Field { return valueField{3, uint64(v & 0xFFFFFF)} }

type rawField []byte

func (r rawField) Width() int { return len(r) }

func (r rawField) encode(dst []byte, _ *frame) error {
	copy(dst, r)
	return nil
}

// Bytes is a fixed run of raw bytes, written as given.
func Bytes(b ...byte) Field { return rawField(append([]byte(nil), b...)) }

// Reserved is n zero bytes.
func Reserved(n int) Field { return rawField(make([]byte, n)) }

type tagField[T Tag] struct{ v T }

func (t tagField[T]) Width() int { return 1 }

func (t tagField[T]) encode(dst []byte, f *frame) error {
	if !t.v.Valid() {
		return fmt.Errorf("%s: %w: %s", f.record, ErrInvalidTag, t.v)
	}
	dst[0] = uint8(t.v)
	return nil
}

// Tagged is a byte whose value must be a member of its tag set.
func Tagged[T Tag](v T) Field { return tagField[T]{v} }

type guidField uuid.UUID

func (g guidField) Width() int { return 16 }

// encode writes the GUID with its first three groups little-endian, the
// layout used by video class format descriptors.
func (g guidField) encode(dst []byte, _ *frame) error {
	dst[0], dst[1], dst[2], dst[3] = g[3], g[2], g[1], g[0]
	dst[4], dst[5] = g[5], g[4]
	dst[6], dst[7] = g[7], g[6]
	copy(dst[8:16], g[8:16])
	return nil
}

// GUID is a 16-byte GUID field.
func GUID(u uuid.UUID) Field { return guidField(u) }

// BCDField is a 16-bit binary-coded-decimal release number.
func BCDField(b BCD) Field { return U16(uint16(b)) }

type lengthField struct{}

func (lengthField) Width() int { return 1 }

func (lengthField) encode(dst []byte, f *frame) error {
	if f.length > 0xFF {
		return fmt.Errorf("%s: %w: %d", f.record, ErrLengthOverflow, f.length)
	}
	dst[0] = uint8(f.length)
	return nil
}

// Length is bLength, the byte count of the enclosing record's own fields.
func Length() Field { return lengthField{} }

type typeField struct{}

func (typeField) Width() int { return 1 }

func (typeField) encode(dst []byte, f *frame) error {
	if !f.dtype.Valid() {
		return fmt.Errorf("%s: %w: %s", f.record, ErrInvalidTag, f.dtype)
	}
	dst[0] = uint8(f.dtype)
	return nil
}

// Type is bDescriptorType, taken from the enclosing record.
func Type() Field { return typeField{} }

type totalLengthField struct{}

func (totalLengthField) Width() int { return 2 }

func (totalLengthField) encode(dst []byte, f *frame) error {
	if f.total > 0xFFFF {
		return fmt.Errorf("%s: %w: %d", f.record, ErrTotalLengthOverflow, f.total)
	}
	binary.LittleEndian.PutUint16(dst, uint16(f.total))
	return nil
}

// TotalLength is wTotalLength: the enclosing record's own bytes plus every
// record nested under it.
func TotalLength() Field { return totalLengthField{} }

type countField struct{ n int }

func (countField) Width() int { return 1 }

func (c countField) encode(dst []byte, f *frame) error {
	if c.n > 0xFF {
		return fmt.Errorf("%s: %w: %d", f.record, ErrCountOverflow, c.n)
	}
	dst[0] = uint8(c.n)
	return nil
}

// Count is a byte holding the length of a list that the record lays out
// itself, such as baInterfaceNr.
func Count(n int) Field { return countField{n} }

// CountOf is the cardinality of a collection, as in bNumEndpoints.
func CountOf(c Collection) Field { return countField{Len(c)} }

// InterfaceCountOf is the number of distinct interface numbers among the
// interface records of c, as in bNumInterfaces. Alternate settings of one
// interface count once.
func InterfaceCountOf(c Collection) Field { return countField{interfaceCount(c)} }

type maxPowerField Power

func (maxPowerField) Width() int { return 1 }

func (p maxPowerField) encode(dst []byte, f *frame) error {
	if p > 510 {
		return fmt.Errorf("%s: %w: %d mA", f.record, ErrPowerOverflow, p)
	}
	dst[0] = Power(p).Units()
	return nil
}

// MaxPowerField is bMaxPower in 2 mA units.
func MaxPowerField(p Power) Field { return maxPowerField(p) }
