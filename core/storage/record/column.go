// Package record implements the on-disk row format: columns, schemas,
// typed fields, and the row codec that (de)serializes them to and from
// table page slots.
package record

import (
	"encoding/binary"
	"fmt"

	"github.com/emberdb/storage/core/storage/storageerr"
)

const columnMagicNum uint32 = 210928

// Type identifies a column's value kind.
type Type uint32

const (
	TypeInvalid Type = iota
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
	TypeBool
	TypeVarchar
	TypeChar
)

// Column describes one field of a table's schema.
type Column struct {
	Name       string
	Type       Type
	Length     uint32 // fixed capacity in bytes: TypeVarchar's max, or TypeChar's exact width
	TableIndex uint32 // this column's position within its owning Schema
	Nullable   bool
	Unique     bool
}

// NewFixedColumn builds a column of a fixed-width type that isn't
// length-parameterized (everything but TypeVarchar and TypeChar).
func NewFixedColumn(name string, typ Type, index uint32, nullable, unique bool) (Column, error) {
	if typ == TypeVarchar || typ == TypeChar {
		return Column{}, fmt.Errorf("%w: use NewVarcharColumn/NewCharColumn for %v", storageerr.ErrInvalidArgument, typ)
	}
	return Column{Name: name, Type: typ, TableIndex: index, Nullable: nullable, Unique: unique}, nil
}

// NewVarcharColumn builds a variable-length column with a maximum
// storage capacity of length bytes; shorter values are length-prefixed,
// not padded.
func NewVarcharColumn(name string, length, index uint32, nullable, unique bool) Column {
	return Column{Name: name, Type: TypeVarchar, Length: length, TableIndex: index, Nullable: nullable, Unique: unique}
}

// NewCharColumn builds a fixed-width char(length) column: every value
// occupies exactly length bytes on disk, zero-padded.
func NewCharColumn(name string, length, index uint32, nullable, unique bool) Column {
	return Column{Name: name, Type: TypeChar, Length: length, TableIndex: index, Nullable: nullable, Unique: unique}
}

// FixedLength returns the number of bytes a fixed-width column's value
// occupies: c.Length for TypeChar, 0 for TypeVarchar (length-prefixed).
func (c Column) FixedLength() uint32 {
	switch c.Type {
	case TypeInt32, TypeFloat32:
		return 4
	case TypeInt64, TypeFloat64:
		return 8
	case TypeBool:
		return 1
	case TypeChar:
		return c.Length
	default:
		return 0
	}
}

// SerializedSize returns the number of bytes SerializeTo writes for c.
func (c Column) SerializedSize() int {
	return 4 + 4 + len(c.Name) + 4 + 4 + 4 + 4 + 4
}

// SerializeTo writes c's on-disk representation to buf, which must have
// at least SerializedSize bytes available.
func (c Column) SerializeTo(buf []byte) int {
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], columnMagicNum)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(c.Name)))
	off += 4
	copy(buf[off:], c.Name)
	off += len(c.Name)
	binary.LittleEndian.PutUint32(buf[off:], uint32(c.Type))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], c.Length)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], c.TableIndex)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], boolToUint32(c.Nullable))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], boolToUint32(c.Unique))
	off += 4
	return off
}

// DeserializeColumn reads a column from buf and returns it along with
// the number of bytes consumed.
func DeserializeColumn(buf []byte) (Column, int, error) {
	off := 0
	magic := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	if magic != columnMagicNum {
		return Column{}, 0, fmt.Errorf("%w: bad column magic %x", storageerr.ErrCorruption, magic)
	}
	nameLen := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	name := string(buf[off : off+int(nameLen)])
	off += int(nameLen)
	typ := Type(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	length := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	tableIndex := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	nullable := binary.LittleEndian.Uint32(buf[off:]) != 0
	off += 4
	unique := binary.LittleEndian.Uint32(buf[off:]) != 0
	off += 4
	return Column{Name: name, Type: typ, Length: length, TableIndex: tableIndex, Nullable: nullable, Unique: unique}, off, nil
}

func boolToUint32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
