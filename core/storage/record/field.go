package record

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/emberdb/storage/core/storage/storageerr"
)

// Field holds one column's value for a single row. A Field with IsNull
// set carries no value bytes: on disk, Row records nullness in its null
// bitmap rather than in the field's own bytes.
type Field struct {
	Type   Type
	IsNull bool

	i32    int32
	i64    int64
	f32    float32
	f64    float64
	b      bool
	str    string
	length uint32 // TypeChar's fixed on-disk width; unused by every other type
}

func NewInt32Field(v int32) Field     { return Field{Type: TypeInt32, i32: v} }
func NewInt64Field(v int64) Field     { return Field{Type: TypeInt64, i64: v} }
func NewFloat32Field(v float32) Field { return Field{Type: TypeFloat32, f32: v} }
func NewFloat64Field(v float64) Field { return Field{Type: TypeFloat64, f64: v} }
func NewBoolField(v bool) Field       { return Field{Type: TypeBool, b: v} }
func NewVarcharField(v string) Field  { return Field{Type: TypeVarchar, str: v} }

// NewCharField builds a fixed-width char field. v must be no longer
// than width; shorter values are zero-padded on serialization.
func NewCharField(v string, width uint32) Field {
	return Field{Type: TypeChar, str: v, length: width}
}
func NewNullField(t Type) Field { return Field{Type: t, IsNull: true} }

func (f Field) Int32() int32     { return f.i32 }
func (f Field) Int64() int64     { return f.i64 }
func (f Field) Float32() float32 { return f.f32 }
func (f Field) Float64() float64 { return f.f64 }
func (f Field) Bool() bool       { return f.b }
func (f Field) String() string   { return f.str }

// SerializedSize returns the number of bytes SerializeTo writes for a
// non-null field of this type. Varchar fields are length-prefixed;
// Char fields occupy their fixed width; everything else is fixed-width.
func (f Field) SerializedSize() int {
	switch f.Type {
	case TypeInt32, TypeFloat32:
		return 4
	case TypeInt64, TypeFloat64:
		return 8
	case TypeBool:
		return 1
	case TypeVarchar:
		return 4 + len(f.str)
	case TypeChar:
		return int(f.length)
	default:
		return 0
	}
}

// SerializeTo writes f's value bytes to buf. Callers must not call this
// for a null field — Row skips null fields entirely per its bitmap.
func (f Field) SerializeTo(buf []byte) int {
	switch f.Type {
	case TypeInt32:
		binary.LittleEndian.PutUint32(buf, uint32(f.i32))
		return 4
	case TypeInt64:
		binary.LittleEndian.PutUint64(buf, uint64(f.i64))
		return 8
	case TypeFloat32:
		binary.LittleEndian.PutUint32(buf, math.Float32bits(f.f32))
		return 4
	case TypeFloat64:
		binary.LittleEndian.PutUint64(buf, math.Float64bits(f.f64))
		return 8
	case TypeBool:
		if f.b {
			buf[0] = 1
		} else {
			buf[0] = 0
		}
		return 1
	case TypeVarchar:
		binary.LittleEndian.PutUint32(buf, uint32(len(f.str)))
		copy(buf[4:], f.str)
		return 4 + len(f.str)
	case TypeChar:
		n := copy(buf[:f.length], f.str)
		for i := n; i < int(f.length); i++ {
			buf[i] = 0
		}
		return int(f.length)
	default:
		return 0
	}
}

// DeserializeField reads a non-null field of type typ from buf. width
// is only consulted for TypeChar, whose on-disk size isn't
// self-describing the way Varchar's length prefix is.
func DeserializeField(typ Type, width uint32, buf []byte) (Field, int, error) {
	switch typ {
	case TypeInt32:
		return Field{Type: typ, i32: int32(binary.LittleEndian.Uint32(buf))}, 4, nil
	case TypeInt64:
		return Field{Type: typ, i64: int64(binary.LittleEndian.Uint64(buf))}, 8, nil
	case TypeFloat32:
		return Field{Type: typ, f32: math.Float32frombits(binary.LittleEndian.Uint32(buf))}, 4, nil
	case TypeFloat64:
		return Field{Type: typ, f64: math.Float64frombits(binary.LittleEndian.Uint64(buf))}, 8, nil
	case TypeBool:
		return Field{Type: typ, b: buf[0] != 0}, 1, nil
	case TypeVarchar:
		n := binary.LittleEndian.Uint32(buf)
		return Field{Type: typ, str: string(buf[4 : 4+n])}, 4 + int(n), nil
	case TypeChar:
		raw := buf[:width]
		end := len(raw)
		for end > 0 && raw[end-1] == 0 {
			end--
		}
		return Field{Type: typ, str: string(raw[:end]), length: width}, int(width), nil
	default:
		return Field{}, 0, fmt.Errorf("%w: unknown column type %d", storageerr.ErrCorruption, typ)
	}
}
