package record

import (
	"encoding/binary"
	"fmt"

	"github.com/emberdb/storage/core/storage/storageerr"
)

const schemaMagicNum uint32 = 200715

// Schema is an ordered list of columns describing a table's rows.
type Schema struct {
	Columns []Column
}

// NewSchema builds a Schema from columns in table order.
func NewSchema(columns []Column) *Schema {
	return &Schema{Columns: columns}
}

// ColumnIndex returns the position of the column named name, or an
// error wrapping storageerr.ErrNotFound if no such column exists.
func (s *Schema) ColumnIndex(name string) (uint32, error) {
	for i, c := range s.Columns {
		if c.Name == name {
			return uint32(i), nil
		}
	}
	return 0, fmt.Errorf("%w: column %q", storageerr.ErrNotFound, name)
}

// SerializedSize returns the number of bytes SerializeTo writes.
func (s *Schema) SerializedSize() int {
	size := 4 + 4 // magic + column count
	for _, c := range s.Columns {
		size += c.SerializedSize()
	}
	return size
}

// SerializeTo writes the schema's on-disk representation to buf.
func (s *Schema) SerializeTo(buf []byte) int {
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], schemaMagicNum)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(s.Columns)))
	off += 4
	for _, c := range s.Columns {
		off += c.SerializeTo(buf[off:])
	}
	return off
}

// DeserializeSchema reads a schema from buf and returns it along with
// the number of bytes consumed.
func DeserializeSchema(buf []byte) (*Schema, int, error) {
	off := 0
	magic := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	if magic != schemaMagicNum {
		return nil, 0, fmt.Errorf("%w: bad schema magic %x", storageerr.ErrCorruption, magic)
	}
	count := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	columns := make([]Column, 0, count)
	for i := uint32(0); i < count; i++ {
		col, n, err := DeserializeColumn(buf[off:])
		if err != nil {
			return nil, 0, err
		}
		columns = append(columns, col)
		off += n
	}
	return &Schema{Columns: columns}, off, nil
}
