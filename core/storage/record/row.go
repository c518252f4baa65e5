package record

import (
	"encoding/binary"
	"fmt"

	"github.com/emberdb/storage/core/storage/page"
	"github.com/emberdb/storage/core/storage/storageerr"
)

// RowID locates a row within a table heap: the page it lives on and its
// slot number within that page's slot directory.
type RowID struct {
	PageID page.ID
	Slot   uint32
}

func (r RowID) IsValid() bool { return r.PageID != page.InvalidID }

// Row is an ordered list of fields matching some Schema, plus the slot
// it was read from (zero-value if the row hasn't been placed yet).
type Row struct {
	RID    RowID
	Fields []Field
}

// NewRow builds a Row with no RowID assigned yet.
func NewRow(fields []Field) *Row {
	return &Row{Fields: fields}
}

func nullBitmapSize(fieldCount int) int {
	return (fieldCount + 7) / 8
}

// SerializedSize returns the number of bytes SerializeTo writes, given
// schema describes r's fields.
func (r *Row) SerializedSize() int {
	if len(r.Fields) == 0 {
		return 0
	}
	size := 4 + 4 + 4 // page id + slot + field count
	bitmapSize := nullBitmapSize(len(r.Fields))
	size += 4 + bitmapSize
	for _, f := range r.Fields {
		if !f.IsNull {
			size += f.SerializedSize()
		}
	}
	return size
}

// SerializeTo writes r's on-disk representation — the row's own RowID,
// a null bitmap, and then every non-null field's bytes in column order.
// A row with zero fields serializes to nothing, matching the degenerate
// empty-row case the wire format has always treated as a no-op.
func (r *Row) SerializeTo(buf []byte) int {
	if len(r.Fields) == 0 {
		return 0
	}
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], uint32(r.RID.PageID))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], r.RID.Slot)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(r.Fields)))
	off += 4

	bitmapSize := nullBitmapSize(len(r.Fields))
	binary.LittleEndian.PutUint32(buf[off:], uint32(bitmapSize))
	off += 4
	bitmapOff := off
	for i := range buf[bitmapOff : bitmapOff+bitmapSize] {
		buf[bitmapOff+i] = 0
	}
	off += bitmapSize

	for i, f := range r.Fields {
		if f.IsNull {
			buf[bitmapOff+i/8] |= 1 << (i % 8)
			continue
		}
		off += f.SerializeTo(buf[off:])
	}
	return off
}

// DeserializeRow reads a row whose fields follow the types in columns,
// in order, from buf.
func DeserializeRow(columns []Column, buf []byte) (*Row, int, error) {
	off := 0
	pageID := page.ID(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	slot := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	fieldCount := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	if int(fieldCount) != len(columns) {
		return nil, 0, fmt.Errorf("%w: row has %d fields, schema has %d", storageerr.ErrCorruption, fieldCount, len(columns))
	}

	bitmapSize := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	bitmap := buf[off : off+int(bitmapSize)]
	off += int(bitmapSize)

	fields := make([]Field, fieldCount)
	for i := uint32(0); i < fieldCount; i++ {
		isNull := bitmap[i/8]&(1<<(i%8)) != 0
		if isNull {
			fields[i] = NewNullField(columns[i].Type)
			continue
		}
		f, n, err := DeserializeField(columns[i].Type, columns[i].Length, buf[off:])
		if err != nil {
			return nil, 0, err
		}
		fields[i] = f
		off += n
	}

	return &Row{RID: RowID{PageID: pageID, Slot: slot}, Fields: fields}, off, nil
}

// Project returns a new Row containing only the fields named in
// keyColumns, in that order — used to derive an index key from a row
// fetched from its owning table.
func (r *Row) Project(schema *Schema, keyColumns []string) (*Row, error) {
	fields := make([]Field, len(keyColumns))
	for i, name := range keyColumns {
		idx, err := schema.ColumnIndex(name)
		if err != nil {
			return nil, err
		}
		if int(idx) >= len(r.Fields) {
			return nil, fmt.Errorf("%w: column %q index %d out of range for row with %d fields", storageerr.ErrCorruption, name, idx, len(r.Fields))
		}
		fields[i] = r.Fields[idx]
	}
	return &Row{Fields: fields}, nil
}
