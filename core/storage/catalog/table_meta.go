package catalog

import (
	"encoding/binary"
	"fmt"

	"github.com/emberdb/storage/core/storage/page"
	"github.com/emberdb/storage/core/storage/record"
	"github.com/emberdb/storage/core/storage/storageerr"
)

const tableMetaMagic uint32 = 300815

// TableMeta is the on-disk description of one table: its name, the
// first page of its heap, and its schema.
type TableMeta struct {
	TableID     uint32
	Name        string
	FirstPageID page.ID
	Schema      *record.Schema
}

func (m *TableMeta) SerializeTo(buf []byte) int {
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], tableMetaMagic)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], m.TableID)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(m.Name)))
	off += 4
	copy(buf[off:], m.Name)
	off += len(m.Name)
	binary.LittleEndian.PutUint32(buf[off:], uint32(m.FirstPageID))
	off += 4
	off += m.Schema.SerializeTo(buf[off:])
	return off
}

func DeserializeTableMeta(buf []byte) (*TableMeta, error) {
	off := 0
	magic := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	if magic != tableMetaMagic {
		return nil, fmt.Errorf("%w: bad table meta magic %x", storageerr.ErrCorruption, magic)
	}
	m := &TableMeta{}
	m.TableID = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	nameLen := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	m.Name = string(buf[off : off+int(nameLen)])
	off += int(nameLen)
	m.FirstPageID = page.ID(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	schema, n, err := record.DeserializeSchema(buf[off:])
	if err != nil {
		return nil, err
	}
	m.Schema = schema
	off += n
	return m, nil
}
