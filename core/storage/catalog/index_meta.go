package catalog

import (
	"encoding/binary"
	"fmt"

	"github.com/emberdb/storage/core/storage/storageerr"
)

const indexMetaMagic uint32 = 300913

// IndexMeta is the on-disk description of one index: its name, the
// table it indexes, and the key columns (by index into that table's
// schema) it's built over.
type IndexMeta struct {
	IndexID     uint32
	Name        string
	TableID     uint32
	KeyColumns  []uint32
}

func (m *IndexMeta) SerializeTo(buf []byte) int {
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], indexMetaMagic)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], m.IndexID)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(m.Name)))
	off += 4
	copy(buf[off:], m.Name)
	off += len(m.Name)
	binary.LittleEndian.PutUint32(buf[off:], m.TableID)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(m.KeyColumns)))
	off += 4
	for _, c := range m.KeyColumns {
		binary.LittleEndian.PutUint32(buf[off:], c)
		off += 4
	}
	return off
}

func DeserializeIndexMeta(buf []byte) (*IndexMeta, error) {
	off := 0
	magic := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	if magic != indexMetaMagic {
		return nil, fmt.Errorf("%w: bad index meta magic %x", storageerr.ErrCorruption, magic)
	}
	m := &IndexMeta{}
	m.IndexID = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	nameLen := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	m.Name = string(buf[off : off+int(nameLen)])
	off += int(nameLen)
	m.TableID = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	colCount := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	m.KeyColumns = make([]uint32, colCount)
	for i := range m.KeyColumns {
		m.KeyColumns[i] = binary.LittleEndian.Uint32(buf[off:])
		off += 4
	}
	return m, nil
}
