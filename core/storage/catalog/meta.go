// Package catalog implements the on-disk directory of tables and
// indexes: the fixed catalog meta page, per-table and per-index meta
// pages, and the CatalogManager operations that create, look up, and
// drop them.
package catalog

import (
	"encoding/binary"

	"github.com/emberdb/storage/core/storage/page"
)

// MetaPageID is the fixed logical page holding the catalog's table and
// index directories. The original on-disk layout this is grounded on
// reserves physical page 0 for it; since page.ID 0 is this module's
// "no page" sentinel, the storage core reserves logical page 1 instead
// — the first page Engine.Open ever allocates.
const MetaPageID page.ID = 1

type tableEntry struct {
	tableID  uint32
	metaPage page.ID
}

type indexEntry struct {
	indexID  uint32
	metaPage page.ID
}

// catalogMeta is the in-memory form of the catalog meta page: the set
// of (id -> meta page) mappings for every table and index.
type catalogMeta struct {
	nextTableID uint32
	nextIndexID uint32
	tables      []tableEntry
	indexes     []indexEntry
}

func newCatalogMeta() *catalogMeta {
	return &catalogMeta{nextTableID: 1, nextIndexID: 1}
}

func (m *catalogMeta) serializeTo(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], m.nextTableID)
	binary.LittleEndian.PutUint32(buf[4:8], m.nextIndexID)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(m.tables)))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(m.indexes)))
	off := 16
	for _, e := range m.tables {
		binary.LittleEndian.PutUint32(buf[off:], e.tableID)
		binary.LittleEndian.PutUint32(buf[off+4:], uint32(e.metaPage))
		off += 8
	}
	for _, e := range m.indexes {
		binary.LittleEndian.PutUint32(buf[off:], e.indexID)
		binary.LittleEndian.PutUint32(buf[off+4:], uint32(e.metaPage))
		off += 8
	}
}

func deserializeCatalogMeta(buf []byte) *catalogMeta {
	m := &catalogMeta{}
	m.nextTableID = binary.LittleEndian.Uint32(buf[0:4])
	m.nextIndexID = binary.LittleEndian.Uint32(buf[4:8])
	tableCount := binary.LittleEndian.Uint32(buf[8:12])
	indexCount := binary.LittleEndian.Uint32(buf[12:16])
	off := 16
	m.tables = make([]tableEntry, tableCount)
	for i := range m.tables {
		m.tables[i] = tableEntry{
			tableID:  binary.LittleEndian.Uint32(buf[off:]),
			metaPage: page.ID(binary.LittleEndian.Uint32(buf[off+4:])),
		}
		off += 8
	}
	m.indexes = make([]indexEntry, indexCount)
	for i := range m.indexes {
		m.indexes[i] = indexEntry{
			indexID:  binary.LittleEndian.Uint32(buf[off:]),
			metaPage: page.ID(binary.LittleEndian.Uint32(buf[off+4:])),
		}
		off += 8
	}
	return m
}
