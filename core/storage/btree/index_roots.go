package btree

import (
	"encoding/binary"
	"fmt"

	"github.com/emberdb/storage/core/storage/buffer"
	"github.com/emberdb/storage/core/storage/page"
	"github.com/emberdb/storage/core/storage/storageerr"
)

// IndexRootsPageID is the fixed logical page holding the directory that
// maps every index id to its current root page id — the one piece of
// B+ tree state that can't simply be rediscovered by walking pages,
// since a tree's root moves every time it splits or collapses.
const IndexRootsPageID page.ID = 2

type indexRootEntry struct {
	indexID uint32
	rootID  page.ID
}

// IndexRoots is a thin accessor over the fixed Index Roots page.
type IndexRoots struct {
	bpm *buffer.PoolManager
}

func NewIndexRoots(bpm *buffer.PoolManager) *IndexRoots {
	return &IndexRoots{bpm: bpm}
}

func (ir *IndexRoots) readEntries() ([]indexRootEntry, error) {
	frame, err := ir.bpm.FetchPage(IndexRootsPageID)
	if err != nil {
		return nil, err
	}
	frame.RLock()
	buf := frame.Data()
	count := binary.LittleEndian.Uint32(buf[0:4])
	entries := make([]indexRootEntry, count)
	off := 4
	for i := range entries {
		entries[i] = indexRootEntry{
			indexID: binary.LittleEndian.Uint32(buf[off:]),
			rootID:  page.ID(binary.LittleEndian.Uint32(buf[off+4:])),
		}
		off += 8
	}
	frame.RUnlock()
	if err := ir.bpm.UnpinPage(IndexRootsPageID, false); err != nil {
		return nil, err
	}
	return entries, nil
}

func (ir *IndexRoots) writeEntries(entries []indexRootEntry) error {
	frame, err := ir.bpm.FetchPage(IndexRootsPageID)
	if err != nil {
		return err
	}
	frame.Lock()
	buf := frame.Data()
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(entries)))
	off := 4
	for _, e := range entries {
		binary.LittleEndian.PutUint32(buf[off:], e.indexID)
		binary.LittleEndian.PutUint32(buf[off+4:], uint32(e.rootID))
		off += 8
	}
	frame.Unlock()
	return ir.bpm.UnpinPage(IndexRootsPageID, true)
}

// GetRoot returns indexID's current root page id.
func (ir *IndexRoots) GetRoot(indexID uint32) (page.ID, error) {
	entries, err := ir.readEntries()
	if err != nil {
		return page.InvalidID, err
	}
	for _, e := range entries {
		if e.indexID == indexID {
			return e.rootID, nil
		}
	}
	return page.InvalidID, fmt.Errorf("%w: index %d has no recorded root", storageerr.ErrNotFound, indexID)
}

// SetRoot inserts or updates indexID's root page id.
func (ir *IndexRoots) SetRoot(indexID uint32, rootID page.ID) error {
	entries, err := ir.readEntries()
	if err != nil {
		return err
	}
	for i, e := range entries {
		if e.indexID == indexID {
			entries[i].rootID = rootID
			return ir.writeEntries(entries)
		}
	}
	entries = append(entries, indexRootEntry{indexID: indexID, rootID: rootID})
	return ir.writeEntries(entries)
}

// DeleteRoot removes indexID's entry entirely, used when an index is
// dropped.
func (ir *IndexRoots) DeleteRoot(indexID uint32) error {
	entries, err := ir.readEntries()
	if err != nil {
		return err
	}
	for i, e := range entries {
		if e.indexID == indexID {
			entries = append(entries[:i], entries[i+1:]...)
			return ir.writeEntries(entries)
		}
	}
	return nil
}
