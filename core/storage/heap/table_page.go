// Package heap implements the slotted-page table heap: fixed-size pages
// holding a growing slot directory and variable-length tuple bytes, a
// linked list of such pages forming one table, and an iterator that
// walks rows across page boundaries.
package heap

import (
	"encoding/binary"
	"fmt"

	"github.com/emberdb/storage/core/storage/page"
	"github.com/emberdb/storage/core/storage/record"
	"github.com/emberdb/storage/core/storage/storageerr"
)

const (
	tablePageHeaderSize = 20
	slotSize            = 8
	tombstoneBit        = uint32(1) << 31
)

// TablePage is a thin view over a page.Page's raw bytes, interpreting
// them as: a fixed header, a slot directory that grows from just after
// the header towards the end of the page, and tuple bytes that grow
// from the end of the page back towards the slot directory.
type TablePage struct {
	data []byte
}

// Wrap returns a TablePage view over data, which must be page.Size bytes.
func Wrap(data []byte) *TablePage { return &TablePage{data: data} }

// Init formats data as a brand-new, empty table page.
func (t *TablePage) Init(id, prevPageID page.ID) {
	t.setPageID(id)
	t.SetPrevPageID(prevPageID)
	t.SetNextPageID(page.InvalidID)
	t.setFreeSpacePointer(page.Size)
	t.setTupleCount(0)
}

func (t *TablePage) setPageID(id page.ID)  { binary.LittleEndian.PutUint32(t.data[0:4], uint32(id)) }
func (t *TablePage) PageID() page.ID       { return page.ID(binary.LittleEndian.Uint32(t.data[0:4])) }
func (t *TablePage) PrevPageID() page.ID   { return page.ID(binary.LittleEndian.Uint32(t.data[4:8])) }
func (t *TablePage) SetPrevPageID(id page.ID) {
	binary.LittleEndian.PutUint32(t.data[4:8], uint32(id))
}
func (t *TablePage) NextPageID() page.ID { return page.ID(binary.LittleEndian.Uint32(t.data[8:12])) }
func (t *TablePage) SetNextPageID(id page.ID) {
	binary.LittleEndian.PutUint32(t.data[8:12], uint32(id))
}
func (t *TablePage) freeSpacePointer() uint32 { return binary.LittleEndian.Uint32(t.data[12:16]) }
func (t *TablePage) setFreeSpacePointer(v uint32) {
	binary.LittleEndian.PutUint32(t.data[12:16], v)
}
func (t *TablePage) TupleCount() uint32 { return binary.LittleEndian.Uint32(t.data[16:20]) }
func (t *TablePage) setTupleCount(v uint32) {
	binary.LittleEndian.PutUint32(t.data[16:20], v)
}

func (t *TablePage) slotOffsetField(slot uint32) int { return tablePageHeaderSize + int(slot)*slotSize }

func (t *TablePage) slotOffset(slot uint32) uint32 {
	return binary.LittleEndian.Uint32(t.data[t.slotOffsetField(slot):])
}
func (t *TablePage) setSlotOffset(slot uint32, v uint32) {
	binary.LittleEndian.PutUint32(t.data[t.slotOffsetField(slot):], v)
}
func (t *TablePage) slotSizeRaw(slot uint32) uint32 {
	return binary.LittleEndian.Uint32(t.data[t.slotOffsetField(slot)+4:])
}
func (t *TablePage) setSlotSizeRaw(slot uint32, v uint32) {
	binary.LittleEndian.PutUint32(t.data[t.slotOffsetField(slot)+4:], v)
}

func (t *TablePage) isTombstone(slot uint32) bool {
	return t.slotSizeRaw(slot)&tombstoneBit != 0
}

func (t *TablePage) tupleSize(slot uint32) uint32 {
	return t.slotSizeRaw(slot) &^ tombstoneBit
}

// isLive reports whether slot currently holds readable tuple bytes:
// neither tombstoned-pending nor reclaimed by ApplyDelete.
func (t *TablePage) isLive(slot uint32) bool {
	return !t.isTombstone(slot) && t.tupleSize(slot) > 0
}

func (t *TablePage) freeSpaceRemaining() uint32 {
	directoryEnd := uint32(tablePageHeaderSize) + t.TupleCount()*slotSize
	if directoryEnd > t.freeSpacePointer() {
		return 0
	}
	return t.freeSpacePointer() - directoryEnd
}

// InsertTuple appends serialized tuple bytes to the page, returning the
// slot number. It first looks for a tombstoned slot whose reserved
// space is large enough to hold tuple and reuses it in place; only if
// none fits does it grow the slot directory and claim fresh space. It
// fails with storageerr.ErrOutOfSpace if the page has no room for
// either.
func (t *TablePage) InsertTuple(tuple []byte) (uint32, error) {
	if slot, ok := t.reusableTombstoneSlot(uint32(len(tuple))); ok {
		off := t.slotOffset(slot)
		copy(t.data[off:off+uint32(len(tuple))], tuple)
		t.setSlotSizeRaw(slot, uint32(len(tuple)))
		return slot, nil
	}

	needed := uint32(len(tuple)) + slotSize
	if needed > t.freeSpaceRemaining() {
		return 0, storageerr.ErrOutOfSpace
	}
	newFree := t.freeSpacePointer() - uint32(len(tuple))
	copy(t.data[newFree:newFree+uint32(len(tuple))], tuple)
	t.setFreeSpacePointer(newFree)

	slot := t.TupleCount()
	t.setSlotOffset(slot, newFree)
	t.setSlotSizeRaw(slot, uint32(len(tuple)))
	t.setTupleCount(slot + 1)
	return slot, nil
}

// reusableTombstoneSlot returns the first tombstoned slot whose
// reserved size is at least size, if any.
func (t *TablePage) reusableTombstoneSlot(size uint32) (uint32, bool) {
	for slot := uint32(0); slot < t.TupleCount(); slot++ {
		if t.isTombstone(slot) && t.tupleSize(slot) >= size {
			return slot, true
		}
	}
	return 0, false
}

// GetTuple returns the raw bytes stored at slot, or an error wrapping
// storageerr.ErrNotFound if the slot is out of range or tombstoned.
func (t *TablePage) GetTuple(slot uint32) ([]byte, error) {
	if slot >= t.TupleCount() {
		return nil, fmt.Errorf("%w: slot %d out of range", storageerr.ErrNotFound, slot)
	}
	if !t.isLive(slot) {
		return nil, fmt.Errorf("%w: slot %d deleted", storageerr.ErrNotFound, slot)
	}
	off := t.slotOffset(slot)
	size := t.tupleSize(slot)
	return t.data[off : off+size], nil
}

// MarkDelete tombstones slot without reclaiming its bytes. The slot keeps
// its reserved space: InsertTuple may reuse it for a tuple that fits, and
// ApplyDelete reclaims it.
func (t *TablePage) MarkDelete(slot uint32) error {
	if slot >= t.TupleCount() {
		return fmt.Errorf("%w: slot %d out of range", storageerr.ErrNotFound, slot)
	}
	if !t.isLive(slot) {
		return fmt.Errorf("%w: slot %d already deleted", storageerr.ErrNotFound, slot)
	}
	t.setSlotSizeRaw(slot, t.tupleSize(slot)|tombstoneBit)
	return nil
}

// RollbackDelete reverses a MarkDelete, making slot live again with its
// original bytes intact. It errors if slot is out of range or isn't
// currently tombstoned.
func (t *TablePage) RollbackDelete(slot uint32) error {
	if slot >= t.TupleCount() {
		return fmt.Errorf("%w: slot %d out of range", storageerr.ErrNotFound, slot)
	}
	if !t.isTombstone(slot) {
		return fmt.Errorf("%w: slot %d not deleted", storageerr.ErrNotFound, slot)
	}
	t.setSlotSizeRaw(slot, t.tupleSize(slot))
	return nil
}

// ApplyDelete physically reclaims a tombstoned slot's bytes, compacting
// the tuple-byte region so the freed space becomes available to future
// inserts. The slot number itself stays permanently allocated with size
// zero so other RowIDs on the page, which reference slot numbers
// directly, remain valid; GetTuple on a reclaimed slot keeps failing
// with storageerr.ErrNotFound exactly as it does for a tombstoned one.
func (t *TablePage) ApplyDelete(slot uint32) error {
	if slot >= t.TupleCount() {
		return fmt.Errorf("%w: slot %d out of range", storageerr.ErrNotFound, slot)
	}
	if !t.isTombstone(slot) {
		return fmt.Errorf("%w: slot %d not marked for delete", storageerr.ErrNotFound, slot)
	}

	off := t.slotOffset(slot)
	size := t.tupleSize(slot)
	free := t.freeSpacePointer()

	// Tuple bytes grow down from the end of the page, so everything
	// between free and off is more recently inserted than the tuple
	// being reclaimed and must shift up by size to close the gap.
	copy(t.data[free+size:off+size], t.data[free:off])
	t.setFreeSpacePointer(free + size)

	for s := uint32(0); s < t.TupleCount(); s++ {
		if s == slot {
			continue
		}
		if so := t.slotOffset(s); so < off {
			t.setSlotOffset(s, so+size)
		}
	}

	t.setSlotOffset(slot, 0)
	t.setSlotSizeRaw(slot, 0)
	return nil
}

// UpdateTuple overwrites slot's bytes in place when newTuple fits in
// the slot's existing size; callers must fall back to delete+reinsert
// when it reports storageerr.ErrOutOfSpace.
func (t *TablePage) UpdateTuple(slot uint32, newTuple []byte) error {
	if slot >= t.TupleCount() {
		return fmt.Errorf("%w: slot %d out of range", storageerr.ErrNotFound, slot)
	}
	if !t.isLive(slot) {
		return fmt.Errorf("%w: slot %d deleted", storageerr.ErrNotFound, slot)
	}
	if uint32(len(newTuple)) > t.tupleSize(slot) {
		return storageerr.ErrOutOfSpace
	}
	off := t.slotOffset(slot)
	copy(t.data[off:off+uint32(len(newTuple))], newTuple)
	t.setSlotSizeRaw(slot, uint32(len(newTuple)))
	return nil
}

// FirstTupleSlot returns the lowest live (non-tombstoned) slot number
// on the page, and false if the page has none.
func (t *TablePage) FirstTupleSlot() (uint32, bool) {
	return t.nextTupleSlotFrom(0)
}

// NextTupleSlot returns the lowest live slot number strictly greater
// than after, and false if there isn't one.
func (t *TablePage) NextTupleSlot(after uint32) (uint32, bool) {
	return t.nextTupleSlotFrom(after + 1)
}

func (t *TablePage) nextTupleSlotFrom(start uint32) (uint32, bool) {
	for slot := start; slot < t.TupleCount(); slot++ {
		if t.isLive(slot) {
			return slot, true
		}
	}
	return 0, false
}

// DeserializeTuple reads the row stored at slot according to schema.
func (t *TablePage) DeserializeTuple(slot uint32, schema *record.Schema) (*record.Row, error) {
	raw, err := t.GetTuple(slot)
	if err != nil {
		return nil, err
	}
	row, _, err := record.DeserializeRow(schema.Columns, raw)
	if err != nil {
		return nil, err
	}
	row.RID = record.RowID{PageID: t.PageID(), Slot: slot}
	return row, nil
}
