package heap

import (
	"github.com/emberdb/storage/core/storage/page"
	"github.com/emberdb/storage/core/storage/record"
)

// Iterator walks every live row of a TableHeap in page, then slot,
// order. A zero-value Iterator is not ready to use; construct one with
// NewIterator.
type Iterator struct {
	heap       *TableHeap
	currentID  page.ID
	currentRow *record.Row
	done       bool
}

// NewIterator returns an iterator positioned before the first row of h.
// Call Next to advance to (and read) each row in turn.
func NewIterator(h *TableHeap) *Iterator {
	return &Iterator{heap: h, currentID: h.firstPageID}
}

// Next advances the iterator and reports whether a row is now
// available via Row. It returns false once every page has been
// exhausted, and also if fetching a page or decoding a row fails; the
// iterator does not report which of the two ended the scan.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}

	for it.currentID != page.InvalidID {
		frame, err := it.heap.bpm.FetchPage(it.currentID)
		if err != nil {
			it.done = true
			return false
		}
		frame.RLock()
		tp := Wrap(frame.Data())

		var slot uint32
		var ok bool
		if it.currentRow != nil && it.currentRow.RID.PageID == it.currentID {
			slot, ok = tp.NextTupleSlot(it.currentRow.RID.Slot)
		} else {
			slot, ok = tp.FirstTupleSlot()
		}

		if ok {
			row, derr := tp.DeserializeTuple(slot, it.heap.schema)
			frame.RUnlock()
			it.heap.bpm.UnpinPage(it.currentID, false)
			if derr != nil {
				it.done = true
				return false
			}
			it.currentRow = row
			return true
		}

		nextID := tp.NextPageID()
		frame.RUnlock()
		it.heap.bpm.UnpinPage(it.currentID, false)
		it.currentID = nextID
		it.currentRow = nil
	}

	it.done = true
	return false
}

// Row returns the row the most recent successful Next positioned on.
func (it *Iterator) Row() *record.Row { return it.currentRow }
