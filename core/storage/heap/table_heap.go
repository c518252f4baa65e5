package heap

import (
	"fmt"

	"github.com/emberdb/storage/core/storage/buffer"
	"github.com/emberdb/storage/core/storage/page"
	"github.com/emberdb/storage/core/storage/record"
	"github.com/emberdb/storage/core/storage/storageerr"
	"github.com/emberdb/storage/core/storage/txnhooks"
	"go.uber.org/zap"
)

// TableHeap is a linked list of TablePages holding every row of one
// table, grown one page at a time as earlier pages fill up.
type TableHeap struct {
	bpm         *buffer.PoolManager
	schema      *record.Schema
	firstPageID page.ID
	logManager  txnhooks.LogManager
	logger      *zap.Logger
}

// Create allocates a brand-new, empty table heap (a single page) and
// returns it.
func Create(bpm *buffer.PoolManager, schema *record.Schema, logManager txnhooks.LogManager, logger *zap.Logger) (*TableHeap, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	frame, err := bpm.NewPage()
	if err != nil {
		return nil, err
	}
	tp := Wrap(frame.Data())
	tp.Init(frame.ID(), page.InvalidID)
	firstPageID := frame.ID()
	if err := bpm.UnpinPage(firstPageID, true); err != nil {
		return nil, err
	}
	return &TableHeap{bpm: bpm, schema: schema, firstPageID: firstPageID, logManager: logManager, logger: logger}, nil
}

// Open reconstructs a TableHeap handle for an existing heap whose first
// page is firstPageID.
func Open(bpm *buffer.PoolManager, schema *record.Schema, firstPageID page.ID, logManager txnhooks.LogManager, logger *zap.Logger) *TableHeap {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TableHeap{bpm: bpm, schema: schema, firstPageID: firstPageID, logManager: logManager, logger: logger}
}

func (h *TableHeap) FirstPageID() page.ID { return h.firstPageID }

const maxTupleSize = page.Size - tablePageHeaderSize - slotSize

// InsertTuple serializes row and appends it to the first page with
// room, allocating a new page at the end of the list if none has any.
// On success row.RID is set to the tuple's new location.
func (h *TableHeap) InsertTuple(row *record.Row) error {
	size := row.SerializedSize()
	if size > maxTupleSize {
		return fmt.Errorf("%w: tuple of %d bytes exceeds max %d", storageerr.ErrInvalidArgument, size, maxTupleSize)
	}
	buf := make([]byte, size)
	row.SerializeTo(buf)

	currentID := h.firstPageID
	var lastID page.ID
	for currentID != page.InvalidID {
		frame, err := h.bpm.FetchPage(currentID)
		if err != nil {
			return err
		}
		frame.Lock()
		tp := Wrap(frame.Data())
		slot, insErr := tp.InsertTuple(buf)
		if insErr == nil {
			row.RID = record.RowID{PageID: currentID, Slot: slot}
			frame.Unlock()
			return h.bpm.UnpinPage(currentID, true)
		}
		nextID := tp.NextPageID()
		frame.Unlock()
		if err := h.bpm.UnpinPage(currentID, false); err != nil {
			return err
		}
		lastID = currentID
		currentID = nextID
	}

	newFrame, err := h.bpm.NewPage()
	if err != nil {
		return err
	}
	newTP := Wrap(newFrame.Data())
	newTP.Init(newFrame.ID(), lastID)
	slot, insErr := newTP.InsertTuple(buf)
	if insErr != nil {
		h.bpm.UnpinPage(newFrame.ID(), false)
		return insErr
	}
	row.RID = record.RowID{PageID: newFrame.ID(), Slot: slot}
	newPageID := newFrame.ID()
	if err := h.bpm.UnpinPage(newPageID, true); err != nil {
		return err
	}

	lastFrame, err := h.bpm.FetchPage(lastID)
	if err != nil {
		return err
	}
	lastFrame.Lock()
	Wrap(lastFrame.Data()).SetNextPageID(newPageID)
	lastFrame.Unlock()
	return h.bpm.UnpinPage(lastID, true)
}

// GetTuple fetches and deserializes the row at rid.
func (h *TableHeap) GetTuple(rid record.RowID) (*record.Row, error) {
	frame, err := h.bpm.FetchPage(rid.PageID)
	if err != nil {
		return nil, err
	}
	frame.RLock()
	row, err := Wrap(frame.Data()).DeserializeTuple(rid.Slot, h.schema)
	frame.RUnlock()
	if unpinErr := h.bpm.UnpinPage(rid.PageID, false); unpinErr != nil && err == nil {
		err = unpinErr
	}
	return row, err
}

// MarkDelete tombstones the row at rid without reclaiming its bytes.
func (h *TableHeap) MarkDelete(rid record.RowID) error {
	frame, err := h.bpm.FetchPage(rid.PageID)
	if err != nil {
		return err
	}
	frame.Lock()
	err = Wrap(frame.Data()).MarkDelete(rid.Slot)
	frame.Unlock()
	if unpinErr := h.bpm.UnpinPage(rid.PageID, err == nil); unpinErr != nil && err == nil {
		err = unpinErr
	}
	return err
}

// RollbackDelete reverses a MarkDelete on rid, making the row readable
// again with its original bytes intact.
func (h *TableHeap) RollbackDelete(rid record.RowID) error {
	frame, err := h.bpm.FetchPage(rid.PageID)
	if err != nil {
		return err
	}
	frame.Lock()
	err = Wrap(frame.Data()).RollbackDelete(rid.Slot)
	frame.Unlock()
	if unpinErr := h.bpm.UnpinPage(rid.PageID, err == nil); unpinErr != nil && err == nil {
		err = unpinErr
	}
	return err
}

// ApplyDelete physically reclaims the bytes of a row already tombstoned
// by MarkDelete, compacting the page so the space is available to later
// inserts. rid.Slot itself stays allocated and unreadable.
func (h *TableHeap) ApplyDelete(rid record.RowID) error {
	frame, err := h.bpm.FetchPage(rid.PageID)
	if err != nil {
		return err
	}
	frame.Lock()
	err = Wrap(frame.Data()).ApplyDelete(rid.Slot)
	frame.Unlock()
	if unpinErr := h.bpm.UnpinPage(rid.PageID, err == nil); unpinErr != nil && err == nil {
		err = unpinErr
	}
	return err
}

// UpdateTuple replaces the row at rid with newRow. If the new
// serialized size doesn't fit in the old slot, it falls back to
// deleting the old tuple and inserting the new bytes as a fresh row,
// in which case rid no longer names it — callers should use newRow.RID
// after a call that took this path.
func (h *TableHeap) UpdateTuple(rid record.RowID, newRow *record.Row) error {
	size := newRow.SerializedSize()
	buf := make([]byte, size)
	newRow.SerializeTo(buf)

	frame, err := h.bpm.FetchPage(rid.PageID)
	if err != nil {
		return err
	}
	frame.Lock()
	updErr := Wrap(frame.Data()).UpdateTuple(rid.Slot, buf)
	frame.Unlock()
	if updErr == nil {
		return h.bpm.UnpinPage(rid.PageID, true)
	}
	if updErr != storageerr.ErrOutOfSpace {
		h.bpm.UnpinPage(rid.PageID, false)
		return updErr
	}
	if err := h.bpm.UnpinPage(rid.PageID, false); err != nil {
		return err
	}

	if err := h.MarkDelete(rid); err != nil {
		return err
	}
	newRow.RID = record.RowID{}
	return h.InsertTuple(newRow)
}

// Schema returns the schema every tuple on this heap is encoded with.
func (h *TableHeap) Schema() *record.Schema { return h.schema }

// BufferPool returns the buffer pool this heap reads and writes through,
// used by TableIterator to cross page boundaries.
func (h *TableHeap) BufferPool() *buffer.PoolManager { return h.bpm }
