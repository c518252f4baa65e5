package heap

import (
	"testing"

	"github.com/emberdb/storage/core/storage/page"
	"github.com/emberdb/storage/core/storage/storageerr"
	"github.com/stretchr/testify/require"
)

func TestTablePage_InsertGetTuple(t *testing.T) {
	buf := make([]byte, page.Size)
	tp := Wrap(buf)
	tp.Init(page.ID(1), page.InvalidID)

	slot, err := tp.InsertTuple([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, uint32(0), slot)

	got, err := tp.GetTuple(slot)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
	require.Equal(t, uint32(1), tp.TupleCount())
}

func TestTablePage_MarkDeleteTombstones(t *testing.T) {
	buf := make([]byte, page.Size)
	tp := Wrap(buf)
	tp.Init(page.ID(1), page.InvalidID)

	slot, err := tp.InsertTuple([]byte("x"))
	require.NoError(t, err)

	require.NoError(t, tp.MarkDelete(slot))
	_, err = tp.GetTuple(slot)
	require.Error(t, err)

	require.Error(t, tp.MarkDelete(slot), "double delete should fail")
}

func TestTablePage_UpdateInPlace(t *testing.T) {
	buf := make([]byte, page.Size)
	tp := Wrap(buf)
	tp.Init(page.ID(1), page.InvalidID)

	slot, err := tp.InsertTuple([]byte("abcdef"))
	require.NoError(t, err)

	require.NoError(t, tp.UpdateTuple(slot, []byte("xyz")))
	got, err := tp.GetTuple(slot)
	require.NoError(t, err)
	require.Equal(t, []byte("xyz"), got)
}

func TestTablePage_UpdateTooLargeFails(t *testing.T) {
	buf := make([]byte, page.Size)
	tp := Wrap(buf)
	tp.Init(page.ID(1), page.InvalidID)

	slot, err := tp.InsertTuple([]byte("abc"))
	require.NoError(t, err)

	err = tp.UpdateTuple(slot, []byte("abcdefgh"))
	require.ErrorIs(t, err, storageerr.ErrOutOfSpace)
}

func TestTablePage_InsertFailsWhenFull(t *testing.T) {
	buf := make([]byte, page.Size)
	tp := Wrap(buf)
	tp.Init(page.ID(1), page.InvalidID)

	big := make([]byte, page.Size)
	count := 0
	for {
		_, err := tp.InsertTuple(big[:64])
		if err != nil {
			break
		}
		count++
	}
	require.Greater(t, count, 0)
}

func TestTablePage_IterateSlotsSkipsTombstones(t *testing.T) {
	buf := make([]byte, page.Size)
	tp := Wrap(buf)
	tp.Init(page.ID(1), page.InvalidID)

	s0, _ := tp.InsertTuple([]byte("a"))
	s1, _ := tp.InsertTuple([]byte("b"))
	s2, _ := tp.InsertTuple([]byte("c"))
	require.NoError(t, tp.MarkDelete(s1))

	first, ok := tp.FirstTupleSlot()
	require.True(t, ok)
	require.Equal(t, s0, first)

	next, ok := tp.NextTupleSlot(first)
	require.True(t, ok)
	require.Equal(t, s2, next, "tombstoned slot 1 should be skipped")

	_, ok = tp.NextTupleSlot(next)
	require.False(t, ok)
}

func TestTablePage_RollbackDeleteRestoresTuple(t *testing.T) {
	buf := make([]byte, page.Size)
	tp := Wrap(buf)
	tp.Init(page.ID(1), page.InvalidID)

	slot, err := tp.InsertTuple([]byte("restoreme"))
	require.NoError(t, err)

	require.NoError(t, tp.MarkDelete(slot))
	_, err = tp.GetTuple(slot)
	require.Error(t, err)

	require.NoError(t, tp.RollbackDelete(slot))
	got, err := tp.GetTuple(slot)
	require.NoError(t, err)
	require.Equal(t, []byte("restoreme"), got)

	require.Error(t, tp.RollbackDelete(slot), "rolling back a live slot should fail")
}

func TestTablePage_ApplyDeleteReclaimsSpaceAndCompacts(t *testing.T) {
	buf := make([]byte, page.Size)
	tp := Wrap(buf)
	tp.Init(page.ID(1), page.InvalidID)

	s0, err := tp.InsertTuple([]byte("aaaa"))
	require.NoError(t, err)
	s1, err := tp.InsertTuple([]byte("bb"))
	require.NoError(t, err)
	s2, err := tp.InsertTuple([]byte("cccccc"))
	require.NoError(t, err)

	freeBefore := tp.freeSpaceRemaining()

	require.NoError(t, tp.MarkDelete(s1))
	require.NoError(t, tp.ApplyDelete(s1))

	require.Equal(t, freeBefore+uint32(len("bb")), tp.freeSpaceRemaining())

	_, err = tp.GetTuple(s1)
	require.ErrorIs(t, err, storageerr.ErrNotFound)

	got0, err := tp.GetTuple(s0)
	require.NoError(t, err)
	require.Equal(t, []byte("aaaa"), got0)
	got2, err := tp.GetTuple(s2)
	require.NoError(t, err)
	require.Equal(t, []byte("cccccc"), got2)

	require.Error(t, tp.ApplyDelete(s1), "applying delete twice should fail")
	require.Error(t, tp.MarkDelete(s1), "a reclaimed slot can't be marked deleted again")

	_, ok := tp.FirstTupleSlot()
	require.True(t, ok)
	next, ok := tp.NextTupleSlot(s0)
	require.True(t, ok)
	require.Equal(t, s2, next, "reclaimed slot 1 should be skipped during iteration")
}

func TestTablePage_InsertReusesTombstonedSlot(t *testing.T) {
	buf := make([]byte, page.Size)
	tp := Wrap(buf)
	tp.Init(page.ID(1), page.InvalidID)

	s0, err := tp.InsertTuple([]byte("original"))
	require.NoError(t, err)
	countBefore := tp.TupleCount()

	require.NoError(t, tp.MarkDelete(s0))

	reused, err := tp.InsertTuple([]byte("newval"))
	require.NoError(t, err)
	require.Equal(t, s0, reused, "insert should reuse the tombstoned slot rather than allocate a new one")
	require.Equal(t, countBefore, tp.TupleCount(), "reusing a slot must not grow the directory")

	got, err := tp.GetTuple(reused)
	require.NoError(t, err)
	require.Equal(t, []byte("newval"), got)
}

func TestTablePage_LinkedListFields(t *testing.T) {
	buf := make([]byte, page.Size)
	tp := Wrap(buf)
	tp.Init(page.ID(2), page.ID(1))
	require.Equal(t, page.ID(1), tp.PrevPageID())
	require.Equal(t, page.InvalidID, tp.NextPageID())

	tp.SetNextPageID(page.ID(3))
	require.Equal(t, page.ID(3), tp.NextPageID())
}
