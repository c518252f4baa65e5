package disk

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/emberdb/storage/core/storage/page"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestManager(t *testing.T) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	m, err := OpenOrCreate(path, true, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestManager_AllocateReadWriteRoundTrip(t *testing.T) {
	m := openTestManager(t)

	id, err := m.AllocatePage()
	require.NoError(t, err)
	require.Equal(t, page.ID(1), id, "first allocated page should be logical id 1")

	want := bytes.Repeat([]byte{0xAB}, page.Size)
	require.NoError(t, m.WritePage(id, want))

	got := make([]byte, page.Size)
	require.NoError(t, m.ReadPage(id, got))
	require.Equal(t, want, got)
}

func TestManager_DeallocateThenReallocate(t *testing.T) {
	m := openTestManager(t)

	first, err := m.AllocatePage()
	require.NoError(t, err)
	second, err := m.AllocatePage()
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	require.NoError(t, m.DeallocatePage(first))
	free, err := m.IsPageFree(first)
	require.NoError(t, err)
	require.True(t, free)

	third, err := m.AllocatePage()
	require.NoError(t, err)
	require.Equal(t, first, third, "freed page should be reused ahead of a brand-new one")
}

func TestManager_DeallocateAlreadyFreeFails(t *testing.T) {
	m := openTestManager(t)
	id, err := m.AllocatePage()
	require.NoError(t, err)
	require.NoError(t, m.DeallocatePage(id))
	require.Error(t, m.DeallocatePage(id))
}

// TestManager_SecondExtentBitmapDoesNotAliasFirst exercises the fix for
// the original allocator's mismatched bitmap-page-id formula: every
// page allocated into the second extent must read/write/free through
// its own bitmap page, not extent 0's.
func TestManager_SecondExtentBitmapDoesNotAliasFirst(t *testing.T) {
	m := openTestManager(t)

	ids := make([]page.ID, 0, BitmapSize+5)
	for i := 0; i < BitmapSize+5; i++ {
		id, err := m.AllocatePage()
		require.NoError(t, err)
		ids = append(ids, id)
	}

	firstExtentPage := ids[0]
	secondExtentPage := ids[BitmapSize]

	require.NoError(t, m.DeallocatePage(secondExtentPage))
	freeSecond, err := m.IsPageFree(secondExtentPage)
	require.NoError(t, err)
	require.True(t, freeSecond)

	freeFirst, err := m.IsPageFree(firstExtentPage)
	require.NoError(t, err)
	require.False(t, freeFirst, "deallocating a second-extent page must not free a first-extent page")

	want := bytes.Repeat([]byte{0x5A}, page.Size)
	require.NoError(t, m.WritePage(ids[BitmapSize+1], want))
	got := make([]byte, page.Size)
	require.NoError(t, m.ReadPage(ids[BitmapSize+1], got))
	require.Equal(t, want, got)
}

func TestManager_ReopenPersistsAllocations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	m, err := OpenOrCreate(path, true, zap.NewNop())
	require.NoError(t, err)

	id, err := m.AllocatePage()
	require.NoError(t, err)
	want := bytes.Repeat([]byte{0x42}, page.Size)
	require.NoError(t, m.WritePage(id, want))
	require.NoError(t, m.Close())

	reopened, err := OpenOrCreate(path, false, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	got := make([]byte, page.Size)
	require.NoError(t, reopened.ReadPage(id, got))
	require.Equal(t, want, got)

	free, err := reopened.IsPageFree(id)
	require.NoError(t, err)
	require.False(t, free)
}
