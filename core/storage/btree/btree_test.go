package btree

import (
	"path/filepath"
	"testing"

	"github.com/emberdb/storage/core/storage/buffer"
	"github.com/emberdb/storage/core/storage/disk"
	"github.com/emberdb/storage/core/storage/page"
	"github.com/emberdb/storage/core/storage/record"
	"github.com/emberdb/storage/core/storage/storageerr"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const integrationKeyCount = 2000

func newTestTree(t *testing.T) *BTree {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	dm, err := disk.OpenOrCreate(path, true, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })

	bpm, err := buffer.New(dm, 64, buffer.ReplacerLRU, nil, zap.NewNop(), buffer.Metrics{})
	require.NoError(t, err)

	p1, err := bpm.NewPage()
	require.NoError(t, err)
	require.NoError(t, bpm.UnpinPage(p1.ID(), false))
	p2, err := bpm.NewPage()
	require.NoError(t, err)
	require.Equal(t, IndexRootsPageID, p2.ID())
	require.NoError(t, bpm.UnpinPage(p2.ID(), true))

	roots := NewIndexRoots(bpm)
	return New(bpm, roots, 1, 4, BytesComparator, zap.NewNop())
}

func TestBTree_InsertAndGetValue_ForcesSplits(t *testing.T) {
	tree := newTestTree(t)

	for i := uint32(0); i < integrationKeyCount; i++ {
		ok, err := tree.Insert(key4(i), record.RowID{PageID: page.ID(i + 1), Slot: i})
		require.NoError(t, err)
		require.True(t, ok)
	}

	for i := uint32(0); i < integrationKeyCount; i += 37 {
		v, ok, err := tree.GetValue(key4(i))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, i, v.Slot)
	}

	rootID, _ := tree.rootID()
	isLeaf, err := tree.isLeafPage(rootID)
	require.NoError(t, err)
	require.False(t, isLeaf, "enough keys should have grown the tree past a single leaf root")
}

func TestBTree_InsertDuplicateRejected(t *testing.T) {
	tree := newTestTree(t)
	ok, err := tree.Insert(key4(1), record.RowID{Slot: 1})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tree.Insert(key4(1), record.RowID{Slot: 2})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBTree_GetValueOnEmptyTree(t *testing.T) {
	tree := newTestTree(t)
	_, ok, err := tree.GetValue(key4(1))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBTree_Iterator_WalksInOrder(t *testing.T) {
	tree := newTestTree(t)
	order := []uint32{500, 1, 999, 2, 0, 750}
	for _, k := range order {
		_, err := insertOK(tree, k)
		require.NoError(t, err)
	}

	it, err := tree.Begin()
	require.NoError(t, err)
	var got []uint32
	for it.Next() {
		got = append(got, it.Value().Slot)
	}
	require.Equal(t, []uint32{0, 1, 2, 500, 750, 999}, got)
}

func TestBTree_Seek_PositionsBeforeFirstKeyGreaterOrEqual(t *testing.T) {
	tree := newTestTree(t)
	for _, k := range []uint32{10, 20, 30, 40} {
		_, err := insertOK(tree, k)
		require.NoError(t, err)
	}

	it, err := tree.Seek(key4(25))
	require.NoError(t, err)
	require.True(t, it.Next())
	require.Equal(t, uint32(30), it.Value().Slot)
}

func TestBTree_Remove_ForcesMergesAndRedistribution(t *testing.T) {
	tree := newTestTree(t)
	for i := uint32(0); i < integrationKeyCount; i++ {
		_, err := insertOK(tree, i)
		require.NoError(t, err)
	}

	for i := uint32(0); i < integrationKeyCount; i += 2 {
		require.NoError(t, tree.Remove(key4(i)))
	}

	for i := uint32(0); i < integrationKeyCount; i++ {
		_, ok, err := tree.GetValue(key4(i))
		require.NoError(t, err)
		if i%2 == 0 {
			require.False(t, ok, "key %d should have been removed", i)
		} else {
			require.True(t, ok, "key %d should still be present", i)
		}
	}

	it, err := tree.Begin()
	require.NoError(t, err)
	count := 0
	prev := uint32(0)
	for it.Next() {
		v := it.Value().Slot
		require.Equal(t, uint32(1), v%2, "only odd keys should remain")
		if count > 0 {
			require.Greater(t, v, prev)
		}
		prev = v
		count++
	}
	require.Equal(t, integrationKeyCount/2, count)
}

func TestBTree_Remove_FixesAncestorSeparatorOnNonUnderflowDelete(t *testing.T) {
	tree := newTestTree(t)

	for i := uint32(0); i < 500; i++ {
		_, err := insertOK(tree, i)
		require.NoError(t, err)
	}

	rootID, ok := tree.rootID()
	require.True(t, ok)
	root, err := tree.fetchInternal(rootID)
	require.NoError(t, err)
	require.Greater(t, len(root.Keys), 0, "enough inserts should have split the root into an internal node")

	// Keys[0] names Children[1]'s minimum; deleting that exact key
	// shifts Children[1]'s true minimum without causing underflow.
	sepBefore := append([]byte{}, root.Keys[0]...)
	var minBefore uint32
	for _, b := range sepBefore {
		minBefore = minBefore<<8 | uint32(b)
	}

	require.NoError(t, tree.Remove(key4(minBefore)))

	root, err = tree.fetchInternal(rootID)
	require.NoError(t, err)
	require.NotEqual(t, sepBefore, root.Keys[0], "separator must be rewritten once the leaf's minimum changes")

	leaf, err := tree.fetchLeaf(root.Children[1])
	require.NoError(t, err)
	require.Equal(t, leaf.Keys[0], root.Keys[0], "parent.Keys[0] must equal the child's actual minimum")
}

func TestBTree_RemoveMissingKeyFails(t *testing.T) {
	tree := newTestTree(t)
	_, err := insertOK(tree, 1)
	require.NoError(t, err)

	err = tree.Remove(key4(2))
	require.ErrorIs(t, err, storageerr.ErrNotFound)
}

func TestBTree_RemoveAllCollapsesToEmpty(t *testing.T) {
	tree := newTestTree(t)
	for _, k := range []uint32{1, 2, 3} {
		_, err := insertOK(tree, k)
		require.NoError(t, err)
	}
	for _, k := range []uint32{1, 2, 3} {
		require.NoError(t, tree.Remove(key4(k)))
	}
	require.True(t, tree.IsEmpty())
}

func TestBTree_Destroy_RemovesRootEntry(t *testing.T) {
	tree := newTestTree(t)
	for i := uint32(0); i < 500; i++ {
		_, err := insertOK(tree, i)
		require.NoError(t, err)
	}
	require.NoError(t, tree.Destroy())

	_, err := tree.roots.GetRoot(tree.IndexID)
	require.ErrorIs(t, err, storageerr.ErrNotFound)
}

func insertOK(tree *BTree, k uint32) (bool, error) {
	return tree.Insert(key4(k), record.RowID{Slot: k})
}
