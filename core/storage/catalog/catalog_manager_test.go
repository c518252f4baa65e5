package catalog

import (
	"path/filepath"
	"testing"

	"github.com/emberdb/storage/core/storage/btree"
	"github.com/emberdb/storage/core/storage/buffer"
	"github.com/emberdb/storage/core/storage/disk"
	"github.com/emberdb/storage/core/storage/record"
	"github.com/emberdb/storage/core/storage/storageerr"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCatalog(t *testing.T) (*buffer.PoolManager, *btree.IndexRoots, *Manager) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	dm, err := disk.OpenOrCreate(path, true, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })

	bpm, err := buffer.New(dm, 32, buffer.ReplacerLRU, nil, zap.NewNop(), buffer.Metrics{})
	require.NoError(t, err)

	metaPage, err := bpm.NewPage()
	require.NoError(t, err)
	require.Equal(t, MetaPageID, metaPage.ID())
	require.NoError(t, bpm.UnpinPage(metaPage.ID(), false))

	rootsPage, err := bpm.NewPage()
	require.NoError(t, err)
	require.Equal(t, btree.IndexRootsPageID, rootsPage.ID())
	require.NoError(t, bpm.UnpinPage(rootsPage.ID(), true))

	roots := btree.NewIndexRoots(bpm)
	mgr, err := Open(bpm, roots, nil, zap.NewNop(), true)
	require.NoError(t, err)
	return bpm, roots, mgr
}

func testSchema() *record.Schema {
	idCol, _ := record.NewFixedColumn("id", record.TypeInt32, 0, false, true)
	nameCol := record.NewVarcharColumn("name", 32, 1, false, false)
	return record.NewSchema([]record.Column{idCol, nameCol})
}

func TestManager_CreateTableThenGet(t *testing.T) {
	_, _, mgr := newTestCatalog(t)

	info, err := mgr.CreateTable("users", testSchema())
	require.NoError(t, err)
	require.Equal(t, "users", info.Meta.Name)

	got, err := mgr.GetTable("users")
	require.NoError(t, err)
	require.Same(t, info, got)
}

func TestManager_CreateTableDuplicateNameFails(t *testing.T) {
	_, _, mgr := newTestCatalog(t)
	_, err := mgr.CreateTable("users", testSchema())
	require.NoError(t, err)

	_, err = mgr.CreateTable("users", testSchema())
	require.ErrorIs(t, err, storageerr.ErrAlreadyExists)
}

func TestManager_CreateIndexThenGet(t *testing.T) {
	_, _, mgr := newTestCatalog(t)
	_, err := mgr.CreateTable("users", testSchema())
	require.NoError(t, err)

	info, err := mgr.CreateIndex("users", "by_id", []string{"id"})
	require.NoError(t, err)
	require.Equal(t, "by_id", info.Meta.Name)

	got, err := mgr.GetIndex("users", "by_id")
	require.NoError(t, err)
	require.Same(t, info, got)
}

func TestManager_CreateIndexUnknownTableFails(t *testing.T) {
	_, _, mgr := newTestCatalog(t)
	_, err := mgr.CreateIndex("ghost", "by_id", []string{"id"})
	require.ErrorIs(t, err, storageerr.ErrNotFound)
}

func TestManager_CreateIndexDuplicateNameFails(t *testing.T) {
	_, _, mgr := newTestCatalog(t)
	_, err := mgr.CreateTable("users", testSchema())
	require.NoError(t, err)
	_, err = mgr.CreateIndex("users", "by_id", []string{"id"})
	require.NoError(t, err)

	_, err = mgr.CreateIndex("users", "by_id", []string{"id"})
	require.ErrorIs(t, err, storageerr.ErrAlreadyExists)
}

func TestManager_DropIndexAlwaysReturnsAValue(t *testing.T) {
	_, _, mgr := newTestCatalog(t)
	_, err := mgr.CreateTable("users", testSchema())
	require.NoError(t, err)
	_, err = mgr.CreateIndex("users", "by_id", []string{"id"})
	require.NoError(t, err)

	err = mgr.DropIndex("users", "by_id")
	require.NoError(t, err)

	_, err = mgr.GetIndex("users", "by_id")
	require.ErrorIs(t, err, storageerr.ErrNotFound)

	err = mgr.DropIndex("users", "by_id")
	require.Error(t, err, "dropping an already-gone index must still return an error, never fall through silently")
}

func TestManager_DropTableAlsoDropsItsIndexes(t *testing.T) {
	_, _, mgr := newTestCatalog(t)
	_, err := mgr.CreateTable("users", testSchema())
	require.NoError(t, err)
	_, err = mgr.CreateIndex("users", "by_id", []string{"id"})
	require.NoError(t, err)

	require.NoError(t, mgr.DropTable("users"))

	_, err = mgr.GetTable("users")
	require.ErrorIs(t, err, storageerr.ErrNotFound)
	_, err = mgr.GetIndex("users", "by_id")
	require.ErrorIs(t, err, storageerr.ErrNotFound)
}

func TestManager_ListTablesAndIndexes(t *testing.T) {
	_, _, mgr := newTestCatalog(t)
	_, err := mgr.CreateTable("users", testSchema())
	require.NoError(t, err)
	_, err = mgr.CreateTable("orders", testSchema())
	require.NoError(t, err)
	_, err = mgr.CreateIndex("users", "by_id", []string{"id"})
	require.NoError(t, err)

	require.Len(t, mgr.ListTables(), 2)
	require.Len(t, mgr.ListIndexes("users"), 1)
	require.Empty(t, mgr.ListIndexes("orders"))
}

func TestManager_InsertThroughHeapAndLookupThroughIndex(t *testing.T) {
	_, _, mgr := newTestCatalog(t)
	info, err := mgr.CreateTable("users", testSchema())
	require.NoError(t, err)
	idxInfo, err := mgr.CreateIndex("users", "by_id", []string{"id"})
	require.NoError(t, err)

	r := record.NewRow([]record.Field{record.NewInt32Field(42), record.NewVarcharField("alice")})
	require.NoError(t, info.Heap.InsertTuple(r))

	key := make([]byte, 4)
	key[0], key[1], key[2], key[3] = 0, 0, 0, 42
	ok, err := idxInfo.Tree.Insert(key, r.RID)
	require.NoError(t, err)
	require.True(t, ok)

	v, found, err := idxInfo.Tree.GetValue(key)
	require.NoError(t, err)
	require.True(t, found)

	got, err := info.Heap.GetTuple(v)
	require.NoError(t, err)
	require.Equal(t, "alice", got.Fields[1].String())
}

func TestManager_ReopenReloadsTablesAndIndexes(t *testing.T) {
	bpm, roots, mgr := newTestCatalog(t)
	_, err := mgr.CreateTable("users", testSchema())
	require.NoError(t, err)
	_, err = mgr.CreateIndex("users", "by_id", []string{"id"})
	require.NoError(t, err)

	reopened, err := Open(bpm, roots, nil, zap.NewNop(), false)
	require.NoError(t, err)

	got, err := reopened.GetTable("users")
	require.NoError(t, err)
	require.Equal(t, "users", got.Meta.Name)

	idx, err := reopened.GetIndex("users", "by_id")
	require.NoError(t, err)
	require.Equal(t, "by_id", idx.Meta.Name)
}
