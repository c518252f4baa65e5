package engine

import (
	"path/filepath"
	"testing"

	"github.com/emberdb/storage/core/storage/buffer"
	"github.com/emberdb/storage/core/storage/record"
	"github.com/emberdb/storage/pkg/config"
	"github.com/emberdb/storage/pkg/logger"
	"github.com/emberdb/storage/pkg/telemetry"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		DataFile:        filepath.Join(t.TempDir(), "test.db"),
		CreateIfMissing: true,
		BufferPoolSize:  32,
		Replacer:        buffer.ReplacerLRU,
		Logger:          logger.Config{Level: "error", Format: "console", OutputFile: "stdout"},
		Telemetry:       telemetry.Config{Enabled: false},
	}
}

func testSchema() *record.Schema {
	idCol, _ := record.NewFixedColumn("id", record.TypeInt32, 0, false, true)
	nameCol := record.NewVarcharColumn("name", 32, 1, false, false)
	return record.NewSchema([]record.Column{idCol, nameCol})
}

func TestEngine_OpenOnFreshFileReservesFixedPages(t *testing.T) {
	cfg := testConfig(t)
	e, err := Open(cfg)
	require.NoError(t, err)
	defer e.Close()

	require.Equal(t, uint32(2), e.disk.NumAllocatedPages())
}

func TestEngine_CreateTableAndIndexSurviveClose(t *testing.T) {
	cfg := testConfig(t)
	e, err := Open(cfg)
	require.NoError(t, err)

	_, err = e.CreateTable("users", testSchema())
	require.NoError(t, err)
	_, err = e.CreateIndex("users", "by_id", []string{"id"})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	reopened, err := Open(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	tbl, err := reopened.Table("users")
	require.NoError(t, err)
	require.Equal(t, "users", tbl.Meta.Name)

	idx, err := reopened.Index("users", "by_id")
	require.NoError(t, err)
	require.Equal(t, "by_id", idx.Meta.Name)
}

func TestEngine_InsertAndReadThroughReopenedTable(t *testing.T) {
	cfg := testConfig(t)
	e, err := Open(cfg)
	require.NoError(t, err)

	info, err := e.CreateTable("users", testSchema())
	require.NoError(t, err)
	r := record.NewRow([]record.Field{record.NewInt32Field(7), record.NewVarcharField("zoe")})
	require.NoError(t, info.Heap.InsertTuple(r))
	rid := r.RID
	require.NoError(t, e.Close())

	reopened, err := Open(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	tbl, err := reopened.Table("users")
	require.NoError(t, err)
	got, err := tbl.Heap.GetTuple(rid)
	require.NoError(t, err)
	require.Equal(t, "zoe", got.Fields[1].String())
}

func TestEngine_DropTableThenListTables(t *testing.T) {
	cfg := testConfig(t)
	e, err := Open(cfg)
	require.NoError(t, err)
	defer e.Close()

	_, err = e.CreateTable("users", testSchema())
	require.NoError(t, err)
	require.Len(t, e.ListTables(), 1)

	require.NoError(t, e.DropTable("users"))
	require.Empty(t, e.ListTables())
}

func TestEngine_ListIndexesAfterDropIndex(t *testing.T) {
	cfg := testConfig(t)
	e, err := Open(cfg)
	require.NoError(t, err)
	defer e.Close()

	_, err = e.CreateTable("users", testSchema())
	require.NoError(t, err)
	_, err = e.CreateIndex("users", "by_id", []string{"id"})
	require.NoError(t, err)
	require.Len(t, e.ListIndexes("users"), 1)

	require.NoError(t, e.DropIndex("users", "by_id"))
	require.Empty(t, e.ListIndexes("users"))
}
