package record

import (
	"testing"

	"github.com/emberdb/storage/core/storage/page"
	"github.com/stretchr/testify/require"
)

func testSchema() *Schema {
	idCol, _ := NewFixedColumn("id", TypeInt32, 0, false, true)
	nameCol := NewVarcharColumn("name", 32, 1, true, false)
	activeCol, _ := NewFixedColumn("active", TypeBool, 2, false, false)
	return NewSchema([]Column{idCol, nameCol, activeCol})
}

func TestRow_CharAndFloat32RoundTrip(t *testing.T) {
	codeCol := NewCharColumn("code", 6, 0, false, false)
	scoreCol, _ := NewFixedColumn("score", TypeFloat32, 1, false, false)
	schema := NewSchema([]Column{codeCol, scoreCol})

	row := NewRow([]Field{
		NewCharField("ab", 6),
		NewFloat32Field(3.5),
	})

	buf := make([]byte, row.SerializedSize())
	n := row.SerializeTo(buf)

	got, consumed, err := DeserializeRow(schema.Columns, buf)
	require.NoError(t, err)
	require.Equal(t, n, consumed)
	require.Equal(t, "ab", got.Fields[0].String())
	require.Equal(t, float32(3.5), got.Fields[1].Float32())
}

func TestRow_SerializeRoundTrip(t *testing.T) {
	schema := testSchema()
	row := NewRow([]Field{
		NewInt32Field(7),
		NewVarcharField("alice"),
		NewBoolField(true),
	})
	row.RID = RowID{PageID: page.ID(3), Slot: 2}

	buf := make([]byte, row.SerializedSize())
	n := row.SerializeTo(buf)
	require.Equal(t, row.SerializedSize(), n)

	got, consumed, err := DeserializeRow(schema.Columns, buf)
	require.NoError(t, err)
	require.Equal(t, n, consumed)
	require.Equal(t, row.RID, got.RID)
	require.Equal(t, int32(7), got.Fields[0].Int32())
	require.Equal(t, "alice", got.Fields[1].String())
	require.Equal(t, true, got.Fields[2].Bool())
}

func TestRow_NullFieldRoundTrip(t *testing.T) {
	schema := testSchema()
	row := NewRow([]Field{
		NewInt32Field(1),
		NewNullField(TypeVarchar),
		NewBoolField(false),
	})

	buf := make([]byte, row.SerializedSize())
	row.SerializeTo(buf)

	got, _, err := DeserializeRow(schema.Columns, buf)
	require.NoError(t, err)
	require.True(t, got.Fields[1].IsNull)
	require.False(t, got.Fields[0].IsNull)
}

func TestRow_EmptyRowSerializesToNothing(t *testing.T) {
	row := NewRow(nil)
	require.Equal(t, 0, row.SerializedSize())
	require.Equal(t, 0, row.SerializeTo(nil))
}

func TestRow_Project(t *testing.T) {
	schema := testSchema()
	row := NewRow([]Field{
		NewInt32Field(9),
		NewVarcharField("bob"),
		NewBoolField(true),
	})

	key, err := row.Project(schema, []string{"name", "id"})
	require.NoError(t, err)
	require.Len(t, key.Fields, 2)
	require.Equal(t, "bob", key.Fields[0].String())
	require.Equal(t, int32(9), key.Fields[1].Int32())
}

func TestRow_ProjectUnknownColumn(t *testing.T) {
	schema := testSchema()
	row := NewRow([]Field{NewInt32Field(1), NewVarcharField(""), NewBoolField(false)})
	_, err := row.Project(schema, []string{"nope"})
	require.Error(t, err)
}

func TestRowID_IsValid(t *testing.T) {
	require.False(t, RowID{}.IsValid())
	require.True(t, RowID{PageID: page.ID(1)}.IsValid())
}
