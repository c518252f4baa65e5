package record

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSchema_SerializeRoundTrip(t *testing.T) {
	schema := testSchema()
	buf := make([]byte, schema.SerializedSize())
	n := schema.SerializeTo(buf)
	require.Equal(t, schema.SerializedSize(), n)

	got, consumed, err := DeserializeSchema(buf)
	require.NoError(t, err)
	require.Equal(t, n, consumed)
	require.Equal(t, schema.Columns, got.Columns)
}

func TestSchema_ColumnIndex(t *testing.T) {
	schema := testSchema()
	idx, err := schema.ColumnIndex("name")
	require.NoError(t, err)
	require.Equal(t, uint32(1), idx)

	_, err = schema.ColumnIndex("missing")
	require.Error(t, err)
}

func TestSchema_DeserializeRejectsBadMagic(t *testing.T) {
	buf := make([]byte, 16)
	_, _, err := DeserializeSchema(buf)
	require.Error(t, err)
}
