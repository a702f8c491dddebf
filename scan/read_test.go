package scan

import (
	"context"
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadAll(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeOCF(t, dir, "rows.avro", rowSchema, idRows(0, 6))

	table, err := Read(context.Background(), []Source{Path(path)})
	require.NoError(t, err)
	defer table.Release()

	assert.EqualValues(t, 6, table.NumRows())
	assert.EqualValues(t, 2, table.NumCols())
	assert.Equal(t, "id", table.Schema().Field(0).Name)
}

func TestReadColumnsByName(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeOCF(t, dir, "rows.avro", rowSchema, idRows(0, 3))

	table, err := Read(context.Background(), []Source{Path(path)}, WithColumns("name"))
	require.NoError(t, err)
	defer table.Release()

	require.EqualValues(t, 1, table.NumCols())
	assert.Equal(t, "name", table.Schema().Field(0).Name)
}

func TestReadColumnsByIndex(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeOCF(t, dir, "rows.avro", rowSchema, idRows(0, 3))

	table, err := Read(context.Background(), []Source{Path(path)}, WithColumnIndices(1, 0))
	require.NoError(t, err)
	defer table.Release()

	require.EqualValues(t, 2, table.NumCols())
	assert.Equal(t, "name", table.Schema().Field(0).Name)
	assert.Equal(t, "id", table.Schema().Field(1).Name)

	_, err = Read(context.Background(), []Source{Path(path)}, WithColumnIndices(7))
	require.ErrorContains(t, err, "out of range")
}

func TestReadNRows(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeOCF(t, dir, "rows.avro", rowSchema, idRows(0, 10))

	table, err := Read(context.Background(), []Source{Path(path)},
		WithNRows(4),
		WithScanOptions(WithBatchSize(3)),
	)
	require.NoError(t, err)
	defer table.Release()
	assert.EqualValues(t, 4, table.NumRows())
}

func TestReadRowIndex(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeOCF(t, dir, "rows.avro", rowSchema, idRows(0, 5))

	table, err := Read(context.Background(), []Source{Path(path)},
		WithRowIndex("index", 100),
		WithScanOptions(WithBatchSize(2)),
	)
	require.NoError(t, err)
	defer table.Release()

	require.EqualValues(t, 3, table.NumCols())
	assert.Equal(t, "index", table.Schema().Field(0).Name)
	assert.True(t, arrow.TypeEqual(arrow.PrimitiveTypes.Uint32, table.Schema().Field(0).Type))

	// the index counts across batch boundaries from the offset
	var got []uint32
	for _, chunk := range table.Column(0).Data().Chunks() {
		got = append(got, chunk.(*array.Uint32).Uint32Values()...)
	}
	assert.Equal(t, []uint32{100, 101, 102, 103, 104}, got)
}

func TestReadRechunk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeOCF(t, dir, "rows.avro", rowSchema, idRows(0, 9))

	chunked, err := Read(context.Background(), []Source{Path(path)},
		WithScanOptions(WithBatchSize(2)))
	require.NoError(t, err)
	defer chunked.Release()
	assert.Greater(t, len(chunked.Column(0).Data().Chunks()), 1)

	compact, err := Read(context.Background(), []Source{Path(path)},
		WithScanOptions(WithBatchSize(2)), WithRechunk())
	require.NoError(t, err)
	defer compact.Release()
	require.Len(t, compact.Column(0).Data().Chunks(), 1)
	assert.EqualValues(t, 9, compact.NumRows())

	ids := compact.Column(0).Data().Chunk(0).(*array.Int64)
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8}, ids.Int64Values())
}

func TestReadEmptyFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeOCF(t, dir, "rows.avro", rowSchema, nil)

	table, err := Read(context.Background(), []Source{Path(path)})
	require.NoError(t, err)
	defer table.Release()
	assert.EqualValues(t, 0, table.NumRows())
	assert.EqualValues(t, 2, table.NumCols())
}

func TestReadSingleton(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeOCF(t, dir, "longs.avro", `"long"`, []any{int64(1), int64(2)})

	table, err := Read(context.Background(), []Source{Path(path)},
		WithScanOptions(WithSingleColName("value")))
	require.NoError(t, err)
	defer table.Release()

	require.EqualValues(t, 1, table.NumCols())
	assert.Equal(t, "value", table.Schema().Field(0).Name)
	assert.EqualValues(t, 2, table.NumRows())
}
