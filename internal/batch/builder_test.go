package batch

import (
	"testing"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avroscan/avroscan/internal/json"
	"github.com/avroscan/avroscan/schema"
)

func TestBuilderScalars(t *testing.T) {
	t.Parallel()

	sc := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "score", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "alive", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},
	}, nil)

	bldr, err := NewBuilder(memory.NewGoAllocator(), sc)
	require.NoError(t, err)
	defer bldr.Release()

	rows := []map[string]any{
		{"id": int64(1), "name": "ada", "score": 0.5, "alive": true},
		{"id": int64(2), "name": "bob", "score": nil, "alive": false},
		{"id": nil, "name": "eve", "score": 2.25, "alive": nil},
	}
	require.NoError(t, bldr.Append(rows))
	rec := bldr.NewRecord()
	defer rec.Release()

	require.EqualValues(t, 3, rec.NumRows())
	ids := rec.Column(0).(*array.Int64)
	assert.Equal(t, int64(1), ids.Value(0))
	assert.Equal(t, int64(2), ids.Value(1))
	assert.True(t, ids.IsNull(2))

	scores := rec.Column(2).(*array.Float64)
	assert.True(t, scores.IsNull(1))
	assert.Equal(t, 2.25, scores.Value(2))
}

func TestBuilderMissingFieldIsNull(t *testing.T) {
	t.Parallel()

	sc := arrow.NewSchema([]arrow.Field{
		{Name: "a", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	}, nil)
	bldr, err := NewBuilder(memory.NewGoAllocator(), sc)
	require.NoError(t, err)
	defer bldr.Release()

	require.NoError(t, bldr.Append([]map[string]any{{}}))
	rec := bldr.NewRecord()
	defer rec.Release()
	assert.True(t, rec.Column(0).IsNull(0))
}

func TestBuilderTypeMismatch(t *testing.T) {
	t.Parallel()

	sc := arrow.NewSchema([]arrow.Field{
		{Name: "a", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)
	bldr, err := NewBuilder(memory.NewGoAllocator(), sc)
	require.NoError(t, err)
	defer bldr.Release()

	err = bldr.Append([]map[string]any{{"a": "not a number"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `column "a"`)
}

func TestBuilderTemporal(t *testing.T) {
	t.Parallel()

	sc := arrow.NewSchema([]arrow.Field{
		{Name: "day", Type: arrow.FixedWidthTypes.Date32, Nullable: true},
		{Name: "at", Type: &arrow.TimestampType{Unit: arrow.Millisecond, TimeZone: "UTC"}, Nullable: true},
	}, nil)
	bldr, err := NewBuilder(memory.NewGoAllocator(), sc)
	require.NoError(t, err)
	defer bldr.Release()

	moment := time.Date(2021, 3, 14, 15, 9, 26, 0, time.UTC)
	require.NoError(t, bldr.Append([]map[string]any{
		{"day": moment, "at": moment},
		{"day": nil, "at": int64(1000)},
	}))
	rec := bldr.NewRecord()
	defer rec.Release()

	days := rec.Column(0).(*array.Date32)
	assert.Equal(t, arrow.Date32FromTime(moment), days.Value(0))
	assert.True(t, days.IsNull(1))

	stamps := rec.Column(1).(*array.Timestamp)
	assert.EqualValues(t, moment.UnixMilli(), stamps.Value(0))
	assert.EqualValues(t, 1000, stamps.Value(1))
}

func TestBuilderNested(t *testing.T) {
	t.Parallel()

	inner := arrow.StructOf(
		arrow.Field{Name: "x", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		arrow.Field{Name: "y", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	)
	sc := arrow.NewSchema([]arrow.Field{
		{Name: "point", Type: inner, Nullable: true},
		{Name: "tags", Type: arrow.ListOfField(arrow.Field{Name: "item", Type: arrow.BinaryTypes.String, Nullable: true}), Nullable: true},
	}, nil)
	bldr, err := NewBuilder(memory.NewGoAllocator(), sc)
	require.NoError(t, err)
	defer bldr.Release()

	require.NoError(t, bldr.Append([]map[string]any{
		{"point": map[string]any{"x": 1.0, "y": 2.0}, "tags": []any{"a", "b"}},
		{"point": nil, "tags": []any{}},
	}))
	rec := bldr.NewRecord()
	defer rec.Release()

	points := rec.Column(0).(*array.Struct)
	assert.False(t, points.IsNull(0))
	assert.True(t, points.IsNull(1))
	xs := points.Field(0).(*array.Float64)
	assert.Equal(t, 1.0, xs.Value(0))

	tags := rec.Column(1).(*array.List)
	start, end := tags.ValueOffsets(0)
	assert.EqualValues(t, 0, start)
	assert.EqualValues(t, 2, end)
	values := tags.ListValues().(*array.String)
	assert.Equal(t, "a", values.Value(0))
	assert.Equal(t, "b", values.Value(1))
}

func TestBuilderEnumDictionaryOrder(t *testing.T) {
	t.Parallel()

	symbols, err := json.Marshal([]string{"LOW", "MID", "HIGH"})
	require.NoError(t, err)
	sc := arrow.NewSchema([]arrow.Field{
		{
			Name: "level",
			Type: &arrow.DictionaryType{
				IndexType: arrow.PrimitiveTypes.Int32,
				ValueType: arrow.BinaryTypes.String,
				Ordered:   true,
			},
			Nullable: true,
			Metadata: arrow.NewMetadata([]string{schema.EnumSymbolsKey}, []string{string(symbols)}),
		},
	}, nil)

	bldr, err := NewBuilder(memory.NewGoAllocator(), sc)
	require.NoError(t, err)
	defer bldr.Release()

	// appended out of declaration order on purpose
	require.NoError(t, bldr.Append([]map[string]any{
		{"level": "HIGH"},
		{"level": "LOW"},
		{"level": nil},
	}))
	rec := bldr.NewRecord()
	defer rec.Release()

	dict := rec.Column(0).(*array.Dictionary)
	values := dict.Dictionary().(*array.String)

	// indices follow symbol declaration order, not encounter order
	assert.Equal(t, "LOW", values.Value(0))
	assert.Equal(t, "MID", values.Value(1))
	assert.Equal(t, "HIGH", values.Value(2))
	assert.Equal(t, 2, dict.GetValueIndex(0))
	assert.Equal(t, 0, dict.GetValueIndex(1))
	assert.True(t, dict.IsNull(2))
}
