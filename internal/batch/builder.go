// Package batch converts decoded Avro rows into Arrow records.
//
// Rows arrive as the generic values the OCF decoder produces: records as
// map[string]any, arrays as []any, enums as strings, date and timestamp
// logical types as time.Time, and so on. The builder appends them against a
// committed Arrow schema; any value whose shape doesn't match its column is
// a fatal conversion error.
package batch

import (
	"fmt"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/avroscan/avroscan/schema"
)

// Builder accumulates rows and materializes them as Arrow records. It is
// reused across batches: NewRecord resets the underlying builders while
// keeping enum dictionaries stable.
type Builder struct {
	schema *arrow.Schema
	rb     *array.RecordBuilder
	mem    memory.Allocator
}

// NewBuilder creates a Builder for the given schema. Enum columns have
// their dictionaries pre-seeded with the declared symbols so dictionary
// indices follow symbol declaration order, not encounter order.
func NewBuilder(mem memory.Allocator, sc *arrow.Schema) (*Builder, error) {
	rb := array.NewRecordBuilder(mem, sc)
	for i, f := range sc.Fields() {
		if err := seedDictionaries(mem, f, rb.Field(i)); err != nil {
			rb.Release()
			return nil, err
		}
	}
	return &Builder{schema: sc, rb: rb, mem: mem}, nil
}

// Append appends one row per map, matching columns by field name. A field
// missing from a row appends null.
func (b *Builder) Append(rows []map[string]any) error {
	for _, row := range rows {
		for i, f := range b.schema.Fields() {
			if err := appendValue(b.rb.Field(i), f, row[f.Name]); err != nil {
				return fmt.Errorf("column %q: %w", f.Name, err)
			}
		}
	}
	return nil
}

// NewRecord materializes the appended rows and resets the builder.
func (b *Builder) NewRecord() arrow.Record {
	return b.rb.NewRecord()
}

// Release releases the underlying builders.
func (b *Builder) Release() {
	b.rb.Release()
}

// seedDictionaries walks a field and its builder in lockstep, inserting the
// declared enum symbols into every dictionary builder it finds.
func seedDictionaries(mem memory.Allocator, f arrow.Field, b array.Builder) error {
	switch bldr := b.(type) {
	case *array.BinaryDictionaryBuilder:
		symbols, err := schema.EnumSymbols(f.Metadata)
		if err != nil {
			return err
		}
		if len(symbols) == 0 {
			return nil
		}
		sb := array.NewStringBuilder(mem)
		defer sb.Release()
		sb.AppendValues(symbols, nil)
		values := sb.NewStringArray()
		defer values.Release()
		if err := bldr.InsertStringDictValues(values); err != nil {
			return fmt.Errorf("failed to seed enum dictionary for %q: %w", f.Name, err)
		}
	case *array.ListBuilder:
		listType := f.Type.(*arrow.ListType)
		return seedDictionaries(mem, listType.ElemField(), bldr.ValueBuilder())
	case *array.StructBuilder:
		structType := f.Type.(*arrow.StructType)
		for i := 0; i < structType.NumFields(); i++ {
			if err := seedDictionaries(mem, structType.Field(i), bldr.FieldBuilder(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func appendValue(b array.Builder, f arrow.Field, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}
	switch bldr := b.(type) {
	case *array.NullBuilder:
		bldr.AppendNull()
	case *array.BooleanBuilder:
		x, ok := v.(bool)
		if !ok {
			return typeErr(v, f)
		}
		bldr.Append(x)
	case *array.Int32Builder:
		switch x := v.(type) {
		case int:
			bldr.Append(int32(x))
		case int32:
			bldr.Append(x)
		case int64:
			bldr.Append(int32(x))
		default:
			return typeErr(v, f)
		}
	case *array.Int64Builder:
		switch x := v.(type) {
		case int64:
			bldr.Append(x)
		case int:
			bldr.Append(int64(x))
		case int32:
			bldr.Append(int64(x))
		default:
			return typeErr(v, f)
		}
	case *array.Float32Builder:
		switch x := v.(type) {
		case float32:
			bldr.Append(x)
		case float64:
			bldr.Append(float32(x))
		default:
			return typeErr(v, f)
		}
	case *array.Float64Builder:
		switch x := v.(type) {
		case float64:
			bldr.Append(x)
		case float32:
			bldr.Append(float64(x))
		default:
			return typeErr(v, f)
		}
	case *array.BinaryBuilder:
		switch x := v.(type) {
		case []byte:
			bldr.Append(x)
		case string:
			bldr.Append([]byte(x))
		default:
			return typeErr(v, f)
		}
	case *array.StringBuilder:
		switch x := v.(type) {
		case string:
			bldr.Append(x)
		case []byte:
			bldr.Append(string(x))
		default:
			return typeErr(v, f)
		}
	case *array.Date32Builder:
		switch x := v.(type) {
		case time.Time:
			bldr.Append(arrow.Date32FromTime(x))
		case int32:
			bldr.Append(arrow.Date32(x))
		case int64:
			bldr.Append(arrow.Date32(x))
		case int:
			bldr.Append(arrow.Date32(x))
		default:
			return typeErr(v, f)
		}
	case *array.TimestampBuilder:
		unit := f.Type.(*arrow.TimestampType).Unit
		switch x := v.(type) {
		case time.Time:
			ts, err := arrow.TimestampFromTime(x, unit)
			if err != nil {
				return err
			}
			bldr.Append(ts)
		case int64:
			// raw physical value, e.g. timestamp-nanos the decoder left alone
			bldr.Append(arrow.Timestamp(x))
		default:
			return typeErr(v, f)
		}
	case *array.BinaryDictionaryBuilder:
		x, ok := v.(string)
		if !ok {
			return typeErr(v, f)
		}
		return bldr.AppendString(x)
	case *array.ListBuilder:
		items, ok := v.([]any)
		if !ok {
			return typeErr(v, f)
		}
		bldr.Append(true)
		elem := f.Type.(*arrow.ListType).ElemField()
		vb := bldr.ValueBuilder()
		for _, item := range items {
			if err := appendValue(vb, elem, item); err != nil {
				return err
			}
		}
	case *array.StructBuilder:
		m, ok := v.(map[string]any)
		if !ok {
			return typeErr(v, f)
		}
		bldr.Append(true)
		structType := f.Type.(*arrow.StructType)
		for i := 0; i < structType.NumFields(); i++ {
			child := structType.Field(i)
			if err := appendValue(bldr.FieldBuilder(i), child, m[child.Name]); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("no conversion into column type %s", f.Type)
	}
	return nil
}

func typeErr(v any, f arrow.Field) error {
	return fmt.Errorf("cannot convert decoded value of type %T into %s", v, f.Type)
}
