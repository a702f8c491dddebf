package scan

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"

	pool "github.com/avroscan/avroscan/internal/memory"
)

// ReadOption configures Read.
type ReadOption func(*readConfig)

type readConfig struct {
	scanOpts       []Option
	columns        []string
	indices        []int
	nRows          int64
	rowIndexName   string
	rowIndexOffset uint32
	rechunk        bool
}

// WithScanOptions forwards scanner options (batch size, glob, logical-type
// fallback, single column name) to the underlying scan.
func WithScanOptions(opts ...Option) ReadOption {
	return func(c *readConfig) { c.scanOpts = append(c.scanOpts, opts...) }
}

// WithColumns narrows the result to the named columns, in the given order.
func WithColumns(names ...string) ReadOption {
	return func(c *readConfig) { c.columns = names }
}

// WithColumnIndices narrows the result to the columns at the given schema
// ordinals, in the given order. Combines with WithColumns.
func WithColumnIndices(indices ...int) ReadOption {
	return func(c *readConfig) { c.indices = indices }
}

// WithNRows caps the total number of rows read.
func WithNRows(n int64) ReadOption {
	return func(c *readConfig) { c.nRows = n }
}

// WithRowIndex prepends a uint32 row-index column with the given name,
// counting from offset.
func WithRowIndex(name string, offset uint32) ReadOption {
	return func(c *readConfig) {
		c.rowIndexName = name
		c.rowIndexOffset = offset
	}
}

// WithRechunk compacts each column of the result into one contiguous chunk.
func WithRechunk() ReadOption {
	return func(c *readConfig) { c.rechunk = true }
}

// Read eagerly materializes a scan into a table. The caller owns the table
// and must release it.
func Read(ctx context.Context, sources []Source, opts ...ReadOption) (arrow.Table, error) {
	var cfg readConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	scanner, err := NewScanner(sources, cfg.scanOpts...)
	if err != nil {
		return nil, err
	}
	committed, err := scanner.Schema()
	if err != nil {
		return nil, err
	}

	columns := cfg.columns
	for _, i := range cfg.indices {
		if i < 0 || i >= committed.NumFields() {
			return nil, fmt.Errorf("column index %d out of range for schema with %d fields", i, committed.NumFields())
		}
		columns = append(columns, committed.Field(i).Name)
	}

	reader, err := scanner.Batches(ctx, BatchOptions{Columns: columns, Limit: cfg.nRows})
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	mem := pool.GetAllocator()
	defer pool.PutAllocator(mem)

	var recs []arrow.Record
	releaseAll := func() {
		for _, rec := range recs {
			rec.Release()
		}
	}
	offset := cfg.rowIndexOffset
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			releaseAll()
			return nil, err
		}
		if cfg.rowIndexName != "" {
			rec = prependRowIndex(mem, rec, cfg.rowIndexName, offset)
			offset += uint32(rec.NumRows())
		}
		recs = append(recs, rec)
	}

	tableSchema := reader.Schema()
	if cfg.rowIndexName != "" {
		tableSchema = rowIndexedSchema(tableSchema, cfg.rowIndexName)
	}
	if len(recs) == 0 {
		// no batches produced; materialize an empty table with the right shape
		bldr := array.NewRecordBuilder(mem, tableSchema)
		empty := bldr.NewRecord()
		bldr.Release()
		recs = append(recs, empty)
	}

	table := array.NewTableFromRecords(tableSchema, recs)
	releaseAll()

	if !cfg.rechunk {
		return table, nil
	}
	defer table.Release()
	return rechunkTable(mem, table)
}

func rowIndexedSchema(sc *arrow.Schema, name string) *arrow.Schema {
	fields := make([]arrow.Field, 0, sc.NumFields()+1)
	fields = append(fields, arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Uint32})
	fields = append(fields, sc.Fields()...)
	return arrow.NewSchema(fields, nil)
}

// prependRowIndex rebuilds rec with a leading uint32 index column counting
// from offset. Takes ownership of rec.
func prependRowIndex(mem memory.Allocator, rec arrow.Record, name string, offset uint32) arrow.Record {
	defer rec.Release()

	bldr := array.NewUint32Builder(mem)
	defer bldr.Release()
	n := int(rec.NumRows())
	bldr.Reserve(n)
	for i := 0; i < n; i++ {
		bldr.Append(offset + uint32(i))
	}
	index := bldr.NewUint32Array()
	defer index.Release()

	cols := make([]arrow.Array, 0, rec.NumCols()+1)
	cols = append(cols, index)
	cols = append(cols, rec.Columns()...)
	return array.NewRecord(rowIndexedSchema(rec.Schema(), name), cols, rec.NumRows())
}

// rechunkTable concatenates every column's chunks into one contiguous array.
func rechunkTable(mem memory.Allocator, table arrow.Table) (arrow.Table, error) {
	sc := table.Schema()
	cols := make([]arrow.Column, 0, table.NumCols())
	defer func() {
		for i := range cols {
			cols[i].Release()
		}
	}()
	for i := 0; i < int(table.NumCols()); i++ {
		merged, err := array.Concatenate(table.Column(i).Data().Chunks(), mem)
		if err != nil {
			return nil, fmt.Errorf("failed to rechunk column %q: %w", sc.Field(i).Name, err)
		}
		cols = append(cols, arrow.NewColumnFromArr(sc.Field(i), merged))
		merged.Release()
	}
	return array.NewTable(sc, cols, table.NumRows()), nil
}
