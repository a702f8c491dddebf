// Package scan reads Avro object container files into Arrow records through
// a lazy, pull-based, batched pipeline.
//
// A Scanner resolves the schema of its source set once, then hands out
// BatchReaders that decode rows on demand, apply projection, predicate and
// row-limit operators per batch, and yield Arrow records. Sources are
// processed strictly sequentially and every source must translate to the
// schema committed from the first one.
package scan

import (
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/hamba/avro/v2/ocf"

	"github.com/avroscan/avroscan/internal/batch"
	"github.com/avroscan/avroscan/internal/json"
	pool "github.com/avroscan/avroscan/internal/memory"
	"github.com/avroscan/avroscan/schema"
)

// ocfSchemaKey is the OCF metadata key carrying the writer schema document.
const ocfSchemaKey = "avro.schema"

// SchemaMismatchError reports a source whose translated schema disagrees with
// the schema committed from source 0.
type SchemaMismatchError struct {
	Index     int
	Got, Want *arrow.Schema
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema of source %d didn't match schema of source 0\n%v != %v",
		e.Index, e.Got, e.Want)
}

// RowPredicate filters decoded rows. It sees only the projected columns.
type RowPredicate func(row map[string]any) (bool, error)

// BatchOptions configure one batch-production pass over the source set.
type BatchOptions struct {
	// Columns is an ordered subset of schema fields to retain; nil keeps
	// every column.
	Columns []string

	// Predicate drops rows it returns false for, after projection.
	Predicate RowPredicate

	// Limit caps the total number of rows produced; 0 means no limit.
	Limit int64

	// BatchSize overrides the scanner's batch size; 0 keeps it.
	BatchSize int64
}

// Scanner is the lazy scan handle. Schema resolution and batch production
// share one committed schema and, when possible, the source decoder already
// opened during schema discovery.
type Scanner struct {
	sources []Source
	cfg     config

	committed *arrow.Schema
	singleton bool

	// pending is the source cursor opened by Schema, not yet consumed.
	// It is moved, at most once, to the first Batches call.
	pending *cursor
}

// NewScanner builds a scanner over the given sources. Configuration is
// validated eagerly; no I/O happens until Schema or Batches is called.
func NewScanner(sources []Source, opts ...Option) (*Scanner, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.batchSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrBatchSize, cfg.batchSize)
	}
	return &Scanner{sources: sources, cfg: cfg}, nil
}

// Schema resolves and memoizes the scan's schema. The first call opens the
// source sequence and translates the first source's writer schema; the
// opened decoder is retained so the first batch pass doesn't reopen it.
func (s *Scanner) Schema() (*arrow.Schema, error) {
	if s.committed != nil {
		return s.committed, nil
	}
	cur, err := s.openCursor()
	if err != nil {
		return nil, err
	}
	s.committed = cur.committed
	s.singleton = cur.singleton
	s.pending = cur
	return s.committed, nil
}

// Singleton reports whether the top-level schema had to be wrapped into a
// synthetic one-field record. Valid once Schema has succeeded.
func (s *Scanner) Singleton() bool {
	return s.singleton
}

func (s *Scanner) openCursor() (*cursor, error) {
	expanded, err := expandSources(s.sources, s.cfg.glob)
	if err != nil {
		return nil, err
	}
	cur := &cursor{sources: expanded, cfg: s.cfg}
	if err := cur.openNext(); err != nil {
		cur.Close()
		return nil, err
	}
	return cur, nil
}

// Batches starts one batch-production pass. It reuses the decoder retained
// by Schema when still available, otherwise reopens the source sequence
// from scratch. The returned reader must be closed.
func (s *Scanner) Batches(ctx context.Context, opts BatchOptions) (*BatchReader, error) {
	if opts.BatchSize < 0 {
		return nil, fmt.Errorf("%w: %d", ErrBatchSize, opts.BatchSize)
	}
	if _, err := s.Schema(); err != nil {
		return nil, err
	}

	cur := s.pending
	s.pending = nil
	if cur == nil {
		var err error
		cur, err = s.openCursor()
		if err != nil {
			return nil, err
		}
	}

	projected := s.committed
	if opts.Columns != nil {
		fields := make([]arrow.Field, len(opts.Columns))
		for i, name := range opts.Columns {
			indices := s.committed.FieldIndices(name)
			if len(indices) == 0 {
				cur.Close()
				return nil, fmt.Errorf("column %q is not part of the schema %v", name, s.committed)
			}
			fields[i] = s.committed.Field(indices[0])
		}
		projected = arrow.NewSchema(fields, nil)
	}

	mem := pool.GetAllocator()
	bldr, err := batch.NewBuilder(mem, projected)
	if err != nil {
		cur.Close()
		pool.PutAllocator(mem)
		return nil, err
	}

	batchSize := opts.BatchSize
	if batchSize == 0 {
		batchSize = s.cfg.batchSize
	}
	remaining := int64(-1)
	if opts.Limit > 0 {
		remaining = opts.Limit
	}

	return &BatchReader{
		ctx:        ctx,
		cur:        cur,
		bldr:       bldr,
		mem:        mem,
		schema:     projected,
		columns:    opts.Columns,
		predicate:  opts.Predicate,
		batchSize:  batchSize,
		remaining:  remaining,
		singleton:  s.singleton,
		singleName: s.cfg.singleColName,
	}, nil
}

// cursor walks the expanded source set, owning at most one open decoder at
// a time. It validates every newly opened source against the committed
// schema before exposing its rows.
type cursor struct {
	sources []Source
	cfg     config

	idx    int // next source to open
	dec    *ocf.Decoder
	closer io.Closer

	committed *arrow.Schema
	singleton bool
}

func (c *cursor) openNext() error {
	src := c.sources[c.idx]
	r, closer, err := src.open()
	if err != nil {
		return err
	}
	closeSrc := func() {
		if closer != nil {
			closer.Close()
		}
	}

	dec, err := ocf.NewDecoder(r)
	if err != nil {
		closeSrc()
		return fmt.Errorf("failed to open avro decoder for %s: %w", src.label(), err)
	}

	var doc any
	if err := json.Unmarshal(dec.Metadata()[ocfSchemaKey], &doc); err != nil {
		closeSrc()
		return fmt.Errorf("failed to parse writer schema of %s: %w", src.label(), err)
	}
	translated, singleton, err := schema.Translate(doc, schema.Options{
		ConvertLogicalTypes: c.cfg.convertLogicalTypes,
		SingleColName:       c.cfg.singleColName,
	})
	if err != nil {
		closeSrc()
		return err
	}

	if c.committed == nil {
		c.committed = translated
		c.singleton = singleton
	} else if !schema.Equal(translated, c.committed) || singleton != c.singleton {
		closeSrc()
		return &SchemaMismatchError{Index: c.idx, Got: translated, Want: c.committed}
	}

	c.dec = dec
	c.closer = closer
	c.idx++
	return nil
}

// next returns the next decoded row of the flattened source sequence, or
// io.EOF once every source is exhausted. File handles are released as each
// source runs out of rows.
func (c *cursor) next() (any, error) {
	for {
		if c.dec == nil {
			if c.idx >= len(c.sources) {
				return nil, io.EOF
			}
			if err := c.openNext(); err != nil {
				return nil, err
			}
		}
		if c.dec.HasNext() {
			var v any
			if err := c.dec.Decode(&v); err != nil {
				return nil, fmt.Errorf("failed to decode avro row: %w", err)
			}
			return v, nil
		}
		if err := c.dec.Error(); err != nil {
			return nil, fmt.Errorf("avro decoder failed: %w", err)
		}
		c.closeCurrent()
	}
}

func (c *cursor) closeCurrent() {
	if c.closer != nil {
		c.closer.Close()
		c.closer = nil
	}
	c.dec = nil
}

// Close releases the currently open source, if any, and stops the walk.
func (c *cursor) Close() {
	c.closeCurrent()
	c.idx = len(c.sources)
}

// BatchReader produces Arrow records on demand. It satisfies the module's
// arrio.Reader contract: Read returns (nil, io.EOF) once the scan is done.
// Close is safe at any point and releases still-open source handles.
type BatchReader struct {
	ctx  context.Context
	cur  *cursor
	bldr *batch.Builder
	mem  memory.Allocator

	schema    *arrow.Schema
	columns   []string
	predicate RowPredicate
	batchSize int64
	remaining int64 // rows left under the limit; -1 when unlimited

	singleton  bool
	singleName string

	done   bool
	closed bool
}

// Schema returns the (projected) schema of the records being read.
func (r *BatchReader) Schema() *arrow.Schema {
	return r.schema
}

// Read decodes the next batch of rows, applies projection, predicate and
// limit, and returns the resulting record. The caller owns the record and
// must release it.
func (r *BatchReader) Read() (arrow.Record, error) {
	if r.closed {
		return nil, fmt.Errorf("read on closed batch reader")
	}
	if r.done {
		return nil, io.EOF
	}
	if err := r.ctx.Err(); err != nil {
		r.abort()
		return nil, err
	}

	rows := make([]map[string]any, 0, min(r.batchSize, 1024)) // cap the initial alloc; batches default to 32768
	for int64(len(rows)) < r.batchSize {
		v, err := r.cur.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			r.abort()
			return nil, err
		}
		row, err := r.asRow(v)
		if err != nil {
			r.abort()
			return nil, err
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		r.finish()
		return nil, io.EOF
	}

	if r.predicate != nil {
		kept := rows[:0]
		for _, row := range rows {
			ok, err := r.predicate(row)
			if err != nil {
				r.abort()
				return nil, fmt.Errorf("predicate failed: %w", err)
			}
			if ok {
				kept = append(kept, row)
			}
		}
		rows = kept
	}

	if r.remaining >= 0 {
		if int64(len(rows)) > r.remaining {
			rows = rows[:r.remaining]
		}
		r.remaining -= int64(len(rows))
	}

	if err := r.bldr.Append(rows); err != nil {
		r.abort()
		return nil, err
	}
	rec := r.bldr.NewRecord()

	if r.remaining == 0 {
		r.finish()
	}
	return rec, nil
}

// asRow normalizes one decoded value into a projected row map. Singleton
// schemas wrap the value under the configured column name first.
func (r *BatchReader) asRow(v any) (map[string]any, error) {
	if r.singleton {
		v = map[string]any{r.singleName: v}
	}
	row, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decoded row has unexpected shape %T", v)
	}
	if r.columns == nil {
		return row, nil
	}
	projected := make(map[string]any, len(r.columns))
	for _, name := range r.columns {
		if val, ok := row[name]; ok {
			projected[name] = val
		}
	}
	return projected, nil
}

// finish ends the scan early or at EOF, releasing open source handles while
// keeping the reader usable for further (EOF-returning) reads.
func (r *BatchReader) finish() {
	r.done = true
	r.cur.Close()
}

func (r *BatchReader) abort() {
	r.finish()
}

// Close releases the reader's resources. Records already returned stay
// valid.
func (r *BatchReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.finish()
	r.bldr.Release()
	pool.PutAllocator(r.mem)
	return nil
}
