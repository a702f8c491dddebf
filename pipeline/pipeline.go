// Package pipeline moves Arrow records from a reader to a writer through a
// buffered channel, collecting throughput metrics along the way.
package pipeline

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/apache/arrow/go/v17/arrow"

	"github.com/avroscan/avroscan/internal/arrio"
	"github.com/avroscan/avroscan/internal/json"
)

// Reader is a closeable record source.
type Reader interface {
	arrio.Reader
	Close() error
}

// Writer is a closeable record sink.
type Writer interface {
	arrio.Writer
	Close() error
}

// Metrics stores pipeline processing metrics.
type Metrics struct {
	mu sync.Mutex

	RecordsProcessed int64     `json:"records_processed"`
	TotalBytes       int64     `json:"total_bytes"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	Throughput       float64   `json:"throughput_records_per_second"`
	ThroughputBytes  float64   `json:"throughput_bytes_per_second"`
}

func (m *Metrics) observe(rec arrow.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RecordsProcessed += rec.NumRows()
	m.TotalBytes += recordSize(rec)
}

func (m *Metrics) finalize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EndTime = time.Now()
	if d := m.EndTime.Sub(m.StartTime); d > 0 {
		m.Throughput = float64(m.RecordsProcessed) / d.Seconds()
		m.ThroughputBytes = float64(m.TotalBytes) / d.Seconds()
	}
}

// Report renders the metrics as indented JSON.
func (m *Metrics) Report() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out, err := json.Marshal(m)
	if err != nil {
		return err.Error()
	}
	return string(out)
}

// recordSize approximates a record's size from its column buffers.
func recordSize(rec arrow.Record) int64 {
	var size int64
	for _, col := range rec.Columns() {
		for _, buf := range col.Data().Buffers() {
			if buf != nil {
				size += int64(buf.Len())
			}
		}
	}
	return size
}

// Pipeline streams records from a reader to a writer.
type Pipeline struct {
	reader  Reader
	writer  Writer
	metrics *Metrics
}

// New creates a pipeline. The pipeline owns reader and writer and closes
// both when Run returns.
func New(reader Reader, writer Writer) *Pipeline {
	return &Pipeline{
		reader:  reader,
		writer:  writer,
		metrics: &Metrics{StartTime: time.Now()},
	}
}

// Run drains the reader into the writer and returns the collected metrics.
// Cancellation of ctx stops the transfer at the next record boundary.
func (p *Pipeline) Run(ctx context.Context) (*Metrics, error) {
	var (
		wg       sync.WaitGroup
		readErr  error
		writeErr error
	)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	records := make(chan arrow.Record, 8)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(records)
		defer p.reader.Close()
		for {
			rec, err := p.reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				readErr = err
				cancel()
				return
			}
			p.metrics.observe(rec)
			select {
			case records <- rec:
			case <-ctx.Done():
				rec.Release()
				return
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer p.writer.Close()
		for rec := range records {
			if writeErr == nil && ctx.Err() == nil {
				if err := p.writer.Write(rec); err != nil {
					writeErr = err
					cancel()
				}
			}
			rec.Release()
		}
	}()

	wg.Wait()
	p.metrics.finalize()

	switch {
	case readErr != nil:
		return nil, readErr
	case writeErr != nil:
		return nil, writeErr
	case ctx.Err() != nil:
		return nil, ctx.Err()
	}
	return p.metrics, nil
}
