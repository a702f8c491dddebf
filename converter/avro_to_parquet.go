// Package converter exports scanned Avro data into other file formats.
package converter

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/compress"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
	"go.uber.org/zap"

	pool "github.com/avroscan/avroscan/internal/memory"
	"github.com/avroscan/avroscan/pipeline"
	"github.com/avroscan/avroscan/scan"
)

// ConvertAvroToParquet streams an Avro OCF file into a Parquet file and
// returns a metrics report. batchSize is the row count per record pushed
// through the pipeline; zero uses the scan default. Unrecognized logical
// types are converted to their physical types rather than failing.
func ConvertAvroToParquet(ctx context.Context, avroPath, parquetPath string, batchSize int64, compression compress.Compression) (string, error) {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if err := validateInputs(ctx, avroPath, parquetPath, batchSize); err != nil {
		return "", err
	}

	scanOpts := []scan.Option{scan.WithConvertLogicalTypes()}
	if batchSize > 0 {
		scanOpts = append(scanOpts, scan.WithBatchSize(batchSize))
	}
	scanner, err := scan.NewScanner([]scan.Source{scan.Path(avroPath)}, scanOpts...)
	if err != nil {
		return "", err
	}

	reader, err := scanner.Batches(ctx, scan.BatchOptions{})
	if err != nil {
		logger.Error("failed to open avro scan", zap.String("file", avroPath), zap.Error(err))
		return "", fmt.Errorf("failed to open avro scan: %w", err)
	}

	writer, err := newParquetWriter(parquetPath, reader.Schema(), compression)
	if err != nil {
		reader.Close()
		logger.Error("failed to create parquet writer", zap.String("file", parquetPath), zap.Error(err))
		return "", fmt.Errorf("failed to create parquet writer: %w", err)
	}

	metrics, err := pipeline.New(reader, writer).Run(ctx)
	if err != nil {
		return "", fmt.Errorf("avro to parquet pipeline failed: %w", err)
	}

	logger.Info("conversion complete",
		zap.String("avro", avroPath),
		zap.String("parquet", parquetPath),
		zap.Int64("rows", metrics.RecordsProcessed),
	)
	return metrics.Report(), nil
}

func validateInputs(ctx context.Context, avroPath, parquetPath string, batchSize int64) error {
	if ctx == nil {
		return errors.New("context cannot be nil")
	}
	if avroPath == "" {
		return errors.New("avro file path cannot be empty")
	}
	if parquetPath == "" {
		return errors.New("parquet file path cannot be empty")
	}
	if batchSize < 0 {
		return fmt.Errorf("%w: %d", scan.ErrBatchSize, batchSize)
	}
	return nil
}

// parquetWriter adapts a pqarrow file writer to the pipeline's Writer.
type parquetWriter struct {
	writer *pqarrow.FileWriter
	file   *os.File
}

func newParquetWriter(path string, sc *arrow.Schema, compression compress.Compression) (*parquetWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	props := parquet.NewWriterProperties(
		parquet.WithCompression(compression),
		parquet.WithAllocator(pool.GetAllocator()),
		parquet.WithVersion(parquet.V2_LATEST),
	)
	w, err := pqarrow.NewFileWriter(sc, f, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		f.Close()
		return nil, err
	}
	return &parquetWriter{writer: w, file: f}, nil
}

func (p *parquetWriter) Write(rec arrow.Record) error {
	return p.writer.Write(rec)
}

func (p *parquetWriter) Close() error {
	// FileWriter.Close finalizes the footer and closes the underlying file
	return p.writer.Close()
}
