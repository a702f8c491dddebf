package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/parquet/compress"
	"github.com/docopt/docopt-go"

	"github.com/avroscan/avroscan/converter"
	"github.com/avroscan/avroscan/internal/arrio"
	"github.com/avroscan/avroscan/scan"
)

func main() {
	usage := `Avro Scanner.

Usage:
  avroscan schema <sources>...
  avroscan head <sources>... [--n=<rows>]
  avroscan parquet <source> <parquet_file> [--batch-size=<rows>] [--compression=<type>]
  avroscan -h | --help

Options:
  -h --help               Show this screen.
  --n=<rows>              Number of rows to print [default: 10].
  --batch-size=<rows>     Number of rows to read per batch [default: 32768].
  --compression=<type>    Compression type to use (e.g. none, snappy, gzip, zstd) [default: snappy].
`

	arguments, err := docopt.ParseDoc(usage)
	if err != nil {
		log.Fatalf("Error parsing arguments: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	switch {
	case arguments["schema"].(bool):
		paths, _ := arguments["<sources>"].([]string)
		printSchema(paths)
	case arguments["head"].(bool):
		paths, _ := arguments["<sources>"].([]string)
		n, _ := arguments.Int("--n")
		printHead(ctx, paths, int64(n))
	case arguments["parquet"].(bool):
		source, _ := arguments.String("<source>")
		parquetPath, _ := arguments.String("<parquet_file>")
		batchSize, _ := arguments.Int("--batch-size")
		compressionTypeStr, _ := arguments.String("--compression")

		var compressionType compress.Compression
		switch compressionTypeStr {
		case "snappy":
			compressionType = compress.Codecs.Snappy
		case "gzip":
			compressionType = compress.Codecs.Gzip
		case "zstd":
			compressionType = compress.Codecs.Zstd
		case "none":
			compressionType = compress.Codecs.Uncompressed
		default:
			log.Fatalf("Invalid compression type: %s", compressionTypeStr)
		}

		report, err := converter.ConvertAvroToParquet(ctx, source, parquetPath, int64(batchSize), compressionType)
		if err != nil {
			log.Fatalf("Failed to convert Avro to Parquet: %v", err)
		}
		fmt.Printf("Conversion completed. Summary: %s\n", report)
	}
}

func printSchema(paths []string) {
	scanner, err := scan.NewScanner(scan.Paths(paths...))
	if err != nil {
		log.Fatalf("Failed to create scanner: %v", err)
	}
	sc, err := scanner.Schema()
	if err != nil {
		log.Fatalf("Failed to resolve schema: %v", err)
	}
	fmt.Println(sc)
}

func printHead(ctx context.Context, paths []string, n int64) {
	scanner, err := scan.NewScanner(scan.Paths(paths...))
	if err != nil {
		log.Fatalf("Failed to create scanner: %v", err)
	}
	reader, err := scanner.Batches(ctx, scan.BatchOptions{Limit: n})
	if err != nil {
		log.Fatalf("Failed to start scan: %v", err)
	}
	defer reader.Close()

	if _, err := arrio.Copy(jsonWriter{os.Stdout}, reader); err != nil {
		log.Fatalf("Failed to read batch: %v", err)
	}
}

// jsonWriter renders each record as a JSON array of rows, one batch per line.
type jsonWriter struct {
	out io.Writer
}

func (w jsonWriter) Write(rec arrow.Record) error {
	out, err := rec.MarshalJSON()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w.out, string(out))
	return err
}
