// Package export writes parsed WPILog tables to Parquet and CSV and runs
// batch conversions from byte sources to storage sinks.
package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/basekick-labs/wpilog/internal/config"
	"github.com/basekick-labs/wpilog/internal/wpilog"
	"github.com/rs/zerolog"
)

// Parquet key/value metadata keys written alongside the arrow schema.
const (
	MetaJobID   = "wpilog.job_id"
	MetaVersion = "wpilog.version"
)

// ParquetWriter writes the arrow record view of a table as one Parquet
// row group.
type ParquetWriter struct {
	compression     compress.Compression
	useDictionary   bool
	writeStatistics bool
	dataPageVersion string

	logger zerolog.Logger
}

// NewParquetWriter creates a writer from export settings.
func NewParquetWriter(cfg *config.ExportConfig, logger zerolog.Logger) *ParquetWriter {
	return &ParquetWriter{
		compression:     compressionCodec(cfg.Compression),
		useDictionary:   cfg.UseDictionary,
		writeStatistics: cfg.WriteStatistics,
		dataPageVersion: cfg.DataPageVersion,
		logger:          logger.With().Str("component", "parquet-writer").Logger(),
	}
}

func compressionCodec(name string) compress.Compression {
	switch name {
	case "uncompressed", "none":
		return compress.Codecs.Uncompressed
	case "gzip":
		return compress.Codecs.Gzip
	case "zstd":
		return compress.Codecs.Zstd
	case "lz4":
		return compress.Codecs.Lz4Raw
	default:
		return compress.Codecs.Snappy
	}
}

// Extension returns the file extension for this format.
func (w *ParquetWriter) Extension() string { return ".parquet" }

// Write writes table to out.
func (w *ParquetWriter) Write(out io.Writer, table *wpilog.Table) error {
	return w.WriteJob(out, table, "")
}

// WriteJob writes table to out and stamps jobID into the file metadata
// when it is not empty.
func (w *ParquetWriter) WriteJob(out io.Writer, table *wpilog.Table, jobID string) error {
	record := table.Record()
	defer record.Release()

	writerOpts := []parquet.WriterProperty{
		parquet.WithCompression(w.compression),
		parquet.WithDictionaryDefault(w.useDictionary),
		parquet.WithStats(w.writeStatistics),
	}
	if w.dataPageVersion == "2.0" {
		writerOpts = append(writerOpts, parquet.WithDataPageVersion(parquet.DataPageV2))
	}
	writerProps := parquet.NewWriterProperties(writerOpts...)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(record.Schema(), out, writerProps, arrowProps)
	if err != nil {
		return fmt.Errorf("failed to create Parquet writer: %w", err)
	}

	if err := writer.Write(record); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write record batch: %w", err)
	}

	if err := writer.AppendKeyValueMetadata(MetaVersion, formatVersion(table.Schema.Header.Version)); err != nil {
		writer.Close()
		return fmt.Errorf("failed to append metadata: %w", err)
	}
	if jobID != "" {
		if err := writer.AppendKeyValueMetadata(MetaJobID, jobID); err != nil {
			writer.Close()
			return fmt.Errorf("failed to append metadata: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close Parquet writer: %w", err)
	}

	w.logger.Debug().
		Int("columns", int(record.NumCols())).
		Int("rows", int(record.NumRows())).
		Str("job_id", jobID).
		Msg("Wrote Parquet file")
	return nil
}

// formatVersion renders 0x0100 as "1.0".
func formatVersion(v uint16) string {
	return strconv.Itoa(int(v>>8)) + "." + strconv.Itoa(int(v&0xff))
}
