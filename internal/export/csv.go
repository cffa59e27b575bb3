package export

import (
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/basekick-labs/wpilog/internal/config"
	"github.com/basekick-labs/wpilog/internal/wpilog"
	"github.com/rs/zerolog"
)

// CSVWriter writes a table as CSV with a header row. The timestamp column
// holds integer microseconds; list cells use arrow's {a,b} form.
type CSVWriter struct {
	null   string
	logger zerolog.Logger
}

// NewCSVWriter creates a writer from export settings.
func NewCSVWriter(cfg *config.ExportConfig, logger zerolog.Logger) *CSVWriter {
	return &CSVWriter{
		null:   cfg.CSVNull,
		logger: logger.With().Str("component", "csv-writer").Logger(),
	}
}

// Extension returns the file extension for this format.
func (w *CSVWriter) Extension() string { return ".csv" }

// Write writes table to out.
func (w *CSVWriter) Write(out io.Writer, table *wpilog.Table) error {
	record := table.Record()
	defer record.Release()

	record = integerTimestamps(record)
	defer record.Release()

	cw := csv.NewWriter(out, record.Schema(),
		csv.WithHeader(true),
		csv.WithNullWriter(w.null),
	)
	if err := cw.Write(record); err != nil {
		return fmt.Errorf("failed to write CSV rows: %w", err)
	}
	if err := cw.Flush(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}

	w.logger.Debug().
		Int("columns", int(record.NumCols())).
		Int("rows", int(record.NumRows())).
		Msg("Wrote CSV file")
	return nil
}

// integerTimestamps returns a record whose leading timestamp column is
// reinterpreted as int64 over the same buffers.
func integerTimestamps(rec arrow.Record) arrow.Record {
	schema := rec.Schema()
	fields := schema.Fields()
	fields[0] = arrow.Field{Name: fields[0].Name, Type: arrow.PrimitiveTypes.Int64}

	cols := make([]arrow.Array, rec.NumCols())
	copy(cols, rec.Columns())

	data := array.NewData(arrow.PrimitiveTypes.Int64, cols[0].Len(), cols[0].Data().Buffers(), nil, cols[0].NullN(), cols[0].Data().Offset())
	defer data.Release()
	ts := array.NewInt64Data(data)
	defer ts.Release()
	cols[0] = ts

	md := schema.Metadata()
	return array.NewRecord(arrow.NewSchema(fields, &md), cols, rec.NumRows())
}
