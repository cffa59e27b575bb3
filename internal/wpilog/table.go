package wpilog

import (
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// TimestampColumn is the name of the leading column in the record view.
const TimestampColumn = "timestamp"

// Arrow field metadata keys attached to every entry column.
const (
	MetaEntryID  = "wpilog.entry_id"
	MetaType     = "wpilog.type"
	MetaMetadata = "wpilog.metadata"
	MetaHeader   = "wpilog.extra_header"
)

// Column is one finalized entry column. Array has one slot per table row.
type Column struct {
	Entry Entry
	Array arrow.Array
}

// Name returns the entry name.
func (c *Column) Name() string { return c.Entry.Name }

// Len returns the number of rows.
func (c *Column) Len() int { return c.Array.Len() }

// IsNull reports whether row has no value.
func (c *Column) IsNull(row int) bool { return c.Array.IsNull(row) }

// Value returns the value at row in the Go shape documented on Value, or nil
// for a null slot.
func (c *Column) Value(row int) Value {
	if c.Array.IsNull(row) {
		return nil
	}
	switch arr := c.Array.(type) {
	case *array.Boolean:
		return arr.Value(row)
	case *array.Int64:
		return arr.Value(row)
	case *array.Float32:
		return arr.Value(row)
	case *array.Float64:
		return arr.Value(row)
	case *array.String:
		return arr.Value(row)
	case *array.List:
		start, end := arr.ValueOffsets(row)
		return listValue(arr.ListValues(), int(start), int(end))
	}
	return nil
}

func listValue(values arrow.Array, start, end int) Value {
	switch v := values.(type) {
	case *array.Boolean:
		out := make([]bool, 0, end-start)
		for i := start; i < end; i++ {
			out = append(out, v.Value(i))
		}
		return out
	case *array.Int64:
		out := make([]int64, end-start)
		copy(out, v.Int64Values()[start:end])
		return out
	case *array.Float32:
		out := make([]float32, end-start)
		copy(out, v.Float32Values()[start:end])
		return out
	case *array.Float64:
		out := make([]float64, end-start)
		copy(out, v.Float64Values()[start:end])
		return out
	case *array.String:
		out := make([]string, 0, end-start)
		for i := start; i < end; i++ {
			out = append(out, v.Value(i))
		}
		return out
	}
	return nil
}

// Release frees the column's arrow memory.
func (c *Column) Release() {
	if c.Array != nil {
		c.Array.Release()
		c.Array = nil
	}
}

// SkippedRecord describes a data record dropped in lenient mode.
type SkippedRecord struct {
	Offset   int
	EntryID  uint32
	HasEntry bool
	Err      error
}

// Table is the terminal, read-only result of one parse. Timestamps are
// strictly ascending and every column has len(Timestamps) rows.
type Table struct {
	Schema     *Schema
	Timestamps []int64
	Columns    []*Column
	// Skipped lists data records dropped in lenient mode, in stream order.
	Skipped []SkippedRecord

	mem memory.Allocator
}

// NumRows returns the row count.
func (t *Table) NumRows() int { return len(t.Timestamps) }

// NumColumns returns the column count including the timestamp column.
func (t *Table) NumColumns() int { return len(t.Columns) + 1 }

// Column returns the column named name.
func (t *Table) Column(name string) (*Column, bool) {
	for _, c := range t.Columns {
		if c.Entry.Name == name {
			return c, true
		}
	}
	return nil, false
}

// ArrowSchema returns the record view schema. Entry metadata travels as
// field metadata and the extra header as schema metadata.
func (t *Table) ArrowSchema() *arrow.Schema {
	fields := make([]arrow.Field, 0, len(t.Columns)+1)
	fields = append(fields, arrow.Field{
		Name: TimestampColumn,
		Type: arrow.FixedWidthTypes.Timestamp_us,
	})
	for _, c := range t.Columns {
		md := arrow.NewMetadata(
			[]string{MetaEntryID, MetaType, MetaMetadata},
			[]string{strconv.FormatUint(uint64(c.Entry.ID), 10), c.Entry.TypeToken, c.Entry.Metadata},
		)
		fields = append(fields, arrow.Field{
			Name:     c.Entry.Name,
			Type:     c.Entry.Type.ArrowType(),
			Nullable: true,
			Metadata: md,
		})
	}
	md := arrow.NewMetadata([]string{MetaHeader}, []string{t.Schema.Header.Extra})
	return arrow.NewSchema(fields, &md)
}

// Record returns the table as one arrow record, timestamp column first.
// The caller must Release it; the table stays valid.
func (t *Table) Record() arrow.Record {
	tb := array.NewTimestampBuilder(t.allocator(), arrow.FixedWidthTypes.Timestamp_us.(*arrow.TimestampType))
	defer tb.Release()
	tb.Reserve(len(t.Timestamps))
	for _, ts := range t.Timestamps {
		tb.UnsafeAppend(arrow.Timestamp(ts))
	}
	tsArr := tb.NewArray()
	defer tsArr.Release()

	cols := make([]arrow.Array, 0, len(t.Columns)+1)
	cols = append(cols, tsArr)
	for _, c := range t.Columns {
		cols = append(cols, c.Array)
	}
	return array.NewRecord(t.ArrowSchema(), cols, int64(len(t.Timestamps)))
}

// Release frees every column.
func (t *Table) Release() {
	for _, c := range t.Columns {
		c.Release()
	}
}

func (t *Table) allocator() memory.Allocator {
	if t.mem == nil {
		return memory.DefaultAllocator
	}
	return t.mem
}

// assembleTable finalizes every builder in column order.
func assembleTable(schema *Schema, index *TimestampIndex, builders []*ColumnBuilder, skipped []SkippedRecord, mem memory.Allocator) *Table {
	cols := make([]*Column, len(builders))
	for i, b := range builders {
		cols[i] = b.Finish(mem)
	}
	ts := index.Values()
	if ts == nil {
		ts = []int64{}
	}
	return &Table{
		Schema:     schema,
		Timestamps: ts,
		Columns:    cols,
		Skipped:    skipped,
		mem:        mem,
	}
}
