package wpilog

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

type scalar interface {
	bool | int64 | float32 | float64 | string
}

// columnStore holds one column's values by row until it is materialized.
type columnStore interface {
	// set stores v at row and reports false if v has the wrong Go type.
	set(row int, v Value) bool
	build(mem memory.Allocator) arrow.Array
}

// ColumnBuilder is a pre-sized, row-indexed, null-aware write target for one
// entry. Every row starts null. A second write to the same row replaces the
// first; nothing is carried to other rows.
type ColumnBuilder struct {
	entry     Entry
	rows      int
	store     columnStore
	finalized bool
}

// NewColumnBuilder returns a builder of rows null values typed by entry.Type.
func NewColumnBuilder(entry Entry, rows int) *ColumnBuilder {
	return &ColumnBuilder{entry: entry, rows: rows, store: newColumnStore(entry.Type, rows)}
}

func newColumnStore(t ColumnType, rows int) columnStore {
	switch t {
	case TypeBoolean:
		return newScalarStore[bool](rows)
	case TypeInt64:
		return newScalarStore[int64](rows)
	case TypeFloat32:
		return newScalarStore[float32](rows)
	case TypeFloat64:
		return newScalarStore[float64](rows)
	case TypeString, TypeRaw, TypeOpaque:
		return newScalarStore[string](rows)
	case TypeBooleanArray:
		return newListStore[bool](rows)
	case TypeInt64Array:
		return newListStore[int64](rows)
	case TypeFloat32Array:
		return newListStore[float32](rows)
	case TypeFloat64Array:
		return newListStore[float64](rows)
	case TypeStringArray:
		return newListStore[string](rows)
	default:
		panic("wpilog: no column store for type " + t.String())
	}
}

// Entry returns the schema entry the builder was created for.
func (b *ColumnBuilder) Entry() Entry { return b.entry }

// Set writes v at row. A value of the wrong shape for the column type, an
// out-of-range row, or a write after Finish is a ParseError naming the
// column and entry.
func (b *ColumnBuilder) Set(row int, v Value) error {
	if b.finalized {
		return newEntryError(KindParse, 0, b.entry.ID, "column %q: write after finalization", b.entry.Name)
	}
	if row < 0 || row >= b.rows {
		return newEntryError(KindParse, 0, b.entry.ID, "column %q: row %d out of range [0,%d)", b.entry.Name, row, b.rows)
	}
	if !b.store.set(row, v) {
		return newEntryError(KindParse, 0, b.entry.ID, "column %q (%s): cannot store %T", b.entry.Name, b.entry.Type, v)
	}
	return nil
}

// Finish materializes the builder into an immutable Column. The builder
// accepts no writes afterwards.
func (b *ColumnBuilder) Finish(mem memory.Allocator) *Column {
	b.finalized = true
	arr := b.store.build(mem)
	b.store = nil
	return &Column{Entry: b.entry, Array: arr}
}

type scalarStore[T scalar] struct {
	values []T
	valid  []bool
}

func newScalarStore[T scalar](rows int) *scalarStore[T] {
	return &scalarStore[T]{values: make([]T, rows), valid: make([]bool, rows)}
}

func (s *scalarStore[T]) set(row int, v Value) bool {
	x, ok := v.(T)
	if !ok {
		return false
	}
	s.values[row] = x
	s.valid[row] = true
	return true
}

func (s *scalarStore[T]) build(mem memory.Allocator) arrow.Array {
	switch vals := any(s.values).(type) {
	case []bool:
		b := array.NewBooleanBuilder(mem)
		defer b.Release()
		b.AppendValues(vals, s.valid)
		return b.NewArray()
	case []int64:
		b := array.NewInt64Builder(mem)
		defer b.Release()
		b.AppendValues(vals, s.valid)
		return b.NewArray()
	case []float32:
		b := array.NewFloat32Builder(mem)
		defer b.Release()
		b.AppendValues(vals, s.valid)
		return b.NewArray()
	case []float64:
		b := array.NewFloat64Builder(mem)
		defer b.Release()
		b.AppendValues(vals, s.valid)
		return b.NewArray()
	case []string:
		b := array.NewStringBuilder(mem)
		defer b.Release()
		b.AppendValues(vals, s.valid)
		return b.NewArray()
	}
	panic("unreachable")
}

type listStore[T scalar] struct {
	values [][]T
	valid  []bool
}

func newListStore[T scalar](rows int) *listStore[T] {
	return &listStore[T]{values: make([][]T, rows), valid: make([]bool, rows)}
}

func (s *listStore[T]) set(row int, v Value) bool {
	x, ok := v.([]T)
	if !ok {
		return false
	}
	s.values[row] = x
	s.valid[row] = true
	return true
}

func (s *listStore[T]) build(mem memory.Allocator) arrow.Array {
	switch vals := any(s.values).(type) {
	case [][]bool:
		return buildList(mem, arrow.FixedWidthTypes.Boolean, vals, s.valid, func(b array.Builder, v []bool) {
			b.(*array.BooleanBuilder).AppendValues(v, nil)
		})
	case [][]int64:
		return buildList(mem, arrow.PrimitiveTypes.Int64, vals, s.valid, func(b array.Builder, v []int64) {
			b.(*array.Int64Builder).AppendValues(v, nil)
		})
	case [][]float32:
		return buildList(mem, arrow.PrimitiveTypes.Float32, vals, s.valid, func(b array.Builder, v []float32) {
			b.(*array.Float32Builder).AppendValues(v, nil)
		})
	case [][]float64:
		return buildList(mem, arrow.PrimitiveTypes.Float64, vals, s.valid, func(b array.Builder, v []float64) {
			b.(*array.Float64Builder).AppendValues(v, nil)
		})
	case [][]string:
		return buildList(mem, arrow.BinaryTypes.String, vals, s.valid, func(b array.Builder, v []string) {
			b.(*array.StringBuilder).AppendValues(v, nil)
		})
	}
	panic("unreachable")
}

func buildList[T any](mem memory.Allocator, elem arrow.DataType, values [][]T, valid []bool, appendElems func(array.Builder, []T)) arrow.Array {
	lb := array.NewListBuilder(mem, elem)
	defer lb.Release()
	lb.Reserve(len(values))
	vb := lb.ValueBuilder()
	for i, v := range values {
		if !valid[i] {
			lb.AppendNull()
			continue
		}
		lb.Append(true)
		if len(v) > 0 {
			appendElems(vb, v)
		}
	}
	return lb.NewArray()
}
