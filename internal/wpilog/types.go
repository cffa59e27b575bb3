package wpilog

import (
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

// ColumnType is the logical type of an output column. The set is closed.
type ColumnType uint8

const (
	TypeBoolean ColumnType = iota + 1
	TypeInt64
	TypeFloat32
	TypeFloat64
	TypeString
	TypeRaw
	TypeBooleanArray
	TypeInt64Array
	TypeFloat32Array
	TypeFloat64Array
	TypeStringArray
	// TypeOpaque covers struct- and msgpack-encoded payloads.
	TypeOpaque
)

var columnTypeNames = map[ColumnType]string{
	TypeBoolean:      "boolean",
	TypeInt64:        "int64",
	TypeFloat32:      "float32",
	TypeFloat64:      "float64",
	TypeString:       "string",
	TypeRaw:          "raw",
	TypeBooleanArray: "boolean[]",
	TypeInt64Array:   "int64[]",
	TypeFloat32Array: "float32[]",
	TypeFloat64Array: "float64[]",
	TypeStringArray:  "string[]",
	TypeOpaque:       "opaque",
}

func (t ColumnType) String() string {
	if s, ok := columnTypeNames[t]; ok {
		return s
	}
	return "invalid"
}

// IsArray reports whether values of t are element sequences.
func (t ColumnType) IsArray() bool {
	switch t {
	case TypeBooleanArray, TypeInt64Array, TypeFloat32Array, TypeFloat64Array, TypeStringArray:
		return true
	}
	return false
}

// wire type tokens with an exact mapping
var wireTypes = map[string]ColumnType{
	"boolean":   TypeBoolean,
	"int64":     TypeInt64,
	"float":     TypeFloat32,
	"double":    TypeFloat64,
	"string":    TypeString,
	"raw":       TypeRaw,
	"boolean[]": TypeBooleanArray,
	"int64[]":   TypeInt64Array,
	"float[]":   TypeFloat32Array,
	"double[]":  TypeFloat64Array,
	"string[]":  TypeStringArray,
	"msgpack":   TypeOpaque,
}

// ResolveType maps a wire type token to a column type. Matching is
// case-sensitive. Tokens starting with "struct:" are Opaque. Any other
// unrecognized token resolves to String and known is false; this never fails.
func ResolveType(token string) (t ColumnType, known bool) {
	if t, ok := wireTypes[token]; ok {
		return t, true
	}
	if strings.HasPrefix(token, "struct:") {
		return TypeOpaque, true
	}
	return TypeString, false
}

// ArrowType returns the arrow data type used to materialize t.
// Raw and Opaque values are stored in their textual encoding.
func (t ColumnType) ArrowType() arrow.DataType {
	switch t {
	case TypeBoolean:
		return arrow.FixedWidthTypes.Boolean
	case TypeInt64:
		return arrow.PrimitiveTypes.Int64
	case TypeFloat32:
		return arrow.PrimitiveTypes.Float32
	case TypeFloat64:
		return arrow.PrimitiveTypes.Float64
	case TypeString, TypeRaw, TypeOpaque:
		return arrow.BinaryTypes.String
	case TypeBooleanArray:
		return arrow.ListOf(arrow.FixedWidthTypes.Boolean)
	case TypeInt64Array:
		return arrow.ListOf(arrow.PrimitiveTypes.Int64)
	case TypeFloat32Array:
		return arrow.ListOf(arrow.PrimitiveTypes.Float32)
	case TypeFloat64Array:
		return arrow.ListOf(arrow.PrimitiveTypes.Float64)
	case TypeStringArray:
		return arrow.ListOf(arrow.BinaryTypes.String)
	default:
		return arrow.Null
	}
}
