package wpilog

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
)

// Decoded values by column type:
//
//	Boolean       bool
//	Int64         int64
//	Float32       float32
//	Float64       float64
//	String        string
//	Raw, Opaque   string (lowercase hex of the payload, or JSON for msgpack when enabled)
//	*Array        []bool, []int64, []float32, []float64, []string
type Value = interface{}

// payloadDecoder decodes data payloads for one parse.
type payloadDecoder struct {
	decodeMsgpack bool
	// repaired counts, per entry id, values whose text held invalid UTF-8.
	repaired map[uint32]int
}

func (d *payloadDecoder) noteRepaired(id uint32, n int) {
	if n == 0 {
		return
	}
	if d.repaired == nil {
		d.repaired = make(map[uint32]int)
	}
	d.repaired[id] += n
}

// decode converts payload according to entry's column type. The error is a
// plain message; the caller attaches record context.
func (d *payloadDecoder) decode(entry Entry, payload []byte) (Value, error) {
	switch entry.Type {
	case TypeBoolean:
		if len(payload) != 1 {
			return nil, sizeError("boolean", 1, len(payload))
		}
		return payload[0] != 0, nil

	case TypeInt64:
		if len(payload) != 8 {
			return nil, sizeError("int64", 8, len(payload))
		}
		return int64(binary.LittleEndian.Uint64(payload)), nil

	case TypeFloat32:
		if len(payload) != 4 {
			return nil, sizeError("float", 4, len(payload))
		}
		return math.Float32frombits(binary.LittleEndian.Uint32(payload)), nil

	case TypeFloat64:
		if len(payload) != 8 {
			return nil, sizeError("double", 8, len(payload))
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(payload)), nil

	case TypeString:
		s, fixed := decodeText(payload)
		if fixed {
			d.noteRepaired(entry.ID, 1)
		}
		return s, nil

	case TypeRaw:
		return hex.EncodeToString(payload), nil

	case TypeOpaque:
		if d.decodeMsgpack && entry.TypeToken == "msgpack" {
			if s, ok := msgpackText(payload); ok {
				return s, nil
			}
		}
		return hex.EncodeToString(payload), nil

	case TypeBooleanArray:
		out := make([]bool, len(payload))
		for i, b := range payload {
			out[i] = b != 0
		}
		return out, nil

	case TypeInt64Array:
		if len(payload)%8 != 0 {
			return nil, multipleError("int64[]", 8, len(payload))
		}
		out := make([]int64, len(payload)/8)
		for i := range out {
			out[i] = int64(binary.LittleEndian.Uint64(payload[i*8:]))
		}
		return out, nil

	case TypeFloat32Array:
		if len(payload)%4 != 0 {
			return nil, multipleError("float[]", 4, len(payload))
		}
		out := make([]float32, len(payload)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
		}
		return out, nil

	case TypeFloat64Array:
		if len(payload)%8 != 0 {
			return nil, multipleError("double[]", 8, len(payload))
		}
		out := make([]float64, len(payload)/8)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(payload[i*8:]))
		}
		return out, nil

	case TypeStringArray:
		out, repaired, err := decodeStringArray(payload)
		if err != nil {
			return nil, err
		}
		d.noteRepaired(entry.ID, repaired)
		return out, nil

	default:
		return nil, fmt.Errorf("no decoder for column type %s", entry.Type)
	}
}

// decodeStringArray reads a 4-byte element count followed by that many
// length-prefixed strings, and returns how many elements needed UTF-8
// repair. The count is checked against the smallest possible encoding
// before anything is allocated.
func decodeStringArray(payload []byte) ([]string, int, error) {
	c := NewCursor(payload)
	n, err := c.ReadU32()
	if err != nil {
		return nil, 0, fmt.Errorf("string[] payload of %d bytes has no element count", len(payload))
	}
	if uint64(n)*4 > uint64(c.Remaining()) {
		return nil, 0, fmt.Errorf("string[] element count %d exceeds payload of %d bytes", n, len(payload))
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := c.ReadString()
		if err != nil {
			return nil, 0, fmt.Errorf("string[] element %d truncated", i)
		}
		out = append(out, s)
	}
	if c.Remaining() != 0 {
		return nil, 0, fmt.Errorf("string[] payload has %d trailing bytes", c.Remaining())
	}
	return out, c.Repaired(), nil
}

func sizeError(typ string, want, got int) error {
	return fmt.Errorf("%s payload must be %d bytes, got %d", typ, want, got)
}

func multipleError(typ string, elem, got int) error {
	return fmt.Errorf("%s payload of %d bytes is not a multiple of %d", typ, got, elem)
}
