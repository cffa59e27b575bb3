package wpilog

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func entryOf(token string) Entry {
	typ, _ := ResolveType(token)
	return Entry{ID: 1, Name: "e", Type: typ, TypeToken: token}
}

func f64(v float64) []byte { return binary.LittleEndian.AppendUint64(nil, math.Float64bits(v)) }

func TestDecode_Scalars(t *testing.T) {
	d := payloadDecoder{}
	tests := []struct {
		token   string
		payload []byte
		want    Value
	}{
		{"boolean", []byte{1}, true},
		{"boolean", []byte{0}, false},
		{"int64", binary.LittleEndian.AppendUint64(nil, uint64(0xfffffffffffffffe)), int64(-2)},
		{"float", binary.LittleEndian.AppendUint32(nil, math.Float32bits(1.25)), float32(1.25)},
		{"double", f64(3.5), 3.5},
		{"string", []byte("hello"), "hello"},
		{"string", []byte{'o', 'k', 0xc3}, "ok�"},
		{"widget", []byte("absorbed"), "absorbed"},
		{"raw", []byte{0xde, 0xad, 0x01}, "dead01"},
		{"struct:Pose2d", []byte{0x00, 0xff}, "00ff"},
		{"msgpack", []byte{0x81}, "81"},
	}

	for _, tt := range tests {
		got, err := d.decode(entryOf(tt.token), tt.payload)
		if err != nil {
			t.Errorf("%s %x: unexpected error: %v", tt.token, tt.payload, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s %x: got %#v, want %#v", tt.token, tt.payload, got, tt.want)
		}
	}
}

func TestDecode_SizeMismatch(t *testing.T) {
	d := payloadDecoder{}
	tests := []struct {
		token   string
		payload []byte
	}{
		{"boolean", nil},
		{"boolean", []byte{1, 0}},
		{"int64", []byte{1, 2, 3, 4}},
		{"float", f64(1)},
		{"double", f64(1)[:7]},
		{"double", append(f64(1), 0)},
		{"int64[]", make([]byte, 12)},
		{"float[]", make([]byte, 6)},
		{"double[]", make([]byte, 9)},
	}

	for _, tt := range tests {
		if _, err := d.decode(entryOf(tt.token), tt.payload); err == nil {
			t.Errorf("%s with %d bytes: expected error", tt.token, len(tt.payload))
		}
	}
}

func TestDecode_Arrays(t *testing.T) {
	d := payloadDecoder{}

	v, err := d.decode(entryOf("boolean[]"), []byte{1, 0, 2})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, v)

	v, err = d.decode(entryOf("double[]"), append(f64(1.5), f64(-2)...))
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, -2}, v)

	v, err = d.decode(entryOf("int64[]"), nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{}, v)

	v, err = d.decode(entryOf("float[]"), binary.LittleEndian.AppendUint32(nil, math.Float32bits(0.5)))
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5}, v)
}

func TestDecode_StringArray(t *testing.T) {
	d := payloadDecoder{}
	p := binary.LittleEndian.AppendUint32(nil, 2)
	p = append(p, str("a")...)
	p = append(p, str("bc")...)

	v, err := d.decode(entryOf("string[]"), p)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "bc"}, v)

	_, err = d.decode(entryOf("string[]"), append(p, 0))
	assert.Error(t, err, "trailing bytes")

	_, err = d.decode(entryOf("string[]"), p[:len(p)-1])
	assert.Error(t, err, "truncated element")

	huge := binary.LittleEndian.AppendUint32(nil, math.MaxUint32)
	_, err = d.decode(entryOf("string[]"), huge)
	assert.Error(t, err, "count larger than payload")

	_, err = d.decode(entryOf("string[]"), []byte{1, 0})
	assert.Error(t, err, "missing count")
}

func TestDecode_RepairedText(t *testing.T) {
	d := payloadDecoder{}

	v, err := d.decode(entryOf("string"), []byte("fine"))
	require.NoError(t, err)
	assert.Equal(t, "fine", v)
	assert.Empty(t, d.repaired)

	v, err = d.decode(entryOf("string"), []byte{'a', 0xff, 0xfe, 'b'})
	require.NoError(t, err)
	assert.Equal(t, "a\uFFFDb", v)

	p := binary.LittleEndian.AppendUint32(nil, 3)
	p = append(p, str("ok")...)
	p = append(p, 1, 0, 0, 0, 0xc3)
	p = append(p, 1, 0, 0, 0, 0x80)
	v, err = d.decode(entryOf("string[]"), p)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok", "\uFFFD", "\uFFFD"}, v)

	assert.Equal(t, map[uint32]int{1: 3}, d.repaired)
}

func TestDecode_Msgpack(t *testing.T) {
	payload, err := msgpack.Marshal(map[string]interface{}{"x": 1, "tags": []string{"a"}})
	require.NoError(t, err)

	plain := payloadDecoder{}
	v, err := plain.decode(entryOf("msgpack"), payload)
	require.NoError(t, err)
	assert.NotContains(t, v, "{")

	d := payloadDecoder{decodeMsgpack: true}
	v, err = d.decode(entryOf("msgpack"), payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1,"tags":["a"]}`, v.(string))

	// Trailing garbage falls back to hex.
	v, err = d.decode(entryOf("msgpack"), append(payload, 0xc1))
	require.NoError(t, err)
	assert.NotContains(t, v, "{")

	// Struct entries are never decoded as msgpack.
	v, err = d.decode(entryOf("struct:Pose2d"), payload)
	require.NoError(t, err)
	assert.NotContains(t, v, "{")
}
