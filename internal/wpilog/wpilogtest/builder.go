// Package wpilogtest builds WPILog byte streams for tests.
package wpilogtest

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Builder appends records to an in-memory log. Methods chain.
type Builder struct {
	buf bytes.Buffer
}

// New returns a builder with a version 1.0 header and an empty extra header.
func New() *Builder {
	return NewWithHeader(0x0100, "")
}

// NewWithHeader returns a builder with the given header fields.
func NewWithHeader(version uint16, extra string) *Builder {
	b := &Builder{}
	b.buf.WriteString("WPILOG")
	b.buf.Write(binary.LittleEndian.AppendUint16(nil, version))
	b.buf.Write(lenPrefixed(extra))
	return b
}

// Bytes returns a copy of the log built so far.
func (b *Builder) Bytes() []byte {
	return bytes.Clone(b.buf.Bytes())
}

// Append writes raw bytes, for building malformed tails.
func (b *Builder) Append(p []byte) *Builder {
	b.buf.Write(p)
	return b
}

// Start writes a Start control record at timestamp 0.
func (b *Builder) Start(id uint32, name, typ, metadata string) *Builder {
	p := []byte{0}
	p = binary.LittleEndian.AppendUint32(p, id)
	p = append(p, lenPrefixed(name)...)
	p = append(p, lenPrefixed(typ)...)
	p = append(p, lenPrefixed(metadata)...)
	return b.Record(0, 0, p)
}

// Finish writes a Finish control record.
func (b *Builder) Finish(id uint32) *Builder {
	p := binary.LittleEndian.AppendUint32([]byte{1}, id)
	return b.Record(0, 0, p)
}

// SetMetadata writes a SetMetadata control record.
func (b *Builder) SetMetadata(id uint32, metadata string) *Builder {
	p := binary.LittleEndian.AppendUint32([]byte{2}, id)
	p = append(p, lenPrefixed(metadata)...)
	return b.Record(0, 0, p)
}

// Record writes a record using the smallest field widths.
func (b *Builder) Record(id uint32, ts int64, payload []byte) *Builder {
	return b.RecordWidths(id, ts, payload, width(uint64(id)), width(uint64(len(payload))), width(uint64(ts)))
}

// RecordWidths writes a record with explicit entry, size and timestamp
// field widths (1-4, 1-4, 1-8 bytes).
func (b *Builder) RecordWidths(id uint32, ts int64, payload []byte, idW, sizeW, tsW int) *Builder {
	b.buf.WriteByte(byte(idW-1) | byte(sizeW-1)<<2 | byte(tsW-1)<<4)
	b.buf.Write(le(uint64(id), idW))
	b.buf.Write(le(uint64(len(payload)), sizeW))
	b.buf.Write(le(uint64(ts), tsW))
	b.buf.Write(payload)
	return b
}

// Header writes a record header claiming size payload bytes without writing them.
func (b *Builder) Header(id uint32, ts int64, size int) *Builder {
	b.buf.WriteByte(byte(width(uint64(id))-1) | byte(width(uint64(size))-1)<<2 | byte(width(uint64(ts))-1)<<4)
	b.buf.Write(le(uint64(id), width(uint64(id))))
	b.buf.Write(le(uint64(size), width(uint64(size))))
	b.buf.Write(le(uint64(ts), width(uint64(ts))))
	return b
}

func (b *Builder) Boolean(id uint32, ts int64, v bool) *Builder {
	p := []byte{0}
	if v {
		p[0] = 1
	}
	return b.Record(id, ts, p)
}

func (b *Builder) Int64(id uint32, ts int64, v int64) *Builder {
	return b.Record(id, ts, binary.LittleEndian.AppendUint64(nil, uint64(v)))
}

func (b *Builder) Float(id uint32, ts int64, v float32) *Builder {
	return b.Record(id, ts, binary.LittleEndian.AppendUint32(nil, math.Float32bits(v)))
}

func (b *Builder) Double(id uint32, ts int64, v float64) *Builder {
	return b.Record(id, ts, binary.LittleEndian.AppendUint64(nil, math.Float64bits(v)))
}

func (b *Builder) String(id uint32, ts int64, v string) *Builder {
	return b.Record(id, ts, []byte(v))
}

func (b *Builder) DoubleArray(id uint32, ts int64, vs ...float64) *Builder {
	var p []byte
	for _, v := range vs {
		p = binary.LittleEndian.AppendUint64(p, math.Float64bits(v))
	}
	return b.Record(id, ts, p)
}

func (b *Builder) Int64Array(id uint32, ts int64, vs ...int64) *Builder {
	var p []byte
	for _, v := range vs {
		p = binary.LittleEndian.AppendUint64(p, uint64(v))
	}
	return b.Record(id, ts, p)
}

func (b *Builder) StringArray(id uint32, ts int64, vs ...string) *Builder {
	p := binary.LittleEndian.AppendUint32(nil, uint32(len(vs)))
	for _, v := range vs {
		p = append(p, lenPrefixed(v)...)
	}
	return b.Record(id, ts, p)
}

// SpeedPos returns the two-entry log used throughout the tests:
// speed=3.5 at t=1000 and pos=7.0 at t=2000.
func SpeedPos() []byte {
	return New().
		Start(1, "speed", "double", "").
		Double(1, 1000, 3.5).
		Start(2, "pos", "double", "").
		Double(2, 2000, 7.0).
		Bytes()
}

func lenPrefixed(s string) []byte {
	return append(binary.LittleEndian.AppendUint32(nil, uint32(len(s))), s...)
}

func width(v uint64) int {
	n := 1
	for v > 0xff {
		v >>= 8
		n++
	}
	return n
}

func le(v uint64, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = byte(v >> (8 * i))
	}
	return out
}
