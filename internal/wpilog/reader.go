package wpilog

import (
	"errors"
	"io"
)

// File header layout: magic(6) + version(2, LE) + extra header length(4, LE) + extra header.
const (
	Magic          = "WPILOG"
	MinVersion     = 0x0100
	headerFixedLen = len(Magic) + 2 + 4
)

// Header is the decoded file header.
type Header struct {
	Version uint16
	Extra   string
}

// Record is one framed record. Payload aliases the input span.
type Record struct {
	EntryID   uint32
	Timestamp int64 // microseconds
	Payload   []byte
	Offset    int // byte offset of the record's control byte
}

// IsControl reports whether the record carries a control payload.
func (r Record) IsControl() bool { return r.EntryID == 0 }

// Reader validates the header of a WPILog span and hands out record iterators.
// It never copies or mutates the span.
type Reader struct {
	data   []byte
	header Header
	start  int
}

// NewReader validates the magic, version and extra header of data.
func NewReader(data []byte) (*Reader, error) {
	c := NewCursor(data)
	magic, err := c.ReadBytes(uint64(len(Magic)))
	if err != nil || string(magic) != Magic {
		return nil, newError(KindInvalidFormat, 0, "missing %q signature", Magic)
	}
	version, err := c.ReadUintLE(2)
	if err != nil {
		return nil, newError(KindInvalidFormat, c.Position(), "truncated version field")
	}
	if version < MinVersion {
		return nil, newError(KindInvalidFormat, len(Magic), "unsupported version 0x%04x", version)
	}
	extraOffset := c.Position()
	extra, err := c.ReadString()
	if err != nil {
		return nil, newError(KindInvalidFormat, extraOffset, "truncated extra header")
	}

	return &Reader{
		data:   data,
		header: Header{Version: uint16(version), Extra: extra},
		start:  c.Position(),
	}, nil
}

// Header returns the decoded file header.
func (r *Reader) Header() Header { return r.header }

// Len returns the size of the underlying span.
func (r *Reader) Len() int { return len(r.data) }

// Records returns a fresh iterator positioned at the first record.
// Iterators are independent; each call restarts from the beginning.
func (r *Reader) Records() *RecordIterator {
	return &RecordIterator{c: &Cursor{buf: r.data, pos: r.start}}
}

// RecordIterator yields records in stream order.
type RecordIterator struct {
	c    *Cursor
	done bool
}

// Next returns the next record. It returns io.EOF at a clean end of span.
// A framing failure is returned as a ParseError; the iterator is exhausted
// afterwards since the boundary of the following record is unknown.
func (it *RecordIterator) Next() (Record, error) {
	if it.done || it.c.Remaining() == 0 {
		it.done = true
		return Record{}, io.EOF
	}

	rec, err := it.readRecord()
	if err != nil {
		it.done = true
		return Record{}, err
	}
	return rec, nil
}

// readRecord decodes: control byte, entry id, payload length, timestamp, payload.
// Control byte bits 0-1, 2-3 and 4-6 hold the entry, length and timestamp
// widths minus one.
func (it *RecordIterator) readRecord() (Record, error) {
	c := it.c
	offset := c.Position()

	ctrl, err := c.ReadU8()
	if err != nil {
		return Record{}, newError(KindParse, offset, "truncated record header")
	}
	entryLen := int(ctrl&0x3) + 1
	sizeLen := int((ctrl>>2)&0x3) + 1
	tsLen := int((ctrl>>4)&0x7) + 1

	entry, err := c.ReadUintLE(entryLen)
	if err != nil {
		return Record{}, newError(KindParse, offset, "truncated record header: %d bytes remain", c.Remaining()+1)
	}
	size, err := c.ReadUintLE(sizeLen)
	if err != nil {
		return Record{}, newEntryError(KindParse, offset, uint32(entry), "truncated record header")
	}
	ts, err := c.ReadUintLE(tsLen)
	if err != nil {
		return Record{}, newEntryError(KindParse, offset, uint32(entry), "truncated record header")
	}
	payload, err := c.ReadBytes(size)
	if err != nil {
		e := newEntryError(KindParse, offset, uint32(entry),
			"payload length %d exceeds %d remaining bytes", size, c.Remaining())
		e.Err = err
		return Record{}, e
	}

	return Record{
		EntryID:   uint32(entry),
		Timestamp: int64(ts),
		Payload:   payload,
		Offset:    offset,
	}, nil
}

// isTrailingDataFailure reports whether err is a framing failure of a record
// that is not known to be a control record. Such failures can only occur at
// the end of the span.
func isTrailingDataFailure(err error) bool {
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindParse {
		return false
	}
	return !e.HasEntry || e.EntryID != 0
}
