package wpilog

import "encoding/binary"

// Cursor is a bounds-checked sequential reader over an immutable byte span.
// Reads never cross the end of the span; a short read returns ErrUnexpectedEnd
// and leaves the position unchanged.
type Cursor struct {
	buf      []byte
	pos      int
	repaired int
}

// NewCursor returns a cursor positioned at the start of buf.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Position returns the current offset from the start of the span.
func (c *Cursor) Position() int { return c.pos }

// Repaired returns how many strings read so far held invalid UTF-8.
func (c *Cursor) Repaired() int { return c.repaired }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.buf) - c.pos }

// ReadU8 reads one byte.
func (c *Cursor) ReadU8() (uint8, error) {
	if c.Remaining() < 1 {
		return 0, ErrUnexpectedEnd
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

// ReadUintLE reads an unsigned little-endian integer of 1 to 8 bytes.
func (c *Cursor) ReadUintLE(width int) (uint64, error) {
	if width < 1 || width > 8 {
		return 0, ErrUnexpectedEnd
	}
	if c.Remaining() < width {
		return 0, ErrUnexpectedEnd
	}
	var v uint64
	for i := 0; i < width; i++ {
		v |= uint64(c.buf[c.pos+i]) << (8 * i)
	}
	c.pos += width
	return v, nil
}

// ReadU32 reads a 4-byte little-endian unsigned integer.
func (c *Cursor) ReadU32() (uint32, error) {
	if c.Remaining() < 4 {
		return 0, ErrUnexpectedEnd
	}
	v := binary.LittleEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v, nil
}

// ReadBytes returns the next n bytes without copying. The returned slice
// aliases the span and must not be modified.
func (c *Cursor) ReadBytes(n uint64) ([]byte, error) {
	if n > uint64(c.Remaining()) {
		return nil, ErrUnexpectedEnd
	}
	b := c.buf[c.pos : c.pos+int(n) : c.pos+int(n)]
	c.pos += int(n)
	return b, nil
}

// ReadString reads a 4-byte length prefix followed by that many bytes.
// Invalid UTF-8 is replaced rather than rejected. The position is restored
// if the body is short.
func (c *Cursor) ReadString() (string, error) {
	start := c.pos
	n, err := c.ReadU32()
	if err != nil {
		return "", err
	}
	b, err := c.ReadBytes(uint64(n))
	if err != nil {
		c.pos = start
		return "", err
	}
	s, fixed := decodeText(b)
	if fixed {
		c.repaired++
	}
	return s, nil
}
