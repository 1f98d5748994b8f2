// Package cursor provides a bounds-checked sequential reader over an
// immutable byte buffer.
package cursor

import (
	"bytes"
	"encoding/binary"
	"math"

	"flightlog/internal/flterr"
)

// Cursor reads little-endian values from a byte buffer. It never copies:
// slices returned by Read alias the underlying buffer and must not be modified.
type Cursor struct {
	buf []byte
	pos int
}

// New creates a cursor positioned at the start of buf
func New(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Offset returns the current position
func (c *Cursor) Offset() int { return c.pos }

// Len returns the total buffer length
func (c *Cursor) Len() int { return len(c.buf) }

// Remaining returns the number of unread bytes
func (c *Cursor) Remaining() int { return len(c.buf) - c.pos }

// Seek moves the cursor to an absolute offset
func (c *Cursor) Seek(offset int) error {
	if offset < 0 || offset > len(c.buf) {
		return flterr.Newf(flterr.KindUnexpectedEnd, "seek to %d outside buffer of %d bytes", offset, len(c.buf)).At(offset)
	}
	c.pos = offset
	return nil
}

// Read returns the next n bytes and advances past them
func (c *Cursor) Read(n int) ([]byte, error) {
	b, err := c.Peek(n)
	if err != nil {
		return nil, err
	}
	c.pos += n
	return b, nil
}

// Peek returns the next n bytes without advancing
func (c *Cursor) Peek(n int) ([]byte, error) {
	if n < 0 {
		return nil, flterr.Newf(flterr.KindInvalidArgument, "negative read length %d", n).At(c.pos)
	}
	if n > c.Remaining() {
		return nil, flterr.Newf(flterr.KindUnexpectedEnd, "need %d bytes, %d remain", n, c.Remaining()).At(c.pos)
	}
	return c.buf[c.pos : c.pos+n : c.pos+n], nil
}

// PeekTag reads the one-byte record type identifier without consuming it
func (c *Cursor) PeekTag() (uint8, error) {
	b, err := c.Peek(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Skip advances n bytes
func (c *Cursor) Skip(n int) error {
	_, err := c.Read(n)
	return err
}

// IndexByte returns the offset of the next occurrence of b at or after the
// current position, or -1.
func (c *Cursor) IndexByte(b byte) int {
	i := bytes.IndexByte(c.buf[c.pos:], b)
	if i < 0 {
		return -1
	}
	return c.pos + i
}

func (c *Cursor) Uint8() (uint8, error) {
	b, err := c.Read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Cursor) Int8() (int8, error) {
	v, err := c.Uint8()
	return int8(v), err
}

func (c *Cursor) Uint16() (uint16, error) {
	b, err := c.Read(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *Cursor) Int16() (int16, error) {
	v, err := c.Uint16()
	return int16(v), err
}

func (c *Cursor) Uint32() (uint32, error) {
	b, err := c.Read(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *Cursor) Int32() (int32, error) {
	v, err := c.Uint32()
	return int32(v), err
}

func (c *Cursor) Uint64() (uint64, error) {
	b, err := c.Read(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (c *Cursor) Int64() (int64, error) {
	v, err := c.Uint64()
	return int64(v), err
}

func (c *Cursor) Float32() (float32, error) {
	v, err := c.Uint32()
	return math.Float32frombits(v), err
}

func (c *Cursor) Float64() (float64, error) {
	v, err := c.Uint64()
	return math.Float64frombits(v), err
}

// String reads a fixed-width NUL-padded string
func (c *Cursor) String(n int) (string, error) {
	b, err := c.Read(n)
	if err != nil {
		return "", err
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(bytes.TrimSpace(b)), nil
}
