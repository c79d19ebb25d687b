// Package stream provides a bounds-checked positional reader over ABC bytecode
// buffers, plus the matching encoders used to build test fixtures.
package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrOutOfBounds is returned when a read would run past the end of the buffer.
var ErrOutOfBounds = errors.New("read out of bounds")

// Cursor reads forward through an immutable byte buffer.
// Positions are absolute offsets into the buffer it was created over.
type Cursor struct {
	buf []byte
	pos int
}

// New returns a cursor positioned at the start of buf.
func New(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// NewAt returns a cursor over buf positioned at off.
func NewAt(buf []byte, off int) (*Cursor, error) {
	if off < 0 || off > len(buf) {
		return nil, fmt.Errorf("%w: start offset %d outside buffer of %d bytes", ErrOutOfBounds, off, len(buf))
	}
	return &Cursor{buf: buf, pos: off}, nil
}

// Pos returns the current absolute offset.
func (c *Cursor) Pos() int { return c.pos }

// Len returns the absolute end offset of the readable region.
func (c *Cursor) Len() int { return len(c.buf) }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.buf) - c.pos }

func (c *Cursor) need(n int) error {
	if n < 0 || c.pos+n > len(c.buf) {
		return fmt.Errorf("%w: need %d bytes at offset %d, %d available", ErrOutOfBounds, n, c.pos, c.Remaining())
	}
	return nil
}

// Skip advances the cursor by n bytes.
func (c *Cursor) Skip(n int) error {
	if err := c.need(n); err != nil {
		return err
	}
	c.pos += n
	return nil
}

// Sub carves a child cursor over the next n bytes and advances c past them.
// The child keeps absolute offsets, so reads through it that would cross the
// end of the carved region fail with ErrOutOfBounds.
func (c *Cursor) Sub(n int) (*Cursor, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	child := &Cursor{buf: c.buf[:c.pos+n], pos: c.pos}
	c.pos += n
	return child, nil
}

// ReadBytes returns the next n bytes. The returned slice aliases the buffer.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	b := c.buf[c.pos : c.pos+n : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *Cursor) ReadU8() (uint8, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

func (c *Cursor) ReadU16() (uint16, error) {
	b, err := c.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *Cursor) ReadU32() (uint32, error) {
	b, err := c.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *Cursor) ReadU64() (uint64, error) {
	b, err := c.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadVarint decodes the ABC variable-length unsigned integer (u30/u32).
//
// The first four bytes contribute 7 bits each and continue while the high bit
// of the running value is set; a fifth byte, if reached, is shifted in whole
// at bit 28 and always terminates. On error the cursor is left where the
// failing byte would have been read.
func (c *Cursor) ReadVarint() (uint32, error) {
	b, err := c.ReadU8()
	if err != nil {
		return 0, err
	}
	result := uint32(b)
	if result&0x00000080 == 0 {
		return result, nil
	}
	if b, err = c.ReadU8(); err != nil {
		return 0, err
	}
	result = result&0x0000007F | uint32(b)<<7
	if result&0x00004000 == 0 {
		return result, nil
	}
	if b, err = c.ReadU8(); err != nil {
		return 0, err
	}
	result = result&0x00003FFF | uint32(b)<<14
	if result&0x00200000 == 0 {
		return result, nil
	}
	if b, err = c.ReadU8(); err != nil {
		return 0, err
	}
	result = result&0x001FFFFF | uint32(b)<<21
	if result&0x10000000 == 0 {
		return result, nil
	}
	if b, err = c.ReadU8(); err != nil {
		return 0, err
	}
	return result&0x0FFFFFFF | uint32(b)<<28, nil
}

// ReadS24 reads a signed 24-bit little-endian value.
func (c *Cursor) ReadS24() (int32, error) {
	b, err := c.ReadBytes(3)
	if err != nil {
		return 0, err
	}
	return int32(b[0]) | int32(b[1])<<8 | int32(int8(b[2]))<<16, nil
}

// ReadCString reads bytes up to a zero terminator and consumes the terminator.
func (c *Cursor) ReadCString() (string, error) {
	for i := c.pos; i < len(c.buf); i++ {
		if c.buf[i] == 0 {
			s := string(c.buf[c.pos:i])
			c.pos = i + 1
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unterminated string at offset %d", ErrOutOfBounds, c.pos)
}
