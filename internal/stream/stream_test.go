package stream

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadVarintRoundTrip(t *testing.T) {
	values := []uint32{
		0, 1, 0x7F, 0x80, 0xFF, 0x3FFF, 0x4000, 0x1FFFFF, 0x200000,
		0x0FFFFFFF, 0x10000000, 0x3FFFFFFF, 0x7FFFFFFF, 0x80000000, math.MaxUint32,
	}
	for _, v := range values {
		enc := AppendVarint(nil, v)
		require.Len(t, enc, VarintLen(v), "encoded length of %#x", v)

		c := New(enc)
		got, err := c.ReadVarint()
		require.NoError(t, err)
		require.Equal(t, v, got, "round trip of %#x", v)
		require.Equal(t, len(enc), c.Pos(), "cursor must consume the whole encoding of %#x", v)
	}
}

func TestReadVarintSweep(t *testing.T) {
	// Walk the whole 32-bit range with a coarse prime stride plus every
	// group boundary.
	for v := uint64(0); v <= math.MaxUint32; v += 104729 {
		enc := AppendVarint(nil, uint32(v))
		got, err := New(enc).ReadVarint()
		if err != nil || got != uint32(v) {
			t.Fatalf("varint %#x: got %#x, err %v", v, got, err)
		}
	}
	for shift := 0; shift < 32; shift++ {
		for _, v := range []uint32{1<<shift - 1, 1 << shift, 1<<shift + 1} {
			got, err := New(AppendVarint(nil, v)).ReadVarint()
			if err != nil || got != v {
				t.Fatalf("varint %#x: got %#x, err %v", v, got, err)
			}
		}
	}
}

func TestReadVarintFifthByteUsesAllBits(t *testing.T) {
	// The fifth byte is shifted in whole; bits beyond 32 fall away.
	buf := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	c := New(buf)
	got, err := c.ReadVarint()
	require.NoError(t, err)
	require.Equal(t, uint32(math.MaxUint32), got)
	require.Equal(t, 5, c.Pos())
}

func TestReadVarintNonCanonical(t *testing.T) {
	// A redundant continuation still decodes to the same value.
	got, err := New([]byte{0x81, 0x00}).ReadVarint()
	require.NoError(t, err)
	require.Equal(t, uint32(1), got)
}

func TestReadVarintTruncated(t *testing.T) {
	c := New([]byte{0x80, 0x80})
	_, err := c.ReadVarint()
	require.ErrorIs(t, err, ErrOutOfBounds)
	// consumed continuation bytes stay consumed
	require.Equal(t, 2, c.Pos())
}

func TestReadS24(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want int32
	}{
		{"minus one", []byte{0xFF, 0xFF, 0xFF}, -1},
		{"one", []byte{0x01, 0x00, 0x00}, 1},
		{"min", []byte{0x00, 0x00, 0x80}, -8388608},
		{"max", []byte{0xFF, 0xFF, 0x7F}, 8388607},
		{"mixed", []byte{0x34, 0x12, 0x00}, 0x1234},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.in)
			got, err := c.ReadS24()
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.Equal(t, 3, c.Pos())
			require.Equal(t, tt.in, AppendS24(nil, tt.want))
		})
	}
}

func TestFixedReads(t *testing.T) {
	c := New([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F})

	b, err := c.ReadU8()
	require.NoError(t, err)
	require.Equal(t, uint8(0x01), b)

	h, err := c.ReadU16()
	require.NoError(t, err)
	require.Equal(t, uint16(0x0302), h)

	w, err := c.ReadU32()
	require.NoError(t, err)
	require.Equal(t, uint32(0x07060504), w)

	q, err := c.ReadU64()
	require.NoError(t, err)
	require.Equal(t, uint64(0x0F0E0D0C0B0A0908), q)

	require.Equal(t, 0, c.Remaining())
	_, err = c.ReadU8()
	require.ErrorIs(t, err, ErrOutOfBounds)
}

func TestFailedReadDoesNotAdvance(t *testing.T) {
	c := New([]byte{0xAA, 0xBB})
	_, err := c.ReadU32()
	require.True(t, errors.Is(err, ErrOutOfBounds))
	require.Equal(t, 0, c.Pos())

	_, err = c.ReadS24()
	require.ErrorIs(t, err, ErrOutOfBounds)
	require.Equal(t, 0, c.Pos())
}

func TestReadCString(t *testing.T) {
	c := New([]byte("flash.display\x00Sprite\x00tail"))

	s, err := c.ReadCString()
	require.NoError(t, err)
	require.Equal(t, "flash.display", s)

	s, err = c.ReadCString()
	require.NoError(t, err)
	require.Equal(t, "Sprite", s)

	_, err = c.ReadCString()
	require.ErrorIs(t, err, ErrOutOfBounds)
	require.Equal(t, 21, c.Pos())
}

func TestNewAt(t *testing.T) {
	buf := []byte{0x00, 0x00, 0x2A}
	c, err := NewAt(buf, 2)
	require.NoError(t, err)
	v, err := c.ReadVarint()
	require.NoError(t, err)
	require.Equal(t, uint32(42), v)

	_, err = NewAt(buf, 4)
	require.ErrorIs(t, err, ErrOutOfBounds)
}

func TestSub(t *testing.T) {
	c := New([]byte{0x01, 0x02, 0x03, 0x04, 0x05})
	require.NoError(t, c.Skip(1))

	sub, err := c.Sub(2)
	require.NoError(t, err)
	require.Equal(t, 1, sub.Pos())
	require.Equal(t, 3, sub.Len())
	require.Equal(t, 3, c.Pos())

	// Reading past the carved region fails even though the parent has data.
	_, err = sub.ReadS24()
	require.ErrorIs(t, err, ErrOutOfBounds)

	v, err := sub.ReadU16()
	require.NoError(t, err)
	require.Equal(t, uint16(0x0302), v)

	_, err = c.Sub(5)
	require.ErrorIs(t, err, ErrOutOfBounds)
}

func BenchmarkReadVarint(b *testing.B) {
	var buf []byte
	for i := uint32(0); i < 1024; i++ {
		buf = AppendVarint(buf, i*2654435761)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c := New(buf)
		for c.Remaining() > 0 {
			if _, err := c.ReadVarint(); err != nil {
				b.Fatal(err)
			}
		}
	}
}
