package dumpx

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"avmdis/internal/stream"
)

var payload = []byte{0x10, 0x00, 0x2E, 0x00, 0x2A, 0x60, 0x2A, 0x47}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestOpenRaw(t *testing.T) {
	im, err := Open(writeFile(t, "dump.bin", payload), 0)
	require.NoError(t, err)
	defer im.Close()

	require.Equal(t, "raw", im.Format)
	require.Equal(t, payload, im.All)
	require.Equal(t, len(payload), im.Size())

	c, err := im.CursorAt(4)
	require.NoError(t, err)
	v, err := c.ReadVarint()
	require.NoError(t, err)
	require.Equal(t, uint32(0x2A), v)
}

func TestOpenEmpty(t *testing.T) {
	im, err := Open(writeFile(t, "empty.bin", nil), 0)
	require.NoError(t, err)
	require.Equal(t, 0, im.Size())
	require.NoError(t, im.Close())
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope"), 0)
	require.Error(t, err)
}

func TestOpenCompressed(t *testing.T) {
	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	_, _ = w.Write(payload)
	require.NoError(t, w.Close())

	var zb bytes.Buffer
	zw := zip.NewWriter(&zb)
	f, err := zw.Create("method.abc")
	require.NoError(t, err)
	_, _ = f.Write(payload)
	require.NoError(t, zw.Close())

	var z bytes.Buffer
	zl := zlib.NewWriter(&z)
	_, _ = zl.Write(payload)
	require.NoError(t, zl.Close())
	cws := []byte{'C', 'W', 'S', 10, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(cws[4:], uint32(8+len(payload)))
	cws = append(cws, z.Bytes()...)

	tests := []struct {
		name   string
		data   []byte
		format string
		want   []byte
	}{
		{"gzip", gz.Bytes(), "gzip", payload},
		{"zip", zb.Bytes(), "zip", payload},
		{"cws", cws, "cws", append([]byte{'F', 'W', 'S', 10, byte(8 + len(payload)), 0, 0, 0}, payload...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			im, err := Open(writeFile(t, "dump."+tt.name, tt.data), 0)
			require.NoError(t, err)
			defer im.Close()
			require.Equal(t, tt.format, im.Format)
			require.Equal(t, tt.want, im.All)
		})
	}
}

func TestOpenCompressedLimit(t *testing.T) {
	big := bytes.Repeat([]byte{0x47}, 64)

	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	_, _ = w.Write(big)
	require.NoError(t, w.Close())

	var zb bytes.Buffer
	zw := zip.NewWriter(&zb)
	f, err := zw.Create("method.abc")
	require.NoError(t, err)
	_, _ = f.Write(big)
	require.NoError(t, zw.Close())

	var z bytes.Buffer
	zl := zlib.NewWriter(&z)
	_, _ = zl.Write(big)
	require.NoError(t, zl.Close())
	// declares a 4-byte body but inflates to 64
	lying := append([]byte{'C', 'W', 'S', 10, 12, 0, 0, 0}, z.Bytes()...)
	short := append([]byte{'C', 'W', 'S', 10, 4, 0, 0, 0}, z.Bytes()...)

	tests := []struct {
		name  string
		data  []byte
		limit int64
	}{
		{"gzip", gz.Bytes(), 16},
		{"zip", zb.Bytes(), 16},
		{"cws over cap", append([]byte{'C', 'W', 'S', 10, 72, 0, 0, 0}, z.Bytes()...), 16},
		{"cws over declared", lying, 1 << 20},
		{"cws short header", short, 1 << 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := MaxInflated
			MaxInflated = tt.limit
			t.Cleanup(func() { MaxInflated = prev })

			_, err := Open(writeFile(t, "dump.bin", tt.data), 0)
			require.Error(t, err)
			if tt.name != "cws short header" {
				require.ErrorIs(t, err, ErrTooLarge)
			}
		})
	}

	im, err := Open(writeFile(t, "ok.gz", gz.Bytes()), 0)
	require.NoError(t, err)
	require.Equal(t, big, im.All)
	require.NoError(t, im.Close())
}

func TestOpenCorruptGzip(t *testing.T) {
	_, err := Open(writeFile(t, "bad.gz", []byte{0x1f, 0x8b, 0x00}), 0)
	require.Error(t, err)
}

func TestVA2Off(t *testing.T) {
	im := FromBytes(payload, 0x400000)
	tests := []struct {
		va   uint64
		off  uint64
		want bool
	}{
		{0x400000, 0, true},
		{0x400007, 7, true},
		{0x400008, 0, false},
		{0x3FFFFF, 0, false},
	}
	for _, tt := range tests {
		off, ok := im.VA2Off(tt.va)
		require.Equal(t, tt.want, ok, "va %#x", tt.va)
		require.Equal(t, tt.off, off, "va %#x", tt.va)
	}

	b, ok := im.SliceVA(0x400004, 2)
	require.True(t, ok)
	require.Equal(t, []byte{0x2A, 0x60}, b)
	_, ok = im.SliceVA(0x400006, 4)
	require.False(t, ok)

	_, err := im.CursorAt(0x10)
	require.ErrorIs(t, err, stream.ErrOutOfBounds)
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
		ok   bool
	}{
		{"42", 42, true},
		{"0x2a", 42, true},
		{" 0x40_0000 ", 0x400000, true},
		{"zz", 0, false},
		{"-1", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAddress(tt.in)
			if !tt.ok {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
