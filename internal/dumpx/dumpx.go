// Package dumpx opens raw bytecode dumps and maps addresses to offsets within them.
//
// A dump is either a bare ABC block, a memory dump taken at a known base
// address, or one of those wrapped in gzip, zip or a zlib-compressed SWF.
// Plain files are mmapped; compressed inputs are inflated onto the heap.
package dumpx

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"syscall"

	"avmdis/internal/stream"
)

type Image struct {
	Path string
	All  []byte
	// Base is the virtual address of All[0]. Zero means addresses are file offsets.
	Base uint64
	// Format names the wrapper that was removed: "raw", "gzip", "zip" or "cws".
	Format string

	mapped bool
	f      *os.File
}

// MaxInflated caps the decompressed size of a wrapped dump.
var MaxInflated int64 = 256 << 20

// ErrTooLarge is returned when a wrapped dump inflates past its limit.
var ErrTooLarge = errors.New("decompressed dump too large")

// readLimited reads r to EOF, failing once more than limit bytes arrive.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(out)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	return out, nil
}

// Open maps the file at path. Compressed dumps are inflated.
func Open(path string, base uint64) (*Image, error) {
	of, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open dump: %w", err)
	}

	fi, err := of.Stat()
	if err != nil {
		of.Close()
		return nil, fmt.Errorf("stat dump: %w", err)
	}
	if fi.Size() == 0 {
		of.Close()
		return &Image{Path: path, All: []byte{}, Base: base, Format: "raw"}, nil
	}

	all, err := syscall.Mmap(int(of.Fd()), 0, int(fi.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		of.Close()
		return nil, fmt.Errorf("mmap dump: %w", err)
	}

	im := &Image{Path: path, All: all, Base: base, Format: "raw", mapped: true, f: of}
	if format := detect(all); format != "raw" {
		data, err := inflate(all, format, path)
		if cerr := im.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			return nil, err
		}
		return &Image{Path: path, All: data, Base: base, Format: format}, nil
	}
	return im, nil
}

// FromBytes wraps an in-memory dump.
func FromBytes(data []byte, base uint64) *Image {
	return &Image{Path: "<memory>", All: data, Base: base, Format: "raw"}
}

// Close unmaps the memory and closes the underlying file.
func (im *Image) Close() error {
	var err1, err2 error
	if im.mapped && im.All != nil {
		err1 = syscall.Munmap(im.All)
	}
	im.All = nil
	im.mapped = false
	if im.f != nil {
		err2 = im.f.Close()
		im.f = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

// Size returns the dump length in bytes.
func (im *Image) Size() int { return len(im.All) }

// VA2Off translates a virtual address into a dump offset.
// It returns false if the address falls outside the dump.
func (im *Image) VA2Off(va uint64) (uint64, bool) {
	if va < im.Base {
		return 0, false
	}
	off := va - im.Base
	if off >= uint64(len(im.All)) {
		return 0, false
	}
	return off, true
}

// SliceVA returns the dump bytes for the virtual address range [va, va+size).
func (im *Image) SliceVA(va uint64, size uint64) ([]byte, bool) {
	off, ok := im.VA2Off(va)
	if !ok {
		return nil, false
	}
	if size == 0 {
		return []byte{}, true
	}
	end := off + size
	if end > uint64(len(im.All)) {
		return nil, false
	}
	return im.All[off:end], true
}

// CursorAt returns a cursor over the whole dump positioned at virtual address va.
// Decoded offsets stay relative to the start of the dump.
func (im *Image) CursorAt(va uint64) (*stream.Cursor, error) {
	off, ok := im.VA2Off(va)
	if !ok {
		return nil, fmt.Errorf("%w: address %#x outside dump [%#x, %#x)",
			stream.ErrOutOfBounds, va, im.Base, im.Base+uint64(len(im.All)))
	}
	return stream.NewAt(im.All, int(off))
}

// ParseAddress parses a decimal or 0x-prefixed address.
func ParseAddress(s string) (uint64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "_", ""))
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return v, nil
}

func detect(data []byte) string {
	switch {
	case len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b:
		return "gzip"
	case len(data) >= 4 && data[0] == 'P' && data[1] == 'K' && data[2] == 0x03 && data[3] == 0x04:
		return "zip"
	case len(data) >= 8 && data[0] == 'C' && data[1] == 'W' && data[2] == 'S':
		return "cws"
	}
	return "raw"
}

// inflate copies the decompressed payload out of data, which may be mmapped.
func inflate(data []byte, format, name string) ([]byte, error) {
	switch format {
	case "gzip":
		slog.Debug("Detected gzip compression", "file", name)
		reader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip reader creation failed: %w", err)
		}
		defer reader.Close()
		out, err := readLimited(reader, MaxInflated)
		if err != nil {
			return nil, fmt.Errorf("gzip decompression failed: %w", err)
		}
		slog.Debug("Gzip decompression successful", "file", name,
			"original_size", len(data), "decompressed_size", len(out))
		return out, nil

	case "zip":
		slog.Debug("Detected ZIP archive", "file", name)
		reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, fmt.Errorf("zip reader creation failed: %w", err)
		}
		if len(reader.File) == 0 {
			return nil, fmt.Errorf("zip archive is empty")
		}
		// first entry only
		file := reader.File[0]
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open file in zip: %w", err)
		}
		defer rc.Close()
		out, err := readLimited(rc, MaxInflated)
		if err != nil {
			return nil, fmt.Errorf("failed to read file from zip: %w", err)
		}
		slog.Debug("ZIP decompression successful", "file", name,
			"archive_file", file.Name, "original_size", len(data), "decompressed_size", len(out))
		return out, nil

	case "cws":
		// 8-byte header (signature, version, uncompressed length) then zlib.
		slog.Debug("Detected compressed SWF", "file", name, "version", data[3])
		reader, err := zlib.NewReader(bytes.NewReader(data[8:]))
		if err != nil {
			return nil, fmt.Errorf("swf zlib reader creation failed: %w", err)
		}
		defer reader.Close()
		// the declared length covers the header too
		size := binary.LittleEndian.Uint32(data[4:8])
		if size < 8 {
			return nil, fmt.Errorf("swf declares %d bytes, shorter than its header", size)
		}
		body, err := readLimited(reader, min(int64(size)-8, MaxInflated))
		if err != nil {
			return nil, fmt.Errorf("swf decompression failed: %w", err)
		}
		out := make([]byte, 8, 8+len(body))
		copy(out, data[:8])
		out[0] = 'F'
		out = append(out, body...)
		slog.Debug("SWF decompression successful", "file", name,
			"declared_size", size, "decompressed_size", len(out))
		return out, nil
	}
	return nil, fmt.Errorf("unknown dump format %q", format)
}
