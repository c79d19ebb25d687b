// Package pool models the constant pool name table that trait and
// instruction operands index into. Decoders only see the Lookup capability;
// Names is the map-backed implementation loaded from a names file.
package pool

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Lookup resolves a pool index to a name.
type Lookup interface {
	Name(index uint32) (string, bool)
}

// LookupFunc adapts a plain function to Lookup.
type LookupFunc func(index uint32) (string, bool)

func (f LookupFunc) Name(index uint32) (string, bool) { return f(index) }

// Empty resolves nothing.
var Empty Lookup = LookupFunc(func(uint32) (string, bool) { return "", false })

// Resolve returns the name for index, or "" when l is nil or has no entry.
func Resolve(l Lookup, index uint32) string {
	if l == nil {
		return ""
	}
	name, ok := l.Name(index)
	if !ok {
		return ""
	}
	return name
}

// Names is an immutable index → name table.
type Names struct {
	byIndex map[uint32]string
	order   []uint32
}

// NewNames builds a table from m. m is copied.
func NewNames(m map[uint32]string) *Names {
	n := &Names{byIndex: make(map[uint32]string, len(m))}
	for idx, name := range m {
		n.byIndex[idx] = name
		n.order = append(n.order, idx)
	}
	sort.Slice(n.order, func(i, j int) bool { return n.order[i] < n.order[j] })
	return n
}

func (n *Names) Name(index uint32) (string, bool) {
	if n == nil {
		return "", false
	}
	name, ok := n.byIndex[index]
	return name, ok
}

// Find returns the lowest index whose name equals name.
func (n *Names) Find(name string) (uint32, bool) {
	if n == nil {
		return 0, false
	}
	for _, idx := range n.order {
		if n.byIndex[idx] == name {
			return idx, true
		}
	}
	return 0, false
}

// Len returns the number of entries.
func (n *Names) Len() int {
	if n == nil {
		return 0
	}
	return len(n.byIndex)
}

// Indices returns all indices in ascending order.
func (n *Names) Indices() []uint32 {
	if n == nil {
		return nil
	}
	return append([]uint32(nil), n.order...)
}

// Load reads a names file. Files ending in .json hold an object mapping
// decimal or 0x-prefixed indices to names; anything else is read as text
// with one "index name" pair per line, '#' starting a comment.
func Load(path string) (*Names, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open names file: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParseJSON(f)
	}
	return ParseText(f)
}

// ParseJSON reads the JSON names format.
func ParseJSON(r io.Reader) (*Names, error) {
	var raw map[string]string
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode names: %w", err)
	}
	m := make(map[uint32]string, len(raw))
	for key, name := range raw {
		idx, err := parseIndex(key)
		if err != nil {
			return nil, fmt.Errorf("names key %q: %w", key, err)
		}
		m[idx] = name
	}
	return NewNames(m), nil
}

// ParseText reads the line-oriented names format.
func ParseText(r io.Reader) (*Names, error) {
	m := make(map[uint32]string)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, name := text, ""
		if sep := strings.IndexAny(text, " \t"); sep >= 0 {
			key, name = text[:sep], text[sep+1:]
		}
		idx, err := parseIndex(key)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		m[idx] = strings.TrimSpace(name)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read names: %w", err)
	}
	return NewNames(m), nil
}

func parseIndex(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad index: %w", err)
	}
	return uint32(v), nil
}
