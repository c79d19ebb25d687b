// Package traits decodes AVM2 trait sections: the member lists attached to
// instance, class, script and activation descriptors.
package traits

import (
	"fmt"

	"github.com/charmbracelet/log"

	"avmdis/internal/pool"
	"avmdis/internal/stream"
)

// Kind is the low nibble of a trait tag.
type Kind uint8

const (
	Slot   Kind = 0
	Method Kind = 1
	Getter Kind = 2
	Setter Kind = 3
	Class  Kind = 4
	Const  Kind = 6
)

const (
	AttrFinal    = 0x10
	AttrOverride = 0x20
	attrMetadata = 0x40

	flagProtectedNS = 0x8
)

func (k Kind) String() string {
	switch k {
	case Slot:
		return "slot"
	case Method:
		return "method"
	case Getter:
		return "getter"
	case Setter:
		return "setter"
	case Class:
		return "class"
	case Const:
		return "const"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Trait is one decoded trait record.
type Trait struct {
	Kind      Kind   `json:"kind"`
	Name      string `json:"name"`
	NameIndex uint32 `json:"name_index"`
	// TypeIndex is set for Slot and Const only.
	TypeIndex uint32 `json:"type_index"`
	// ID is the value index (Slot, Const), class index (Class) or method
	// index (Method, Getter, Setter).
	ID uint32 `json:"id"`
	// AuxNameIndex mirrors NameIndex for Method, Getter and Setter.
	AuxNameIndex uint32 `json:"aux_name_index"`
	Attrs        uint8  `json:"attrs,omitempty"`
	Offset       int    `json:"offset"`
}

func (t Trait) IsMethodLike() bool {
	return t.Kind == Method || t.Kind == Getter || t.Kind == Setter
}

// Table holds traits in declaration order.
type Table []Trait

// HasTrait reports whether any trait is named name.
func (t Table) HasTrait(name string) bool {
	_, ok := t.Find(name)
	return ok
}

// Find returns the first trait named name.
func (t Table) Find(name string) (Trait, bool) {
	for _, tr := range t {
		if tr.Name == name {
			return tr, true
		}
	}
	return Trait{}, false
}

// ByKind returns the traits of kind k in declaration order.
func (t Table) ByKind(k Kind) Table {
	var out Table
	for _, tr := range t {
		if tr.Kind == k {
			out = append(out, tr)
		}
	}
	return out
}

// Slots returns every Slot trait.
func (t Table) Slots() Table { return t.ByKind(Slot) }

// Methods returns method, getter and setter traits.
func (t Table) Methods() Table {
	var out Table
	for _, tr := range t {
		if tr.IsMethodLike() {
			out = append(out, tr)
		}
	}
	return out
}

// SlotsOfType returns the slots whose declared type resolves to typeName.
func (t Table) SlotsOfType(l pool.Lookup, typeName string) Table {
	var out Table
	for _, tr := range t.Slots() {
		if tr.TypeIndex != 0 && pool.Resolve(l, tr.TypeIndex) == typeName {
			out = append(out, tr)
		}
	}
	return out
}

// Decoder reads trait sections against a name pool.
type Decoder struct {
	Pool   pool.Lookup
	Logger *log.Logger
}

// NewDecoder returns a decoder bound to p.
func NewDecoder(p pool.Lookup) *Decoder {
	return &Decoder{Pool: p}
}

func (d *Decoder) logger() *log.Logger {
	if d != nil && d.Logger != nil {
		return d.Logger
	}
	return log.Default()
}

func (d *Decoder) lookup(custom pool.Lookup) pool.Lookup {
	if custom != nil {
		return custom
	}
	if d != nil && d.Pool != nil {
		return d.Pool
	}
	return pool.Empty
}

// Decode reads an instance/class descriptor at the cursor and returns its
// traits. custom overrides the decoder's pool when non-nil.
func (d *Decoder) Decode(c *stream.Cursor, custom pool.Lookup) (Table, error) {
	start := c.Pos()

	// qualified name placeholders
	if err := skipVarints(c, 2); err != nil {
		return nil, fmt.Errorf("descriptor header at %#x: %w", start, err)
	}
	flags, err := c.ReadVarint()
	if err != nil {
		return nil, fmt.Errorf("descriptor flags at %#x: %w", c.Pos(), err)
	}
	if flags&flagProtectedNS != 0 {
		if err := skipVarints(c, 1); err != nil {
			return nil, fmt.Errorf("protected namespace at %#x: %w", c.Pos(), err)
		}
	}
	ifaces, err := c.ReadVarint()
	if err != nil {
		return nil, fmt.Errorf("interface count at %#x: %w", c.Pos(), err)
	}
	if err := skipVarints(c, ifaces); err != nil {
		return nil, fmt.Errorf("interfaces at %#x: %w", c.Pos(), err)
	}
	// instance initializer
	if err := skipVarints(c, 1); err != nil {
		return nil, fmt.Errorf("initializer at %#x: %w", c.Pos(), err)
	}
	return d.DecodeList(c, custom)
}

// DecodeList reads a bare trait list: a count followed by that many traits.
func (d *Decoder) DecodeList(c *stream.Cursor, custom pool.Lookup) (Table, error) {
	l := d.lookup(custom)
	count, err := c.ReadVarint()
	if err != nil {
		return nil, fmt.Errorf("trait count at %#x: %w", c.Pos(), err)
	}
	var table Table
	for i := uint32(0); i < count; i++ {
		tr, err := d.decodeOne(c, l)
		if err != nil {
			return nil, fmt.Errorf("trait %d: %w", i, err)
		}
		table = append(table, tr)
	}
	return table, nil
}

func (d *Decoder) decodeOne(c *stream.Cursor, l pool.Lookup) (Trait, error) {
	tr := Trait{Offset: c.Pos()}
	var err error
	if tr.NameIndex, err = c.ReadVarint(); err != nil {
		return tr, err
	}
	tag, err := c.ReadU8()
	if err != nil {
		return tr, err
	}
	tr.Kind = Kind(tag & 0xF)
	tr.Attrs = tag & (AttrFinal | AttrOverride)
	tr.Name = pool.Resolve(l, tr.NameIndex)

	switch tr.Kind {
	case Slot, Const:
		if err = skipVarints(c, 1); err != nil {
			return tr, err
		}
		if tr.TypeIndex, err = c.ReadVarint(); err != nil {
			return tr, err
		}
		if tr.ID, err = c.ReadVarint(); err != nil {
			return tr, err
		}
		if tr.ID != 0 {
			// value kind
			if err = c.Skip(1); err != nil {
				return tr, err
			}
		}
	case Class:
		if err = skipVarints(c, 1); err != nil {
			return tr, err
		}
		if tr.ID, err = c.ReadVarint(); err != nil {
			return tr, err
		}
	case Method, Getter, Setter:
		if err = skipVarints(c, 1); err != nil {
			return tr, err
		}
		if tr.ID, err = c.ReadVarint(); err != nil {
			return tr, err
		}
		tr.AuxNameIndex = tr.NameIndex
	default:
		d.logger().Warn("unknown trait kind", "kind", uint8(tr.Kind), "offset", tr.Offset, "name", tr.Name)
	}

	if tag&attrMetadata != 0 {
		n, err := c.ReadVarint()
		if err != nil {
			return tr, err
		}
		if err = skipVarints(c, n); err != nil {
			return tr, err
		}
	}
	return tr, nil
}

func skipVarints(c *stream.Cursor, n uint32) error {
	for i := uint32(0); i < n; i++ {
		if _, err := c.ReadVarint(); err != nil {
			return err
		}
	}
	return nil
}
