// Package analysis extracts cross-references from decoded method bodies and
// produces annotated listings for display.
package analysis

import (
	"strings"

	"avmdis/internal/avm2"
	"avmdis/internal/disasm"
	"avmdis/internal/pool"
)

// xrefOps are the instructions whose first operand names a type or property
// the method depends on.
var xrefOps = map[avm2.Op]bool{
	avm2.OpFindPropStrict: true,
	avm2.OpConstructProp:  true,
	avm2.OpAsType:         true,
	avm2.OpCallSuper:      true,
	avm2.OpCallSuperVoid:  true,
	avm2.OpCoerce:         true,
	avm2.OpFindDef:        true,
	avm2.OpGetDescendants: true,
	avm2.OpGetLex:         true,
	avm2.OpGetSuper:       true,
	avm2.OpIsType:         true,
	avm2.OpSetSuper:       true,
}

// IsXrefOpcode reports whether op contributes to Xrefs.
func IsXrefOpcode(op avm2.Op) bool { return xrefOps[op] }

// Xrefs returns the first operand of every cross-reference instruction in
// instruction order. Duplicates are kept.
func Xrefs(d *disasm.Disassembly) []uint32 {
	if d == nil {
		return nil
	}
	var out []uint32
	for _, in := range d.Instructions {
		if IsXrefOpcode(in.Op) && len(in.Operands) > 0 {
			out = append(out, uint32(in.Operands[0]))
		}
	}
	return out
}

// Xref is a cross-reference with its resolved name.
type Xref struct {
	Offset   int      `json:"offset"`
	Opcode   avm2.Op  `json:"opcode"`
	Index    uint32   `json:"index"`
	Name     string   `json:"name"`
	Resolved bool     `json:"resolved"`
	Tags     []string `json:"tags,omitempty"`
	Comment  string   `json:"comment,omitempty"`
}

// Mnemonic returns the opcode name.
func (x Xref) Mnemonic() string { return x.Opcode.String() }

// HasTag reports whether tag was attached by a detector.
func (x Xref) HasTag(tag string) bool {
	for _, t := range x.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ResolveXrefs returns the cross-references of d with names looked up in l.
func ResolveXrefs(d *disasm.Disassembly, l pool.Lookup) []Xref {
	if d == nil {
		return nil
	}
	var out []Xref
	for _, in := range d.Instructions {
		if !IsXrefOpcode(in.Op) || len(in.Operands) == 0 {
			continue
		}
		x := Xref{Offset: in.Offset, Opcode: in.Op, Index: uint32(in.Operands[0])}
		if l != nil {
			x.Name, x.Resolved = l.Name(x.Index)
		}
		out = append(out, x)
	}
	return out
}

// FindXref returns the first resolved cross-reference accepted by match.
func FindXref(d *disasm.Disassembly, l pool.Lookup, match func(Xref) bool) (Xref, bool) {
	for _, x := range ResolveXrefs(d, l) {
		if match(x) {
			return x, true
		}
	}
	return Xref{}, false
}

// InNamespace matches resolved names of the form "ns::Name" whose namespace
// part contains ns.
func InNamespace(ns string) func(Xref) bool {
	return func(x Xref) bool {
		if !x.Resolved {
			return false
		}
		qual, _, ok := strings.Cut(x.Name, "::")
		return ok && strings.Contains(qual, ns)
	}
}
