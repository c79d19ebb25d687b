package analysis

import (
	"fmt"
	"sort"
	"strings"

	"avmdis/internal/avm2"
	"avmdis/internal/disasm"
	"avmdis/internal/pool"
)

// nameOps take a multiname index as their first operand.
var nameOps = map[avm2.Op]bool{
	avm2.OpGetProperty:    true,
	avm2.OpSetProperty:    true,
	avm2.OpInitProperty:   true,
	avm2.OpDeleteProperty: true,
	avm2.OpFindProperty:   true,
	avm2.OpCallProperty:   true,
	avm2.OpCallPropLex:    true,
	avm2.OpCallPropVoid:   true,
}

// AnnotatedInst is one listing line. A Mnemonic ending in ':' is a label.
type AnnotatedInst struct {
	Offset      int
	Bytes       []byte
	Mnemonic    string
	Operands    string
	Annotations []string // comments to display
}

func (a AnnotatedInst) IsLabel() bool { return strings.HasSuffix(a.Mnemonic, ":") }

func (a AnnotatedInst) String() string {
	if a.Mnemonic == "" && a.Operands == "" && len(a.Annotations) > 0 {
		return fmt.Sprintf("           %-16s %-30s ; %s", "", "", strings.Join(a.Annotations, ", "))
	}
	if a.IsLabel() {
		return fmt.Sprintf("%x  %s", a.Offset, a.Mnemonic)
	}

	addr := fmt.Sprintf("%x", a.Offset) // no 0x prefix, the colorizer may add one
	base := fmt.Sprintf("%-10s %-16s %-30s", addr, a.Mnemonic, a.Operands)
	if len(a.Annotations) > 0 {
		return fmt.Sprintf("%s ; %s", base, strings.Join(a.Annotations, ", "))
	}
	return strings.TrimRight(base, " ")
}

// Label returns the label name used for a branch target.
func Label(offset int) string { return fmt.Sprintf("loc_%x", offset) }

// BranchTargets returns the absolute targets of in, if it branches.
func BranchTargets(in disasm.Instruction) []int {
	if in.Op == avm2.OpLookupSwitch {
		// Offsets are relative to the lookupswitch itself:
		// default, then one offset per case.
		if len(in.Operands) == 0 {
			return nil
		}
		targets := []int{in.Offset + int(in.Operands[0])}
		for _, off := range in.Operands[1:] {
			targets = append(targets, in.Offset+int(off))
		}
		return targets
	}
	desc, ok := avm2.Lookup(in.Op)
	if !ok || len(desc.Operands) != 1 || desc.Operands[0] != avm2.S24 || len(in.Operands) != 1 {
		return nil
	}
	return []int{in.Offset + in.Size + int(in.Operands[0])}
}

// Annotate renders d as a listing with resolved names and branch labels.
// buf, when non-nil, is the buffer d was decoded from and supplies raw bytes.
func Annotate(d *disasm.Disassembly, buf []byte, l pool.Lookup) []AnnotatedInst {
	if d == nil {
		return nil
	}
	labels := map[int]bool{}
	for _, in := range d.Instructions {
		for _, t := range BranchTargets(in) {
			labels[t] = true
		}
	}

	var out []AnnotatedInst
	for _, in := range d.Instructions {
		if labels[in.Offset] {
			out = append(out, AnnotatedInst{Offset: in.Offset, Mnemonic: Label(in.Offset) + ":"})
		}
		ai := AnnotatedInst{
			Offset:   in.Offset,
			Mnemonic: in.Op.String(),
			Operands: formatOperands(in),
		}
		if buf != nil && in.Offset >= 0 && in.Offset+in.Size <= len(buf) {
			ai.Bytes = buf[in.Offset : in.Offset+in.Size]
		}
		if (IsXrefOpcode(in.Op) || nameOps[in.Op]) && len(in.Operands) > 0 {
			if name, ok := lookupName(l, uint32(in.Operands[0])); ok {
				ai.Annotations = append(ai.Annotations, EscapeUnprintable([]byte(name)))
			}
		}
		out = append(out, ai)
	}

	// Targets that land outside any instruction start.
	var stray []int
	for t := range labels {
		if _, ok := d.At(t); !ok {
			stray = append(stray, t)
		}
	}
	if len(stray) > 0 {
		sort.Ints(stray)
		names := make([]string, len(stray))
		for i, t := range stray {
			names[i] = Label(t)
		}
		out = append(out, AnnotatedInst{
			Offset:      d.End,
			Annotations: []string{"unaligned targets: " + strings.Join(names, ", ")},
		})
	}
	return out
}

func formatOperands(in disasm.Instruction) string {
	if targets := BranchTargets(in); targets != nil {
		parts := make([]string, len(targets))
		for i, t := range targets {
			parts[i] = Label(t)
		}
		if in.Op == avm2.OpLookupSwitch {
			return fmt.Sprintf("%s [%s]", parts[0], strings.Join(parts[1:], ", "))
		}
		return parts[0]
	}
	parts := make([]string, len(in.Operands))
	for i, v := range in.Operands {
		if v < 0 {
			parts[i] = fmt.Sprintf("-%#x", -v)
		} else {
			parts[i] = fmt.Sprintf("%#x", v)
		}
	}
	return strings.Join(parts, ", ")
}

func lookupName(l pool.Lookup, idx uint32) (string, bool) {
	if l == nil {
		return "", false
	}
	return l.Name(idx)
}
