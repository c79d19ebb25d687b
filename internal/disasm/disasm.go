// Package disasm decodes AVM2 method bodies into instruction lists.
package disasm

import (
	"errors"
	"fmt"
	"strings"

	"avmdis/internal/avm2"
	"avmdis/internal/stream"
)

// Header holds the method body prologue. The values are recorded, not
// interpreted.
type Header struct {
	MaxStack       uint32 `json:"max_stack"`
	LocalCount     uint32 `json:"local_count"`
	InitScopeDepth uint32 `json:"init_scope_depth"`
	MaxScopeDepth  uint32 `json:"max_scope_depth"`
}

// Instruction is a single decoded instruction.
type Instruction struct {
	Op       avm2.Op `json:"op"`
	Operands []int64 `json:"operands,omitempty"`
	Offset   int     `json:"offset"` // absolute offset of the opcode byte
	Size     int     `json:"size"`   // encoded length including the opcode
}

// String renders the mnemonic followed by hex operands. Negative operands
// print as 32-bit two's complement.
func (in Instruction) String() string {
	var b strings.Builder
	b.WriteString(in.Op.String())
	for _, v := range in.Operands {
		fmt.Fprintf(&b, " %#x", uint32(v))
	}
	return b.String()
}

// Disassembly is the decoded code section of one method body.
type Disassembly struct {
	Header       Header        `json:"header"`
	Start        int           `json:"start"` // first code byte
	End          int           `json:"end"`   // one past the last code byte
	Instructions []Instruction `json:"instructions"`
}

// Len returns the number of instructions.
func (d *Disassembly) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Instructions)
}

// At returns the instruction starting at offset.
func (d *Disassembly) At(offset int) (Instruction, bool) {
	if d == nil {
		return Instruction{}, false
	}
	for _, in := range d.Instructions {
		if in.Offset == offset {
			return in, true
		}
	}
	return Instruction{}, false
}

// UnknownOpcodeError aborts a method whose code contains an undefined opcode.
type UnknownOpcodeError struct {
	Offset int
	Opcode uint8
}

func (e *UnknownOpcodeError) Error() string {
	return fmt.Sprintf("unknown opcode %#02x at offset %#x", e.Opcode, e.Offset)
}

// OverrunError reports an operand that would extend past the code section.
type OverrunError struct {
	Offset int     // instruction start
	Op     avm2.Op // instruction being decoded
	End    int     // end of the code section
	Err    error
}

func (e *OverrunError) Error() string {
	return fmt.Sprintf("%s at offset %#x overruns code end %#x: %v", e.Op, e.Offset, e.End, e.Err)
}

func (e *OverrunError) Unwrap() error { return e.Err }

// IsAborted reports whether err came from an unknown opcode.
func IsAborted(err error) bool {
	var u *UnknownOpcodeError
	return errors.As(err, &u)
}

// Disassemble reads a method body header and its code section starting at
// the cursor. On any failure the returned Disassembly carries the header
// and bounds read so far but no instructions.
func Disassemble(c *stream.Cursor) (*Disassembly, error) {
	d := &Disassembly{}
	hdr := []*uint32{&d.Header.MaxStack, &d.Header.LocalCount, &d.Header.InitScopeDepth, &d.Header.MaxScopeDepth}
	for _, p := range hdr {
		v, err := c.ReadVarint()
		if err != nil {
			return d, fmt.Errorf("method header at %#x: %w", c.Pos(), err)
		}
		*p = v
	}
	codeLen, err := c.ReadVarint()
	if err != nil {
		return d, fmt.Errorf("code length at %#x: %w", c.Pos(), err)
	}
	d.Start = c.Pos()
	code, err := c.Sub(int(codeLen))
	if err != nil {
		return d, fmt.Errorf("code section of %d bytes: %w", codeLen, err)
	}
	d.End = code.Len()

	insts, err := decodeCode(code)
	if err != nil {
		return d, err
	}
	d.Instructions = insts
	return d, nil
}

func decodeCode(c *stream.Cursor) ([]Instruction, error) {
	var out []Instruction
	for c.Remaining() > 0 {
		start := c.Pos()
		b, err := c.ReadU8()
		if err != nil {
			return nil, err
		}
		op := avm2.Op(b)
		desc, ok := avm2.Lookup(op)
		if !ok {
			return nil, &UnknownOpcodeError{Offset: start, Opcode: b}
		}
		operands, err := decodeOperands(c, desc.Operands)
		if err != nil {
			return nil, &OverrunError{Offset: start, Op: op, End: c.Len(), Err: err}
		}
		out = append(out, Instruction{Op: op, Operands: operands, Offset: start, Size: c.Pos() - start})
	}
	return out, nil
}

func decodeOperands(c *stream.Cursor, kinds []avm2.Operand) ([]int64, error) {
	if len(kinds) == 0 {
		return nil, nil
	}
	ops := make([]int64, 0, len(kinds))
	for _, k := range kinds {
		switch k {
		case avm2.U30:
			v, err := c.ReadVarint()
			if err != nil {
				return nil, err
			}
			ops = append(ops, int64(v))
		case avm2.S24:
			v, err := c.ReadS24()
			if err != nil {
				return nil, err
			}
			ops = append(ops, int64(v))
		case avm2.Byte:
			v, err := c.ReadU8()
			if err != nil {
				return nil, err
			}
			ops = append(ops, int64(v))
		case avm2.Dynamic:
			// lookupswitch: case count, then count+1 case offsets.
			// The count itself is not an operand.
			n, err := c.ReadVarint()
			if err != nil {
				return nil, err
			}
			for i := uint64(0); i <= uint64(n); i++ {
				v, err := c.ReadS24()
				if err != nil {
					return nil, err
				}
				ops = append(ops, int64(v))
			}
		}
	}
	return ops, nil
}
