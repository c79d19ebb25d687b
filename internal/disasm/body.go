package disasm

import (
	"errors"
	"fmt"

	"avmdis/internal/pool"
	"avmdis/internal/stream"
	"avmdis/internal/traits"
)

// Exception is one entry of a method body's exception table.
type Exception struct {
	From    uint32 `json:"from"`
	To      uint32 `json:"to"`
	Target  uint32 `json:"target"`
	ExcType uint32 `json:"exc_type"`
	VarName uint32 `json:"var_name"`
}

// Body is a full method body: code plus the tables that follow it.
type Body struct {
	*Disassembly
	Exceptions []Exception  `json:"exceptions,omitempty"`
	Traits     traits.Table `json:"traits,omitempty"`
}

// DecodeBody disassembles a method body and then reads its exception table
// and activation traits. The cursor is left after the trait list.
//
// A code section that fails to decode still has a well-defined length, so
// the tail is read and the code error is returned alongside the body.
func DecodeBody(c *stream.Cursor, td *traits.Decoder, names pool.Lookup) (*Body, error) {
	d, codeErr := Disassemble(c)
	body := &Body{Disassembly: d}
	var overrun *OverrunError
	if codeErr != nil && !IsAborted(codeErr) && !errors.As(codeErr, &overrun) {
		return body, codeErr
	}

	count, err := c.ReadVarint()
	if err != nil {
		return body, fmt.Errorf("exception count at %#x: %w", c.Pos(), err)
	}
	for i := uint32(0); i < count; i++ {
		var ex Exception
		for _, p := range []*uint32{&ex.From, &ex.To, &ex.Target, &ex.ExcType, &ex.VarName} {
			if *p, err = c.ReadVarint(); err != nil {
				return body, fmt.Errorf("exception %d: %w", i, err)
			}
		}
		body.Exceptions = append(body.Exceptions, ex)
	}

	if td == nil {
		td = traits.NewDecoder(names)
	}
	tbl, err := td.DecodeList(c, names)
	if err != nil {
		return body, fmt.Errorf("activation traits: %w", err)
	}
	body.Traits = tbl
	return body, codeErr
}
