// Package report assembles decode results into a serializable document and
// renders it as JSON, canonical CBOR or a markdown summary.
package report

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fxamacker/cbor/v2"

	"avmdis/internal/analysis"
	"avmdis/internal/disasm"
	"avmdis/internal/traits"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("report: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Report is the export document for one dump.
type Report struct {
	RunID   string     `json:"run_id"`
	File    string     `json:"file"`
	Digest  string     `json:"digest"`
	Base    uint64     `json:"base"`
	Methods []Method   `json:"methods"`
	Traits  []TraitSet `json:"traits"`
}

// Method is one decoded method body.
type Method struct {
	Address      uint64             `json:"address"`
	Header       disasm.Header      `json:"header"`
	CodeStart    int                `json:"code_start"`
	CodeEnd      int                `json:"code_end"`
	Instructions []Instruction      `json:"instructions"`
	Xrefs        []analysis.Xref    `json:"xrefs"`
	Exceptions   []disasm.Exception `json:"exceptions,omitempty"`
	Activation   traits.Table       `json:"activation,omitempty"`
	Error        string             `json:"error,omitempty"`
}

// Instruction is the wire form of disasm.Instruction.
type Instruction struct {
	Offset   int     `json:"offset"`
	Size     int     `json:"size"`
	Opcode   uint8   `json:"opcode"`
	Mnemonic string  `json:"mnemonic"`
	Operands []int64 `json:"operands,omitempty"`
}

// TraitSet is one decoded descriptor section.
type TraitSet struct {
	Address uint64       `json:"address"`
	Traits  traits.Table `json:"traits"`
	Error   string       `json:"error,omitempty"`
}

// Digest returns the hex sha256 of data.
func Digest(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// NewMethod converts a decoded body. err, if non-nil, is recorded and the
// body may be nil.
func NewMethod(addr uint64, body *disasm.Body, xrefs []analysis.Xref, err error) Method {
	m := Method{Address: addr, Xrefs: xrefs}
	if err != nil {
		m.Error = sanitizeForJSON(err.Error())
	}
	if body == nil || body.Disassembly == nil {
		return m
	}
	m.Header = body.Header
	m.CodeStart, m.CodeEnd = body.Start, body.End
	m.Exceptions = body.Exceptions
	m.Activation = sanitizeTraits(body.Traits)
	for _, in := range body.Instructions {
		m.Instructions = append(m.Instructions, Instruction{
			Offset:   in.Offset,
			Size:     in.Size,
			Opcode:   uint8(in.Op),
			Mnemonic: in.Op.String(),
			Operands: in.Operands,
		})
	}
	for i := range m.Xrefs {
		m.Xrefs[i].Name = sanitizeForJSON(m.Xrefs[i].Name)
	}
	return m
}

// NewTraitSet converts a decoded trait table.
func NewTraitSet(addr uint64, t traits.Table, err error) TraitSet {
	ts := TraitSet{Address: addr, Traits: sanitizeTraits(t)}
	if err != nil {
		ts.Error = sanitizeForJSON(err.Error())
	}
	return ts
}

// Encode writes r in format ("json" or "cbor").
func Encode(w io.Writer, r *Report, format string) error {
	switch format {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode json report: %w", err)
		}
		return nil
	case "cbor":
		b, err := cborEncMode.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode cbor report: %w", err)
		}
		_, err = w.Write(b)
		return err
	}
	return fmt.Errorf("unknown report format %q", format)
}

// DecodeCBOR parses a CBOR report.
func DecodeCBOR(data []byte) (*Report, error) {
	var r Report
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("report: unmarshal: %w", err)
	}
	return &r, nil
}

// Markdown summarizes r for terminal rendering.
func Markdown(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.File)
	fmt.Fprintf(&b, "- digest: `%s`\n", r.Digest)
	if r.Base != 0 {
		fmt.Fprintf(&b, "- base: `%#x`\n", r.Base)
	}
	fmt.Fprintf(&b, "- methods: %d, trait sections: %d\n\n", len(r.Methods), len(r.Traits))

	for _, m := range r.Methods {
		fmt.Fprintf(&b, "## method %#x\n\n", m.Address)
		if m.Error != "" {
			fmt.Fprintf(&b, "> %s\n\n", m.Error)
		}
		if m.CodeEnd > m.CodeStart {
			fmt.Fprintf(&b, "%d instructions, %d code bytes, max stack %d, locals %d\n\n",
				len(m.Instructions), m.CodeEnd-m.CodeStart, m.Header.MaxStack, m.Header.LocalCount)
		}
		if len(m.Xrefs) > 0 {
			b.WriteString("| offset | op | index | name | tags |\n|---|---|---|---|---|\n")
			for _, x := range m.Xrefs {
				fmt.Fprintf(&b, "| %#x | %s | %d | %s | %s |\n",
					x.Offset, x.Mnemonic(), x.Index, mdCell(x.Name), strings.Join(x.Tags, " "))
			}
			b.WriteString("\n")
		}
	}
	for _, ts := range r.Traits {
		fmt.Fprintf(&b, "## traits %#x\n\n", ts.Address)
		if ts.Error != "" {
			fmt.Fprintf(&b, "> %s\n\n", ts.Error)
		}
		if len(ts.Traits) > 0 {
			b.WriteString("| kind | name | id | type |\n|---|---|---|---|\n")
			for _, t := range ts.Traits {
				fmt.Fprintf(&b, "| %s | %s | %d | %d |\n", t.Kind, mdCell(t.Name), t.ID, t.TypeIndex)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func mdCell(s string) string {
	if s == "" {
		return "_?_"
	}
	return strings.ReplaceAll(s, "|", `\|`)
}

func sanitizeTraits(t traits.Table) traits.Table {
	if t == nil {
		return nil
	}
	out := make(traits.Table, len(t))
	for i, tr := range t {
		tr.Name = sanitizeForJSON(tr.Name)
		out[i] = tr
	}
	return out
}

// sanitizeForJSON cleans a string to be valid UTF-8 and safe for JSON encoding
func sanitizeForJSON(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "�")
}
