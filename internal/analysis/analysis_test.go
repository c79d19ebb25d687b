package analysis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"avmdis/internal/avm2"
	"avmdis/internal/disasm"
	"avmdis/internal/pool"
	"avmdis/internal/stream"
)

func inst(off int, op avm2.Op, size int, operands ...int64) disasm.Instruction {
	return disasm.Instruction{Op: op, Operands: operands, Offset: off, Size: size}
}

func sample() *disasm.Disassembly {
	return &disasm.Disassembly{
		Start: 10,
		End:   27,
		Instructions: []disasm.Instruction{
			inst(10, avm2.OpGetLocal0, 1),
			inst(11, avm2.OpPushScope, 1),
			inst(12, avm2.OpGetLex, 2, 42),
			inst(14, avm2.OpPushByte, 2, 7),
			inst(16, avm2.OpCallPropVoid, 3, 5, 1),
			inst(19, avm2.OpCoerce, 2, 9),
			inst(21, avm2.OpGetLex, 2, 42),
			inst(23, avm2.OpIfFalse, 4, -13),
		},
	}
}

var names = pool.NewNames(map[uint32]string{
	5:  "refine",
	9:  "String",
	42: "com.game.crypto::Cipher",
})

func TestXrefs(t *testing.T) {
	tests := []struct {
		name string
		d    *disasm.Disassembly
		want []uint32
	}{
		{"nil", nil, nil},
		{"empty", &disasm.Disassembly{}, nil},
		{
			"getlex among unrelated ops",
			&disasm.Disassembly{Instructions: []disasm.Instruction{
				inst(0, avm2.OpGetLocal0, 1),
				inst(1, avm2.OpPushScope, 1),
				inst(2, avm2.OpGetLex, 2, 42),
				inst(4, avm2.OpReturnVoid, 1),
			}},
			[]uint32{42},
		},
		{"duplicates kept in order", sample(), []uint32{42, 9, 42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Xrefs(tt.d))
		})
	}
}

func TestIsXrefOpcode(t *testing.T) {
	for _, op := range []avm2.Op{
		avm2.OpFindPropStrict, avm2.OpConstructProp, avm2.OpAsType, avm2.OpCallSuper,
		avm2.OpCallSuperVoid, avm2.OpCoerce, avm2.OpFindDef, avm2.OpGetDescendants,
		avm2.OpGetLex, avm2.OpGetSuper, avm2.OpIsType, avm2.OpSetSuper,
	} {
		require.True(t, IsXrefOpcode(op), op.String())
	}
	for _, op := range []avm2.Op{avm2.OpGetProperty, avm2.OpCallPropVoid, avm2.OpFindProperty, avm2.OpPushString} {
		require.False(t, IsXrefOpcode(op), op.String())
	}
}

func TestResolveXrefs(t *testing.T) {
	xs := ResolveXrefs(sample(), names)
	require.Len(t, xs, 3)
	require.Equal(t, Xref{Offset: 12, Opcode: avm2.OpGetLex, Index: 42, Name: "com.game.crypto::Cipher", Resolved: true}, xs[0])
	require.Equal(t, "coerce", xs[1].Mnemonic())
	require.Equal(t, "String", xs[1].Name)

	unresolved := ResolveXrefs(sample(), nil)
	require.Len(t, unresolved, 3)
	for _, x := range unresolved {
		require.False(t, x.Resolved)
		require.Empty(t, x.Name)
	}
}

func TestFindXref(t *testing.T) {
	x, ok := FindXref(sample(), names, InNamespace("crypto"))
	require.True(t, ok)
	require.Equal(t, uint32(42), x.Index)

	_, ok = FindXref(sample(), names, InNamespace("net"))
	require.False(t, ok)

	// "String" has no namespace part.
	_, ok = FindXref(sample(), names, func(x Xref) bool { return InNamespace("")(x) && x.Index == 9 })
	require.False(t, ok)
}

type tagger string

func (tg tagger) Detect(xs []Xref) []Xref {
	for i := range xs {
		xs[i].Tags = append(xs[i].Tags, string(tg))
	}
	return xs
}

type dropUnresolved struct{}

func (dropUnresolved) Detect(xs []Xref) []Xref {
	var out []Xref
	for _, x := range xs {
		if x.Resolved {
			out = append(out, x)
		}
	}
	return out
}

func TestDetectorChain(t *testing.T) {
	xs := []Xref{{Index: 1, Resolved: true}, {Index: 2}}
	got := NewDetectorChain(dropUnresolved{}, tagger("a"), tagger("b")).Detect(xs)
	require.Len(t, got, 1)
	require.Equal(t, []string{"a", "b"}, got[0].Tags)
	require.True(t, got[0].HasTag("b"))
	require.False(t, got[0].HasTag("c"))

	require.Equal(t, xs, NewDetectorChain().Detect(xs))

	calls := 0
	counting := DetectorFunc(func(xs []Xref) []Xref { calls++; return xs })
	chain := NewDetectorChain(dropUnresolved{}, nil, counting)
	require.Equal(t, 2, chain.Len())
	require.Empty(t, chain.Detect([]Xref{{Index: 3}}))
	require.Zero(t, calls, "chain stops once every xref is dropped")
}

func TestBranchTargets(t *testing.T) {
	require.Equal(t, []int{14}, BranchTargets(inst(23, avm2.OpIfFalse, 4, -13)))
	require.Nil(t, BranchTargets(inst(12, avm2.OpGetLex, 2, 42)))

	sw := inst(100, avm2.OpLookupSwitch, 11, 20, 4, 8)
	require.Equal(t, []int{120, 104, 108}, BranchTargets(sw))
	require.Equal(t, []int{97}, BranchTargets(inst(100, avm2.OpLookupSwitch, 8, -3)))
	require.Nil(t, BranchTargets(inst(100, avm2.OpLookupSwitch, 1)))
}

func TestAnnotateDecodedLookupSwitch(t *testing.T) {
	code := []byte{byte(avm2.OpLookupSwitch)}
	code = stream.AppendS24(code, 12) // default
	code = stream.AppendVarint(code, 1)
	code = stream.AppendS24(code, 11)
	code = stream.AppendS24(code, 12)
	code = append(code, byte(avm2.OpNop), byte(avm2.OpReturnVoid))
	buf := append([]byte{0, 0, 0, 0, byte(len(code))}, code...)

	d, err := disasm.Disassemble(stream.New(buf))
	require.NoError(t, err)
	require.Equal(t, []int64{12, 11, 12}, d.Instructions[0].Operands)
	require.Equal(t, []int{17, 16, 17}, BranchTargets(d.Instructions[0]))

	listing := Annotate(d, buf, nil)
	require.Len(t, listing, 5)
	require.Equal(t, "loc_11 [loc_10, loc_11]", listing[0].Operands)
	require.Equal(t, "loc_10:", listing[1].Mnemonic)
	require.Equal(t, "loc_11:", listing[3].Mnemonic)
}

func TestAnnotate(t *testing.T) {
	buf := make([]byte, 32)
	buf[12], buf[13] = byte(avm2.OpGetLex), 42

	listing := Annotate(sample(), buf, names)
	// eight instructions plus the label for the branch back to 14
	require.Len(t, listing, 9)

	require.Equal(t, "getlex", listing[2].Mnemonic)
	require.Equal(t, "0x2a", listing[2].Operands)
	require.Equal(t, []string{"com.game.crypto::Cipher"}, listing[2].Annotations)
	require.Equal(t, []byte{byte(avm2.OpGetLex), 42}, listing[2].Bytes)

	require.True(t, listing[3].IsLabel())
	require.Equal(t, "e  loc_e:", listing[3].String())

	call := listing[5]
	require.Equal(t, "callpropvoid", call.Mnemonic)
	require.Equal(t, "0x5, 0x1", call.Operands)
	require.Equal(t, []string{"refine"}, call.Annotations)

	jump := listing[8]
	require.Equal(t, "loc_e", jump.Operands)

	line := listing[2].String()
	require.True(t, strings.HasPrefix(line, "c "))
	require.True(t, strings.HasSuffix(line, "; com.game.crypto::Cipher"))
	require.Equal(t, "a          getlocal0", listing[0].String())
}

func TestAnnotateStrayTargets(t *testing.T) {
	d := &disasm.Disassembly{
		Start: 0,
		End:   5,
		Instructions: []disasm.Instruction{
			inst(0, avm2.OpJump, 4, 3),
			inst(4, avm2.OpReturnVoid, 1),
		},
	}
	listing := Annotate(d, nil, nil)
	require.Len(t, listing, 3)
	last := listing[2]
	require.Equal(t, []string{"unaligned targets: loc_7"}, last.Annotations)
	require.Contains(t, last.String(), "; unaligned targets: loc_7")
	require.Nil(t, listing[0].Bytes)
}

func TestEscapeUnprintable(t *testing.T) {
	require.Equal(t, "plain::Name", EscapeUnprintable([]byte("plain::Name")))
	require.Equal(t, `a\u0001b`, EscapeUnprintable([]byte("a\x01b")))
	require.Equal(t, `\xFF`, EscapeUnprintable([]byte{0xFF}))

	esc, hex := FormatRecovered([]byte("k\x00"))
	require.Equal(t, `k\u0000`, esc)
	require.Equal(t, "6b00", hex)
}
