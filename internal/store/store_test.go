package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"avmdis/internal/analysis"
	"avmdis/internal/avm2"
	"avmdis/internal/disasm"
	"avmdis/internal/report"
	"avmdis/internal/traits"
)

func testReport() *report.Report {
	body := &disasm.Body{Disassembly: &disasm.Disassembly{
		Start: 5,
		End:   8,
		Instructions: []disasm.Instruction{
			{Op: avm2.OpGetLex, Operands: []int64{42}, Offset: 5, Size: 2},
			{Op: avm2.OpReturnVoid, Offset: 7, Size: 1},
		},
	}}
	xrefs := []analysis.Xref{
		{Offset: 5, Opcode: avm2.OpGetLex, Index: 42, Name: "com.game.crypto::Cipher", Resolved: true, Tags: []string{"crypto"}},
	}
	return &report.Report{
		File:   "dump.bin",
		Digest: report.Digest([]byte("dump")),
		Methods: []report.Method{
			report.NewMethod(0x10, body, xrefs, nil),
			report.NewMethod(0x40, nil, nil, &disasm.UnknownOpcodeError{Offset: 0x44, Opcode: 0xFF}),
		},
		Traits: []report.TraitSet{
			report.NewTraitSet(0x80, traits.Table{{Kind: traits.Slot, Name: "key", NameIndex: 3, TypeIndex: 9}}, nil),
		},
	}
}

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "avmdis.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndQuery(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	r := testReport()
	id, err := s.Save(ctx, r)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(id, "run_"))
	require.Equal(t, id, r.RunID)

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "dump.bin", runs[0].File)
	require.Equal(t, 2, runs[0].Methods)
	require.Equal(t, 1, runs[0].Failed)
	require.False(t, runs[0].Created.IsZero())

	hits, err := s.FindXrefs(ctx, "", "crypto")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, XrefHit{RunID: id, Method: 0x10, Offset: 5, Opcode: "getlex", Index: 42,
		Name: "com.game.crypto::Cipher", Tags: []string{"crypto"}}, hits[0])

	n, err := s.InstructionCount(ctx, id, 0x10)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, err = s.InstructionCount(ctx, "run_missing", 0x10)
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestSaveReplacesRun(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	r := testReport()
	r.RunID = "run_fixed"
	_, err := s.Save(ctx, r)
	require.NoError(t, err)
	_, err = s.Save(ctx, r)
	require.NoError(t, err)

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	hits, err := s.FindXrefs(ctx, "run_fixed", "Cipher")
	require.NoError(t, err)
	require.Len(t, hits, 1)

	other, err := s.Save(ctx, testReport())
	require.NoError(t, err)
	require.NotEqual(t, "run_fixed", other)

	hits, err = s.FindXrefs(ctx, "", "Cipher")
	require.NoError(t, err)
	require.Len(t, hits, 2)
}

func TestNewRunIDUnique(t *testing.T) {
	require.NotEqual(t, NewRunID(), NewRunID())
}
